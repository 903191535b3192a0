package types

import "io"

// File is one selected file of a file-input-like source.
type File struct {
	Name        string
	ContentType string
	Size        int64 // -1 when unknown
	Body        io.Reader
}
