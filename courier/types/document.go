package types

import (
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is fixed-width so that lexical order equals time order.
const TimestampLayout = "2006-01-02T15:04:05.000000000Z"

type serverTimestamp struct{}

// ServerTimestamp is a field value the document store replaces with its own
// clock when the write is applied.
var ServerTimestamp = serverTimestamp{}

func IsServerTimestamp(v any) bool {
	_, ok := v.(serverTimestamp)
	return ok
}

func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(TimestampLayout, s)
}

// Document is one keyed entry of a collection.
type Document struct {
	ID   string         `json:"id"`
	Path string         `json:"path"`
	Data map[string]any `json:"data"`
}

// Snapshot is the full current result of a live query.
type Snapshot []Document

type DocumentRef struct {
	ID   string `json:"id"`
	Path string `json:"path"`
}

// Query selects a window of a collection. An empty OrderBy orders by
// document id; Limit <= 0 means no limit.
type Query struct {
	Collection string
	OrderBy    string
	Descending bool
	Limit      int
}

// SplitPath splits "a/b/c/d" into its parent collection "a/b/c" and id "d".
// Document paths have an even number of segments.
func SplitPath(path string) (collection, id string, err error) {
	clean := strings.Trim(path, "/")
	segs := strings.Split(clean, "/")
	if clean == "" || len(segs)%2 != 0 {
		return "", "", fmt.Errorf("invalid document path %q", path)
	}
	for _, s := range segs {
		if s == "" {
			return "", "", fmt.Errorf("invalid document path %q", path)
		}
	}
	i := strings.LastIndex(clean, "/")
	return clean[:i], clean[i+1:], nil
}

// CleanCollection validates a collection path (odd number of segments).
func CleanCollection(path string) (string, error) {
	clean := strings.Trim(path, "/")
	segs := strings.Split(clean, "/")
	if clean == "" || len(segs)%2 != 1 {
		return "", fmt.Errorf("invalid collection path %q", path)
	}
	for _, s := range segs {
		if s == "" {
			return "", fmt.Errorf("invalid collection path %q", path)
		}
	}
	return clean, nil
}
