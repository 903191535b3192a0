package routes

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"courier/courier/controllers"
	"courier/courier/middlewares"
	"courier/courier/sources/identity"
	"courier/courier/sources/storage"
	"courier/courier/types"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// BlobReader opens stored objects for download.
type BlobReader interface {
	Open(ctx context.Context, key string) (*storage.Object, error)
}

const maxMultipartMemory = 32 << 20

// FileRoutes accept multipart uploads for clients that would rather not
// push file bytes through the websocket.
func FileRoutes(ctrl *controllers.GatewayController, blobs BlobReader, tokens *identity.Tokens, log *zap.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(middlewares.AuthMiddleware(tokens))

	// POST /files/messages : form field "file", posted as an image message
	r.Post("/messages", handleJSON(func(r *http.Request) (any, int, error) {
		file, closeFile, err := formFile(r)
		if err != nil {
			return nil, http.StatusBadRequest, err
		}
		defer closeFile()
		ref, err := ctrl.PostImage(r.Context(), middlewares.CredentialFrom(r.Context()), file)
		if err != nil {
			return nil, http.StatusBadGateway, err
		}
		return ref, http.StatusCreated, nil
	}))

	// POST /files/blobs : form fields "file" and "path"
	r.Post("/blobs", handleJSON(func(r *http.Request) (any, int, error) {
		file, closeFile, err := formFile(r)
		if err != nil {
			return nil, http.StatusBadRequest, err
		}
		defer closeFile()
		path := r.FormValue("path")
		if path == "" {
			return nil, http.StatusBadRequest, errors.New("path is required")
		}
		url, err := ctrl.UploadBlob(r.Context(), middlewares.CredentialFrom(r.Context()), path, file)
		if err != nil {
			return nil, http.StatusBadGateway, err
		}
		return map[string]string{"url": url}, http.StatusCreated, nil
	}))

	if blobs != nil {
		// GET /files/blobs/{key} : streams a stored object. Stable blob URLs
		// land here; img tags pass the token as a query parameter.
		r.Get("/blobs/*", func(w http.ResponseWriter, r *http.Request) {
			obj, err := blobs.Open(r.Context(), chi.URLParam(r, "*"))
			switch {
			case errors.Is(err, storage.ErrInvalidKey):
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			case errors.Is(err, storage.ErrNotFound):
				http.Error(w, "not found", http.StatusNotFound)
				return
			case err != nil:
				log.Error("open blob failed", zap.Error(err))
				http.Error(w, "blob store unavailable", http.StatusBadGateway)
				return
			}
			defer obj.Close()

			if obj.ContentType != "" {
				w.Header().Set("Content-Type", obj.ContentType)
			}
			if obj.Size >= 0 {
				w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
			}
			w.Header().Set("Cache-Control", "private, max-age=86400")
			if _, err := io.Copy(w, obj); err != nil {
				log.Debug("blob download interrupted", zap.String("key", obj.Key), zap.Error(err))
			}
		})
	}

	return r
}

func formFile(r *http.Request) (types.File, func(), error) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		return types.File{}, nil, err
	}
	f, header, err := r.FormFile("file")
	if err != nil {
		return types.File{}, nil, err
	}
	return types.File{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        f,
	}, func() { f.Close() }, nil
}
