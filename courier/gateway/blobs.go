package gateway

import (
	"context"
	"fmt"

	"courier/courier/types"
	"courier/courier/utils/logging"

	"go.uber.org/zap"
)

const opUploadBlob = "upload_blob"

// UploadBlob stores the first of files at path with contentType and returns
// its retrieval URL, or "" when nothing was uploaded.
func (g *Gateway) UploadBlob(ctx context.Context, path string, files []types.File, contentType string) string {
	if len(files) == 0 || files[0].Body == nil {
		g.fail(opUploadBlob, ErrNoFile)
		return ""
	}
	url, ok := g.upload(ctx, opUploadBlob, path, files[0], contentType)
	if !ok {
		return ""
	}
	g.ok(opUploadBlob)
	return url
}

// upload sends file to key, logging progress, then resolves its URL.
func (g *Gateway) upload(ctx context.Context, op, key string, file types.File, contentType string) (string, bool) {
	defer logging.LogDuration(ctx, "gateway.upload")()

	size := file.Size
	if size == 0 {
		size = -1
	}
	progress := func(sent, total int64) {
		fields := []zap.Field{zap.String("key", key), zap.Int64("sent", sent)}
		if total > 0 {
			fields = append(fields, zap.Float64("percent", float64(sent)*100/float64(total)))
		}
		g.log.Debug("upload progress", fields...)
	}

	n, err := g.blobs.Upload(ctx, key, file.Body, size, contentType, progress)
	if err != nil {
		g.fail(op, fmt.Errorf("upload %s: %w", key, err))
		return "", false
	}
	g.metrics.Uploaded(n)

	url, err := g.blobs.URL(ctx, key)
	if err != nil {
		g.fail(op, fmt.Errorf("retrieval url %s: %w", key, err))
		return "", false
	}
	g.log.Info("upload complete", zap.String("key", key), zap.Int64("bytes", n))
	return url, true
}
