package gateway

import (
	"context"
	"fmt"

	"courier/courier/types"

	"go.uber.org/zap"
)

const (
	opReadDocument   = "read_document"
	opReadCollection = "read_collection"
	opWriteDocument  = "write_document"
	opDeleteDocument = "delete_document"
)

// ReadDocument streams the document at path; nil means it does not exist.
func (g *Gateway) ReadDocument(ctx context.Context, path string) <-chan *types.Document {
	ch, err := g.documents.WatchDocument(ctx, path)
	if err != nil {
		g.fail(opReadDocument, fmt.Errorf("watch %s: %w", path, err))
		closed := make(chan *types.Document)
		close(closed)
		return closed
	}
	g.ok(opReadDocument)
	return ch
}

// ReadCollection streams every document of the collection at path.
func (g *Gateway) ReadCollection(ctx context.Context, path string) <-chan types.Snapshot {
	ch, err := g.documents.WatchQuery(ctx, types.Query{Collection: path})
	if err != nil {
		g.fail(opReadCollection, fmt.Errorf("watch %s: %w", path, err))
		closed := make(chan types.Snapshot)
		close(closed)
		return closed
	}
	g.ok(opReadCollection)
	return ch
}

// WriteDocument merges data into the document at path, creating it if needed.
func (g *Gateway) WriteDocument(ctx context.Context, path string, data map[string]any) {
	if err := g.documents.Set(ctx, path, data, true); err != nil {
		g.fail(opWriteDocument, fmt.Errorf("write %s: %w", path, err))
		return
	}
	g.ok(opWriteDocument)
	g.log.Debug("document written", zap.String("path", path))
}

func (g *Gateway) DeleteDocument(ctx context.Context, path string) {
	if err := g.documents.Delete(ctx, path); err != nil {
		g.fail(opDeleteDocument, fmt.Errorf("delete %s: %w", path, err))
		return
	}
	g.ok(opDeleteDocument)
	g.log.Debug("document deleted", zap.String("path", path))
}
