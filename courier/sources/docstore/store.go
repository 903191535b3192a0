// Package docstore implements the path-addressed document store the gateway
// reads and writes: merge upserts, server-assigned timestamps and live
// queries that re-emit the full result whenever it may have changed.
package docstore

import (
	"context"
	"time"

	"courier/courier/types"
)

type Store interface {
	// Add appends a document with a generated id to collection.
	Add(ctx context.Context, collection string, data map[string]any) (types.DocumentRef, error)
	// Set writes the document at path. With merge, fields absent from data
	// keep their stored values.
	Set(ctx context.Context, path string, data map[string]any, merge bool) error
	Delete(ctx context.Context, path string) error
	// Get returns nil, nil when the document does not exist.
	Get(ctx context.Context, path string) (*types.Document, error)
	Query(ctx context.Context, q types.Query) (types.Snapshot, error)
	WatchDocument(ctx context.Context, path string) (<-chan *types.Document, error)
	WatchQuery(ctx context.Context, q types.Query) (<-chan types.Snapshot, error)
}

// resolve copies data, replacing every ServerTimestamp sentinel with now.
func resolve(data map[string]any, now time.Time) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = resolveValue(v, now)
	}
	return out
}

func resolveValue(v any, now time.Time) any {
	switch val := v.(type) {
	case map[string]any:
		return resolve(val, now)
	case []any:
		cp := make([]any, len(val))
		for i := range val {
			cp[i] = resolveValue(val[i], now)
		}
		return cp
	case time.Time:
		return types.FormatTimestamp(val)
	default:
		if types.IsServerTimestamp(v) {
			return types.FormatTimestamp(now)
		}
		return v
	}
}

// mergeFields overlays patch on base at the top level.
func mergeFields(base, patch map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}
