package docstore

import (
	"context"
	"encoding/json"
	"fmt"

	"courier/courier/sources/psql/dao"
	"courier/courier/sources/psql/models"
	"courier/courier/sources/pubsub"
	"courier/courier/types"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SQLStore keeps documents in the documents table. Timestamps come from the
// database clock.
type SQLStore struct {
	dao      *dao.DocumentDAO
	notifier pubsub.Notifier
	log      *zap.Logger
}

func NewSQLStore(docs *dao.DocumentDAO, notifier pubsub.Notifier, log *zap.Logger) *SQLStore {
	return &SQLStore{dao: docs, notifier: notifier, log: log}
}

func (s *SQLStore) Add(ctx context.Context, collection string, data map[string]any) (types.DocumentRef, error) {
	collection, err := types.CleanCollection(collection)
	if err != nil {
		return types.DocumentRef{}, err
	}
	id := uuid.NewString()
	path := collection + "/" + id
	err = s.dao.Transaction(ctx, func(tx *gorm.DB) error {
		now, err := s.dao.Now(tx)
		if err != nil {
			return fmt.Errorf("read server clock: %w", err)
		}
		raw, err := json.Marshal(resolve(data, now))
		if err != nil {
			return err
		}
		return s.dao.Insert(tx, &models.Document{
			Path:       path,
			Collection: collection,
			DocID:      id,
			Data:       datatypes.JSON(raw),
			CreateTime: now,
			UpdateTime: now,
		})
	})
	if err != nil {
		return types.DocumentRef{}, err
	}
	publish(ctx, s.log, s.notifier, collection, path)
	return types.DocumentRef{ID: id, Path: path}, nil
}

func (s *SQLStore) Set(ctx context.Context, path string, data map[string]any, merge bool) error {
	collection, id, err := types.SplitPath(path)
	if err != nil {
		return err
	}
	path = collection + "/" + id
	err = s.dao.Transaction(ctx, func(tx *gorm.DB) error {
		now, err := s.dao.Now(tx)
		if err != nil {
			return fmt.Errorf("read server clock: %w", err)
		}
		fields := resolve(data, now)
		created := now
		if merge {
			// concurrent merges onto a new path contend on this row
			if err := s.dao.InsertIfAbsent(tx, &models.Document{
				Path:       path,
				Collection: collection,
				DocID:      id,
				Data:       datatypes.JSON("{}"),
				CreateTime: now,
				UpdateTime: now,
			}); err != nil {
				return err
			}
			existing, err := s.dao.Lock(tx, path)
			if err != nil {
				return err
			}
			if existing != nil {
				stored, err := decode(existing.Data)
				if err != nil {
					return fmt.Errorf("decode %s: %w", path, err)
				}
				fields = mergeFields(stored, fields)
				created = existing.CreateTime
			}
		}
		raw, err := json.Marshal(fields)
		if err != nil {
			return err
		}
		return s.dao.Upsert(tx, &models.Document{
			Path:       path,
			Collection: collection,
			DocID:      id,
			Data:       datatypes.JSON(raw),
			CreateTime: created,
			UpdateTime: now,
		})
	})
	if err != nil {
		return err
	}
	publish(ctx, s.log, s.notifier, collection, path)
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, path string) error {
	collection, id, err := types.SplitPath(path)
	if err != nil {
		return err
	}
	path = collection + "/" + id
	n, err := s.dao.Delete(ctx, path)
	if err != nil {
		return err
	}
	if n > 0 {
		publish(ctx, s.log, s.notifier, collection, path)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, path string) (*types.Document, error) {
	collection, id, err := types.SplitPath(path)
	if err != nil {
		return nil, err
	}
	row, err := s.dao.Get(ctx, collection+"/"+id)
	if err != nil || row == nil {
		return nil, err
	}
	doc, err := toDocument(*row)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *SQLStore) Query(ctx context.Context, q types.Query) (types.Snapshot, error) {
	collection, err := types.CleanCollection(q.Collection)
	if err != nil {
		return nil, err
	}
	rows, err := s.dao.List(ctx, collection, q.OrderBy, q.Descending, q.Limit)
	if err != nil {
		return nil, err
	}
	snap := make(types.Snapshot, 0, len(rows))
	for _, row := range rows {
		doc, err := toDocument(row)
		if err != nil {
			return nil, err
		}
		snap = append(snap, doc)
	}
	return snap, nil
}

func (s *SQLStore) WatchDocument(ctx context.Context, path string) (<-chan *types.Document, error) {
	collection, id, err := types.SplitPath(path)
	if err != nil {
		return nil, err
	}
	path = collection + "/" + id
	return watch(ctx, s.log, s.notifier, []string{pubsub.DocumentTopic(path)}, func(ctx context.Context) (*types.Document, error) {
		return s.Get(ctx, path)
	})
}

func (s *SQLStore) WatchQuery(ctx context.Context, q types.Query) (<-chan types.Snapshot, error) {
	collection, err := types.CleanCollection(q.Collection)
	if err != nil {
		return nil, err
	}
	q.Collection = collection
	return watch(ctx, s.log, s.notifier, []string{pubsub.CollectionTopic(collection)}, func(ctx context.Context) (types.Snapshot, error) {
		return s.Query(ctx, q)
	})
}

func toDocument(row models.Document) (types.Document, error) {
	data, err := decode(row.Data)
	if err != nil {
		return types.Document{}, fmt.Errorf("decode %s: %w", row.Path, err)
	}
	return types.Document{ID: row.DocID, Path: row.Path, Data: data}, nil
}

func decode(raw datatypes.JSON) (map[string]any, error) {
	data := map[string]any{}
	if len(raw) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	return data, nil
}
