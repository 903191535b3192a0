package docstore

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"courier/courier/sources/pubsub"
	"courier/courier/types"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type memDoc struct {
	collection string
	id         string
	raw        []byte
}

// MemoryStore is a process-local Store for development and tests. Values
// pass through JSON on the way in and out, as they do in SQLStore.
type MemoryStore struct {
	mu       sync.RWMutex
	docs     map[string]memDoc
	clock    func() time.Time
	notifier pubsub.Notifier
	log      *zap.Logger
}

func NewMemoryStore(notifier pubsub.Notifier, log *zap.Logger) *MemoryStore {
	return &MemoryStore{
		docs:     make(map[string]memDoc),
		clock:    time.Now,
		notifier: notifier,
		log:      log,
	}
}

// SetClock replaces the store clock used for server timestamps.
func (m *MemoryStore) SetClock(clock func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock = clock
}

func (m *MemoryStore) Add(ctx context.Context, collection string, data map[string]any) (types.DocumentRef, error) {
	collection, err := types.CleanCollection(collection)
	if err != nil {
		return types.DocumentRef{}, err
	}
	id := uuid.NewString()
	path := collection + "/" + id

	m.mu.Lock()
	raw, err := json.Marshal(resolve(data, m.clock()))
	if err == nil {
		m.docs[path] = memDoc{collection: collection, id: id, raw: raw}
	}
	m.mu.Unlock()
	if err != nil {
		return types.DocumentRef{}, err
	}

	publish(ctx, m.log, m.notifier, collection, path)
	return types.DocumentRef{ID: id, Path: path}, nil
}

func (m *MemoryStore) Set(ctx context.Context, path string, data map[string]any, merge bool) error {
	collection, id, err := types.SplitPath(path)
	if err != nil {
		return err
	}
	path = collection + "/" + id

	m.mu.Lock()
	err = func() error {
		fields := resolve(data, m.clock())
		if existing, ok := m.docs[path]; ok && merge {
			stored := map[string]any{}
			if err := json.Unmarshal(existing.raw, &stored); err != nil {
				return err
			}
			fields = mergeFields(stored, fields)
		}
		raw, err := json.Marshal(fields)
		if err != nil {
			return err
		}
		m.docs[path] = memDoc{collection: collection, id: id, raw: raw}
		return nil
	}()
	m.mu.Unlock()
	if err != nil {
		return err
	}

	publish(ctx, m.log, m.notifier, collection, path)
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, path string) error {
	collection, id, err := types.SplitPath(path)
	if err != nil {
		return err
	}
	path = collection + "/" + id

	m.mu.Lock()
	_, existed := m.docs[path]
	delete(m.docs, path)
	m.mu.Unlock()

	if existed {
		publish(ctx, m.log, m.notifier, collection, path)
	}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, path string) (*types.Document, error) {
	collection, id, err := types.SplitPath(path)
	if err != nil {
		return nil, err
	}
	path = collection + "/" + id

	m.mu.RLock()
	d, ok := m.docs[path]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	doc, err := d.document(path)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (m *MemoryStore) Query(_ context.Context, q types.Query) (types.Snapshot, error) {
	collection, err := types.CleanCollection(q.Collection)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	snap := make(types.Snapshot, 0)
	for path, d := range m.docs {
		if d.collection != collection {
			continue
		}
		doc, err := d.document(path)
		if err != nil {
			m.mu.RUnlock()
			return nil, err
		}
		if q.OrderBy != "" {
			if v, ok := doc.Data[q.OrderBy]; !ok || v == nil {
				continue
			}
		}
		snap = append(snap, doc)
	}
	m.mu.RUnlock()

	sort.SliceStable(snap, func(i, j int) bool {
		c := 0
		if q.OrderBy != "" {
			c = compareValues(snap[i].Data[q.OrderBy], snap[j].Data[q.OrderBy])
		}
		if c == 0 {
			c = compareValues(snap[i].ID, snap[j].ID)
		}
		if q.Descending {
			return c > 0
		}
		return c < 0
	})
	if q.Limit > 0 && len(snap) > q.Limit {
		snap = snap[:q.Limit]
	}
	return snap, nil
}

func (m *MemoryStore) WatchDocument(ctx context.Context, path string) (<-chan *types.Document, error) {
	collection, id, err := types.SplitPath(path)
	if err != nil {
		return nil, err
	}
	path = collection + "/" + id
	return watch(ctx, m.log, m.notifier, []string{pubsub.DocumentTopic(path)}, func(ctx context.Context) (*types.Document, error) {
		return m.Get(ctx, path)
	})
}

func (m *MemoryStore) WatchQuery(ctx context.Context, q types.Query) (<-chan types.Snapshot, error) {
	collection, err := types.CleanCollection(q.Collection)
	if err != nil {
		return nil, err
	}
	q.Collection = collection
	return watch(ctx, m.log, m.notifier, []string{pubsub.CollectionTopic(collection)}, func(ctx context.Context) (types.Snapshot, error) {
		return m.Query(ctx, q)
	})
}

func (d memDoc) document(path string) (types.Document, error) {
	data := map[string]any{}
	if err := json.Unmarshal(d.raw, &data); err != nil {
		return types.Document{}, err
	}
	return types.Document{ID: d.id, Path: path, Data: data}, nil
}

// compareValues orders JSON values: null < bool < number < string < other.
func compareValues(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return ra - rb
	}
	switch av := a.(type) {
	case bool:
		bv := b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		default:
			return 1
		}
	case float64:
		bv := b.(float64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case string:
		bv := b.(string)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	}
	return 0
}

func rank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64:
		return 2
	case string:
		return 3
	default:
		return 4
	}
}
