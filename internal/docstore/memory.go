package docstore

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// ErrClosed is returned by a store after Close.
var ErrClosed = errors.New("store closed")

type memDoc struct {
	id     string
	fields map[string]any
	seq    int64
}

// MemoryStore is an in-process Store. Live queries are re-evaluated on every
// write to their collection and delivered on a goroutine per subscription.
type MemoryStore struct {
	mu          sync.Mutex
	seq         int64
	collections map[string]map[string]*memDoc
	unique      map[string]map[string]string
	subs        map[int64]*liveSub
	nextSub     int64
	closed      bool
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]*memDoc),
		unique:      make(map[string]map[string]string),
		subs:        make(map[int64]*liveSub),
	}
}

// Query evaluates q against the current contents.
func (s *MemoryStore) Query(ctx context.Context, q Query) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrap("query", q.Collection, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, wrap("query", q.Collection, ErrClosed)
	}
	return s.evaluateLocked(q), nil
}

// Subscribe registers a live query. The first snapshot is delivered right away.
func (s *MemoryStore) Subscribe(ctx context.Context, q Query, fn SnapshotFunc) (Unsubscribe, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrap("subscribe", q.Collection, err)
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, wrap("subscribe", q.Collection, ErrClosed)
	}
	s.nextSub++
	id := s.nextSub
	sub := newLiveSub(q, fn)
	s.subs[id] = sub
	sub.offer(s.evaluateLocked(q), nil)
	s.mu.Unlock()

	go sub.run()

	unsubscribe := func() {
		sub.stop()
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
	go func() {
		select {
		case <-ctx.Done():
			unsubscribe()
		case <-sub.done:
		}
	}()
	return unsubscribe, nil
}

// Create inserts a document with a generated id.
func (s *MemoryStore) Create(ctx context.Context, collection string, fields map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", wrap("create", collection, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", wrap("create", collection, ErrClosed)
	}
	id := s.insertLocked(collection, fields)
	s.notifyLocked(collection)
	return id, nil
}

// CreateUnique inserts a document unless one with the same key exists.
func (s *MemoryStore) CreateUnique(ctx context.Context, collection, key string, fields map[string]any) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, wrap("create_unique", collection, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", false, wrap("create_unique", collection, ErrClosed)
	}
	keys, ok := s.unique[collection]
	if !ok {
		keys = make(map[string]string)
		s.unique[collection] = keys
	}
	if id, exists := keys[key]; exists {
		return id, false, nil
	}
	id := s.insertLocked(collection, fields)
	keys[key] = id
	s.notifyLocked(collection)
	return id, true, nil
}

// Update merges fields into an existing document.
func (s *MemoryStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return wrap("update", collection, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return wrap("update", collection, ErrClosed)
	}
	doc, ok := s.collections[collection][id]
	if !ok {
		return wrap("update", collection, ErrNotFound)
	}
	for k, v := range cloneFields(fields) {
		doc.fields[k] = v
	}
	s.notifyLocked(collection)
	return nil
}

// Get returns one document by id.
func (s *MemoryStore) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, wrap("get", collection, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Document{}, wrap("get", collection, ErrClosed)
	}
	doc, ok := s.collections[collection][id]
	if !ok {
		return Document{}, wrap("get", collection, ErrNotFound)
	}
	return Document{ID: doc.id, Fields: cloneFields(doc.fields)}, nil
}

// GetByField returns every document whose field equals value.
func (s *MemoryStore) GetByField(ctx context.Context, collection, field string, value any) ([]Document, error) {
	return s.Query(ctx, Collection(collection).Where(field, OpEqual, value))
}

// Close stops every subscription and rejects further calls.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	subs := s.subs
	s.subs = make(map[int64]*liveSub)
	s.closed = true
	s.mu.Unlock()
	for _, sub := range subs {
		sub.stop()
	}
	return nil
}

func (s *MemoryStore) insertLocked(collection string, fields map[string]any) string {
	docs, ok := s.collections[collection]
	if !ok {
		docs = make(map[string]*memDoc)
		s.collections[collection] = docs
	}
	s.seq++
	id := uuid.NewString()
	docs[id] = &memDoc{id: id, fields: cloneFields(fields), seq: s.seq}
	return id
}

func (s *MemoryStore) evaluateLocked(q Query) []Document {
	var found []*memDoc
	for _, doc := range s.collections[q.Collection] {
		if matches(doc.fields, q.Filters) {
			found = append(found, doc)
		}
	}
	sort.Slice(found, func(i, j int) bool {
		for _, o := range q.Order {
			c := compareValues(found[i].fields[o.Field], found[j].fields[o.Field])
			if c == 0 {
				continue
			}
			if o.Direction == Desc {
				return c > 0
			}
			return c < 0
		}
		return found[i].seq < found[j].seq
	})
	out := make([]Document, 0, len(found))
	for _, doc := range found {
		out = append(out, Document{ID: doc.id, Fields: cloneFields(doc.fields)})
	}
	return out
}

func (s *MemoryStore) notifyLocked(collection string) {
	for _, sub := range s.subs {
		if sub.query.Collection == collection {
			sub.offer(s.evaluateLocked(sub.query), nil)
		}
	}
}
