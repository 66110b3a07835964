package docstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	gfs "cloud.google.com/go/firestore"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// uniqueKeysCollection stores one marker document per CreateUnique key.
const uniqueKeysCollection = "docstore_unique_keys"

// FirestoreStore backs Store with Cloud Firestore. Collection paths map
// directly to Firestore paths, e.g. "chats/{id}/messages".
type FirestoreStore struct {
	client *gfs.Client
}

// OpenFirestore dials Firestore for projectID. credentialsFile may be empty to
// use application default credentials.
func OpenFirestore(ctx context.Context, projectID, credentialsFile string) (*FirestoreStore, error) {
	opts := []option.ClientOption{
		option.WithGRPCDialOption(grpc.WithStatsHandler(otelgrpc.NewClientHandler())),
	}
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := gfs.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, wrap("connect", "", err)
	}
	return NewFirestoreStore(client), nil
}

// NewFirestoreStore wraps an existing client.
func NewFirestoreStore(client *gfs.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

func (s *FirestoreStore) build(q Query) (gfs.Query, error) {
	query := s.client.Collection(q.Collection).Query
	for _, f := range q.Filters {
		switch f.Op {
		case OpEqual, OpArrayContains:
			query = query.Where(f.Field, string(f.Op), f.Value)
		default:
			return query, fmt.Errorf("unsupported filter op %q", f.Op)
		}
	}
	for _, o := range q.Order {
		dir := gfs.Asc
		if o.Direction == Desc {
			dir = gfs.Desc
		}
		query = query.OrderBy(o.Field, dir)
	}
	return query, nil
}

// Query runs q once.
func (s *FirestoreStore) Query(ctx context.Context, q Query) ([]Document, error) {
	query, err := s.build(q)
	if err != nil {
		return nil, wrap("query", q.Collection, err)
	}
	snaps, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, wrap("query", q.Collection, mapFirestoreError(err))
	}
	return fromSnapshots(snaps), nil
}

// Subscribe listens on q. The Firestore watch stream reconnects on transient
// failures by itself; an error returned by the iterator is permanent, so it is
// handed to fn once and the listener goes idle until unsubscribed.
func (s *FirestoreStore) Subscribe(ctx context.Context, q Query, fn SnapshotFunc) (Unsubscribe, error) {
	query, err := s.build(q)
	if err != nil {
		return nil, wrap("subscribe", q.Collection, err)
	}
	listenCtx, cancel := context.WithCancel(ctx)
	it := firestoreIterator{it: query.Snapshots(listenCtx), cancel: cancel}
	_, unsubscribe := watch(listenCtx, q, it, fn)
	return unsubscribe, nil
}

// snapshotIterator yields the full result set of a live query on every change.
type snapshotIterator interface {
	Next() ([]Document, error)
	Stop()
}

type firestoreIterator struct {
	it     *gfs.QuerySnapshotIterator
	cancel context.CancelFunc
}

func (f firestoreIterator) Next() ([]Document, error) {
	snap, err := f.it.Next()
	if err != nil {
		return nil, err
	}
	docs, err := snap.Documents.GetAll()
	if err != nil {
		return nil, err
	}
	return fromSnapshots(docs), nil
}

func (f firestoreIterator) Stop() {
	f.cancel()
	f.it.Stop()
}

// watch pumps it into a liveSub until ctx ends, the iterator finishes or the
// returned Unsubscribe is called.
func watch(ctx context.Context, q Query, it snapshotIterator, fn SnapshotFunc) (*liveSub, Unsubscribe) {
	sub := newLiveSub(q, fn)
	go sub.run()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			sub.stop()
			it.Stop()
		})
	}

	go func() {
		for {
			docs, err := it.Next()
			if err != nil {
				if ctx.Err() != nil || status.Code(err) == codes.Canceled || errors.Is(err, iterator.Done) {
					unsubscribe()
					return
				}
				sub.offer(nil, wrap("subscribe", q.Collection, mapFirestoreError(err)))
				return
			}
			sub.offer(docs, nil)
		}
	}()
	go func() {
		select {
		case <-ctx.Done():
			unsubscribe()
		case <-sub.done:
		}
	}()
	return sub, unsubscribe
}

// Create adds a document with an id assigned by Firestore.
func (s *FirestoreStore) Create(ctx context.Context, collection string, fields map[string]any) (string, error) {
	ref, _, err := s.client.Collection(collection).Add(ctx, fields)
	if err != nil {
		return "", wrap("create", collection, mapFirestoreError(err))
	}
	return ref.ID, nil
}

// CreateUnique writes the document and a key marker in one transaction.
func (s *FirestoreStore) CreateUnique(ctx context.Context, collection, key string, fields map[string]any) (string, bool, error) {
	marker := s.client.Collection(uniqueKeysCollection).Doc(uniqueKeyID(collection, key))
	var id string
	var created bool
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *gfs.Transaction) error {
		created = false
		snap, err := tx.Get(marker)
		if err == nil {
			existing, ok := snap.Data()["id"].(string)
			if !ok || existing == "" {
				return fmt.Errorf("unique key marker %s has no id", marker.ID)
			}
			id = existing
			return nil
		}
		if status.Code(err) != codes.NotFound {
			return err
		}
		ref := s.client.Collection(collection).NewDoc()
		if err := tx.Create(ref, fields); err != nil {
			return err
		}
		if err := tx.Create(marker, map[string]any{"id": ref.ID, "collection": collection, "key": key}); err != nil {
			return err
		}
		id, created = ref.ID, true
		return nil
	})
	if err != nil {
		return "", false, wrap("create_unique", collection, mapFirestoreError(err))
	}
	return id, created, nil
}

// Update patches fields of an existing document; Firestore rejects missing ones.
func (s *FirestoreStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	updates := make([]gfs.Update, 0, len(fields))
	for k, v := range fields {
		updates = append(updates, gfs.Update{FieldPath: gfs.FieldPath{k}, Value: v})
	}
	if _, err := s.client.Collection(collection).Doc(id).Update(ctx, updates); err != nil {
		return wrap("update", collection, mapFirestoreError(err))
	}
	return nil
}

// Get fetches one document by id.
func (s *FirestoreStore) Get(ctx context.Context, collection, id string) (Document, error) {
	snap, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		return Document{}, wrap("get", collection, mapFirestoreError(err))
	}
	return Document{ID: snap.Ref.ID, Fields: snap.Data()}, nil
}

// GetByField returns every document whose field equals value.
func (s *FirestoreStore) GetByField(ctx context.Context, collection, field string, value any) ([]Document, error) {
	return s.Query(ctx, Collection(collection).Where(field, OpEqual, value))
}

// Close releases the client.
func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

func fromSnapshots(snaps []*gfs.DocumentSnapshot) []Document {
	docs := make([]Document, 0, len(snaps))
	for _, snap := range snaps {
		docs = append(docs, Document{ID: snap.Ref.ID, Fields: snap.Data()})
	}
	return docs
}

func uniqueKeyID(collection, key string) string {
	sum := sha256.Sum256([]byte(collection + "\x00" + key))
	return hex.EncodeToString(sum[:])
}

func mapFirestoreError(err error) error {
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}
