package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"lostfound-chat/internal/db"
)

// PostgresStore keeps every document in one JSONB table. Live queries are
// re-run whenever the documents trigger notifies their collection.
type PostgresStore struct {
	db        *sqlx.DB
	logger    *zap.Logger
	listener  io.Closer
	mu        sync.Mutex
	subs      map[int64]*liveSub
	nextSub   int64
	initial   chan *liveSub
	done      chan struct{}
	closeOnce sync.Once
}

type documentRow struct {
	ID     string `db:"id"`
	Fields []byte `db:"fields"`
}

// OpenPostgres attaches a LISTEN connection on dsn and returns a store over conn.
func OpenPostgres(conn *sqlx.DB, dsn string, logger *zap.Logger) (*PostgresStore, error) {
	listener := pq.NewListener(dsn, 2*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logger.Warn("docstore listener event", zap.Int("event", int(ev)), zap.Error(err))
		}
	})
	if err := listener.Listen(db.ChangeChannel); err != nil {
		listener.Close()
		return nil, wrap("listen", "", err)
	}
	return NewPostgresStore(conn, listener.Notify, listener, logger), nil
}

// NewPostgresStore builds a store fed by notifications. A nil notification
// means the listener reconnected and every subscription is refreshed.
func NewPostgresStore(conn *sqlx.DB, notifications <-chan *pq.Notification, listener io.Closer, logger *zap.Logger) *PostgresStore {
	s := &PostgresStore{
		db:       conn,
		logger:   logger,
		listener: listener,
		subs:     make(map[int64]*liveSub),
		initial:  make(chan *liveSub),
		done:     make(chan struct{}),
	}
	go s.dispatch(notifications)
	return s
}

// Query runs q once.
func (s *PostgresStore) Query(ctx context.Context, q Query) ([]Document, error) {
	query, args, err := buildSelect(q)
	if err != nil {
		return nil, wrap("query", q.Collection, err)
	}
	var rows []documentRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, wrap("query", q.Collection, err)
	}
	docs := make([]Document, 0, len(rows))
	for _, row := range rows {
		fields, err := decodeFields(row.Fields)
		if err != nil {
			return nil, wrap("query", q.Collection, err)
		}
		docs = append(docs, Document{ID: row.ID, Fields: fields})
	}
	return docs, nil
}

// Subscribe registers a live query; its first snapshot is produced by the dispatcher.
func (s *PostgresStore) Subscribe(ctx context.Context, q Query, fn SnapshotFunc) (Unsubscribe, error) {
	if _, _, err := buildSelect(q); err != nil {
		return nil, wrap("subscribe", q.Collection, err)
	}
	sub := newLiveSub(q, fn)
	s.mu.Lock()
	s.nextSub++
	id := s.nextSub
	s.subs[id] = sub
	s.mu.Unlock()

	select {
	case s.initial <- sub:
	case <-s.done:
		s.remove(id, sub)
		return nil, wrap("subscribe", q.Collection, ErrClosed)
	case <-ctx.Done():
		s.remove(id, sub)
		return nil, wrap("subscribe", q.Collection, ctx.Err())
	}
	go sub.run()

	unsubscribe := func() { s.remove(id, sub) }
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
func (s *PostgresStore) Create(ctx context.Context, collection string, fields map[string]any) (string, error) {
	body, err := encodeFields(fields)
	if err != nil {
		return "", wrap("create", collection, err)
	}
	id := uuid.NewString()
	if _, err := s.db.ExecContext(ctx, `INSERT INTO documents (id, collection, fields) VALUES ($1, $2, $3::jsonb)`, id, collection, body); err != nil {
		return "", wrap("create", collection, err)
	}
	return id, nil
}

// CreateUnique relies on the (collection, unique_key) constraint, so concurrent
// callers with one key converge on a single document.
func (s *PostgresStore) CreateUnique(ctx context.Context, collection, key string, fields map[string]any) (string, bool, error) {
	body, err := encodeFields(fields)
	if err != nil {
		return "", false, wrap("create_unique", collection, err)
	}
	var id string
	err = s.db.QueryRowxContext(ctx, `INSERT INTO documents (id, collection, unique_key, fields) VALUES ($1, $2, $3, $4::jsonb)
        ON CONFLICT (collection, unique_key) DO NOTHING RETURNING id`, uuid.NewString(), collection, key, body).Scan(&id)
	if err == nil {
		return id, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", false, wrap("create_unique", collection, err)
	}
	if err := s.db.GetContext(ctx, &id, `SELECT id FROM documents WHERE collection=$1 AND unique_key=$2`, collection, key); err != nil {
		return "", false, wrap("create_unique", collection, err)
	}
	return id, false, nil
}

// Update merges fields into an existing document.
func (s *PostgresStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	body, err := encodeFields(fields)
	if err != nil {
		return wrap("update", collection, err)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE documents SET fields = fields || $3::jsonb, updated_at = NOW() WHERE collection=$1 AND id=$2`, collection, id, body)
	if err != nil {
		return wrap("update", collection, err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return wrap("update", collection, err)
	}
	if count == 0 {
		return wrap("update", collection, ErrNotFound)
	}
	return nil
}

// Get fetches one document by id.
func (s *PostgresStore) Get(ctx context.Context, collection, id string) (Document, error) {
	var row documentRow
	err := s.db.GetContext(ctx, &row, `SELECT id, fields FROM documents WHERE collection=$1 AND id=$2`, collection, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, wrap("get", collection, ErrNotFound)
	}
	if err != nil {
		return Document{}, wrap("get", collection, err)
	}
	fields, err := decodeFields(row.Fields)
	if err != nil {
		return Document{}, wrap("get", collection, err)
	}
	return Document{ID: row.ID, Fields: fields}, nil
}

// GetByField returns every document whose field equals value.
func (s *PostgresStore) GetByField(ctx context.Context, collection, field string, value any) ([]Document, error) {
	return s.Query(ctx, Collection(collection).Where(field, OpEqual, value))
}

// Close stops the dispatcher, every subscription and the listener. The
// underlying *sqlx.DB stays open for its owner.
func (s *PostgresStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.mu.Lock()
		subs := s.subs
		s.subs = make(map[int64]*liveSub)
		s.mu.Unlock()
		for _, sub := range subs {
			sub.stop()
		}
		if s.listener != nil {
			err = s.listener.Close()
		}
	})
	return err
}

func (s *PostgresStore) remove(id int64, sub *liveSub) {
	sub.stop()
	s.mu.Lock()
	delete(s.subs, id)
	s.mu.Unlock()
}

// dispatch is the only goroutine producing snapshots, which keeps each
// subscription's deliveries in notification order.
func (s *PostgresStore) dispatch(notifications <-chan *pq.Notification) {
	for {
		select {
		case <-s.done:
			return
		case sub := <-s.initial:
			s.deliver(sub)
		case n, ok := <-notifications:
			if !ok {
				return
			}
			collection := ""
			if n != nil {
				collection = n.Extra
			}
			s.refresh(collection)
		}
	}
}

func (s *PostgresStore) refresh(collection string) {
	s.mu.Lock()
	targets := make([]*liveSub, 0, len(s.subs))
	for _, sub := range s.subs {
		if collection == "" || sub.query.Collection == collection {
			targets = append(targets, sub)
		}
	}
	s.mu.Unlock()
	for _, sub := range targets {
		s.deliver(sub)
	}
}

func (s *PostgresStore) deliver(sub *liveSub) {
	if sub.stopped() {
		return
	}
	docs, err := s.Query(context.Background(), sub.query)
	if err != nil {
		s.logger.Warn("docstore snapshot failed", zap.String("collection", sub.query.Collection), zap.Error(err))
	}
	sub.offer(docs, err)
}

func buildSelect(q Query) (string, []any, error) {
	var b strings.Builder
	args := []any{q.Collection}
	b.WriteString("SELECT id, fields FROM documents WHERE collection = $1")
	for _, f := range q.Filters {
		value := encodeValue(f.Value)
		switch f.Op {
		case OpEqual:
		case OpArrayContains:
			value = []any{value}
		default:
			return "", nil, fmt.Errorf("unsupported filter op %q", f.Op)
		}
		body, err := json.Marshal(value)
		if err != nil {
			return "", nil, err
		}
		args = append(args, f.Field, string(body))
		fmt.Fprintf(&b, " AND fields @> jsonb_build_object($%d::text, $%d::jsonb)", len(args)-1, len(args))
	}
	b.WriteString(" ORDER BY ")
	for _, o := range q.Order {
		args = append(args, o.Field)
		dir := "ASC"
		if o.Direction == Desc {
			dir = "DESC"
		}
		fmt.Fprintf(&b, "fields -> $%d::text %s, ", len(args), dir)
	}
	b.WriteString("seq ASC")
	return b.String(), args, nil
}

func encodeValue(v any) any {
	switch t := v.(type) {
	case time.Time:
		return FormatTime(t)
	case *time.Time:
		if t == nil {
			return nil
		}
		return FormatTime(*t)
	}
	return v
}

func encodeFields(fields map[string]any) (string, error) {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = encodeValue(v)
	}
	body, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func decodeFields(raw []byte) (map[string]any, error) {
	fields := map[string]any{}
	if len(raw) == 0 {
		return fields, nil
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	return fields, nil
}
