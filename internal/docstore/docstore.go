package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a document addressed by id does not exist.
var ErrNotFound = errors.New("document not found")

// Op is a filter operator supported by every driver.
type Op string

const (
	OpEqual         Op = "=="
	OpArrayContains Op = "array-contains"
)

// Direction orders query results on a field.
type Direction int

const (
	Asc Direction = iota
	Desc
)

// Filter restricts a query to documents whose field matches value under op.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// OrderBy sorts query results by one field.
type OrderBy struct {
	Field     string
	Direction Direction
}

// Query addresses a collection with optional filters and ordering.
type Query struct {
	Collection string
	Filters    []Filter
	Order      []OrderBy
}

// Where returns a copy of q with an additional filter.
func (q Query) Where(field string, op Op, value any) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), Filter{Field: field, Op: op, Value: value})
	return q
}

// OrderedBy returns a copy of q with an additional ordering.
func (q Query) OrderedBy(field string, dir Direction) Query {
	q.Order = append(append([]OrderBy(nil), q.Order...), OrderBy{Field: field, Direction: dir})
	return q
}

// Collection starts a query on path.
func Collection(path string) Query {
	return Query{Collection: path}
}

// Document is one stored record.
type Document struct {
	ID     string
	Fields map[string]any
}

// SnapshotFunc receives a full ordered result set on every change. When a
// delivery fails docs is nil and err describes the failure.
type SnapshotFunc func(docs []Document, err error)

// Unsubscribe stops a live subscription. Calling it more than once is a no-op.
type Unsubscribe func()

// Store is the backend data service shared by all messaging components.
type Store interface {
	Query(ctx context.Context, q Query) ([]Document, error)
	Subscribe(ctx context.Context, q Query, fn SnapshotFunc) (Unsubscribe, error)
	Create(ctx context.Context, collection string, fields map[string]any) (string, error)
	CreateUnique(ctx context.Context, collection, key string, fields map[string]any) (id string, created bool, err error)
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	Get(ctx context.Context, collection, id string) (Document, error)
	GetByField(ctx context.Context, collection, field string, value any) ([]Document, error)
	Close() error
}

// Error wraps every failure reported by a driver.
type Error struct {
	Op         string
	Collection string
	Err        error
}

func (e *Error) Error() string {
	if e.Collection == "" {
		return fmt.Sprintf("docstore %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("docstore %s %s: %v", e.Op, e.Collection, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func wrap(op, collection string, err error) error {
	if err == nil {
		return nil
	}
	var dsErr *Error
	if errors.As(err, &dsErr) {
		return err
	}
	return &Error{Op: op, Collection: collection, Err: err}
}

// Path joins collection and document segments, e.g. Path("chats", id, "messages").
func Path(segments ...string) string {
	return strings.Join(segments, "/")
}
