package docstore

import (
	"context"
	"database/sql"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newMockPostgresStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock, chan *pq.Notification) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	notifications := make(chan *pq.Notification, 4)
	store := NewPostgresStore(sqlx.NewDb(mockDB, "postgres"), notifications, nil, zap.NewNop())
	t.Cleanup(func() {
		store.Close()
		mockDB.Close()
	})
	return store, mock, notifications
}

func TestBuildSelect(t *testing.T) {
	query, args, err := buildSelect(Collection("chats").
		Where("participants", OpArrayContains, "u1").
		OrderedBy("lastMessageTime", Desc))
	require.NoError(t, err)

	assert.Equal(t, "SELECT id, fields FROM documents WHERE collection = $1"+
		" AND fields @> jsonb_build_object($2::text, $3::jsonb)"+
		" ORDER BY fields -> $4::text DESC, seq ASC", query)
	assert.Equal(t, []any{"chats", "participants", `["u1"]`, "lastMessageTime"}, args)
}

func TestBuildSelectEncodesTimes(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	_, args, err := buildSelect(Collection("chats").Where("lastMessageTime", OpEqual, ts))
	require.NoError(t, err)
	assert.Equal(t, `"2024-05-01T12:00:00.000000000Z"`, args[2])
}

func TestBuildSelectRejectsUnknownOp(t *testing.T) {
	_, _, err := buildSelect(Collection("chats").Where("x", Op(">"), 1))
	assert.Error(t, err)
}

func TestPostgresCreate(t *testing.T) {
	store, mock, _ := newMockPostgresStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO documents (id, collection, fields) VALUES ($1, $2, $3::jsonb)`)).
		WithArgs(sqlmock.AnyArg(), "chats/c1/messages", `{"senderId":"u1","text":"hi"}`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	id, err := store.Create(context.Background(), "chats/c1/messages", map[string]any{"text": "hi", "senderId": "u1"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateUniqueReturnsExisting(t *testing.T) {
	store, mock, _ := newMockPostgresStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO documents (id, collection, unique_key, fields)`)).
		WithArgs(sqlmock.AnyArg(), "chats", "2:u1|u2", sqlmock.AnyArg()).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM documents WHERE collection=$1 AND unique_key=$2`)).
		WithArgs("chats", "2:u1|u2").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("existing"))

	id, created, err := store.CreateUnique(context.Background(), "chats", "2:u1|u2", map[string]any{"participants": []string{"u1", "u2"}})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "existing", id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateUniqueInserts(t *testing.T) {
	store, mock, _ := newMockPostgresStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO documents (id, collection, unique_key, fields)`)).
		WithArgs(sqlmock.AnyArg(), "chats", "2:u1|u2", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("fresh"))

	id, created, err := store.CreateUnique(context.Background(), "chats", "2:u1|u2", map[string]any{})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "fresh", id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateMissing(t *testing.T) {
	store, mock, _ := newMockPostgresStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE documents SET fields = fields || $3::jsonb`)).
		WithArgs("chats", "missing", `{"lastMessage":"hi"}`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Update(context.Background(), "chats", "missing", map[string]any{"lastMessage": "hi"})
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetDecodesFields(t *testing.T) {
	store, mock, _ := newMockPostgresStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, fields FROM documents WHERE collection=$1 AND id=$2`)).
		WithArgs("chats", "c1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "fields"}).
			AddRow("c1", []byte(`{"participants":["u1","u2"],"lastMessage":"yo","lastMessageTime":"2024-05-01T12:00:00.000000000Z"}`)))

	doc, err := store.Get(context.Background(), "chats", "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, StringsValue(doc.Fields["participants"]))
	ts, ok := TimeValue(doc.Fields["lastMessageTime"])
	require.True(t, ok)
	assert.True(t, ts.Equal(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetMissing(t *testing.T) {
	store, mock, _ := newMockPostgresStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, fields FROM documents WHERE collection=$1 AND id=$2`)).
		WithArgs("chats", "nope").
		WillReturnError(sql.ErrNoRows)

	_, err := store.Get(context.Background(), "chats", "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresSubscribeRefreshesOnNotify(t *testing.T) {
	store, mock, notifications := newMockPostgresStore(t)
	selectMessages := regexp.QuoteMeta(`SELECT id, fields FROM documents WHERE collection = $1 ORDER BY fields -> $2::text ASC, seq ASC`)

	mock.ExpectQuery(selectMessages).
		WithArgs("chats/c1/messages", "timestamp").
		WillReturnRows(sqlmock.NewRows([]string{"id", "fields"}))
	mock.ExpectQuery(selectMessages).
		WithArgs("chats/c1/messages", "timestamp").
		WillReturnRows(sqlmock.NewRows([]string{"id", "fields"}).AddRow("m1", []byte(`{"text":"hello"}`)))

	var mu sync.Mutex
	var snaps [][]Document
	unsubscribe, err := store.Subscribe(context.Background(), Collection("chats/c1/messages").OrderedBy("timestamp", Asc), func(docs []Document, err error) {
		mu.Lock()
		snaps = append(snaps, docs)
		mu.Unlock()
	})
	require.NoError(t, err)
	defer unsubscribe()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(snaps) == 1
	}, time.Second, 5*time.Millisecond)

	notifications <- &pq.Notification{Channel: "docstore_changes", Extra: "chats/other/messages"}
	notifications <- &pq.Notification{Channel: "docstore_changes", Extra: "chats/c1/messages"}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(snaps) == 2 && len(snaps[1]) == 1
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.Equal(t, "hello", snaps[1][0].Fields["text"])
	mu.Unlock()
	require.NoError(t, mock.ExpectationsWereMet())
}
