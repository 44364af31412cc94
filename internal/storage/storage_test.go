package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"steamwatch/internal/tracker"
	"steamwatch/internal/watch"
	logx "steamwatch/pkg/logx"
)

func TestOpenDisabledAndUnknown(t *testing.T) {
	st, err := Open(Config{Driver: "none"}, logx.Nop())
	require.NoError(t, err)
	assert.Nil(t, st)

	_, err = Open(Config{Driver: "redis"}, logx.Nop())
	assert.Error(t, err)

	_, err = Open(Config{Driver: "file"}, logx.Nop())
	assert.Error(t, err, "file driver needs a path")
}

func TestFileStoreAuditAndDedup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data", "steamwatch.db")
	ctx := context.Background()

	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)

	j := NewJournal(st)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, j.Subscribed(ctx, 7, watch.WatchRecord{ItemID: "570", DisplayName: "Dota 2", SubscribedAt: at}))
	require.NoError(t, j.PriceDropped(ctx, 7, tracker.Payload{ItemID: "620", Name: "Portal 2", OldPrice: 1000, NewPrice: 250, DiscountPercent: 75}))
	require.NoError(t, j.Unsubscribed(ctx, 7, "570"))

	until := time.Now().Add(time.Hour).Truncate(time.Millisecond)
	require.NoError(t, st.PutDedup(ctx, "drop:7:620:250", until))
	require.NoError(t, st.PutDedup(ctx, "stale", time.Now().Add(-time.Hour)))
	require.NoError(t, st.Close())

	f, err := os.Open(filepath.Join(dir, "data", "steamwatch.audit.jsonl"))
	require.NoError(t, err)
	defer f.Close()
	var actions []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e AuditEntry
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		actions = append(actions, e.Action)
		if e.Action == ActionPriceDrop {
			assert.Equal(t, "discount=75", e.Meta)
			assert.Equal(t, int64(250), e.NewPrice)
		}
	}
	assert.Equal(t, []string{ActionSubscribe, ActionPriceDrop, ActionUnsubscribe}, actions)

	// dedup survives a reopen; expired keys do not
	st2, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	defer st2.Close()
	got, ok, err := st2.GetDedup(ctx, "drop:7:620:250")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Equal(until))
	_, ok, _ = st2.GetDedup(ctx, "stale")
	assert.False(t, ok)
}

func TestJournalNilStoreIsNoop(t *testing.T) {
	j := NewJournal(nil)
	assert.NoError(t, j.Unsubscribed(context.Background(), 1, "1"))
}

func newMockStore(t *testing.T) (*sqliteStore, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	st := newSQLiteStore(sqlx.NewDb(mockDB, "sqlmock"), logx.Nop())
	st.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return st, mock
}

func TestSQLiteMigrate(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS audit")).WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, st.migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteAppendAudit(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit")).
		WithArgs("2026-03-01T12:00:00Z", int64(7), ActionPriceDrop, "620", "Portal 2", int64(1000), int64(250), "discount=75").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := NewJournal(st).PriceDropped(context.Background(), 7, tracker.Payload{
		ItemID: "620", Name: "Portal 2", OldPrice: 1000, NewPrice: 250, DiscountPercent: 75,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteUnsubscribeWritesNulls(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit")).
		WithArgs(sqlmock.AnyArg(), int64(3), ActionUnsubscribe, "570", nil, int64(0), int64(0), nil).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, NewJournal(st).Unsubscribed(context.Background(), 3, "570"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteDedup(t *testing.T) {
	st, mock := newMockStore(t)
	ctx := context.Background()
	until := time.UnixMilli(1_800_000_000_000)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO dedup(key, until)")).
		WithArgs("k", until.UnixMilli()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, st.PutDedup(ctx, "k", until))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT until FROM dedup WHERE key = ?")).
		WithArgs("k").
		WillReturnRows(sqlmock.NewRows([]string{"until"}).AddRow(until.UnixMilli()))
	got, ok, err := st.GetDedup(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Equal(until))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT until FROM dedup")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"until"}))
	_, ok, err = st.GetDedup(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}
