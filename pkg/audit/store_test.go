package audit

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testGuildID = "123456789012345678"
	testUserID  = "876543210987654321"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock
}

func TestNewPostgresStore(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		mock.ExpectExec("CREATE TABLE IF NOT EXISTS denial_events").WillReturnResult(sqlmock.NewResult(0, 0))

		store, err := NewPostgresStore(db)
		require.NoError(t, err)
		assert.NotNil(t, store)
	})

	t.Run("nil database", func(t *testing.T) {
		store, err := NewPostgresStore(nil)
		assert.Error(t, err)
		assert.Nil(t, store)
	})
}

func TestPostgresStore_Insert(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()
		store := &PostgresStore{db: db}

		event := &DenialEvent{
			ID:               "a6e1b4f0-1111-2222-3333-444455556666",
			GuildID:          testGuildID,
			UserID:           testUserID,
			CommandAttempted: "signals",
			Reason:           "no_subscription",
			UserRoleIDs:      []string{"111111111111111111"},
			RequiredRoleIDs:  []string{"222222222222222222"},
			WasInformed:      true,
			CreatedAt:        time.Now().UTC(),
		}

		mock.ExpectExec("INSERT INTO denial_events").
			WithArgs(event.ID, event.GuildID, event.UserID, event.CommandAttempted, event.Reason,
				sqlmock.AnyArg(), sqlmock.AnyArg(), event.WasInformed, event.CreatedAt).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := store.Insert(context.Background(), event)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("store failure", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()
		store := &PostgresStore{db: db}

		mock.ExpectExec("INSERT INTO denial_events").WillReturnError(errors.New("disk full"))

		err := store.Insert(context.Background(), &DenialEvent{ID: "x", CreatedAt: time.Now()})
		assert.Error(t, err)
	})
}

func TestPostgresStore_Query(t *testing.T) {
	columns := []string{"id", "guild_id", "user_id", "command_attempted", "reason",
		"user_role_ids", "required_role_ids", "was_informed", "created_at"}

	t.Run("filters by guild and reason", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()
		store := &PostgresStore{db: db}

		now := time.Now()
		mock.ExpectQuery("SELECT id, guild_id, user_id, command_attempted").
			WithArgs(testGuildID, "no_subscription", 100).
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow("id-1", testGuildID, testUserID, "signals", "no_subscription",
					pq.Array([]string{}), pq.Array([]string{"222222222222222222"}), false, now))

		events, err := store.Query(context.Background(), &Filters{
			GuildID: testGuildID,
			Reason:  "no_subscription",
		})
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, testGuildID, events[0].GuildID)
		assert.Equal(t, "no_subscription", events[0].Reason)
		assert.Equal(t, []string{"222222222222222222"}, events[0].RequiredRoleIDs)
	})

	t.Run("nil filters default limit", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()
		store := &PostgresStore{db: db}

		mock.ExpectQuery("SELECT id, guild_id, user_id, command_attempted").
			WithArgs(100).
			WillReturnRows(sqlmock.NewRows(columns))

		events, err := store.Query(context.Background(), nil)
		require.NoError(t, err)
		assert.Empty(t, events)
	})
}
