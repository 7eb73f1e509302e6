package user

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresRepository_Create(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	u := &User{ID: "id-1", Username: "test", Email: "test@test.com", PasswordHash: "hash", Roles: []Role{RoleUser}, CreatedAt: now}

	t.Run("inserts", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectExec(regexp.QuoteMeta(insertUserSQL)).
			WithArgs("id-1", "test", "test@test.com", "hash", []string{"user"}, now).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, NewPostgresRepository(mock).Create(ctx, u))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unique violation", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectExec(regexp.QuoteMeta(insertUserSQL)).
			WithArgs("id-1", "test", "test@test.com", "hash", []string{"user"}, now).
			WillReturnError(&pgconn.PgError{Code: uniqueViolation})

		err = NewPostgresRepository(mock).Create(ctx, u)
		require.ErrorIs(t, err, ErrDuplicate)
	})
}

func TestPostgresRepository_FindByUsername(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(regexp.QuoteMeta(selectUserByUsernameSQL)).
		WithArgs("admin").
		WillReturnRows(pgxmock.NewRows([]string{"id", "username", "email", "password_hash", "roles", "created_at"}).
			AddRow("id-2", "admin", "admin@test.com", "hash", []string{"user", "admin"}, now))
	mock.ExpectQuery(regexp.QuoteMeta(selectUserByUsernameSQL)).
		WithArgs("ghost").
		WillReturnError(pgx.ErrNoRows)

	repo := NewPostgresRepository(mock)
	u, err := repo.FindByUsername(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, []Role{RoleUser, RoleAdmin}, u.Roles)

	_, err = repo.FindByUsername(ctx, "ghost")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
