package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

func TestUserRepository_GetByID(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()
	users := createTestUsers(t, db, 1)

	t.Run("returns the user", func(t *testing.T) {
		got, err := repo.GetByID(ctx, users[0].ID)
		assert.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, users[0].ID, got.ID)
	})

	t.Run("unknown id is not found", func(t *testing.T) {
		_, err := repo.GetByID(ctx, 9999)
		assert.Equal(t, "NOT_FOUND", appErrCode(t, err))
	})
}

func TestUserRepository_GetByID_DirectoryDown(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "users" WHERE "users"."id" = $1 AND "users"."deleted_at" IS NULL ORDER BY "users"."id" LIMIT $2`)).
		WithArgs(1, 1).
		WillReturnError(errors.New("connection refused"))

	_, err := repo.GetByID(ctx, 1)
	assert.Equal(t, "UNAVAILABLE", appErrCode(t, err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_ListCandidates(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()
	users := createTestUsers(t, db, 4)

	t.Run("excludes given ids and orders ascending", func(t *testing.T) {
		got, err := repo.ListCandidates(ctx, []uint{users[1].ID}, 10)
		assert.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, users[0].ID, got[0].ID)
		assert.Equal(t, users[2].ID, got[1].ID)
		assert.Equal(t, users[3].ID, got[2].ID)
	})

	t.Run("respects limit", func(t *testing.T) {
		got, err := repo.ListCandidates(ctx, nil, 2)
		assert.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("empty id batch returns empty slice", func(t *testing.T) {
		got, err := repo.GetByIDs(ctx, nil)
		assert.NoError(t, err)
		assert.Empty(t, got)
	})
}
