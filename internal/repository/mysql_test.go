package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/movierama/internal/model"
)

var movieColumns = []string{
	"id", "user_id", "username", "first_name", "last_name",
	"title", "description", "air_date", "publication_date", "updated_at",
	"likes_counter", "hates_counter",
}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func sqlFrag(s string) string { return regexp.QuoteMeta(s) }

func TestMovieRepo_SetOpinion(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("upserts and recounts in one transaction", func(t *testing.T) {
		db, mock := newMock(t)
		repo := NewMovieRepo(db)

		mock.ExpectBegin()
		mock.ExpectQuery(sqlFrag("SELECT user_id FROM movies WHERE id = ? FOR UPDATE")).
			WithArgs(10).
			WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(1))
		mock.ExpectExec(sqlFrag("INSERT INTO movie_opinions (user_id, movie_id, opinion) VALUES (?, ?, ?) ON DUPLICATE KEY UPDATE")).
			WithArgs(2, 10, "L").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(sqlFrag("FROM movie_opinions WHERE movie_id = ?")).
			WithArgs(10).
			WillReturnRows(sqlmock.NewRows([]string{"likes", "hates"}).AddRow(3, 1))
		mock.ExpectExec(sqlFrag("UPDATE movies SET likes_counter = ?, hates_counter = ? WHERE id = ?")).
			WithArgs(3, 1, 10).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(sqlFrag("WHERE m.id = ?")).
			WithArgs(10).
			WillReturnRows(sqlmock.NewRows(movieColumns).
				AddRow(10, 1, "owner", "O", "Wner", "Movie", "Desc", nil, now, now, 3, 1))
		mock.ExpectCommit()

		m, err := repo.SetOpinion(ctx, 2, 10, model.OpinionLike)
		require.NoError(t, err)
		assert.Equal(t, 3, m.LikesCounter)
		assert.Equal(t, 1, m.HatesCounter)
		assert.Equal(t, "owner", m.Owner.Username)
		assert.EqualValues(t, 1, m.Owner.ID)
		assert.Nil(t, m.AirDate)
		require.NotNil(t, m.Description)
		assert.Equal(t, "Desc", *m.Description)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("none is stored as NULL", func(t *testing.T) {
		db, mock := newMock(t)
		repo := NewMovieRepo(db)

		mock.ExpectBegin()
		mock.ExpectQuery(sqlFrag("FOR UPDATE")).WithArgs(10).
			WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(1))
		mock.ExpectExec(sqlFrag("INSERT INTO movie_opinions")).
			WithArgs(2, 10, nil).
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectQuery(sqlFrag("FROM movie_opinions WHERE movie_id = ?")).WithArgs(10).
			WillReturnRows(sqlmock.NewRows([]string{"likes", "hates"}).AddRow(0, 0))
		mock.ExpectExec(sqlFrag("UPDATE movies SET likes_counter")).WithArgs(0, 0, 10).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(sqlFrag("WHERE m.id = ?")).WithArgs(10).
			WillReturnRows(sqlmock.NewRows(movieColumns).
				AddRow(10, 1, "owner", "", "", "Movie", nil, now, now, now, 0, 0))
		mock.ExpectCommit()

		m, err := repo.SetOpinion(ctx, 2, 10, model.OpinionNone)
		require.NoError(t, err)
		assert.Zero(t, m.LikesCounter)
		assert.Nil(t, m.Description)
		require.NotNil(t, m.AirDate)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing movie rolls back", func(t *testing.T) {
		db, mock := newMock(t)
		repo := NewMovieRepo(db)

		mock.ExpectBegin()
		mock.ExpectQuery(sqlFrag("FOR UPDATE")).WithArgs(99).
			WillReturnRows(sqlmock.NewRows([]string{"user_id"}))
		mock.ExpectRollback()

		_, err := repo.SetOpinion(ctx, 2, 99, model.OpinionLike)
		assert.ErrorIs(t, err, ErrMovieNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("owner is forbidden and rolls back", func(t *testing.T) {
		db, mock := newMock(t)
		repo := NewMovieRepo(db)

		mock.ExpectBegin()
		mock.ExpectQuery(sqlFrag("FOR UPDATE")).WithArgs(10).
			WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(2))
		mock.ExpectRollback()

		_, err := repo.SetOpinion(ctx, 2, 10, model.OpinionHate)
		assert.ErrorIs(t, err, ErrForbidden)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failed upsert rolls back", func(t *testing.T) {
		db, mock := newMock(t)
		repo := NewMovieRepo(db)

		mock.ExpectBegin()
		mock.ExpectQuery(sqlFrag("FOR UPDATE")).WithArgs(10).
			WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(1))
		mock.ExpectExec(sqlFrag("INSERT INTO movie_opinions")).
			WillReturnError(errors.New("deadlock"))
		mock.ExpectRollback()

		_, err := repo.SetOpinion(ctx, 2, 10, model.OpinionHate)
		assert.ErrorContains(t, err, "deadlock")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestMovieRepo_List(t *testing.T) {
	db, mock := newMock(t)
	repo := NewMovieRepo(db)
	now := time.Now().UTC()

	mock.ExpectQuery(sqlFrag("SELECT COUNT(*) FROM movies m JOIN users u ON u.id = m.user_id WHERE u.username = ?")).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(sqlFrag("WHERE u.username = ? ORDER BY m.likes_counter DESC, m.id ASC LIMIT ? OFFSET ?")).
		WithArgs("alice", 20, 0).
		WillReturnRows(sqlmock.NewRows(movieColumns).
			AddRow(5, 3, "alice", "Alice", "A", "Movie", "d", now, now, now, 2, 0))

	got, total, err := repo.List(context.Background(), MovieListQuery{
		Ordering: ParseOrdering("-likes_counter"),
		Search:   []string{"alice"},
		Limit:    20,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, got, 1)
	assert.EqualValues(t, 5, got[0].ID)
	assert.Equal(t, 2, got[0].LikesCounter)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMovieRepo_OpinionsFor(t *testing.T) {
	db, mock := newMock(t)
	repo := NewMovieRepo(db)

	mock.ExpectQuery(sqlFrag("FROM movie_opinions WHERE user_id = ? AND opinion IS NOT NULL AND movie_id IN (?,?)")).
		WithArgs(7, 1, 2).
		WillReturnRows(sqlmock.NewRows([]string{"movie_id", "opinion"}).AddRow(2, "H"))

	got, err := repo.OpinionsFor(context.Background(), 7, []uint64{1, 2})
	require.NoError(t, err)
	assert.Equal(t, map[uint64]model.Opinion{2: model.OpinionHate}, got)
	assert.NoError(t, mock.ExpectationsWereMet())

	empty, err := repo.OpinionsFor(context.Background(), 7, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMovieRepo_RecountAll(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec(sqlFrag("UPDATE movies m SET")).WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := NewMovieRepo(db).RecountAll(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_CreateDuplicate(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec(sqlFrag("INSERT INTO users (username, first_name, last_name, password_hash)")).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

	_, err := NewUserRepo(db).Create(context.Background(), NewUser{Username: "alice", Password: "pw"}, bcrypt.MinCost)
	assert.ErrorIs(t, err, ErrUsernameExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_GetByUsernameMissing(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(sqlFrag("FROM users WHERE username=?")).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := NewUserRepo(db).GetByUsername(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepo_ValidateRefresh(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTokenRepo(db)
	ctx := context.Background()

	mock.ExpectQuery(sqlFrag("FROM refresh_tokens WHERE token_hash=?")).
		WithArgs("good").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "expires_at", "revoked_at"}).
			AddRow(4, time.Now().Add(time.Hour), nil))
	mock.ExpectQuery(sqlFrag("FROM refresh_tokens WHERE token_hash=?")).
		WithArgs("revoked").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "expires_at", "revoked_at"}).
			AddRow(4, time.Now().Add(time.Hour), time.Now()))

	uid, err := repo.ValidateRefresh(ctx, "good")
	require.NoError(t, err)
	assert.EqualValues(t, 4, uid)

	_, err = repo.ValidateRefresh(ctx, "revoked")
	assert.ErrorIs(t, err, ErrInvalidRefresh)
	assert.NoError(t, mock.ExpectationsWereMet())
}
