package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/movierama/internal/model"
)

// movieSelect projects a movie joined with the public fields of its owner.
// Column order must match scanMovie.
const movieSelect = `SELECT m.id, m.user_id, u.username, u.first_name, u.last_name,
	m.title, m.description, m.air_date, m.publication_date, m.updated_at,
	m.likes_counter, m.hates_counter
	FROM movies m JOIN users u ON u.id = m.user_id`

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// MovieRepo encapsulates all database queries related to movies and
// opinions. It depends on a sql.DB connection configured elsewhere.
type MovieRepo struct {
	db *sql.DB
}

// NewMovieRepo constructs a MovieRepo with the provided DB handle.
func NewMovieRepo(db *sql.DB) *MovieRepo {
	return &MovieRepo{db: db}
}

// Create inserts a new movie. publication_date and updated_at are filled
// by column defaults, so a follow-up SELECT populates them together with
// the owner fields.
func (r *MovieRepo) Create(ctx context.Context, m *model.Movie) error {
	const q = "INSERT INTO movies (user_id, title, description, air_date) VALUES (?, ?, ?, ?)"
	res, err := r.db.ExecContext(ctx, q, m.UserID, m.Title, nullString(m.Description), nullDate(m.AirDate))
	if err != nil {
		return fmt.Errorf("insert movie: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	created, err := getMovie(ctx, r.db, uint64(id))
	if err != nil {
		return err
	}
	*m = *created
	return nil
}

// GetByID fetches a movie with its owner. It returns ErrMovieNotFound if
// no row is found.
func (r *MovieRepo) GetByID(ctx context.Context, id uint64) (*model.Movie, error) {
	return getMovie(ctx, r.db, id)
}

// List runs the filtered count and the page query. Ordering only ever
// references allow-listed columns; search terms are bound parameters.
func (r *MovieRepo) List(ctx context.Context, q MovieListQuery) ([]*model.Movie, int64, error) {
	where := []string{}
	args := []any{}
	for _, term := range q.Search {
		where = append(where, "u.username = ?")
		args = append(args, term)
	}
	cond := "1=1"
	if len(where) > 0 {
		cond = strings.Join(where, " AND ")
	}

	var total int64
	countSQL := "SELECT COUNT(*) FROM movies m JOIN users u ON u.id = m.user_id WHERE " + cond
	if err := r.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count movies: %w", err)
	}

	dataSQL := movieSelect + " WHERE " + cond + " ORDER BY " + orderByClause(q.Ordering) + " LIMIT ? OFFSET ?"
	argsData := append(append([]any{}, args...), q.Limit, q.Offset)

	rows, err := r.db.QueryContext(ctx, dataSQL, argsData...)
	if err != nil {
		return nil, 0, fmt.Errorf("list movies: %w", err)
	}
	defer rows.Close()

	out := make([]*model.Movie, 0, q.Limit)
	for rows.Next() {
		m, err := scanMovie(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// OpinionsFor returns the LIKE/HATE opinions userID holds on movieIDs.
func (r *MovieRepo) OpinionsFor(ctx context.Context, userID uint64, movieIDs []uint64) (map[uint64]model.Opinion, error) {
	out := make(map[uint64]model.Opinion, len(movieIDs))
	if userID == 0 || len(movieIDs) == 0 {
		return out, nil
	}
	args := make([]any, 0, len(movieIDs)+1)
	args = append(args, userID)
	for _, id := range movieIDs {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(movieIDs)), ",")
	q := "SELECT movie_id, opinion FROM movie_opinions WHERE user_id = ? AND opinion IS NOT NULL AND movie_id IN (" + placeholders + ")"

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("load opinions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			movieID uint64
			value   string
		)
		if err := rows.Scan(&movieID, &value); err != nil {
			return nil, err
		}
		out[movieID] = model.Opinion(value)
	}
	return out, rows.Err()
}

// SetOpinion upserts the (user, movie) opinion and recomputes both
// counters from the opinion rows in a single transaction. The movie row
// is locked first so that concurrent submissions on the same movie
// serialize and the recount always sees every committed opinion.
func (r *MovieRepo) SetOpinion(ctx context.Context, userID, movieID uint64, value model.Opinion) (_ *model.Movie, err error) {
	if !value.Valid() {
		return nil, fmt.Errorf("invalid opinion %q", string(value))
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var ownerID uint64
	if err := tx.QueryRowContext(ctx, "SELECT user_id FROM movies WHERE id = ? FOR UPDATE", movieID).Scan(&ownerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMovieNotFound
		}
		return nil, fmt.Errorf("lock movie: %w", err)
	}
	if !model.CanOpine(userID, &model.Movie{ID: movieID, UserID: ownerID}) {
		return nil, ErrForbidden
	}

	const upsert = `INSERT INTO movie_opinions (user_id, movie_id, opinion) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE opinion = VALUES(opinion), updated_at = CURRENT_TIMESTAMP(6)`
	if _, err := tx.ExecContext(ctx, upsert, userID, movieID, opinionValue(value)); err != nil {
		return nil, fmt.Errorf("upsert opinion: %w", err)
	}

	var likes, hates int
	const recount = "SELECT COALESCE(SUM(opinion = 'L'), 0), COALESCE(SUM(opinion = 'H'), 0) FROM movie_opinions WHERE movie_id = ?"
	if err := tx.QueryRowContext(ctx, recount, movieID).Scan(&likes, &hates); err != nil {
		return nil, fmt.Errorf("recount opinions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "UPDATE movies SET likes_counter = ?, hates_counter = ? WHERE id = ?", likes, hates, movieID); err != nil {
		return nil, fmt.Errorf("update counters: %w", err)
	}

	m, err := getMovie(ctx, tx, movieID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit opinion: %w", err)
	}
	return m, nil
}

// RecountAll rewrites every movie's counters from movie_opinions. With the
// default DSN (no clientFoundRows) RowsAffected only counts movies whose
// counters actually changed.
func (r *MovieRepo) RecountAll(ctx context.Context) (int64, error) {
	const q = `UPDATE movies m SET
		m.likes_counter = (SELECT COUNT(*) FROM movie_opinions o WHERE o.movie_id = m.id AND o.opinion = 'L'),
		m.hates_counter = (SELECT COUNT(*) FROM movie_opinions o WHERE o.movie_id = m.id AND o.opinion = 'H')`
	res, err := r.db.ExecContext(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("recount movies: %w", err)
	}
	return res.RowsAffected()
}

func getMovie(ctx context.Context, q querier, id uint64) (*model.Movie, error) {
	m, err := scanMovie(q.QueryRowContext(ctx, movieSelect+" WHERE m.id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMovieNotFound
	}
	return m, err
}

func scanMovie(s rowScanner) (*model.Movie, error) {
	var (
		m       model.Movie
		desc    sql.NullString
		airDate sql.NullTime
	)
	if err := s.Scan(&m.ID, &m.UserID, &m.Owner.Username, &m.Owner.FirstName, &m.Owner.LastName,
		&m.Title, &desc, &airDate, &m.PublicationDate, &m.UpdatedAt,
		&m.LikesCounter, &m.HatesCounter); err != nil {
		return nil, err
	}
	m.Owner.ID = m.UserID
	if desc.Valid {
		d := desc.String
		m.Description = &d
	}
	if airDate.Valid {
		t := airDate.Time.UTC()
		m.AirDate = &t
	}
	return &m, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.DateOnly)
}

func opinionValue(o model.Opinion) any {
	if o == model.OpinionNone {
		return nil
	}
	return string(o)
}
