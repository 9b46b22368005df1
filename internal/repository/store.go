package repository

import (
	"context"
	"time"

	"github.com/iliyamo/movierama/internal/model"
)

// NewUser carries the registration fields. Password is the plain text
// password; stores hash it before persisting.
type NewUser struct {
	Username  string
	FirstName string
	LastName  string
	Password  string
}

// UserStore persists application users.
type UserStore interface {
	Create(ctx context.Context, u NewUser, bcryptCost int) (uint64, error)
	GetByUsername(ctx context.Context, username string) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
}

// TokenStore persists refresh token hashes.
type TokenStore interface {
	StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
	ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error)
	RevokeByHash(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID uint64) error
}

// MovieStore persists movies and the opinions users hold on them.
type MovieStore interface {
	// Create inserts m owned by m.UserID and fills in the generated
	// fields (ID, PublicationDate, UpdatedAt, Owner).
	Create(ctx context.Context, m *model.Movie) error
	GetByID(ctx context.Context, id uint64) (*model.Movie, error)
	// List returns one page of movies and the total number of movies
	// matching q.Search.
	List(ctx context.Context, q MovieListQuery) ([]*model.Movie, int64, error)
	// OpinionsFor returns the non-empty opinions userID holds on the
	// given movies, keyed by movie id.
	OpinionsFor(ctx context.Context, userID uint64, movieIDs []uint64) (map[uint64]model.Opinion, error)
	// SetOpinion upserts userID's opinion on movieID and recomputes the
	// movie's counters from the opinion rows, atomically. It returns
	// ErrMovieNotFound or ErrForbidden when the movie is missing or
	// owned by userID.
	SetOpinion(ctx context.Context, userID, movieID uint64, value model.Opinion) (*model.Movie, error)
	// RecountAll recomputes the counters of every movie and returns the
	// number of movies whose counters changed.
	RecountAll(ctx context.Context) (int64, error)
}
