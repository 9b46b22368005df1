package model

import "time"

// MaxTitleLength is the size of the movies.title column.
const MaxTitleLength = 255

// Movie mirrors a row of the `movies` table joined with its owner.
//
// LikesCounter and HatesCounter are caches of the number of LIKE and
// HATE rows in movie_opinions for this movie. They are only ever written
// by a recount inside the opinion transaction.
type Movie struct {
	ID              uint64
	UserID          uint64 // owner, immutable after creation
	Owner           UserSummary
	Title           string
	Description     *string
	AirDate         *time.Time // date only, UTC midnight
	PublicationDate time.Time
	UpdatedAt       time.Time
	LikesCounter    int
	HatesCounter    int
}

// CanOpine reports whether userID may register an opinion on m. The owner
// of a movie is never allowed to opine on it.
func CanOpine(userID uint64, m *Movie) bool {
	if m == nil {
		return false
	}
	return userID != m.UserID
}
