// Package queue defines message payloads exchanged over the message broker
// and the consumer that turns them into an activity log.
package queue

// MovieEventsQueue is the durable queue all movie events are sent to.
const MovieEventsQueue = "movie.events"

// Event types carried in the AMQP Type property.
const (
    TypeMovieCreated   = "movie.created"
    TypeOpinionChanged = "movie.opinion_changed"
)

// MovieCreatedEvent is published after a movie row is committed.
type MovieCreatedEvent struct {
    MovieID         uint64 `json:"movie_id"`
    UserID          uint64 `json:"user_id"`
    Username        string `json:"username"`
    Title           string `json:"title"`
    PublicationDate string `json:"publication_date"`
}

// OpinionChangedEvent is published after an opinion submission commits.
// Opinion is "L", "H" or "" for a cleared opinion; the counters are the
// values recomputed in the same transaction.
type OpinionChangedEvent struct {
    MovieID      uint64 `json:"movie_id"`
    UserID       uint64 `json:"user_id"`
    Opinion      string `json:"opinion"`
    LikesCounter int    `json:"likes_counter"`
    HatesCounter int    `json:"hates_counter"`
    OccurredAt   string `json:"occurred_at"`
}
