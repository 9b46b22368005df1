package handler

import (
    "time"

    "github.com/dustin/go-humanize"

    "github.com/iliyamo/movierama/internal/model"
)

// movieResp is the JSON shape of a movie, personalised for the viewer.
type movieResp struct {
    ID                   uint64            `json:"id"`
    User                 model.UserSummary `json:"user"`
    Title                string            `json:"title"`
    Description          *string           `json:"description"`
    AirDate              *string           `json:"air_date"`
    PublicationDate      time.Time         `json:"publication_date"`
    LikesCounter         int               `json:"likes_counter"`
    HatesCounter         int               `json:"hates_counter"`
    IsLiked              bool              `json:"is_liked"`
    IsHated              bool              `json:"is_hated"`
    IsOpinionDisabled    bool              `json:"is_opinion_disabled"`
    PublicationDateSince string            `json:"publication_date_since"`
}

// listResp is a limit/offset page.
type listResp struct {
    Count    int64       `json:"count"`
    Next     *string     `json:"next"`
    Previous *string     `json:"previous"`
    Results  []movieResp `json:"results"`
}

// viewer is the caller a payload is rendered for. opinions holds the
// viewer's current opinion per movie id and is loaded on every request.
type viewer struct {
    id       uint64
    ok       bool
    opinions map[uint64]model.Opinion
}

func presentMovie(m *model.Movie, v viewer, now time.Time) movieResp {
    var airDate *string
    if m.AirDate != nil {
        s := m.AirDate.UTC().Format(time.DateOnly)
        airDate = &s
    }
    opinion := v.opinions[m.ID]
    return movieResp{
        ID:                   m.ID,
        User:                 m.Owner,
        Title:                m.Title,
        Description:          m.Description,
        AirDate:              airDate,
        PublicationDate:      m.PublicationDate.UTC(),
        LikesCounter:         m.LikesCounter,
        HatesCounter:         m.HatesCounter,
        IsLiked:              v.ok && opinion == model.OpinionLike,
        IsHated:              v.ok && opinion == model.OpinionHate,
        IsOpinionDisabled:    !v.ok || !model.CanOpine(v.id, m),
        PublicationDateSince: humanize.RelTime(m.PublicationDate, now, "ago", "from now"),
    }
}
