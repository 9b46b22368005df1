package handler

import (
    "encoding/json"
    "errors"
    "fmt"
    "net/http"
    "net/url"
    "strconv"
    "strings"
    "time"
    "unicode/utf8"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/movierama/internal/middleware"
    "github.com/iliyamo/movierama/internal/model"
    q "github.com/iliyamo/movierama/internal/queue"
    "github.com/iliyamo/movierama/internal/repository"
    "github.com/iliyamo/movierama/internal/service"
)

// MovieHandler serves the movie listing, creation and opinion endpoints.
type MovieHandler struct {
    Movies   repository.MovieStore
    Events   service.EventPublisher
    Log      *zap.Logger
    PageSize int
    Now      func() time.Time
}

func NewMovieHandler(movies repository.MovieStore, events service.EventPublisher, log *zap.Logger, pageSize int) *MovieHandler {
    if events == nil {
        events = service.NopPublisher{}
    }
    return &MovieHandler{
        Movies:   movies,
        Events:   events,
        Log:      log,
        PageSize: pageSize,
        Now:      func() time.Time { return time.Now().UTC() },
    }
}

type createMovieReq struct {
    Title       *string `json:"title"`
    Description *string `json:"description"`
    AirDate     *string `json:"air_date"`
}

type opinionReq struct {
    Opinion json.RawMessage `json:"opinion"`
}

// CreateMovie handles POST /v1/movies. The caller becomes the owner.
func (h *MovieHandler) CreateMovie(c echo.Context) error {
    uid, _ := middleware.UserID(c)

    var req createMovieReq
    if err := c.Bind(&req); err != nil {
        return errMalformedBody
    }
    m, errs := req.validate()
    if len(errs) > 0 {
        return errs
    }
    m.UserID = uid

    ctx, cancel := storeCtx(c)
    defer cancel()
    if err := h.Movies.Create(ctx, m); err != nil {
        return fmt.Errorf("create movie: %w", err)
    }

    h.publish(c, func() error {
        return h.Events.PublishMovieCreated(c.Request().Context(), q.MovieCreatedEvent{
            MovieID:         m.ID,
            UserID:          m.UserID,
            Username:        m.Owner.Username,
            Title:           m.Title,
            PublicationDate: m.PublicationDate.UTC().Format(time.RFC3339),
        })
    })

    return c.JSON(http.StatusCreated, presentMovie(m, viewer{id: uid, ok: true}, h.Now()))
}

// validate checks the request and builds the movie to insert.
func (r createMovieReq) validate() (*model.Movie, fieldErrors) {
    errs := fieldErrors{}
    m := &model.Movie{}

    switch {
    case r.Title == nil:
        errs.add("title", msgRequired)
    case strings.TrimSpace(*r.Title) == "":
        errs.add("title", msgBlank)
    case utf8.RuneCountInString(strings.TrimSpace(*r.Title)) > model.MaxTitleLength:
        errs.add("title", fmt.Sprintf("Ensure this field has no more than %d characters.", model.MaxTitleLength))
    default:
        m.Title = strings.TrimSpace(*r.Title)
    }

    if r.Description == nil {
        errs.add("description", msgRequired)
    } else {
        d := *r.Description
        m.Description = &d
    }

    if r.AirDate != nil && strings.TrimSpace(*r.AirDate) != "" {
        t, err := parseAirDate(strings.TrimSpace(*r.AirDate))
        if err != nil {
            errs.add("air_date", "Date has wrong format. Use one of these formats instead: YYYY-MM-DD.")
        } else {
            m.AirDate = &t
        }
    }
    return m, errs
}

// parseAirDate accepts a calendar date or an RFC 3339 timestamp and keeps
// the date part.
func parseAirDate(s string) (time.Time, error) {
    if t, err := time.Parse(time.DateOnly, s); err == nil {
        return t, nil
    }
    t, err := time.Parse(time.RFC3339, s)
    if err != nil {
        return time.Time{}, err
    }
    y, mo, d := t.UTC().Date()
    return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC), nil
}

// ListMovies handles GET /v1/movies.
//
// Query parameters: ordering (comma separated, "-" for descending),
// search (owner username), limit and offset.
func (h *MovieHandler) ListMovies(c echo.Context) error {
    limit, offset := h.pageParams(c)
    query := repository.MovieListQuery{
        Ordering: repository.ParseOrdering(c.QueryParam("ordering")),
        Search:   repository.SearchTerms(c.QueryParam("search")),
        Limit:    limit,
        Offset:   offset,
    }

    ctx, cancel := storeCtx(c)
    defer cancel()

    movies, total, err := h.Movies.List(ctx, query)
    if err != nil {
        return fmt.Errorf("list movies: %w", err)
    }
    v, err := h.viewerFor(c, movies...)
    if err != nil {
        return err
    }

    now := h.Now()
    results := make([]movieResp, 0, len(movies))
    for _, m := range movies {
        results = append(results, presentMovie(m, v, now))
    }
    next, prev := pageLinks(c, total, limit, offset)
    return c.JSON(http.StatusOK, listResp{Count: total, Next: next, Previous: prev, Results: results})
}

// GetMovie handles GET /v1/movies/:id.
func (h *MovieHandler) GetMovie(c echo.Context) error {
    id, ok := pathID(c)
    if !ok {
        return echo.NewHTTPError(http.StatusNotFound, "Not found.")
    }

    ctx, cancel := storeCtx(c)
    defer cancel()

    m, err := h.Movies.GetByID(ctx, id)
    if err != nil {
        if errors.Is(err, repository.ErrMovieNotFound) {
            return echo.NewHTTPError(http.StatusNotFound, "Not found.")
        }
        return fmt.Errorf("get movie: %w", err)
    }
    v, err := h.viewerFor(c, m)
    if err != nil {
        return err
    }
    return c.JSON(http.StatusOK, presentMovie(m, v, h.Now()))
}

// SubmitOpinion handles POST /v1/movies/:id/opinion with a body of
// {"opinion": "L" | "H" | null}. A missing movie is reported as a 400
// with an "error" message; the owner gets a 403.
func (h *MovieHandler) SubmitOpinion(c echo.Context) error {
    uid, _ := middleware.UserID(c)
    id, ok := pathID(c)
    if !ok {
        return movieMissing(c, c.Param("id"))
    }

    ctx, cancel := storeCtx(c)
    defer cancel()

    // existence and ownership come before the body
    m, err := h.Movies.GetByID(ctx, id)
    if err != nil {
        if errors.Is(err, repository.ErrMovieNotFound) {
            return movieMissing(c, c.Param("id"))
        }
        return fmt.Errorf("get movie: %w", err)
    }
    if !model.CanOpine(uid, m) {
        return errOpinionForbidden
    }

    var req opinionReq
    if err := c.Bind(&req); err != nil {
        return errMalformedBody
    }
    value := model.OpinionNone
    if len(req.Opinion) > 0 {
        if err := value.UnmarshalJSON(req.Opinion); err != nil {
            errs := fieldErrors{}
            errs.add("opinion", err.Error())
            return errs
        }
    }

    m, err = h.Movies.SetOpinion(ctx, uid, id, value)
    switch {
    case errors.Is(err, repository.ErrMovieNotFound):
        return movieMissing(c, c.Param("id"))
    case errors.Is(err, repository.ErrForbidden):
        return errOpinionForbidden
    case err != nil:
        return fmt.Errorf("set opinion: %w", err)
    }

    h.publish(c, func() error {
        return h.Events.PublishOpinionChanged(c.Request().Context(), q.OpinionChangedEvent{
            MovieID:      m.ID,
            UserID:       uid,
            Opinion:      string(value),
            LikesCounter: m.LikesCounter,
            HatesCounter: m.HatesCounter,
            OccurredAt:   m.UpdatedAt.UTC().Format(time.RFC3339),
        })
    })

    v := viewer{id: uid, ok: true, opinions: map[uint64]model.Opinion{m.ID: value}}
    return c.JSON(http.StatusOK, presentMovie(m, v, h.Now()))
}

var errOpinionForbidden = echo.NewHTTPError(http.StatusForbidden, "You do not have permission to perform this action.")

func movieMissing(c echo.Context, raw string) error {
    return c.JSON(http.StatusBadRequest, echo.Map{
        "error": fmt.Sprintf("Movie with pk `%s` does not exist", raw),
    })
}

// viewerFor loads the caller's opinions on movies. Anonymous callers get
// an empty viewer.
func (h *MovieHandler) viewerFor(c echo.Context, movies ...*model.Movie) (viewer, error) {
    uid, ok := middleware.UserID(c)
    if !ok {
        return viewer{}, nil
    }
    ids := make([]uint64, 0, len(movies))
    for _, m := range movies {
        ids = append(ids, m.ID)
    }

    ctx, cancel := storeCtx(c)
    defer cancel()
    ops, err := h.Movies.OpinionsFor(ctx, uid, ids)
    if err != nil {
        return viewer{}, fmt.Errorf("load opinions: %w", err)
    }
    return viewer{id: uid, ok: true, opinions: ops}, nil
}

// publish runs an event publish after a successful write. Broker
// failures never fail the request.
func (h *MovieHandler) publish(c echo.Context, fn func() error) {
    if err := fn(); err != nil {
        h.Log.Warn("publish event failed",
            zap.Error(err),
            zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)))
    }
}

// pageParams reads limit and offset. An absent or invalid limit falls back
// to the page size, which is also the upper bound.
func (h *MovieHandler) pageParams(c echo.Context) (limit, offset int) {
    limit = h.PageSize
    if n, err := strconv.Atoi(c.QueryParam("limit")); err == nil && n > 0 {
        limit = min(n, h.PageSize)
    }
    if n, err := strconv.Atoi(c.QueryParam("offset")); err == nil && n > 0 {
        offset = n
    }
    return limit, offset
}

// pageLinks builds absolute next/previous URLs for a limit/offset page.
func pageLinks(c echo.Context, total int64, limit, offset int) (next, prev *string) {
    req := c.Request()
    base := url.URL{Scheme: c.Scheme(), Host: req.Host, Path: req.URL.Path}

    link := func(off int) *string {
        vals := req.URL.Query()
        vals.Set("limit", strconv.Itoa(limit))
        if off > 0 {
            vals.Set("offset", strconv.Itoa(off))
        } else {
            vals.Del("offset")
        }
        u := base
        u.RawQuery = vals.Encode()
        s := u.String()
        return &s
    }

    if int64(offset+limit) < total {
        next = link(offset + limit)
    }
    if offset > 0 {
        prev = link(max(offset-limit, 0))
    }
    return next, prev
}
