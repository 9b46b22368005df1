package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/movierama/internal/model"
	"github.com/iliyamo/movierama/internal/utils"
)

// MemoryStore keeps users, refresh tokens, movies and opinions in process
// memory. It is meant for local development and tests; every operation
// holds a single mutex, which gives SetOpinion the same all-or-nothing
// behaviour as the MySQL transaction.
type MemoryStore struct {
	mu sync.RWMutex

	users       map[uint64]*model.User
	usersByName map[string]uint64 // lower-cased username -> id
	tokens      map[string]*model.RefreshToken
	movies      []*model.Movie // insertion order
	movieIdx    map[uint64]*model.Movie
	opinions    map[opinionKey]model.Opinion

	nextUserID  uint64
	nextMovieID uint64
	nextTokenID uint64

	now func() time.Time
}

type opinionKey struct {
	userID  uint64
	movieID uint64
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[uint64]*model.User),
		usersByName: make(map[string]uint64),
		tokens:      make(map[string]*model.RefreshToken),
		movieIdx:    make(map[uint64]*model.Movie),
		opinions:    make(map[opinionKey]model.Opinion),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Users returns the UserStore view of s.
func (s *MemoryStore) Users() UserStore { return memoryUsers{s} }

// Tokens returns the TokenStore view of s.
func (s *MemoryStore) Tokens() TokenStore { return memoryTokens{s} }

// Movies returns the MovieStore view of s.
func (s *MemoryStore) Movies() MovieStore { return memoryMovies{s} }

// ----- users -----

type memoryUsers struct{ s *MemoryStore }

func (m memoryUsers) Create(_ context.Context, u NewUser, cost int) (uint64, error) {
	hash, err := utils.HashPassword(u.Password, cost)
	if err != nil {
		return 0, err
	}
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.TrimSpace(u.Username)
	key := strings.ToLower(username)
	if _, ok := s.usersByName[key]; ok {
		return 0, ErrUsernameExists
	}
	s.nextUserID++
	now := s.now()
	s.users[s.nextUserID] = &model.User{
		ID:           s.nextUserID,
		Username:     username,
		FirstName:    strings.TrimSpace(u.FirstName),
		LastName:     strings.TrimSpace(u.LastName),
		PasswordHash: hash,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.usersByName[key] = s.nextUserID
	return s.nextUserID, nil
}

func (m memoryUsers) GetByUsername(_ context.Context, username string) (model.User, error) {
	s := m.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.usersByName[strings.ToLower(strings.TrimSpace(username))]
	if !ok {
		return model.User{}, ErrUserNotFound
	}
	return *s.users[id], nil
}

func (m memoryUsers) GetByID(_ context.Context, id uint64) (model.User, error) {
	s := m.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return model.User{}, ErrUserNotFound
	}
	return *u, nil
}

// ----- refresh tokens -----

type memoryTokens struct{ s *MemoryStore }

func (m memoryTokens) StoreRefresh(_ context.Context, userID uint64, tokenHash string, exp time.Time) error {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return ErrUserNotFound
	}
	s.nextTokenID++
	s.tokens[tokenHash] = &model.RefreshToken{
		ID:        s.nextTokenID,
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: exp,
		CreatedAt: s.now(),
	}
	return nil
}

func (m memoryTokens) ValidateRefresh(_ context.Context, tokenHash string) (uint64, error) {
	s := m.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tokens[tokenHash]
	if !ok || t.RevokedAt != nil || s.now().After(t.ExpiresAt) {
		return 0, ErrInvalidRefresh
	}
	return t.UserID, nil
}

func (m memoryTokens) RevokeByHash(_ context.Context, tokenHash string) error {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tokens[tokenHash]; ok && t.RevokedAt == nil {
		now := s.now()
		t.RevokedAt = &now
	}
	return nil
}

func (m memoryTokens) RevokeAllForUser(_ context.Context, userID uint64) error {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for _, t := range s.tokens {
		if t.UserID == userID && t.RevokedAt == nil {
			t.RevokedAt = &now
		}
	}
	return nil
}

// ----- movies & opinions -----

type memoryMovies struct{ s *MemoryStore }

func (m memoryMovies) Create(_ context.Context, mv *model.Movie) error {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()
	owner, ok := s.users[mv.UserID]
	if !ok {
		return fmt.Errorf("insert movie: %w", ErrUserNotFound)
	}
	s.nextMovieID++
	now := s.now()
	stored := &model.Movie{
		ID:              s.nextMovieID,
		UserID:          mv.UserID,
		Title:           mv.Title,
		Description:     copyString(mv.Description),
		AirDate:         copyDate(mv.AirDate),
		PublicationDate: now,
		UpdatedAt:       now,
	}
	s.movies = append(s.movies, stored)
	s.movieIdx[stored.ID] = stored
	*mv = *s.snapshot(stored, owner)
	return nil
}

func (m memoryMovies) GetByID(_ context.Context, id uint64) (*model.Movie, error) {
	s := m.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	mv, ok := s.movieIdx[id]
	if !ok {
		return nil, ErrMovieNotFound
	}
	return s.snapshot(mv, s.users[mv.UserID]), nil
}

func (m memoryMovies) List(_ context.Context, q MovieListQuery) ([]*model.Movie, int64, error) {
	s := m.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*model.Movie, 0, len(s.movies))
	for _, mv := range s.movies {
		if matchesSearch(s.users[mv.UserID].Username, q.Search) {
			matched = append(matched, mv)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return lessMovie(matched[i], matched[j], q.Ordering) })

	total := int64(len(matched))
	start := min(max(q.Offset, 0), len(matched))
	end := min(start+max(q.Limit, 0), len(matched))

	out := make([]*model.Movie, 0, end-start)
	for _, mv := range matched[start:end] {
		out = append(out, s.snapshot(mv, s.users[mv.UserID]))
	}
	return out, total, nil
}

func (m memoryMovies) OpinionsFor(_ context.Context, userID uint64, movieIDs []uint64) (map[uint64]model.Opinion, error) {
	s := m.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[uint64]model.Opinion, len(movieIDs))
	if userID == 0 {
		return out, nil
	}
	for _, id := range movieIDs {
		if v := s.opinions[opinionKey{userID: userID, movieID: id}]; v != model.OpinionNone {
			out[id] = v
		}
	}
	return out, nil
}

func (m memoryMovies) SetOpinion(_ context.Context, userID, movieID uint64, value model.Opinion) (*model.Movie, error) {
	if !value.Valid() {
		return nil, fmt.Errorf("invalid opinion %q", string(value))
	}
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()

	mv, ok := s.movieIdx[movieID]
	if !ok {
		return nil, ErrMovieNotFound
	}
	if !model.CanOpine(userID, mv) {
		return nil, ErrForbidden
	}
	// NONE keeps the row with a cleared value, like the NULL column.
	s.opinions[opinionKey{userID: userID, movieID: movieID}] = value
	if s.recount(mv) {
		mv.UpdatedAt = s.now()
	}
	return s.snapshot(mv, s.users[mv.UserID]), nil
}

func (m memoryMovies) RecountAll(_ context.Context) (int64, error) {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var changed int64
	for _, mv := range s.movies {
		if s.recount(mv) {
			mv.UpdatedAt = s.now()
			changed++
		}
	}
	return changed, nil
}

// recount recomputes mv's counters from the opinion map. Callers hold the
// write lock. It reports whether either counter changed.
func (s *MemoryStore) recount(mv *model.Movie) bool {
	var values []model.Opinion
	for k, v := range s.opinions {
		if k.movieID == mv.ID {
			values = append(values, v)
		}
	}
	likes, hates := model.Tally(values)
	changed := likes != mv.LikesCounter || hates != mv.HatesCounter
	mv.LikesCounter, mv.HatesCounter = likes, hates
	return changed
}

// snapshot copies mv so callers never alias store state.
func (s *MemoryStore) snapshot(mv *model.Movie, owner *model.User) *model.Movie {
	out := *mv
	out.Description = copyString(mv.Description)
	out.AirDate = copyDate(mv.AirDate)
	if owner != nil {
		out.Owner = owner.Summary()
	}
	return &out
}

func matchesSearch(username string, terms []string) bool {
	for _, t := range terms {
		if !strings.EqualFold(username, t) {
			return false
		}
	}
	return true
}

// lessMovie orders like the MySQL ORDER BY clause: NULL air dates sort
// first ascending and last descending, and ties fall back to id.
func lessMovie(a, b *model.Movie, fields []OrderField) bool {
	for _, f := range fields {
		c := compareField(a, b, f.Field)
		if c == 0 {
			continue
		}
		if f.Desc {
			return c > 0
		}
		return c < 0
	}
	return a.ID < b.ID
}

func compareField(a, b *model.Movie, field string) int {
	switch field {
	case "likes_counter":
		return cmpInt(a.LikesCounter, b.LikesCounter)
	case "hates_counter":
		return cmpInt(a.HatesCounter, b.HatesCounter)
	case "publication_date":
		return a.PublicationDate.Compare(b.PublicationDate)
	case "air_date":
		switch {
		case a.AirDate == nil && b.AirDate == nil:
			return 0
		case a.AirDate == nil:
			return -1
		case b.AirDate == nil:
			return 1
		}
		return a.AirDate.Compare(*b.AirDate)
	}
	return 0
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func copyDate(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC().Truncate(24 * time.Hour)
	return &v
}
