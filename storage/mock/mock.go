// Package mock provides in-memory repositories with programmable failures
// for exercising degradation paths.
package mock

import (
	"context"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/poiesic/wayfinder/core"
	"github.com/poiesic/wayfinder/storage"
)

// PlaceStore is a map-backed storage.PlaceRepository.
//
// Err, when set, is returned by every read. Delay is slept before every read
// and honours context cancellation.
type PlaceStore struct {
	mu     sync.RWMutex
	places map[core.ID]*core.Place

	Err   error
	Delay time.Duration

	calls atomic.Int64
}

var _ storage.PlaceRepository = (*PlaceStore)(nil)

// NewPlaceStore creates a store holding places.
func NewPlaceStore(places ...*core.Place) *PlaceStore {
	s := &PlaceStore{places: make(map[core.ID]*core.Place)}
	_, _ = s.AddPlaces(context.Background(), places...)
	return s
}

// Calls returns the number of read operations served or failed.
func (s *PlaceStore) Calls() int {
	return int(s.calls.Load())
}

func (s *PlaceStore) before(ctx context.Context) error {
	s.calls.Add(1)
	if s.Delay > 0 {
		select {
		case <-time.After(s.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return s.Err
}

// AddPlaces stores copies of places, deriving missing IDs.
func (s *PlaceStore) AddPlaces(ctx context.Context, places ...*core.Place) ([]*core.Place, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for _, p := range places {
		if p.Id == 0 {
			p.Id = core.PlaceID(p.Name, p.Coords)
		}
		if p.InsertedAt.IsZero() {
			p.InsertedAt = now
		}
		p.UpdatedAt = now
		cp := *p
		s.places[p.Id] = &cp
	}
	return places, nil
}

// UpdatePlaces replaces existing places.
func (s *PlaceStore) UpdatePlaces(ctx context.Context, places ...*core.Place) ([]*core.Place, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range places {
		if _, ok := s.places[p.Id]; !ok {
			return nil, storage.ErrNotFound
		}
		cp := *p
		s.places[p.Id] = &cp
	}
	return places, nil
}

// DeletePlaces removes places.
func (s *PlaceStore) DeletePlaces(ctx context.Context, ids ...core.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if _, ok := s.places[id]; !ok {
			return storage.ErrNotFound
		}
		delete(s.places, id)
	}
	return nil
}

// GetPlace returns a copy of one place.
func (s *PlaceStore) GetPlace(ctx context.Context, id core.ID) (*core.Place, error) {
	if err := s.before(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.places[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// GetPlaces returns copies of the places that exist.
func (s *PlaceStore) GetPlaces(ctx context.Context, ids ...core.ID) ([]*core.Place, error) {
	if err := s.before(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*core.Place
	for _, id := range ids {
		if p, ok := s.places[id]; ok {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ScanPlaces returns places matching filter in ID order.
func (s *PlaceStore) ScanPlaces(ctx context.Context, filter storage.PlaceFilter) ([]*core.Place, error) {
	if err := s.before(ctx); err != nil {
		return nil, err
	}
	return s.filter(func(*core.Place) bool { return true }, filter), nil
}

// FindByTags returns places carrying any of tags.
func (s *PlaceStore) FindByTags(ctx context.Context, tags []string, filter storage.PlaceFilter) ([]*core.Place, error) {
	if err := s.before(ctx); err != nil {
		return nil, err
	}
	return s.filter(func(p *core.Place) bool {
		return slices.ContainsFunc(tags, p.HasTag)
	}, filter), nil
}

// TagCooccurrence counts the other tags of places carrying any of tags.
func (s *PlaceStore) TagCooccurrence(ctx context.Context, tags []string) (map[string]int, error) {
	if err := s.before(ctx); err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, p := range s.filter(func(p *core.Place) bool { return slices.ContainsFunc(tags, p.HasTag) }, storage.PlaceFilter{PublishedOnly: true}) {
		for _, tag := range p.TagList() {
			if !slices.Contains(tags, tag) {
				counts[tag]++
			}
		}
	}
	return counts, nil
}

// ForEachPlace visits places in ID order.
func (s *PlaceStore) ForEachPlace(ctx context.Context, after core.ID, batchSize int, fn func([]*core.Place) error) error {
	if err := s.before(ctx); err != nil {
		return err
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	all := s.filter(func(p *core.Place) bool { return p.Id > after }, storage.PlaceFilter{})
	for batch := range slices.Chunk(all, batchSize) {
		if err := fn(batch); err != nil {
			return err
		}
	}
	return nil
}

// Close does nothing.
func (s *PlaceStore) Close() error {
	return nil
}

func (s *PlaceStore) filter(match func(*core.Place) bool, filter storage.PlaceFilter) []*core.Place {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]core.ID, 0, len(s.places))
	for id := range s.places {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var out []*core.Place
	for _, id := range ids {
		p := s.places[id]
		if !match(p) {
			continue
		}
		if filter.PublishedOnly && !p.IsPublished() {
			continue
		}
		if filter.Area != "" && !strings.EqualFold(p.Area, filter.Area) {
			continue
		}
		if filter.Box != nil && (p.Coords == nil || !filter.Box.Contains(*p.Coords)) {
			continue
		}
		cp := *p
		out = append(out, &cp)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out
}

// TextStore adds a programmable storage.FullTextIndex to a PlaceStore.
// Hits, when set, is returned verbatim; otherwise SearchText returns nothing.
type TextStore struct {
	*PlaceStore

	Hits    []storage.TextHit
	TextErr error

	mu      sync.Mutex
	queries []storage.FullTextQuery
}

var _ storage.FullTextIndex = (*TextStore)(nil)

// NewTextStore creates a TextStore over places.
func NewTextStore(places ...*core.Place) *TextStore {
	return &TextStore{PlaceStore: NewPlaceStore(places...)}
}

// SearchText records the query and returns the programmed hits.
func (s *TextStore) SearchText(ctx context.Context, query storage.FullTextQuery) ([]storage.TextHit, error) {
	s.mu.Lock()
	s.queries = append(s.queries, query)
	s.mu.Unlock()
	if err := s.before(ctx); err != nil {
		return nil, err
	}
	if s.TextErr != nil {
		return nil, s.TextErr
	}
	return slices.Clone(s.Hits), nil
}

// Queries returns the full-text queries received so far.
func (s *TextStore) Queries() []storage.FullTextQuery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.queries)
}

// SessionStore is a map-backed storage.SessionRepository.
type SessionStore struct {
	mu       sync.Mutex
	profiles map[string]*core.SessionProfile
	signals  map[string][]*core.SearchSignal

	Err error
}

var _ storage.SessionRepository = (*SessionStore)(nil)

// NewSessionStore creates an empty session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		profiles: make(map[string]*core.SessionProfile),
		signals:  make(map[string][]*core.SearchSignal),
	}
}

// GetProfile returns a copy of a profile.
func (s *SessionStore) GetProfile(ctx context.Context, sessionID string) (*core.SessionProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	p, ok := s.profiles[sessionID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneProfile(p), nil
}

// GetOrCreateProfile returns a profile, creating it if needed.
func (s *SessionStore) GetOrCreateProfile(ctx context.Context, sessionID string) (*core.SessionProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	p, ok := s.profiles[sessionID]
	if !ok {
		p = &core.SessionProfile{SessionID: sessionID, Vibe: map[string]float64{}, NoveltyPreference: 0.5}
		s.profiles[sessionID] = p
	}
	return cloneProfile(p), nil
}

// SaveProfile stores a copy of profile.
func (s *SessionStore) SaveProfile(ctx context.Context, profile *core.SessionProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	profile.UpdatedAt = time.Now().UTC()
	s.profiles[profile.SessionID] = cloneProfile(profile)
	return nil
}

// AppendSignal stores a signal.
func (s *SessionStore) AppendSignal(ctx context.Context, signal *core.SearchSignal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	cp := *signal
	s.signals[signal.SessionID] = append(s.signals[signal.SessionID], &cp)
	return nil
}

// RecentSignals returns the newest signals first.
func (s *SessionStore) RecentSignals(ctx context.Context, sessionID string, limit int) ([]*core.SearchSignal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	all := s.signals[sessionID]
	var out []*core.SearchSignal
	for i := len(all) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, all[i])
	}
	return out, nil
}

// Close does nothing.
func (s *SessionStore) Close() error {
	return nil
}

func cloneProfile(p *core.SessionProfile) *core.SessionProfile {
	cp := *p
	cp.Vibe = make(map[string]float64, len(p.Vibe))
	for k, v := range p.Vibe {
		cp.Vibe[k] = v
	}
	cp.SeenPlaces = slices.Clone(p.SeenPlaces)
	return &cp
}
