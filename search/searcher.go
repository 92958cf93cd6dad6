package search

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/poiesic/wayfinder/bitset"
	"github.com/poiesic/wayfinder/cache"
	"github.com/poiesic/wayfinder/config"
	"github.com/poiesic/wayfinder/core"
	"github.com/poiesic/wayfinder/geo"
	"github.com/poiesic/wayfinder/metrics"
	"github.com/poiesic/wayfinder/ontology"
	"github.com/poiesic/wayfinder/storage"
	"github.com/poiesic/wayfinder/textnorm"
)

// SortOrder orders search results.
type SortOrder string

const (
	SortRelevance SortOrder = "relevance"
	SortDistance  SortOrder = "distance"
	SortRating    SortOrder = "rating"
)

const (
	defaultLookupTimeout    = 800 * time.Millisecond
	defaultSoftRadiusKm     = 5.0
	defaultLimit            = 60
	defaultFallbackPoolSize = 200
	defaultQualityThreshold = 0.7
	defaultTimeBucket       = 5 * time.Minute
)

// Request describes a candidate search. When Slot is set the search is
// driven by the slot's expansion and Query is ignored.
type Request struct {
	Query string
	Slot  *core.Slot
	Geo   *core.GeoPoint
	// RadiusKm is a hard radius. Zero applies the soft radius, which is
	// dropped when it yields nothing.
	RadiusKm    float64
	Area        string
	Limit       int
	Offset      int
	Sort        SortOrder
	QualityOnly bool
}

// Searcher retrieves candidate places. It is safe for concurrent use.
type Searcher struct {
	places     storage.PlaceRepository
	text       storage.FullTextIndex
	registry   *ontology.Registry
	encoder    *bitset.Encoder
	strategies []Strategy
	cache      *cache.Cache[[]*core.Candidate]
	breakerCfg *config.BreakerConfig
	breaker    *gobreaker.CircuitBreaker[any]
	metrics    *metrics.Metrics

	lookupTimeout    time.Duration
	timeBucket       time.Duration
	softRadiusKm     float64
	defaultLimit     int
	fallbackPoolSize int
	qualityThreshold float64

	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithConfig applies search tuning. Zero fields keep their defaults.
func WithConfig(cfg config.SearchConfig) Option {
	return func(s *Searcher) error {
		if cfg.LookupTimeout > 0 {
			s.lookupTimeout = cfg.LookupTimeout
		}
		if cfg.TimeBucket > 0 {
			s.timeBucket = cfg.TimeBucket
		}
		if cfg.SoftRadiusKm > 0 {
			s.softRadiusKm = cfg.SoftRadiusKm
		}
		if cfg.DefaultLimit > 0 {
			s.defaultLimit = cfg.DefaultLimit
		}
		if cfg.FallbackPoolSize > 0 {
			s.fallbackPoolSize = cfg.FallbackPoolSize
		}
		return nil
	}
}

// WithCache shares a result cache with the searcher.
func WithCache(c *cache.Cache[[]*core.Candidate]) Option {
	return func(s *Searcher) error {
		s.cache = c
		return nil
	}
}

// WithBreaker guards storage lookups with a circuit breaker.
// Default is no breaker.
func WithBreaker(cfg config.BreakerConfig) Option {
	return func(s *Searcher) error {
		if !cfg.Enabled {
			s.breakerCfg = nil
			return nil
		}
		s.breakerCfg = &cfg
		return nil
	}
}

// WithMetrics records cache lookups, slot searches and degradations.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Searcher) error {
		s.metrics = m
		return nil
	}
}

// WithStrategies replaces the keyword strategy chain.
func WithStrategies(strategies ...Strategy) Option {
	return func(s *Searcher) error {
		if len(strategies) == 0 {
			return fmt.Errorf("at least one strategy is required")
		}
		s.strategies = strategies
		return nil
	}
}

// WithQualityThreshold sets the quality score a place needs to pass a
// quality-only request. Editor picks always pass.
// Default is 0.7.
func WithQualityThreshold(threshold float64) Option {
	return func(s *Searcher) error {
		if threshold < 0 || threshold > 1 {
			return fmt.Errorf("quality threshold must be within [0,1], got %v", threshold)
		}
		s.qualityThreshold = threshold
		return nil
	}
}

// NewSearcher creates a new searcher. When places also implements
// storage.FullTextIndex, free-text queries use it first.
func NewSearcher(places storage.PlaceRepository, registry *ontology.Registry, encoder *bitset.Encoder, opts ...Option) (*Searcher, error) {
	if places == nil {
		return nil, ErrPlaceRepositoryRequired
	}
	if registry == nil {
		return nil, ErrRegistryRequired
	}
	if encoder == nil {
		return nil, ErrEncoderRequired
	}

	s := &Searcher{
		places:           places,
		registry:         registry,
		encoder:          encoder,
		strategies:       DefaultStrategies(),
		lookupTimeout:    defaultLookupTimeout,
		timeBucket:       defaultTimeBucket,
		softRadiusKm:     defaultSoftRadiusKm,
		defaultLimit:     defaultLimit,
		fallbackPoolSize: defaultFallbackPoolSize,
		qualityThreshold: defaultQualityThreshold,
		now:              time.Now,
		logger:           slog.Default(),
	}
	if text, ok := places.(storage.FullTextIndex); ok {
		s.text = text
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	s.logger = s.logger.With("component", "searcher")
	if s.breakerCfg != nil {
		s.breaker = newBreaker(*s.breakerCfg, s.metrics, s.logger)
	}
	return s, nil
}

// SoftRadiusKm returns the radius applied to geo requests without a hard radius.
func (s *Searcher) SoftRadiusKm() float64 {
	return s.softRadiusKm
}

// IsQuality reports whether p passes a quality-only request.
func (s *Searcher) IsQuality(p *core.Place) bool {
	return s.isQuality(p)
}

// hit is a matched place before it becomes a candidate.
type hit struct {
	place    *core.Place
	score    float64
	distance *float64
}

// Search returns candidates for req, carrying their raw relevance in
// Scores.SearchRaw. Storage failures yield an empty list.
func (s *Searcher) Search(ctx context.Context, req Request) []*core.Candidate {
	return s.SearchWithMonitor(ctx, req, nil)
}

// SearchWithMonitor searches like Search and reports each stage to monitor.
func (s *Searcher) SearchWithMonitor(ctx context.Context, req Request, monitor SearchMonitor) []*core.Candidate {
	// Use noop monitor if none provided
	if monitor == nil {
		monitor = &noopMonitor{}
	}

	req = s.normalizeRequest(req)
	monitor.Start(req)

	key := s.cacheKey(req)
	if s.cache != nil {
		if cached, ok := s.cache.Get(key); ok {
			s.metrics.RecordCache("search", true)
			out := cloneCandidates(cached)
			monitor.CacheHit(out)
			return out
		}
		s.metrics.RecordCache("search", false)
	}

	var (
		hits []hit
		err  error
	)
	if req.Slot != nil {
		hits, err = s.searchSlot(ctx, req, monitor)
	} else {
		hits, err = s.searchText(ctx, req, monitor)
	}
	if err != nil {
		err = fmt.Errorf("%w: %w", core.ErrSearchUnavailable, err)
		s.logger.Warn("search degraded", "query", req.Query, "slot", slotKey(req.Slot), "err", err)
		s.metrics.RecordDegradation(degradationKind(err))
		monitor.Degraded(err)
		return nil
	}

	if req.QualityOnly {
		hits = slices.DeleteFunc(hits, func(h hit) bool { return !s.isQuality(h.place) })
	}
	sortHits(hits, req.Sort)
	candidates := s.toCandidates(page(hits, req.Offset, req.Limit))

	if s.cache != nil {
		s.cache.Set(key, cloneCandidates(candidates))
	}
	monitor.Finish(candidates)
	return candidates
}

// searchText runs the full-text path and falls back to the keyword chain.
// An empty query browses published places.
func (s *Searcher) searchText(ctx context.Context, req Request, monitor SearchMonitor) ([]hit, error) {
	tq := s.prepare(req.Query)
	if len(tq.Tokens) == 0 {
		return s.withinRadius(ctx, req, monitor, s.browse)
	}

	intent := DetectIntent(s.registry, req.Query)
	monitor.AfterIntentDetection(intent)
	weights := s.registry.FieldWeights(intent.Name)

	if s.text != nil {
		hits, err := s.withinRadius(ctx, req, monitor, func(ctx context.Context, filter storage.PlaceFilter) ([]hit, error) {
			return s.fullText(ctx, tq, weights, filter)
		})
		switch {
		case err != nil && ctx.Err() != nil:
			return nil, err
		case err != nil:
			s.logger.Warn("full-text search failed, using keyword strategies", "query", req.Query, "err", err)
		case len(hits) > 0:
			monitor.AfterFullTextSearch(len(hits))
			return hits, nil
		default:
			monitor.AfterFullTextSearch(0)
		}
	}

	return s.withinRadius(ctx, req, monitor, func(ctx context.Context, filter storage.PlaceFilter) ([]hit, error) {
		return s.keywordSearch(ctx, tq, filter, monitor)
	})
}

// prepare normalizes a free-text query and expands each token to its synonym group.
func (s *Searcher) prepare(q string) *TextQuery {
	tokens := textnorm.ContentWords(q)
	tq := &TextQuery{Normalized: textnorm.Normalize(q), Tokens: tokens}
	for _, t := range tokens {
		tq.Expanded = append(tq.Expanded, s.registry.Expand(t))
	}
	return tq
}

func (s *Searcher) fullText(ctx context.Context, tq *TextQuery, weights ontology.FieldWeights, filter storage.PlaceFilter) ([]hit, error) {
	q := storage.FullTextQuery{
		Groups: tq.Expanded,
		Weights: storage.FieldWeights{
			Name:    weights.Name,
			Tags:    weights.Tags,
			Summary: weights.Summary,
			Address: weights.Address,
		},
		Filter: filter,
	}
	results, err := guard(ctx, s, func(ctx context.Context) ([]storage.TextHit, error) {
		return s.text.SearchText(ctx, q)
	})
	if err != nil {
		return nil, err
	}

	hits := make([]hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, hit{place: r.Place, score: r.Score})
	}
	return hits, nil
}

// keywordSearch scores every scanned place with the strategy chain and
// sums the scores of the strategies that matched.
func (s *Searcher) keywordSearch(ctx context.Context, tq *TextQuery, filter storage.PlaceFilter, monitor SearchMonitor) ([]hit, error) {
	places, err := guard(ctx, s, func(ctx context.Context) ([]*core.Place, error) {
		return s.places.ScanPlaces(ctx, filter)
	})
	if err != nil {
		return nil, err
	}

	var hits []hit
	for _, p := range places {
		var total float64
		for _, st := range s.strategies {
			if score := st.Score(p, tq); score > 0 {
				total += score
				monitor.StrategyHit(st.Name(), p, score)
			}
		}
		if total > 0 {
			hits = append(hits, hit{place: p, score: total})
		}
	}
	return hits, nil
}

// browse returns published places without relevance, for queries with no content words.
func (s *Searcher) browse(ctx context.Context, filter storage.PlaceFilter) ([]hit, error) {
	filter.Limit = s.fallbackPoolSize
	places, err := guard(ctx, s, func(ctx context.Context) ([]*core.Place, error) {
		return s.places.ScanPlaces(ctx, filter)
	})
	if err != nil {
		return nil, err
	}

	hits := make([]hit, 0, len(places))
	for _, p := range places {
		hits = append(hits, hit{place: p})
	}
	return hits, nil
}

// withinRadius runs lookup with a bounding-box prefilter and keeps the hits
// within the radius by great-circle distance. A soft radius that yields
// nothing is retried unbounded.
func (s *Searcher) withinRadius(
	ctx context.Context,
	req Request,
	monitor SearchMonitor,
	lookup func(ctx context.Context, filter storage.PlaceFilter) ([]hit, error),
) ([]hit, error) {
	filter := storage.PlaceFilter{Area: req.Area, PublishedOnly: true}
	if req.Geo == nil {
		return lookup(ctx, filter)
	}

	radius, hard := req.RadiusKm, req.RadiusKm > 0
	if !hard {
		radius = s.softRadiusKm
	}
	box := geo.BoundingBox(*req.Geo, radius)
	filter.Box = &box

	hits, err := lookup(ctx, filter)
	if err != nil {
		return nil, err
	}
	kept := withDistance(hits, req.Geo, radius)
	if len(kept) > 0 || hard {
		monitor.AfterGeoFilter(len(kept), len(hits)-len(kept), false)
		return kept, nil
	}

	filter.Box = nil
	hits, err = lookup(ctx, filter)
	if err != nil {
		return nil, err
	}
	kept = withDistance(hits, req.Geo, math.Inf(1))
	monitor.AfterGeoFilter(len(kept), 0, true)
	return kept, nil
}

// withDistance annotates hits with their distance from origin and drops
// those beyond radiusKm. Hits without coordinates are kept only when the
// radius is unbounded.
func withDistance(hits []hit, origin *core.GeoPoint, radiusKm float64) []hit {
	kept := make([]hit, 0, len(hits))
	for _, h := range hits {
		d := geo.Distance(origin, h.place.Coords)
		if d == nil && !math.IsInf(radiusKm, 1) {
			continue
		}
		if d != nil && *d > radiusKm {
			continue
		}
		h.distance = d
		kept = append(kept, h)
	}
	return kept
}

func (s *Searcher) isQuality(p *core.Place) bool {
	return p.Signals.EditorPick || p.Signals.Quality >= s.qualityThreshold
}

// toCandidates wraps hits, reusing cached tag bits only when they were
// built by the current encoder.
func (s *Searcher) toCandidates(hits []hit) []*core.Candidate {
	version := s.encoder.Version()
	out := make([]*core.Candidate, 0, len(hits))
	for _, h := range hits {
		bits := h.place.TagBits
		if h.place.TagBitsVersion != version {
			bits = s.encoder.Encode(h.place.TagList())
		}
		out = append(out, &core.Candidate{
			Place:      h.place,
			Bits:       bits,
			DistanceKm: h.distance,
			Scores:     core.Scores{SearchRaw: h.score},
		})
	}
	return out
}

func (s *Searcher) normalizeRequest(req Request) Request {
	if req.Limit <= 0 {
		req.Limit = s.defaultLimit
	}
	if req.Offset < 0 {
		req.Offset = 0
	}
	if req.Sort == "" {
		req.Sort = SortRelevance
	}
	if req.RadiusKm < 0 {
		req.RadiusKm = 0
	}
	req.Area = strings.TrimSpace(req.Area)
	return req
}

type cacheParams struct {
	Query   string         `json:"q"`
	Geo     *core.GeoPoint `json:"geo,omitempty"`
	Radius  float64        `json:"radius"`
	Limit   int            `json:"limit"`
	Offset  int            `json:"offset"`
	Area    string         `json:"area"`
	Sort    SortOrder      `json:"sort"`
	Slot    string         `json:"slot"`
	HasDish bool           `json:"has_dish"`
	Quality bool           `json:"quality"`
	Bucket  int64          `json:"bucket"`
}

// cacheKey identifies a request. Coordinates are rounded to about 11 m.
func (s *Searcher) cacheKey(req Request) string {
	params := cacheParams{
		Query:   textnorm.Normalize(req.Query),
		Radius:  req.RadiusKm,
		Limit:   req.Limit,
		Offset:  req.Offset,
		Area:    strings.ToLower(req.Area),
		Sort:    req.Sort,
		Slot:    slotKey(req.Slot),
		Quality: req.QualityOnly,
		Bucket:  cache.TimeBucket(s.now(), s.timeBucket),
	}
	if req.Slot != nil {
		params.Query = ""
		params.HasDish = req.Slot.Filter.HasDish
	}
	if req.Geo != nil {
		rounded := geo.Round(*req.Geo)
		params.Geo = &rounded
	}
	return cache.GenerateKey("search", params)
}

// sortHits orders hits by the requested order, breaking ties by id.
func sortHits(hits []hit, order SortOrder) {
	byScore := func(a, b hit) int { return cmp.Compare(b.score, a.score) }
	byDistance := func(a, b hit) int { return cmp.Compare(distanceOf(a), distanceOf(b)) }
	byRating := func(a, b hit) int { return cmp.Compare(ratingOf(b), ratingOf(a)) }

	var keys []func(a, b hit) int
	switch order {
	case SortDistance:
		keys = []func(a, b hit) int{byDistance, byScore}
	case SortRating:
		keys = []func(a, b hit) int{byRating, byScore, byDistance}
	default:
		keys = []func(a, b hit) int{byScore, byDistance}
	}

	slices.SortStableFunc(hits, func(a, b hit) int {
		for _, key := range keys {
			if c := key(a, b); c != 0 {
				return c
			}
		}
		return cmp.Compare(a.place.Id, b.place.Id)
	})
}

func page(hits []hit, offset, limit int) []hit {
	if offset >= len(hits) {
		return nil
	}
	hits = hits[offset:]
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

func distanceOf(h hit) float64 {
	if h.distance == nil {
		return math.Inf(1)
	}
	return *h.distance
}

func ratingOf(h hit) float64 {
	if h.place.Rating == nil {
		return -1
	}
	return *h.place.Rating
}

func slotKey(slot *core.Slot) string {
	if slot == nil {
		return ""
	}
	return slot.Key()
}

// cloneCandidates copies candidates so callers may score them freely.
// Places are shared and must be treated as read-only.
func cloneCandidates(in []*core.Candidate) []*core.Candidate {
	out := make([]*core.Candidate, len(in))
	for i, c := range in {
		cp := *c
		if c.DistanceKm != nil {
			d := *c.DistanceKm
			cp.DistanceKm = &d
		}
		out[i] = &cp
	}
	return out
}
