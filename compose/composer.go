// Package compose turns a free-text query into exactly three rails of
// places: one per extracted slot, then broadened backfill, then global
// suggestion rails. A place appears at most once across the rails of a
// response.
package compose

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"golang.org/x/sync/singleflight"

	"github.com/poiesic/wayfinder/bitset"
	"github.com/poiesic/wayfinder/cache"
	"github.com/poiesic/wayfinder/config"
	"github.com/poiesic/wayfinder/core"
	"github.com/poiesic/wayfinder/metrics"
	"github.com/poiesic/wayfinder/ontology"
	"github.com/poiesic/wayfinder/query"
	"github.com/poiesic/wayfinder/ranking"
	"github.com/poiesic/wayfinder/search"
	"github.com/poiesic/wayfinder/session"
)

const defaultTimeBucket = 5 * time.Minute

// Composer composes rails. It is safe for concurrent use.
type Composer struct {
	extractor *query.Extractor
	searcher  *search.Searcher
	registry  *ontology.Registry
	encoder   *bitset.Encoder
	sessions  *session.Recorder

	pool     *ants.Pool
	ownsPool bool
	cache    *cache.Cache[*core.ComposeResult]
	group    singleflight.Group

	cfg        config.ComposeConfig
	timeBucket time.Duration
	metrics    *metrics.Metrics
	now        func() time.Time
	logger     *slog.Logger
}

// Option configures a Composer.
type Option func(*Composer) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Composer) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// WithConfig replaces the composition settings.
func WithConfig(cfg config.ComposeConfig) Option {
	return func(c *Composer) error {
		if err := config.ValidateStruct(cfg); err != nil {
			return err
		}
		c.cfg = cfg
		return nil
	}
}

// WithTimeBucket sets the period after which cached compositions rotate.
func WithTimeBucket(d time.Duration) Option {
	return func(c *Composer) error {
		if d > 0 {
			c.timeBucket = d
		}
		return nil
	}
}

// WithCache caches composed results.
func WithCache(rc *cache.Cache[*core.ComposeResult]) Option {
	return func(c *Composer) error {
		c.cache = rc
		return nil
	}
}

// WithPool issues slot searches on a shared worker pool. The composer does
// not release a shared pool.
func WithPool(pool *ants.Pool) Option {
	return func(c *Composer) error {
		c.pool = pool
		return nil
	}
}

// WithSessions personalizes ranking and records search signals.
func WithSessions(r *session.Recorder) Option {
	return func(c *Composer) error {
		c.sessions = r
		return nil
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Composer) error {
		c.metrics = m
		return nil
	}
}

// NewComposer creates a composer.
func NewComposer(
	extractor *query.Extractor,
	searcher *search.Searcher,
	registry *ontology.Registry,
	encoder *bitset.Encoder,
	opts ...Option,
) (*Composer, error) {
	if extractor == nil {
		return nil, ErrExtractorRequired
	}
	if searcher == nil {
		return nil, ErrSearcherRequired
	}
	if registry == nil {
		return nil, ErrRegistryRequired
	}
	if encoder == nil {
		return nil, ErrEncoderRequired
	}

	c := &Composer{
		extractor:  extractor,
		searcher:   searcher,
		registry:   registry,
		encoder:    encoder,
		cfg:        config.Default().Compose,
		timeBucket: defaultTimeBucket,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	c.logger = c.logger.With("component", "composer")

	if c.pool == nil {
		size := c.cfg.PoolSize
		if size < 1 {
			size = max(runtime.NumCPU(), 2)
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return nil, err
		}
		c.pool = pool
		c.ownsPool = true
	}
	return c, nil
}

// Release frees the worker pool when the composer created it.
// The composer should not be used after calling Release.
func (c *Composer) Release() {
	if c.ownsPool && c.pool != nil {
		c.pool.Release()
	}
}

// Compose returns up to three rails for req. The only error besides an
// invalid request is core.ErrTimeout: when the deadline expires no partial
// result is returned and nothing is cached. Every other failure degrades
// into fewer or emptier rails.
func (c *Composer) Compose(ctx context.Context, req Request) (*core.ComposeResult, error) {
	start := c.now()
	req = normalizeRequest(req)
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	if c.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}

	key := c.cacheKey(req)
	if c.cache != nil {
		if cached, ok := c.cache.Get(key); ok {
			c.metrics.RecordCache("compose", true)
			result := cloneResult(cached)
			result.CacheHit = true
			result.ProcessingTimeMs = c.now().Sub(start).Milliseconds()
			c.metrics.RecordCompose(string(req.Mode), "cached", c.now().Sub(start))
			c.record(req, result)
			return result, nil
		}
		c.metrics.RecordCache("compose", false)
	}

	// The flight outlives any single caller; each caller waits on its own ctx.
	flight := c.group.DoChan(key, func() (any, error) {
		fctx := context.WithoutCancel(ctx)
		if c.cfg.RequestTimeout > 0 {
			var cancel context.CancelFunc
			fctx, cancel = context.WithTimeout(fctx, c.cfg.RequestTimeout)
			defer cancel()
		}
		result, err := c.compose(fctx, req)
		if err != nil {
			return nil, err
		}
		if c.cache != nil {
			c.cache.Set(key, cloneResult(result))
		}
		return result, nil
	})

	var (
		v   any
		err error
	)
	select {
	case res := <-flight:
		v, err = res.Val, res.Err
	case <-ctx.Done():
		err = fmt.Errorf("%w: %w", core.ErrTimeout, ctx.Err())
	}
	elapsed := c.now().Sub(start)
	if err != nil {
		c.metrics.RecordCompose(string(req.Mode), "timeout", elapsed)
		c.metrics.RecordDegradation(metrics.KindTimeout)
		c.logger.Warn("compose timed out",
			"query", req.Query, "mode", req.Mode, "elapsed", elapsed, "err", err)
		return nil, err
	}

	// Callers sharing a flight must not share the result.
	result := cloneResult(v.(*core.ComposeResult))
	result.ProcessingTimeMs = elapsed.Milliseconds()
	c.metrics.RecordCompose(string(req.Mode), "ok", elapsed)
	c.record(req, result)
	return result, nil
}

func (c *Composer) compose(ctx context.Context, req Request) (*core.ComposeResult, error) {
	slots := c.extractor.Extract(ctx, req.Query)
	if len(slots) == 0 && req.Query != "" {
		c.logger.Info("no slots extracted, using free-text search",
			"query", req.Query, "err", core.ErrParseDegraded)
		c.metrics.RecordDegradation(metrics.KindParse)
	}

	profile := c.profile(ctx, req.SessionID)
	lists, err := c.searchSlots(ctx, req, slots, profile)
	if err != nil {
		return nil, err
	}

	b := newBuilder(c.cfg.RailSize)
	c.admitGlobal(ctx, b, req, profile)
	for _, list := range lists {
		b.admit(list)
	}
	for i := range slots {
		c.addSlotRail(b, &slots[i], lists[i])
	}
	if b.needed() > 0 && req.Query != "" {
		c.backfill(ctx, b, req, profile)
	}
	if b.needed() > 0 {
		c.suggest(b, req)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrTimeout, err)
	}

	if len(b.rails) < core.MaxRails {
		c.logger.Warn("composed fewer rails than wanted",
			"query", req.Query, "mode", req.Mode, "slots", slotKeys(slots), "rails", len(b.rails))
	}
	return &core.ComposeResult{Rails: b.rails, Slots: slots}, nil
}

// searchSlots searches every slot on the worker pool and runs the first two
// ranking stages on each list.
func (c *Composer) searchSlots(ctx context.Context, req Request, slots []core.Slot, profile *core.SessionProfile) ([][]*core.Candidate, error) {
	lists := make([][]*core.Candidate, len(slots))
	if len(slots) == 0 {
		return lists, nil
	}

	var wg sync.WaitGroup
	for i := range slots {
		task := func() {
			defer wg.Done()
			slot := &slots[i]
			cands := c.searcher.Search(ctx, search.Request{
				Slot:        slot,
				Geo:         req.Geo,
				Area:        req.Area,
				Limit:       c.cfg.CandidateLimit,
				QualityOnly: req.QualityOnly,
			})
			rctx := ranking.NewContext(c.registry, c.encoder, ranking.Params{
				Mode:    req.Mode,
				Query:   req.Query,
				Slot:    slot,
				Session: profile,
				Origin:  req.Geo,
			})
			lists[i] = ranking.Proximity(ranking.Score(cands, rctx), rctx)
		}
		wg.Add(1)
		if err := c.pool.Submit(task); err != nil {
			c.logger.Debug("pool unavailable, searching inline", "err", err)
			task()
		}
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", core.ErrTimeout, ctx.Err())
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrTimeout, err)
	}
	return lists, nil
}

func (c *Composer) profile(ctx context.Context, sessionID string) *core.SessionProfile {
	if c.sessions == nil || sessionID == "" {
		return nil
	}
	profile, err := c.sessions.Profile(ctx, sessionID)
	if err != nil {
		c.logger.Warn("error loading session profile", "session", sessionID, "err", err)
		return nil
	}
	return profile
}

func (c *Composer) record(req Request, result *core.ComposeResult) {
	if c.sessions == nil || req.SessionID == "" {
		return
	}
	var shown []core.ID
	for _, rail := range result.Rails {
		for _, item := range rail.Items {
			shown = append(shown, item.Id)
		}
	}
	c.sessions.Record(&core.SearchSignal{
		SessionID: req.SessionID,
		Query:     req.Query,
		Slots:     slotKeys(result.Slots),
		At:        c.now().UTC(),
	}, shown)
}

func slotKeys(slots []core.Slot) []string {
	keys := make([]string, 0, len(slots))
	for _, s := range slots {
		keys = append(keys, s.Key())
	}
	return keys
}
