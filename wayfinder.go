// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package wayfinder wires the query understanding and ranking engine
// together: it opens the place store, loads configuration and the
// ontology, and owns the caches, worker pool and metrics shared by every
// request.
package wayfinder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/wayfinder/bitset"
	"github.com/poiesic/wayfinder/cache"
	"github.com/poiesic/wayfinder/compose"
	"github.com/poiesic/wayfinder/config"
	"github.com/poiesic/wayfinder/core"
	"github.com/poiesic/wayfinder/metrics"
	"github.com/poiesic/wayfinder/ontology"
	"github.com/poiesic/wayfinder/query"
	"github.com/poiesic/wayfinder/reindex"
	"github.com/poiesic/wayfinder/search"
	"github.com/poiesic/wayfinder/session"
	"github.com/poiesic/wayfinder/storage"
	"github.com/poiesic/wayfinder/storage/badger"
	"github.com/prometheus/client_golang/prometheus"
)

// ErrPathRequired is returned when an on-disk engine is opened without a path.
var ErrPathRequired = errors.New("database path is required")

// Engine is the entry point of the library. It is safe for concurrent use.
type Engine struct {
	cfg          *config.Config
	backend      *badger.Backend
	places       *badger.PlaceRepository
	sessions     *badger.SessionRepository
	checkpoints  *badger.CheckpointRepository
	registry     *ontology.Registry
	encoder      *bitset.Encoder
	metrics      *metrics.Metrics
	searchCache  *cache.Cache[[]*core.Candidate]
	composeCache *cache.Cache[*core.ComposeResult]
	pool         *ants.Pool
	searcher     *search.Searcher
	extractor    *query.Extractor
	recorder     *session.Recorder
	composer     *compose.Composer
	logger       *slog.Logger
}

// Option configures an Engine.
type Option func(*engineOptions) error

type engineOptions struct {
	cfg          *config.Config
	ontologyPath string
	registerer   prometheus.Registerer
	inMemory     bool
	logger       *slog.Logger
}

// WithConfig replaces the built-in configuration. The config is validated.
func WithConfig(cfg *config.Config) Option {
	return func(o *engineOptions) error {
		if cfg == nil {
			return nil
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		o.cfg = cfg
		return nil
	}
}

// WithOntologyFile merges the YAML file at path over the built-in
// ontology. It takes precedence over the path in the configuration.
func WithOntologyFile(path string) Option {
	return func(o *engineOptions) error {
		o.ontologyPath = path
		return nil
	}
}

// WithRegisterer registers the engine metrics with reg.
// Default is a private registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *engineOptions) error {
		o.registerer = reg
		return nil
	}
}

// WithInMemory keeps all data in memory. The path passed to NewEngine is ignored.
func WithInMemory() Option {
	return func(o *engineOptions) error {
		o.inMemory = true
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *engineOptions) error {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger
		return nil
	}
}

// NewEngine opens the database directory at path and wires the engine.
func NewEngine(path string, opts ...Option) (*Engine, error) {
	options := &engineOptions{
		cfg:    config.Default(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(options); err != nil {
			return nil, err
		}
	}
	if path == "" && !options.inMemory {
		return nil, ErrPathRequired
	}

	cfg := options.cfg
	logger := options.logger
	ontologyPath := options.ontologyPath
	if ontologyPath == "" {
		ontologyPath = cfg.OntologyPath
	}

	e := &Engine{
		cfg:     cfg,
		metrics: metrics.New(options.registerer),
		logger:  logger.With("component", "engine"),
	}
	e.registry = ontology.LoadRegistry(ontologyPath, logger)
	e.encoder = bitset.NewEncoder(e.registry.PreferredTags(), e.registry.Tags(), logger)

	if err := e.open(path, options.inMemory, logger); err != nil {
		e.Close()
		return nil, err
	}
	if err := e.wire(logger); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

func (e *Engine) open(path string, inMemory bool, logger *slog.Logger) error {
	backend, err := badger.OpenBackend(path, inMemory, logger)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	e.backend = backend

	if e.places, err = badger.NewPlaceRepository(backend); err != nil {
		return fmt.Errorf("failed to create place repository: %w", err)
	}
	if e.sessions, err = badger.NewSessionRepository(backend); err != nil {
		return fmt.Errorf("failed to create session repository: %w", err)
	}
	if e.checkpoints, err = badger.NewCheckpointRepository(backend); err != nil {
		return fmt.Errorf("failed to create checkpoint repository: %w", err)
	}
	return nil
}

func (e *Engine) wire(logger *slog.Logger) error {
	var err error
	cfg := e.cfg

	if e.searchCache, err = cache.New[[]*core.Candidate](cfg.Search.CacheSize, cfg.Search.CacheTTL); err != nil {
		return fmt.Errorf("failed to create search cache: %w", err)
	}
	if e.composeCache, err = cache.New[*core.ComposeResult](cfg.Compose.CacheSize, cfg.Compose.CacheTTL); err != nil {
		return fmt.Errorf("failed to create compose cache: %w", err)
	}
	if e.pool, err = ants.NewPool(cfg.Compose.PoolSize); err != nil {
		return fmt.Errorf("failed to create worker pool: %w", err)
	}

	e.searcher, err = search.NewSearcher(e.places, e.registry, e.encoder,
		search.WithLogger(logger),
		search.WithConfig(cfg.Search),
		search.WithCache(e.searchCache),
		search.WithBreaker(cfg.Breaker),
		search.WithMetrics(e.metrics),
		search.WithQualityThreshold(cfg.Compose.QualityThreshold),
	)
	if err != nil {
		return fmt.Errorf("failed to create searcher: %w", err)
	}

	e.extractor, err = query.NewExtractor(e.registry,
		query.WithLogger(logger),
		query.WithCooccurrence(e.places),
		query.WithMetrics(e.metrics),
	)
	if err != nil {
		return fmt.Errorf("failed to create extractor: %w", err)
	}

	e.recorder, err = session.NewRecorder(e.sessions, e.registry,
		session.WithLogger(logger),
		session.WithConfig(cfg.Session),
		session.WithMetrics(e.metrics),
	)
	if err != nil {
		return fmt.Errorf("failed to create session recorder: %w", err)
	}

	e.composer, err = compose.NewComposer(e.extractor, e.searcher, e.registry, e.encoder,
		compose.WithLogger(logger),
		compose.WithConfig(cfg.Compose),
		compose.WithTimeBucket(cfg.Search.TimeBucket),
		compose.WithCache(e.composeCache),
		compose.WithPool(e.pool),
		compose.WithSessions(e.recorder),
		compose.WithMetrics(e.metrics),
	)
	if err != nil {
		return fmt.Errorf("failed to create composer: %w", err)
	}
	return nil
}

// Compose turns a free-text request into up to three rails of places.
func (e *Engine) Compose(ctx context.Context, req compose.Request) (*core.ComposeResult, error) {
	return e.composer.Compose(ctx, req)
}

// Extract returns the slots found in q.
func (e *Engine) Extract(ctx context.Context, q string) []core.Slot {
	return e.extractor.Extract(ctx, q)
}

// Search runs a single candidate search.
func (e *Engine) Search(ctx context.Context, req search.Request) []*core.Candidate {
	return e.searcher.Search(ctx, req)
}

// AddPlaces stores places with freshly encoded tag bitsets and drops every
// cached result.
func (e *Engine) AddPlaces(ctx context.Context, places ...*core.Place) ([]*core.Place, error) {
	for _, p := range places {
		p.TagBits = e.encoder.Encode(p.TagList())
		p.TagBitsVersion = e.encoder.Version()
	}
	added, err := e.places.AddPlaces(ctx, places...)
	if err != nil {
		return nil, err
	}
	e.invalidate()
	return added, nil
}

// Reindex rebuilds stale tag bitsets. Progress is written to progress when
// it is non-nil; a nil cfg uses reindex.DefaultConfig.
func (e *Engine) Reindex(ctx context.Context, cfg *reindex.Config, progress io.Writer) (reindex.Result, error) {
	opts := []reindex.Option{
		reindex.WithConfig(cfg),
		reindex.WithCheckpoints(e.checkpoints),
		reindex.WithMetrics(e.metrics),
		reindex.WithLogger(e.logger),
	}
	if progress != nil {
		opts = append(opts, reindex.WithProgress(progress))
	}
	r, err := reindex.NewReindexer(e.places, e.encoder, opts...)
	if err != nil {
		return reindex.Result{}, err
	}
	result, err := r.Run(ctx)
	if result.Rebuilt == 0 {
		return result, err
	}
	e.invalidate()
	if err == nil {
		if _, gcErr := e.backend.CollectGarbage(badger.DefaultGCDiscardRatio); gcErr != nil {
			e.logger.Warn("value log compaction failed after reindex", "err", gcErr)
		}
	}
	return result, err
}

// Places returns the place repository.
func (e *Engine) Places() storage.PlaceRepository {
	return e.places
}

// Sessions returns the session repository.
func (e *Engine) Sessions() storage.SessionRepository {
	return e.sessions
}

// Registry returns the compiled ontology.
func (e *Engine) Registry() *ontology.Registry {
	return e.registry
}

// Encoder returns the tag encoder.
func (e *Engine) Encoder() *bitset.Encoder {
	return e.encoder
}

// Metrics returns the engine instrumentation.
func (e *Engine) Metrics() *metrics.Metrics {
	return e.metrics
}

// WaitSessions blocks until queued session signals are written.
func (e *Engine) WaitSessions() {
	if e.recorder != nil {
		e.recorder.Wait()
	}
}

func (e *Engine) invalidate() {
	e.searchCache.Clear()
	e.composeCache.Clear()
}

// Close flushes pending session signals and releases every resource.
// The engine should not be used after calling Close.
func (e *Engine) Close() error {
	if e.recorder != nil {
		e.recorder.Release()
	}
	if e.composer != nil {
		e.composer.Release()
	}
	if e.pool != nil {
		e.pool.Release()
	}
	if e.composeCache != nil {
		e.composeCache.Close()
	}
	if e.searchCache != nil {
		e.searchCache.Close()
	}

	var errs []error
	if e.sessions != nil {
		if err := e.sessions.Close(); err != nil {
			e.logger.Error("error closing session repository", "err", err)
			errs = append(errs, err)
		}
	}
	if e.places != nil {
		if err := e.places.Close(); err != nil {
			e.logger.Error("error closing place repository", "err", err)
			errs = append(errs, err)
		}
	}
	if e.backend != nil {
		if err := e.backend.Close(); err != nil {
			e.logger.Error("error closing backend storage", "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
