// Package session reads session profiles and records search signals.
//
// Recording is fire-and-forget: signals are handed to a worker pool and any
// storage failure is logged and dropped, never surfaced to the request that
// produced the signal.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/wayfinder/config"
	"github.com/poiesic/wayfinder/core"
	"github.com/poiesic/wayfinder/metrics"
	"github.com/poiesic/wayfinder/ontology"
	"github.com/poiesic/wayfinder/storage"
)

// minVibeWeight is the weight below which a tag is dropped from the vibe vector.
const minVibeWeight = 0.01

// recordTimeout bounds a single background write.
const recordTimeout = 5 * time.Second

// Recorder owns the session worker pool.
type Recorder struct {
	sessions storage.SessionRepository
	registry *ontology.Registry
	pool     *ants.Pool
	cfg      config.SessionConfig
	metrics  *metrics.Metrics
	inflight sync.WaitGroup
	logger   *slog.Logger
}

// Option configures a Recorder.
type Option func(*Recorder) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// WithConfig replaces the session settings, including the pool size.
func WithConfig(cfg config.SessionConfig) Option {
	return func(r *Recorder) error {
		r.cfg = cfg
		return nil
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Recorder) error {
		r.metrics = m
		return nil
	}
}

// NewRecorder creates a recorder backed by sessions.
func NewRecorder(sessions storage.SessionRepository, registry *ontology.Registry, opts ...Option) (*Recorder, error) {
	if sessions == nil {
		return nil, ErrSessionRepositoryRequired
	}
	if registry == nil {
		return nil, ErrRegistryRequired
	}

	r := &Recorder{
		sessions: sessions,
		registry: registry,
		cfg:      config.Default().Session,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	r.logger = r.logger.With("component", "session")

	size := max(r.cfg.PoolSize, 1)
	pool, err := ants.NewPool(size, ants.WithNonblocking(true))
	if err != nil {
		return nil, err
	}
	r.pool = pool
	return r, nil
}

// Profile returns the profile of a session. Unknown or empty sessions, and
// a disabled recorder, yield nil without error.
func (r *Recorder) Profile(ctx context.Context, sessionID string) (*core.SessionProfile, error) {
	if !r.cfg.Enabled || sessionID == "" {
		return nil, nil
	}
	profile, err := r.sessions.GetProfile(ctx, sessionID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return profile, nil
}

// Record queues a signal and the places shown for it. It never blocks on
// storage; when the pool is saturated the signal is dropped.
func (r *Recorder) Record(signal *core.SearchSignal, shown []core.ID) {
	if !r.cfg.Enabled || signal == nil || signal.SessionID == "" {
		return
	}
	if signal.At.IsZero() {
		signal.At = time.Now().UTC()
	}

	r.inflight.Add(1)
	err := r.pool.Submit(func() {
		defer r.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()
		if err := r.record(ctx, signal, shown); err != nil {
			r.logger.Warn("error recording session signal", "session", signal.SessionID, "err", err)
		}
	})
	if err != nil {
		r.inflight.Done()
		r.logger.Warn("session signal dropped", "session", signal.SessionID, "err", err)
	}
}

func (r *Recorder) record(ctx context.Context, signal *core.SearchSignal, shown []core.ID) error {
	if err := r.sessions.AppendSignal(ctx, signal); err != nil {
		return err
	}
	r.metrics.RecordSessionSignal()

	profile, err := r.sessions.GetOrCreateProfile(ctx, signal.SessionID)
	if err != nil {
		return err
	}
	r.nudge(profile, signal.Slots)
	profile.SeenPlaces = appendSeen(profile.SeenPlaces, shown, r.cfg.SeenLimit)
	return r.sessions.SaveProfile(ctx, profile)
}

// nudge decays every vibe weight and bumps the expansion tags of the
// searched slots, capped at 1.
func (r *Recorder) nudge(profile *core.SessionProfile, slotKeys []string) {
	if profile.Vibe == nil {
		profile.Vibe = make(map[string]float64)
	}
	for tag, w := range profile.Vibe {
		profile.Vibe[tag] = w * r.cfg.VibeDecay
	}
	for _, key := range slotKeys {
		for _, tag := range r.registry.ExpansionTags(key) {
			profile.Vibe[tag] = min(1, profile.Vibe[tag]+r.cfg.VibeBump)
		}
	}
	for tag, w := range profile.Vibe {
		if w < minVibeWeight {
			delete(profile.Vibe, tag)
		}
	}
}

// appendSeen adds unseen ids and keeps the newest limit entries.
func appendSeen(seen, shown []core.ID, limit int) []core.ID {
	known := make(map[core.ID]struct{}, len(seen))
	for _, id := range seen {
		known[id] = struct{}{}
	}
	for _, id := range shown {
		if _, ok := known[id]; ok {
			continue
		}
		known[id] = struct{}{}
		seen = append(seen, id)
	}
	if limit > 0 && len(seen) > limit {
		seen = seen[len(seen)-limit:]
	}
	return seen
}

// Wait blocks until every queued signal has been written or dropped.
func (r *Recorder) Wait() {
	r.inflight.Wait()
}

// Release waits for queued signals and releases the worker pool.
// The recorder should not be used after calling Release.
func (r *Recorder) Release() {
	r.Wait()
	if r.pool != nil {
		r.pool.Release()
	}
}
