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

package reindex

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/wayfinder/bitset"
	"github.com/poiesic/wayfinder/core"
	"github.com/poiesic/wayfinder/metrics"
	"github.com/poiesic/wayfinder/storage"
)

// CheckpointName identifies the reindex job in the checkpoint store.
const CheckpointName = "reindex_tagbits"

// Config holds configuration for a reindex run.
type Config struct {
	// BatchSize is the number of places fetched and written per batch
	BatchSize int

	// ReportInterval is how often to report progress (number of places)
	ReportInterval int

	// MaxRetries is the maximum number of attempts for a batch update
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      DefaultBatchSize,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
	}
}

// Result summarizes a reindex run.
type Result struct {
	// Scanned counts places visited by this run.
	Scanned int
	// Rebuilt counts places whose bitset was rewritten.
	Rebuilt int
	// Resumed is true when the run continued from a saved checkpoint.
	Resumed bool
	Elapsed time.Duration
}

// Reindexer rebuilds the cached tag bitsets of every place.
type Reindexer struct {
	places      storage.PlaceRepository
	encoder     *bitset.Encoder
	checkpoints storage.CheckpointRepository
	config      *Config
	progress    io.Writer
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// Option configures a Reindexer.
type Option func(*Reindexer) error

// WithConfig replaces the default run configuration.
func WithConfig(cfg *Config) Option {
	return func(r *Reindexer) error {
		if cfg != nil {
			r.config = cfg
		}
		return nil
	}
}

// WithCheckpoints makes runs resumable.
func WithCheckpoints(checkpoints storage.CheckpointRepository) Option {
	return func(r *Reindexer) error {
		r.checkpoints = checkpoints
		return nil
	}
}

// WithProgress reports progress to w, typically os.Stderr.
func WithProgress(w io.Writer) Option {
	return func(r *Reindexer) error {
		r.progress = w
		return nil
	}
}

// WithMetrics counts rebuilt places.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reindexer) error {
		r.metrics = m
		return nil
	}
}

// WithLogger sets the logger. A nil logger selects slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reindexer) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// NewReindexer creates a reindexer for places using encoder.
func NewReindexer(places storage.PlaceRepository, encoder *bitset.Encoder, opts ...Option) (*Reindexer, error) {
	if places == nil {
		return nil, ErrPlaceRepositoryRequired
	}
	if encoder == nil {
		return nil, ErrEncoderRequired
	}

	r := &Reindexer{
		places:   places,
		encoder:  encoder,
		config:   DefaultConfig(),
		progress: io.Discard,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	if r.config.MaxRetries <= 0 {
		return nil, ErrInvalidMaxAttempts
	}
	r.logger = r.logger.With("component", "reindexer")
	return r, nil
}

// Run walks every place and rewrites the ones whose bitset is stale.
// With checkpoints configured, progress is saved after every batch and a
// later run with the same encoder version resumes after the last saved
// place. The checkpoint is removed when the run completes.
func (r *Reindexer) Run(ctx context.Context) (Result, error) {
	var result Result

	after, err := r.resumePoint(ctx)
	if err != nil {
		return result, err
	}
	result.Resumed = after != 0

	iterator := NewPlaceIterator(r.places, r.config.BatchSize)
	total, err := iterator.Count(ctx, after)
	if err != nil {
		return result, fmt.Errorf("failed to count places: %w", err)
	}
	if total == 0 {
		fmt.Fprintf(r.progress, "No places to reindex\n")
		return result, r.clearCheckpoint(ctx)
	}

	fmt.Fprintf(r.progress, "Reindexing %d places (batch size: %d, encoder version: %x)\n",
		total, r.config.BatchSize, r.encoder.Version())
	r.logger.Info("reindex started", "places", total, "resumed", result.Resumed, "version", r.encoder.Version())

	processor := NewBatchProcessor(r.places, r.encoder, r.config.MaxRetries, r.config.RetryDelay, r.logger)
	tracker := NewProgressTracker(r.progress, total, r.config.ReportInterval)
	tracker.Start()

	err = iterator.ForEach(ctx, after, func(batch []*core.Place) error {
		n, err := processor.Process(ctx, batch)
		if err != nil {
			return fmt.Errorf("failed to process batch: %w", err)
		}
		result.Scanned += len(batch)
		result.Rebuilt += n
		r.metrics.RecordReindexed(n)
		tracker.Increment(len(batch), n)
		return r.saveCheckpoint(ctx, batch[len(batch)-1].Id)
	})
	result.Elapsed = tracker.Elapsed()
	if err != nil {
		r.logger.Warn("reindex interrupted", "scanned", result.Scanned, "rebuilt", result.Rebuilt, "err", err)
		return result, err
	}

	tracker.Finish()
	if err := r.clearCheckpoint(ctx); err != nil {
		return result, err
	}

	fmt.Fprintf(r.progress, "Reindex complete. Rebuilt %d of %d places in %v\n",
		result.Rebuilt, result.Scanned, result.Elapsed.Round(time.Millisecond))
	r.logger.Info("reindex complete", "scanned", result.Scanned, "rebuilt", result.Rebuilt, "elapsed", result.Elapsed)
	return result, nil
}

// resumePoint returns the last processed ID of an unfinished run with the
// current encoder, or 0. Checkpoints left by another encoder version are
// discarded.
func (r *Reindexer) resumePoint(ctx context.Context) (core.ID, error) {
	if r.checkpoints == nil {
		return 0, nil
	}
	cp, err := r.checkpoints.LoadCheckpoint(ctx, CheckpointName)
	if err != nil {
		return 0, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if cp == nil {
		return 0, nil
	}
	if cp.Version != r.encoder.Version() {
		r.logger.Info("discarding checkpoint from another encoder version", "version", cp.Version)
		return 0, r.clearCheckpoint(ctx)
	}
	r.logger.Info("resuming reindex", "after", cp.LastID)
	return cp.LastID, nil
}

func (r *Reindexer) saveCheckpoint(ctx context.Context, last core.ID) error {
	if r.checkpoints == nil {
		return nil
	}
	err := r.checkpoints.SaveCheckpoint(ctx, &core.Checkpoint{
		ProcessorType: CheckpointName,
		LastID:        last,
		Version:       r.encoder.Version(),
	})
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

func (r *Reindexer) clearCheckpoint(ctx context.Context) error {
	if r.checkpoints == nil {
		return nil
	}
	if err := r.checkpoints.DeleteCheckpoint(ctx, CheckpointName); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}
