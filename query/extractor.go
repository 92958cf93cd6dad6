// Package query turns free-text queries into typed, canonical slots.
package query

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/poiesic/wayfinder/core"
	"github.com/poiesic/wayfinder/metrics"
	"github.com/poiesic/wayfinder/ontology"
	"github.com/poiesic/wayfinder/textnorm"
	"github.com/xrash/smetrics"
)

// Confidence assigned per extraction path.
const (
	ConfidenceExact        = 1.0
	ConfidencePhrase       = 0.9
	ConfidenceEditorial    = 0.4
	ConfidenceHint         = 0.35
	ConfidenceCooccurrence = 0.3
)

const (
	// maxSpanTokens bounds the longest phrase considered.
	maxSpanTokens = 6

	// A query this short with a slot this confident gets no guessed slots.
	shortQueryTokens   = 5
	dominantConfidence = 0.8

	defaultCooccurrenceTimeout = 300 * time.Millisecond
)

// CooccurrenceSource reports how often tags appear alongside the given tags.
// storage.PlaceRepository satisfies it.
type CooccurrenceSource interface {
	TagCooccurrence(ctx context.Context, tags []string) (map[string]int, error)
}

// Extractor finds slots in queries. It is safe for concurrent use.
type Extractor struct {
	registry            *ontology.Registry
	cooccurrence        CooccurrenceSource
	cooccurrenceTimeout time.Duration
	metrics             *metrics.Metrics
	logger              *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
		return nil
	}
}

// WithCooccurrence enables the co-occurrence fallback.
func WithCooccurrence(source CooccurrenceSource) Option {
	return func(e *Extractor) error {
		e.cooccurrence = source
		return nil
	}
}

// WithCooccurrenceTimeout bounds the co-occurrence lookup.
// Default is 300ms.
func WithCooccurrenceTimeout(d time.Duration) Option {
	return func(e *Extractor) error {
		if d <= 0 {
			return fmt.Errorf("cooccurrence timeout must be positive, got %v", d)
		}
		e.cooccurrenceTimeout = d
		return nil
	}
}

// WithMetrics records degradations.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Extractor) error {
		e.metrics = m
		return nil
	}
}

// NewExtractor creates an extractor over registry.
func NewExtractor(registry *ontology.Registry, opts ...Option) (*Extractor, error) {
	if registry == nil {
		return nil, ErrRegistryRequired
	}

	e := &Extractor{
		registry:            registry,
		cooccurrenceTimeout: defaultCooccurrenceTimeout,
		logger:              slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}

	e.logger = e.logger.With("component", "extractor")
	return e, nil
}

// Extract returns at most three slots for query, ordered by confidence and
// then by position. It never fails: internal errors yield no slots.
func (e *Extractor) Extract(ctx context.Context, query string) (slots []core.Slot) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("slot extraction failed", "query", query, "err", fmt.Errorf("%w: %v", core.ErrParseDegraded, r))
			e.metrics.RecordDegradation(metrics.KindParse)
			slots = nil
		}
	}()

	segments := textnorm.Segments(query)
	p := newParse(segments)
	if p.tokenCount == 0 {
		return nil
	}

	e.matchSpans(p)
	e.matchFuzzy(p)

	if len(p.slots) < core.MaxRails && !p.dominated() {
		e.applyFallbacks(ctx, p)
	}

	slots = p.result()
	if len(slots) == 0 {
		e.logger.Debug("no slots extracted", "query", query, "err", core.ErrParseDegraded)
	}
	return slots
}

// parse is the working state of a single extraction.
type parse struct {
	segments   [][]textnorm.Token
	tokens     []textnorm.Token
	tokenCount int
	consumed   map[int]bool
	slots      map[string]core.Slot
	order      []string
}

func newParse(segments [][]textnorm.Token) *parse {
	p := &parse{
		segments: segments,
		consumed: make(map[int]bool),
		slots:    make(map[string]core.Slot),
	}
	for _, seg := range segments {
		p.tokens = append(p.tokens, seg...)
	}
	p.tokenCount = len(p.tokens)
	return p
}

// add keeps the higher-confidence slot per key.
func (p *parse) add(slot core.Slot) {
	key := slot.Key()
	if existing, ok := p.slots[key]; ok {
		if slot.Confidence > existing.Confidence {
			p.slots[key] = slot
		}
		return
	}
	p.slots[key] = slot
	p.order = append(p.order, key)
}

func (p *parse) has(key string) bool {
	_, ok := p.slots[key]
	return ok
}

// dominated reports whether a short query already has a confident slot.
func (p *parse) dominated() bool {
	if p.tokenCount > shortQueryTokens {
		return false
	}
	for _, s := range p.slots {
		if s.Confidence >= dominantConfidence {
			return true
		}
	}
	return false
}

func (p *parse) result() []core.Slot {
	out := make([]core.Slot, 0, len(p.order))
	for _, key := range p.order {
		out = append(out, p.slots[key])
	}

	slices.SortStableFunc(out, func(a, b core.Slot) int {
		if c := cmp.Compare(b.Confidence, a.Confidence); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Position, b.Position); c != 0 {
			return c
		}
		return cmp.Compare(a.Key(), b.Key())
	})
	if len(out) > core.MaxRails {
		out = out[:core.MaxRails]
	}

	// only slots that survive the cap count as dish context
	hasDish := slices.ContainsFunc(out, func(s core.Slot) bool { return s.Type == core.SlotTypeDish })
	for i := range out {
		out[i].Filter.HasDish = hasDish
	}
	return out
}

// matchSpans claims token ranges longest first within each segment.
func (e *Extractor) matchSpans(p *parse) {
	longest := min(e.registry.MaxSpanTokens(), maxSpanTokens)
	for n := longest; n >= 1; n-- {
		for _, seg := range p.segments {
			segText := joinTokens(seg)
			for i := 0; i+n <= len(seg); i++ {
				span := seg[i : i+n]
				if p.anyConsumed(span) {
					continue
				}
				text := joinTokens(span)
				surface, ok := e.firstAllowed(e.registry.Lookup(text), segText)
				if !ok {
					continue
				}

				confidence, reason := ConfidenceExact, core.ReasonExact
				if n > 1 {
					confidence, reason = ConfidencePhrase, core.ReasonPhrase
				}
				if slot, ok := e.registry.NewSlot(surface.Key, confidence, text, reason, span[0].Pos); ok {
					p.add(slot)
					p.consume(span)
				}
			}
		}
	}
}

// matchFuzzy maps each unclaimed content token to its closest single-word
// surface when the edit-distance ratio clears the type's threshold.
func (e *Extractor) matchFuzzy(p *parse) {
	if !e.registry.FuzzyEnabled() {
		return
	}
	minLen := e.registry.FuzzyMinLength()

	for _, seg := range p.segments {
		segText := joinTokens(seg)
		for _, tok := range seg {
			if p.consumed[tok.Pos] || len(tok.Text) < minLen || textnorm.IsStopWord(tok.Text) {
				continue
			}

			var (
				best      ontology.Surface
				bestRatio float64
			)
			for _, s := range e.registry.SingleTokenSurfaces() {
				ratio := Similarity(tok.Text, s.Text)
				if ratio >= e.registry.FuzzyThreshold(s.Type) && ratio > bestRatio && !denied(s, segText) {
					best, bestRatio = s, ratio
				}
			}
			if bestRatio == 0 {
				continue
			}
			if slot, ok := e.registry.NewSlot(best.Key, bestRatio, tok.Text, core.ReasonFuzzy, tok.Pos); ok {
				p.add(slot)
				p.consumed[tok.Pos] = true
			}
		}
	}
}

// applyFallbacks adds low-confidence slots until three exist: editorial
// triggers, then hints for unclaimed tokens, then tag co-occurrence.
func (e *Extractor) applyFallbacks(ctx context.Context, p *parse) {
	matched := slices.Clone(p.order)

	normalized := " " + joinTokens(p.tokens) + " "
	for _, rule := range e.registry.EditorialRules() {
		if len(p.slots) >= core.MaxRails {
			return
		}
		if p.has(rule.Key) {
			continue
		}
		for _, trig := range rule.Triggers {
			if idx := strings.Index(normalized, " "+trig+" "); idx >= 0 {
				pos := strings.Count(normalized[:idx+1], " ") - 1
				if slot, ok := e.registry.NewSlot(rule.Key, ConfidenceEditorial, trig, core.ReasonEditorial, pos); ok {
					p.add(slot)
				}
				break
			}
		}
	}

	for _, tok := range p.tokens {
		if len(p.slots) >= core.MaxRails {
			return
		}
		if p.consumed[tok.Pos] {
			continue
		}
		key, ok := e.registry.Hint(tok.Text)
		if !ok || p.has(key) {
			continue
		}
		if slot, ok := e.registry.NewSlot(key, ConfidenceHint, tok.Text, core.ReasonHint, tok.Pos); ok {
			p.add(slot)
			p.consumed[tok.Pos] = true
		}
	}

	if len(p.slots) < core.MaxRails && len(matched) > 0 && e.cooccurrence != nil {
		e.addCooccurring(ctx, p, matched)
	}
}

// addCooccurring seeds from the directly matched slots only.
func (e *Extractor) addCooccurring(ctx context.Context, p *parse, matched []string) {
	var tags []string
	for _, key := range matched {
		for _, tag := range e.registry.ExpansionTags(key) {
			if !slices.Contains(tags, tag) {
				tags = append(tags, tag)
			}
		}
	}
	if len(tags) == 0 {
		return
	}

	lookupCtx, cancel := context.WithTimeout(ctx, e.cooccurrenceTimeout)
	defer cancel()
	counts, err := e.cooccurrence.TagCooccurrence(lookupCtx, tags)
	if err != nil {
		e.logger.Warn("co-occurrence lookup failed", "tags", tags, "err", err)
		return
	}

	ranked := make([]string, 0, len(counts))
	for tag := range counts {
		ranked = append(ranked, tag)
	}
	slices.SortFunc(ranked, func(a, b string) int {
		if c := cmp.Compare(counts[b], counts[a]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})

	for _, tag := range ranked {
		for _, key := range e.registry.SlotsForTag(tag) {
			if len(p.slots) >= core.MaxRails {
				return
			}
			if p.has(key) {
				continue
			}
			if slot, ok := e.registry.NewSlot(key, ConfidenceCooccurrence, tag, core.ReasonCooccurrence, p.tokenCount); ok {
				p.add(slot)
			}
			break
		}
	}
}

func (e *Extractor) firstAllowed(surfaces []ontology.Surface, segText string) (ontology.Surface, bool) {
	for _, s := range surfaces {
		if !denied(s, segText) {
			return s, true
		}
	}
	return ontology.Surface{}, false
}

func (p *parse) anyConsumed(span []textnorm.Token) bool {
	for _, t := range span {
		if p.consumed[t.Pos] {
			return true
		}
	}
	return false
}

func (p *parse) consume(span []textnorm.Token) {
	for _, t := range span {
		p.consumed[t.Pos] = true
	}
}

// denied reports whether a denylisted form of s occurs in the segment.
func denied(s ontology.Surface, segText string) bool {
	padded := " " + segText + " "
	for _, d := range s.Denylist {
		if strings.Contains(padded, " "+d+" ") {
			return true
		}
	}
	return false
}

func joinTokens(tokens []textnorm.Token) string {
	var b strings.Builder
	for i, t := range tokens {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(t.Text)
	}
	return b.String()
}

// Similarity is the edit-distance ratio 1 - lev(a,b)/max(|a|,|b|), in [0,1].
func Similarity(a, b string) float64 {
	longest := max(len(a), len(b))
	if longest == 0 {
		return 0
	}
	return 1 - float64(smetrics.WagnerFischer(a, b, 1, 1, 1))/float64(longest)
}
