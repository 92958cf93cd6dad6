// Package bitset packs place tag sets into 64-bit integers and scores them
// against each other in constant time.
//
// The bit assignment is stable: a fixed preferred ordering comes first so
// bitsets persisted by earlier builds stay meaningful, and every remaining
// tag is assigned in sorted order. The encoder Version is a fingerprint of
// that assignment; stored bitsets with a different version must be
// re-derived from the tag list.
package bitset

import (
	"encoding/binary"
	"log/slog"
	"math/bits"
	"slices"
	"strings"

	"github.com/go-crypt/x/blake2b"
)

// Width is the number of tags a bitset can hold.
const Width = 64

// Encoder maps tags to bit positions.
type Encoder struct {
	order   []string
	index   map[string]uint
	version uint64
	dropped []string
}

// NewEncoder builds an encoder from a preferred ordering plus the remaining tags.
// Tags are normalized to lowercase. When more than Width distinct tags are
// supplied the overflow is logged and dropped.
func NewEncoder(preferred, tags []string, logger *slog.Logger) *Encoder {
	if logger == nil {
		logger = slog.Default()
	}

	seen := make(map[string]struct{}, len(preferred)+len(tags))
	order := make([]string, 0, len(preferred)+len(tags))
	add := func(tag string) {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			return
		}
		if _, ok := seen[tag]; ok {
			return
		}
		seen[tag] = struct{}{}
		order = append(order, tag)
	}

	for _, tag := range preferred {
		add(tag)
	}
	fixed := len(order)

	for _, tag := range tags {
		add(tag)
	}
	slices.Sort(order[fixed:])

	e := &Encoder{}
	if len(order) > Width {
		e.dropped = slices.Clone(order[Width:])
		logger.Warn("too many distinct tags for bitset, extra tags ignored",
			"distinct", len(order), "width", Width, "dropped", e.dropped)
		order = order[:Width]
	}

	e.order = order
	e.index = make(map[string]uint, len(order))
	for i, tag := range order {
		e.index[tag] = uint(i)
	}
	e.version = fingerprint(order)
	return e
}

func fingerprint(order []string) uint64 {
	h, _ := blake2b.New(8, nil)
	h.Write([]byte(strings.Join(order, "\x00")))
	return binary.LittleEndian.Uint64(h.Sum(nil))
}

// Encode packs tags into a bitset. Unknown tags are ignored.
func (e *Encoder) Encode(tags []string) uint64 {
	var b uint64
	for _, tag := range tags {
		if pos, ok := e.index[strings.ToLower(strings.TrimSpace(tag))]; ok {
			b |= 1 << pos
		}
	}
	return b
}

// Decode returns the tags set in b, sorted.
func (e *Encoder) Decode(b uint64) []string {
	out := make([]string, 0, bits.OnesCount64(b))
	for b != 0 {
		pos := bits.TrailingZeros64(b)
		if pos < len(e.order) {
			out = append(out, e.order[pos])
		}
		b &= b - 1
	}
	slices.Sort(out)
	return out
}

// Bit returns the bit position of a tag, matched like Encode matches tags.
func (e *Encoder) Bit(tag string) (uint, bool) {
	pos, ok := e.index[strings.ToLower(strings.TrimSpace(tag))]
	return pos, ok
}

// Len returns the number of tags with an assigned bit.
func (e *Encoder) Len() int {
	return len(e.order)
}

// Tags returns the tags in bit order.
func (e *Encoder) Tags() []string {
	return slices.Clone(e.order)
}

// Dropped returns the tags that did not fit.
func (e *Encoder) Dropped() []string {
	return slices.Clone(e.dropped)
}

// Version identifies the bit assignment.
func (e *Encoder) Version() uint64 {
	return e.version
}

// Similarity is the Jaccard index of two bitsets. Two empty sets share no
// information and score 0.
func Similarity(a, b uint64) float64 {
	union := bits.OnesCount64(a | b)
	if union == 0 {
		return 0
	}
	return float64(bits.OnesCount64(a&b)) / float64(union)
}

// WeightedSimilarity is the share of a profile's total weight carried by the
// tags set in b. Tags unknown to the encoder count toward the total only,
// and non-positive weights are ignored.
// Returns 0 for an empty profile or a non-positive total.
func (e *Encoder) WeightedSimilarity(b uint64, profile map[string]float64) float64 {
	if len(profile) == 0 {
		return 0
	}
	var total, hit float64
	for tag, w := range profile {
		if w <= 0 {
			continue
		}
		total += w
		if pos, ok := e.index[tag]; ok && b&(1<<pos) != 0 {
			hit += w
		}
	}
	if total <= 0 {
		return 0
	}
	return hit / total
}
