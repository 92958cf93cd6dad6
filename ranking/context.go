// Package ranking scores, re-sorts and diversifies candidate places.
//
// The pipeline has three stages, each a function over a request-local
// candidate list: Score computes the base score, Proximity adds a distance
// bonus and sorts, and MMR selects a diverse subset. Rank runs all three.
// Stages update candidate scores in place and never touch storage.
package ranking

import (
	"strings"

	"github.com/poiesic/wayfinder/bitset"
	"github.com/poiesic/wayfinder/core"
	"github.com/poiesic/wayfinder/ontology"
	"github.com/poiesic/wayfinder/textnorm"
)

// Context carries everything the stages need for one candidate list.
type Context struct {
	Mode    core.Mode
	Weights ontology.ModeWeights

	// TargetBits encodes the tags the list should resonate with, usually the
	// slot's expansion tags. Zero means no target.
	TargetBits uint64
	// Profile is the session vibe vector, tag to weight.
	Profile map[string]float64
	Encoder *bitset.Encoder

	// Scenarios are the scenarios triggered by the query.
	Scenarios []ontology.Scenario
	// Quiet asks for a noise penalty.
	Quiet bool

	Session *core.SessionProfile
	Origin  *core.GeoPoint
}

// Params describes a request for NewContext.
type Params struct {
	Mode    core.Mode
	Query   string
	Slot    *core.Slot
	Session *core.SessionProfile
	Origin  *core.GeoPoint
}

// NewContext resolves mode weights, the slot target, triggered scenarios and
// the quiet flag for a request.
func NewContext(registry *ontology.Registry, encoder *bitset.Encoder, p Params) Context {
	ctx := Context{
		Mode:    p.Mode,
		Weights: registry.Mode(p.Mode),
		Encoder: encoder,
		Session: p.Session,
		Origin:  p.Origin,
	}
	if p.Session != nil && len(p.Session.Vibe) > 0 {
		ctx.Profile = p.Session.Vibe
	}

	text := p.Query
	if p.Slot != nil {
		ctx.TargetBits = encoder.Encode(p.Slot.Filter.Tags)
		ctx.Quiet = registry.IsQuietSlot(p.Slot.Key())
		text += " " + p.Slot.Matched + " " + strings.ReplaceAll(p.Slot.Canonical, "_", " ")
	}

	padded := " " + textnorm.Normalize(text) + " "
	for _, sc := range registry.Scenarios() {
		for _, trig := range sc.Triggers {
			if strings.Contains(padded, " "+trig+" ") {
				ctx.Scenarios = append(ctx.Scenarios, sc)
				ctx.Quiet = ctx.Quiet || sc.Quiet
				break
			}
		}
	}
	return ctx
}
