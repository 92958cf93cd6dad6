package search

import (
	"github.com/poiesic/wayfinder/core"
)

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
type SearchMonitor interface {
	Start(req Request)
	CacheHit(candidates []*core.Candidate)
	AfterIntentDetection(intent Intent)
	AfterFullTextSearch(hits int)
	StrategyHit(strategy string, place *core.Place, score float64)
	AfterSlotLookup(slot *core.Slot, found int)
	AfterGeoFilter(kept, dropped int, widened bool)
	Degraded(err error)
	Finish(candidates []*core.Candidate)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ Request)                              {}
func (n *noopMonitor) CacheHit(_ []*core.Candidate)                 {}
func (n *noopMonitor) AfterIntentDetection(_ Intent)                {}
func (n *noopMonitor) AfterFullTextSearch(_ int)                    {}
func (n *noopMonitor) StrategyHit(_ string, _ *core.Place, _ float64) {}
func (n *noopMonitor) AfterSlotLookup(_ *core.Slot, _ int)          {}
func (n *noopMonitor) AfterGeoFilter(_, _ int, _ bool)              {}
func (n *noopMonitor) Degraded(_ error)                             {}
func (n *noopMonitor) Finish(_ []*core.Candidate)                   {}
