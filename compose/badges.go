package compose

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/poiesic/wayfinder/core"
)

// badgeThreshold is the score a signal needs to earn a badge.
const badgeThreshold = 0.7

// topRating is the rating that earns "Top Rated".
const topRating = 4.5

var titleCaser = cases.Title(language.English)

// badges lists up to core.MaxBadges labels: the cluster label first, then
// editorial flags, then score-derived badges.
func badges(p *core.Place) []string {
	s := p.Signals
	var out []string
	if s.Cluster != "" {
		out = append(out, humanize(s.Cluster))
	}

	flags := []struct {
		on    bool
		label string
	}{
		{s.EditorPick, "Editor Pick"},
		{s.GreatView, "Great View"},
		{s.LocalFavorite, "Local Favorite"},
		{s.Extraordinary >= badgeThreshold, "Extraordinary"},
		{s.HighQualityExperience >= badgeThreshold, "High-Quality Experience"},
		{s.Trend >= badgeThreshold, "Trending"},
		{s.Novelty >= badgeThreshold, "New"},
		{p.Rating != nil && *p.Rating >= topRating, "Top Rated"},
		{s.Interest >= badgeThreshold, "Highly Interesting"},
	}
	for _, f := range flags {
		if len(out) == core.MaxBadges {
			break
		}
		if f.on {
			out = append(out, f.label)
		}
	}
	return out
}

// why explains an item in one line from its leading badges and distance.
func why(badges []string, c *core.Candidate) string {
	var parts []string
	for _, b := range badges {
		if len(parts) == 2 {
			break
		}
		parts = append(parts, b)
	}
	if c.Scores.Vibe >= 0.5 {
		parts = append(parts, "Matches the vibe")
	}
	if c.DistanceKm != nil {
		parts = append(parts, formatDistance(*c.DistanceKm))
	}
	return strings.Join(parts, " · ")
}

func formatDistance(km float64) string {
	if km < 1 {
		return fmt.Sprintf("%d m away", int(math.Round(km*1000)))
	}
	return fmt.Sprintf("%.1f km away", km)
}

// humanize turns "rooftop_bars" into "Rooftop Bars".
func humanize(s string) string {
	return titleCaser.String(strings.ReplaceAll(s, "_", " "))
}

func toItem(c *core.Candidate) core.RailItem {
	p := c.Place
	b := badges(p)
	return core.RailItem{
		Id:          p.Id,
		Name:        p.Name,
		Summary:     p.Summary,
		Tags:        p.TagList(),
		Category:    p.Category,
		Coords:      p.Coords,
		Rating:      p.Rating,
		DistanceKm:  c.DistanceKm,
		Picture:     p.Picture,
		SearchScore: c.Scores.Search,
		VibeScore:   c.Scores.Vibe,
		Scenario:    c.Scores.ScenarioBonus,
		Novelty:     c.Scores.Novelty,
		FinalScore:  c.Scores.Final,
		Badges:      b,
		Why:         why(b, c),
	}
}
