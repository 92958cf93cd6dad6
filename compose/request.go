package compose

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/poiesic/wayfinder/cache"
	"github.com/poiesic/wayfinder/config"
	"github.com/poiesic/wayfinder/core"
	"github.com/poiesic/wayfinder/geo"
	"github.com/poiesic/wayfinder/textnorm"
)

// Request is a compose request.
type Request struct {
	Query       string         `json:"query" validate:"max=512"`
	Mode        core.Mode      `json:"mode,omitempty" validate:"omitempty,oneof=light vibe surprise"`
	Geo         *core.GeoPoint `json:"geo,omitempty"`
	Area        string         `json:"area,omitempty" validate:"max=128"`
	QualityOnly bool           `json:"quality_only,omitempty"`
	SessionID   string         `json:"session_id,omitempty" validate:"max=128"`
}

// validateRequest checks req and names the first offending field.
func validateRequest(req Request) error {
	err := config.Validator().Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return fmt.Errorf("%w: %s failed %s", ErrInvalidRequest, fe.Namespace(), fe.Tag())
	}
	return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
}

func normalizeRequest(req Request) Request {
	req.Query = strings.TrimSpace(req.Query)
	req.Area = strings.TrimSpace(req.Area)
	req.Mode = core.Mode(strings.ToLower(strings.TrimSpace(string(req.Mode))))
	if req.Mode == "" {
		req.Mode = core.ModeLight
	}
	return req
}

type composeKey struct {
	Query   string         `json:"q"`
	Mode    core.Mode      `json:"mode"`
	Geo     *core.GeoPoint `json:"geo,omitempty"`
	Area    string         `json:"area"`
	Quality bool           `json:"quality"`
	Session string         `json:"session"`
	Bucket  int64          `json:"bucket"`
}

func (c *Composer) cacheKey(req Request) string {
	k := composeKey{
		Query:   textnorm.Normalize(req.Query),
		Mode:    req.Mode,
		Area:    strings.ToLower(req.Area),
		Quality: req.QualityOnly,
		Session: req.SessionID,
		Bucket:  cache.TimeBucket(c.now(), c.timeBucket),
	}
	if req.Geo != nil {
		rounded := geo.Round(*req.Geo)
		k.Geo = &rounded
	}
	return cache.GenerateKey("compose", k)
}

// cloneResult copies a result deep enough that callers cannot reach cached state.
func cloneResult(r *core.ComposeResult) *core.ComposeResult {
	out := *r
	out.Slots = append([]core.Slot(nil), r.Slots...)
	out.Rails = make([]core.Rail, len(r.Rails))
	for i, rail := range r.Rails {
		rail.Items = append([]core.RailItem(nil), rail.Items...)
		for j := range rail.Items {
			rail.Items[j].Tags = append([]string(nil), rail.Items[j].Tags...)
			rail.Items[j].Badges = append([]string(nil), rail.Items[j].Badges...)
		}
		out.Rails[i] = rail
	}
	return &out
}
