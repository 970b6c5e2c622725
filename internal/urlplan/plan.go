// Package urlplan holds the immutable ordered sequence of request
// templates every worker walks, plus the loaders that build one from a
// YAML file or a raw URL list.
package urlplan

import (
	"math/rand"

	"github.com/onslaught-http/onslaught/pkg/models"
)

// Plan wraps a models.UrlPlan with the cursor-advance logic. It holds no
// mutable state of its own — the cursor lives in the caller's
// models.WorkerState, since a worker always walks its own cursor with no
// coordination with other workers.
type Plan struct {
	plan *models.UrlPlan
}

// New wraps a loaded UrlPlan.
func New(p *models.UrlPlan) *Plan {
	return &Plan{plan: p}
}

// Len is the plan length L.
func (p *Plan) Len() int { return p.plan.Len() }

// Login returns the optional login template, if configured.
func (p *Plan) Login() *models.UrlTemplate { return p.plan.Login }

// Next selects the next UrlTemplate and returns the advanced cursor.
// onWrap is invoked exactly when sequential mode wraps past the end of the
// plan (used to expire cookies when RunConfig.ExpireCookiesOnWrap is set);
// it is never called in internet mode, which draws uniformly and has no
// wrap event.
func (p *Plan) Next(rng *rand.Rand, cursor int, internetMode bool, onWrap func()) (models.UrlTemplate, int) {
	l := p.Len()
	if internetMode {
		y := rng.Intn(l)
		return p.plan.Templates[y], cursor
	}

	y := cursor
	if y >= l {
		y = 0
		if onWrap != nil {
			onWrap()
		}
	}
	if y < 0 {
		y = 0
	}
	return p.plan.Templates[y], y + 1
}
