// Package scoring turns a project's per-metric tier assignments into an
// overall score and tier. Every function here is pure.
package scoring

import (
	"github.com/kalmansforge/web3-bd-guide-sub000/internal/models"
)

// Weights and lower-inclusive tier cutoffs
const (
	T0Weight = 100
	T1Weight = 50
	T0Cutoff = 70
	T1Cutoff = 40
)

// Result is the aggregate outcome for one project
type Result struct {
	Score float64     `json:"score"`
	Tier  models.Tier `json:"tier"`
}

// Breakdown counts evaluations per tier
type Breakdown struct {
	T0      int `json:"t0"`
	T1      int `json:"t1"`
	Unrated int `json:"unrated"`
	Total   int `json:"total"`
}

// Score averages tier weights over the evaluated metrics only. Unrated
// evaluations count in the denominator with zero weight; a project with no
// evaluations scores 0 and stays unclassified.
func Score(p *models.ProjectEvaluation) Result {
	b := Count(p)
	if b.Total == 0 {
		return Result{}
	}

	score := float64(b.T0*T0Weight+b.T1*T1Weight) / float64(b.Total)
	return Result{Score: score, Tier: ClassifyScore(score)}
}

// ClassifyScore maps a score onto a tier
func ClassifyScore(score float64) models.Tier {
	switch {
	case score >= T0Cutoff:
		return models.TierT0
	case score >= T1Cutoff:
		return models.TierT1
	default:
		return models.TierNone
	}
}

// Count tallies a project's evaluations by tier. Tiers other than T0 and T1
// are counted as unrated.
func Count(p *models.ProjectEvaluation) Breakdown {
	var b Breakdown
	if p == nil {
		return b
	}
	for _, ev := range p.Metrics {
		switch ev.Tier {
		case models.TierT0:
			b.T0++
		case models.TierT1:
			b.T1++
		default:
			b.Unrated++
		}
		b.Total++
	}
	return b
}

// Apply stamps the recomputed score and tier onto p
func Apply(p *models.ProjectEvaluation) Result {
	r := Score(p)
	score := r.Score
	p.OverallScore = &score
	p.OverallTier = r.Tier
	return r
}
