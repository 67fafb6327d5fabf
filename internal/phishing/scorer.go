// Package phishing scores simulated-phishing sessions and runs their
// lifecycle.
package phishing

import "github.com/mind-engage/mindengage-training/internal/training"

// Per-kind weights of the harmful kinds. Each kind counts once however
// often it occurs.
var weights = map[training.ActionKind]int{
	training.ActionEmailOpened:          20,
	training.ActionLinkClicked:          30,
	training.ActionFormSubmitted:        40,
	training.ActionAttachmentDownloaded: 50,
}

const (
	anyActionWeight = 10
	reportedCredit  = 30
)

// Score derives the vulnerability score from a full action log. The base for
// any activity plus the weights of the distinct harmful kinds is capped at
// 100; a report then takes 30 off, floored at 0. Order and repetition do not
// matter.
func Score(actions []training.PhishingAction) int {
	if len(actions) == 0 {
		return 0
	}
	seen := make(map[training.ActionKind]bool, len(weights)+1)
	score := anyActionWeight
	for _, a := range actions {
		if seen[a.Kind] {
			continue
		}
		seen[a.Kind] = true
		score += weights[a.Kind]
	}
	if score > 100 {
		score = 100
	}
	if seen[training.ActionReported] {
		score -= reportedCredit
	}
	if score < 0 {
		return 0
	}
	return score
}

type Tier string

const (
	TierLow    Tier = "LOW"
	TierMedium Tier = "MEDIUM"
	TierHigh   Tier = "HIGH"
)

// Thresholds are the lowest scores of the MEDIUM and HIGH tiers.
type Thresholds struct {
	Medium int
	High   int
}

var DefaultThresholds = Thresholds{Medium: 40, High: 70}

func (t Thresholds) Tier(score int) Tier {
	switch {
	case score >= t.High:
		return TierHigh
	case score >= t.Medium:
		return TierMedium
	default:
		return TierLow
	}
}
