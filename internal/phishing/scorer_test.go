package phishing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/mind-engage/mindengage-training/internal/training"
)

func actions(kinds ...training.ActionKind) []training.PhishingAction {
	out := make([]training.PhishingAction, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, training.PhishingAction{Kind: k})
	}
	return out
}

func TestScore(t *testing.T) {
	harmful := []training.ActionKind{
		training.ActionEmailOpened, training.ActionLinkClicked,
		training.ActionFormSubmitted, training.ActionAttachmentDownloaded,
	}
	cases := []struct {
		name string
		log  []training.PhishingAction
		want int
	}{
		{"empty", nil, 0},
		{"reported only", actions(training.ActionReported), 0},
		{"opened", actions(training.ActionEmailOpened), 30},
		{"opened twice counts once", actions(training.ActionEmailOpened, training.ActionEmailOpened), 30},
		{"opened and clicked", actions(training.ActionEmailOpened, training.ActionLinkClicked), 60},
		{"opened then reported", actions(training.ActionEmailOpened, training.ActionReported), 0},
		{"all harmful", actions(harmful...), 100},
		{"all harmful then reported", actions(append(harmful, training.ActionReported)...), 70},
		{"reported first then all harmful", actions(append([]training.ActionKind{training.ActionReported}, harmful...)...), 70},
		{"clicked form attachment then reported", actions(training.ActionLinkClicked, training.ActionFormSubmitted,
			training.ActionAttachmentDownloaded, training.ActionReported), 70},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Score(tc.log))
		})
	}
}

func TestScoreIsBoundedAndOrderFree(t *testing.T) {
	kinds := []training.ActionKind{
		training.ActionEmailOpened, training.ActionLinkClicked, training.ActionAttachmentDownloaded,
		training.ActionFormSubmitted, training.ActionReported,
	}
	rapid.Check(t, func(rt *rapid.T) {
		log := rapid.SliceOf(rapid.SampledFrom(kinds)).Draw(rt, "log")
		s := Score(actions(log...))
		if s < 0 || s > 100 {
			rt.Fatalf("score %d out of range", s)
		}
		reversed := make([]training.ActionKind, len(log))
		for i, k := range log {
			reversed[len(log)-1-i] = k
		}
		if r := Score(actions(reversed...)); r != s {
			rt.Fatalf("order changed score: %d vs %d", s, r)
		}
		// repeating the log adds no new kinds
		if d := Score(actions(append(log, log...)...)); d != s {
			rt.Fatalf("repetition changed score: %d vs %d", s, d)
		}
	})
}

func TestReportTakesExactlyThirty(t *testing.T) {
	harmful := []training.ActionKind{
		training.ActionEmailOpened, training.ActionLinkClicked, training.ActionAttachmentDownloaded,
		training.ActionFormSubmitted,
	}
	rapid.Check(t, func(rt *rapid.T) {
		log := rapid.SliceOfN(rapid.SampledFrom(harmful), 1, 12).Draw(rt, "log")
		before := Score(actions(log...))
		after := Score(actions(append(log, training.ActionReported)...))
		want := before - 30
		if want < 0 {
			want = 0
		}
		if after != want {
			rt.Fatalf("report moved %d to %d, want %d", before, after, want)
		}
	})
}

func TestTier(t *testing.T) {
	th := DefaultThresholds
	assert.Equal(t, TierLow, th.Tier(0))
	assert.Equal(t, TierLow, th.Tier(39))
	assert.Equal(t, TierMedium, th.Tier(40))
	assert.Equal(t, TierMedium, th.Tier(69))
	assert.Equal(t, TierHigh, th.Tier(70))
	assert.Equal(t, TierHigh, th.Tier(100))

	custom := Thresholds{Medium: 20, High: 50}
	assert.Equal(t, TierMedium, custom.Tier(30))
	assert.Equal(t, TierHigh, custom.Tier(50))
}
