// Package unlock decides whether a user may attempt a quiz or enter a module.
// Decisions are computed from catalog and store reads only; the gate never
// writes, and retake cooldowns are evaluated lazily against the clock.
package unlock

import (
	"context"
	"time"

	"github.com/mind-engage/mindengage-training/internal/apperr"
	"github.com/mind-engage/mindengage-training/internal/events"
	"github.com/mind-engage/mindengage-training/internal/progress"
	"github.com/mind-engage/mindengage-training/internal/training"
)

const DefaultCooldown = 15 * time.Minute

type Reason string

const (
	ReasonInsufficientProgress Reason = "insufficient progress"
	ReasonAttemptLimit         Reason = "attempt limit reached"
	ReasonCooldown             Reason = "cooldown"
)

type Decision struct {
	IsUnlocked        bool       `json:"is_unlocked"`
	Reason            Reason     `json:"reason,omitempty"`
	RequiredProgress  *int       `json:"required_progress,omitempty"`
	CurrentProgress   *int       `json:"current_progress,omitempty"`
	RetakeAvailableAt *time.Time `json:"retake_available_at,omitempty"`
	AttemptsUsed      int        `json:"attempts_used"`
	AttemptsRemaining *int       `json:"attempts_remaining,omitempty"` // nil when unlimited
}

type Gate struct {
	catalog  training.Catalog
	store    training.Store
	tracker  *progress.Tracker
	events   *events.Emitter
	cooldown time.Duration
	now      func() time.Time
}

// NewGate builds a gate; a non-positive cooldown falls back to DefaultCooldown.
func NewGate(catalog training.Catalog, store training.Store, tracker *progress.Tracker, em *events.Emitter, cooldown time.Duration) *Gate {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Gate{catalog: catalog, store: store, tracker: tracker, events: em, cooldown: cooldown, now: time.Now}
}

func (g *Gate) WithClock(now func() time.Time) *Gate {
	g.now = now
	return g
}

func (g *Gate) Cooldown() time.Duration { return g.cooldown }

func (g *Gate) IsQuizUnlocked(ctx context.Context, userID, quizID string) (Decision, error) {
	if userID == "" {
		return Decision{}, apperr.Unauthorized("user id required")
	}
	quiz, err := g.catalog.GetQuiz(ctx, quizID, false)
	if err != nil {
		return Decision{}, err
	}
	return g.Evaluate(ctx, userID, quiz)
}

// Evaluate runs the prerequisite, attempt budget and cooldown checks, in that
// order, for an already resolved quiz.
func (g *Gate) Evaluate(ctx context.Context, userID string, quiz training.Quiz) (Decision, error) {
	d, err := g.evaluate(ctx, userID, quiz)
	if err != nil {
		return Decision{}, err
	}
	typ := events.QuizUnlocked
	if !d.IsUnlocked {
		typ = events.QuizLocked
	}
	g.events.Emit(ctx, typ, userID+":"+quiz.ID, map[string]any{
		"user_id": userID, "quiz_id": quiz.ID, "reason": string(d.Reason), "attempts_used": d.AttemptsUsed,
	})
	return d, nil
}

func (g *Gate) evaluate(ctx context.Context, userID string, quiz training.Quiz) (Decision, error) {
	required, current, met, err := g.prerequisite(ctx, userID, quiz)
	if err != nil {
		return Decision{}, err
	}
	if !met {
		return Decision{
			Reason:           ReasonInsufficientProgress,
			RequiredProgress: &required,
			CurrentProgress:  &current,
		}, nil
	}

	attempts, err := g.store.ListQuizAttempts(ctx, userID, quiz.ID)
	if err != nil {
		return Decision{}, err
	}
	d := Decision{AttemptsUsed: len(attempts)}
	if quiz.MaxAttempts > 0 {
		left := quiz.MaxAttempts - len(attempts)
		if left < 0 {
			left = 0
		}
		d.AttemptsRemaining = &left
		if left == 0 {
			d.Reason = ReasonAttemptLimit
			return d, nil
		}
	}
	if n := len(attempts); n > 0 {
		if avail, waiting := g.retakeAt(attempts[n-1], g.now()); waiting {
			d.Reason = ReasonCooldown
			d.RetakeAvailableAt = &avail
			return d, nil
		}
	}
	d.IsUnlocked = true
	return d, nil
}

// retakeAt reports when a retake after last becomes possible and whether at
// is still before that moment. Passed attempts impose no wait.
func (g *Gate) retakeAt(last training.QuizAttempt, at time.Time) (time.Time, bool) {
	if last.Passed {
		return time.Time{}, false
	}
	avail := last.CompletedAt.Add(g.cooldown)
	return avail, at.Before(avail)
}

// RetakeGuard re-applies the cooldown for an attempt submitted at time at,
// against the previous attempt as seen inside the store's unit of work.
func (g *Gate) RetakeGuard(at time.Time) training.AttemptGuard {
	return func(last *training.QuizAttempt) error {
		if last == nil {
			return nil
		}
		avail, waiting := g.retakeAt(*last, at)
		if !waiting {
			return nil
		}
		return apperr.Conflict(Decision{
			Reason:            ReasonCooldown,
			RetakeAvailableAt: &avail,
			AttemptsUsed:      last.AttemptNumber,
		}, "quiz %q is locked: %s", last.QuizID, ReasonCooldown)
	}
}

// prerequisite returns the required and current completion percentages for
// quiz and whether the requirement is met.
//
// post_assessment and practice need every lesson of the quiz's module.
// final_exam needs every lesson of the course and every other
// post_assessment of the course passed. pre_assessment needs nothing.
func (g *Gate) prerequisite(ctx context.Context, userID string, quiz training.Quiz) (required, current int, met bool, err error) {
	switch quiz.Kind {
	case training.QuizPreAssessment:
		return 0, 0, true, nil
	case training.QuizPostAssessment, training.QuizPractice:
		mp, err := g.tracker.ModuleProgress(ctx, userID, quiz.ModuleID)
		if err != nil {
			return 0, 0, false, err
		}
		if mp.TotalLessons == 0 {
			return 100, 100, true, nil
		}
		return 100, mp.Percent, mp.CompletedLessons == mp.TotalLessons, nil
	case training.QuizFinalExam:
		module, err := g.catalog.GetModule(ctx, quiz.ModuleID)
		if err != nil {
			return 0, 0, false, err
		}
		modules, err := g.catalog.GetModulesByCourse(ctx, module.CourseID)
		if err != nil {
			return 0, 0, false, err
		}
		records, err := g.store.ListProgress(ctx, userID, module.CourseID)
		if err != nil {
			return 0, 0, false, err
		}
		done, total := 0, 0
		for _, m := range modules {
			d, t, err := g.moduleRequirements(ctx, m.ID, quiz.ID, records)
			if err != nil {
				return 0, 0, false, err
			}
			done += d
			total += t
		}
		if total == 0 {
			return 100, 100, true, nil
		}
		return 100, progress.Percent(done, total), done == total, nil
	default:
		return 0, 0, false, apperr.Validation("kind", "unknown quiz kind %q", quiz.Kind)
	}
}

// moduleRequirements counts a module's lessons plus its post-assessments
// (other than skipQuizID), and how many of those the records show done.
func (g *Gate) moduleRequirements(ctx context.Context, moduleID, skipQuizID string, records []training.Progress) (done, total int, err error) {
	lessons, err := g.catalog.GetLessonsByModule(ctx, moduleID)
	if err != nil {
		return 0, 0, err
	}
	completed := progress.CompletedLessons(records)
	for _, l := range lessons {
		total++
		if completed[l.ID] {
			done++
		}
	}
	quizzes, err := g.catalog.GetQuizzesByModule(ctx, moduleID)
	if err != nil {
		return 0, 0, err
	}
	passed := PassedQuizzes(records)
	for _, q := range quizzes {
		if q.Kind != training.QuizPostAssessment || q.ID == skipQuizID {
			continue
		}
		total++
		if passed[q.ID] {
			done++
		}
	}
	return done, total, nil
}

// PassedQuizzes returns the ids of quizzes whose progress record is completed.
func PassedQuizzes(records []training.Progress) map[string]bool {
	out := map[string]bool{}
	for _, r := range records {
		if r.Scope.Kind == training.ScopeQuiz && r.Status == training.StatusCompleted {
			out[r.Scope.ID] = true
		}
	}
	return out
}

// IsModuleUnlocked opens the first module of a course unconditionally and any
// later module once the preceding module's lessons are completed and its
// post-assessments passed.
func (g *Gate) IsModuleUnlocked(ctx context.Context, userID, moduleID string) (Decision, error) {
	if userID == "" {
		return Decision{}, apperr.Unauthorized("user id required")
	}
	module, err := g.catalog.GetModule(ctx, moduleID)
	if err != nil {
		return Decision{}, err
	}
	modules, err := g.catalog.GetModulesByCourse(ctx, module.CourseID)
	if err != nil {
		return Decision{}, err
	}
	var prev *training.Module
	for i := range modules {
		if modules[i].ID == module.ID {
			break
		}
		prev = &modules[i]
	}

	d := Decision{IsUnlocked: true}
	if prev != nil {
		records, err := g.store.ListProgress(ctx, userID, module.CourseID)
		if err != nil {
			return Decision{}, err
		}
		done, total, err := g.moduleRequirements(ctx, prev.ID, "", records)
		if err != nil {
			return Decision{}, err
		}
		if done < total {
			required, current := 100, progress.Percent(done, total)
			d = Decision{Reason: ReasonInsufficientProgress, RequiredProgress: &required, CurrentProgress: &current}
		}
	}

	typ := events.ModuleUnlocked
	if !d.IsUnlocked {
		typ = events.ModuleLocked
	}
	g.events.Emit(ctx, typ, userID+":"+module.ID, map[string]any{
		"user_id": userID, "module_id": module.ID, "reason": string(d.Reason),
	})
	return d, nil
}
