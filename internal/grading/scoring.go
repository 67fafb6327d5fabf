package grading

import (
	"context"
	"math"
	"time"

	"github.com/mind-engage/mindengage-training/internal/apperr"
	"github.com/mind-engage/mindengage-training/internal/events"
	"github.com/mind-engage/mindengage-training/internal/training"
	"github.com/mind-engage/mindengage-training/internal/unlock"
)

// Engine grades quiz submissions and records them as numbered attempts.
type Engine struct {
	catalog training.Catalog
	store   training.Store
	gate    *unlock.Gate
	grader  Grader
	events  *events.Emitter
	now     func() time.Time
}

// NewEngine wires the scoring engine. With a nil gate submissions are not
// checked for prerequisites or cooldowns; the store still enforces the
// attempt budget.
func NewEngine(catalog training.Catalog, store training.Store, gate *unlock.Gate, em *events.Emitter) *Engine {
	return &Engine{catalog: catalog, store: store, gate: gate, grader: NewDefaultGrader(), events: em, now: time.Now}
}

func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

type Submission struct {
	UserID           string               `json:"user_id"`
	QuizID           string               `json:"quiz_id"`
	Answers          training.ResponseSet `json:"answers"`
	TimeSpentMinutes int                  `json:"time_spent_minutes"`
}

// Graded is a stored attempt plus its per-question breakdown.
type Graded struct {
	Attempt      training.QuizAttempt `json:"attempt"`
	Results      []Result             `json:"results"`
	EarnedPoints float64              `json:"earned_points"`
	TotalPoints  float64              `json:"total_points"`
	Provisional  bool                 `json:"provisional"` // some questions wait for manual review
}

// Score is round(100*earned/total), 0 when total is 0.
func Score(earned, total float64) int {
	if total <= 0 {
		return 0
	}
	s := int(math.Round(100 * earned / total))
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}

// Submit grades sub against the quiz and stores the attempt. Unanswered
// questions count as incorrect. A locked quiz yields an apperr Conflict whose
// Detail is the unlock.Decision.
func (e *Engine) Submit(ctx context.Context, sub Submission) (Graded, error) {
	if sub.UserID == "" {
		return Graded{}, apperr.Unauthorized("user id required")
	}
	if sub.QuizID == "" {
		return Graded{}, apperr.Validation("quiz_id", "required")
	}
	if sub.TimeSpentMinutes < 0 {
		return Graded{}, apperr.Validation("time_spent_minutes", "must not be negative")
	}
	quiz, err := e.catalog.GetQuiz(ctx, sub.QuizID, true)
	if err != nil {
		return Graded{}, err
	}
	known := make(map[string]bool, len(quiz.Questions))
	for _, q := range quiz.Questions {
		known[q.ID] = true
	}
	for qid := range sub.Answers {
		if !known[qid] {
			return Graded{}, apperr.Validation("answers."+qid, "question not in quiz %q", quiz.ID)
		}
	}

	if e.gate != nil {
		d, err := e.gate.Evaluate(ctx, sub.UserID, quiz)
		if err != nil {
			return Graded{}, err
		}
		if !d.IsUnlocked {
			return Graded{}, apperr.Conflict(d, "quiz %q is locked: %s", quiz.ID, d.Reason)
		}
	}

	out := Graded{Results: make([]Result, 0, len(quiz.Questions))}
	for _, q := range quiz.Questions {
		res, err := e.grader.Grade(ctx, q, sub.Answers[q.ID])
		if err != nil {
			return Graded{}, err
		}
		out.Results = append(out.Results, res)
		out.EarnedPoints += res.AutoPoints
		out.TotalPoints += res.MaxPoints
		if res.NeedsManual {
			out.Provisional = true
		}
	}

	module, err := e.catalog.GetModule(ctx, quiz.ModuleID)
	if err != nil {
		return Graded{}, err
	}
	score := Score(out.EarnedPoints, out.TotalPoints)
	attempt := training.QuizAttempt{
		UserID:           sub.UserID,
		QuizID:           quiz.ID,
		Answers:          sub.Answers,
		Score:            score,
		Passed:           score >= quiz.PassingScorePercent,
		TimeSpentMinutes: sub.TimeSpentMinutes,
		CompletedAt:      e.now(),
	}
	if attempt.Answers == nil {
		attempt.Answers = training.ResponseSet{}
	}

	var guard training.AttemptGuard
	if e.gate != nil {
		guard = e.gate.RetakeGuard(attempt.CompletedAt)
	}
	attempt, err = e.store.InsertQuizAttempt(ctx, attempt, quiz.MaxAttempts, guard, quizProgress(module))
	if err != nil {
		if ae, ok := apperr.As(err); ok && ae.Kind == apperr.KindConflict && ae.Detail == nil {
			// lost a race for the last attempt slot
			left := 0
			return Graded{}, apperr.Conflict(unlock.Decision{
				Reason: unlock.ReasonAttemptLimit, AttemptsUsed: quiz.MaxAttempts, AttemptsRemaining: &left,
			}, "quiz %q is locked: %s", quiz.ID, unlock.ReasonAttemptLimit)
		}
		return Graded{}, err
	}
	out.Attempt = attempt

	e.events.Emit(ctx, events.AttemptGraded, sub.UserID+":"+quiz.ID, map[string]any{
		"user_id": sub.UserID, "quiz_id": quiz.ID, "attempt_number": attempt.AttemptNumber,
		"score": attempt.Score, "passed": attempt.Passed, "provisional": out.Provisional,
	})
	return out, nil
}

// quizProgress folds a new attempt into the quiz-scoped progress record. The
// percentage keeps the best score seen so it never goes down, and a passed
// quiz stays completed after later failures.
func quizProgress(module training.Module) training.ProgressFunc {
	return func(prev *training.Progress, a training.QuizAttempt) training.Progress {
		p := training.Progress{UserID: a.UserID, Scope: training.QuizScope(a.QuizID)}
		if prev != nil {
			p = *prev
		}
		p.CourseID = module.CourseID
		p.ModuleID = module.ID
		p.TimeSpentMinutes += a.TimeSpentMinutes
		p.LastAccessedAt = a.CompletedAt
		score := a.Score
		p.Score = &score
		if a.Score > p.ProgressPercentage {
			p.ProgressPercentage = a.Score
		}
		switch {
		case p.Status == training.StatusCompleted:
			// already passed
		case a.Passed:
			p.Status = training.StatusCompleted
			completed := a.CompletedAt
			p.CompletedAt = &completed
		default:
			p.Status = training.StatusFailed
		}
		return p
	}
}

// ListAttempts returns a user's attempts at a quiz, oldest first.
func (e *Engine) ListAttempts(ctx context.Context, userID, quizID string) ([]training.QuizAttempt, error) {
	if userID == "" {
		return nil, apperr.Unauthorized("user id required")
	}
	if _, err := e.catalog.GetQuiz(ctx, quizID, false); err != nil {
		return nil, err
	}
	return e.store.ListQuizAttempts(ctx, userID, quizID)
}
