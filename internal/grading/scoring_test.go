package grading

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/mind-engage/mindengage-training/internal/apperr"
	"github.com/mind-engage/mindengage-training/internal/progress"
	"github.com/mind-engage/mindengage-training/internal/training"
	"github.com/mind-engage/mindengage-training/internal/unlock"
)

type harness struct {
	catalog *training.MemoryCatalog
	store   training.Store
	tracker *progress.Tracker
	gate    *unlock.Gate
	engine  *Engine
	clock   time.Time
}

func newHarness(quizzes ...training.Quiz) *harness {
	cat := training.NewMemoryCatalog()
	cat.Load(training.Bundle{
		Courses: []training.Course{{ID: "c1"}},
		Modules: []training.Module{{ID: "m1", CourseID: "c1", Order: 1}},
		Lessons: []training.Lesson{{ID: "l1", ModuleID: "m1", Order: 1}},
		Quizzes: quizzes,
	})
	h := &harness{catalog: cat, store: training.NewMemoryStore(), clock: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	now := func() time.Time { return h.clock }
	h.tracker = progress.NewTracker(cat, h.store, nil)
	h.gate = unlock.NewGate(cat, h.store, h.tracker, nil, 15*time.Minute).WithClock(now)
	h.engine = NewEngine(cat, h.store, h.gate, nil).WithClock(now)
	return h
}

func twoQuestionQuiz(id string, kind training.QuizKind, maxAttempts int) training.Quiz {
	return training.Quiz{
		ID: id, ModuleID: "m1", Kind: kind, PassingScorePercent: 70, MaxAttempts: maxAttempts,
		Questions: []training.Question{
			{ID: id + "-1", Kind: training.QuestionSingleChoice, Points: 1, Order: 1,
				Answers: []training.Answer{{ID: "right", IsCorrect: true}, {ID: "wrong"}}},
			{ID: id + "-2", Kind: training.QuestionTrueFalse, Points: 1, Order: 2,
				Answers: []training.Answer{{ID: "true", Text: "true", IsCorrect: true}, {ID: "false", Text: "false"}}},
		},
	}
}

func answers(quizID, pick string) training.ResponseSet {
	second := "true"
	if pick != "right" {
		second = "false"
	}
	return training.ResponseSet{
		quizID + "-1": training.SingleChoiceAnswer{AnswerID: pick},
		quizID + "-2": training.SingleChoiceAnswer{AnswerID: second},
	}
}

func TestSubmit_PostAssessmentScenario(t *testing.T) {
	ctx := context.Background()
	h := newHarness(twoQuestionQuiz("q1", training.QuizPostAssessment, 3))

	// lesson not done yet
	_, err := h.engine.Submit(ctx, Submission{UserID: "u1", QuizID: "q1", Answers: answers("q1", "right")})
	e, ok := apperr.As(err)
	require.True(t, ok)
	require.Equal(t, apperr.KindConflict, e.Kind)
	d, ok := e.Detail.(unlock.Decision)
	require.True(t, ok)
	assert.Equal(t, unlock.ReasonInsufficientProgress, d.Reason)
	assert.Equal(t, 0, *d.CurrentProgress)
	assert.Equal(t, 100, *d.RequiredProgress)

	_, err = h.tracker.MarkLessonComplete(ctx, progress.LessonCompletion{UserID: "u1", LessonID: "l1"})
	require.NoError(t, err)

	g, err := h.engine.Submit(ctx, Submission{UserID: "u1", QuizID: "q1", Answers: answers("q1", "right"), TimeSpentMinutes: 4})
	require.NoError(t, err)
	assert.Equal(t, 100, g.Attempt.Score)
	assert.True(t, g.Attempt.Passed)
	assert.Equal(t, 1, g.Attempt.AttemptNumber)
	assert.Len(t, g.Results, 2)
	assert.False(t, g.Provisional)

	p, err := h.store.GetProgress(ctx, "u1", training.QuizScope("q1"))
	require.NoError(t, err)
	assert.Equal(t, training.StatusCompleted, p.Status)
	assert.Equal(t, 100, p.ProgressPercentage)
	assert.Equal(t, "c1", p.CourseID)
	assert.Equal(t, 4, p.TimeSpentMinutes)
	require.NotNil(t, p.CompletedAt)
}

func TestSubmit_FailedThenPassedKeepsBestScore(t *testing.T) {
	ctx := context.Background()
	h := newHarness(twoQuestionQuiz("q1", training.QuizPreAssessment, 0))

	g, err := h.engine.Submit(ctx, Submission{UserID: "u1", QuizID: "q1", Answers: training.ResponseSet{
		"q1-1": training.SingleChoiceAnswer{AnswerID: "right"},
	}})
	require.NoError(t, err)
	assert.Equal(t, 50, g.Attempt.Score)
	assert.False(t, g.Attempt.Passed)

	p, err := h.store.GetProgress(ctx, "u1", training.QuizScope("q1"))
	require.NoError(t, err)
	assert.Equal(t, training.StatusFailed, p.Status)
	assert.Equal(t, 50, p.ProgressPercentage)

	// cooldown blocks an immediate retake
	_, err = h.engine.Submit(ctx, Submission{UserID: "u1", QuizID: "q1", Answers: answers("q1", "right")})
	require.True(t, apperr.IsConflict(err))
	e, _ := apperr.As(err)
	assert.Equal(t, unlock.ReasonCooldown, e.Detail.(unlock.Decision).Reason)

	h.clock = h.clock.Add(15 * time.Minute)
	g, err = h.engine.Submit(ctx, Submission{UserID: "u1", QuizID: "q1", Answers: answers("q1", "right")})
	require.NoError(t, err)
	assert.Equal(t, 2, g.Attempt.AttemptNumber)

	// a later failure does not undo the pass
	_, err = h.engine.Submit(ctx, Submission{UserID: "u1", QuizID: "q1", Answers: answers("q1", "wrong")})
	require.NoError(t, err)
	p, err = h.store.GetProgress(ctx, "u1", training.QuizScope("q1"))
	require.NoError(t, err)
	assert.Equal(t, training.StatusCompleted, p.Status)
	assert.Equal(t, 100, p.ProgressPercentage)
	require.NotNil(t, p.Score)
	assert.Equal(t, 0, *p.Score)
}

func TestSubmit_AttemptLimit(t *testing.T) {
	ctx := context.Background()
	h := newHarness(twoQuestionQuiz("q1", training.QuizPreAssessment, 2))

	for i := 0; i < 2; i++ {
		_, err := h.engine.Submit(ctx, Submission{UserID: "u1", QuizID: "q1", Answers: answers("q1", "wrong")})
		require.NoError(t, err)
		h.clock = h.clock.Add(time.Hour)
	}
	_, err := h.engine.Submit(ctx, Submission{UserID: "u1", QuizID: "q1", Answers: answers("q1", "right")})
	e, ok := apperr.As(err)
	require.True(t, ok)
	require.Equal(t, apperr.KindConflict, e.Kind)
	assert.Equal(t, unlock.ReasonAttemptLimit, e.Detail.(unlock.Decision).Reason)

	list, err := h.engine.ListAttempts(ctx, "u1", "q1")
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestSubmit_Errors(t *testing.T) {
	ctx := context.Background()
	h := newHarness(twoQuestionQuiz("q1", training.QuizPreAssessment, 0))

	_, err := h.engine.Submit(ctx, Submission{QuizID: "q1"})
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	_, err = h.engine.Submit(ctx, Submission{UserID: "u1"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = h.engine.Submit(ctx, Submission{UserID: "u1", QuizID: "missing"})
	assert.True(t, apperr.IsNotFound(err))

	_, err = h.engine.Submit(ctx, Submission{UserID: "u1", QuizID: "q1", Answers: training.ResponseSet{
		"elsewhere": training.SingleChoiceAnswer{AnswerID: "x"},
	}})
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, "answers.elsewhere", e.Field)

	_, err = h.engine.ListAttempts(ctx, "u1", "missing")
	assert.True(t, apperr.IsNotFound(err))
}

func TestSubmit_ConcurrentAttemptsAreContiguous(t *testing.T) {
	ctx := context.Background()
	h := newHarness(twoQuestionQuiz("q1", training.QuizPreAssessment, 0))
	const n = 20

	var wg sync.WaitGroup
	var mu sync.Mutex
	var numbers []int
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g, err := h.engine.Submit(ctx, Submission{UserID: "u1", QuizID: "q1", Answers: answers("q1", "right")})
			if err != nil {
				t.Errorf("submit: %v", err)
				return
			}
			mu.Lock()
			numbers = append(numbers, g.Attempt.AttemptNumber)
			mu.Unlock()
		}()
	}
	wg.Wait()
	sort.Ints(numbers)
	require.Len(t, numbers, n)
	for i, v := range numbers {
		assert.Equal(t, i+1, v)
	}
}

func TestSubmit_ConcurrentFailuresRespectCooldown(t *testing.T) {
	ctx := context.Background()
	h := newHarness(twoQuestionQuiz("q1", training.QuizPreAssessment, 0))
	const n = 12

	var wg sync.WaitGroup
	var mu sync.Mutex
	stored, cooled := 0, 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.engine.Submit(ctx, Submission{UserID: "u1", QuizID: "q1", Answers: answers("q1", "wrong")})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				stored++
				return
			}
			e, ok := apperr.As(err)
			if !ok || e.Kind != apperr.KindConflict {
				t.Errorf("submit: %v", err)
				return
			}
			if d, ok := e.Detail.(unlock.Decision); ok && d.Reason == unlock.ReasonCooldown {
				cooled++
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, stored)
	assert.Equal(t, n-1, cooled)

	list, err := h.store.ListQuizAttempts(ctx, "u1", "q1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSubmit_ScoreAndPassedAgree(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		nq := rapid.IntRange(0, 6).Draw(rt, "questions")
		quiz := training.Quiz{
			ID: "q", ModuleID: "m1", Kind: training.QuizPreAssessment,
			PassingScorePercent: rapid.IntRange(0, 100).Draw(rt, "passing"),
		}
		resp := training.ResponseSet{}
		for i := 0; i < nq; i++ {
			id := string(rune('a' + i))
			quiz.Questions = append(quiz.Questions, training.Question{
				ID: id, Kind: training.QuestionSingleChoice, Order: i,
				Points:  float64(rapid.IntRange(0, 5).Draw(rt, "points")),
				Answers: []training.Answer{{ID: "y", IsCorrect: true}, {ID: "n"}},
			})
			switch rapid.IntRange(0, 2).Draw(rt, "answer") {
			case 0:
				resp[id] = training.SingleChoiceAnswer{AnswerID: "y"}
			case 1:
				resp[id] = training.SingleChoiceAnswer{AnswerID: "n"}
			}
		}
		h := newHarness(quiz)
		g, err := h.engine.Submit(ctx, Submission{UserID: "u1", QuizID: "q", Answers: resp})
		if err != nil {
			rt.Fatal(err)
		}
		s := g.Attempt.Score
		if s < 0 || s > 100 {
			rt.Fatalf("score %d", s)
		}
		if g.Attempt.Passed != (s >= quiz.PassingScorePercent) {
			rt.Fatalf("passed=%v score=%d passing=%d", g.Attempt.Passed, s, quiz.PassingScorePercent)
		}
		if g.TotalPoints == 0 && s != 0 {
			rt.Fatalf("empty quiz scored %d", s)
		}
	})
}
