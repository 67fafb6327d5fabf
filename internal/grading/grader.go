package grading

import (
	"context"
	"strings"

	"github.com/mind-engage/mindengage-training/internal/apperr"
	"github.com/mind-engage/mindengage-training/internal/training"
)

// Result is the outcome of grading a single question response.
type Result struct {
	QuestionID  string   `json:"question_id"`
	AutoPoints  float64  `json:"points"`     // points awarded automatically
	MaxPoints   float64  `json:"max_points"` // the question's max points
	Correct     bool     `json:"correct"`
	NeedsManual bool     `json:"needs_manual,omitempty"` // true if a reviewer has to look at it
	Feedback    []string `json:"feedback,omitempty"`
}

// Strategy grades a single question. A nil response means the question was
// left unanswered and scores zero.
type Strategy interface {
	Grade(ctx context.Context, q training.Question, response training.Response) (Result, error)
}

// Grader routes by question kind to the correct Strategy.
type Grader interface {
	Grade(ctx context.Context, q training.Question, response training.Response) (Result, error)
}

// FeedbackRequiredUnanswered marks a required question submitted without a
// response. It still scores zero; the submission is not rejected.
const FeedbackRequiredUnanswered = "required question not answered"

type defaultGrader struct {
	strategies map[training.QuestionKind]Strategy
}

func (g *defaultGrader) Grade(ctx context.Context, q training.Question, response training.Response) (Result, error) {
	s, ok := g.strategies[q.Kind]
	if !ok {
		return Result{QuestionID: q.ID, MaxPoints: q.Points, NeedsManual: true, Feedback: []string{"no strategy available"}}, nil
	}
	res, err := s.Grade(ctx, q, response)
	res.QuestionID = q.ID
	if err == nil && response == nil && q.Required {
		res.Feedback = append(res.Feedback, FeedbackRequiredUnanswered)
	}
	return res, err
}

// NewDefaultGrader installs the built-in strategies. Multiple choice is all
// or nothing; there is no partial credit anywhere.
func NewDefaultGrader() Grader {
	return &defaultGrader{
		strategies: map[training.QuestionKind]Strategy{
			training.QuestionSingleChoice:   singleChoiceStrategy{},
			training.QuestionTrueFalse:      singleChoiceStrategy{},
			training.QuestionMultipleChoice: multipleChoiceStrategy{},
			training.QuestionFillInBlank:    fillInBlankStrategy{},
			training.QuestionEssay:          essayStrategy{},
		},
	}
}

// --- Strategies ---

type singleChoiceStrategy struct{}

func (singleChoiceStrategy) Grade(_ context.Context, q training.Question, response training.Response) (Result, error) {
	res := Result{MaxPoints: q.Points}
	if response == nil {
		return res, nil
	}
	resp, ok := response.(training.SingleChoiceAnswer)
	if !ok {
		return res, mismatch(q)
	}
	for _, a := range q.Answers {
		if a.IsCorrect && a.ID == resp.AnswerID {
			res.AutoPoints = q.Points
			res.Correct = true
			return res, nil
		}
	}
	return res, nil
}

type multipleChoiceStrategy struct{}

func (multipleChoiceStrategy) Grade(_ context.Context, q training.Question, response training.Response) (Result, error) {
	res := Result{MaxPoints: q.Points}
	if response == nil {
		return res, nil
	}
	resp, ok := response.(training.MultipleChoiceAnswer)
	if !ok {
		return res, mismatch(q)
	}
	correct := map[string]struct{}{}
	for _, a := range q.Answers {
		if a.IsCorrect {
			correct[a.ID] = struct{}{}
		}
	}
	if setEqual(correct, toSet(resp.AnswerIDs)) {
		res.AutoPoints = q.Points
		res.Correct = true
	}
	return res, nil
}

// fillInBlankStrategy accepts the text of any correct answer, compared
// case-insensitively after trimming surrounding whitespace.
type fillInBlankStrategy struct{}

func (fillInBlankStrategy) Grade(_ context.Context, q training.Question, response training.Response) (Result, error) {
	res := Result{MaxPoints: q.Points}
	if response == nil {
		return res, nil
	}
	resp, ok := response.(training.FreeTextAnswer)
	if !ok {
		return res, mismatch(q)
	}
	got := strings.TrimSpace(resp.Text)
	if got == "" {
		return res, nil
	}
	for _, a := range q.Answers {
		if a.IsCorrect && strings.EqualFold(strings.TrimSpace(a.Text), got) {
			res.AutoPoints = q.Points
			res.Correct = true
			return res, nil
		}
	}
	return res, nil
}

type essayStrategy struct{}

func (essayStrategy) Grade(_ context.Context, q training.Question, response training.Response) (Result, error) {
	if response != nil {
		if _, ok := response.(training.FreeTextAnswer); !ok {
			return Result{MaxPoints: q.Points}, mismatch(q)
		}
	}
	return Result{MaxPoints: q.Points, NeedsManual: true, Feedback: []string{"manual grading required"}}, nil
}

// helpers

func mismatch(q training.Question) error {
	return apperr.Validation("answers."+q.ID, "response does not fit a %s question", q.Kind)
}

func toSet(arr []string) map[string]struct{} {
	m := make(map[string]struct{}, len(arr))
	for _, s := range arr {
		m[s] = struct{}{}
	}
	return m
}

func setEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
