package grading

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/mind-engage/mindengage-training/internal/apperr"
	"github.com/mind-engage/mindengage-training/internal/training"
)

func TestSingleChoiceAndTrueFalse(t *testing.T) {
	g := NewDefaultGrader()
	ctx := context.Background()
	for _, kind := range []training.QuestionKind{training.QuestionSingleChoice, training.QuestionTrueFalse} {
		q := training.Question{ID: "q", Kind: kind, Points: 2, Answers: []training.Answer{
			{ID: "a"}, {ID: "b", IsCorrect: true},
		}}
		res, err := g.Grade(ctx, q, training.SingleChoiceAnswer{AnswerID: "b"})
		require.NoError(t, err)
		assert.True(t, res.Correct)
		assert.Equal(t, 2.0, res.AutoPoints)
		assert.Equal(t, "q", res.QuestionID)

		res, err = g.Grade(ctx, q, training.SingleChoiceAnswer{AnswerID: "a"})
		require.NoError(t, err)
		assert.False(t, res.Correct)
		assert.Equal(t, 0.0, res.AutoPoints)
		assert.Equal(t, 2.0, res.MaxPoints)
	}
}

func TestMultipleChoiceNoPartialCredit(t *testing.T) {
	g := NewDefaultGrader()
	q := training.Question{ID: "q", Kind: training.QuestionMultipleChoice, Points: 3, Answers: []training.Answer{
		{ID: "a", IsCorrect: true}, {ID: "b", IsCorrect: true}, {ID: "c"}, {ID: "d"},
	}}
	cases := []struct {
		name string
		ids  []string
		want float64
	}{
		{"exact", []string{"b", "a"}, 3},
		{"duplicate ids still the same set", []string{"a", "b", "a"}, 3},
		{"subset", []string{"a"}, 0},
		{"superset", []string{"a", "b", "c"}, 0},
		{"disjoint", []string{"c", "d"}, 0},
		{"empty", nil, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := g.Grade(context.Background(), q, training.MultipleChoiceAnswer{AnswerIDs: tc.ids})
			require.NoError(t, err)
			assert.Equal(t, tc.want, res.AutoPoints)
			assert.Equal(t, tc.want > 0, res.Correct)
		})
	}
}

func TestMultipleChoiceOnlyExactSetScores(t *testing.T) {
	g := NewDefaultGrader()
	rapid.Check(t, func(rt *rapid.T) {
		ids := []string{"a", "b", "c", "d", "e"}
		var answers []training.Answer
		correct := map[string]bool{}
		for _, id := range ids {
			ok := rapid.Bool().Draw(rt, "correct_"+id)
			correct[id] = ok
			answers = append(answers, training.Answer{ID: id, IsCorrect: ok})
		}
		picked := rapid.SliceOfDistinct(rapid.SampledFrom(ids), func(s string) string { return s }).Draw(rt, "picked")

		exact := len(picked) == countTrue(correct)
		for _, id := range picked {
			exact = exact && correct[id]
		}

		q := training.Question{ID: "q", Kind: training.QuestionMultipleChoice, Points: 1, Answers: answers}
		res, err := g.Grade(context.Background(), q, training.MultipleChoiceAnswer{AnswerIDs: picked})
		if err != nil {
			rt.Fatal(err)
		}
		if res.Correct != exact {
			rt.Fatalf("picked %v correct=%v exact=%v", picked, res.Correct, exact)
		}
		if !exact && res.AutoPoints != 0 {
			rt.Fatalf("partial credit %v", res.AutoPoints)
		}
	})
}

func countTrue(m map[string]bool) int {
	n := 0
	for _, v := range m {
		if v {
			n++
		}
	}
	return n
}

func TestFillInBlank(t *testing.T) {
	g := NewDefaultGrader()
	q := training.Question{ID: "q", Kind: training.QuestionFillInBlank, Points: 1, Answers: []training.Answer{
		{ID: "a", Text: "Phishing", IsCorrect: true},
		{ID: "b", Text: "spear phishing", IsCorrect: true},
		{ID: "c", Text: "vishing"},
	}}
	for text, want := range map[string]bool{
		"  phishing ":    true,
		"SPEAR PHISHING": true,
		"vishing":        false,
		"":               false,
		"phish":          false,
	} {
		res, err := g.Grade(context.Background(), q, training.FreeTextAnswer{Text: text})
		require.NoError(t, err)
		assert.Equal(t, want, res.Correct, "text %q", text)
	}
}

func TestEssayNeedsManual(t *testing.T) {
	g := NewDefaultGrader()
	q := training.Question{ID: "q", Kind: training.QuestionEssay, Points: 5}
	res, err := g.Grade(context.Background(), q, training.FreeTextAnswer{Text: "a long answer"})
	require.NoError(t, err)
	assert.True(t, res.NeedsManual)
	assert.Equal(t, 0.0, res.AutoPoints)
	assert.Equal(t, 5.0, res.MaxPoints)
}

func TestUnansweredScoresZero(t *testing.T) {
	g := NewDefaultGrader()
	for _, kind := range []training.QuestionKind{
		training.QuestionSingleChoice, training.QuestionMultipleChoice, training.QuestionFillInBlank,
	} {
		res, err := g.Grade(context.Background(), training.Question{ID: "q", Kind: kind, Points: 1,
			Answers: []training.Answer{{ID: "a", Text: "x", IsCorrect: true}}}, nil)
		require.NoError(t, err)
		assert.False(t, res.Correct)
		assert.Equal(t, 1.0, res.MaxPoints)
	}
}

func TestRequiredUnansweredIsFlagged(t *testing.T) {
	g := NewDefaultGrader()
	q := training.Question{ID: "q", Kind: training.QuestionSingleChoice, Points: 2, Required: true,
		Answers: []training.Answer{{ID: "a", IsCorrect: true}, {ID: "b"}}}

	res, err := g.Grade(context.Background(), q, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.AutoPoints)
	assert.Contains(t, res.Feedback, FeedbackRequiredUnanswered)

	res, err = g.Grade(context.Background(), q, training.SingleChoiceAnswer{AnswerID: "b"})
	require.NoError(t, err)
	assert.NotContains(t, res.Feedback, FeedbackRequiredUnanswered)

	q.Required = false
	res, err = g.Grade(context.Background(), q, nil)
	require.NoError(t, err)
	assert.NotContains(t, res.Feedback, FeedbackRequiredUnanswered)
}

func TestResponseKindMismatch(t *testing.T) {
	g := NewDefaultGrader()
	_, err := g.Grade(context.Background(),
		training.Question{ID: "q7", Kind: training.QuestionMultipleChoice, Points: 1},
		training.SingleChoiceAnswer{AnswerID: "a"})
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindValidation, e.Kind)
	assert.Equal(t, "answers.q7", e.Field)
}

func TestScore(t *testing.T) {
	assert.Equal(t, 0, Score(0, 0))
	assert.Equal(t, 0, Score(3, 0))
	assert.Equal(t, 50, Score(1, 2))
	assert.Equal(t, 67, Score(2, 3))
	assert.Equal(t, 100, Score(2.5, 2.5))

	rapid.Check(t, func(rt *rapid.T) {
		total := rapid.Float64Range(0, 1000).Draw(rt, "total")
		earned := rapid.Float64Range(0, total).Draw(rt, "earned")
		s := Score(earned, total)
		if s < 0 || s > 100 {
			rt.Fatalf("score %d out of range", s)
		}
	})
}
