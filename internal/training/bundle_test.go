package training_test

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-training/internal/apperr"
	"github.com/mind-engage/mindengage-training/internal/training"
)

func TestDecodeBundle(t *testing.T) {
	raw, err := json.Marshal(sampleBundle())
	require.NoError(t, err)
	b, err := training.DecodeBundle(raw)
	require.NoError(t, err)
	assert.Equal(t, sampleBundle(), b)
}

func TestDecodeBundle_Rejects(t *testing.T) {
	cases := map[string]string{
		"not json":         `{"courses": [`,
		"bad quiz kind":    `{"quizzes": [{"id": "q", "module_id": "m", "kind": "midterm"}]}`,
		"passing > 100":    `{"quizzes": [{"id": "q", "module_id": "m", "kind": "practice", "passing_score_percent": 120}]}`,
		"module no course": `{"modules": [{"id": "m"}]}`,
		"empty id":         `{"courses": [{"id": ""}]}`,
		"bad question":     `{"quizzes": [{"id": "q", "module_id": "m", "kind": "practice", "questions": [{"id": "x", "kind": "matching"}]}]}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := training.DecodeBundle([]byte(raw))
			require.Error(t, err)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		})
	}
}

func TestDecodeBundle_SampleCatalog(t *testing.T) {
	raw, err := os.ReadFile("../../catalog.sample.json")
	require.NoError(t, err)
	b, err := training.DecodeBundle(raw)
	require.NoError(t, err)
	assert.Len(t, b.Courses, 1)
	assert.Len(t, b.Modules, 2)
	assert.Len(t, b.Quizzes, 4)

	mem := training.NewMemoryCatalog()
	mem.Load(b)
	final, err := mem.GetQuiz(context.Background(), "sec-101-final", true)
	require.NoError(t, err)
	assert.Equal(t, training.QuizFinalExam, final.Kind)
	assert.Len(t, final.Questions, 1)
}
