package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-training/internal/apperr"
	"github.com/mind-engage/mindengage-training/internal/grading"
	"github.com/mind-engage/mindengage-training/internal/training"
	"github.com/mind-engage/mindengage-training/internal/unlock"
)

// POST /api/quiz-attempt  {user_id, quiz_id, answers: {questionID: value}, time_spent_minutes}
// Each answer value is decoded by its question's kind: an answer id, an array
// of answer ids, or free text.
func SubmitQuizHandler(catalog training.Catalog, engine *grading.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			UserID           string                     `json:"user_id"`
			QuizID           string                     `json:"quiz_id"`
			Answers          map[string]json.RawMessage `json:"answers"`
			TimeSpentMinutes int                        `json:"time_spent_minutes"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		uid := userID(r, req.UserID)
		if uid == "" {
			writeError(w, r, apperr.Unauthorized("user id required"))
			return
		}
		if req.QuizID == "" {
			writeError(w, r, apperr.Validation("quiz_id", "required"))
			return
		}
		quiz, err := catalog.GetQuiz(r.Context(), req.QuizID, true)
		if err != nil {
			writeError(w, r, err)
			return
		}
		answers, err := training.DecodeResponses(quiz, req.Answers)
		if err != nil {
			writeError(w, r, err)
			return
		}
		g, err := engine.Submit(r.Context(), grading.Submission{
			UserID: uid, QuizID: quiz.ID, Answers: answers, TimeSpentMinutes: req.TimeSpentMinutes,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"id":             g.Attempt.ID,
			"score":          g.Attempt.Score,
			"passed":         g.Attempt.Passed,
			"attempt_number": g.Attempt.AttemptNumber,
			"provisional":    g.Provisional,
			"earned_points":  g.EarnedPoints,
			"total_points":   g.TotalPoints,
			"results":        g.Results,
		})
	}
}

// GET /api/quiz/{quizID}/attempts?user_id=
func ListQuizAttemptsHandler(engine *grading.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := engine.ListAttempts(r.Context(), userID(r, r.URL.Query().Get("user_id")), chi.URLParam(r, "quizID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// GET /api/quiz/{quizID}/unlock?user_id=
func QuizUnlockHandler(gate *unlock.Gate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := gate.IsQuizUnlocked(r.Context(), userID(r, r.URL.Query().Get("user_id")), chi.URLParam(r, "quizID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

// GET /api/module/{moduleID}/unlock?user_id=
func ModuleUnlockHandler(gate *unlock.Gate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := gate.IsModuleUnlocked(r.Context(), userID(r, r.URL.Query().Get("user_id")), chi.URLParam(r, "moduleID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}
