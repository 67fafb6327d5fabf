package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-training/internal/progress"
)

// POST /api/lesson/complete  {user_id, lesson_id, course_id, module_id, time_spent_minutes}
func CompleteLessonHandler(tr *progress.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req progress.LessonCompletion
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		req.UserID = userID(r, req.UserID)
		p, err := tr.MarkLessonComplete(r.Context(), req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// POST /api/lesson/unmark  {user_id, lesson_id}
func UnmarkLessonHandler(tr *progress.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			UserID   string `json:"user_id"`
			LessonID string `json:"lesson_id"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		if err := tr.UnmarkLessonComplete(r.Context(), userID(r, req.UserID), req.LessonID); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// POST /api/lesson/time  {user_id, lesson_id, time_spent_minutes}
func LessonTimeHandler(tr *progress.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			UserID           string `json:"user_id"`
			LessonID         string `json:"lesson_id"`
			TimeSpentMinutes int    `json:"time_spent_minutes"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		p, err := tr.UpdateLessonTime(r.Context(), userID(r, req.UserID), req.LessonID, req.TimeSpentMinutes)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// GET /api/course/{courseID}/progress?user_id=
func CourseProgressHandler(tr *progress.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cp, err := tr.CourseProgress(r.Context(), userID(r, r.URL.Query().Get("user_id")), chi.URLParam(r, "courseID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, cp)
	}
}

// GET /api/module/{moduleID}/progress?user_id=
func ModuleProgressHandler(tr *progress.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mp, err := tr.ModuleProgress(r.Context(), userID(r, r.URL.Query().Get("user_id")), chi.URLParam(r, "moduleID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, mp)
	}
}
