package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-training/internal/grading"
	"github.com/mind-engage/mindengage-training/internal/phishing"
	"github.com/mind-engage/mindengage-training/internal/progress"
	"github.com/mind-engage/mindengage-training/internal/training"
	"github.com/mind-engage/mindengage-training/internal/unlock"
)

// Services are the components the API surface calls into.
type Services struct {
	Catalog    training.Catalog
	Tracker    *progress.Tracker
	Engine     *grading.Engine
	Gate       *unlock.Gate
	Simulation *phishing.Service
}

// MountAPI registers the learner-facing routes on r. Authentication
// middleware is the caller's business.
func MountAPI(r chi.Router, s Services) {
	r.Post("/lesson/complete", CompleteLessonHandler(s.Tracker))
	r.Post("/lesson/unmark", UnmarkLessonHandler(s.Tracker))
	r.Post("/lesson/time", LessonTimeHandler(s.Tracker))
	r.Get("/course/{courseID}/progress", CourseProgressHandler(s.Tracker))
	r.Get("/module/{moduleID}/progress", ModuleProgressHandler(s.Tracker))
	r.Get("/module/{moduleID}/unlock", ModuleUnlockHandler(s.Gate))

	r.Post("/quiz-attempt", SubmitQuizHandler(s.Catalog, s.Engine))
	r.Get("/quiz/{quizID}/attempts", ListQuizAttemptsHandler(s.Engine))
	r.Get("/quiz/{quizID}/unlock", QuizUnlockHandler(s.Gate))

	r.Post("/simulation/start", StartSimulationHandler(s.Simulation))
	r.Post("/simulation/{sessionID}/track", TrackSimulationHandler(s.Simulation))
	r.Post("/simulation/{sessionID}/complete", CompleteSimulationHandler(s.Simulation))
	r.Post("/simulation/{sessionID}/abandon", AbandonSimulationHandler(s.Simulation))
	r.Get("/simulation/{sessionID}", GetSimulationHandler(s.Simulation))
}

type pinger interface {
	PingContext(ctx context.Context) error
}

// ReadyHandler reports 503 until the database answers a ping. A nil db is
// always ready.
func ReadyHandler(db pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				http.Error(w, "db unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	}
}
