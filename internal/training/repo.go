package training

import (
	"context"
	"time"
)

// Catalog is read-only access to course content. Lookups of unknown ids
// return an apperr NotFound error.
type Catalog interface {
	GetCourse(ctx context.Context, id string) (Course, error)
	GetModule(ctx context.Context, id string) (Module, error)
	GetModulesByCourse(ctx context.Context, courseID string) ([]Module, error) // ordered by Order
	GetLesson(ctx context.Context, id string) (Lesson, error)
	GetLessonsByModule(ctx context.Context, moduleID string) ([]Lesson, error) // ordered by Order
	GetQuiz(ctx context.Context, id string, withQuestions bool) (Quiz, error)
	GetQuizzesByModule(ctx context.Context, moduleID string) ([]Quiz, error)
}

// ProgressFunc derives the quiz-scoped progress record written together with
// a new attempt. prev is nil when the user has no record for the quiz yet.
type ProgressFunc func(prev *Progress, attempt QuizAttempt) Progress

// AttemptGuard vets a new attempt against the user's previous one for the
// same quiz (nil on the first attempt). It runs inside the numbering unit of
// work; a non-nil error aborts the insert and is returned as is.
type AttemptGuard func(last *QuizAttempt) error

// Rescorer recomputes a session's vulnerability score from its full log.
type Rescorer func(actions []PhishingAction) int

// Store is durable storage for progress records, quiz attempts and
// simulation sessions.
type Store interface {
	// UpsertProgress writes p keyed by (UserID, Scope); ID and CreatedAt of
	// an existing row are kept.
	UpsertProgress(ctx context.Context, p Progress) (Progress, error)
	GetProgress(ctx context.Context, userID string, scope Scope) (Progress, error)
	// ListProgress lists a user's records, restricted to courseID when set.
	ListProgress(ctx context.Context, userID, courseID string) ([]Progress, error)
	DeleteProgress(ctx context.Context, userID string, scope Scope) error

	// InsertQuizAttempt allocates the next attempt number for
	// (a.UserID, a.QuizID), stores the attempt and the progress record
	// returned by progress, all in one unit of work. When maxAttempts > 0 and
	// the budget is spent it returns an apperr Conflict and writes nothing.
	// guard, when set, is consulted after the budget check.
	InsertQuizAttempt(ctx context.Context, a QuizAttempt, maxAttempts int, guard AttemptGuard, progress ProgressFunc) (QuizAttempt, error)
	// ListQuizAttempts returns attempts ordered by attempt number; an empty
	// quizID lists all of the user's attempts.
	ListQuizAttempts(ctx context.Context, userID, quizID string) ([]QuizAttempt, error)

	UpsertSimulationSession(ctx context.Context, s SimulationSession) (SimulationSession, error)
	GetSimulationSession(ctx context.Context, id string) (SimulationSession, error)
	// AppendSessionAction appends to the session log, moves a started session
	// to in_progress and stores rescore(full log) as the session score.
	AppendSessionAction(ctx context.Context, sessionID string, action PhishingAction, rescore Rescorer) (SimulationSession, error)
	// CloseSimulationSession moves an open session to status (completed or
	// abandoned) at time at, storing rescore(full log) as its final score.
	// A session that is already closed yields an apperr Conflict.
	CloseSimulationSession(ctx context.Context, sessionID string, status SessionStatus, at time.Time, rescore Rescorer) (SimulationSession, error)
}
