// Package events records state transitions of the progression engine as
// structured log lines and, optionally, as rows in the event_log table.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
)

const (
	LessonCompleted       = "lesson.completed"
	LessonUnmarked        = "lesson.unmarked"
	LessonTimeUpdated     = "lesson.time_updated"
	AttemptGraded         = "attempt.graded"
	QuizLocked            = "quiz.locked"
	QuizUnlocked          = "quiz.unlocked"
	ModuleLocked          = "module.locked"
	ModuleUnlocked        = "module.unlocked"
	SessionStarted        = "session.started"
	SessionActionAppended = "session.action_appended"
	SessionClosed         = "session.closed"
)

// Appender persists events. *EventRepo satisfies it.
type Appender interface {
	Append(ctx context.Context, e Event) error
}

// Emitter fans a transition out to the logger and the optional Appender.
// A nil *Emitter is valid and drops everything.
type Emitter struct {
	log    *slog.Logger
	repo   Appender
	siteID string
}

func NewEmitter(log *slog.Logger, repo Appender, siteID string) *Emitter {
	if log == nil {
		log = slog.Default()
	}
	if siteID == "" {
		siteID = "local"
	}
	return &Emitter{log: log, repo: repo, siteID: siteID}
}

// Emit records typ for the natural key (attempt id, session id, user:scope).
// Persistence failures are logged and never surfaced to the caller.
func (e *Emitter) Emit(ctx context.Context, typ, key string, data map[string]any) {
	if e == nil {
		return
	}
	attrs := make([]any, 0, 2*len(data)+2)
	attrs = append(attrs, slog.String("key", key))
	for k, v := range data {
		attrs = append(attrs, slog.Any(k, v))
	}
	e.log.InfoContext(ctx, typ, attrs...)

	if e.repo == nil {
		return
	}
	buf, err := json.Marshal(data)
	if err != nil {
		e.log.WarnContext(ctx, "event encode failed", slog.String("type", typ), slog.Any("err", err))
		return
	}
	if err := e.repo.Append(ctx, Event{SiteID: e.siteID, Type: typ, Key: key, DataJSON: string(buf)}); err != nil {
		e.log.WarnContext(ctx, "event append failed", slog.String("type", typ), slog.Any("err", err))
	}
}
