// Package progress records lesson completion and rolls it up into module and
// course percentages. Roll-ups are computed on read from lesson records and
// the catalog, never stored, so there is nothing to drift.
package progress

import (
	"context"
	"math"
	"time"

	"github.com/mind-engage/mindengage-training/internal/apperr"
	"github.com/mind-engage/mindengage-training/internal/events"
	"github.com/mind-engage/mindengage-training/internal/training"
)

type Tracker struct {
	catalog training.Catalog
	store   training.Store
	events  *events.Emitter
	now     func() time.Time
}

func NewTracker(catalog training.Catalog, store training.Store, em *events.Emitter) *Tracker {
	return &Tracker{catalog: catalog, store: store, events: em, now: time.Now}
}

// WithClock replaces the tracker's time source.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

type LessonCompletion struct {
	UserID           string `json:"user_id"`
	LessonID         string `json:"lesson_id"`
	CourseID         string `json:"course_id"`
	ModuleID         string `json:"module_id"`
	TimeSpentMinutes int    `json:"time_spent_minutes"`
}

type ModuleProgress struct {
	ModuleID         string `json:"module_id"`
	CompletedLessons int    `json:"completed_lessons"`
	TotalLessons     int    `json:"total_lessons"`
	Percent          int    `json:"progress_percentage"`
	Completed        bool   `json:"completed"`
}

type CourseProgress struct {
	CourseID         string           `json:"course_id"`
	OverallProgress  int              `json:"overall_progress"`
	CompletedLessons int              `json:"completed_lessons"`
	TotalLessons     int              `json:"total_lessons"`
	CompletedModules int              `json:"completed_modules"`
	TotalModules     int              `json:"total_modules"`
	LastActivity     *time.Time       `json:"last_activity"`
	Modules          []ModuleProgress `json:"modules"`
}

// Percent is round(100*done/total), 0 when total is 0.
func Percent(done, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(done) / float64(total)))
}

// MarkLessonComplete is idempotent: on an already completed lesson it only
// adds the time spent.
func (t *Tracker) MarkLessonComplete(ctx context.Context, in LessonCompletion) (training.Progress, error) {
	if in.UserID == "" {
		return training.Progress{}, apperr.Unauthorized("user id required")
	}
	if in.LessonID == "" {
		return training.Progress{}, apperr.Validation("lesson_id", "required")
	}
	if in.TimeSpentMinutes < 0 {
		return training.Progress{}, apperr.Validation("time_spent_minutes", "must not be negative")
	}
	lesson, module, err := t.resolveLesson(ctx, in.LessonID, in.ModuleID, in.CourseID)
	if err != nil {
		return training.Progress{}, err
	}

	now := t.now()
	p, err := t.store.GetProgress(ctx, in.UserID, training.LessonScope(lesson.ID))
	switch {
	case apperr.IsNotFound(err):
		p = training.Progress{UserID: in.UserID, Scope: training.LessonScope(lesson.ID)}
	case err != nil:
		return training.Progress{}, err
	}
	p.CourseID = module.CourseID
	p.ModuleID = module.ID
	p.TimeSpentMinutes += in.TimeSpentMinutes
	p.LastAccessedAt = now
	if p.Status != training.StatusCompleted {
		p.Status = training.StatusCompleted
		p.ProgressPercentage = 100
		p.CompletedAt = &now
	}
	p, err = t.store.UpsertProgress(ctx, p)
	if err != nil {
		return training.Progress{}, err
	}
	t.events.Emit(ctx, events.LessonCompleted, in.UserID+":"+lesson.ID, map[string]any{
		"user_id": in.UserID, "lesson_id": lesson.ID, "module_id": module.ID, "course_id": module.CourseID,
		"time_spent_minutes": p.TimeSpentMinutes,
	})
	return p, nil
}

// UnmarkLessonComplete removes the lesson record. It is a corrective action
// and the only way a lesson's percentage goes down.
func (t *Tracker) UnmarkLessonComplete(ctx context.Context, userID, lessonID string) error {
	if userID == "" {
		return apperr.Unauthorized("user id required")
	}
	if lessonID == "" {
		return apperr.Validation("lesson_id", "required")
	}
	if err := t.store.DeleteProgress(ctx, userID, training.LessonScope(lessonID)); err != nil {
		return err
	}
	t.events.Emit(ctx, events.LessonUnmarked, userID+":"+lessonID, map[string]any{
		"user_id": userID, "lesson_id": lessonID,
	})
	return nil
}

// UpdateLessonTime accumulates time on a lesson, opening an in_progress
// record on first contact. Status is never changed here.
func (t *Tracker) UpdateLessonTime(ctx context.Context, userID, lessonID string, minutes int) (training.Progress, error) {
	if userID == "" {
		return training.Progress{}, apperr.Unauthorized("user id required")
	}
	if lessonID == "" {
		return training.Progress{}, apperr.Validation("lesson_id", "required")
	}
	if minutes < 0 {
		return training.Progress{}, apperr.Validation("time_spent_minutes", "must not be negative")
	}
	now := t.now()
	p, err := t.store.GetProgress(ctx, userID, training.LessonScope(lessonID))
	switch {
	case apperr.IsNotFound(err):
		lesson, module, err := t.resolveLesson(ctx, lessonID, "", "")
		if err != nil {
			return training.Progress{}, err
		}
		p = training.Progress{
			UserID:   userID,
			Scope:    training.LessonScope(lesson.ID),
			CourseID: module.CourseID,
			ModuleID: module.ID,
			Status:   training.StatusInProgress,
		}
	case err != nil:
		return training.Progress{}, err
	}
	p.TimeSpentMinutes += minutes
	p.LastAccessedAt = now
	p, err = t.store.UpsertProgress(ctx, p)
	if err != nil {
		return training.Progress{}, err
	}
	t.events.Emit(ctx, events.LessonTimeUpdated, userID+":"+lessonID, map[string]any{
		"user_id": userID, "lesson_id": lessonID, "time_spent_minutes": p.TimeSpentMinutes,
	})
	return p, nil
}

// CourseProgress rolls lesson records up over the course's current lesson set.
func (t *Tracker) CourseProgress(ctx context.Context, userID, courseID string) (CourseProgress, error) {
	if userID == "" {
		return CourseProgress{}, apperr.Unauthorized("user id required")
	}
	if _, err := t.catalog.GetCourse(ctx, courseID); err != nil {
		return CourseProgress{}, err
	}
	modules, err := t.catalog.GetModulesByCourse(ctx, courseID)
	if err != nil {
		return CourseProgress{}, err
	}
	records, err := t.store.ListProgress(ctx, userID, courseID)
	if err != nil {
		return CourseProgress{}, err
	}
	done := CompletedLessons(records)

	out := CourseProgress{CourseID: courseID, TotalModules: len(modules), Modules: make([]ModuleProgress, 0, len(modules))}
	for _, m := range modules {
		mp, err := t.moduleProgress(ctx, m.ID, done)
		if err != nil {
			return CourseProgress{}, err
		}
		out.Modules = append(out.Modules, mp)
		out.TotalLessons += mp.TotalLessons
		out.CompletedLessons += mp.CompletedLessons
		if mp.Completed {
			out.CompletedModules++
		}
	}
	out.OverallProgress = Percent(out.CompletedLessons, out.TotalLessons)
	for _, r := range records {
		if out.LastActivity == nil || r.UpdatedAt.After(*out.LastActivity) {
			ts := r.UpdatedAt
			out.LastActivity = &ts
		}
	}
	return out, nil
}

// ModuleProgress reports lesson completion within one module.
func (t *Tracker) ModuleProgress(ctx context.Context, userID, moduleID string) (ModuleProgress, error) {
	if userID == "" {
		return ModuleProgress{}, apperr.Unauthorized("user id required")
	}
	m, err := t.catalog.GetModule(ctx, moduleID)
	if err != nil {
		return ModuleProgress{}, err
	}
	records, err := t.store.ListProgress(ctx, userID, m.CourseID)
	if err != nil {
		return ModuleProgress{}, err
	}
	return t.moduleProgress(ctx, m.ID, CompletedLessons(records))
}

func (t *Tracker) moduleProgress(ctx context.Context, moduleID string, done map[string]bool) (ModuleProgress, error) {
	lessons, err := t.catalog.GetLessonsByModule(ctx, moduleID)
	if err != nil {
		return ModuleProgress{}, err
	}
	mp := ModuleProgress{ModuleID: moduleID, TotalLessons: len(lessons)}
	for _, l := range lessons {
		if done[l.ID] {
			mp.CompletedLessons++
		}
	}
	mp.Percent = Percent(mp.CompletedLessons, mp.TotalLessons)
	// an empty module has nothing to complete and is not counted
	mp.Completed = mp.TotalLessons > 0 && mp.CompletedLessons == mp.TotalLessons
	return mp, nil
}

// CompletedLessons returns the ids of completed lesson-scoped records.
func CompletedLessons(records []training.Progress) map[string]bool {
	out := map[string]bool{}
	for _, r := range records {
		if r.Scope.Kind == training.ScopeLesson && r.Status == training.StatusCompleted {
			out[r.Scope.ID] = true
		}
	}
	return out
}

func (t *Tracker) resolveLesson(ctx context.Context, lessonID, moduleID, courseID string) (training.Lesson, training.Module, error) {
	lesson, err := t.catalog.GetLesson(ctx, lessonID)
	if err != nil {
		return training.Lesson{}, training.Module{}, err
	}
	if moduleID != "" && moduleID != lesson.ModuleID {
		return training.Lesson{}, training.Module{}, apperr.Validation("module_id", "lesson %q belongs to module %q", lessonID, lesson.ModuleID)
	}
	module, err := t.catalog.GetModule(ctx, lesson.ModuleID)
	if err != nil {
		return training.Lesson{}, training.Module{}, err
	}
	if courseID != "" && courseID != module.CourseID {
		return training.Lesson{}, training.Module{}, apperr.Validation("course_id", "lesson %q belongs to course %q", lessonID, module.CourseID)
	}
	return lesson, module, nil
}
