package progress

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/mind-engage/mindengage-training/internal/apperr"
	"github.com/mind-engage/mindengage-training/internal/training"
)

func fixture() (*training.MemoryCatalog, training.Store, *Tracker) {
	cat := training.NewMemoryCatalog()
	cat.Load(training.Bundle{
		Courses: []training.Course{{ID: "c1"}, {ID: "empty"}},
		Modules: []training.Module{
			{ID: "m1", CourseID: "c1", Order: 1},
			{ID: "m2", CourseID: "c1", Order: 2},
			{ID: "m3", CourseID: "c1", Order: 3}, // no lessons
		},
		Lessons: []training.Lesson{
			{ID: "l1", ModuleID: "m1", Order: 1},
			{ID: "l2", ModuleID: "m1", Order: 2},
			{ID: "l3", ModuleID: "m2", Order: 1},
		},
	})
	st := training.NewMemoryStore()
	return cat, st, NewTracker(cat, st, nil)
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 0, Percent(0, 0))
	assert.Equal(t, 0, Percent(3, 0))
	assert.Equal(t, 33, Percent(1, 3))
	assert.Equal(t, 67, Percent(2, 3))
	assert.Equal(t, 100, Percent(4, 4))
}

func TestCourseProgress_EmptyCourseIsZero(t *testing.T) {
	_, _, tr := fixture()
	cp, err := tr.CourseProgress(context.Background(), "u1", "empty")
	require.NoError(t, err)
	assert.Equal(t, 0, cp.OverallProgress)
	assert.Equal(t, 0, cp.TotalLessons)
	assert.Nil(t, cp.LastActivity)
}

func TestCourseProgress_RollUp(t *testing.T) {
	ctx := context.Background()
	_, _, tr := fixture()
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	tr.WithClock(func() time.Time { return clock })

	_, err := tr.MarkLessonComplete(ctx, LessonCompletion{UserID: "u1", LessonID: "l1", TimeSpentMinutes: 5})
	require.NoError(t, err)
	_, err = tr.MarkLessonComplete(ctx, LessonCompletion{UserID: "u1", LessonID: "l2", ModuleID: "m1", CourseID: "c1"})
	require.NoError(t, err)

	cp, err := tr.CourseProgress(ctx, "u1", "c1")
	require.NoError(t, err)
	assert.Equal(t, 67, cp.OverallProgress)
	assert.Equal(t, 2, cp.CompletedLessons)
	assert.Equal(t, 3, cp.TotalLessons)
	assert.Equal(t, 1, cp.CompletedModules)
	assert.Equal(t, 3, cp.TotalModules)
	require.NotNil(t, cp.LastActivity)
	require.Len(t, cp.Modules, 3)
	assert.Equal(t, 100, cp.Modules[0].Percent)
	assert.False(t, cp.Modules[2].Completed, "a module without lessons never counts as completed")

	// another user's progress does not leak in
	other, err := tr.CourseProgress(ctx, "u2", "c1")
	require.NoError(t, err)
	assert.Equal(t, 0, other.OverallProgress)

	_, err = tr.CourseProgress(ctx, "u1", "missing")
	assert.True(t, apperr.IsNotFound(err))
}

func TestMarkLessonComplete_Idempotent(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		_, st, tr := fixture()
		minutes := rapid.SliceOfN(rapid.IntRange(0, 120), 1, 6).Draw(rt, "minutes")

		total := 0
		for _, m := range minutes {
			p, err := tr.MarkLessonComplete(ctx, LessonCompletion{UserID: "u1", LessonID: "l1", TimeSpentMinutes: m})
			if err != nil {
				rt.Fatal(err)
			}
			total += m
			if p.Status != training.StatusCompleted || p.ProgressPercentage != 100 {
				rt.Fatalf("after mark: status=%s pct=%d", p.Status, p.ProgressPercentage)
			}
		}
		p, err := st.GetProgress(ctx, "u1", training.LessonScope("l1"))
		if err != nil {
			rt.Fatal(err)
		}
		if p.TimeSpentMinutes != total {
			rt.Fatalf("time spent %d, want %d", p.TimeSpentMinutes, total)
		}
	})
}

func TestMarkLessonComplete_KeepsFirstCompletion(t *testing.T) {
	ctx := context.Background()
	_, _, tr := fixture()
	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr.WithClock(func() time.Time { return first })
	p1, err := tr.MarkLessonComplete(ctx, LessonCompletion{UserID: "u1", LessonID: "l1"})
	require.NoError(t, err)

	tr.WithClock(func() time.Time { return first.Add(time.Hour) })
	p2, err := tr.MarkLessonComplete(ctx, LessonCompletion{UserID: "u1", LessonID: "l1", TimeSpentMinutes: 3})
	require.NoError(t, err)
	assert.Equal(t, p1.ID, p2.ID)
	assert.True(t, p2.CompletedAt.Equal(first))
	assert.True(t, p2.LastAccessedAt.Equal(first.Add(time.Hour)))
}

func TestMarkLessonComplete_Validation(t *testing.T) {
	ctx := context.Background()
	_, _, tr := fixture()

	_, err := tr.MarkLessonComplete(ctx, LessonCompletion{LessonID: "l1"})
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	_, err = tr.MarkLessonComplete(ctx, LessonCompletion{UserID: "u1", LessonID: "nope"})
	assert.True(t, apperr.IsNotFound(err))

	_, err = tr.MarkLessonComplete(ctx, LessonCompletion{UserID: "u1", LessonID: "l1", ModuleID: "m2"})
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, "module_id", e.Field)

	_, err = tr.MarkLessonComplete(ctx, LessonCompletion{UserID: "u1", LessonID: "l1", CourseID: "other"})
	e, ok = apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, "course_id", e.Field)

	_, err = tr.MarkLessonComplete(ctx, LessonCompletion{UserID: "u1", LessonID: "l1", TimeSpentMinutes: -1})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestUnmarkLessonComplete(t *testing.T) {
	ctx := context.Background()
	_, st, tr := fixture()

	assert.True(t, apperr.IsNotFound(tr.UnmarkLessonComplete(ctx, "u1", "l1")))

	_, err := tr.MarkLessonComplete(ctx, LessonCompletion{UserID: "u1", LessonID: "l1"})
	require.NoError(t, err)
	require.NoError(t, tr.UnmarkLessonComplete(ctx, "u1", "l1"))

	_, err = st.GetProgress(ctx, "u1", training.LessonScope("l1"))
	assert.True(t, apperr.IsNotFound(err))

	mp, err := tr.ModuleProgress(ctx, "u1", "m1")
	require.NoError(t, err)
	assert.Equal(t, 0, mp.CompletedLessons)
}

func TestUpdateLessonTime(t *testing.T) {
	ctx := context.Background()
	_, _, tr := fixture()

	p, err := tr.UpdateLessonTime(ctx, "u1", "l3", 4)
	require.NoError(t, err)
	assert.Equal(t, training.StatusInProgress, p.Status)
	assert.Equal(t, 4, p.TimeSpentMinutes)
	assert.Equal(t, "m2", p.ModuleID)
	assert.Equal(t, "c1", p.CourseID)

	p, err = tr.UpdateLessonTime(ctx, "u1", "l3", 6)
	require.NoError(t, err)
	assert.Equal(t, training.StatusInProgress, p.Status)
	assert.Equal(t, 10, p.TimeSpentMinutes)

	_, err = tr.MarkLessonComplete(ctx, LessonCompletion{UserID: "u1", LessonID: "l3"})
	require.NoError(t, err)
	p, err = tr.UpdateLessonTime(ctx, "u1", "l3", 1)
	require.NoError(t, err)
	assert.Equal(t, training.StatusCompleted, p.Status)
	assert.Equal(t, 100, p.ProgressPercentage)
	assert.Equal(t, 11, p.TimeSpentMinutes)

	_, err = tr.UpdateLessonTime(ctx, "u1", "missing", 1)
	assert.True(t, apperr.IsNotFound(err))
}
