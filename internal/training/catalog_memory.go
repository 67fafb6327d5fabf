package training

import (
	"context"
	"sort"
	"sync"

	"github.com/mind-engage/mindengage-training/internal/apperr"
)

// MemoryCatalog is an in-process Catalog, used for tests and local seeding.
type MemoryCatalog struct {
	mu      sync.RWMutex
	courses map[string]Course
	modules map[string]Module
	lessons map[string]Lesson
	quizzes map[string]Quiz
}

func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		courses: map[string]Course{},
		modules: map[string]Module{},
		lessons: map[string]Lesson{},
		quizzes: map[string]Quiz{},
	}
}

func (m *MemoryCatalog) PutCourse(c Course) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.courses[c.ID] = c
}

func (m *MemoryCatalog) PutModule(mod Module) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modules[mod.ID] = mod
}

func (m *MemoryCatalog) PutLesson(l Lesson) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lessons[l.ID] = l
}

// PutQuiz stores q; questions inherit q.ID as their QuizID.
func (m *MemoryCatalog) PutQuiz(q Quiz) {
	m.mu.Lock()
	defer m.mu.Unlock()
	qs := make([]Question, len(q.Questions))
	for i, qu := range q.Questions {
		qu.QuizID = q.ID
		qs[i] = qu
	}
	q.Questions = qs
	m.quizzes[q.ID] = q
}

func (m *MemoryCatalog) GetCourse(_ context.Context, id string) (Course, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.courses[id]
	if !ok {
		return Course{}, apperr.NotFound("course %q not found", id)
	}
	return c, nil
}

func (m *MemoryCatalog) GetModule(_ context.Context, id string) (Module, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mod, ok := m.modules[id]
	if !ok {
		return Module{}, apperr.NotFound("module %q not found", id)
	}
	return mod, nil
}

func (m *MemoryCatalog) GetModulesByCourse(_ context.Context, courseID string) ([]Module, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Module{}
	for _, mod := range m.modules {
		if mod.CourseID == courseID {
			out = append(out, mod)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryCatalog) GetLesson(_ context.Context, id string) (Lesson, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.lessons[id]
	if !ok {
		return Lesson{}, apperr.NotFound("lesson %q not found", id)
	}
	return l, nil
}

func (m *MemoryCatalog) GetLessonsByModule(_ context.Context, moduleID string) ([]Lesson, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Lesson{}
	for _, l := range m.lessons {
		if l.ModuleID == moduleID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryCatalog) GetQuiz(_ context.Context, id string, withQuestions bool) (Quiz, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.quizzes[id]
	if !ok {
		return Quiz{}, apperr.NotFound("quiz %q not found", id)
	}
	if !withQuestions {
		q.Questions = nil
		return q, nil
	}
	qs := append([]Question(nil), q.Questions...)
	sort.SliceStable(qs, func(i, j int) bool { return qs[i].Order < qs[j].Order })
	q.Questions = qs
	return q, nil
}

func (m *MemoryCatalog) GetQuizzesByModule(_ context.Context, moduleID string) ([]Quiz, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Quiz{}
	for _, q := range m.quizzes {
		if q.ModuleID == moduleID {
			q.Questions = nil
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
