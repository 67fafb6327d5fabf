package training

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-training/internal/apperr"
)

type memoryStore struct {
	mu       sync.RWMutex
	now      func() time.Time
	progress map[string]Progress      // userID|kind|scopeID
	attempts map[string][]QuizAttempt // userID|quizID, ordered by number
	sessions map[string]SimulationSession
}

// NewMemoryStore returns a Store kept in process memory. A single mutex
// serializes writers, which makes attempt numbering trivially contiguous.
func NewMemoryStore() Store {
	return &memoryStore{
		now:      time.Now,
		progress: map[string]Progress{},
		attempts: map[string][]QuizAttempt{},
		sessions: map[string]SimulationSession{},
	}
}

func progressKey(userID string, s Scope) string { return userID + "|" + string(s.Kind) + "|" + s.ID }

func (m *memoryStore) UpsertProgress(_ context.Context, p Progress) (Progress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upsertLocked(p), nil
}

func (m *memoryStore) upsertLocked(p Progress) Progress {
	now := m.now()
	k := progressKey(p.UserID, p.Scope)
	if prev, ok := m.progress[k]; ok {
		p.ID = prev.ID
		p.CreatedAt = prev.CreatedAt
	} else {
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	m.progress[k] = p
	return p
}

func (m *memoryStore) GetProgress(_ context.Context, userID string, scope Scope) (Progress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.progress[progressKey(userID, scope)]
	if !ok {
		return Progress{}, apperr.NotFound("no %s progress for %q", scope.Kind, scope.ID)
	}
	return p, nil
}

func (m *memoryStore) ListProgress(_ context.Context, userID, courseID string) ([]Progress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Progress{}
	for _, p := range m.progress {
		if p.UserID != userID {
			continue
		}
		if courseID != "" && p.CourseID != courseID {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

func (m *memoryStore) DeleteProgress(_ context.Context, userID string, scope Scope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := progressKey(userID, scope)
	if _, ok := m.progress[k]; !ok {
		return apperr.NotFound("no %s progress for %q", scope.Kind, scope.ID)
	}
	delete(m.progress, k)
	return nil
}

func (m *memoryStore) InsertQuizAttempt(_ context.Context, a QuizAttempt, maxAttempts int, guard AttemptGuard, progress ProgressFunc) (QuizAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := a.UserID + "|" + a.QuizID
	list := m.attempts[k]
	if maxAttempts > 0 && len(list) >= maxAttempts {
		return QuizAttempt{}, apperr.Conflict(nil, "attempt limit reached")
	}
	if guard != nil {
		var last *QuizAttempt
		if n := len(list); n > 0 {
			prev := list[n-1]
			last = &prev
		}
		if err := guard(last); err != nil {
			return QuizAttempt{}, err
		}
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.AttemptNumber = len(list) + 1
	m.attempts[k] = append(list, a)

	if progress != nil {
		var prev *Progress
		if p, ok := m.progress[progressKey(a.UserID, QuizScope(a.QuizID))]; ok {
			prev = &p
		}
		m.upsertLocked(progress(prev, a))
	}
	return a, nil
}

func (m *memoryStore) ListQuizAttempts(_ context.Context, userID, quizID string) ([]QuizAttempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if quizID != "" {
		return append([]QuizAttempt{}, m.attempts[userID+"|"+quizID]...), nil
	}
	out := []QuizAttempt{}
	for _, list := range m.attempts {
		for _, a := range list {
			if a.UserID == userID {
				out = append(out, a)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].QuizID != out[j].QuizID {
			return out[i].QuizID < out[j].QuizID
		}
		return out[i].AttemptNumber < out[j].AttemptNumber
	})
	return out, nil
}

func (m *memoryStore) UpsertSimulationSession(_ context.Context, s SimulationSession) (SimulationSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if prev, ok := m.sessions[s.ID]; ok {
		s.Actions = prev.Actions
		s.StartedAt = prev.StartedAt
	} else if s.StartedAt.IsZero() {
		s.StartedAt = now
	}
	s.UpdatedAt = now
	m.sessions[s.ID] = s
	return copySession(s), nil
}

func (m *memoryStore) GetSimulationSession(_ context.Context, id string) (SimulationSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return SimulationSession{}, apperr.NotFound("simulation session %q not found", id)
	}
	return copySession(s), nil
}

func (m *memoryStore) AppendSessionAction(_ context.Context, sessionID string, action PhishingAction, rescore Rescorer) (SimulationSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return SimulationSession{}, apperr.NotFound("simulation session %q not found", sessionID)
	}
	if s.Status.Closed() {
		return SimulationSession{}, apperr.Conflict(nil, "simulation session %q is %s", sessionID, s.Status)
	}
	s.Actions = append(append([]PhishingAction{}, s.Actions...), action)
	if s.Status == SessionStarted {
		s.Status = SessionInProgress
	}
	if rescore != nil {
		s.VulnerabilityScore = rescore(s.Actions)
	}
	s.UpdatedAt = m.now()
	m.sessions[sessionID] = s
	return copySession(s), nil
}

func (m *memoryStore) CloseSimulationSession(_ context.Context, sessionID string, status SessionStatus, at time.Time, rescore Rescorer) (SimulationSession, error) {
	if !status.Closed() {
		return SimulationSession{}, apperr.Validation("status", "%q does not close a session", status)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return SimulationSession{}, apperr.NotFound("simulation session %q not found", sessionID)
	}
	if s.Status.Closed() {
		return SimulationSession{}, apperr.Conflict(nil, "simulation session %q is %s", sessionID, s.Status)
	}
	s.Status = status
	s.Completed = status == SessionCompleted
	s.CompletedAt = &at
	if rescore != nil {
		s.VulnerabilityScore = rescore(s.Actions)
	}
	s.UpdatedAt = m.now()
	m.sessions[sessionID] = s
	return copySession(s), nil
}

func copySession(s SimulationSession) SimulationSession {
	s.Actions = append([]PhishingAction{}, s.Actions...)
	return s
}
