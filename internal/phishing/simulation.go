package phishing

import (
	"context"
	"time"

	"github.com/mind-engage/mindengage-training/internal/apperr"
	"github.com/mind-engage/mindengage-training/internal/events"
	"github.com/mind-engage/mindengage-training/internal/training"
)

// Service runs simulation sessions: start, track actions, close. The action
// log is the source of truth; the stored score is rebuilt from it on every
// append.
type Service struct {
	store      training.Store
	events     *events.Emitter
	thresholds Thresholds
	now        func() time.Time
}

func NewService(store training.Store, em *events.Emitter, th Thresholds) *Service {
	if th.Medium <= 0 || th.High <= th.Medium {
		th = DefaultThresholds
	}
	return &Service{store: store, events: em, thresholds: th, now: time.Now}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type StartRequest struct {
	UserID     string `json:"user_id"`
	CampaignID string `json:"campaign_id"`
	TemplateID string `json:"template_id"`
}

// View is a session as returned to callers, with its display tier.
type View struct {
	training.SimulationSession
	RiskTier Tier `json:"risk_tier"`
}

func (s *Service) view(ss training.SimulationSession) View {
	return View{SimulationSession: ss, RiskTier: s.thresholds.Tier(ss.VulnerabilityScore)}
}

func (s *Service) Start(ctx context.Context, req StartRequest) (View, error) {
	if req.UserID == "" {
		return View{}, apperr.Unauthorized("user id required")
	}
	if req.CampaignID == "" {
		return View{}, apperr.Validation("campaign_id", "required")
	}
	if req.TemplateID == "" {
		return View{}, apperr.Validation("template_id", "required")
	}
	now := s.now()
	ss, err := s.store.UpsertSimulationSession(ctx, training.SimulationSession{
		UserID:     req.UserID,
		CampaignID: req.CampaignID,
		TemplateID: req.TemplateID,
		Status:     training.SessionStarted,
		Actions:    []training.PhishingAction{},
		StartedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		return View{}, err
	}
	s.events.Emit(ctx, events.SessionStarted, ss.ID, map[string]any{
		"user_id": ss.UserID, "campaign_id": ss.CampaignID, "template_id": ss.TemplateID,
	})
	return s.view(ss), nil
}

// Track appends one action. Closed sessions reject further actions with a
// Conflict.
func (s *Service) Track(ctx context.Context, sessionID string, a training.PhishingAction) (View, error) {
	if sessionID == "" {
		return View{}, apperr.Validation("session_id", "required")
	}
	if !a.Kind.Valid() {
		return View{}, apperr.Validation("action_kind", "unknown action kind %q", a.Kind)
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = s.now()
	}
	ss, err := s.store.AppendSessionAction(ctx, sessionID, a, Score)
	if err != nil {
		return View{}, err
	}
	s.events.Emit(ctx, events.SessionActionAppended, ss.ID, map[string]any{
		"user_id": ss.UserID, "action_kind": string(a.Kind), "vulnerability_score": ss.VulnerabilityScore,
		"actions": len(ss.Actions),
	})
	return s.view(ss), nil
}

func (s *Service) Complete(ctx context.Context, sessionID string) (View, error) {
	return s.close(ctx, sessionID, training.SessionCompleted)
}

func (s *Service) Abandon(ctx context.Context, sessionID string) (View, error) {
	return s.close(ctx, sessionID, training.SessionAbandoned)
}

func (s *Service) close(ctx context.Context, sessionID string, status training.SessionStatus) (View, error) {
	ss, err := s.store.CloseSimulationSession(ctx, sessionID, status, s.now(), Score)
	if apperr.IsConflict(err) {
		if cur, gerr := s.store.GetSimulationSession(ctx, sessionID); gerr == nil {
			return View{}, apperr.Conflict(s.view(cur), "session %q already %s", cur.ID, cur.Status)
		}
	}
	if err != nil {
		return View{}, err
	}
	s.events.Emit(ctx, events.SessionClosed, ss.ID, map[string]any{
		"user_id": ss.UserID, "status": string(ss.Status), "vulnerability_score": ss.VulnerabilityScore,
		"risk_tier": string(s.thresholds.Tier(ss.VulnerabilityScore)),
	})
	return s.view(ss), nil
}

func (s *Service) Get(ctx context.Context, sessionID string) (View, error) {
	ss, err := s.store.GetSimulationSession(ctx, sessionID)
	if err != nil {
		return View{}, err
	}
	return s.view(ss), nil
}
