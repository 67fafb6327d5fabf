package http

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-training/internal/phishing"
	"github.com/mind-engage/mindengage-training/internal/training"
)

// POST /api/simulation/start  {user_id, campaign_id, template_id}
func StartSimulationHandler(svc *phishing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req phishing.StartRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		req.UserID = userID(r, req.UserID)
		v, err := svc.Start(r.Context(), req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"session_id": v.ID, "status": v.Status})
	}
}

// POST /api/simulation/{sessionID}/track  {action_kind, ip_address?, user_agent?, extra?}
// The client IP and user agent of the request fill in missing fields.
func TrackSimulationHandler(svc *phishing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ActionKind string            `json:"action_kind"`
			IPAddress  string            `json:"ip_address"`
			UserAgent  string            `json:"user_agent"`
			Extra      map[string]string `json:"extra"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		a := training.PhishingAction{
			Kind:      training.ActionKind(strings.TrimSpace(req.ActionKind)),
			Timestamp: time.Now(),
			IPAddress: req.IPAddress,
			UserAgent: req.UserAgent,
			Extra:     req.Extra,
		}
		if a.IPAddress == "" {
			a.IPAddress = clientIP(r)
		}
		if a.UserAgent == "" {
			a.UserAgent = r.UserAgent()
		}
		v, err := svc.Track(r.Context(), chi.URLParam(r, "sessionID"), a)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"session_id":          v.ID,
			"vulnerability_score": v.VulnerabilityScore,
			"risk_tier":           v.RiskTier,
			"status":              v.Status,
		})
	}
}

// POST /api/simulation/{sessionID}/complete
func CompleteSimulationHandler(svc *phishing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := svc.Complete(r.Context(), chi.URLParam(r, "sessionID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

// POST /api/simulation/{sessionID}/abandon
func AbandonSimulationHandler(svc *phishing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := svc.Abandon(r.Context(), chi.URLParam(r, "sessionID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

// GET /api/simulation/{sessionID}
func GetSimulationHandler(svc *phishing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := svc.Get(r.Context(), chi.URLParam(r, "sessionID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

// clientIP strips the port from RemoteAddr; chi's RealIP middleware has
// already applied X-Forwarded-For / X-Real-IP.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
