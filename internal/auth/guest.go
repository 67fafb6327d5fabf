package auth

import (
	"encoding/json"
	"net/http"
	"time"

	authmw "github.com/mind-engage/mindengage-training/internal/auth/middleware"
)

const (
	guestCookie = "mt_guest_id"
	guestTTL    = 30 * 24 * time.Hour
)

// GuestLoginHandler issues a token for an anonymous learner. The guest id
// lives in a cookie so the same browser keeps its progress across visits.
func GuestLoginHandler(a *authmw.AuthService) http.HandlerFunc {
	type out struct {
		AccessToken string `json:"access_token"`
		UserID      string `json:"user_id"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		userID := ""
		if c, err := r.Cookie(guestCookie); err == nil && authmw.IsGuestSubject(c.Value) {
			userID = c.Value
		}
		if userID == "" {
			userID = authmw.NewGuestSubject()
		}

		tok, err := a.IssueJWT(userID)
		if err != nil {
			http.Error(w, "issue token", http.StatusInternalServerError)
			return
		}
		http.SetCookie(w, &http.Cookie{
			Name:     guestCookie,
			Value:    userID,
			Path:     "/",
			HttpOnly: true,
			Secure:   true,
			SameSite: http.SameSiteNoneMode,
			Expires:  time.Now().Add(guestTTL),
		})
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out{AccessToken: tok, UserID: userID})
	}
}
