package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mind-engage/mindengage-training/internal/apperr"
	auth "github.com/mind-engage/mindengage-training/internal/auth/middleware"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Detail  any    `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the apperr taxonomy onto status codes. Unknown errors are
// logged and reported as 500 without their text.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	e, ok := apperr.As(err)
	if !ok {
		slog.ErrorContext(r.Context(), "request failed", slog.String("path", r.URL.Path), slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: apperr.KindUnknown.String(), Message: "internal error"})
		return
	}
	status := http.StatusInternalServerError
	switch e.Kind {
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindValidation:
		status = http.StatusBadRequest
	case apperr.KindConflict:
		status = http.StatusConflict
	case apperr.KindUnauthorized:
		status = http.StatusUnauthorized
	}
	writeJSON(w, status, errorBody{Error: e.Kind.String(), Message: e.Msg, Field: e.Field, Detail: e.Detail})
}

// decodeJSON reads a JSON body into v; an empty body leaves v untouched.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return apperr.Validation("body", "bad json: %v", err)
	}
	return nil
}

// userID picks the explicit user id, falling back to the authenticated
// subject. Callers treat an empty result as Unauthorized.
func userID(r *http.Request, explicit string) string {
	if id := strings.TrimSpace(explicit); id != "" {
		return id
	}
	return auth.SubjectFromContext(r.Context())
}
