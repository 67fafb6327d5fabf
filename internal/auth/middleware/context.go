package auth

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// GuestPrefix starts every subject minted for an anonymous learner.
const GuestPrefix = "guest|"

type subjectKey struct{}

// WithSubject attaches the authenticated learner id to ctx.
func WithSubject(ctx context.Context, sub string) context.Context {
	return context.WithValue(ctx, subjectKey{}, sub)
}

// SubjectFromContext returns the learner id set by the JWT middleware, or ""
// when the request is anonymous.
func SubjectFromContext(ctx context.Context) string {
	sub, _ := ctx.Value(subjectKey{}).(string)
	return sub
}

// NewGuestSubject mints a fresh anonymous learner id.
func NewGuestSubject() string { return GuestPrefix + uuid.NewString() }

// IsGuestSubject reports whether sub is a well-formed guest id.
func IsGuestSubject(sub string) bool {
	rest, ok := strings.CutPrefix(sub, GuestPrefix)
	if !ok {
		return false
	}
	return uuid.Validate(rest) == nil
}

// IsGuest reports whether the request on ctx belongs to a guest.
func IsGuest(ctx context.Context) bool { return IsGuestSubject(SubjectFromContext(ctx)) }
