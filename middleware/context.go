package middleware

import (
	"context"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// Context key type to avoid collisions
type contextKey string

const (
	// SubjectKey is the context key for the authenticated subject
	SubjectKey contextKey = "subject"
)

// GetSubjectFromContext retrieves the authenticated subject from context
func GetSubjectFromContext(ctx context.Context) string {
	if val := ctx.Value(SubjectKey); val != nil {
		if subject, ok := val.(string); ok {
			return subject
		}
	}
	return ""
}

// WithSubject adds the authenticated subject to the context
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, SubjectKey, subject)
}

// GetRequestIDFromContext retrieves the chi request ID from context
func GetRequestIDFromContext(ctx context.Context) string {
	return chimiddleware.GetReqID(ctx)
}
