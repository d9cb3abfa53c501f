package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/upb/legal-rag/utils"
)

// AuthMiddleware extracts the caller identity from the bearer token.
// Signature verification happens at the edge gateway before requests
// reach this service; here the token is only decoded for its subject.
type AuthMiddleware struct {
	parser *jwt.Parser
	logger *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		parser: jwt.NewParser(),
		logger: logger,
	}
}

// RequireSubject is a middleware that requires a bearer token with a
// non-empty sub claim and stores the subject in the request context.
func (m *AuthMiddleware) RequireSubject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		token := extractBearerToken(r)
		if token == "" {
			m.logger.Warn("missing bearer token",
				zap.String("request_id", requestID))
			_ = utils.WriteUnauthorized(w, "Missing or invalid authorization")
			return
		}

		subject, err := m.extractSubject(token)
		if err != nil {
			m.logger.Warn("token parsing failed",
				zap.String("request_id", requestID),
				zap.Error(err))
			_ = utils.WriteUnauthorized(w, "Invalid token")
			return
		}

		ctx = WithSubject(ctx, subject)

		m.logger.Debug("subject extracted",
			zap.String("request_id", requestID),
			zap.String("sub", subject))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractSubject decodes the token without verifying its signature and
// returns the sub claim.
func (m *AuthMiddleware) extractSubject(token string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := m.parser.ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}

	subject, err := claims.GetSubject()
	if err != nil {
		return "", fmt.Errorf("failed to read sub claim: %w", err)
	}
	if subject == "" {
		return "", fmt.Errorf("token has no sub claim")
	}

	return subject, nil
}

// extractBearerToken extracts the Bearer token from the Authorization header
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
