package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ArsPalazzz/memora-api-sub000/internal/infra/security"
)

// ErrorResponse matches handlers.ErrorResponse.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

func newErrorResponse(c *gin.Context, msg string) ErrorResponse {
	return ErrorResponse{Error: msg, TraceID: GetTraceID(c)}
}

// TokenVerifier validates bearer tokens.
type TokenVerifier interface {
	Verify(raw string) (*security.Claims, error)
}

// RequireAuth validates the bearer token and stores the user sub on the context.
func RequireAuth(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if verifier == nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, newErrorResponse(c, "authentication unavailable"))
			return
		}

		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, newErrorResponse(c, "missing authorization header"))
			return
		}

		scheme, token, found := strings.Cut(header, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "invalid authorization format: expected 'Bearer <token>'"))
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, newErrorResponse(c, "missing access token"))
			return
		}

		claims, err := verifier.Verify(token)
		if err != nil {
			switch {
			case errors.Is(err, security.ErrExpiredToken):
				c.AbortWithStatusJSON(http.StatusUnauthorized, newErrorResponse(c, "access token expired"))
			case errors.Is(err, security.ErrInvalidToken):
				c.AbortWithStatusJSON(http.StatusUnauthorized, newErrorResponse(c, "invalid access token"))
			default:
				c.AbortWithStatusJSON(http.StatusInternalServerError, newErrorResponse(c, "authentication failed"))
			}
			return
		}

		c.Set(UserSubKey, claims.Sub())
		c.Next()
	}
}
