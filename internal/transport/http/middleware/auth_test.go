package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/ArsPalazzz/memora-api-sub000/internal/infra/security"
)

type fakeVerifier struct {
	claims *security.Claims
	err    error
}

func (f fakeVerifier) Verify(string) (*security.Claims, error) {
	return f.claims, f.err
}

func TestRequireAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)

	valid := fakeVerifier{claims: &security.Claims{UserSub: "user-1"}}
	cases := []struct {
		name     string
		verifier TokenVerifier
		header   string
		status   int
	}{
		{name: "missing header", verifier: valid, header: "", status: http.StatusUnauthorized},
		{name: "wrong scheme", verifier: valid, header: "Basic abc", status: http.StatusUnauthorized},
		{name: "empty token", verifier: valid, header: "Bearer  ", status: http.StatusUnauthorized},
		{name: "expired", verifier: fakeVerifier{err: security.ErrExpiredToken}, header: "Bearer t", status: http.StatusUnauthorized},
		{name: "invalid", verifier: fakeVerifier{err: security.ErrInvalidToken}, header: "Bearer t", status: http.StatusUnauthorized},
		{name: "verifier failure", verifier: fakeVerifier{err: errors.New("boom")}, header: "Bearer t", status: http.StatusInternalServerError},
		{name: "no verifier", verifier: nil, header: "Bearer t", status: http.StatusServiceUnavailable},
		{name: "valid", verifier: valid, header: "bearer t", status: http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var gotSub string
			router := gin.New()
			router.GET("/", RequireAuth(tc.verifier), func(c *gin.Context) {
				gotSub, _ = GetAuthenticatedUserSub(c)
				c.Status(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
			if tc.status == http.StatusOK && gotSub != "user-1" {
				t.Fatalf("expected user sub on context, got %q", gotSub)
			}
		})
	}
}
