package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"kit-sync/internal/auth"
)

func TestRequireAuth_SetsClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := auth.TokenConfig{Secret: "secret", Expiry: time.Hour, Issuer: "test"}
	tok, err := auth.CreateToken(1, "Alice", cfg)
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}

	r := gin.New()
	r.GET("/", RequireAuth(cfg), func(c *gin.Context) {
		claims, ok := ClaimsFromContext(c)
		if !ok || claims.UserID != 1 || claims.Name != "Alice" {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestRequireAuth_Rejects(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := auth.TokenConfig{Secret: "secret", Expiry: time.Hour, Issuer: "test"}

	r := gin.New()
	r.GET("/", RequireAuth(cfg), func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, header := range []string{"", "Bearer", "Basic abc", "Bearer not-a-jwt"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: expected 401, got %d", header, w.Code)
		}
	}
}
