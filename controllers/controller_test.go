package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"civicbounty-be/logger"
	"civicbounty-be/models"
	"civicbounty-be/services"
	"civicbounty-be/store"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRespondError(t *testing.T) {
	ctl := &Controller{Log: logger.Discard()}

	tests := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{
			name:   "validation",
			err:    &services.ValidationError{Field: "image", Message: "Please upload an image of the issue."},
			status: http.StatusBadRequest,
			body:   `{"error":"Please upload an image of the issue.","field":"image"}`,
		},
		{
			name:   "authorization",
			err:    &services.AuthorizationError{Message: "nope", Redirect: "/citizen/dashboard"},
			status: http.StatusForbidden,
			body:   `{"error":"nope","redirect":"/citizen/dashboard"}`,
		},
		{
			name:   "credentials",
			err:    services.ErrInvalidCredentials,
			status: http.StatusUnauthorized,
			body:   `{"error":"Invalid username or password."}`,
		},
		{
			name:   "wrapped not found",
			err:    fmt.Errorf("get issue: %w", store.ErrNotFound),
			status: http.StatusNotFound,
			body:   `{"error":"Not found"}`,
		},
		{
			name:   "invalid transition",
			err:    fmt.Errorf("reward already paid: %w", services.ErrInvalidTransition),
			status: http.StatusConflict,
			body:   `{"error":"reward already paid: invalid status transition"}`,
		},
		{
			name:   "conflict",
			err:    store.ErrConflict,
			status: http.StatusConflict,
		},
		{
			name:   "unexpected",
			err:    errors.New("connection refused"),
			status: http.StatusInternalServerError,
			body:   `{"error":"Something went wrong"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			ctl.respondError(c, tt.err)

			assert.Equal(t, tt.status, w.Code)
			if tt.body != "" {
				assert.JSONEq(t, tt.body, w.Body.String())
			}
		})
	}
}

func TestObjectIDParam(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Params = gin.Params{{Key: "id", Value: "not-hex"}}

	_, ok := objectIDParam(c, "id", "issue")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"Invalid issue ID"}`, w.Body.String())
}

func TestChecked(t *testing.T) {
	for _, raw := range []string{"on", "ON", "true", "1", "yes", " on "} {
		assert.True(t, checked(raw), raw)
	}
	for _, raw := range []string{"", "off", "false", "0", "no"} {
		assert.False(t, checked(raw), raw)
	}
}

func TestResolveMessage(t *testing.T) {
	reward := &models.MonetaryReward{Amount: decimal.NewFromInt(500)}
	tests := []struct {
		name   string
		result services.ResolveResult
		want   string
	}{
		{"points and bounty", services.ResolveResult{PointsAwarded: 10, Reward: reward}, "Issue resolved! You earned 10 points and ₹500.00 bounty reward!"},
		{"points only", services.ResolveResult{PointsAwarded: 10}, "Issue resolved! You earned 10 points."},
		{"bounty only", services.ResolveResult{Reward: reward}, "Issue resolved! You earned ₹500.00 bounty reward!"},
		{"already credited", services.ResolveResult{}, "Issue resolved!"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolveMessage(&tt.result))
		})
	}
}

func TestSetAuthCookieSameSite(t *testing.T) {
	tests := []struct {
		name       string
		production bool
		sameSite   http.SameSite
	}{
		{"development", false, http.SameSiteLaxMode},
		{"production", true, http.SameSiteNoneMode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctl := &Controller{
				Auth: AuthConfig{Secret: "test-secret", TokenTTL: time.Hour, Domain: "localhost", Production: tt.production},
				Log:  logger.Discard(),
			}
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)

			_, ok := ctl.setAuthCookie(c, models.NewUser("asha", "asha@example.com", "hash", models.RoleCitizen, time.Now()))
			require.True(t, ok)

			cookies := w.Result().Cookies()
			require.Len(t, cookies, 1)
			assert.Equal(t, tt.sameSite, cookies[0].SameSite)
			assert.Equal(t, tt.production, cookies[0].Secure)
		})
	}
}
