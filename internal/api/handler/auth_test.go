//go:build !integration && !e2e
// +build !integration,!e2e

package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmrelay/llmrelay/internal/config"
	"github.com/llmrelay/llmrelay/internal/repository"
	"github.com/llmrelay/llmrelay/internal/service"
	"github.com/llmrelay/llmrelay/tests/testutil"
)

func newAuthHandler(t *testing.T) (*AuthHandler, *service.AuthService) {
	t.Helper()
	db := testutil.NewTestDB(t)
	logger := testutil.NewTestLogger()
	auth := service.NewAuthService(repository.NewAPIKeyRepository(db), config.AuthConfig{
		AdminUsername: "admin",
		AdminPassword: "hunter2",
		JWTSecret:     "test-signing-secret",
		JWTTTL:        time.Hour,
	}, logger)
	return NewAuthHandler(auth, logger), auth
}

func TestLoginSuccess(t *testing.T) {
	handler, auth := newAuthHandler(t)

	c, w := testutil.NewTestContextWithRequest(http.MethodPost, "/api/auth/login",
		map[string]string{"username": "admin", "password": "hunter2"})
	handler.Login(c)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "bearer", resp.TokenType)

	// The issued token passes verification.
	subject, err := auth.VerifyAdminToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "admin", subject)
}

func TestLoginAcceptsFormBody(t *testing.T) {
	handler, _ := newAuthHandler(t)

	form := url.Values{"username": {"admin"}, "password": {"hunter2"}}
	c, w := testutil.NewTestContext()
	c.Request = httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(form.Encode()))
	c.Request.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	handler.Login(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "access_token")
}

func TestLoginBadCredentials(t *testing.T) {
	handler, _ := newAuthHandler(t)

	c, w := testutil.NewTestContextWithRequest(http.MethodPost, "/api/auth/login",
		map[string]string{"username": "admin", "password": "wrong"})
	handler.Login(c)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Incorrect username or password")
	assert.Contains(t, w.Body.String(), "authentication_error")
}

func TestLoginMissingFields(t *testing.T) {
	handler, _ := newAuthHandler(t)

	c, w := testutil.NewTestContextWithRequest(http.MethodPost, "/api/auth/login",
		map[string]string{"username": "admin"})
	handler.Login(c)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "validation_error")
}
