package server

import (
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDigitalIDRoundtrip(t *testing.T) {
	s, app := newTestServer(t)
	users := seedUsers(t, s, 1)
	alice := users[0]

	status, body := doJSON(t, app, http.MethodPost, "/api/digital-id", alice.ID, nil)
	require.Equal(t, http.StatusOK, status)
	token, ok := body["token"].(string)
	require.True(t, ok)
	require.NotEmpty(t, token)
	require.NotEmpty(t, body["expires_at"])

	// Verification is unauthenticated: the scanner only holds the token.
	payload := fmt.Sprintf(`{"token":%q}`, token)
	req := strings.NewReader(payload)
	status, body = doJSON(t, app, http.MethodPost, "/api/digital-id/verify", 0, req)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["valid"])
	user := body["user"].(map[string]interface{})
	assert.Equal(t, float64(alice.ID), user["id"])
}

func TestVerifyDigitalID_Invalid(t *testing.T) {
	_, app := newTestServer(t)

	t.Run("garbage token unauthorized", func(t *testing.T) {
		status, body := doJSON(t, app, http.MethodPost, "/api/digital-id/verify", 0,
			strings.NewReader(`{"token":"not-a-token"}`))
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, "UNAUTHORIZED", body["code"])
	})

	t.Run("missing token rejected", func(t *testing.T) {
		status, _ := doJSON(t, app, http.MethodPost, "/api/digital-id/verify", 0,
			strings.NewReader(`{}`))
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("session token is not a digital id", func(t *testing.T) {
		session := strings.TrimPrefix(bearerToken(t, 1), "Bearer ")
		payload := fmt.Sprintf(`{"token":%q}`, session)
		status, _ := doJSON(t, app, http.MethodPost, "/api/digital-id/verify", 0,
			strings.NewReader(payload))
		assert.Equal(t, http.StatusUnauthorized, status)
	})
}
