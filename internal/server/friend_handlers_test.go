package server

import (
	"fmt"
	"net/http"
	"testing"

	"alumnet/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFriendRequestLifecycle(t *testing.T) {
	s, app := newTestServer(t)
	users := seedUsers(t, s, 3)
	alice, bob := users[0], users[1]

	sendPath := fmt.Sprintf("/api/friends/requests/%d", bob.ID)
	status, body := doJSON(t, app, http.MethodPost, sendPath, alice.ID, nil)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "pending", body["status"])

	t.Run("duplicate request conflicts", func(t *testing.T) {
		status, body := doJSON(t, app, http.MethodPost, sendPath, alice.ID, nil)
		assert.Equal(t, http.StatusConflict, status)
		assert.Equal(t, "CONFLICT", body["code"])
	})

	t.Run("reverse direction also conflicts", func(t *testing.T) {
		path := fmt.Sprintf("/api/friends/requests/%d", alice.ID)
		status, _ := doJSON(t, app, http.MethodPost, path, bob.ID, nil)
		assert.Equal(t, http.StatusConflict, status)
	})

	t.Run("receiver sees pending request", func(t *testing.T) {
		status, body := doJSON(t, app, http.MethodGet, "/api/friends/requests", bob.ID, nil)
		require.Equal(t, http.StatusOK, status)
		requests := body["requests"].([]interface{})
		require.Len(t, requests, 1)
	})

	t.Run("sender sees sent request", func(t *testing.T) {
		status, body := doJSON(t, app, http.MethodGet, "/api/friends/requests/sent", alice.ID, nil)
		require.Equal(t, http.StatusOK, status)
		require.Len(t, body["requests"].([]interface{}), 1)
	})

	t.Run("only receiver can confirm", func(t *testing.T) {
		path := fmt.Sprintf("/api/friends/requests/%d/confirm", alice.ID)
		status, _ := doJSON(t, app, http.MethodPost, path, users[2].ID, nil)
		assert.Equal(t, http.StatusNotFound, status)
	})

	t.Run("confirm makes the pair friends", func(t *testing.T) {
		path := fmt.Sprintf("/api/friends/requests/%d/confirm", alice.ID)
		status, body := doJSON(t, app, http.MethodPost, path, bob.ID, nil)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, "accepted", body["status"])

		status, body = doJSON(t, app, http.MethodGet, "/api/friends/", alice.ID, nil)
		require.Equal(t, http.StatusOK, status)
		require.Len(t, body["friends"].([]interface{}), 1)

		statusPath := fmt.Sprintf("/api/friends/status/%d", bob.ID)
		status, body = doJSON(t, app, http.MethodGet, statusPath, alice.ID, nil)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, "friends", body["state"])
	})

	t.Run("unfriend removes the edge", func(t *testing.T) {
		path := fmt.Sprintf("/api/friends/%d", bob.ID)
		status, _ := doJSON(t, app, http.MethodDelete, path, alice.ID, nil)
		require.Equal(t, http.StatusNoContent, status)

		statusPath := fmt.Sprintf("/api/friends/status/%d", bob.ID)
		status, body := doJSON(t, app, http.MethodGet, statusPath, alice.ID, nil)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, "none", body["state"])
	})
}

func TestSendFriendRequestValidation(t *testing.T) {
	s, app := newTestServer(t)
	users := seedUsers(t, s, 2)
	alice := users[0]

	t.Run("self request rejected", func(t *testing.T) {
		path := fmt.Sprintf("/api/friends/requests/%d", alice.ID)
		status, body := doJSON(t, app, http.MethodPost, path, alice.ID, nil)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "VALIDATION_ERROR", body["code"])
	})

	t.Run("unknown receiver rejected", func(t *testing.T) {
		status, _ := doJSON(t, app, http.MethodPost, "/api/friends/requests/9999", alice.ID, nil)
		assert.Equal(t, http.StatusNotFound, status)
	})

	t.Run("non numeric id rejected", func(t *testing.T) {
		status, body := doJSON(t, app, http.MethodPost, "/api/friends/requests/abc", alice.ID, nil)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Contains(t, body["error"], "Invalid user ID")
	})
}

func TestCancelFriendRequest(t *testing.T) {
	s, app := newTestServer(t)
	users := seedUsers(t, s, 2)
	alice, bob := users[0], users[1]

	sendPath := fmt.Sprintf("/api/friends/requests/%d", bob.ID)
	status, _ := doJSON(t, app, http.MethodPost, sendPath, alice.ID, nil)
	require.Equal(t, http.StatusCreated, status)

	t.Run("receiver cannot cancel", func(t *testing.T) {
		path := fmt.Sprintf("/api/friends/requests/%d", alice.ID)
		status, _ := doJSON(t, app, http.MethodDelete, path, bob.ID, nil)
		assert.Equal(t, http.StatusNotFound, status)
	})

	t.Run("sender cancel frees the pair", func(t *testing.T) {
		status, _ := doJSON(t, app, http.MethodDelete, sendPath, alice.ID, nil)
		require.Equal(t, http.StatusNoContent, status)

		// The pair is re-offerable after cancel.
		status, _ = doJSON(t, app, http.MethodPost, sendPath, alice.ID, nil)
		assert.Equal(t, http.StatusCreated, status)
	})
}

func TestHideFriendRequest(t *testing.T) {
	s, app := newTestServer(t)
	users := seedUsers(t, s, 2)
	alice, bob := users[0], users[1]

	sendPath := fmt.Sprintf("/api/friends/requests/%d", bob.ID)
	status, _ := doJSON(t, app, http.MethodPost, sendPath, alice.ID, nil)
	require.Equal(t, http.StatusCreated, status)

	hidePath := fmt.Sprintf("/api/friends/requests/%d/hide", alice.ID)
	status, _ = doJSON(t, app, http.MethodPost, hidePath, bob.ID, nil)
	require.Equal(t, http.StatusNoContent, status)

	// Hidden requests drop out of the inbox but the edge persists, so the
	// sender still cannot re-request.
	status, body := doJSON(t, app, http.MethodGet, "/api/friends/requests", bob.ID, nil)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, body["requests"].([]interface{}), 0)

	status, _ = doJSON(t, app, http.MethodPost, sendPath, alice.ID, nil)
	assert.Equal(t, http.StatusConflict, status)

	// Hiding twice is idempotent.
	status, _ = doJSON(t, app, http.MethodPost, hidePath, bob.ID, nil)
	assert.Equal(t, http.StatusNoContent, status)
}

func TestFriendSuggestionsRanking(t *testing.T) {
	s, app := newTestServer(t)

	me := models.User{DisplayName: "me", FacultyCode: "ENG", CohortYear: 2018}
	require.NoError(t, s.db.Create(&me).Error)
	sameBoth := models.User{DisplayName: "both", FacultyCode: "ENG", CohortYear: 2018}
	sameFaculty := models.User{DisplayName: "faculty", FacultyCode: "ENG", CohortYear: 2011}
	sameCohort := models.User{DisplayName: "cohort", FacultyCode: "LAW", CohortYear: 2018}
	unrelated := models.User{DisplayName: "other", FacultyCode: "LAW", CohortYear: 2011}
	for _, u := range []*models.User{&sameBoth, &sameFaculty, &sameCohort, &unrelated} {
		require.NoError(t, s.db.Create(u).Error)
	}

	status, body := doJSON(t, app, http.MethodGet, "/api/friends/suggestions", me.ID, nil)
	require.Equal(t, http.StatusOK, status)

	suggestions := body["suggestions"].([]interface{})
	require.Len(t, suggestions, 4)
	first := suggestions[0].(map[string]interface{})
	assert.Equal(t, float64(sameBoth.ID), first["id"], "faculty+cohort match ranks first")
}
