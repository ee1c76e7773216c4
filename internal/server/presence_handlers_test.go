package server

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPresence(t *testing.T) {
	s, app := newTestServer(t)
	users := seedUsers(t, s, 2)
	alice, bob := users[0], users[1]

	t.Run("unseen users read as offline", func(t *testing.T) {
		path := fmt.Sprintf("/api/presence/%d", bob.ID)
		status, body := doJSON(t, app, http.MethodGet, path, alice.ID, nil)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, "offline", body["status"])
		assert.Equal(t, float64(bob.ID), body["user_id"])
	})

	t.Run("connected users read as online", func(t *testing.T) {
		s.tracker.Connect(bob.ID, "conn-1")

		path := fmt.Sprintf("/api/presence/%d", bob.ID)
		status, body := doJSON(t, app, http.MethodGet, path, alice.ID, nil)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, "online", body["status"])
	})

	t.Run("manual status is visible", func(t *testing.T) {
		require.NoError(t, s.tracker.SetStatus(bob.ID, "conn-1", "busy"))

		path := fmt.Sprintf("/api/presence/%d", bob.ID)
		status, body := doJSON(t, app, http.MethodGet, path, alice.ID, nil)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, "busy", body["status"])
	})

	t.Run("non numeric id rejected", func(t *testing.T) {
		status, _ := doJSON(t, app, http.MethodGet, "/api/presence/abc", alice.ID, nil)
		assert.Equal(t, http.StatusBadRequest, status)
	})
}

func TestGetOnlineUsers(t *testing.T) {
	s, app := newTestServer(t)
	users := seedUsers(t, s, 3)
	alice := users[0]

	t.Run("empty when nobody is connected", func(t *testing.T) {
		status, body := doJSON(t, app, http.MethodGet, "/api/presence/online", alice.ID, nil)
		require.Equal(t, http.StatusOK, status)
		require.Len(t, body["user_ids"].([]interface{}), 0)
	})

	t.Run("lists live users including away and busy", func(t *testing.T) {
		s.tracker.Connect(users[1].ID, "conn-b")
		s.tracker.Connect(users[2].ID, "conn-c")
		require.NoError(t, s.tracker.SetStatus(users[2].ID, "conn-c", "away"))

		status, body := doJSON(t, app, http.MethodGet, "/api/presence/online", alice.ID, nil)
		require.Equal(t, http.StatusOK, status)
		ids := body["user_ids"].([]interface{})
		assert.Len(t, ids, 2)
	})

	t.Run("disconnect removes the user", func(t *testing.T) {
		s.tracker.Disconnect(users[1].ID, "conn-b")

		status, body := doJSON(t, app, http.MethodGet, "/api/presence/online", alice.ID, nil)
		require.Equal(t, http.StatusOK, status)
		ids := body["user_ids"].([]interface{})
		require.Len(t, ids, 1)
		assert.Equal(t, float64(users[2].ID), ids[0])
	})
}
