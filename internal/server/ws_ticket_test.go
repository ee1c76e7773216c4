package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"alumnet/internal/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTicketTestServer(t *testing.T) (*Server, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return &Server{
		config:          &config.Config{JWTSecret: "test-secret"},
		redis:           rdb,
		consumedTickets: make(map[string]consumedTicketEntry),
	}, rdb
}

func TestAuthRequired_WSTicket(t *testing.T) {
	s, rdb := newTicketTestServer(t)
	ctx := context.Background()

	app := fiber.New()
	echoLocals := func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"userID":   c.Locals("userID"),
			"wsTicket": c.Locals("wsTicket"),
		})
	}
	app.Get("/api/ws/test", s.AuthRequired(), echoLocals)
	app.Get("/api/other", s.AuthRequired(), echoLocals)

	t.Run("ticket is consumed atomically and cached in-process", func(t *testing.T) {
		ticket := "ws-ticket-1"
		key := fmt.Sprintf("ws_ticket:%s", ticket)
		require.NoError(t, rdb.Set(ctx, key, "123", time.Minute).Err())

		req := httptest.NewRequest(http.MethodGet, "/api/ws/test?ticket="+ticket, nil)
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		// GETDEL means the key is already gone after one use.
		exists, err := rdb.Exists(ctx, key).Result()
		require.NoError(t, err)
		assert.Equal(t, int64(0), exists)

		s.consumedTicketsMu.Lock()
		_, cached := s.consumedTickets[ticket]
		s.consumedTicketsMu.Unlock()
		assert.True(t, cached, "consumed ticket stays valid in-process for the handshake")

		var body map[string]interface{}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, float64(123), body["userID"])
		assert.Equal(t, ticket, body["wsTicket"])
		_ = resp.Body.Close()
	})

	t.Run("second middleware pass succeeds via the cache", func(t *testing.T) {
		ticket := "ws-ticket-2"
		require.NoError(t, rdb.Set(ctx, fmt.Sprintf("ws_ticket:%s", ticket), "789", time.Minute).Err())

		// The websocket upgrade runs the chain more than once.
		for pass := 0; pass < 2; pass++ {
			req := httptest.NewRequest(http.MethodGet, "/api/ws/test?ticket="+ticket, nil)
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, http.StatusOK, resp.StatusCode, "pass %d", pass+1)
			if pass == 1 {
				var body map[string]interface{}
				_ = json.NewDecoder(resp.Body).Decode(&body)
				assert.Equal(t, float64(789), body["userID"])
			}
			_ = resp.Body.Close()
		}
	})

	t.Run("non ws path also accepts and consumes a ticket", func(t *testing.T) {
		ticket := "other-ticket-1"
		key := fmt.Sprintf("ws_ticket:%s", ticket)
		require.NoError(t, rdb.Set(ctx, key, "456", time.Minute).Err())

		req := httptest.NewRequest(http.MethodGet, "/api/other?ticket="+ticket, nil)
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		_ = resp.Body.Close()

		exists, err := rdb.Exists(ctx, key).Result()
		require.NoError(t, err)
		assert.Equal(t, int64(0), exists)
	})

	t.Run("invalid ticket on a ws path is unauthorized", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/ws/test?ticket=bogus", nil)
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		_ = resp.Body.Close()
	})
}

func TestIssueWSTicket(t *testing.T) {
	s, rdb := newTicketTestServer(t)

	app := fiber.New()
	app.Post("/api/ws/ticket", func(c *fiber.Ctx) error {
		c.Locals("userID", uint(42))
		return s.IssueWSTicket(c)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/ws/ticket", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	ticket, ok := body["ticket"].(string)
	require.True(t, ok)
	require.NotEmpty(t, ticket)

	// The minted ticket is redeemable exactly once.
	val, err := rdb.GetDel(context.Background(), "ws_ticket:"+ticket).Result()
	require.NoError(t, err)
	assert.Equal(t, "42", val)
}

func TestServer_ConsumeWSTicket(t *testing.T) {
	s := &Server{consumedTickets: make(map[string]consumedTicketEntry)}
	ctx := context.Background()

	t.Run("removes the ticket from the in-process cache", func(t *testing.T) {
		s.consumedTicketsMu.Lock()
		s.consumedTickets["spent"] = consumedTicketEntry{userID: 123, consumeAt: time.Now()}
		s.consumedTicketsMu.Unlock()

		s.consumeWSTicket(ctx, "spent")

		s.consumedTicketsMu.Lock()
		_, exists := s.consumedTickets["spent"]
		s.consumedTicketsMu.Unlock()
		assert.False(t, exists)
	})

	t.Run("nil and empty tickets are a noop", func(_ *testing.T) {
		s.consumeWSTicket(ctx, nil)
		s.consumeWSTicket(ctx, "")
	})
}
