package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"alumnet/internal/config"
	"alumnet/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func testServerConfig() *config.Config {
	return &config.Config{
		JWTSecret:        "test-secret",
		FeatureFlags:     "moderation=on",
		BlockedWords:     "spamword",
		Env:              "test",
		PresenceTimeout:  90,
		PresenceSweep:    60,
		MessagePageSize:  50,
		SuggestionCount:  20,
		SuggestionCacheS: 300,
		DigitalIDTTLSecs: 300,
		AllowedOrigins:   "http://localhost:5173",
	}
}

// newTestServer builds a Server against sqlite and miniredis and mounts the
// full route table on a fresh app.
func newTestServer(t *testing.T) (*Server, *fiber.App) {
	t.Helper()
	t.Setenv("APP_ENV", "test")

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Friendship{},
		&models.UserBlock{},
		&models.Chat{},
		&models.Message{},
	))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	s, err := NewServerWithDeps(testServerConfig(), db, rdb)
	require.NoError(t, err)

	app := fiber.New()
	s.SetupRoutes(app)
	return s, app
}

func seedUsers(t *testing.T, s *Server, n int) []models.User {
	t.Helper()
	users := make([]models.User, n)
	for i := range users {
		users[i] = models.User{
			DisplayName: "user " + strconv.Itoa(i+1),
			FacultyCode: "ENG",
			CohortYear:  2018,
		}
		require.NoError(t, s.db.Create(&users[i]).Error)
	}
	return users
}

func bearerToken(t *testing.T, userID uint) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": strconv.FormatUint(uint64(userID), 10),
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return "Bearer " + signed
}

// doJSON performs an authenticated request and decodes the JSON response.
func doJSON(t *testing.T, app *fiber.App, method, path string, userID uint, body io.Reader) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Authorization", bearerToken(t, userID))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var decoded map[string]interface{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &decoded)
	}
	return resp.StatusCode, decoded
}

func TestAuthRequired_MissingCredentials(t *testing.T) {
	_, app := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/friends/", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuthRequired_BadToken(t *testing.T) {
	_, app := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/friends/", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHealthEndpoints(t *testing.T) {
	_, app := newTestServer(t)

	live := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	resp, err := app.Test(live, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	ready := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	resp, err = app.Test(ready, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestGetFeatureFlags(t *testing.T) {
	s, app := newTestServer(t)
	users := seedUsers(t, s, 1)

	status, body := doJSON(t, app, http.MethodGet, "/api/feature-flags", users[0].ID, nil)
	require.Equal(t, http.StatusOK, status)
	flags, ok := body["flags"].(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, true, flags["moderation"])
}
