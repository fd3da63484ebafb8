package handler_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/campus-clubs/internal/config"
	"github.com/sakif/campus-clubs/internal/model"
	"github.com/sakif/campus-clubs/internal/server"
)

// =========================================================================
// HARNESS
// =========================================================================

// api drives the real router over an in-memory database.
type api struct {
	t *testing.T
	h http.Handler
}

func testConfig() config.Config {
	return config.Config{
		DBPath:         ":memory:",
		JWTSecret:      "test-secret-at-least-16-chars!!",
		TokenTTL:       time.Hour,
		BcryptCost:     4, // bcrypt minimum, keeps tests fast
		AllowedOrigins: []string{"http://localhost:3000"},
		RequestTimeout: 5 * time.Second,
		LogLevel:       slog.LevelError,
	}
}

func newAPI(t *testing.T, cfg config.Config) *api {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, err := server.New(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })
	return &api{t: t, h: srv.Handler()}
}

// do sends a request. body is JSON-encoded unless it is already a string.
func (a *api) do(method, path, token string, body any) *httptest.ResponseRecorder {
	a.t.Helper()

	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(a.t, err)
		r = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "192.0.2.10:40000"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), "body: %s", rec.Body.String())
	return v
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field"`
}

type loginBody struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	UserID    string    `json:"userId"`
}

// signUp registers and logs in, returning (userID, token).
func (a *api) signUp(institutionID string) (string, string) {
	a.t.Helper()
	creds := map[string]string{"institutionId": institutionID, "password": "pw-" + institutionID, "name": institutionID}

	rec := a.do(http.MethodPost, "/accounts/register", "", creds)
	require.Equal(a.t, http.StatusOK, rec.Code, rec.Body.String())

	rec = a.do(http.MethodPost, "/accounts/login", "", creds)
	require.Equal(a.t, http.StatusOK, rec.Code, rec.Body.String())
	login := decode[loginBody](a.t, rec)
	return login.UserID, login.Token
}

func (a *api) createClub(token, name, categories string) model.Club {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/clubs", token, map[string]string{"name": name, "categories": categories})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[model.Club](a.t, rec)
}

// =========================================================================
// SCENARIO A: registration and login
// =========================================================================

func TestScenario_RegisterAndLogin(t *testing.T) {
	a := newAPI(t, testConfig())

	rec := a.do(http.MethodPost, "/accounts/register", "", map[string]string{"institutionId": "alice", "password": "pw1"})
	require.Equal(t, http.StatusOK, rec.Code)
	user := decode[map[string]any](t, rec)
	assert.Equal(t, "alice", user["institutionId"])
	assert.NotContains(t, user, "passwordHash")
	assert.NotContains(t, rec.Body.String(), "pw1")

	rec = a.do(http.MethodPost, "/accounts/register", "", map[string]string{"institutionId": "alice", "password": "pw2"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "conflict", decode[errorBody](t, rec).Error)

	rec = a.do(http.MethodPost, "/accounts/login", "", map[string]string{"institutionId": "alice", "password": "pw1"})
	require.Equal(t, http.StatusOK, rec.Code)
	login := decode[loginBody](t, rec)
	assert.NotEmpty(t, login.Token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), login.ExpiresAt, time.Minute)

	wrong := a.do(http.MethodPost, "/accounts/login", "", map[string]string{"institutionId": "alice", "password": "wrong"})
	unknown := a.do(http.MethodPost, "/accounts/login", "", map[string]string{"institutionId": "mallory", "password": "pw1"})
	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.Equal(t, wrong.Body.String(), unknown.Body.String(), "login must not reveal which part was wrong")

	// The token works on an authenticated route.
	rec = a.do(http.MethodGet, "/accounts/me", login.Token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

// =========================================================================
// SCENARIO B: join and promotion rights
// =========================================================================

func TestScenario_JoinAndPromote(t *testing.T) {
	a := newAPI(t, testConfig())
	aliceID, alice := a.signUp("alice")
	bobID, bob := a.signUp("bob")

	club := a.createClub(alice, "Chess", "Games")
	require.Len(t, club.Members, 1)
	assert.Equal(t, aliceID, club.Members[0].UserID)
	assert.Equal(t, model.RoleAdmin, club.Members[0].Role)

	rec := a.do(http.MethodPost, fmt.Sprintf("/clubs/%d/join", club.ID), bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	joined := decode[model.Club](t, rec)
	require.Len(t, joined.Members, 2)
	assert.Equal(t, model.RoleMember, joined.Members[1].Role)

	rec = a.do(http.MethodPost, fmt.Sprintf("/clubs/%d/join", club.ID), bob, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "joining twice")

	// bob is not an Admin, so bob cannot promote anyone, bob included.
	rec = a.do(http.MethodPut, fmt.Sprintf("/clubs/%d/promote/%s", club.ID, bobID), bob, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = a.do(http.MethodPut, fmt.Sprintf("/clubs/%d/promote/%s", club.ID, aliceID), bob, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(http.MethodPut, fmt.Sprintf("/clubs/%d/promote/%s", club.ID, bobID), alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	roster := decode[[]model.Member](t, rec)
	for _, m := range roster {
		assert.Equal(t, model.RoleAdmin, m.Role)
	}

	rec = a.do(http.MethodPut, fmt.Sprintf("/clubs/%d/promote/%s", club.ID, bobID), alice, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "member is already an admin", decode[errorBody](t, rec).Message)
}

// =========================================================================
// SCENARIO C: event visibility
// =========================================================================

func TestScenario_EventVisibility(t *testing.T) {
	a := newAPI(t, testConfig())
	_, alice := a.signUp("alice")
	_, bob := a.signUp("bob")
	_, carol := a.signUp("carol")

	club := a.createClub(alice, "Chess", "Games")
	rec := a.do(http.MethodPost, fmt.Sprintf("/clubs/%d/join", club.ID), bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	nextWeek := time.Now().Add(7 * 24 * time.Hour).UTC().Truncate(time.Second)
	newEvent := map[string]any{
		"clubId":   club.ID,
		"title":    "Simultaneous exhibition",
		"location": "Library",
		"dateTime": nextWeek,
	}

	rec = a.do(http.MethodPost, "/events", alice, newEvent)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	event := decode[model.Event](t, rec)
	assert.Equal(t, fmt.Sprintf("/events/%d", event.ID), rec.Header().Get("Location"))
	assert.Equal(t, "Chess", event.ClubName)
	assert.True(t, nextWeek.Equal(event.StartsAt))

	rec = a.do(http.MethodGet, fmt.Sprintf("/events/%d", event.ID), bob, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(http.MethodGet, fmt.Sprintf("/events/%d", event.ID), carol, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Creating events: non-member, plain member, unknown club.
	rec = a.do(http.MethodPost, "/events", carol, newEvent)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "not_member", decode[errorBody](t, rec).Error)

	rec = a.do(http.MethodPost, "/events", bob, newEvent)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	newEvent["clubId"] = 999
	rec = a.do(http.MethodPost, "/events", alice, newEvent)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Listing and searching are scoped to memberships.
	rec = a.do(http.MethodGet, "/events", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.Event](t, rec), 1)

	rec = a.do(http.MethodGet, "/events", carol, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = a.do(http.MethodGet, "/events/search?query=exhibition", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.Event](t, rec), 1)

	rec = a.do(http.MethodGet, "/events/search?query=", bob, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "query", decode[errorBody](t, rec).Field)

	rec = a.do(http.MethodGet, "/events/999", bob, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateEvent_DateTimeFormats(t *testing.T) {
	a := newAPI(t, testConfig())
	_, alice := a.signUp("alice")
	club := a.createClub(alice, "Hiking", "Outdoors")
	want := time.Date(2026, 11, 1, 18, 0, 0, 0, time.UTC)

	for _, dt := range []string{"2026-11-01T18:00", "2026-11-01T18:00:00", "2026-11-01T18:00:00Z"} {
		t.Run(dt, func(t *testing.T) {
			rec := a.do(http.MethodPost, "/events", alice, map[string]any{
				"clubId": club.ID, "title": "Ridge walk", "dateTime": dt,
			})
			require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
			assert.True(t, want.Equal(decode[model.Event](t, rec).StartsAt))
		})
	}

	rec := a.do(http.MethodPost, "/events", alice, map[string]any{
		"clubId": club.ID, "title": "Ridge walk", "dateTime": "next friday",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[errorBody](t, rec)
	assert.Equal(t, "validation_error", body.Error)
	assert.Equal(t, "dateTime", body.Field)

	rec = a.do(http.MethodPost, "/events", alice, map[string]any{
		"clubId": -5, "title": "Ridge walk", "dateTime": "2026-11-01T18:00",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "clubId", decode[errorBody](t, rec).Field)
}

// =========================================================================
// SCENARIO D: recommendations
// =========================================================================

func TestScenario_Recommendations(t *testing.T) {
	a := newAPI(t, testConfig())
	_, alice := a.signUp("alice")
	_, bob := a.signUp("bob")

	rec := a.do(http.MethodGet, "/recommendations", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String(), "no interests yet")

	rec = a.do(http.MethodPut, "/accounts/me", alice, map[string]any{"name": "Alice", "interests": []string{"Chess"}})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = a.do(http.MethodGet, "/recommendations", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String(), "no club matches yet")

	a.createClub(bob, "Chess", "Chess")
	a.createClub(bob, "Board games", "Chess, Go")

	rec = a.do(http.MethodGet, "/recommendations", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	clubs := decode[[]model.Club](t, rec)
	require.Len(t, clubs, 1, "categories must match exactly")
	assert.Equal(t, "Chess", clubs[0].Name)

	rec = a.do(http.MethodGet, "/accounts/me", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	profile := decode[map[string]any](t, rec)
	assert.Equal(t, "Alice", profile["name"])
	assert.Equal(t, []any{"Chess"}, profile["interests"])
}

// =========================================================================
// CLUB DIRECTORY
// =========================================================================

func TestClubDirectory(t *testing.T) {
	a := newAPI(t, testConfig())
	_, alice := a.signUp("alice")
	for _, name := range []string{"Chess", "Jazz", "Rowing"} {
		a.createClub(alice, name, "")
	}

	t.Run("list is public", func(t *testing.T) {
		rec := a.do(http.MethodGet, "/clubs", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decode[[]model.Club](t, rec), 3)
	})

	t.Run("paging", func(t *testing.T) {
		rec := a.do(http.MethodGet, "/clubs?limit=2&offset=1", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		clubs := decode[[]model.Club](t, rec)
		require.Len(t, clubs, 2)
		assert.Equal(t, "Jazz", clubs[0].Name)
	})

	t.Run("bad paging", func(t *testing.T) {
		rec := a.do(http.MethodGet, "/clubs?limit=-1", "", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("search", func(t *testing.T) {
		rec := a.do(http.MethodGet, "/clubs/search?query=jaz", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		clubs := decode[[]model.Club](t, rec)
		require.Len(t, clubs, 1)
		assert.Equal(t, "Jazz", clubs[0].Name)
	})

	t.Run("get", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/clubs/1", "", nil).Code)
		assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, "/clubs/99", "", nil).Code)
		assert.Equal(t, http.StatusBadRequest, a.do(http.MethodGet, "/clubs/abc", "", nil).Code)
	})

	t.Run("create needs a token", func(t *testing.T) {
		rec := a.do(http.MethodPost, "/clubs", "", map[string]string{"name": "Anonymous"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
	})

	t.Run("create validates", func(t *testing.T) {
		rec := a.do(http.MethodPost, "/clubs", alice, map[string]string{"name": "  "})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "name", decode[errorBody](t, rec).Field)

		rec = a.do(http.MethodPost, "/clubs", alice, `{"name":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "body", decode[errorBody](t, rec).Field)
	})

	t.Run("create sets Location", func(t *testing.T) {
		rec := a.do(http.MethodPost, "/clubs", alice, map[string]string{"name": "Fencing"})
		require.Equal(t, http.StatusCreated, rec.Code)
		club := decode[model.Club](t, rec)
		assert.Equal(t, fmt.Sprintf("/clubs/%d", club.ID), rec.Header().Get("Location"))
	})

	t.Run("members need membership", func(t *testing.T) {
		_, outsider := a.signUp("outsider")
		assert.Equal(t, http.StatusForbidden, a.do(http.MethodGet, "/clubs/1/members", outsider, nil).Code)
		assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/clubs/1/members", alice, nil).Code)
		assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, "/clubs/99/members", alice, nil).Code)
		assert.Equal(t, http.StatusNotFound, a.do(http.MethodPost, "/clubs/99/join", outsider, nil).Code)
	})
}

// =========================================================================
// CROSS-CUTTING
// =========================================================================

func TestProtectedRoutesRequireToken(t *testing.T) {
	a := newAPI(t, testConfig())

	routes := []struct{ method, path string }{
		{http.MethodGet, "/accounts/me"},
		{http.MethodPut, "/accounts/me"},
		{http.MethodPost, "/clubs"},
		{http.MethodPost, "/clubs/1/join"},
		{http.MethodGet, "/clubs/1/members"},
		{http.MethodPut, "/clubs/1/promote/someone"},
		{http.MethodGet, "/events"},
		{http.MethodGet, "/events/search?query=x"},
		{http.MethodGet, "/events/1"},
		{http.MethodPost, "/events"},
		{http.MethodGet, "/recommendations"},
	}
	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			rec := a.do(rt.method, rt.path, "not-a-jwt", nil)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "unauthenticated", decode[errorBody](t, rec).Error)
		})
	}
}

func TestProfileForUnknownSubjectIsNotFound(t *testing.T) {
	a := newAPI(t, testConfig())

	// Same secret, different database: the token is valid but its subject
	// does not exist here.
	other := newAPI(t, testConfig())
	_, token := other.signUp("ghost")

	rec := a.do(http.MethodGet, "/accounts/me", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	a := newAPI(t, testConfig())

	rec := a.do(http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	a.do(http.MethodPost, "/accounts/login", "", map[string]string{"institutionId": "nobody", "password": "x"})

	rec = a.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `campus_clubs_http_requests_total{method="GET",route="/healthz",status="200"} 1`)
	assert.Contains(t, body, `campus_clubs_auth_attempts_total{action="login",outcome="failure"} 1`)
}

func TestLoginIsRateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.LoginRatePerMinute = 2
	a := newAPI(t, cfg)

	creds := map[string]string{"institutionId": "nobody", "password": "x"}
	assert.Equal(t, http.StatusUnauthorized, a.do(http.MethodPost, "/accounts/login", "", creds).Code)
	assert.Equal(t, http.StatusUnauthorized, a.do(http.MethodPost, "/accounts/login", "", creds).Code)

	rec := a.do(http.MethodPost, "/accounts/login", "", creds)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// Other routes are not throttled.
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/clubs", "", nil).Code)
}

func TestLoginRateLimit_ForwardedHeadersDoNotResetTheWindow(t *testing.T) {
	cfg := testConfig()
	cfg.LoginRatePerMinute = 1
	a := newAPI(t, cfg)

	raw, err := json.Marshal(map[string]string{"institutionId": "nobody", "password": "x"})
	require.NoError(t, err)

	refused := 0
	for i := range 30 {
		req := httptest.NewRequest(http.MethodPost, "/accounts/login", bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("10.0.0.%d", i))
		req.RemoteAddr = "192.0.2.10:40000"
		rec := httptest.NewRecorder()
		a.h.ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			refused++
		}
	}
	assert.Equal(t, 29, refused)
}

func TestCORSPreflight(t *testing.T) {
	a := newAPI(t, testConfig())

	req := httptest.NewRequest(http.MethodOptions, "/clubs", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Authorization, Content-Type")
	rec := httptest.NewRecorder()
	a.h.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	a.h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
