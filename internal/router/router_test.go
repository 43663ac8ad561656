package router

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"aqms-backend/internal/config"
	"aqms-backend/internal/event"
	"aqms-backend/internal/handler"
	"aqms-backend/internal/middleware"
	"aqms-backend/internal/model"
	"aqms-backend/internal/repository"
	"aqms-backend/internal/service"
	"aqms-backend/internal/websocket"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type testServer struct {
	handler http.Handler
	users   *repository.MemoryUserRepository
	audit   *repository.MemoryAuditRepository
}

func newTestServer(t *testing.T, mutate func(cfg *config.Config), health HealthCheck) testServer {
	t.Helper()

	cfg := &config.Config{
		RequestTimeout:         5 * time.Second,
		ServerWriteTimeout:     5 * time.Second,
		DBQueryTimeout:         time.Second,
		JWTSecret:              "router-test-secret-with-32-bytes-plus",
		JWTAccessTTL:           30 * time.Minute,
		BcryptCost:             bcrypt.MinCost,
		AllowAdminRegistration: true,
		CORSOrigins:            []string{"http://localhost:3000"},
		RateLimitRPM:           1000,
		AuthRateLimitRPM:       1000,
		ReadingsListLimit:      100,
	}
	if mutate != nil {
		mutate(cfg)
	}

	userRepo := repository.NewMemoryUserRepository()
	hasher := service.NewPasswordHasher(cfg.BcryptCost)
	tokens, err := service.NewTokenService(cfg.JWTSecret, cfg.JWTAccessTTL)
	require.NoError(t, err)
	users := service.NewUserDirectory(userRepo, hasher, cfg.DBQueryTimeout)
	authService := service.NewAuthService(users, hasher, tokens, cfg.AllowAdminRegistration)
	auditRepo := repository.NewMemoryAuditRepository(0)
	audit := service.NewAuditService(auditRepo)

	bus := event.NewBus()
	hub := websocket.NewHub(bus)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	readings := service.NewReadingService(repository.NewMemoryReadingRepository(), service.ReadingServiceOptions{
		Bus:      bus,
		MaxLimit: cfg.ReadingsListLimit,
	})

	h := New(cfg, middleware.NewAuthMiddleware(tokens, users), Handlers{
		Auth:      handler.NewAuthHandler(authService, audit),
		Audit:     handler.NewAuditHandler(audit),
		Admin:     handler.NewAdminHandler(authService, readings),
		Reading:   handler.NewReadingHandler(readings),
		WebSocket: handler.NewWebSocketHandler(hub, cfg.CORSOrigins),
		Docs:      handler.NewDocsHandler(),
	}, health)

	return testServer{handler: h, users: userRepo, audit: auditRepo}
}

func (s testServer) do(t *testing.T, method string, path string, body any, token string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func (s testServer) login(t *testing.T, email string, password string) string {
	t.Helper()

	rec, env := s.do(t, http.MethodPost, "/login", map[string]string{"email": email, "password": password}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var tok struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &tok))
	require.Equal(t, "bearer", tok.TokenType)
	return tok.AccessToken
}

func TestRegisterLoginAndRoleGate(t *testing.T) {
	s := newTestServer(t, nil, nil)

	rec, env := s.do(t, http.MethodPost, "/register", map[string]string{
		"email": "User@Example.com", "username": "user1", "password": "user-password",
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "password")
	assert.NotContains(t, rec.Body.String(), "$2a$")

	var created map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.NotEmpty(t, created["id"])
	assert.Equal(t, "user@example.com", created["email"])
	assert.Equal(t, "user", created["role"])

	userToken := s.login(t, "user@example.com", "user-password")

	rec, env = s.do(t, http.MethodGet, "/me", nil, userToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var me map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &me))
	assert.Equal(t, "user", me["role"])

	rec, env = s.do(t, http.MethodGet, "/admin/dashboard", nil, userToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)

	rec, _ = s.do(t, http.MethodPost, "/register", map[string]string{
		"email": "admin@example.com", "username": "root", "password": "admin-password", "role": "admin",
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	adminToken := s.login(t, "admin@example.com", "admin-password")

	rec, env = s.do(t, http.MethodGet, "/admin/dashboard", nil, adminToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var dash map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &dash))
	assert.Equal(t, "admin@example.com", dash["admin"])
	assert.Contains(t, dash["message"], "root")
	assert.EqualValues(t, 2, dash["user_count"])

	rec, env = s.do(t, http.MethodGet, "/admin/users", nil, adminToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, string(env.Data), "password")

	rec, _ = s.do(t, http.MethodGet, "/me", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRegisterFailures(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) { cfg.AllowAdminRegistration = false }, nil)

	rec, _ := s.do(t, http.MethodPost, "/register", map[string]string{
		"email": "A@x.com", "username": "a", "password": "pw-one",
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, env := s.do(t, http.MethodPost, "/register", map[string]string{
		"email": "a@x.com", "username": "a2", "password": "pw-two",
	}, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "EMAIL_EXISTS", env.Error.Code)

	rec, _ = s.do(t, http.MethodPost, "/register", map[string]string{
		"email": "boss@x.com", "username": "boss", "password": "pw", "role": "admin",
	}, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, env = s.do(t, http.MethodPost, "/register", map[string]string{
		"email": "long@x.com", "username": "l", "password": strings.Repeat("p", 73),
	}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "PASSWORD_TOO_LONG", env.Error.Code)

	rec, _ = s.do(t, http.MethodPost, "/register", map[string]any{
		"email": "x@x.com", "username": "x", "password": "pw", "is_admin": true,
	}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code, "unknown fields are rejected")
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	s := newTestServer(t, nil, nil)

	rec, _ := s.do(t, http.MethodPost, "/register", map[string]string{
		"email": "u@x.com", "username": "u", "password": "right",
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	wrongPassword, _ := s.do(t, http.MethodPost, "/login", map[string]string{"email": "u@x.com", "password": "wrong"}, "")
	unknownEmail, _ := s.do(t, http.MethodPost, "/login", map[string]string{"email": "nobody@x.com", "password": "right"}, "")

	assert.Equal(t, http.StatusUnauthorized, wrongPassword.Code)
	assert.Equal(t, wrongPassword.Code, unknownEmail.Code)
	assert.Equal(t, wrongPassword.Body.String(), unknownEmail.Body.String())
}

func TestLoginWithForm(t *testing.T) {
	s := newTestServer(t, nil, nil)

	rec, _ := s.do(t, http.MethodPost, "/register", map[string]string{
		"email": "form@x.com", "username": "f", "password": "form-pass",
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	form := url.Values{"username": {"form@x.com"}, "password": {"form-pass"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "access_token")
}

func TestChangePassword(t *testing.T) {
	s := newTestServer(t, nil, nil)

	rec, _ := s.do(t, http.MethodPost, "/register", map[string]string{
		"email": "u@x.com", "username": "u", "password": "old-pass",
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	token := s.login(t, "u@x.com", "old-pass")

	rec, _ = s.do(t, http.MethodPost, "/change-password", map[string]string{
		"old_password": "nope", "new_password": "new-pass",
	}, token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	s.login(t, "u@x.com", "old-pass")

	rec, env := s.do(t, http.MethodPost, "/change-password", map[string]string{
		"old_password": "old-pass", "new_password": "new-pass",
	}, token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), "Password updated")
	s.login(t, "u@x.com", "new-pass")
}

func TestDeletedUserTokenIsRejected(t *testing.T) {
	s := newTestServer(t, nil, nil)

	rec, env := s.do(t, http.MethodPost, "/register", map[string]string{
		"email": "gone@x.com", "username": "g", "password": "pw",
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))

	token := s.login(t, "gone@x.com", "pw")
	s.users.Delete(created.ID)

	rec, _ = s.do(t, http.MethodGet, "/me", nil, token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestReadingsIngestListAndExport(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) { cfg.DeviceAPIKey = "device-key" }, nil)
	now := time.Now().Unix()

	rec, _ := s.do(t, http.MethodPost, "/api/data", map[string]any{"ts": now, "pm25": 12.5}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "device key required")

	post := func(body map[string]any) *httptest.ResponseRecorder {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, "/api/data", bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Device-Key", "device-key")
		rec := httptest.NewRecorder()
		s.handler.ServeHTTP(rec, req)
		return rec
	}

	require.Equal(t, http.StatusCreated, post(map[string]any{"ts": now - 60, "pm25": 12.5, "hum": 40, "wifi": true}).Code)
	require.Equal(t, http.StatusCreated, post(map[string]any{"ts": now, "pm25": 20.1, "pm10": 30}).Code)
	assert.Equal(t, http.StatusBadRequest, post(map[string]any{"ts": now, "hum": 140}).Code)
	assert.Equal(t, http.StatusBadRequest, post(map[string]any{"ts": now, "co2": 400}).Code)

	rec, env := s.do(t, http.MethodGet, "/api/data?limit=10", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 2)
	assert.EqualValues(t, now, list[0]["ts"])
	assert.Equal(t, true, list[1]["wifi"])

	rec, _ = s.do(t, http.MethodGet, "/api/data?limit=abc", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = s.do(t, http.MethodPost, "/register", map[string]string{
		"email": "admin@x.com", "username": "admin", "password": "pw", "role": "admin",
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	adminToken := s.login(t, "admin@x.com", "pw")

	req := httptest.NewRequest(http.MethodGet, "/admin/export-csv?days=1", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "aqms_data_1days_")

	records, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "ts", records[0][0])
	assert.Equal(t, "12.5", records[1][3])

	req = httptest.NewRequest(http.MethodGet, "/admin/export-csv?days=400", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	healthy := newTestServer(t, nil, nil)
	rec := httptest.NewRecorder()
	healthy.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	down := newTestServer(t, nil, func(context.Context) error { return errors.New("db down") })
	rec = httptest.NewRecorder()
	down.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestDocs(t *testing.T) {
	s := newTestServer(t, nil, nil)

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/openapi.yaml", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/yaml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "/admin/export-csv")

	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/docs", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "swagger-ui")
}

func TestAuditTrail(t *testing.T) {
	s := newTestServer(t, nil, nil)

	rec, _ := s.do(t, http.MethodPost, "/register", map[string]string{
		"email": "Admin@X.com", "username": "admin", "password": "pw", "role": "admin",
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	rec, _ = s.do(t, http.MethodPost, "/login", map[string]string{"email": "admin@x.com", "password": "bad"}, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	token := s.login(t, "admin@x.com", "pw")

	rec, env := s.do(t, http.MethodGet, "/admin/audit?action=login", nil, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), `"bad"`)

	var list struct {
		Items []struct {
			Action  string `json:"action"`
			Status  string `json:"status"`
			Subject string `json:"subject"`
			Reason  string `json:"reason"`
			Actor   struct {
				UserID string `json:"user_id"`
			} `json:"actor"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list.Items, 2)
	assert.Equal(t, "success", list.Items[0].Status)
	assert.NotEmpty(t, list.Items[0].Actor.UserID)
	assert.Equal(t, "failure", list.Items[1].Status)
	assert.Equal(t, "invalid_credentials", list.Items[1].Reason)
	assert.Equal(t, "admin@x.com", list.Items[1].Subject)

	rec, _ = s.do(t, http.MethodGet, "/admin/audit?from=yesterday", nil, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	entries, err := s.audit.Query(context.Background(), model.AuditQuery{Action: model.AuditRegister})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "admin@x.com", entries[0].Subject)
}
