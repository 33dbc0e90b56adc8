package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sqdops/seedtrack/internal/auth"
	"github.com/sqdops/seedtrack/internal/domain"
	"github.com/sqdops/seedtrack/internal/seeding"
	"github.com/sqdops/seedtrack/internal/storage"
	"github.com/sqdops/seedtrack/internal/whitelist"
)

type apiTestEnv struct {
	router     *Router
	store      *storage.Store
	wl         *whitelist.Fake
	operator   string
	adminToken string
	userToken  string
}

func newAPIEnv(t *testing.T) *apiTestEnv {
	t.Helper()

	store, err := storage.New(filepath.Join(t.TempDir(), "api-test.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	for i, name := range []string{"alpha", "bravo", "charlie"} {
		srv := &domain.GameServer{Name: name, Address: fmt.Sprintf("10.0.0.%d:7777", i+1)}
		if err := store.UpsertServer(ctx, srv); err != nil {
			t.Fatalf("registering server %s: %v", name, err)
		}
	}

	wl := whitelist.NewFake()
	engine := seeding.New(store, wl, seeding.Policy{}, time.Minute)

	authService := auth.NewService("api-test-secret", time.Hour)
	adminToken, err := authService.GenerateToken(1, "root", true, false)
	if err != nil {
		t.Fatalf("generating admin token: %v", err)
	}
	userToken, err := authService.GenerateToken(2, "operator", false, false)
	if err != nil {
		t.Fatalf("generating operator token: %v", err)
	}

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	return &apiTestEnv{
		router:     NewRouter(store, engine, authService, log, ""),
		store:      store,
		wl:         wl,
		operator:   "operator",
		adminToken: adminToken,
		userToken:  userToken,
	}
}

func (e *apiTestEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding request body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), target); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
}

func sessionRequest() CreateSessionRequest {
	return CreateSessionRequest{
		TargetServerID:  1,
		PlayerThreshold: 2,
		TestMode:        true,
		SourceServerIDs: []int64{2, 3},
		Rewards: domain.RewardsConfig{
			Switch:     &domain.DurationReward{Value: 12, Unit: domain.UnitHours},
			Completion: &domain.DurationReward{Value: 1, Unit: domain.UnitDays},
		},
	}
}

func TestSessionEndpointsRequireAuth(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, "POST", "/api/seeding/sessions", "", sessionRequest())
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("create without token: got %d, want 401", rec.Code)
	}

	rec = env.do(t, "POST", "/api/seeding/sessions", "garbage-token", sessionRequest())
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("create with bad token: got %d, want 401", rec.Code)
	}
}

func TestRevokeAndReverseRequireAdmin(t *testing.T) {
	env := newAPIEnv(t)

	body := ReasonRequest{Reason: "mistaken grant"}
	rec := env.do(t, "POST", "/api/seeding/sessions/1/participants/1/revoke", env.userToken, body)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("revoke as operator: got %d, want 403", rec.Code)
	}

	rec = env.do(t, "POST", "/api/seeding/sessions/1/reverse", env.userToken, body)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("reverse as operator: got %d, want 403", rec.Code)
	}
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, "POST", "/api/seeding/sessions", env.userToken, sessionRequest())
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: got %d, body %s", rec.Code, rec.Body.String())
	}
	var created domain.SeedingSession
	decodeBody(t, rec, &created)
	if created.Status != domain.SessionActive {
		t.Fatalf("new session status = %s, want active", created.Status)
	}
	if created.CreatedBy != env.operator {
		t.Fatalf("created_by = %s, want %s", created.CreatedBy, env.operator)
	}

	// A second active session targeting the same server conflicts.
	rec = env.do(t, "POST", "/api/seeding/sessions", env.userToken, sessionRequest())
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate active session: got %d, want 409", rec.Code)
	}

	rec = env.do(t, "GET", "/api/seeding/sessions?status=active", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: got %d", rec.Code)
	}
	var listed struct {
		Sessions []domain.SeedingSession `json:"sessions"`
	}
	decodeBody(t, rec, &listed)
	if len(listed.Sessions) != 1 {
		t.Fatalf("listed %d active sessions, want 1", len(listed.Sessions))
	}

	path := fmt.Sprintf("/api/seeding/sessions/%d", created.ID)
	rec = env.do(t, "GET", path+"/preview", env.userToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("preview: got %d, body %s", rec.Code, rec.Body.String())
	}
	var preview domain.ClosePreview
	decodeBody(t, rec, &preview)
	if preview.ParticipantsToReward != 0 {
		t.Fatalf("empty session preview rewards %d participants", preview.ParticipantsToReward)
	}

	rec = env.do(t, "POST", path+"/close", env.userToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("close: got %d, body %s", rec.Code, rec.Body.String())
	}
	var closed domain.SeedingSession
	decodeBody(t, rec, &closed)
	if closed.Status != domain.SessionCompleted {
		t.Fatalf("closed session status = %s, want completed", closed.Status)
	}

	// Closing a settled session is an invalid state transition.
	rec = env.do(t, "POST", path+"/close", env.userToken, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("re-close: got %d, want 422", rec.Code)
	}
}

func TestDomainErrorMapping(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, "GET", "/api/seeding/sessions/9999", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown session: got %d, want 404", rec.Code)
	}

	bad := sessionRequest()
	bad.PlayerThreshold = 0
	rec = env.do(t, "POST", "/api/seeding/sessions", env.userToken, bad)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid threshold: got %d, want 400", rec.Code)
	}

	rec = env.do(t, "GET", "/api/seeding/sessions?status=bogus", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid status filter: got %d, want 400", rec.Code)
	}
}

func TestCancelRequiresReason(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, "POST", "/api/seeding/sessions", env.userToken, sessionRequest())
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: got %d", rec.Code)
	}
	var created domain.SeedingSession
	decodeBody(t, rec, &created)

	path := fmt.Sprintf("/api/seeding/sessions/%d/cancel", created.ID)
	rec = env.do(t, "POST", path, env.userToken, ReasonRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("cancel without reason: got %d, want 400", rec.Code)
	}

	rec = env.do(t, "POST", path, env.userToken, ReasonRequest{Reason: "event called off"})
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel: got %d, body %s", rec.Code, rec.Body.String())
	}
	var cancelled domain.SeedingSession
	decodeBody(t, rec, &cancelled)
	if cancelled.Status != domain.SessionCancelled {
		t.Fatalf("cancelled session status = %s", cancelled.Status)
	}
}

func TestLoginFlow(t *testing.T) {
	env := newAPIEnv(t)

	hash, err := auth.HashPassword("hunter2hunter2")
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}
	if err := env.store.CreateUser(context.Background(), "alice", hash, false); err != nil {
		t.Fatalf("creating user: %v", err)
	}

	rec := env.do(t, "POST", "/api/auth/login", "", LoginRequest{Username: "alice", Password: "wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad password: got %d, want 401", rec.Code)
	}

	rec = env.do(t, "POST", "/api/auth/login", "", LoginRequest{Username: "alice", Password: "hunter2hunter2"})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: got %d, body %s", rec.Code, rec.Body.String())
	}
	var login LoginResponse
	decodeBody(t, rec, &login)
	if login.Token == "" {
		t.Fatal("login returned no token")
	}
	if !login.PasswordChangeRequired {
		t.Fatal("freshly created user should be required to change password")
	}

	rec = env.do(t, "GET", "/api/auth/check", login.Token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("auth check: got %d", rec.Code)
	}
	var check struct {
		Authenticated bool   `json:"authenticated"`
		Username      string `json:"username"`
	}
	decodeBody(t, rec, &check)
	if !check.Authenticated || check.Username != "alice" {
		t.Fatalf("auth check = %+v", check)
	}
}

func TestUserManagementIsAdminOnly(t *testing.T) {
	env := newAPIEnv(t)

	body := CreateUserRequest{Username: "bob", Password: "longenough", IsAdmin: false}
	rec := env.do(t, "POST", "/api/users", env.userToken, body)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("create user as operator: got %d, want 403", rec.Code)
	}

	rec = env.do(t, "POST", "/api/users", env.adminToken, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create user as admin: got %d, body %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, "POST", "/api/users", env.adminToken, body)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate username: got %d, want 409", rec.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, "GET", "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health: got %d", rec.Code)
	}
	if rec.Body.String() != "ok" {
		t.Fatalf("health body = %q", rec.Body.String())
	}
}
