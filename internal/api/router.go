package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzhttp"
	"github.com/sirupsen/logrus"

	"github.com/sqdops/seedtrack/internal/auth"
	"github.com/sqdops/seedtrack/internal/metrics"
	"github.com/sqdops/seedtrack/internal/seeding"
	"github.com/sqdops/seedtrack/internal/storage"
)

// Router holds the HTTP routes and dependencies
type Router struct {
	mux       *http.ServeMux
	store     *storage.Store
	engine    *seeding.Engine
	wsHub     *WebSocketHub
	auth      *auth.Service
	staticDir string
	handler   http.Handler
}

// NewRouter creates a new HTTP router
func NewRouter(store *storage.Store, engine *seeding.Engine, authService *auth.Service, log *logrus.Logger, staticDir string) *Router {
	r := &Router{
		mux:       http.NewServeMux(),
		store:     store,
		engine:    engine,
		wsHub:     NewWebSocketHub(log),
		auth:      authService,
		staticDir: staticDir,
	}

	// Server registry
	r.mux.HandleFunc("GET /api/servers", r.handleGetServers)
	r.mux.HandleFunc("GET /api/servers/{id}", r.handleGetServer)

	// Seeding sessions
	r.mux.HandleFunc("POST /api/seeding/sessions", r.requireAuth(r.handleCreateSession))
	r.mux.HandleFunc("GET /api/seeding/sessions", r.handleListSessions)
	r.mux.HandleFunc("GET /api/seeding/sessions/{id}", r.handleGetSession)
	r.mux.HandleFunc("GET /api/seeding/sessions/{id}/participants", r.handleListParticipants)
	r.mux.HandleFunc("GET /api/seeding/sessions/{id}/preview", r.requireAuth(r.handleClosePreview))
	r.mux.HandleFunc("POST /api/seeding/sessions/{id}/close", r.requireAuth(r.handleCloseSession))
	r.mux.HandleFunc("POST /api/seeding/sessions/{id}/cancel", r.requireAuth(r.handleCancelSession))
	r.mux.HandleFunc("POST /api/seeding/sessions/{id}/participants/{pid}/revoke", r.requireAdmin(r.handleRevokeParticipant))
	r.mux.HandleFunc("POST /api/seeding/sessions/{id}/reverse", r.requireAdmin(r.handleReverseSession))

	// Audit trail
	r.mux.HandleFunc("GET /api/audit", r.requireAuth(r.handleListAudit))

	// Auth routes
	r.mux.HandleFunc("POST /api/auth/login", r.handleLogin)
	r.mux.HandleFunc("POST /api/auth/logout", r.handleLogout)
	r.mux.HandleFunc("GET /api/auth/check", r.handleAuthCheck)
	r.mux.HandleFunc("POST /api/auth/change-password", r.requireAuth(r.handleChangePassword))

	// Operator management routes (admin only)
	r.mux.HandleFunc("GET /api/users", r.requireAdmin(r.handleListUsers))
	r.mux.HandleFunc("POST /api/users", r.requireAdmin(r.handleCreateUser))
	r.mux.HandleFunc("DELETE /api/users/{username}", r.requireAdmin(r.handleDeleteUser))
	r.mux.HandleFunc("POST /api/users/{id}/reset-password", r.requireAdmin(r.handleResetUserPassword))
	r.mux.HandleFunc("PATCH /api/users/{id}", r.requireAdmin(r.handleUpdateUser))

	// WebSocket endpoint for live dashboard updates
	r.mux.HandleFunc("GET /ws", r.handleWebSocket)

	// Health check and metrics
	r.mux.HandleFunc("GET /health", r.handleHealth)
	r.mux.Handle("GET /metrics", metrics.Handler())

	// Static files - only serve if staticDir is configured
	if staticDir != "" {
		r.mux.HandleFunc("GET /", r.handleStatic)
	}

	r.handler = gzhttp.GzipHandler(r.mux)

	return r
}

// ServeHTTP implements http.Handler
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	// CORS headers for API
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

	if req.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	r.handler.ServeHTTP(w, req)
}

// StartWebSocketHub starts broadcasting engine events to WebSocket clients
func (r *Router) StartWebSocketHub() {
	go r.wsHub.Run()

	go func() {
		for event := range r.engine.Events() {
			r.wsHub.Broadcast(event)
		}
	}()
}

// handleStatic serves static files from the configured directory
// For SPA support, serves index.html for any path that doesn't match a file
func (r *Router) handleStatic(w http.ResponseWriter, req *http.Request) {
	path := filepath.Clean(req.URL.Path)
	if path == "/" {
		path = "/index.html"
	}

	fullPath := filepath.Join(r.staticDir, path)

	// Security: ensure the path is within staticDir
	absStaticDir, _ := filepath.Abs(r.staticDir)
	absPath, _ := filepath.Abs(fullPath)
	if !strings.HasPrefix(absPath, absStaticDir) {
		http.NotFound(w, req)
		return
	}

	info, err := os.Stat(fullPath)
	if err != nil || info.IsDir() {
		// SPA fallback: serve index.html for unknown paths
		fullPath = filepath.Join(r.staticDir, "index.html")
		if _, err := os.Stat(fullPath); err != nil {
			http.NotFound(w, req)
			return
		}
	}

	http.ServeFile(w, req, fullPath)
}
