package http

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/mmuslimabdulj/sketchrelay/internal/config"
	"github.com/mmuslimabdulj/sketchrelay/internal/delivery/ws"
	"github.com/mmuslimabdulj/sketchrelay/internal/logger"
	"github.com/mmuslimabdulj/sketchrelay/internal/middleware"
	"github.com/mmuslimabdulj/sketchrelay/internal/view"
)

const pageTitle = "sketchrelay"

type Handler struct {
	hub      *ws.Hub
	cfg      *config.Config
	upgrader websocket.Upgrader
	log      *logger.Logger
}

func NewHandler(hub *ws.Hub, cfg *config.Config, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{
		hub: hub,
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return cfg.IsOriginAllowed(r.Header.Get("Origin"))
			},
		},
		log: log,
	}
}

// Routes builds the full HTTP surface with rate limiting and security headers
func (h *Handler) Routes() http.Handler {
	apiLimiter := middleware.NewIPRateLimiter(h.cfg.RateLimitAPI, max(1, int(h.cfg.RateLimitAPI*2))).
		SetTrustProxy(h.cfg.TrustProxyHeaders)
	wsLimiter := middleware.NewIPRateLimiter(h.cfg.RateLimitWS, max(1, int(h.cfg.RateLimitWS*2))).
		SetTrustProxy(h.cfg.TrustProxyHeaders)

	mux := http.NewServeMux()

	// Page routes
	mux.HandleFunc("/", h.HandleIndex)
	mux.HandleFunc("/healthz", h.HandleHealth)

	// WebSocket route with rate limiting
	mux.HandleFunc("/ws", middleware.RateLimitFunc(wsLimiter, h.HandleWebSocket))

	// API routes with rate limiting
	mux.HandleFunc("/api/users", middleware.RateLimitFunc(apiLimiter, h.HandleUsers))

	return middleware.SecurityHeaders(mux)
}

// HandleIndex serves the landing page
func (h *Handler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	w.Header().Set("Pragma", "no-cache")
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := view.Index(pageTitle, "/ws", h.hub.Snapshot()).Render(r.Context(), w); err != nil {
		h.log.Errorf("Render index: %v", err)
	}
}

// HandleWebSocket upgrades HTTP to WebSocket and connects a new session to the hub
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error
		h.log.Debugf("WebSocket upgrade failed: %v", err)
		return
	}

	client := ws.NewClient(h.hub, conn)
	h.hub.Register(client)

	// Start read/write pumps in goroutines
	go client.WritePump()
	go client.ReadPump()
}

// HandleUsers returns the current user registry
func (h *Handler) HandleUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	users := h.hub.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"users":    users,
		"count":    len(users),
		"sessions": h.hub.ClientCount(),
	})
}

// HandleHealth reports liveness
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
