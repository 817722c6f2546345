package server

import (
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/BioHazard786/Warproom/backend/internal/config"
	"github.com/BioHazard786/Warproom/backend/internal/metrics"
	"github.com/BioHazard786/Warproom/backend/internal/signaling"
)

// ICEServer is one entry of the ICE server list handed to clients.
type ICEServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

type webRTCConfig struct {
	ICEServers []ICEServer `json:"iceServers"`
}

// NewRouter wires the relay's HTTP surface.
func NewRouter(hub *signaling.Hub, cfg *config.Config, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(metrics.Middleware("relay"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", metrics.Handler())
	r.Get("/ws", ServeWs(hub, cfg.AllowedOrigins, log))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(10 * time.Second))
		r.Get("/rooms/{roomID}", roomStatus(hub.Registry()))
		r.Get("/webrtc/config", iceConfig(cfg))
	})

	return r
}

// ServeWs upgrades the request and starts the connection's pumps.
func ServeWs(hub *signaling.Hub, allowedOrigins []string, log *zap.Logger) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  64 * 1024,
		WriteBufferSize: 64 * 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Debug("websocket upgrade failed", zap.Error(err))
			return
		}

		client := signaling.NewClient(hub, conn)
		hub.Register(client)

		go client.WritePump()
		go client.ReadPump()
	}
}

// originChecker allows any origin when "*" is configured. Non-browser
// clients send no Origin header and are always allowed.
func originChecker(allowed []string) func(*http.Request) bool {
	if slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}

func roomStatus(registry *signaling.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, ok := registry.Status(chi.URLParam(r, "roomID"))
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": signaling.ErrRoomNotFound.Error()})
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func iceConfig(cfg *config.Config) http.HandlerFunc {
	servers := make([]ICEServer, 0, 2)
	if len(cfg.STUNServers) > 0 {
		servers = append(servers, ICEServer{URLs: cfg.STUNServers})
	}
	if len(cfg.TURNServers) > 0 {
		servers = append(servers, ICEServer{
			URLs:       cfg.TURNServers,
			Username:   cfg.TURNUser,
			Credential: cfg.TURNPass,
		})
	}
	body := webRTCConfig{ICEServers: servers}

	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, body)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
