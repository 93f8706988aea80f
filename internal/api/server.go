// Package api serves the HTTP control surface and the per-head streams.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/bryanchriswhite/DualCam/internal/app"
	"github.com/bryanchriswhite/DualCam/internal/config"
	"github.com/bryanchriswhite/DualCam/internal/logger"
	"github.com/bryanchriswhite/DualCam/internal/snapshot"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Server represents the HTTP API server
type Server struct {
	router    *mux.Router
	app       *app.App
	configMgr *config.Manager
	upgrader  websocket.Upgrader

	mu      sync.Mutex
	httpSrv *http.Server
	closed  bool
}

// NewServer creates a new API server. configMgr may be nil.
func NewServer(a *app.App, configMgr *config.Manager) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		app:       a,
		configMgr: configMgr,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/config", s.handleGetConfig).Methods("GET")

	// Snapshots
	api.HandleFunc("/snapshot", s.handleSnapshot).Methods("POST")
	api.HandleFunc("/snapshots", s.handleListSnapshots).Methods("GET")
	api.HandleFunc("/snapshots/{name}", s.handleGetSnapshot).Methods("GET")
	api.HandleFunc("/snapshots/{name}/png", s.handleGetSnapshotPNG).Methods("GET")

	// Capture session
	api.HandleFunc("/session/reopen", s.handleReopen).Methods("POST")
	api.HandleFunc("/events", s.handleEvents)

	// Heads
	s.router.HandleFunc("/heads/{head}/stream", s.handleHeadStream).Methods("GET")
	s.router.HandleFunc("/heads/{head}/stats", s.handleHeadStats).Methods("GET")

	s.router.HandleFunc("/", s.handleIndex).Methods("GET")
}

// Handler returns the routed handler with CORS applied.
func (s *Server) Handler() http.Handler {
	return s.enableCORS(s.router)
}

// Start serves on port until Shutdown is called.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.httpSrv = srv
	s.mu.Unlock()

	logger.WithComponent("api").Info().
		Str("addr", "http://localhost"+addr).
		Msg("Starting HTTP server")

	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the server started by Start.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	srv := s.httpSrv
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// enableCORS adds CORS headers
func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithComponent("api").Debug().Err(err).Msg("Failed to write response")
	}
}

// HTTP Handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": Version,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.app.Status())
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	if s.configMgr == nil {
		http.Error(w, "configuration is not file backed", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, s.configMgr.Get())
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	s.app.Snapshot()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "requested"})
}

func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	recs, err := s.app.Store().List()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if recs == nil {
		recs = []snapshot.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// snapshotError maps a store error to an HTTP status.
func snapshotError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, snapshot.ErrInvalidName):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, os.ErrNotExist):
		http.Error(w, "snapshot not found", http.StatusNotFound)
	default:
		logger.WithComponent("api").Error().Err(err).Msg("Snapshot read failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	data, err := s.app.Store().Open(name)
	if err != nil {
		snapshotError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", fmt.Sprint(len(data)))
	w.Write(data)
}

func (s *Server) handleGetSnapshotPNG(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	var buf bytes.Buffer
	if err := s.app.Store().ConvertPNG(name, &buf); err != nil {
		snapshotError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", fmt.Sprint(buf.Len()))
	w.Write(buf.Bytes())
}

func (s *Server) handleReopen(w http.ResponseWriter, r *http.Request) {
	s.app.Resume()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "requested"})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("api")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	events := s.app.Subscribe()
	defer s.app.Unsubscribe(events)

	// The reader only exists to notice the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case ev, ok := <-events:
			if !ok {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				log.Debug().Err(err).Msg("WebSocket write failed")
				return
			}
		}
	}
}

func (s *Server) handleHeadStream(w http.ResponseWriter, r *http.Request) {
	stream, ok := s.app.Stream(mux.Vars(r)["head"])
	if !ok {
		http.NotFound(w, r)
		return
	}
	stream.GetHTTPHandler()(w, r)
}

func (s *Server) handleHeadStats(w http.ResponseWriter, r *http.Request) {
	stream, ok := s.app.Stream(mux.Vars(r)["head"])
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, stream.Stats())
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>DualCam</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; margin: 0; padding: 20px; background: #1a1a1a; color: #fff; }
        .heads { display: flex; flex-wrap: wrap; gap: 20px; }
        .head { background: #2a2a2a; padding: 12px; border-radius: 8px; }
        .head h2 { margin: 0 0 8px 0; font-size: 16px; color: #4CAF50; }
        img { display: block; max-width: 100%; background: #000; }
        button { margin-right: 8px; padding: 8px 16px; border: none; border-radius: 4px; background: #4CAF50; color: #fff; cursor: pointer; }
        #log { margin-top: 20px; font-family: monospace; font-size: 12px; color: #aaa; }
    </style>
</head>
<body>
    <h1>DualCam</h1>
    <p>
        <button onclick="fetch('/api/snapshot', {method: 'POST'})">Snapshot</button>
        <button onclick="fetch('/api/session/reopen', {method: 'POST'})">Reopen camera</button>
        <a href="/api/snapshots">snapshots</a> &middot; <a href="/api/status">status</a>
    </p>
    <div class="heads">
    {{range .}}
        <div class="head">
            <h2>{{.}}</h2>
            <img src="/heads/{{.}}/stream" alt="{{.}}">
            <a href="/heads/{{.}}/stats">stats</a>
        </div>
    {{end}}
    </div>
    <div id="log"></div>
    <script>
        const ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/api/events');
        ws.onmessage = (msg) => {
            const ev = JSON.parse(msg.data);
            const line = document.createElement('div');
            line.textContent = ev.time + ' ' + ev.type + ' ' + (ev.message || ev.error || '');
            document.getElementById('log').prepend(line);
        };
    </script>
</body>
</html>`))

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, s.app.Heads()); err != nil {
		logger.WithComponent("api").Debug().Err(err).Msg("Failed to render index")
	}
}
