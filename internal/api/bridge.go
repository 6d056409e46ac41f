// internal/api/bridge.go
package api

import (
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fobos-uav/crsf-bridge/internal/command"
	"github.com/fobos-uav/crsf-bridge/internal/telemetry"
)

// BridgeServer is the interpreter-side control plane: command ingress into
// the queue, telemetry egress from the live snapshot.
type BridgeServer struct {
	queue   *command.Queue
	collect func() telemetry.Snapshot

	upgrader       websocket.Upgrader
	streamInterval time.Duration
	now            func() time.Time
}

func NewBridgeServer(queue *command.Queue, collect func() telemetry.Snapshot) *BridgeServer {
	return &BridgeServer{
		queue:   queue,
		collect: collect,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		streamInterval: 100 * time.Millisecond,
		now:            time.Now,
	}
}

// Handler builds the route table.
func (s *BridgeServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/command/", s.handleCommand)
	mux.HandleFunc("/api/telemetry", s.handleTelemetry)
	mux.HandleFunc("/api/telemetry/ws", s.handleTelemetryWS)
	return withCORS(mux)
}

func (s *BridgeServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, "CRSF bridge\n"+
		"POST /api/command/setChannel\n"+
		"POST /api/command/setChannels\n"+
		"POST /api/command/sendChannels\n"+
		"POST /api/command/setMode\n"+
		"GET  /api/telemetry\n"+
		"GET  /api/telemetry/ws\n")
}

// handleCommand validates and enqueues a command. Rejected commands never
// mutate state.
func (s *BridgeServer) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/api/command/")
	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil {
		writeError(w, http.StatusBadRequest, "cannot read body")
		return
	}

	cmd, err := parseCommandRequest(name, body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.queue.Push(cmd)
	writeOK(w, "Command queued")
}

func (s *BridgeServer) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET required")
		return
	}

	body, err := telemetry.EncodeJSON(s.collect(), s.now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

// handleTelemetryWS streams the snapshot JSON at 10 Hz until the client
// goes away. Each worker owns its socket; an error just ends the worker.
func (s *BridgeServer) handleTelemetryWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	// Drain client frames so close handshakes are seen.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.streamInterval)
	defer ticker.Stop()

	for range ticker.C {
		body, err := telemetry.EncodeJSON(s.collect(), s.now())
		if err != nil {
			log.Printf("api: telemetry stream encode: %v", err)
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, body); err != nil {
			return
		}
	}
}
