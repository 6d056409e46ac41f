// internal/api/gateway.go
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/fobos-uav/crsf-bridge/internal/command"
)

// GatewayServer is the operator-facing face: it validates commands, relays
// them to the peer bridge, and caches the telemetry JSON the bridge pushes.
// The cache is an opaque document; the gateway never interprets it.
type GatewayServer struct {
	peer   string // base URL of the bridge, e.g. http://localhost:8082
	client *http.Client

	mu            sync.Mutex
	lastTelemetry []byte
}

func NewGatewayServer(peer string, timeout time.Duration) *GatewayServer {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &GatewayServer{
		peer:          strings.TrimRight(peer, "/"),
		client:        &http.Client{Timeout: timeout},
		lastTelemetry: []byte("{}"),
	}
}

func (s *GatewayServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/command/", s.handleCommand)
	mux.HandleFunc("/api/telemetry", s.handleTelemetry)
	return withCORS(mux)
}

func (s *GatewayServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, "CRSF gateway for "+s.peer+"\n"+
		"POST /api/command/{setChannel,setChannels,sendChannels,setMode}\n"+
		"POST /api/telemetry (bridge push)\n"+
		"GET  /api/telemetry\n")
}

// handleCommand validates locally, then forwards a normalized body to the
// bridge. The operator may send setChannels either as the line grammar
// (channelsStr) or as a positional array (channels); both reach the bridge
// as channelsStr.
func (s *GatewayServer) handleCommand(w http.ResponseWriter, r *http.Request) {
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

	if err := s.forward(name, cmd); err != nil {
		writeError(w, http.StatusBadGateway, "Failed to send command to target")
		return
	}
	writeOK(w, "Command sent to target")
}

func (s *GatewayServer) forward(name string, cmd command.Command) error {
	var body any
	switch cmd.Kind {
	case command.KindSetChannel:
		body = map[string]int{"channel": cmd.Channel, "value": cmd.Value}
	case command.KindSetChannels:
		body = map[string]string{"channelsStr": commandLine(cmd)}
	case command.KindSendChannels:
		body = map[string]string{}
	case command.KindSetMode:
		body = map[string]string{"mode": cmd.Mode}
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}

	resp, err := s.client.Post(s.peer+"/api/command/"+name, "application/json", bytes.NewReader(raw))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("bridge returned %s", resp.Status)
	}
	return nil
}

func (s *GatewayServer) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil || len(body) == 0 {
			writeError(w, http.StatusBadRequest, "empty telemetry body")
			return
		}
		s.mu.Lock()
		s.lastTelemetry = body
		s.mu.Unlock()
		writeOK(w, "Telemetry received")

	case http.MethodGet:
		s.mu.Lock()
		body := s.lastTelemetry
		s.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)

	default:
		writeError(w, http.StatusMethodNotAllowed, "GET or POST required")
	}
}
