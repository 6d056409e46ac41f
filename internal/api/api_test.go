// internal/api/api_test.go
package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fobos-uav/crsf-bridge/internal/command"
	"github.com/fobos-uav/crsf-bridge/internal/telemetry"
)

func newBridge() (*BridgeServer, *command.Queue) {
	q := command.NewQueue()
	s := NewBridgeServer(q, func() telemetry.Snapshot {
		return telemetry.Snapshot{LinkUp: true, ActivePort: "/dev/ttyAMA0"}
	})
	return s, q
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestBridge_SetChannel(t *testing.T) {
	s, q := newBridge()
	h := s.Handler()

	rec := post(t, h, "/api/command/setChannel", `{"channel":2,"value":1600}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}

	cmds := q.Drain()
	if len(cmds) != 1 || cmds[0].Kind != command.KindSetChannel || cmds[0].Channel != 2 || cmds[0].Value != 1600 {
		t.Fatalf("queued = %+v", cmds)
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Fatalf("response = %v", resp)
	}
}

func TestBridge_RejectedCommandDoesNotMutate(t *testing.T) {
	s, q := newBridge()
	h := s.Handler()

	cases := []struct {
		path, body string
	}{
		{"/api/command/setChannel", `{"channel":0,"value":1500}`},
		{"/api/command/setChannel", `{"channel":1,"value":2500}`},
		{"/api/command/setChannel", `not json`},
		{"/api/command/setChannels", `{}`},
		{"/api/command/setChannels", `{"channelsStr":"sendChannels"}`},
		{"/api/command/setMode", `{"mode":"turbo"}`},
		{"/api/command/selfDestruct", `{}`},
	}
	for _, c := range cases {
		rec := post(t, h, c.path, c.body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("POST %s %q: status = %d, want 400", c.path, c.body, rec.Code)
		}
	}
	if cmds := q.Drain(); len(cmds) != 0 {
		t.Fatalf("rejected commands were queued: %+v", cmds)
	}
}

func TestBridge_SetChannelsString(t *testing.T) {
	s, q := newBridge()
	h := s.Handler()

	rec := post(t, h, "/api/command/setChannels", `{"channelsStr":"setChannels 1=1500 2=1600"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	cmds := q.Drain()
	if len(cmds) != 1 || cmds[0].Channels[2] != 1600 {
		t.Fatalf("queued = %+v", cmds)
	}
}

func TestBridge_TelemetryEndpoint(t *testing.T) {
	s, _ := newBridge()
	h := s.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/telemetry", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var doc map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("invalid telemetry JSON: %v", err)
	}
	if doc["linkUp"] != true || doc["activePort"] != "/dev/ttyAMA0" {
		t.Fatalf("doc = %v", doc)
	}
}

func TestBridge_CORSHeaders(t *testing.T) {
	s, _ := newBridge()
	h := s.Handler()

	req := httptest.NewRequest(http.MethodOptions, "/api/command/setChannel", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("missing permissive CORS header")
	}
}

func TestGateway_ForwardsNormalizedCommands(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	peer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		writeOK(w, "Command queued")
	}))
	defer peer.Close()

	g := NewGatewayServer(peer.URL, time.Second)
	h := g.Handler()

	// Positional array translates into the line grammar.
	rec := post(t, h, "/api/command/setChannels", `{"channels":[1500,1600,1700]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	if gotPath != "/api/command/setChannels" {
		t.Fatalf("forwarded path = %q", gotPath)
	}
	if gotBody["channelsStr"] != "setChannels 1=1500 2=1600 3=1700" {
		t.Fatalf("forwarded body = %v", gotBody)
	}
}

func TestGateway_PeerDownIsBadGateway(t *testing.T) {
	g := NewGatewayServer("http://127.0.0.1:1", 200*time.Millisecond)
	h := g.Handler()

	rec := post(t, h, "/api/command/sendChannels", `{}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
}

func TestGateway_TelemetryCache(t *testing.T) {
	g := NewGatewayServer("http://unused", time.Second)
	h := g.Handler()

	// Before any push the cache serves the empty document.
	req := httptest.NewRequest(http.MethodGet, "/api/telemetry", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Body.String() != "{}" {
		t.Fatalf("initial cache = %q", rec.Body.String())
	}

	doc := `{"linkUp":true,"channels":[1,2,3]}`
	rec = post(t, h, "/api/telemetry", doc)
	if rec.Code != http.StatusOK {
		t.Fatalf("push status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/telemetry", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Body.String() != doc {
		t.Fatalf("cache = %q, want pushed document verbatim", rec.Body.String())
	}

	rec = post(t, h, "/api/telemetry", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty push status = %d, want 400", rec.Code)
	}
}

func TestCommandLine_RendersSorted(t *testing.T) {
	cmd := command.Command{
		Kind:     command.KindSetChannels,
		Channels: map[int]int{3: 1700, 1: 1500, 16: 2000},
	}
	if got := commandLine(cmd); got != "setChannels 1=1500 3=1700 16=2000" {
		t.Fatalf("commandLine = %q", got)
	}
}
