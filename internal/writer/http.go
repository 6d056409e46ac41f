// internal/writer/http.go
package writer

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/fobos-uav/crsf-bridge/internal/telemetry"
)

// HTTPSink pushes the telemetry JSON to the gateway. Acceptance is judged
// by the HTTP status only; the gateway does not confirm downstream
// delivery.
type HTTPSink struct {
	url    string
	client *http.Client
	now    func() time.Time
}

// NewHTTPSink targets the gateway ingest endpoint, e.g.
// http://host:8081/api/telemetry. The timeout is short by design: a slow
// gateway must not stall the publish tick train.
func NewHTTPSink(url string, timeout time.Duration) *HTTPSink {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HTTPSink{
		url:    url,
		client: &http.Client{Timeout: timeout},
		now:    time.Now,
	}
}

func (s *HTTPSink) Name() string { return "http " + s.url }

func (s *HTTPSink) Publish(snap telemetry.Snapshot) error {
	body, err := telemetry.EncodeJSON(snap, s.now())
	if err != nil {
		return err
	}

	resp, err := s.client.Post(s.url, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("gateway returned %s", resp.Status)
	}
	return nil
}
