// internal/writer/file.go
package writer

import (
	"os"

	"github.com/fobos-uav/crsf-bridge/internal/telemetry"
)

// FileSink rewrites the shared binary telemetry record in place:
// open-truncate-write-close on every publish. The rewrite is deliberately
// not atomic; a racing reader that catches a short record treats it as
// "no connection" by validating the length.
type FileSink struct {
	path string
}

func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

func (s *FileSink) Name() string { return "file " + s.path }

func (s *FileSink) Publish(snap telemetry.Snapshot) error {
	return os.WriteFile(s.path, telemetry.EncodeRecord(snap), 0o644)
}
