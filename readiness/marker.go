// Package readiness publishes readiness to an exec probe through the
// presence of a file.
package readiness

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tradecore/go-marketstore-common/logger"
)

type Logger = logger.Logger

// Marker creates its file when ready and removes it when not. The probe
// runs something like `test -f /tmp/ready`.
type Marker struct {
	log  Logger
	path string

	mu    sync.Mutex
	ready bool
}

func NewMarker(log Logger, path string) *Marker {
	return &Marker{log: log, path: path}
}

func (m *Marker) Path() string {
	return m.path
}

// Set records the readiness state. Only transitions touch the file system.
func (m *Marker) Set(ready bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ready == m.ready {
		return nil
	}
	if ready {
		if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
			return fmt.Errorf("readiness marker %s: %w", m.path, err)
		}
		if err := os.WriteFile(m.path, []byte("ready\n"), 0o644); err != nil { //nolint:gosec
			return fmt.Errorf("readiness marker %s: %w", m.path, err)
		}
		m.log.Infof("ready: %s", m.path)
	} else {
		if err := os.Remove(m.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("readiness marker %s: %w", m.path, err)
		}
		m.log.Infof("not ready: removed %s", m.path)
	}
	m.ready = ready
	return nil
}

func (m *Marker) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ready
}
