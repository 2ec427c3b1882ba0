package orchestrator

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// Marker is the stop marker file observed between articles.
type Marker struct {
	Path string
}

// Present reports whether the marker exists.
func (m Marker) Present() bool {
	if m.Path == "" {
		return false
	}
	_, err := os.Stat(m.Path)
	return err == nil
}

// Clear removes the marker; a missing marker is not an error.
func (m Marker) Clear() error {
	if m.Path == "" {
		return nil
	}
	if err := os.Remove(m.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove stop marker: %w", err)
	}
	return nil
}

// Create writes the marker.
func (m Marker) Create() error {
	if m.Path == "" {
		return fmt.Errorf("stop marker path is not configured")
	}
	if err := os.WriteFile(m.Path, []byte("stop\n"), 0o600); err != nil {
		return fmt.Errorf("create stop marker: %w", err)
	}
	return nil
}
