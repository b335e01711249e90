package exports

import (
	"fmt"
	"os"
	"path/filepath"
)

// Sink hands a finished document to the user.
type Sink interface {
	Deliver(name string, data []byte) error
}

// FileSink writes documents into Dir. A file is either absent or complete.
type FileSink struct {
	Dir string
}

func (s FileSink) Path(name string) string {
	return filepath.Join(s.Dir, filepath.Base(name))
}

func (s FileSink) Deliver(name string, data []byte) error {
	if err := os.MkdirAll(s.Dir, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	tmp, err := os.CreateTemp(s.Dir, "."+filepath.Base(name)+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", name, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("failed to set permissions on %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), s.Path(name)); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", name, err)
	}
	return nil
}
