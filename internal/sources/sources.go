// Package sources is the implementation of the source state component.
// It manages per-source state files which record whether a plan source is
// enabled. A source with no state file is enabled; disabling writes a file so
// the choice survives between runs.
package sources

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ideacorpus/harvester/internal/constants"
	"github.com/ubuntu/decorate"
)

// Manager is a struct that manages source state files.
type Manager struct {
	path string

	log *slog.Logger
}

// SFile is a struct that represents a source state file.
type SFile struct {
	Enabled bool `toml:"enabled"`
}

// New returns a new source state Manager.
// path is the folder the state files are stored into.
func New(l *slog.Logger, path string) *Manager {
	return &Manager{log: l, path: path}
}

// Enabled reports whether the given source should be run.
// A source without a state file is enabled by default.
func (m Manager) Enabled(source string) (bool, error) {
	var state SFile
	_, err := toml.DecodeFile(m.getFile(source), &state)
	if errors.Is(err, os.ErrNotExist) {
		m.log.Debug("No state file for source, enabled by default", "source", source)
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("could not read state file for source %s: %v", source, err)
	}

	m.log.Debug("Read source state file", "source", source, "enabled", state.Enabled)
	return state.Enabled, nil
}

// SetEnabled updates the state for the given source, creating the state file
// if it does not exist.
func (m Manager) SetEnabled(source string, enabled bool) (err error) {
	defer decorate.OnError(&err, "could not set state for source %s", source)

	state := SFile{Enabled: enabled}
	return state.write(m.log, m.getFile(source))
}

// States returns the enablement state of every source with a state file.
func (m Manager) States() (map[string]bool, error) {
	states := make(map[string]bool)

	entries, err := os.ReadDir(m.path)
	if errors.Is(err, os.ErrNotExist) {
		return states, nil
	}
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), constants.SourceFilenameSuffix) {
			continue
		}

		source := strings.TrimSuffix(entry.Name(), constants.SourceFilenameSuffix)
		enabled, err := m.Enabled(source)
		if err != nil {
			return nil, err
		}
		states[source] = enabled
	}

	return states, nil
}

// getFile returns the expected path to the state file for the given source.
// It does not check if the file exists, or if it is valid.
func (m Manager) getFile(source string) string {
	return filepath.Join(m.path, source+constants.SourceFilenameSuffix)
}

// write writes the given state file to the given path atomically, replacing it
// if it already exists. Not atomic on Windows. Makes dir if it does not exist.
func (sf SFile) write(l *slog.Logger, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("could not create directory: %v", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "source-*.tmp")
	if err != nil {
		return fmt.Errorf("could not create temporary file: %v", err)
	}
	defer func() {
		_ = tmp.Close()
		if err := os.Remove(tmp.Name()); err != nil && !os.IsNotExist(err) {
			l.Warn("Failed to remove temporary file when writing state file", "file", tmp.Name(), "error", err)
		}
	}()

	if err := toml.NewEncoder(tmp).Encode(sf); err != nil {
		return fmt.Errorf("could not encode state file: %v", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("could not close temporary file: %v", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("could not rename temporary file: %v", err)
	}
	l.Debug("Wrote source state file", "file", path, "enabled", sf.Enabled)

	return nil
}
