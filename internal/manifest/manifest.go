// Package manifest handles run manifest files.
// A manifest records what a single harvest run invoked and how each invocation
// ended. Files are named by the unix timestamp of the run so lexical and
// chronological order agree.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/ideacorpus/harvester/internal/constants"
	"github.com/ideacorpus/harvester/internal/fileutils"
)

var (
	// ErrInvalidExt is returned when a manifest file has an invalid extension.
	ErrInvalidExt = errors.New("invalid manifest file extension")

	// ErrInvalidName is returned when a manifest file has a name that can't be parsed.
	ErrInvalidName = errors.New("invalid manifest file name")
)

// Invocation is the recorded outcome of one fetcher invocation.
type Invocation struct {
	Job        string   `json:"job"`
	Program    string   `json:"program"`
	Args       []string `json:"args"`
	ExitCode   int      `json:"exitCode"`
	DurationMS int64    `json:"durationMs"`
	Skipped    bool     `json:"skipped,omitempty"`
	StderrTail string   `json:"stderrTail,omitempty"`
}

// RunManifest is the content of a manifest file.
type RunManifest struct {
	RunID          string       `json:"runId"`
	Pilot          bool         `json:"pilot"`
	StartDate      string       `json:"startDate"`
	EndDate        string       `json:"endDate"`
	CollectionTime int64        `json:"collectionTime"`
	Invocations    []Invocation `json:"invocations"`
}

// Manifest represents a manifest file on disk.
type Manifest struct {
	Path      string // Path is the path to the manifest file.
	Name      string // Name is the name of the manifest file, including extension.
	TimeStamp int64  // TimeStamp is the timestamp of the run.
}

// New creates a new Manifest object from a path.
// It does not write to the file system, or validate the path.
func New(path string) (Manifest, error) {
	if filepath.Ext(path) != constants.ManifestExt {
		return Manifest{}, ErrInvalidExt
	}

	ts, err := timeStamp(filepath.Base(path))
	if err != nil {
		return Manifest{}, err
	}

	return Manifest{Path: path, Name: filepath.Base(path), TimeStamp: ts}, nil
}

// Read parses the manifest file content.
func (m Manifest) Read() (RunManifest, error) {
	f, err := os.Open(m.Path)
	if err != nil {
		return RunManifest{}, fmt.Errorf("failed to open manifest file: %v", err)
	}
	defer f.Close()

	var rm RunManifest
	if err := fileutils.ParseJSON(f, &rm); err != nil {
		return RunManifest{}, fmt.Errorf("failed to parse manifest file %s: %v", m.Path, err)
	}
	return rm, nil
}

// ReadMap parses the manifest file content without binding it to the
// RunManifest structure, for callers which validate the shape themselves.
func (m Manifest) ReadMap() (map[string]any, error) {
	f, err := os.Open(m.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest file: %v", err)
	}
	defer f.Close()

	var data map[string]any
	if err := fileutils.ParseJSON(f, &data); err != nil {
		return nil, fmt.Errorf("failed to parse manifest file %s: %v", m.Path, err)
	}
	return data, nil
}

// Write writes the run manifest to dir, named by t as a unix timestamp.
// The directory is created if needed.
func Write(rm RunManifest, dir string, t time.Time) (Manifest, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return Manifest{}, fmt.Errorf("failed to create manifest directory: %v", err)
	}

	data, err := json.Marshal(rm)
	if err != nil {
		return Manifest{}, fmt.Errorf("failed to marshal manifest: %v", err)
	}

	path := filepath.Join(dir, strconv.FormatInt(t.Unix(), 10)+constants.ManifestExt)
	if err := fileutils.AtomicWrite(path, data); err != nil {
		return Manifest{}, fmt.Errorf("failed to write manifest: %v", err)
	}

	return Manifest{Path: path, Name: filepath.Base(path), TimeStamp: t.Unix()}, nil
}

// GetAll returns all manifests in a given directory, oldest first.
// Files which do not look like manifests are skipped. A directory which does
// not exist yet holds no manifests.
// Does not traverse subdirectories.
func GetAll(l *slog.Logger, dir string) ([]Manifest, error) {
	manifests := make([]Manifest, 0)

	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		l.Debug("Manifest directory does not exist", "directory", dir)
		return manifests, nil
	}

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("failed to access path: %v", err)
		}

		if d.IsDir() && path != dir {
			return filepath.SkipDir
		}
		if d.IsDir() {
			return nil
		}

		m, err := New(path)
		if errors.Is(err, ErrInvalidExt) || errors.Is(err, ErrInvalidName) {
			l.Info("Skipping non-manifest file", "file", d.Name(), "error", err)
			return nil
		} else if err != nil {
			return fmt.Errorf("failed to create manifest object: %v", err)
		}

		manifests = append(manifests, m)
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(manifests, func(i, j Manifest) int {
		return int(i.TimeStamp - j.TimeStamp)
	})

	return manifests, nil
}

// Latest returns the most recent manifest in dir.
// An empty Manifest is returned when the directory holds none.
func Latest(l *slog.Logger, dir string) (Manifest, error) {
	manifests, err := GetAll(l, dir)
	if err != nil {
		return Manifest{}, err
	}
	if len(manifests) == 0 {
		return Manifest{}, nil
	}
	return manifests[len(manifests)-1], nil
}

// Cleanup removes manifests in a directory, keeping the most recent maxManifests.
// If a file is unable to be removed, then it will be logged, but the function will continue.
func Cleanup(l *slog.Logger, dir string, maxManifests uint32) error {
	if maxManifests > math.MaxInt32 {
		return fmt.Errorf("maxManifests is too large and would result in an overflow: %d", maxManifests)
	}

	manifests, err := GetAll(l, dir)
	if err != nil {
		return err
	}

	if len(manifests) <= int(maxManifests) {
		l.Debug("no manifests to cleanup", "maxManifests", maxManifests, "numManifests", len(manifests))
		return nil
	}

	for _, m := range manifests[:len(manifests)-int(maxManifests)] {
		if err := os.Remove(m.Path); err != nil {
			l.Error("failed to remove manifest", "path", m.Path, "error", err)
		}
	}

	return nil
}

// timeStamp returns an int64 representation of the run time from the manifest file name.
func timeStamp(fileName string) (int64, error) {
	i, err := strconv.ParseInt(strings.TrimSuffix(fileName, filepath.Ext(fileName)), 10, 64)
	if err != nil {
		return i, fmt.Errorf("%w: %v", ErrInvalidName, err)
	}
	return i, nil
}
