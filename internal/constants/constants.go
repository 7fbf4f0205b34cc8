// Package constants defines the constants used across harvester, and utility
// functions to get the default configuration and cache paths.
package constants

import (
	"log/slog"
	"os"
	"path/filepath"
)

const (
	// CmdName is the name of the command line tool.
	CmdName = "harvester"

	// DefaultAppFolder is the name of the default root folder.
	DefaultAppFolder = "harvester"

	// DefaultLogLevel is the default log level selected without any verbosity flags.
	DefaultLogLevel = slog.LevelWarn

	// DefaultStartDate is the start of the full collection window.
	DefaultStartDate = "2018-01-01"

	// DefaultEndDate is the end of the full collection window.
	DefaultEndDate = "2023-12-01"

	// PilotStartDate is the start of the reduced pilot window.
	PilotStartDate = "2023-01-01"

	// PilotEndDate is the end of the reduced pilot window.
	PilotEndDate = "2023-02-01"

	// DefaultMaxResultsPerMonth is the per-month cap passed to the preprint fetcher.
	DefaultMaxResultsPerMonth = 100

	// DefaultPodcastCount is the total number of podcasts requested from the podcast fetcher.
	DefaultPodcastCount = 500

	// DefaultInterpreter runs the external fetcher scripts.
	DefaultInterpreter = "python3"

	// SourceFilenameSuffix is the suffix of the per-source state files.
	SourceFilenameSuffix = "-enabled.toml"

	// ManifestExt is the extension of run manifest files.
	ManifestExt = ".json"

	// MaxManifests is the number of run manifests kept in the cache directory.
	MaxManifests = 50

	// ProgramsFileName is the base name of the fetcher program registry file.
	ProgramsFileName = "programs.ini"

	// PlanFileName is the base name of the plan override file.
	PlanFileName = "plan.yaml"
)

// Version is the version of the application.
var Version = "Dev"

type options struct {
	baseDir func() (string, error)
}

type option func(*options)

// DefaultConfigPath is the default path to the configuration directory.
func DefaultConfigPath(opts ...option) string {
	o := options{baseDir: os.UserConfigDir}
	for _, opt := range opts {
		opt(&o)
	}

	return filepath.Join(baseDir(o.baseDir), DefaultAppFolder)
}

// DefaultCachePath is the default path to the cache directory.
func DefaultCachePath(opts ...option) string {
	o := options{baseDir: os.UserCacheDir}
	for _, opt := range opts {
		opt(&o)
	}

	return filepath.Join(baseDir(o.baseDir), DefaultAppFolder)
}

// baseDir is a helper to handle the case where the baseDir function errors, returning an empty string instead.
func baseDir(baseDirFunc func() (string, error)) string {
	dir, err := baseDirFunc()
	if err != nil {
		return ""
	}
	return dir
}
