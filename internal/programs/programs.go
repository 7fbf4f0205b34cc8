// Package programs resolves plan jobs to the external fetcher programs on disk.
// The registry is an optional INI file with one section per job name. Jobs
// without a section fall back to the script name next to the scripts directory,
// run under the default interpreter.
package programs

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ideacorpus/harvester/internal/constants"
	"github.com/ubuntu/decorate"
	"gopkg.in/ini.v1"
)

// ErrInvalidRegistry is returned when the registry file exists but cannot be parsed.
var ErrInvalidRegistry = errors.New("invalid program registry")

// Program is the resolved executable for one job.
type Program struct {
	Path        string
	Interpreter string
	WorkDir     string
}

// Command is what the runner executes: the binary name and the argv prefix
// that precedes the fetcher flags.
type Command struct {
	Name string
	Args []string
	Dir  string
}

// Registry maps job names to program overrides.
type Registry struct {
	overrides  map[string]Program
	scriptsDir string

	log *slog.Logger
}

// Load reads the registry file at path. A missing file is not an error: every
// job then resolves to its defaults under scriptsDir.
func Load(l *slog.Logger, path, scriptsDir string) (r Registry, err error) {
	defer decorate.OnError(&err, "could not load program registry")

	r = Registry{overrides: make(map[string]Program), scriptsDir: scriptsDir, log: l}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		l.Debug("No program registry file, using defaults", "file", path)
		return r, nil
	}

	cfg, err := ini.Load(path)
	if err != nil {
		return Registry{}, fmt.Errorf("%w: %v", ErrInvalidRegistry, err)
	}

	for _, section := range cfg.Sections() {
		if section.Name() == ini.DefaultSection {
			continue
		}

		p := Program{
			Path:        section.Key("path").String(),
			Interpreter: section.Key("interpreter").String(),
			WorkDir:     section.Key("workdir").String(),
		}
		if p.Path == "" && p.Interpreter == "" && p.WorkDir == "" {
			l.Warn("Program registry section is empty, ignoring", "section", section.Name())
			continue
		}

		r.overrides[section.Name()] = p
		l.Debug("Registered program override", "job", section.Name(), "path", p.Path)
	}

	return r, nil
}

// Resolve returns the command to execute for a job. script is the program name
// from the plan, used when the job has no override.
func (r Registry) Resolve(job, script string) Command {
	p, ok := r.overrides[job]
	if !ok {
		p = Program{}
	}

	if p.Path == "" {
		p.Path = filepath.Join(r.scriptsDir, script)
	}
	if p.Interpreter == "" && strings.HasSuffix(p.Path, ".py") {
		p.Interpreter = constants.DefaultInterpreter
	}

	if p.Interpreter == "" {
		return Command{Name: p.Path, Dir: p.WorkDir}
	}
	return Command{Name: p.Interpreter, Args: []string{p.Path}, Dir: p.WorkDir}
}
