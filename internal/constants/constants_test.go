package constants_test

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/ideacorpus/harvester/internal/constants"
	"github.com/stretchr/testify/assert"
)

func TestDefaultConfigPath(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		baseDir func() (string, error)

		want string
	}{
		"Base dir resolves": {
			baseDir: func() (string, error) { return filepath.Join("abc", "def"), nil },
			want:    filepath.Join("abc", "def", constants.DefaultAppFolder),
		},
		"Base dir errors": {
			baseDir: func() (string, error) { return "", fmt.Errorf("error") },
			want:    constants.DefaultAppFolder,
		},
		"Base dir errors with value": {
			baseDir: func() (string, error) { return "abc", fmt.Errorf("error") },
			want:    constants.DefaultAppFolder,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got := constants.DefaultConfigPath(constants.WithBaseDir(tc.baseDir))
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDefaultCachePath(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		baseDir func() (string, error)

		want string
	}{
		"Base dir resolves": {
			baseDir: func() (string, error) { return filepath.Join("def", "abc"), nil },
			want:    filepath.Join("def", "abc", constants.DefaultAppFolder),
		},
		"Base dir errors": {
			baseDir: func() (string, error) { return "", fmt.Errorf("error") },
			want:    constants.DefaultAppFolder,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got := constants.DefaultCachePath(constants.WithBaseDir(tc.baseDir))
			assert.Equal(t, tc.want, got)
		})
	}
}
