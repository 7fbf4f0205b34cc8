package cli_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/ideacorpus/harvester/internal/cli"
	"github.com/ideacorpus/harvester/internal/constants"
	"github.com/stretchr/testify/assert"
)

// hacky way to allow us to reset the default logger.
var defaultLogger = *slog.Default()

func TestSetVerbosity(t *testing.T) {
	testCases := []struct {
		name    string
		pattern []int
	}{
		{
			name:    "none",
			pattern: []int{0},
		},
		{
			name:    "info",
			pattern: []int{1},
		},
		{
			name:    "debug",
			pattern: []int{2},
		},
		{
			name:    "info none",
			pattern: []int{1, 0},
		},
		{
			name:    "info debug none",
			pattern: []int{1, 2, 0},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			slog.SetDefault(&defaultLogger)

			for _, p := range tc.pattern {
				cli.SetVerbosity(p)

				switch p {
				case 0:
					assert.True(t, slog.Default().Enabled(context.Background(), constants.DefaultLogLevel))
					assert.False(t, slog.Default().Enabled(context.Background(), constants.DefaultLogLevel-1))
				case 1:
					assert.True(t, slog.Default().Enabled(context.Background(), slog.LevelInfo))
					assert.False(t, slog.Default().Enabled(context.Background(), slog.LevelInfo-1))
				default:
					assert.True(t, slog.Default().Enabled(context.Background(), slog.LevelDebug))
					assert.False(t, slog.Default().Enabled(context.Background(), slog.LevelDebug-1))
				}
			}
		})
	}
}

func TestSetSlog(t *testing.T) {
	testCases := []struct {
		name    string
		level   int
		jsonLog bool
	}{
		{
			name:  "none",
			level: 0,
		},
		{
			name:  "info",
			level: 1,
		},
		{
			name:    "info json",
			level:   1,
			jsonLog: true,
		},
		{
			name:    "debug json",
			level:   2,
			jsonLog: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			slog.SetDefault(&defaultLogger)

			cli.SetSlog(tc.level, tc.jsonLog)

			switch tc.level {
			case 0:
				assert.True(t, slog.Default().Enabled(context.Background(), constants.DefaultLogLevel))
				assert.False(t, slog.Default().Enabled(context.Background(), constants.DefaultLogLevel-1))
			case 1:
				assert.True(t, slog.Default().Enabled(context.Background(), slog.LevelInfo))
				assert.False(t, slog.Default().Enabled(context.Background(), slog.LevelInfo-1))
			default:
				assert.True(t, slog.Default().Enabled(context.Background(), slog.LevelDebug))
				assert.False(t, slog.Default().Enabled(context.Background(), slog.LevelDebug-1))
			}
		})
	}
}
