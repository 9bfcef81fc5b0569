package logger_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"codeberg.org/mutker/envirod/internal/errors"
	"codeberg.org/mutker/envirod/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorWithCode(t *testing.T) {
	logger.SetLogLevel(logger.DebugLevel)

	var buf bytes.Buffer
	log := logger.New(&buf).With("agent")

	log.ErrorWithCode(errors.New().New(errors.ErrConnect)).Msg("cycle skipped")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "connect_failed", entry["error_code"])
	assert.Equal(t, "agent", entry["component"])
	assert.Equal(t, "cycle skipped", entry["message"])
	assert.Equal(t, "error", entry["level"])
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want logger.LogLevel
	}{
		{"debug", logger.DebugLevel},
		{"info", logger.InfoLevel},
		{"warning", logger.WarnLevel},
		{"error", logger.ErrorLevel},
		{"", logger.InfoLevel},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, logger.ParseLevel(tt.in), tt.in)
	}
}
