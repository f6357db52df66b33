package common

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewLoggerWithOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithOutput("info", &buf)

	logger.Info().Str("component", "feed").Msg("calendar loaded")
	out := buf.String()
	assert.Contains(t, out, `"component":"feed"`)
	assert.Contains(t, out, "calendar loaded")

	buf.Reset()
	logger.Debug().Msg("below the configured level")
	assert.Empty(t, buf.String())
}

func TestNewLoggerWithOutput_UnknownLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithOutput("chatty", &buf)

	logger.Info().Msg("visible")
	assert.Contains(t, buf.String(), "visible")
}

func TestNewSilentLogger(t *testing.T) {
	logger := NewSilentLogger()
	// must not panic or write anywhere
	logger.Error().Msg("dropped")
}
