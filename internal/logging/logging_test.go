package logging_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sufield/signet/internal/logging"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"chatty":  slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, logging.ParseLevel(in), in)
	}
}

func TestNew_JSONCarriesService(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := logging.New(logging.Config{Level: "info", Format: "json", Output: &buf})
	l.Debug("hidden")
	l.Info("stage finished", "stage", "upload")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "signet", line["service"])
	assert.Equal(t, "upload", line["stage"])
}

func TestOrDiscard(t *testing.T) {
	t.Parallel()
	assert.NotNil(t, logging.OrDiscard(nil))
}
