package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup(t *testing.T) {
	t.Run("rejects unknown level", func(t *testing.T) {
		assert.Error(t, Setup(LogConfig{Level: "loud"}))
	})

	t.Run("writes json to a file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "run.log")
		require.NoError(t, Setup(LogConfig{Level: "info", Format: "json", Output: path}))
		t.Cleanup(func() { _ = Setup(DefaultConfig()) })

		l := WithComponent("matcher")
		l.Info().Msg("hello")

		data, err := os.ReadFile(path)
		require.NoError(t, err)

		var entry map[string]any
		require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &entry))
		assert.Equal(t, "matcher", entry["component"])
		assert.Equal(t, "hello", entry["message"])
	})
}

func TestFieldHelpers(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	l := WithInvoice(WithRunID(base, "run-1"), "supplier", "42")
	l.Warn().Msg("candidate skipped")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "run-1", entry["run_id"])
	assert.Equal(t, "supplier", entry["invoice_type"])
	assert.Equal(t, "42", entry["invoice_id"])
}
