package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.WithField("guild_id", "123456789012345678").Info("access denied")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "access denied", entry["msg"])
	assert.Equal(t, "123456789012345678", entry["guild_id"])
	assert.Equal(t, "INFO", entry["level"])
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WarnLevel, &buf)

	logger.Info("hidden")
	assert.Empty(t, buf.String())

	logger.Warn("visible")
	assert.Contains(t, buf.String(), "visible")
}

func TestLogger_WithError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.WithError(assert.AnError).Error("operation failed")
	assert.Contains(t, buf.String(), assert.AnError.Error())

	// nil error is a no-op wrapper
	assert.Equal(t, logger, logger.WithError(nil))
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLogLevel("debug"))
	assert.Equal(t, WarnLevel, ParseLogLevel("WARN"))
	assert.Equal(t, ErrorLevel, ParseLogLevel("error"))
	assert.Equal(t, InfoLevel, ParseLogLevel(""))
	assert.Equal(t, InfoLevel, ParseLogLevel("bogus"))
}

func TestRequestIDContext(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-42")
	assert.Equal(t, "req-42", GetRequestID(ctx))
	assert.Equal(t, "", GetRequestID(context.Background()))
}
