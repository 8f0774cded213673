package auth_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/quillhub/blog-auth"
)

func TestSlogLogger_ExpandsRichErrors(t *testing.T) {
	var buf bytes.Buffer
	logger := auth.NewSlogLoggerTo(&buf, "debug", "json").Named("jwt")

	logger.Warn("request rejected", "path", "/api/posts", "error", auth.ErrTokenExpired)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "request rejected", entry["msg"])
	assert.Equal(t, "jwt", entry["component"])
	assert.Equal(t, "/api/posts", entry["path"])
	assert.Equal(t, auth.TextCodeTokenExpired, entry["text_code"])
	assert.Equal(t, float64(401), entry["error_code"])
}

func TestSlogLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := auth.NewSlogLoggerTo(&buf, "warn", "text")

	logger.Debug("hidden")
	logger.Info("hidden")
	logger.Error("shown", "k", "v")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "msg=shown")
	assert.Contains(t, out, "k=v")
	assert.Equal(t, 1, strings.Count(out, "\n"))
}

func TestNopLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		auth.NopLogger().Error("discarded", "error", auth.ErrForbidden)
	})
}
