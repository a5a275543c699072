// internal/observability/logger_test.go
package observability

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/config"
)

func TestInitialize(t *testing.T) {
	t.Run("console logger with colors", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		buf := &zaptest.Buffer{}

		Initialize(config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "TestService",
			Colors:      config.ColorConfig{Info: "green"},
		}, buf)
		GetLogger().Info("This is a test message.")

		output := buf.String()
		assert.Contains(t, output, "INFO")
		assert.Contains(t, output, "This is a test message.")
		assert.Contains(t, output, colorMap["green"])
		assert.Contains(t, output, colorReset)
		assert.Contains(t, output, "TestService.")
	})

	t.Run("json logger", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		buf := &zaptest.Buffer{}

		Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "JSONTest"}, buf)
		GetLogger().Warn("This is a JSON message.", zap.String("key", "value"))

		lines := buf.Lines()
		require.Len(t, lines, 1)
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry), "log output should be valid JSON")
		assert.Equal(t, "WARN", entry["level"])
		assert.Equal(t, "JSONTest", entry["logger"])
		assert.Equal(t, "value", entry["key"])
	})

	t.Run("level below threshold is dropped", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		buf := &zaptest.Buffer{}

		Initialize(config.LoggerConfig{Level: "warn", Format: "json"}, buf)
		GetLogger().Info("quiet")
		assert.Empty(t, buf.Lines())
	})

	t.Run("writes to a rotating log file", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		path := filepath.Join(t.TempDir(), "formpilot.log")

		Initialize(config.LoggerConfig{Level: "debug", Format: "json", LogFile: path, MaxSize: 1}, &zaptest.Buffer{})
		GetLogger().Error("This should go to the file.")
		Sync()

		content, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(content), "This should go to the file.")
	})

	t.Run("initializes only once", func(t *testing.T) {
		ResetForTest()
		t.Cleanup(ResetForTest)
		buf := &zaptest.Buffer{}

		Initialize(config.LoggerConfig{Level: "info", ServiceName: "First"}, buf)
		first := GetLogger()
		Initialize(config.LoggerConfig{Level: "debug", ServiceName: "Second"}, buf)
		second := GetLogger()

		assert.Same(t, first, second)
		second.Info("test")
		assert.Contains(t, buf.String(), "First")
		assert.NotContains(t, buf.String(), "Second")
	})
}

func TestGetLogger_Fallback(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)
	require.NotNil(t, GetLogger())
}

func TestForTarget(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := ForTarget(zap.New(core), schemas.TargetRecord{CompanyName: "Acme", URL: "https://acme.example"})
	logger.Info("processing")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "Acme", fields["company"])
	assert.Equal(t, "https://acme.example", fields["target_url"])
}
