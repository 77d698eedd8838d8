package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// bufferedLogger builds a logger from the production config that writes
// JSON to buf instead of stdout
func bufferedLogger(t *testing.T, level string) (*zap.Logger, *bytes.Buffer) {
	t.Helper()
	config, err := Config("production", level)
	require.NoError(t, err)

	var buf bytes.Buffer
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(config.EncoderConfig),
		zapcore.AddSync(&buf),
		config.Level,
	)
	return zap.New(core), &buf
}

// Property: production log lines are JSON carrying level, timestamp and message
func TestProperty_ProductionLogsAreStructured(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("every entry decodes with its message and fields", prop.ForAll(
		func(message string, orderID string) bool {
			logger, buf := bufferedLogger(t, "debug")
			logger.Info(message, zap.String("order_id", orderID))
			_ = logger.Sync()

			var entry map[string]interface{}
			if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
				return false
			}
			if _, ok := entry["timestamp"]; !ok {
				return false
			}
			return entry["level"] == "info" && entry["msg"] == message && entry["order_id"] == orderID
		},
		gen.AnyString(),
		gen.Identifier(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestConfigLevels(t *testing.T) {
	prod, err := Config("production", "")
	require.NoError(t, err)
	assert.Equal(t, zapcore.InfoLevel, prod.Level.Level())
	assert.Equal(t, "json", prod.Encoding)
	assert.Equal(t, []string{"stdout"}, prod.OutputPaths)

	dev, err := Config("development", "")
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, dev.Level.Level())

	quiet, err := Config("development", "warn")
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, quiet.Level.Level())

	_, err = Config("production", "chatty")
	assert.Error(t, err)
}

func TestLevelFiltersEntries(t *testing.T) {
	logger, buf := bufferedLogger(t, "warn")
	logger.Info("cart updated")
	logger.Warn("payment provider slow")
	_ = logger.Sync()

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)
	assert.Contains(t, string(lines[0]), "payment provider slow")
}

func TestNew(t *testing.T) {
	logger, err := New("production", "info")
	require.NoError(t, err)
	require.NotNil(t, logger)

	_, err = New("production", "nope")
	assert.Error(t, err)
}
