package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	l := newLogger()

	formatter, ok := l.Formatter.(*logrus.TextFormatter)
	require.True(t, ok)
	assert.Equal(t, time.RFC3339Nano, formatter.TimestampFormat)
	assert.True(t, formatter.FullTimestamp)
	assert.Equal(t, os.Stderr, l.Out)
	assert.Equal(t, logrus.InfoLevel, l.GetLevel())
}

func TestWithLogger(t *testing.T) {
	custom := logrus.NewEntry(logrus.New()).WithField("skill", "pdf")
	ctx := WithLogger(context.Background(), custom)

	entry := G(ctx)
	assert.Equal(t, "pdf", entry.Data["skill"])
}

func TestGetLoggerFallback(t *testing.T) {
	assert.Equal(t, L.Logger, G(context.Background()).Logger)
	//nolint:staticcheck // nil context is tolerated
	assert.Equal(t, L, G(nil))
}

func TestConfigure(t *testing.T) {
	original := L.Logger.GetLevel()
	originalFormatter := L.Logger.Formatter
	defer func() {
		L.Logger.SetLevel(original)
		L.Logger.Formatter = originalFormatter
		L.Logger.SetOutput(os.Stderr)
	}()

	require.NoError(t, Configure("debug", "json"))
	assert.Equal(t, logrus.DebugLevel, L.Logger.GetLevel())

	var buf bytes.Buffer
	SetLogOutput(&buf)
	G(context.Background()).WithField("target", "claude-project").Debug("copied")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "copied", record["message"])
	assert.Equal(t, "debug", record["logLevel"])
	assert.Equal(t, "claude-project", record["target"])
	assert.Contains(t, record, "timestamp")

	assert.Error(t, Configure("loud", "fmt"))
}
