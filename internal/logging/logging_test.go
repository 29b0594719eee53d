package logging

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericbosch/kettle-logbuffer/internal/logbuffer"
)

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"":      slog.LevelInfo,
		"DEBUG": slog.LevelDebug,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestNewHandler_Formats(t *testing.T) {
	var out bytes.Buffer
	h, err := NewHandler(Config{Format: "json", Writer: &out})
	require.NoError(t, err)
	slog.New(h).Info("hello", "k", 1)
	assert.Contains(t, out.String(), `"msg":"hello"`)

	_, err = NewHandler(Config{Format: "xml"})
	assert.Error(t, err)
}

func TestKettleLevel(t *testing.T) {
	assert.Equal(t, logbuffer.LevelError, KettleLevel(slog.LevelError))
	assert.Equal(t, logbuffer.LevelMinimal, KettleLevel(slog.LevelWarn))
	assert.Equal(t, logbuffer.LevelBasic, KettleLevel(slog.LevelInfo))
	assert.Equal(t, logbuffer.LevelDebug, KettleLevel(slog.LevelDebug))
	assert.Equal(t, logbuffer.LevelRowlevel, KettleLevel(slog.LevelDebug-4))
}

func TestBufferHandler_WritesIntoBuffer(t *testing.T) {
	buf := logbuffer.NewBuffer(10)
	logger := slog.New(NewBufferHandler(buf, "host", "logbuf-host", slog.LevelInfo))

	logger.Debug("hidden")
	logger.With("component", "server").WithGroup("req").Warn("slow request", "ms", 250)

	lines := buf.Snapshot()
	require.Len(t, lines, 1)
	ev := lines[0].Event
	assert.Equal(t, "slow request component=server req.ms=250", ev.Message)
	assert.Equal(t, "host", ev.ChannelID)
	assert.Equal(t, "logbuf-host", ev.Subject)
	assert.Equal(t, logbuffer.LevelMinimal, ev.Level)
	assert.NotZero(t, ev.TimeStamp)
}

func TestTee(t *testing.T) {
	var out bytes.Buffer
	text, err := NewHandler(Config{Level: "error", Writer: &out})
	require.NoError(t, err)
	buf := logbuffer.NewBuffer(10)

	logger := slog.New(Tee(text, NewBufferHandler(buf, "", "host", slog.LevelDebug)))
	logger.Info("only in buffer")
	logger.Error("both")

	assert.NotContains(t, out.String(), "only in buffer")
	assert.Contains(t, out.String(), "both")
	assert.Equal(t, 2, buf.Size())
}
