package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriter_Fields(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewWithWriter(&buf, "debug")
	require.NoError(t, err)

	l.With(String("component", "hybrid")).Info("epoch done",
		Int("epoch", 3),
		Float("loss", 0.25),
		Bool("ok", true),
		Duration("duration_ms", 1500*time.Millisecond),
		Error(errors.New("boom")),
	)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "epoch done", entry["message"])
	assert.Equal(t, "hybrid", entry["component"])
	assert.Equal(t, 3.0, entry["epoch"])
	assert.Equal(t, 0.25, entry["loss"])
	assert.Equal(t, true, entry["ok"])
	assert.Equal(t, 1500.0, entry["duration_ms"])
	assert.Equal(t, "boom", entry["error"])
}

func TestNewWithWriter_Level(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewWithWriter(&buf, "warn")
	require.NoError(t, err)

	l.Info("dropped")
	assert.Zero(t, buf.Len())
	l.Warn("kept")
	assert.Contains(t, buf.String(), "kept")

	_, err = NewWithWriter(&buf, "loud")
	assert.Error(t, err)
}

func TestNop(t *testing.T) {
	l := Nop()
	assert.NotPanics(t, func() {
		l.Error("ignored", String("k", "v"))
	})
}
