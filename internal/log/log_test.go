package log

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(LevelInfo)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(LevelInfo)
	})
	return &buf
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		" DEBUG ": LevelDebug,
		"warn":    LevelWarn,
		"warning": LevelWarn,
		"error":   LevelError,
		"info":    LevelInfo,
		"":        LevelInfo,
		"verbose": LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestLevelFiltersDebug(t *testing.T) {
	buf := captureOutput(t)

	Debug("hidden")
	assert.NotContains(t, buf.String(), "hidden")

	SetLevel(LevelDebug)
	Debug("shown")
	assert.Contains(t, buf.String(), "msg=shown")
}

func TestDefaultAddsComponent(t *testing.T) {
	buf := captureOutput(t)

	Default("scheduler").Info("armed", "count", 3)
	out := buf.String()
	assert.Contains(t, out, "component=scheduler")
	assert.Contains(t, out, "count=3")

	buf.Reset()
	Default("").Warn("plain")
	assert.NotContains(t, buf.String(), "component=")
}

func TestErrorCarriesErr(t *testing.T) {
	buf := captureOutput(t)

	Default("web").Error("request failed", errors.New("boom"), "path", "/api")
	out := buf.String()
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, "err=boom")
	assert.Contains(t, out, "component=web")
}

func TestOrNop(t *testing.T) {
	buf := captureOutput(t)

	l := OrNop(nil)
	l.Info("dropped")
	l.Error("dropped", errors.New("x"))
	assert.Empty(t, buf.String())

	d := Default("x")
	assert.Equal(t, d, OrNop(d))
}
