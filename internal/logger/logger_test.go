package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Writer: &buf, Format: "json", Level: slog.LevelInfo})

	log.Info("run complete", "written", 3)

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "run complete", record["msg"])
	assert.Equal(t, "INFO", record["level"])
	assert.EqualValues(t, 3, record["written"])
}

func TestNew_PrettyNoColor(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Writer: &buf, NoColor: true})

	log.With("run_id", "abc").Warn("file failed", "file", "a b.dcm")

	line := buf.String()
	assert.Contains(t, line, "WRN file failed")
	assert.Contains(t, line, "run_id=abc")
	assert.Contains(t, line, `file="a b.dcm"`)
	assert.NotContains(t, line, "\033[")
}

func TestPrettyHandler_Level(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Writer: &buf, Level: slog.LevelWarn, NoColor: true})

	log.Info("hidden")
	log.Debug("hidden")
	log.Error("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "ERR shown")
}

func TestPrettyHandler_Group(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewPrettyHandler(&buf, nil, false)).WithGroup("table")

	log.Info("loaded", "rows", 2)
	assert.Contains(t, buf.String(), "table.rows=2")
}

func TestPrettyHandler_ConcurrentWrites(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Writer: &buf, NoColor: true})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			log.Info("tick", "n", n)
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 8)
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Writer: &buf, NoColor: true})

	log.WithError(errors.New("boom")).Error("write failed")
	assert.Contains(t, buf.String(), "error=boom")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestDiscard(t *testing.T) {
	log := Discard()
	log.Error("nothing")
	assert.False(t, log.Enabled(context.Background(), slog.LevelError))
}
