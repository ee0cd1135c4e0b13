package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		out = append(out, rec)
	}
	return out
}

func TestZeroLogger_Levels(t *testing.T) {
	os.Unsetenv(DebugEnv)

	var buf bytes.Buffer
	l := NewWithWriter(&buf, zerolog.InfoLevel)

	l.Debug("hidden %d", 1)
	l.Info("info %d", 2)
	l.Warn("warn %s", "three")
	l.Error("error")

	recs := decodeLines(t, &buf)
	require.Len(t, recs, 3)
	assert.Equal(t, "info", recs[0]["level"])
	assert.Equal(t, "info 2", recs[0]["message"])
	assert.Equal(t, "warn", recs[1]["level"])
	assert.Equal(t, "warn three", recs[1]["message"])
	assert.Equal(t, "error", recs[2]["level"])
}

func TestZeroLogger_DebugEnv(t *testing.T) {
	t.Setenv(DebugEnv, "1")

	var buf bytes.Buffer
	l := NewWithWriter(&buf, zerolog.WarnLevel)
	l.Debug("visible")

	recs := decodeLines(t, &buf)
	require.Len(t, recs, 1)
	assert.Equal(t, "debug", recs[0]["level"])
}

func TestZeroLogger_WithComponent(t *testing.T) {
	os.Unsetenv(DebugEnv)

	var buf bytes.Buffer
	l := NewWithWriter(&buf, zerolog.InfoLevel).With("reconcile")
	l.Info("merged %d entities", 4)

	recs := decodeLines(t, &buf)
	require.Len(t, recs, 1)
	assert.Equal(t, "reconcile", recs[0]["component"])
	assert.Equal(t, "merged 4 entities", recs[0]["message"])
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", Config{}, false},
		{"console stdout", Config{Level: "debug", Format: "console", Output: "stdout"}, false},
		{"discard", Config{Output: "discard"}, false},
		{"uppercase level", Config{Level: "WARN", Output: "discard"}, false},
		{"bad level", Config{Level: "loud"}, true},
		{"bad output", Config{Output: "syslog"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, l)
		})
	}
}

func TestNoop(t *testing.T) {
	l := Noop()
	l.Debug("x")
	l.Info("x")
	l.Warn("x")
	l.Error("x")
	assert.Equal(t, l, l.With("anything"))
}

func TestBufferLogger(t *testing.T) {
	l := NewBufferLogger()
	l.Info("hello %s", "world")
	l.With("scheduler").Warn("slow cycle")

	msgs := l.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, LogMessage{Level: "info", Message: "hello world"}, msgs[0])
	assert.Equal(t, LogMessage{Level: "warn", Component: "scheduler", Message: "slow cycle"}, msgs[1])
	assert.True(t, l.HasLevel("warn"))
	assert.False(t, l.HasLevel("error"))
	assert.True(t, l.Contains("slow"))

	l.Clear()
	assert.Empty(t, l.Messages())
}

func TestBufferLogger_Concurrent(t *testing.T) {
	l := NewBufferLogger()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l.Debug("n=%d", i)
		}(i)
	}
	wg.Wait()
	assert.Len(t, l.Messages(), 20)
}

func TestDefault(t *testing.T) {
	orig := Default()
	defer SetDefault(orig)

	buf := NewBufferLogger()
	SetDefault(buf)
	assert.Equal(t, buf, Default())
	assert.Equal(t, buf, OrDefault(nil))

	other := Noop()
	assert.Equal(t, other, OrDefault(other))
}
