package logging

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSanitizeKVsRedactsSecrets(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := &Logger{SugaredLogger: zap.New(core).Sugar()}

	l.Info("login",
		"username", "sara",
		"password", "hunter2",
		"refresh_token", "abc",
		"body", map[string]interface{}{"api_key": "k", "n": 1},
		"raw", "eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiJ1MSJ9.sig",
	)

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "sara", fields["username"])
	assert.Equal(t, "[REDACTED]", fields["password"])
	assert.Equal(t, "[REDACTED]", fields["refresh_token"])
	assert.Equal(t, "[REDACTED]", fields["raw"])
	body := fields["body"].(map[string]interface{})
	assert.Equal(t, "[REDACTED]", body["api_key"])
}

func TestNewRejectsUnknownMode(t *testing.T) {
	_, err := New("verbose")
	require.Error(t, err)

	l, err := New("production")
	require.NoError(t, err)
	require.NotNil(t, l)
}

func TestDailyFileRotatesAndPrunes(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "app-2025-01-01.log")
	require.NoError(t, os.WriteFile(stale, []byte("old\n"), 0o644))
	keep := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(keep, []byte("x"), 0o644))

	now := time.Date(2025, 3, 1, 23, 59, 0, 0, time.UTC)
	f, err := openDailyFile(dir, 30, func() time.Time { return now })
	require.NoError(t, err)
	defer f.Close()

	_, err = f.Write([]byte("first\n"))
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = f.Write([]byte("second\n"))
	require.NoError(t, err)
	require.NoError(t, f.Sync())

	first, err := os.ReadFile(filepath.Join(dir, "app-2025-03-01.log"))
	require.NoError(t, err)
	assert.Equal(t, "first\n", string(first))
	second, err := os.ReadFile(filepath.Join(dir, "app-2025-03-02.log"))
	require.NoError(t, err)
	assert.Equal(t, "second\n", string(second))

	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(keep)
	assert.NoError(t, err)
}
