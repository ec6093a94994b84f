package logger

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInfoWritesKeyValueFields(t *testing.T) {
	require.NoError(t, Init(Config{Level: "debug", Format: "json", Output: "console"}))
	var buf bytes.Buffer
	SetOutput(&buf)

	Info("Comment posted", "discussion_id", 7, "user", "alice")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "Comment posted", line["msg"])
	assert.Equal(t, float64(7), line["discussion_id"])
	assert.Equal(t, "alice", line["user"])
}

func TestOddKeyValueGoesToExtra(t *testing.T) {
	require.NoError(t, Init(Config{Level: "info", Format: "json", Output: "console"}))
	var buf bytes.Buffer
	SetOutput(&buf)

	Warn("dangling", "key", 1, "orphan")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "orphan", line["extra"])
}

func TestLevelFiltersDebug(t *testing.T) {
	require.NoError(t, Init(Config{Level: "warn", Format: "text", Output: "console"}))
	var buf bytes.Buffer
	SetOutput(&buf)

	Debug("hidden")
	Info("hidden too")
	assert.Empty(t, buf.String())
}

func TestFileOutputCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "server.log")
	require.NoError(t, Init(Config{Level: "info", Output: "file", FilePath: path, MaxSize: 1}))
	Info("to file")
	assert.FileExists(t, path)
}
