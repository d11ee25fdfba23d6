package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventWritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	l, err := New("info", "json", &buf)
	require.NoError(t, err)

	l.With(Fields{"tick": 40}).Event("fine", "s-1", "Fine: 3000c deducted")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "fine", line["event"])
	assert.Equal(t, "s-1", line["session"])
	assert.Equal(t, float64(40), line["tick"])
	assert.Equal(t, "Fine: 3000c deducted", line["msg"])
}

func TestLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	l, err := New("info", "text", &buf)
	require.NoError(t, err)

	l.Debug("hidden")
	assert.Empty(t, buf.String())
}

func TestNewRejectsUnknownSettings(t *testing.T) {
	_, err := New("loud", "text", &bytes.Buffer{})
	assert.Error(t, err)

	_, err = New("info", "xml", &bytes.Buffer{})
	assert.Error(t, err)
}
