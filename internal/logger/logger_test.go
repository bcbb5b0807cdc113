package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := New("miqae", "debug", "json", &buf)
	require.NoError(t, err)

	log.Debug("hello", "domain", "Customer")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "miqae", record["service"])
	assert.Equal(t, "Customer", record["domain"])
	assert.Equal(t, "DEBUG", record["level"])
}

func TestNewFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	log, err := New("miqae", "warn", "text", &buf)
	require.NoError(t, err)

	log.Info("skipped")
	assert.Empty(t, buf.String())
	log.Warn("kept")
	assert.Contains(t, buf.String(), "msg=kept")
	assert.Contains(t, buf.String(), "service=miqae")
}

func TestNewRejectsBadInput(t *testing.T) {
	_, err := New("miqae", "loud", "text", &bytes.Buffer{})
	assert.Error(t, err)
	_, err = New("miqae", "info", "xml", &bytes.Buffer{})
	assert.Error(t, err)
}
