package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetLevel(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	SetLevel("DEBUG")
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
	SetLevel("warning")
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())
	SetLevel("nonsense")
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestWatermillLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	wl := NewWatermillLogger(zerolog.New(&buf)).With(watermill.LogFields{"topic": "faucet.claims"})

	wl.Error("publish failed", errors.New("boom"), watermill.LogFields{"message_uuid": "m1"})

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "error", line["level"])
	assert.Equal(t, "publish failed", line["message"])
	assert.Equal(t, "boom", line["error"])
	assert.Equal(t, "faucet.claims", line["topic"])
	assert.Equal(t, "m1", line["message_uuid"])
	assert.Equal(t, "watermill", line["component"])
}
