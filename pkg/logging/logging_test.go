package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupWriter_JSON(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var buf bytes.Buffer
	require.NoError(t, SetupWriter(&buf, "warn", "json"))

	log.Info().Msg("hidden")
	log.Warn().Str("event_id", "e1").Msg("shown")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, "e1", line["event_id"])
	assert.Equal(t, "shown", line["message"])
}

func TestSetupWriter_Text(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var buf bytes.Buffer
	require.NoError(t, SetupWriter(&buf, "DEBUG", "text"))

	log.Debug().Msg("hello")
	assert.Contains(t, buf.String(), "hello")
	assert.Contains(t, buf.String(), "DBG")
}

func TestSetupWriter_BadLevel(t *testing.T) {
	assert.Error(t, SetupWriter(&bytes.Buffer{}, "loud", "json"))
}
