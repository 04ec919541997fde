package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{
		Level:       "debug",
		Environment: "production",
		ServiceName: "be-plt-approvals",
		Version:     "1.2.3",
		Output:      &buf,
	})

	log.Component("engine").Info().Str("workflow_id", "wf-1").Msg("Workflow created")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "be-plt-approvals", line["service"])
	assert.Equal(t, "1.2.3", line["version"])
	assert.Equal(t, "engine", line["component"])
	assert.Equal(t, "wf-1", line["workflow_id"])
	assert.Equal(t, "Workflow created", line["message"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.InfoLevel, parseLevel(""))
	assert.Equal(t, zerolog.WarnLevel, parseLevel("WARN"))
	assert.Equal(t, zerolog.InfoLevel, parseLevel("chatty"))
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "error", Environment: "production", Output: &buf})

	log.Info().Msg("dropped")

	assert.Zero(t, buf.Len())
}
