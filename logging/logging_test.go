package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
)

func TestInitJSON(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var buf bytes.Buffer
	InitWithWriter("warn", "json", &buf)

	log.Info().Msg("hidden")
	log.Warn().Str("topic", "moveit").Msg("visible")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"topic":"moveit"`)
	assert.Contains(t, out, `"level":"warn"`)
}

func TestInitUnknownLevel(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var buf bytes.Buffer
	InitWithWriter("loud", "json", &buf)
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}
