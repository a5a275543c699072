package stealth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

func TestNormalize_FillsDefaults(t *testing.T) {
	p := Normalize(schemas.Persona{})
	assert.Equal(t, schemas.DefaultPersona.UserAgent, p.UserAgent)
	assert.Equal(t, "Asia/Tokyo", p.Timezone)
	assert.Equal(t, "ja-JP", p.Locale)
	assert.Equal(t, int64(1366), p.Width)
	assert.Equal(t, "ja-JP,ja;q=0.9,en-US;q=0.8,en;q=0.7", p.AcceptLanguage)
}

func TestNormalize_KeepsExplicitValues(t *testing.T) {
	in := schemas.Persona{
		UserAgent: "UA/1.0",
		Languages: []string{"en-GB"},
		Width:     800,
		Height:    600,
		Timezone:  "Europe/London",
	}
	p := Normalize(in)
	assert.Equal(t, "UA/1.0", p.UserAgent)
	assert.Equal(t, "en-GB", p.Locale)
	assert.Equal(t, "en-GB", p.AcceptLanguage)
	assert.Equal(t, int64(800), p.Width)
	assert.Equal(t, "Europe/London", p.Timezone)
}

func TestScript_EmbedsPersona(t *testing.T) {
	script, err := Script(schemas.DefaultPersona)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(script, "const FP_PERSONA = {"))
	assert.Contains(t, script, `"timezoneId":"Asia/Tokyo"`)
	assert.Contains(t, script, "webdriver")
}

func TestApply_BuildsTasks(t *testing.T) {
	tasks := Apply(schemas.Persona{}, zaptest.NewLogger(t))
	assert.Len(t, tasks, 7)
}
