package router

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTableResolvesKnownSelectors(t *testing.T) {
	table := DefaultTable()

	tests := []struct {
		selector string
		provider Kind
		model    string
		keyPool  string
	}{
		{"gpt-4", KindOpenAI, "gpt-4", "openai"},
		{"gpt-4o", KindOpenAI, "gpt-4o", "openai"},
		{"gpt-4o-mini", KindOpenAI, "gpt-4o-mini", "openai"},
		{"gpt-o3-mini", KindOpenAI, "o3-mini", "openai"},
		{"gpt-o3-mini-high", KindOpenAI, "o3-mini-high", "openai"},
		{"deepseek", KindOpenAI, "deepseek-chat", "deepseek"},
		{"gemini", KindGemini, "gemini-2.0-flash", "gemini"},
		{"claude", KindAnthropic, "claude-3-7-sonnet-latest", "anthropic"},
	}

	for _, tt := range tests {
		t.Run(tt.selector, func(t *testing.T) {
			route, err := table.Resolve(tt.selector)
			require.NoError(t, err)
			assert.Equal(t, tt.provider, route.Provider)
			assert.Equal(t, tt.model, route.Model)
			assert.Equal(t, tt.keyPool, route.KeyPool)
		})
	}
}

func TestResolveUnknownSelector(t *testing.T) {
	table := DefaultTable()

	_, err := table.Resolve("not-a-model")
	require.ErrorIs(t, err, ErrUnknownModel)
}

func TestDeepSeekBaseURLOverride(t *testing.T) {
	route, err := DefaultTable().Resolve("deepseek")
	require.NoError(t, err)
	assert.Equal(t, "https://api.deepseek.com", route.BaseURL)
}

func TestNewTableRejectsBadRoutes(t *testing.T) {
	_, err := NewTable(map[string]Route{
		"bad": {Provider: "nonsense", Model: "x"},
	})
	require.Error(t, err)

	_, err = NewTable(map[string]Route{
		"no-model": {Provider: KindOpenAI},
	})
	require.Error(t, err)
}

func TestLoadTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.yaml")
	yaml := `
gpt-4o:
  provider: openai
  model: gpt-4o
deepseek:
  provider: openai
  model: deepseek-chat
  key_pool: deepseek
  base_url: https://api.deepseek.com
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	table, err := LoadTable(path)
	require.NoError(t, err)

	route, err := table.Resolve("deepseek")
	require.NoError(t, err)
	assert.Equal(t, KindOpenAI, route.Provider)
	assert.Equal(t, "deepseek-chat", route.Model)
	assert.Equal(t, "deepseek", route.KeyPool)
	assert.Equal(t, "https://api.deepseek.com", route.BaseURL)

	// Selectors outside the loaded file are gone.
	_, err = table.Resolve("claude")
	require.ErrorIs(t, err, ErrUnknownModel)
}

func TestLoadTableMissingFile(t *testing.T) {
	_, err := LoadTable(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
