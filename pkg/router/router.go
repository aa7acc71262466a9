// Package router maps caller-supplied model selectors to a provider kind
// and a concrete upstream model name. The table is static configuration:
// loaded once at startup, read-only afterwards, safe for concurrent reads.
// Adding a model means adding a table row, never touching adapter code.
package router

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Kind identifies which provider adapter serves a route.
type Kind string

const (
	KindOpenAI    Kind = "openai"
	KindAnthropic Kind = "anthropic"
	KindGemini    Kind = "gemini"
)

// ErrUnknownModel is returned for selectors absent from the table.
var ErrUnknownModel = errors.New("router: unknown model")

// Route is the resolved target for one selector.
type Route struct {
	// Provider selects the adapter.
	Provider Kind `yaml:"provider"`
	// Model is the concrete upstream model name sent on the wire.
	Model string `yaml:"model"`
	// KeyPool names the API key pool to draw from. Defaults to the
	// provider kind; DeepSeek shares the OpenAI adapter but has its own
	// pool.
	KeyPool string `yaml:"key_pool,omitempty"`
	// BaseURL overrides the adapter's default endpoint when set.
	BaseURL string `yaml:"base_url,omitempty"`
}

// Table resolves selectors to routes.
type Table struct {
	routes map[string]Route
}

// DefaultTable returns the built-in selector table.
func DefaultTable() *Table {
	return &Table{routes: map[string]Route{
		"gpt-4":            {Provider: KindOpenAI, Model: "gpt-4"},
		"gpt-4o":           {Provider: KindOpenAI, Model: "gpt-4o"},
		"gpt-4o-mini":      {Provider: KindOpenAI, Model: "gpt-4o-mini"},
		"gpt-o3-mini":      {Provider: KindOpenAI, Model: "o3-mini"},
		"gpt-o3-mini-high": {Provider: KindOpenAI, Model: "o3-mini-high"},
		"deepseek": {
			Provider: KindOpenAI,
			Model:    "deepseek-chat",
			KeyPool:  "deepseek",
			BaseURL:  "https://api.deepseek.com",
		},
		"gemini": {Provider: KindGemini, Model: "gemini-2.0-flash"},
		"claude": {Provider: KindAnthropic, Model: "claude-3-7-sonnet-latest"},
	}}
}

// NewTable builds a table from an explicit route map.
func NewTable(routes map[string]Route) (*Table, error) {
	for selector, r := range routes {
		if err := validateRoute(selector, r); err != nil {
			return nil, err
		}
	}
	// Copy so the caller's map cannot mutate the table afterwards.
	copied := make(map[string]Route, len(routes))
	for k, v := range routes {
		copied[k] = v
	}
	return &Table{routes: copied}, nil
}

// LoadTable reads a YAML route table from path. The file layout is a
// mapping of selector to route:
//
//	gpt-4o:
//	  provider: openai
//	  model: gpt-4o
//	deepseek:
//	  provider: openai
//	  model: deepseek-chat
//	  key_pool: deepseek
//	  base_url: https://api.deepseek.com
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("router: read table: %w", err)
	}
	var routes map[string]Route
	if err := yaml.Unmarshal(data, &routes); err != nil {
		return nil, fmt.Errorf("router: parse table: %w", err)
	}
	return NewTable(routes)
}

func validateRoute(selector string, r Route) error {
	switch r.Provider {
	case KindOpenAI, KindAnthropic, KindGemini:
	default:
		return fmt.Errorf("router: selector %q: unknown provider %q", selector, r.Provider)
	}
	if r.Model == "" {
		return fmt.Errorf("router: selector %q: missing model", selector)
	}
	return nil
}

// Resolve maps a selector to its route, or ErrUnknownModel. Unmapped
// selectors are rejected before any upstream call is attempted.
func (t *Table) Resolve(selector string) (Route, error) {
	r, ok := t.routes[selector]
	if !ok {
		return Route{}, fmt.Errorf("%w: %q", ErrUnknownModel, selector)
	}
	if r.KeyPool == "" {
		r.KeyPool = string(r.Provider)
	}
	return r, nil
}

// Selectors returns the accepted selector names, for logging at startup.
func (t *Table) Selectors() []string {
	out := make([]string, 0, len(t.routes))
	for s := range t.routes {
		out = append(out, s)
	}
	return out
}
