// Package prompts holds the answer-generation templates. Defaults are
// compiled in; a TOML file may override any of them.
package prompts

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Fixed user-facing strings.
const (
	DefaultMetaResponse = "I'm an assistant that answers questions using excerpts from the newsletter archive."
	DefaultRefusal      = "I couldn't find anything about that in the newsletters."
	DefaultUnavailable  = "Sorry, the answer service is unavailable right now. Please try again later."
)

// Placeholders substituted by SystemPrompt.
const (
	PlaceholderContext      = "{context}"
	PlaceholderRefusal      = "{refusal}"
	PlaceholderMetaResponse = "{meta_response}"
)

//nolint:lll // prompt text is kept on long lines
const defaultSystem = `You answer questions strictly from the newsletter excerpts below. Each excerpt starts with its title in square brackets.

Rules:
- Use only the excerpts. Never invent facts, quotes, dates or opinions that are not in them.
- Quote or closely paraphrase the excerpts, and mention the newsletter title you drew from.
- If the excerpts do not answer the question, reply with exactly: "{refusal}"
- If the question is about you, who you are or what you can do, reply with exactly: "{meta_response}"
- Keep the answer concise and in plain prose.

Excerpts:
{context}`

// Templates is the full set of generation strings.
type Templates struct {
	System       string `toml:"system"`
	Refusal      string `toml:"refusal"`
	MetaResponse string `toml:"meta_response"`
	Unavailable  string `toml:"unavailable"`
}

// Defaults returns the compiled-in templates.
func Defaults() Templates {
	return Templates{
		System:       defaultSystem,
		Refusal:      DefaultRefusal,
		MetaResponse: DefaultMetaResponse,
		Unavailable:  DefaultUnavailable,
	}
}

// Load reads overrides from path on top of the defaults. An empty path or a
// missing file yields the defaults; a malformed file is an error.
func Load(path string) (Templates, error) {
	t := Defaults()
	if path == "" {
		return t, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return t, nil
	}
	if err != nil {
		return t, fmt.Errorf("read prompts file: %w", err)
	}

	var override Templates
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&override); err != nil {
		return t, fmt.Errorf("parse prompts file %s: %w", path, err)
	}

	t.merge(override)
	if !strings.Contains(t.System, PlaceholderContext) {
		return Defaults(), fmt.Errorf("prompts file %s: system template must contain %s", path, PlaceholderContext)
	}
	return t, nil
}

func (t *Templates) merge(o Templates) {
	if s := strings.TrimSpace(o.System); s != "" {
		t.System = s
	}
	if s := strings.TrimSpace(o.Refusal); s != "" {
		t.Refusal = s
	}
	if s := strings.TrimSpace(o.MetaResponse); s != "" {
		t.MetaResponse = s
	}
	if s := strings.TrimSpace(o.Unavailable); s != "" {
		t.Unavailable = s
	}
}

// SystemPrompt renders the system template around the retrieved context.
// Substitution is single-pass, so placeholder text inside context is left as is.
func (t Templates) SystemPrompt(context string) string {
	r := strings.NewReplacer(
		PlaceholderRefusal, t.Refusal,
		PlaceholderMetaResponse, t.MetaResponse,
		PlaceholderContext, context,
	)
	return r.Replace(t.System)
}
