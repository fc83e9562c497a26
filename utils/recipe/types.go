// Package recipe holds the recipe file's data model: the JSON document
// shape a recipe parses into, plus the small value types (FileSpec, MCP
// server descriptors) that steps pass around through the Context.
package recipe

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/recipexec/engine/utils/rerrors"
)

// Step is one entry in a Recipe's step list: a registered type name plus
// its not-yet-validated config. Individual step constructors decode
// Config into their own typed config struct.
type Step struct {
	Type   string          `json:"type"`
	Config json.RawMessage `json:"config"`
}

// Recipe is the parsed form of a recipe JSON document.
type Recipe struct {
	Steps   []Step   `json:"steps"`
	EnvVars []string `json:"env_vars,omitempty"`
}

// Parse decodes a recipe from raw JSON bytes.
func Parse(data []byte) (*Recipe, error) {
	var r Recipe
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, rerrors.Wrap(rerrors.ConfigInvalid, err, "failed to parse recipe JSON")
	}
	for i, s := range r.Steps {
		if s.Type == "" {
			return nil, rerrors.New(rerrors.ConfigInvalid, "step %d is missing a \"type\"", i)
		}
	}
	return &r, nil
}

// FileSpec represents one file to write or one file a structured LLM
// response produced. Content that is an object/array is serialized as
// indented JSON at write time; a string is written verbatim.
type FileSpec struct {
	Path    string      `json:"path"`
	Content interface{} `json:"content"`
}

// RenderedContent returns the bytes that should be written for this
// FileSpec: the content as-is if it's a string, or indented JSON
// (UTF-8, two-space indent) otherwise. Uses an Encoder with
// SetEscapeHTML(false) so "<", ">", and "&" round-trip as themselves
// instead of json.Marshal's default HTML escaping of them as
// u003c-style Unicode escape sequences,
// per the ensure_ascii=false requirement.
func (f FileSpec) RenderedContent() ([]byte, error) {
	switch c := f.Content.(type) {
	case string:
		return []byte(c), nil
	case nil:
		return []byte{}, nil
	default:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		if err := enc.Encode(c); err != nil {
			return nil, fmt.Errorf("failed to serialize content for %q: %w", f.Path, err)
		}
		// json.Encoder.Encode always appends a trailing newline;
		// MarshalIndent does not, so trim it to keep RenderedContent's
		// output byte-identical to before for content with no special
		// characters.
		return bytes.TrimRight(buf.Bytes(), "\n"), nil
	}
}

// MCPServerDescriptor is either the HTTP/SSE form (URL [+ headers]) or
// the stdio form (command/args[/env/working_dir]). Exactly one of
// URL or Command must be set.
type MCPServerDescriptor struct {
	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`

	Command    string            `json:"command,omitempty"`
	Args       []string          `json:"args,omitempty"`
	Env        map[string]string `json:"env,omitempty"`
	WorkingDir string            `json:"working_dir,omitempty"`
}

// IsStdio reports whether this descriptor uses the stdio transport.
func (d MCPServerDescriptor) IsStdio() bool {
	return d.Command != ""
}

// Validate enforces "exactly one of url or command must be present".
func (d MCPServerDescriptor) Validate() error {
	hasURL := d.URL != ""
	hasCmd := d.Command != ""
	if hasURL == hasCmd {
		return rerrors.New(rerrors.ConfigInvalid, "mcp server descriptor must set exactly one of \"url\" or \"command\"")
	}
	return nil
}
