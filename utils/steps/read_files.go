// Package steps holds the built-in step implementations: one file per
// step type, each registering itself into the process-wide step
// registry via init().
package steps

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/recipexec/engine/utils/fileset"
	"github.com/recipexec/engine/utils/fileutil"
	"github.com/recipexec/engine/utils/rcontext"
	"github.com/recipexec/engine/utils/rerrors"
	"github.com/recipexec/engine/utils/scraper"
	"github.com/recipexec/engine/utils/step"
	"github.com/recipexec/engine/utils/template"
)

func init() {
	step.Global().Register("read_files", newReadFiles)
}

type readFilesConfig struct {
	Path       json.RawMessage `json:"path"`
	ContentKey string          `json:"content_key"`
	MergeMode  string          `json:"merge_mode"`
	Optional   bool            `json:"optional"`
}

type readFilesStep struct {
	cfg readFilesConfig
}

func newReadFiles(raw json.RawMessage) (step.Step, error) {
	var cfg readFilesConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, rerrors.Wrap(rerrors.ConfigInvalid, err, "read_files: invalid config")
	}
	if cfg.ContentKey == "" {
		return nil, rerrors.New(rerrors.ConfigInvalid, "read_files: \"content_key\" is required")
	}
	switch cfg.MergeMode {
	case "", "concat":
		cfg.MergeMode = "concat"
	case "dict":
	default:
		return nil, rerrors.New(rerrors.ConfigInvalid, "read_files: unknown merge_mode %q", cfg.MergeMode)
	}
	return &readFilesStep{cfg: cfg}, nil
}

func (s *readFilesStep) Execute(_ context.Context, rc *rcontext.Context) error {
	rawPaths, err := renderPathField(s.cfg.Path, rc)
	if err != nil {
		return err
	}

	var entries []string // source identifiers (resolved paths, directory entries, or URLs)
	for _, p := range rawPaths {
		resolved, err := expandPath(p)
		if err != nil {
			// A missing path surfaces here as a stat failure; defer to
			// readOne below so the optional flag governs whether that's
			// fatal, rather than duplicating that decision here.
			entries = append(entries, p)
			continue
		}
		entries = append(entries, resolved...)
	}

	stems := make([]string, 0, len(entries))
	contents := make([]string, 0, len(entries))

	for _, src := range entries {
		content, err := readOne(src)
		if err != nil {
			if s.cfg.Optional {
				continue
			}
			return err
		}
		stems = append(stems, stemOf(src))
		contents = append(contents, content)
	}

	var result interface{}
	switch s.cfg.MergeMode {
	case "dict":
		dict := make(map[string]interface{}, len(stems))
		for i, stem := range stems {
			dict[stem] = contents[i]
		}
		result = dict
	default:
		result = strings.Join(contents, "\n")
	}

	rc.Set(s.cfg.ContentKey, result)
	return nil
}

// renderPathField accepts path as either a single rendered string or a
// list of strings, per §4.5's "string | string[]"; a single rendered
// string may itself be a comma-separated list.
func renderPathField(raw json.RawMessage, rc *rcontext.Context) ([]string, error) {
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		rendered, err := template.Render(single, rc.AsDict())
		if err != nil {
			return nil, err
		}
		parts := strings.Split(rendered, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				out = append(out, p)
			}
		}
		return out, nil
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, rerrors.New(rerrors.ConfigInvalid, "read_files: \"path\" must be a string or a list of strings")
	}
	out := make([]string, 0, len(list))
	for _, p := range list {
		rendered, err := template.Render(p, rc.AsDict())
		if err != nil {
			return nil, err
		}
		out = append(out, rendered)
	}
	return out, nil
}

// expandPath resolves one path entry into one or more readable sources:
// a URL passes through unchanged, a directory expands to every file
// fileset.Walk finds under it, and a plain file path passes through
// after fileutil.ExpandPath has expanded "~" and environment variables
// and made it absolute (so recipes can reference home-relative paths
// the same way a shell would).
func expandPath(p string) ([]string, error) {
	if strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") {
		return []string{p}, nil
	}

	p, err := fileutil.ExpandPath(p)
	if err != nil {
		return []string{p}, err
	}

	info, err := os.Stat(p)
	if err != nil {
		return []string{p}, err
	}
	if !info.IsDir() {
		return []string{p}, nil
	}

	files, err := fileset.Walk(p)
	if err != nil {
		return nil, rerrors.Wrap(rerrors.IOFailure, err, "failed to walk directory %q", p)
	}
	return files, nil
}

func readOne(src string) (string, error) {
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		text, err := scraper.FetchText(src)
		if err != nil {
			return "", err
		}
		return text, nil
	}

	data, err := os.ReadFile(src)
	if err != nil {
		return "", rerrors.Wrap(rerrors.IOFailure, err, "failed to read %q", src)
	}
	return string(data), nil
}

func stemOf(src string) string {
	base := filepath.Base(src)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
