// Package template renders a single string against a recipe Context
// using a Liquid/Django-style template language: variable substitution,
// if/elsif/else/endif, for, raw/endraw, and a small set of custom
// filters (snakecase, json, datetime, default).
//
// Engine: flosch/pongo2/v6, a Django-template-family engine that already
// ships if/for/filter support and a "default" filter; raw-block handling
// is implemented here rather than delegated to the engine so that nested
// rendering (§4.2) can guarantee raw spans are never touched by any
// render pass, including the first.
package template

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/flosch/pongo2/v6"
	"github.com/recipexec/engine/utils/rerrors"
)

var rawBlockRe = regexp.MustCompile(`(?s)\{%-?\s*raw\s*-?%\}(.*?)\{%-?\s*endraw\s*-?%\}`)

const placeholderFmt = "\x00RAW%d\x00"

func hasTemplateTags(s string) bool {
	return strings.Contains(s, "{{") || strings.Contains(s, "{%")
}

const maxNestedPasses = 50

func init() {
	registerFilters()
}

// Render renders text once against context's variables.
func Render(text string, vars map[string]interface{}) (string, error) {
	return renderOnePass(text, vars)
}

// RenderNested repeatedly re-renders text against vars while the output
// keeps changing and still contains un-rendered tags outside raw blocks,
// up to a defensive pass cap. Used by set_context's nested_render option.
func RenderNested(text string, vars map[string]interface{}) (string, error) {
	current := text
	for pass := 0; pass < maxNestedPasses; pass++ {
		stripped, raws := extractRaw(current)
		if !hasTemplateTags(stripped) {
			break
		}

		rendered, err := compileAndExec(stripped, vars)
		if err != nil {
			return "", err
		}
		// Put raw spans back inside raw tags so the next pass skips them too.
		for i, r := range raws {
			rendered = strings.ReplaceAll(rendered, fmt.Sprintf(placeholderFmt, i), "{% raw %}"+r+"{% endraw %}")
		}

		if rendered == current {
			break
		}
		current = rendered
	}
	stripped, raws := extractRaw(current)
	return restoreRaw(stripped, raws), nil
}

func renderOnePass(text string, vars map[string]interface{}) (string, error) {
	stripped, raws := extractRaw(text)
	rendered, err := compileAndExec(stripped, vars)
	if err != nil {
		return "", err
	}
	return restoreRaw(rendered, raws), nil
}

func compileAndExec(text string, vars map[string]interface{}) (string, error) {
	// pongo2 spells the else-if branch "elif"; translate Liquid's "elsif".
	text = regexp.MustCompile(`\{%(-?)\s*elsif\b`).ReplaceAllString(text, "{%${1} elif")
	tpl, err := pongo2.FromString(text)
	if err != nil {
		return "", rerrors.Wrap(rerrors.TemplateError, err, "failed to parse template: %s", truncate(text))
	}
	out, err := tpl.Execute(pongo2.Context(vars))
	if err != nil {
		return "", rerrors.Wrap(rerrors.TemplateError, err, "failed to render template: %s", truncate(text))
	}
	return out, nil
}

func extractRaw(text string) (string, []string) {
	var raws []string
	stripped := rawBlockRe.ReplaceAllStringFunc(text, func(m string) string {
		sub := rawBlockRe.FindStringSubmatch(m)
		raws = append(raws, sub[1])
		return fmt.Sprintf(placeholderFmt, len(raws)-1)
	})
	return stripped, raws
}

func restoreRaw(text string, raws []string) string {
	for i, r := range raws {
		text = strings.ReplaceAll(text, fmt.Sprintf(placeholderFmt, i), r)
	}
	return text
}

func truncate(s string) string {
	const max = 200
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}

// FileExistsFunc exposes a "file_exists(path)" helper to condition
// expressions, per spec §4.5 (conditional). It is registered as a
// template variable (a callable), not a filter, since it takes a path
// rather than operating on the piped value.
func FileExistsFunc(exists func(path string) bool) func(*pongo2.Value) *pongo2.Value {
	return func(p *pongo2.Value) *pongo2.Value {
		return pongo2.AsValue(exists(p.String()))
	}
}

func parseIntParam(param *pongo2.Value, def int) int {
	if param == nil || param.IsNil() {
		return def
	}
	switch v := param.Interface().(type) {
	case int:
		return v
	case float64:
		return int(v)
	case string:
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}
