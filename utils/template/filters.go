package template

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/flosch/pongo2/v6"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var nonAlnumRunRe = regexp.MustCompile(`[^a-z0-9]+`)

// registerFilters installs snakecase, json, and datetime. "default" is
// already provided by pongo2 itself and is left as-is.
func registerFilters() {
	mustRegister("snakecase", filterSnakecase)
	mustRegister("json", filterJSON)
	mustRegister("datetime", filterDatetime)
}

func mustRegister(name string, fn pongo2.FilterFunction) {
	// ReplaceFilter instead of RegisterFilter so re-initialization (e.g.
	// across package-level tests) doesn't panic on "filter already
	// registered".
	_ = pongo2.ReplaceFilter(name, fn)
}

var caser = cases.Lower(language.Und)

func filterSnakecase(in *pongo2.Value, _ *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	s := caser.String(in.String())
	s = nonAlnumRunRe.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	return pongo2.AsValue(s), nil
}

func filterJSON(in *pongo2.Value, param *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	indent := parseIntParam(param, 0)

	var (
		data []byte
		err  error
	)
	if indent > 0 {
		data, err = json.MarshalIndent(in.Interface(), "", strings.Repeat(" ", indent))
	} else {
		data, err = json.Marshal(in.Interface())
	}
	if err != nil {
		return nil, &pongo2.Error{Sender: "filter:json", OrigError: err}
	}
	return pongo2.AsValue(string(data)), nil
}

// namedFormats maps the spec's named formats to Go reference-time
// layouts; month/weekday names are always English, matching the Go
// standard library's time.Format (no locale parameter is accepted).
var namedFormats = map[string]string{
	"short":  "1/2/06",
	"medium": "Jan 2, 2006",
	"long":   "January 2, 2006",
	"full":   "Monday, January 2, 2006",
}

func filterDatetime(in *pongo2.Value, param *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	t, err := coerceTime(in.Interface())
	if err != nil {
		return nil, &pongo2.Error{Sender: "filter:datetime", OrigError: err}
	}

	format := "medium"
	if param != nil && !param.IsNil() {
		format = param.String()
	}

	layout, named := namedFormats[format]
	if !named {
		layout = cldrToGoLayout(format)
	}
	return pongo2.AsValue(t.Format(layout)), nil
}

func coerceTime(v interface{}) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, nil
			}
		}
	}
	return time.Time{}, &strconvError{value: v}
}

type strconvError struct{ value interface{} }

func (e *strconvError) Error() string {
	return "datetime filter: cannot parse value as a date/time"
}

// cldrToGoLayout translates a minimal, common subset of CLDR date
// pattern letters into a Go reference-time layout string.
func cldrToGoLayout(pattern string) string {
	replacer := strings.NewReplacer(
		"yyyy", "2006",
		"yy", "06",
		"MMMM", "January",
		"MMM", "Jan",
		"MM", "01",
		"M", "1",
		"dd", "02",
		"d", "2",
		"EEEE", "Monday",
		"EEE", "Mon",
		"HH", "15",
		"hh", "03",
		"h", "3",
		"mm", "04",
		"ss", "05",
		"a", "PM",
	)
	return replacer.Replace(pattern)
}
