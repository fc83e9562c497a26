// Package scraper extracts a web page's visible text content for
// read_files' URL-path support. The teacher's own utils/scraper never
// made it into the retrieved file set despite being in go.mod; this
// rebuilds it against the same dependency (gocolly/colly/v2) that
// go.mod already commits to.
package scraper

import (
	"strings"

	"github.com/gocolly/colly/v2"

	"github.com/recipexec/engine/utils/rerrors"
)

// FetchText visits url and returns its body's visible text,
// whitespace-collapsed. Script/style content is excluded by removing
// those elements before reading text, the same approach goquery users
// take to avoid pulling in JS/CSS source as "content".
func FetchText(url string) (string, error) {
	var text string
	found := false

	c := colly.NewCollector()
	c.OnHTML("body", func(e *colly.HTMLElement) {
		body := e.DOM
		body.Find("script, style, noscript").Remove()
		text = body.Text()
		found = true
	})

	var fetchErr error
	c.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	if err := c.Visit(url); err != nil {
		return "", rerrors.Wrap(rerrors.IOFailure, err, "failed to fetch %q", url)
	}
	c.Wait()
	if fetchErr != nil {
		return "", rerrors.Wrap(rerrors.IOFailure, fetchErr, "failed to fetch %q", url)
	}
	if !found {
		return "", rerrors.New(rerrors.IOFailure, "no <body> content found at %q", url)
	}

	return normalizeWhitespace(text), nil
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
