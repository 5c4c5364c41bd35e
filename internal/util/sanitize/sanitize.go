// Package sanitize cleans user- and agent-supplied strings before they
// are displayed or used as identifiers.
package sanitize

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

// Label sanitizes a node label by removing control characters and
// limiting the length.
func Label(s string, maxLen int) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsControl(r) {
			continue
		}
		if b.Len() >= maxLen {
			break
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

var textPolicy = bluemonday.StrictPolicy()

// AgentText strips all HTML markup from agent-produced text. Agent
// output is rendered into the transcript verbatim, so anything that
// looks like markup must not survive.
func AgentText(s string) string {
	return textPolicy.Sanitize(s)
}

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)
var multiHyphen = regexp.MustCompile(`-+`)

// SpaceID normalizes a space name into a URL- and filesystem-safe slug:
// lowercase, runs of non-alphanumerics collapsed to single hyphens, no
// leading or trailing hyphens. An empty result maps to "default".
func SpaceID(name string) string {
	slug := nonSlugChars.ReplaceAllString(strings.ToLower(name), "-")
	slug = strings.Trim(slug, "-")
	slug = multiHyphen.ReplaceAllString(slug, "-")
	if slug == "" {
		return "default"
	}
	return slug
}
