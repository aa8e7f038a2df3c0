// Package markdown renders message bodies to HTML with a small
// allow-list: bold, italics, and line breaks. Everything else is
// escaped, so attacker-controlled markup never reaches the page.
package markdown

import (
	"html"
	"regexp"
	"strings"
)

var (
	boldPattern   = regexp.MustCompile(`\*\*(.*?)\*\*`)
	italicPattern = regexp.MustCompile(`\*(.*?)\*`)
)

// Render is a pure transform from message text to safe HTML. Bold runs
// before italic so ** pairs are not consumed as empty emphasis.
func Render(text string) string {
	out := html.EscapeString(text)
	out = boldPattern.ReplaceAllString(out, "<strong>$1</strong>")
	out = italicPattern.ReplaceAllString(out, "<em>$1</em>")
	out = strings.ReplaceAll(out, "\n", "<br />")
	return out
}
