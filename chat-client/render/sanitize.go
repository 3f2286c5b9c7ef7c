package render

import (
	"html"

	"github.com/microcosm-cc/bluemonday"
)

// textPolicy drops every element and keeps only text nodes.
var textPolicy = bluemonday.StrictPolicy()

// StripMarkup parses s as HTML and returns its text content with entities
// decoded, so "<b>hi</b>" becomes "hi" and "&lt;b&gt;" becomes "<b>".
// The result is plain text, not markup; escape it before rendering.
func StripMarkup(s string) string {
	if s == "" {
		return ""
	}
	// bluemonday re-escapes text tokens; undo that so callers get raw text.
	return html.UnescapeString(textPolicy.Sanitize(s))
}
