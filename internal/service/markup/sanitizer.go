// Package markup converts section text between markdown and HTML.
package markup

import (
	"github.com/microcosm-cc/bluemonday"
)

// HTMLSanitizer removes dangerous HTML elements and attributes.
//
// Thread-safe for concurrent use.
type HTMLSanitizer struct {
	policy *bluemonday.Policy
}

// NewHTMLSanitizer creates a sanitizer with a user-generated-content policy:
// common formatting, headings, lists, links and tables survive; scripts,
// event handlers and javascript: URLs do not.
func NewHTMLSanitizer() *HTMLSanitizer {
	return &HTMLSanitizer{policy: bluemonday.UGCPolicy()}
}

// Sanitize returns html with unsafe content removed
func (s *HTMLSanitizer) Sanitize(html string) string {
	return s.policy.Sanitize(html)
}
