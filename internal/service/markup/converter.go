package markup

import (
	"fmt"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/russross/blackfriday/v2"
)

// Converter turns edited HTML into stored markdown and stored markdown into
// exported HTML. Both directions go through the sanitizer.
type Converter struct {
	sanitizer *HTMLSanitizer
	toMD      *md.Converter
}

// NewConverter creates a converter
func NewConverter() *Converter {
	return &Converter{
		sanitizer: NewHTMLSanitizer(),
		toMD:      md.NewConverter("", true, nil),
	}
}

// HTMLToMarkdown sanitizes html and converts it to markdown
func (c *Converter) HTMLToMarkdown(html string) (string, error) {
	markdown, err := c.toMD.ConvertString(c.sanitizer.Sanitize(html))
	if err != nil {
		return "", fmt.Errorf("failed to convert HTML to markdown: %w", err)
	}
	return strings.TrimSpace(markdown), nil
}

// MarkdownToHTML renders markdown and sanitizes the result
func (c *Converter) MarkdownToHTML(markdown string) string {
	renderer := blackfriday.NewHTMLRenderer(blackfriday.HTMLRendererParameters{
		Flags: blackfriday.CommonHTMLFlags,
	})
	out := blackfriday.Run([]byte(markdown),
		blackfriday.WithRenderer(renderer),
		blackfriday.WithExtensions(blackfriday.CommonExtensions|blackfriday.AutoHeadingIDs),
	)
	return c.sanitizer.Sanitize(string(out))
}
