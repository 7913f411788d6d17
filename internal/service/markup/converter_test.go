package markup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTMLToMarkdownStripsScripts(t *testing.T) {
	c := NewConverter()

	out, err := c.HTMLToMarkdown(`<p>She was <strong>born</strong> in Lyon.</p><script>alert(1)</script>`)
	require.NoError(t, err)
	assert.Contains(t, out, "**born**")
	assert.NotContains(t, out, "alert")
}

func TestMarkdownToHTML(t *testing.T) {
	c := NewConverter()

	out := c.MarkdownToHTML("## Early Years\n\nBorn in *Lyon*.\n\n<script>alert(1)</script>")
	assert.Contains(t, out, "<h2")
	assert.Contains(t, out, "Early Years</h2>")
	assert.Contains(t, out, "<em>Lyon</em>")
	assert.NotContains(t, out, "<script>")
}
