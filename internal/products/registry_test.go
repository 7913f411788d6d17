package products

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoir/internal/domain"
)

func TestNewRegistryLoadsEmbeddedProducts(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)

	resolved, err := r.Resolve("life_story", "")
	require.NoError(t, err)
	assert.Equal(t, "memoir", resolved.Definition.ID, "default definition")
	assert.Equal(t, "life_story@2026.1/memoir", resolved.ConfigVersion())
	require.NotNil(t, resolved.Template("early_years"))
	assert.Contains(t, resolved.Template("early_years").Tags, "childhood")
	assert.False(t, resolved.Definition.AutoUpdate)

	themes, err := r.Resolve("life_story", "themes")
	require.NoError(t, err)
	assert.True(t, themes.Definition.AutoUpdate)

	voices, err := r.Resolve("life_story", "voices")
	require.NoError(t, err)
	assert.Equal(t, []string{"private"}, voices.Definition.ExcludeTags)
}

func TestResolveUnknown(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)

	_, err = r.Resolve("nope", "")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = r.Resolve("life_story", "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLoadRejectsInvalidProducts(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "unknown style",
			yaml: `
products:
  - id: p
    version: "1"
    name: P
    projections:
      - id: d
        name: D
        style: poetic
`,
		},
		{
			name: "duplicate section ids",
			yaml: `
products:
  - id: p
    version: "1"
    name: P
    projections:
      - id: d
        name: D
        style: thematic
        sections:
          - {id: a, title: A}
          - {id: a, title: B}
`,
		},
		{
			name: "unknown question reference",
			yaml: `
products:
  - id: p
    version: "1"
    name: P
    projections:
      - id: d
        name: D
        style: questions
        sections:
          - {id: a, title: A, question_ids: [missing]}
`,
		},
		{
			name: "missing version",
			yaml: `
products:
  - id: p
    name: P
    projections:
      - {id: d, name: D, style: freeform}
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Registry{products: map[string]*Product{}}
			assert.Error(t, r.Load([]byte(tt.yaml)))
			assert.Empty(t, r.ListProducts())
		})
	}
}

func TestLoadDirOverridesEmbedded(t *testing.T) {
	dir := t.TempDir()
	override := `
products:
  - id: life_story
    version: "2027.0"
    name: Life Story
    projections:
      - {id: short, name: Short, style: freeform, default: true}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "life_story.yaml"), []byte(override), 0o644))

	r, err := NewRegistry()
	require.NoError(t, err)
	require.NoError(t, r.LoadDir(dir))

	resolved, err := r.Resolve("life_story", "")
	require.NoError(t, err)
	assert.Equal(t, "2027.0", resolved.Product.Version)
	assert.Equal(t, "short", resolved.Definition.ID)
}
