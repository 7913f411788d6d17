package llm

import (
	"context"

	"memoir/internal/domain/models/memoir"
)

// Task names a kind of text-generation request.
type Task string

const (
	// TaskNewSection writes a section from scratch
	TaskNewSection Task = "new_section"
	// TaskEvolveSection integrates new material into existing section text
	TaskEvolveSection Task = "evolve_section"
	// TaskThemeExtraction returns JSON {"themes":[{"name","description"}],"summary","emotional_tone"}
	TaskThemeExtraction Task = "theme_extraction"
	// TaskFactExtraction returns JSON {"facts":[{"key","value"}],"events":[{"date","label"}]}
	TaskFactExtraction Task = "fact_extraction"
)

// TextGenerator is the text-generation capability the engine depends on.
// Implementations decide how prose is written; the engine only decides
// what material goes in and where the output is stored.
type TextGenerator interface {
	// Generate returns the generated text. Failures are *domain.GenerationError.
	Generate(ctx context.Context, req *GenerationRequest) (string, error)

	// Name returns the backend name (e.g., "anthropic", "gemini", "lorem")
	Name() string
}

// GenerationRequest carries everything a backend needs for one call.
type GenerationRequest struct {
	Task Task

	ProjectID    string
	SectionTitle string
	Style        memoir.Style
	Length       memoir.Length

	// VoiceGuidance is free-form author direction ("warm, first person")
	VoiceGuidance string

	// ExistingText is the section's current text (evolve only)
	ExistingText string

	// Items are the content items to write from, most relevant first
	Items []memoir.ContentItem

	// Narrative is the project digest; may be nil
	Narrative *memoir.NarrativeContext
}
