package llm

import (
	"fmt"
	"strings"

	"memoir/internal/domain/models/memoir"
	domainllm "memoir/internal/domain/services/llm"
)

// Prompt is a rendered request for a text backend
type Prompt struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float64
}

// maxThemesInContext bounds how much of the narrative context goes into a prompt.
const maxThemesInContext = 8

// BuildPrompt renders a generation request for its task
func BuildPrompt(req *domainllm.GenerationRequest) (*Prompt, error) {
	switch req.Task {
	case domainllm.TaskNewSection:
		return buildSectionPrompt(req), nil
	case domainllm.TaskEvolveSection:
		return buildEvolvePrompt(req), nil
	case domainllm.TaskThemeExtraction:
		return buildThemePrompt(req), nil
	case domainllm.TaskFactExtraction:
		return buildFactPrompt(req), nil
	default:
		return nil, fmt.Errorf("unknown generation task: %s", req.Task)
	}
}

const sectionSystem = `You write sections of a family memoir from raw material contributed by
relatives: transcribed voice recordings, answers to interview questions and photo captions.
Write polished, engaging prose. Only state what the material supports; never invent names,
dates or events. Return the section text only, as markdown paragraphs, without a heading.`

func buildSectionPrompt(req *domainllm.GenerationRequest) *Prompt {
	var b strings.Builder
	fmt.Fprintf(&b, "Section title: %s\n", req.SectionTitle)
	fmt.Fprintf(&b, "Target length: %s\n", lengthGuidance(req.Length))
	if req.VoiceGuidance != "" {
		fmt.Fprintf(&b, "Style guidance: %s\n", req.VoiceGuidance)
	}
	writeNarrative(&b, req.Narrative)
	b.WriteString("\nRaw material:\n")
	writeItems(&b, req.Items)

	return &Prompt{
		System:      sectionSystem,
		User:        b.String(),
		MaxTokens:   maxTokensFor(req.Length),
		Temperature: 0.7,
	}
}

func buildEvolvePrompt(req *domainllm.GenerationRequest) *Prompt {
	var b strings.Builder
	fmt.Fprintf(&b, "Section title: %s\n", req.SectionTitle)
	fmt.Fprintf(&b, "Target length: %s\n", lengthGuidance(req.Length))
	if req.VoiceGuidance != "" {
		fmt.Fprintf(&b, "Style guidance: %s\n", req.VoiceGuidance)
	}
	writeNarrative(&b, req.Narrative)
	b.WriteString("\nCurrent section text:\n")
	b.WriteString(req.ExistingText)
	b.WriteString("\n\nNew material to weave in:\n")
	writeItems(&b, req.Items)
	b.WriteString("\nRewrite the section so the new material is woven in naturally. Keep what the current text says unless the new material corrects it.\n")

	return &Prompt{
		System:      sectionSystem,
		User:        b.String(),
		MaxTokens:   maxTokensFor(req.Length),
		Temperature: 0.6,
	}
}

func buildThemePrompt(req *domainllm.GenerationRequest) *Prompt {
	var b strings.Builder
	b.WriteString("Identify the recurring life themes in the material below.\n")
	if req.Narrative != nil && len(req.Narrative.Themes) > 0 {
		b.WriteString("Themes already identified (reuse these names when they apply): ")
		b.WriteString(strings.Join(themeNames(req.Narrative), ", "))
		b.WriteString("\n")
	}
	b.WriteString("\nMaterial:\n")
	writeItems(&b, req.Items)
	b.WriteString(`
Respond with JSON only:
{"themes":[{"name":"...","description":"..."}],"summary":"one sentence","emotional_tone":"..."}
`)

	return &Prompt{
		System:      "You analyse memoir material and answer with strict JSON.",
		User:        b.String(),
		MaxTokens:   800,
		Temperature: 0.2,
	}
}

func buildFactPrompt(req *domainllm.GenerationRequest) *Prompt {
	var b strings.Builder
	b.WriteString("Extract concrete facts (places, people, occupations) and dated events from the material below.\n")
	b.WriteString("Use short snake_case keys such as birthplace or first_job. Dates as YYYY, YYYY-MM or YYYY-MM-DD.\n")
	b.WriteString("\nMaterial:\n")
	writeItems(&b, req.Items)
	b.WriteString(`
Respond with JSON only:
{"facts":[{"key":"...","value":"..."}],"events":[{"date":"...","label":"..."}]}
`)

	return &Prompt{
		System:      "You analyse memoir material and answer with strict JSON.",
		User:        b.String(),
		MaxTokens:   800,
		Temperature: 0,
	}
}

func writeItems(b *strings.Builder, items []memoir.ContentItem) {
	for i, item := range items {
		fmt.Fprintf(b, "--- item %d (%s, contributor %s, %s)\n", i+1, item.ContentType, item.ContributorID, item.CreatedAt.Format("2006-01-02"))
		if len(item.Tags) > 0 {
			fmt.Fprintf(b, "tags: %s\n", strings.Join(item.Tags, ", "))
		}
		b.WriteString(item.Text())
		b.WriteString("\n")
	}
}

func writeNarrative(b *strings.Builder, nc *memoir.NarrativeContext) {
	if nc == nil {
		return
	}
	if nc.Summary != "" {
		fmt.Fprintf(b, "Story so far: %s\n", nc.Summary)
	}
	if len(nc.Themes) > 0 {
		fmt.Fprintf(b, "Key themes: %s\n", strings.Join(themeNames(nc), ", "))
	}
	if nc.EmotionalTone != "" {
		fmt.Fprintf(b, "Emotional tone: %s\n", nc.EmotionalTone)
	}
}

func themeNames(nc *memoir.NarrativeContext) []string {
	themes := nc.ThemesByStrength()
	if len(themes) > maxThemesInContext {
		themes = themes[:maxThemesInContext]
	}
	names := make([]string, len(themes))
	for i, t := range themes {
		names[i] = t.Name
	}
	return names
}

func lengthGuidance(l memoir.Length) string {
	switch l {
	case memoir.LengthSummary:
		return "brief, one or two paragraphs"
	case memoir.LengthComprehensive:
		return "detailed, as long as the material allows"
	default:
		return "standard, three to five paragraphs"
	}
}

func maxTokensFor(l memoir.Length) int {
	switch l {
	case memoir.LengthSummary:
		return 600
	case memoir.LengthComprehensive:
		return 4000
	default:
		return 1800
	}
}
