package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"memoir/internal/domain"
	domainllm "memoir/internal/domain/services/llm"
)

// geminiGenerator generates text with Google Gemini
type geminiGenerator struct {
	client *genai.Client
	model  string
}

// NewGeminiGenerator creates a Gemini-backed generator
func NewGeminiGenerator(ctx context.Context, apiKey, model string) (domainllm.TextGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable not set")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &geminiGenerator{client: client, model: model}, nil
}

func (g *geminiGenerator) Name() string {
	return "gemini"
}

func (g *geminiGenerator) Generate(ctx context.Context, req *domainllm.GenerationRequest) (string, error) {
	prompt, err := BuildPrompt(req)
	if err != nil {
		return "", &domain.GenerationError{Message: err.Error()}
	}

	temperature := float32(prompt.Temperature)
	genConfig := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(prompt.System, genai.RoleUser),
		Temperature:       &temperature,
		MaxOutputTokens:   int32(prompt.MaxTokens),
	}
	// Extraction tasks answer in JSON
	if req.Task == domainllm.TaskThemeExtraction || req.Task == domainllm.TaskFactExtraction {
		genConfig.ResponseMIMEType = "application/json"
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromText(prompt.User, genai.RoleUser)},
		genConfig)
	if err != nil {
		return "", classifyError(g.Name(), err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", &domain.GenerationError{Message: "gemini returned no text", Transient: true}
	}
	return text, nil
}
