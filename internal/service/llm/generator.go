package llm

import (
	"context"
	"strings"

	llmprovider "github.com/haowjy/meridian-llm-go"

	"memoir/internal/domain"
	domainllm "memoir/internal/domain/services/llm"
)

const blockTypeText = "text"

// providerGenerator adapts a meridian-llm-go provider to TextGenerator
type providerGenerator struct {
	provider llmprovider.Provider
	model    string
}

// NewProviderGenerator creates a generator backed by a library provider
func NewProviderGenerator(provider llmprovider.Provider, model string) domainllm.TextGenerator {
	return &providerGenerator{
		provider: provider,
		model:    model,
	}
}

// Name returns the provider name
func (g *providerGenerator) Name() string {
	return g.provider.Name().String()
}

// Generate renders the prompt, calls the provider and joins its text blocks
func (g *providerGenerator) Generate(ctx context.Context, req *domainllm.GenerationRequest) (string, error) {
	prompt, err := BuildPrompt(req)
	if err != nil {
		return "", &domain.GenerationError{Message: err.Error()}
	}

	text := prompt.User
	libReq := &llmprovider.GenerateRequest{
		Messages: []llmprovider.Message{
			{
				Role: "user",
				Blocks: []*llmprovider.Block{
					{BlockType: blockTypeText, Sequence: 0, TextContent: &text},
				},
			},
		},
		Model: g.model,
		Params: &llmprovider.RequestParams{
			MaxTokens:   &prompt.MaxTokens,
			Temperature: &prompt.Temperature,
			System:      &prompt.System,
		},
	}

	resp, err := g.provider.GenerateResponse(ctx, libReq)
	if err != nil {
		return "", classifyError(g.Name(), err)
	}

	var out strings.Builder
	for _, block := range resp.Blocks {
		if block == nil || block.BlockType != blockTypeText || block.TextContent == nil {
			continue
		}
		out.WriteString(*block.TextContent)
	}

	result := strings.TrimSpace(out.String())
	if result == "" {
		return "", &domain.GenerationError{Message: g.Name() + " returned no text", Transient: true}
	}
	return result, nil
}
