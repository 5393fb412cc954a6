package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
)

// GroqBaseURL is the OpenAI-compatible endpoint used when provider is "groq".
const GroqBaseURL = "https://api.groq.com/openai/v1"

// OpenAIProvider talks to OpenAI or any OpenAI-compatible endpoint.
type OpenAIProvider struct {
	model       string
	apiKey      string
	label       string
	maxTokens   int
	temperature float32
	client      *openai.Client
}

// NewOpenAIProvider creates a provider for OpenAI-compatible APIs. Provider
// "groq" defaults the base URL to Groq.
func NewOpenAIProvider(s Settings) *OpenAIProvider {
	s = s.withDefaults()
	cfg := openai.DefaultConfig(s.APIKey)
	label := "openai"
	if strings.EqualFold(s.Provider, "groq") {
		cfg.BaseURL = GroqBaseURL
		label = "groq"
	}
	if s.BaseURL != "" {
		cfg.BaseURL = s.BaseURL
	}
	return &OpenAIProvider{
		model:       s.Model,
		apiKey:      s.APIKey,
		label:       label,
		maxTokens:   s.MaxTokens,
		temperature: float32(s.Temperature),
		client:      openai.NewClientWithConfig(cfg),
	}
}

// Name identifies the provider in logs.
func (o *OpenAIProvider) Name() string { return o.label + "/" + o.model }

// IsConfigured checks if the API key is set.
func (o *OpenAIProvider) IsConfigured() bool { return o.apiKey != "" }

// Generate runs one chat completion.
func (o *OpenAIProvider) Generate(ctx context.Context, system, prompt string) (string, error) {
	var messages []openai.ChatCompletionMessage
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    messages,
		MaxTokens:   o.maxTokens,
		Temperature: o.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("%s API error: %w", o.label, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in %s response", o.label)
	}
	return resp.Choices[0].Message.Content, nil
}

// AnthropicProvider talks to the Anthropic Messages API.
type AnthropicProvider struct {
	model       string
	apiKey      string
	maxTokens   int64
	temperature float64
	client      anthropic.Client
}

// NewAnthropicProvider creates an Anthropic provider.
func NewAnthropicProvider(s Settings) *AnthropicProvider {
	s = s.withDefaults()
	opts := []option.RequestOption{option.WithAPIKey(s.APIKey)}
	if s.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(s.BaseURL))
	}
	return &AnthropicProvider{
		model:       s.Model,
		apiKey:      s.APIKey,
		maxTokens:   int64(s.MaxTokens),
		temperature: s.Temperature,
		client:      anthropic.NewClient(opts...),
	}
}

// Name identifies the provider in logs.
func (a *AnthropicProvider) Name() string { return "anthropic/" + a.model }

// IsConfigured checks if the API key is set.
func (a *AnthropicProvider) IsConfigured() bool { return a.apiKey != "" }

// Generate sends one message and concatenates the text blocks of the reply.
func (a *AnthropicProvider) Generate(ctx context.Context, system, prompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(a.model),
		MaxTokens:   a.maxTokens,
		Temperature: anthropic.Float(a.temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic API error: %w", err)
	}

	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}
	return content.String(), nil
}

// GeminiProvider talks to the Gemini API.
type GeminiProvider struct {
	model       string
	apiKey      string
	maxTokens   int32
	temperature float32
	client      *genai.Client
}

// NewGeminiProvider creates a Gemini provider.
func NewGeminiProvider(ctx context.Context, s Settings) (*GeminiProvider, error) {
	s = s.withDefaults()
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  s.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client error: %w", err)
	}
	return &GeminiProvider{
		model:       s.Model,
		apiKey:      s.APIKey,
		maxTokens:   int32(s.MaxTokens),
		temperature: float32(s.Temperature),
		client:      client,
	}, nil
}

// Name identifies the provider in logs.
func (g *GeminiProvider) Name() string { return "gemini/" + g.model }

// IsConfigured checks if the API key is set.
func (g *GeminiProvider) IsConfigured() bool { return g.apiKey != "" }

// Generate runs one content generation call.
func (g *GeminiProvider) Generate(ctx context.Context, system, prompt string) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(g.temperature),
		MaxOutputTokens: g.maxTokens,
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("gemini API error: %w", err)
	}
	return resp.Text(), nil
}
