// Package llm provides chat-completion providers and the plumbing around
// them: retries, pacing and tolerant JSON parsing of model output.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/TobiSchelling/reviewtrends/internal/logging"
)

// Provider is the interface for LLM providers.
type Provider interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
	IsConfigured() bool
	Name() string
}

// Settings configures a provider.
type Settings struct {
	Provider    string
	Model       string
	BaseURL     string
	APIKey      string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

func (s Settings) withDefaults() Settings {
	if s.MaxTokens <= 0 {
		s.MaxTokens = 2000
	}
	if s.Timeout <= 0 {
		s.Timeout = 120 * time.Second
	}
	return s
}

// OllamaProvider is a local Ollama LLM provider.
type OllamaProvider struct {
	Model       string
	BaseURL     string
	MaxTokens   int
	Temperature float64
	client      *http.Client
}

// NewOllamaProvider creates a new Ollama provider.
func NewOllamaProvider(s Settings) *OllamaProvider {
	s = s.withDefaults()
	baseURL := s.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaProvider{
		Model:       s.Model,
		BaseURL:     strings.TrimRight(baseURL, "/"),
		MaxTokens:   s.MaxTokens,
		Temperature: s.Temperature,
		client:      &http.Client{Timeout: s.Timeout},
	}
}

// Name identifies the provider in logs.
func (o *OllamaProvider) Name() string { return "ollama/" + o.Model }

// IsConfigured checks if Ollama is running and the model is available.
func (o *OllamaProvider) IsConfigured() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.BaseURL+"/api/tags", nil)
	if err != nil {
		return false
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	var result struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false
	}

	modelBase := strings.SplitN(o.Model, ":", 2)[0]
	for _, m := range result.Models {
		if strings.Contains(m.Name, modelBase) {
			return true
		}
	}
	logging.Warnf("ollama model %q not found", o.Model)
	return false
}

// Generate sends a system + user prompt to Ollama and returns the reply.
func (o *OllamaProvider) Generate(ctx context.Context, system, prompt string) (string, error) {
	messages := []map[string]string{}
	if system != "" {
		messages = append(messages, map[string]string{"role": "system", "content": system})
	}
	messages = append(messages, map[string]string{"role": "user", "content": prompt})

	body := map[string]any{
		"model":    o.Model,
		"messages": messages,
		"stream":   false,
		"options": map[string]any{
			"num_predict": o.MaxTokens,
			"temperature": o.Temperature,
		},
	}

	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.BaseURL+"/api/chat", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama API error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("ollama API returned %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}

	return result.Message.Content, nil
}

// CreateProvider creates an LLM provider based on configuration.
func CreateProvider(s Settings) (Provider, error) {
	s = s.withDefaults()

	var p Provider
	switch strings.ToLower(s.Provider) {
	case "ollama":
		p = NewOllamaProvider(s)
	case "openai", "groq", "":
		p = NewOpenAIProvider(s)
	case "anthropic":
		p = NewAnthropicProvider(s)
	case "gemini":
		gp, err := NewGeminiProvider(context.Background(), s)
		if err != nil {
			return nil, err
		}
		p = gp
	default:
		return nil, fmt.Errorf("unknown llm provider %q", s.Provider)
	}

	if !p.IsConfigured() {
		return nil, fmt.Errorf("llm provider %s is not configured (check the API key environment variable or that the server is running)", p.Name())
	}
	logging.Infof("using LLM provider %s", p.Name())
	return p, nil
}
