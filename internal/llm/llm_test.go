package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name, in, want string
		ok             bool
	}{
		{"array", `[{"a":1}]`, `[{"a":1}]`, true},
		{"prose around", `Here you go: [1, 2] hope that helps`, `[1, 2]`, true},
		{"fence with prose", "Sure!\n```json\n{\"k\": [1]}\n```\nDone.", `{"k": [1]}`, true},
		{"brackets in strings", `{"t": "a ] b } c", "u": "\"["}`, `{"t": "a ] b } c", "u": "\"["}`, true},
		{"unbalanced then valid", `[oops {"ok": true}`, `{"ok": true}`, true},
		{"truncated", `{"b": [1, 2`, "", false},
		{"none", `nothing here`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractJSON(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	var out []struct {
		ReviewID string   `json:"reviewId"`
		Topics   []string `json:"extractedTopics"`
	}
	require.NoError(t, DecodeJSON("```\n[{\"reviewId\":\"r1\",\"extractedTopics\":[\"slow app\"]}]\n```", &out))
	require.Len(t, out, 1)
	assert.Equal(t, []string{"slow app"}, out[0].Topics)

	assert.ErrorIs(t, DecodeJSON("no json", &out), ErrNoJSON)
}

func TestOllamaGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			w.Write([]byte(`{"models":[{"name":"llama3.1:8b"}]}`))
		case "/api/chat":
			var body struct {
				Model    string              `json:"model"`
				Messages []map[string]string `json:"messages"`
				Options  map[string]any      `json:"options"`
			}
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "llama3.1:8b", body.Model)
			if !assert.Len(t, body.Messages, 2) {
				return
			}
			assert.Equal(t, "system", body.Messages[0]["role"])
			assert.Equal(t, "be strict", body.Messages[0]["content"])
			assert.Equal(t, "user", body.Messages[1]["role"])
			assert.InDelta(t, 0.3, body.Options["temperature"], 1e-9)
			w.Write([]byte(`{"message":{"role":"assistant","content":"[]"}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	p := NewOllamaProvider(Settings{Model: "llama3.1:8b", BaseURL: srv.URL, Temperature: 0.3})
	assert.True(t, p.IsConfigured())

	out, err := p.Generate(context.Background(), "be strict", "hello")
	require.NoError(t, err)
	assert.Equal(t, "[]", out)
}

func TestOllamaNotConfiguredWhenModelMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"models":[{"name":"mistral:7b"}]}`))
	}))
	defer srv.Close()

	assert.False(t, NewOllamaProvider(Settings{Model: "llama3.1:8b", BaseURL: srv.URL}).IsConfigured())
}

func TestOpenAICompatibleGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"{\"ok\":true}"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(Settings{Provider: "groq", Model: "llama-3.1-8b-instant", APIKey: "test-key", BaseURL: srv.URL})
	assert.Equal(t, "groq/llama-3.1-8b-instant", p.Name())
	assert.True(t, p.IsConfigured())

	out, err := p.Generate(context.Background(), "sys", "user")
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, out)
}

func TestCreateProviderRejectsUnknown(t *testing.T) {
	_, err := CreateProvider(Settings{Provider: "mystery"})
	assert.Error(t, err)
}

func TestCreateProviderRequiresKey(t *testing.T) {
	_, err := CreateProvider(Settings{Provider: "groq", Model: "m"})
	assert.Error(t, err)
}

type flakyProvider struct {
	failures    int
	calls       int
	sawDeadline bool
}

func (f *flakyProvider) Name() string       { return "flaky" }
func (f *flakyProvider) IsConfigured() bool { return true }
func (f *flakyProvider) Generate(ctx context.Context, _, _ string) (string, error) {
	f.calls++
	_, f.sawDeadline = ctx.Deadline()
	if f.calls <= f.failures {
		return "", errors.New("temporary")
	}
	return "ok", nil
}

func TestRetryProviderRecovers(t *testing.T) {
	inner := &flakyProvider{failures: 2}
	p := WithRetry(inner, RetryOptions{Attempts: 3, BaseDelay: time.Millisecond, Timeout: time.Second})

	out, err := p.Generate(context.Background(), "", "x")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 3, inner.calls)
	assert.True(t, inner.sawDeadline, "each call carries a timeout")
}

func TestRetryProviderGivesUp(t *testing.T) {
	inner := &flakyProvider{failures: 10}
	p := WithRetry(inner, RetryOptions{Attempts: 3, BaseDelay: time.Millisecond})

	_, err := p.Generate(context.Background(), "", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, 3, inner.calls)
}

func TestRetryProviderHonorsCancel(t *testing.T) {
	inner := &flakyProvider{failures: 10}
	p := WithRetry(inner, RetryOptions{Attempts: 5, BaseDelay: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := p.Generate(ctx, "", "x")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, inner.calls)
}
