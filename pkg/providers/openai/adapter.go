package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/harunnryd/agronomist/pkg/errorsx"
	"github.com/harunnryd/agronomist/pkg/llm"
	"github.com/harunnryd/agronomist/pkg/resilience"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	GroqBaseURL    = "https://api.groq.com/openai/v1"
)

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = errors.New("openai-compatible provider not configured")

type Adapter struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float64
	MaxTokens   int
	Client      *http.Client
	name        string
}

// NewAdapter targets any OpenAI-compatible chat completions endpoint.
// An empty baseURL means api.openai.com.
func NewAdapter(apiKey, model, baseURL string) *Adapter {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Adapter{
		APIKey:      apiKey,
		Model:       model,
		BaseURL:     strings.TrimRight(baseURL, "/"),
		Temperature: 0.3,
		MaxTokens:   600,
		Client:      &http.Client{Timeout: 60 * time.Second},
		name:        providerName(baseURL),
	}
}

func (a *Adapter) Name() string { return a.name }

func (a *Adapter) Generate(ctx context.Context, input llm.Context) (llm.Response, error) {
	if a.APIKey == "" {
		return llm.Response{}, errorsx.Wrap(resilience.Permanent(ErrNotConfigured), errorsx.ReasonLLMNotConfigured)
	}
	body, err := a.buildRequest(input)
	if err != nil {
		return llm.Response{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL+"/chat/completions", body)
	if err != nil {
		return llm.Response{}, err
	}
	a.applyHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.client().Do(req)
	if err != nil {
		return llm.Response{}, errorsx.Wrap(err, errorsx.ReasonLLMGenerate)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests {
		body, _ := io.ReadAll(resp.Body)
		return llm.Response{}, errorsx.Wrap(resilience.RateLimitError{Provider: a.name, Message: string(body)}, errorsx.ReasonLLMRateLimit)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return llm.Response{}, errorsx.Wrap(resilience.Permanent(fmt.Errorf("%s: unauthorized", a.name)), errorsx.ReasonLLMNotConfigured)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return llm.Response{}, errorsx.Wrap(fmt.Errorf("%s: status %d: %s", a.name, resp.StatusCode, string(body)), errorsx.ReasonLLMGenerate)
	}
	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return llm.Response{}, errorsx.Wrap(err, errorsx.ReasonLLMGenerate)
	}
	return fromProviderFormat(payload)
}

func fromProviderFormat(m map[string]any) (llm.Response, error) {
	choices, _ := m["choices"].([]any)
	if len(choices) == 0 {
		return llm.Response{}, errorsx.Wrap(errors.New("no choices"), errorsx.ReasonEmptyResult)
	}
	first, _ := choices[0].(map[string]any)
	msg, _ := first["message"].(map[string]any)
	content, _ := msg["content"].(string)
	resp := llm.Response{Text: strings.TrimSpace(content)}
	if reason, _ := first["finish_reason"].(string); reason != "" {
		resp.FinishReason = reason
	}
	if usage, ok := m["usage"].(map[string]any); ok {
		resp.Usage = llm.Usage{
			PromptTokens:     intValue(usage["prompt_tokens"]),
			CompletionTokens: intValue(usage["completion_tokens"]),
			TotalTokens:      intValue(usage["total_tokens"]),
		}
	}
	return resp, nil
}

func (a *Adapter) buildRequest(input llm.Context) (*bytes.Buffer, error) {
	req := map[string]any{
		"model":       a.Model,
		"messages":    input.Messages,
		"temperature": a.Temperature,
	}
	if a.MaxTokens > 0 {
		req["max_tokens"] = a.MaxTokens
	}
	b, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	return bytes.NewBuffer(b), nil
}

func (a *Adapter) applyHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+a.APIKey)
}

func (a *Adapter) client() *http.Client {
	if a.Client != nil {
		return a.Client
	}
	return http.DefaultClient
}

func providerName(baseURL string) string {
	if strings.Contains(baseURL, "groq.com") {
		return "groq"
	}
	return "openai"
}

func intValue(v any) int {
	f, _ := v.(float64)
	return int(f)
}

var _ llm.LLMAdapter = (*Adapter)(nil)
