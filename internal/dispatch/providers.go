package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Soulfra/soulfra.github.io-sub005/pkg/models"
)

// providerBaseURLs maps provider kinds to their API base URLs.
var providerBaseURLs = map[models.ProviderKind]string{
	models.KindOpenAI:    "https://api.openai.com",
	models.KindAnthropic: "https://api.anthropic.com",
	models.KindGemini:    "https://generativelanguage.googleapis.com",
}

// Keys carries the per-provider API keys, passed through in-memory and
// never persisted.
type Keys struct {
	OpenAI    string
	Anthropic string
	Gemini    string
}

// NewClients builds one ChatClient per supported provider kind sharing a
// single HTTP client.
func NewClients(keys Keys) map[models.ProviderKind]ChatClient {
	hc := &http.Client{Timeout: 5 * time.Minute}
	return map[models.ProviderKind]ChatClient{
		models.KindOpenAI:    &openAIClient{http: hc, apiKey: keys.OpenAI, baseURL: providerBaseURLs[models.KindOpenAI]},
		models.KindAnthropic: &anthropicClient{http: hc, apiKey: keys.Anthropic, baseURL: providerBaseURLs[models.KindAnthropic]},
		models.KindGemini:    &geminiClient{http: hc, apiKey: keys.Gemini, baseURL: providerBaseURLs[models.KindGemini]},
	}
}

// postJSON sends a JSON body and decodes the response, mapping non-2xx
// statuses to errors carrying the upstream status and body excerpt.
func postJSON(ctx context.Context, hc *http.Client, url string, headers map[string]string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt := string(respBody)
		if len(excerpt) > 256 {
			excerpt = excerpt[:256]
		}
		return fmt.Errorf("upstream status %d: %s", resp.StatusCode, excerpt)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// --- OpenAI ---

type openAIClient struct {
	http    *http.Client
	apiKey  string
	baseURL string
}

type openAIChatRequest struct {
	Model     string          `json:"model"`
	Messages  []openAIMessage `json:"messages"`
	MaxTokens int             `json:"max_tokens,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
}

func (c *openAIClient) Chat(ctx context.Context, model string, req models.ChatRequest) (*models.ChatResult, error) {
	payload := openAIChatRequest{Model: model, MaxTokens: req.MaxTokens}
	if req.System != "" {
		payload.Messages = append(payload.Messages, openAIMessage{Role: "system", Content: req.System})
	}
	payload.Messages = append(payload.Messages, openAIMessage{Role: "user", Content: req.Prompt})

	var resp openAIChatResponse
	start := time.Now()
	err := postJSON(ctx, c.http, c.baseURL+"/v1/chat/completions",
		map[string]string{"Authorization": "Bearer " + c.apiKey}, payload, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: empty choices in response")
	}

	return &models.ChatResult{
		Content: resp.Choices[0].Message.Content,
		Usage: models.Usage{
			InputUnits:  resp.Usage.PromptTokens,
			OutputUnits: resp.Usage.CompletionTokens,
		},
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

// --- Anthropic ---

type anthropicClient struct {
	http    *http.Client
	apiKey  string
	baseURL string
}

type anthropicChatRequest struct {
	Model     string             `json:"model"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	MaxTokens int                `json:"max_tokens"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicChatResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int64 `json:"input_tokens"`
		OutputTokens int64 `json:"output_tokens"`
	} `json:"usage"`
}

func (c *anthropicClient) Chat(ctx context.Context, model string, req models.ChatRequest) (*models.ChatResult, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}
	payload := anthropicChatRequest{
		Model:     model,
		System:    req.System,
		Messages:  []anthropicMessage{{Role: "user", Content: req.Prompt}},
		MaxTokens: maxTokens,
	}

	var resp anthropicChatResponse
	start := time.Now()
	err := postJSON(ctx, c.http, c.baseURL+"/v1/messages",
		map[string]string{"X-API-Key": c.apiKey, "anthropic-version": "2023-06-01"}, payload, &resp)
	if err != nil {
		return nil, err
	}

	content := ""
	for _, block := range resp.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}

	return &models.ChatResult{
		Content: content,
		Usage: models.Usage{
			InputUnits:  resp.Usage.InputTokens,
			OutputUnits: resp.Usage.OutputTokens,
		},
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

// --- Gemini ---

type geminiClient struct {
	http    *http.Client
	apiKey  string
	baseURL string
}

type geminiChatRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiChatResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int64 `json:"promptTokenCount"`
		CandidatesTokenCount int64 `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

func (c *geminiClient) Chat(ctx context.Context, model string, req models.ChatRequest) (*models.ChatResult, error) {
	payload := geminiChatRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: req.Prompt}}}},
	}
	if req.System != "" {
		payload.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.System}}}
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, model)
	var resp geminiChatResponse
	start := time.Now()
	err := postJSON(ctx, c.http, url,
		map[string]string{"X-Goog-Api-Key": c.apiKey}, payload, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("gemini: empty candidates in response")
	}

	content := ""
	for _, part := range resp.Candidates[0].Content.Parts {
		content += part.Text
	}

	return &models.ChatResult{
		Content: content,
		Usage: models.Usage{
			InputUnits:  resp.UsageMetadata.PromptTokenCount,
			OutputUnits: resp.UsageMetadata.CandidatesTokenCount,
		},
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

// --- Liveness probe ---

// HTTPProber performs the out-of-band liveness check against a provider's
// base endpoint. Reachability, not auth, is what it measures: any HTTP
// response from the host counts as alive.
type HTTPProber struct {
	http *http.Client
}

// NewHTTPProber creates a prober with the given per-probe timeout.
func NewHTTPProber(timeout time.Duration) *HTTPProber {
	return &HTTPProber{http: &http.Client{Timeout: timeout}}
}

// Probe checks that the provider's API host answers at all.
func (p *HTTPProber) Probe(ctx context.Context, provider models.Provider) error {
	base, ok := providerBaseURLs[provider.Kind]
	if !ok {
		return fmt.Errorf("probe: unknown provider kind %q", provider.Kind)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base, nil)
	if err != nil {
		return fmt.Errorf("probe: creating request: %w", err)
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("probe: %s unreachable: %w", provider.ID, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return nil
}
