package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultProxyURL is the hosted relay endpoint.
const DefaultProxyURL = "https://cmk.dev"

const proxyPath = "/api/v1/synthesize"

// Proxy implements [Synthesizer] by relaying requests through the hosted
// synthesis endpoint, so clients need no provider API key of their own.
type Proxy struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	timeout time.Duration
}

var _ Synthesizer = (*Proxy)(nil)

// NewProxy creates a relay synthesizer for a CloudKeyPrefix-issued key.
func NewProxy(apiKey string, opts ...Option) *Proxy {
	cfg := config{
		baseURL: DefaultProxyURL,
		timeout: defaultTimeout,
	}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.httpClient == nil {
		cfg.httpClient = http.DefaultClient
	}

	return &Proxy{
		baseURL: cfg.baseURL,
		apiKey:  apiKey,
		model:   cfg.model,
		client:  cfg.httpClient,
		timeout: cfg.timeout,
	}
}

type proxyRequest struct {
	System    string `json:"system"`
	Prompt    string `json:"prompt"`
	MaxTokens int    `json:"max_tokens"`
	Model     string `json:"model,omitempty"`
}

type proxyResponse struct {
	Text string `json:"text"`
}

// Synthesize posts the request to the relay and returns the response text.
func (p *Proxy) Synthesize(ctx context.Context, system, prompt string, maxTokens int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	body, err := json.Marshal(proxyRequest{
		System:    system,
		Prompt:    prompt,
		MaxTokens: maxTokens,
		Model:     p.model,
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+proxyPath, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Relay errors carry a short plain-text or JSON body.
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &Error{Provider: "proxy", Status: resp.StatusCode, Message: string(bytes.TrimSpace(detail))}
	}

	var out proxyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return out.Text, nil
}
