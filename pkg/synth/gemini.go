package synth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/genai"
)

const geminiDefaultModel = "gemini-2.5-flash"

// Gemini implements [Synthesizer] using the Google Gemini API.
type Gemini struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

var _ Synthesizer = (*Gemini)(nil)

// NewGemini creates a Gemini synthesizer.
func NewGemini(ctx context.Context, apiKey string, opts ...Option) (*Gemini, error) {
	cfg := config{
		model:   geminiDefaultModel,
		timeout: defaultTimeout,
	}
	for _, o := range opts {
		o(&cfg)
	}

	cc := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.httpClient,
	}
	if cfg.baseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.baseURL
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}

	return &Gemini{
		client:  client,
		model:   cfg.model,
		timeout: cfg.timeout,
	}, nil
}

// Synthesize generates one completion and concatenates the text parts.
func (g *Gemini) Synthesize(ctx context.Context, system, prompt string, maxTokens int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	cfg := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(maxTokens),
	}
	if system != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{genai.NewPartFromText(system)},
		}
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), cfg)
	if err != nil {
		if e, ok := err.(*apierror.APIError); ok {
			err = e.Unwrap()
		}
		return "", &Error{Provider: "gemini", Message: err.Error()}
	}
	if len(resp.Candidates) == 0 {
		return "", &Error{Provider: "gemini", Message: "no candidates"}
	}

	cand := resp.Candidates[0]
	switch cand.FinishReason {
	case genai.FinishReasonStop, genai.FinishReasonMaxTokens, genai.FinishReasonUnspecified:
		// usable output
	default:
		return "", &Error{Provider: "gemini", Message: fmt.Sprintf("finish reason %s", cand.FinishReason)}
	}
	if cand.Content == nil {
		return "", &Error{Provider: "gemini", Message: "empty candidate content"}
	}

	var sb strings.Builder
	for _, p := range cand.Content.Parts {
		if p.Text != "" {
			sb.WriteString(p.Text)
		}
	}
	return sb.String(), nil
}

// Model returns the configured model identifier.
func (g *Gemini) Model() string {
	return g.model
}
