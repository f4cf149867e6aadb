package synth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Anthropic model identifiers.
const (
	ModelOpus   = "claude-opus-4-6"
	ModelSonnet = "claude-sonnet-4-5-20250929"
	ModelHaiku  = "claude-haiku-4-5-20251001"
)

const anthropicDefaultModel = ModelOpus

// Anthropic implements [Synthesizer] using the Anthropic Messages API.
type Anthropic struct {
	client  anthropic.Client
	model   string
	timeout time.Duration
}

var _ Synthesizer = (*Anthropic)(nil)

// NewAnthropic creates an Anthropic synthesizer. The default model is
// [ModelOpus]; lighter jobs can pass WithModel([ModelHaiku]).
func NewAnthropic(apiKey string, opts ...Option) *Anthropic {
	cfg := config{
		model:   anthropicDefaultModel,
		timeout: defaultTimeout,
	}
	for _, o := range opts {
		o(&cfg)
	}

	clientOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.httpClient != nil {
		clientOpts = append(clientOpts, option.WithHTTPClient(cfg.httpClient))
	}

	return &Anthropic{
		client:  anthropic.NewClient(clientOpts...),
		model:   cfg.model,
		timeout: cfg.timeout,
	}
}

// Synthesize sends one message and concatenates the text blocks of the reply.
func (a *Anthropic) Synthesize(ctx context.Context, system, prompt string, maxTokens int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		var apierr *anthropic.Error
		if errors.As(err, &apierr) {
			return "", &Error{Provider: "anthropic", Status: apierr.StatusCode, Message: apierr.Error()}
		}
		return "", err
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}

// Model returns the configured model identifier.
func (a *Anthropic) Model() string {
	return a.model
}
