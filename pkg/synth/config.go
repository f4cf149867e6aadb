package synth

import (
	"net/http"
	"time"
)

// defaultTimeout bounds a single synthesis call.
const defaultTimeout = 60 * time.Second

// config holds shared configuration for synthesizer implementations.
type config struct {
	model      string
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

// Option configures a synthesizer.
type Option func(*config)

// WithModel sets the model identifier. For [Proxy] the model is forwarded
// to the relay, which applies its own default when empty.
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *config) { c.httpClient = client }
}

// WithTimeout overrides the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}
