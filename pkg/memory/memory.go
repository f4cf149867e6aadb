// Package memory implements the persistent memory engine: gated writes,
// hybrid recall, a relation overlay, and a decay lifecycle over a
// [store.Store].
//
// An [Engine] provides:
//
//   - Remember: gate-validated writes with journal append, contradiction
//     and correction handling, FOLLOWS chaining, and sensitivity checks
//   - Recall: hybrid dense+sparse retrieval with text and graph fallbacks
//   - Reflect: journal consolidation, fading-memory archival, identity
//     regeneration
//   - Rules, identity cards, checkpoints, and session priming
//   - Tenant administration: listing, migration, stats, snapshots
//
// Every operation takes a [TenantContext] naming the resolved caller
// scope; the engine never authenticates. One Engine is safe for
// concurrent use.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/haivivi/memkit/pkg/store"
	"github.com/haivivi/memkit/pkg/synth"
)

// Input ceilings. Content beyond these is rejected, not truncated.
const (
	maxContentLen  = 100_000
	maxFieldLen    = 500
	maxIdentityLen = 50_000
)

// defaultSynthTimeout bounds each Synthesizer call made by the engine.
const defaultSynthTimeout = 60 * time.Second

// Options configures a new [Engine].
type Options struct {
	// Store persists records and serves retrieval.
	// Required.
	Store store.Store

	// Synth generates digests, identity cards and sensitivity
	// classifications.
	// Optional: if nil, Remember skips write-time classification,
	// Reflect skips consolidation and identity regeneration, and
	// Classify returns a config error.
	Synth synth.Synthesizer

	// SynthTimeout bounds each Synthesizer call.
	// Optional: defaults to 60s.
	SynthTimeout time.Duration

	// Logger receives structured engine logs.
	// Optional: defaults to slog.Default().
	Logger *slog.Logger
}

// Engine is the memory system over one store. Construct with [New].
type Engine struct {
	store        store.Store
	synth        synth.Synthesizer
	synthTimeout time.Duration
	log          *slog.Logger
}

// New builds an Engine from opts.
func New(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, ConfigErrorf("Options.Store is required")
	}
	if opts.SynthTimeout <= 0 {
		opts.SynthTimeout = defaultSynthTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Engine{
		store:        opts.Store,
		synth:        opts.Synth,
		synthTimeout: opts.SynthTimeout,
		log:          opts.Logger,
	}, nil
}

// Close flushes and releases the underlying store.
func (e *Engine) Close() error {
	return e.store.Close()
}

// synthesize runs one Synthesizer call under the engine's timeout.
func (e *Engine) synthesize(ctx context.Context, system, prompt string, maxTokens int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.synthTimeout)
	defer cancel()
	return e.synth.Synthesize(ctx, system, prompt, maxTokens)
}

// newMemoryID mints a memory id: a UTC second stamp plus 4 hex chars of
// entropy, so ids sort roughly by creation time and stay legible in logs.
func newMemoryID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:4]
	return fmt.Sprintf("mem_%s_%s", now.UTC().Format("20060102_150405"), suffix)
}

// truncateRunes returns s cut to at most n runes.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// requireUser rejects calls with an unset tenant.
func requireUser(tc TenantContext) error {
	if tc.UserID == "" {
		return ValidationErrorf("user id is required")
	}
	return nil
}
