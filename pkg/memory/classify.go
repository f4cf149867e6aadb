package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/kaptinlin/jsonrepair"
	"golang.org/x/sync/errgroup"

	"github.com/haivivi/memkit/pkg/store"
	"github.com/haivivi/memkit/pkg/synth"
)

// classifyWorkers bounds concurrent classifier calls in a batch run.
const classifyWorkers = 4

// piiPatterns is the stateless PII table: kind label + detector, checked
// in order. Matching is heuristic; the result is a warning, never a
// block.
var piiPatterns = []struct {
	kind string
	re   *regexp.Regexp
}{
	{"email", regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)},
	{"phone", regexp.MustCompile(`\b\+?\d{1,3}[-. (]*\d{3}[-. )]*\d{3}[-. ]*\d{4}\b`)},
	{"credit card", regexp.MustCompile(`\b(?:\d{4}[ -]?){3}\d{4}\b`)},
	{"api key", regexp.MustCompile(`\b(?:AKIA[0-9A-Z]{16}|sk-[A-Za-z0-9-]{20,}|gh[pousr]_[A-Za-z0-9]{30,})\b`)},
	{"private key", regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----`)},
	{"secret assignment", regexp.MustCompile(`(?i)\b(?:password|passwd|secret|token|api[_-]?key)\b\s*[:=]\s*\S+`)},
	{"hex token", regexp.MustCompile(`\b[0-9a-f]{40,}\b`)},
}

// DetectPII returns the kinds of sensitive-looking data found in content,
// in table order, deduplicated. Empty when nothing matches.
func DetectPII(content string) []string {
	var kinds []string
	for _, p := range piiPatterns {
		if p.re.MatchString(content) {
			kinds = append(kinds, p.kind)
		}
	}
	return kinds
}

// classification is the classifier's JSON response shape.
type classification struct {
	Level  string `json:"level"`
	Reason string `json:"reason"`
}

// classifyContent grades one memory's sensitivity through the
// Synthesizer. Levels outside the known set collapse to unknown.
func (e *Engine) classifyContent(ctx context.Context, content string) (level, reason string, err error) {
	if e.synth == nil {
		return "", "", ConfigErrorf("cannot classify: no synthesizer configured")
	}
	out, err := e.synthesize(ctx, synth.ClassificationPrompt, content, synth.ClassificationMaxTokens)
	if err != nil {
		return "", "", wrapUpstream("classify memory", err)
	}
	var c classification
	if err := decodeLenient(out, &c); err != nil {
		return "", "", &Error{Kind: KindUpstream, Msg: "decode classification", Err: err}
	}
	level, ok := ParseSensitivity(c.Level)
	if !ok {
		level = SensitivityUnknown
	}
	return level, c.Reason, nil
}

// decodeLenient unmarshals LLM output, repairing malformed JSON (stray
// prose, code fences, trailing commas) on a syntax error before retrying.
func decodeLenient(text string, v any) error {
	err := json.Unmarshal([]byte(text), v)
	if err == nil {
		return nil
	}
	if _, ok := err.(*json.SyntaxError); ok {
		fixed, rerr := jsonrepair.JSONRepair(text)
		if rerr != nil {
			return rerr
		}
		return json.Unmarshal([]byte(fixed), v)
	}
	return err
}

// Classify runs the sensitivity classifier over the tenant's private
// memories: the unclassified ones by default, every one when force is
// set. All graded levels are persisted, including safe, so a finished
// run leaves nothing unclassified. Returns a per-level summary.
func (e *Engine) Classify(ctx context.Context, tc TenantContext, force bool) (string, error) {
	if err := requireUser(tc); err != nil {
		return "", err
	}
	if e.synth == nil {
		return "", ConfigErrorf("cannot classify: no synthesizer configured")
	}

	opts := store.ListOptions{Unclassified: !force, Limit: 1000}
	memories, err := e.store.ListMemories(ctx, tc.UserID, opts)
	if err != nil {
		return "", wrapStore("list memories", err)
	}
	if len(memories) == 0 {
		return "No memories to classify.", nil
	}

	var (
		mu     sync.Mutex
		counts = make(map[string]int)
		failed int
	)
	var g errgroup.Group
	g.SetLimit(classifyWorkers)
	for _, m := range memories {
		g.Go(func() error {
			level, reason, err := e.classifyContent(ctx, m.Content)
			if err != nil {
				e.log.Warn("classification failed", "id", m.ID, "err", err)
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}
			if err := e.store.SetSensitivity(ctx, tc.UserID, m.ID, level, reason); err != nil {
				e.log.Warn("persist classification failed", "id", m.ID, "err", err)
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}
			mu.Lock()
			counts[level]++
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	classified := len(memories) - failed
	summary := fmt.Sprintf("Classified %d memories (safe: %d, sensitive: %d, critical: %d, unknown: %d)",
		classified, counts[SensitivitySafe], counts[SensitivitySensitive],
		counts[SensitivityCritical], counts[SensitivityUnknown])
	if failed > 0 {
		summary += fmt.Sprintf(", %d failed", failed)
	}
	return summary, nil
}

// Reclassify sets a memory's sensitivity by hand, overriding whatever
// the classifier decided. Works on team-visible memories too.
func (e *Engine) Reclassify(ctx context.Context, tc TenantContext, memoryID, level, reason string) error {
	if err := requireUser(tc); err != nil {
		return err
	}
	parsed, ok := ParseSensitivity(level)
	if !ok {
		return ValidationErrorf("invalid sensitivity %q. use: safe, sensitive, critical, unknown", level)
	}
	m, err := e.store.GetMemory(ctx, tc.UserID, tc.TeamID, memoryID)
	if err != nil {
		return wrapStore("get memory", err)
	}
	if err := e.store.SetSensitivity(ctx, m.OwnerID, memoryID, parsed, reason); err != nil {
		return wrapStore("set sensitivity", err)
	}
	return nil
}

// Scan runs the PII table over every private memory and reports the
// flagged ones. Purely local, no synthesizer involved.
func (e *Engine) Scan(ctx context.Context, tc TenantContext) (string, error) {
	if err := requireUser(tc); err != nil {
		return "", err
	}
	memories, err := e.store.ListMemories(ctx, tc.UserID, store.ListOptions{Limit: 1000})
	if err != nil {
		return "", wrapStore("list memories", err)
	}

	var lines []string
	for _, m := range memories {
		kinds := DetectPII(m.Content)
		if len(kinds) == 0 {
			continue
		}
		lines = append(lines, fmt.Sprintf("- %s (%s): %s",
			m.ID, strings.Join(kinds, ", "), truncateRunes(m.Content, 60)))
	}
	if len(lines) == 0 {
		return "No PII detected.", nil
	}
	return fmt.Sprintf("Scanned %d memories, flagged %d:\n\n", len(memories), len(lines)) +
		strings.Join(lines, "\n"), nil
}
