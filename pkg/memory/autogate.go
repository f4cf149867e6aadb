package memory

import (
	"regexp"
	"strings"
)

// Keyword tables for AutoGate, checked in order. Substring match on the
// lowercased content; first table that hits wins.
var (
	promissoryKeywords = []string{
		"i will", "i'll", "i promised", "i need to",
		"follow up", "follow-up", "todo", "to do",
		"i should", "committed to", "agreed to",
		"deadline", "by tomorrow", "by monday",
		"remind me", "don't forget",
	}

	correctionKeywords = []string{
		"actually", "correction", "i was wrong",
		"turns out", "not true", "no longer",
		"changed my mind", "updated", "contrary to",
		"instead of", "rather than", "opposite",
	}

	behavioralKeywords = []string{
		"from now on", "always", "never",
		"prefer", "preference", "likes to",
		"wants me to", "style is", "approach is",
		"workflow", "when i", "habit",
		"don't like", "annoyed by",
	}

	relationalKeywords = []string{
		"their name", "works at", "relationship",
		"family", "partner", "friend", "colleague",
		"boss", "manager", "team lead",
	}
)

// Pronoun-plus-verb and subject-predicate shapes that read as statements
// about a person.
var relationalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(he|she|they)\b.*(is|are|likes|prefers|hates|works|said)`),
	regexp.MustCompile(`\b\w+\b\s+(is a|works at|lives in|prefers|likes|said)`),
}

// AutoGate classifies content into a write gate from keyword heuristics.
// No API call needed; good enough for most saves, and the gate is internal
// bookkeeping rather than user-facing. Unmatched content lands on
// epistemic.
func AutoGate(content string) Gate {
	lower := strings.ToLower(content)

	hasAny := func(keywords []string) bool {
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				return true
			}
		}
		return false
	}

	switch {
	case hasAny(promissoryKeywords):
		return GatePromissory
	case hasAny(correctionKeywords):
		return GateCorrection
	case hasAny(behavioralKeywords):
		return GateBehavioral
	}

	for _, pat := range relationalPatterns {
		if pat.MatchString(lower) {
			return GateRelational
		}
	}
	if hasAny(relationalKeywords) {
		return GateRelational
	}

	return GateEpistemic
}

// namePattern matches a capitalized one- or two-word name following a
// relational preposition.
var namePattern = regexp.MustCompile(`\b(?:about|for|with|from)\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)?)\b`)

// projectPattern matches the token after a project-ish noun, optionally
// quoted.
var projectPattern = regexp.MustCompile(`(?i)(?:project|repo|app|codebase|working on)\s+["']?(\S+)["']?`)

// nameStopWords are capitalized words the name pattern must not mistake
// for a person.
var nameStopWords = map[string]bool{
	"the": true, "this": true, "that": true,
	"monday": true, "tuesday": true, "wednesday": true,
	"thursday": true, "friday": true, "saturday": true, "sunday": true,
	"january": true, "february": true, "march": true, "april": true,
	"may": true, "june": true, "july": true, "august": true,
	"september": true, "october": true, "november": true, "december": true,
}

// ExtractPersonProject pulls a person name and a project token out of
// free-form content with two cheap regexes. Either result may be empty.
func ExtractPersonProject(content string) (person, project string) {
	if m := namePattern.FindStringSubmatch(content); m != nil {
		candidate := m[1]
		if !nameStopWords[strings.ToLower(candidate)] {
			person = candidate
		}
	}
	if m := projectPattern.FindStringSubmatch(content); m != nil {
		project = strings.Trim(m[1], `"'.,;`)
	}
	return person, project
}
