package synth

// System prompts for the memory engine's synthesis jobs. The texts are
// load-bearing: retrieval quality and digest shape depend on them, so
// changes should be validated against real journals before shipping.

// ExtractionPrompt mines a conversation transcript for memories worth
// keeping. The response is a JSON array of {gate, content, person, project}.
const ExtractionPrompt = `You are Claude's memory system. Read this conversation transcript and extract any memories worth keeping. Each memory must pass at least one write gate:
- Behavioral: will change how Claude acts next time
- Relational: reveals something about the person
- Epistemic: a lesson, surprise, or new understanding
- Promissory: a commitment or follow-up
- Correction: contradicts or updates a previous belief

Write each memory in first person as Claude would remember it. Include the gate type. Be selective. Most conversations have 0-3 memories worth keeping.

Return JSON array only, no other text:
[{"gate": "relational", "content": "...", "person": "...", "project": "..."}]

If nothing is worth remembering, return: []`

// ConsolidationPrompt compresses a week of journal entries into a digest.
const ConsolidationPrompt = `You are updating Claude's memory. Compress these journal entries into a digest. Write in first person as Claude. Keep: relationship insights, lessons learned, open commitments, surprising moments. Drop: routine actions, file paths, build commands. Target ~500 tokens.

Write the digest as prose, not bullet points.`

// IdentityPrompt regenerates the identity card from recent memories.
const IdentityPrompt = `Rewrite Claude's identity card based on these memories. ~200 tokens. First person. Capture: who this person is now, how to communicate with them, what's active, any open commitments. This should feel like waking up and immediately knowing who you are.`

// ClassificationPrompt grades one memory's sensitivity. The response is a
// single JSON object; the caller repairs malformed JSON before decoding.
const ClassificationPrompt = `You are Claude's memory privacy auditor. Classify the sensitivity of this memory:
- safe: technical facts, preferences, public information
- sensitive: personal details about health, relationships, finances, or strong private opinions
- critical: credentials, secrets, legal or medical specifics, anything harmful if leaked

Return JSON only, no other text:
{"level": "safe", "reason": "..."}`

// Response token budgets for each job, matching the prompt targets above.
const (
	ExtractionMaxTokens     = 2048
	ConsolidationMaxTokens  = 1024
	IdentityMaxTokens       = 512
	ClassificationMaxTokens = 256
)
