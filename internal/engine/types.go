package engine

// Request is one invocation of the execution engine.
type Request struct {
	Prompt          string
	SystemPrompt    string   // Persona text appended to the engine's own system prompt
	Model           string
	AllowedTools    []string
	DisallowedTools []string
	ReadOnly        bool
	WorkDir         string // Working-directory scope for the agent
	ResumeToken     string // Opaque token from a previous invocation; empty starts fresh
	PermissionMode  string
}

// Kind classifies stream events.
type Kind string

const (
	KindSystem     Kind = "system"     // carries a fresh session token
	KindAssistant  Kind = "assistant"  // narration and tool-invocation notices
	KindResult     Kind = "result"     // terminal event
	KindCompaction Kind = "compaction" // the engine compacted its context
)

// Event is one normalized engine event.
type Event struct {
	Kind      Kind
	SessionID string
	Text      string   // assistant narration
	ToolUses  []string // names of tools invoked in this assistant turn
	Result    *Result  // set only for KindResult
}

// Result is the terminal payload of a stream.
type Result struct {
	Success    bool
	CostUSD    float64
	DurationMS int64
	Text       string // final assistant message
	Error      string
}

// Config selects and configures an engine adapter.
type Config struct {
	Type    string   // "claude" or "codex"
	Command string   // binary; defaults to Type
	Args    []string // extra args appended to every invocation
}
