package config

import "sort"

// ProviderConfig defines an execution engine transport (CLI command, args, credentials).
// Providers are separate from agents -- multiple agents can share one provider.
type ProviderConfig struct {
	Command       string   `json:"command"`                  // CLI binary name (e.g., "claude", "codex")
	Args          []string `json:"args,omitempty"`           // Default args appended to every invocation
	Type          string   `json:"type"`                     // Engine type matching engine.Config.Type: "claude" or "codex"
	CredentialEnv string   `json:"credential_env,omitempty"` // Env var that must be set before dispatching through this provider
}

// AgentConfig defines an agent identity: a persona bound to a provider and a capability set.
type AgentConfig struct {
	Provider        string   `json:"provider"`                   // Key into Providers map
	Model           string   `json:"model,omitempty"`            // Model override
	SystemPrompt    string   `json:"system_prompt,omitempty"`    // Persona text appended to the engine's system prompt
	Onboarding      []string `json:"onboarding,omitempty"`       // Files under <pm-root>/agents/onboarding prepended to the persona
	Tools           []string `json:"tools,omitempty"`            // Allowed tools for this role
	DisallowedTools []string `json:"disallowed_tools,omitempty"` // Tools explicitly denied
	ReadOnly        bool     `json:"read_only,omitempty"`        // Auditors inspect but never edit
	PermissionMode  string   `json:"permission_mode,omitempty"`  // Engine permission policy (e.g., "acceptEdits")
	ReportSection   string   `json:"report_section,omitempty"`   // Task document section the agent writes back into
	Codebase        string   `json:"codebase,omitempty"`         // "frontend" or "backend": which project tree the prompt points at
}

// WorkflowStepConfig defines one step in a workflow pipeline.
type WorkflowStepConfig struct {
	Name  string   `json:"name,omitempty"`  // Step name; defaults to the agent key
	Agent string   `json:"agent"`           // Key into Agents map
	After []string `json:"after,omitempty"` // Step names that must finish first; empty means the previous step
}

// WorkflowConfig defines a pipeline of agent steps (e.g., implement -> audit).
type WorkflowConfig struct {
	Steps []WorkflowStepConfig `json:"steps"`
}

// SessionStoreConfig selects the session registry backend.
type SessionStoreConfig struct {
	Backend string `json:"backend,omitempty"` // "json" (default) or "sqlite"
	Path    string `json:"path,omitempty"`    // Relative paths resolve against the PM root
}

// Config is the top-level registry configuration.
type Config struct {
	Providers map[string]ProviderConfig `json:"providers"`
	Agents    map[string]AgentConfig    `json:"agents"`
	Workflows map[string]WorkflowConfig `json:"workflows"`
	Sessions  SessionStoreConfig        `json:"sessions"`
}

// Agent returns the agent identity registered under name.
func (c *Config) Agent(name string) (AgentConfig, bool) {
	a, ok := c.Agents[name]
	return a, ok
}

// AgentNames returns the registered agent identities, sorted.
func (c *Config) AgentNames() []string {
	names := make([]string, 0, len(c.Agents))
	for name := range c.Agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
