package config

// Canonical task document section labels.
const (
	SectionInstructions = "📋 AGENT INSTRUCTIONS"
	SectionAgentReport  = "🤖 AGENT REPORT"
	SectionAuditReport  = "✅ AUDIT REPORT"
	SectionCaseLog      = "📝 CASE LOG (Manager AI)"
)

// Codebase names used by AgentConfig.Codebase.
const (
	CodebaseFrontend = "frontend"
	CodebaseBackend  = "backend"
)

// ManagerAgent is the identity `pmdispatch manager` runs as by default.
const ManagerAgent = "manager"

const managerPrompt = `You are Manager AI in a task-driven PM framework. Your role:
1. Read NOW.md to understand current project status
2. Create task files from templates
3. Dispatch implementor and auditor agents against tasks
4. Update progress in NOW.md and task files
5. Coordinate audits after implementation

Work autonomously based on user requests.`

var (
	implementorTools = []string{"Read", "Write", "Edit", "Glob", "Grep", "Bash"}
	auditorTools     = []string{"Read", "Grep", "Glob"}
)

// DefaultConfig returns the default configuration with built-in providers, agents, and workflows.
func DefaultConfig() *Config {
	return &Config{
		Providers: map[string]ProviderConfig{
			"claude": {
				Command:       "claude",
				Type:          "claude",
				CredentialEnv: "ANTHROPIC_API_KEY",
			},
			"codex": {
				Command:       "codex",
				Type:          "codex",
				CredentialEnv: "OPENAI_API_KEY",
			},
		},
		Agents: map[string]AgentConfig{
			"fe-implementor": {
				Provider:       "claude",
				SystemPrompt:   "You are a frontend implementor. You build UI features exactly as the task instructions describe.",
				Onboarding:     []string{"fe-agent.md"},
				Codebase:       CodebaseFrontend,
				Tools:          implementorTools,
				PermissionMode: "acceptEdits",
				ReportSection:  SectionAgentReport,
			},
			"be-implementor": {
				Provider:       "claude",
				SystemPrompt:   "You are a backend implementor. You build APIs, services and data layers exactly as the task instructions describe.",
				Onboarding:     []string{"be-agent.md"},
				Codebase:       CodebaseBackend,
				Tools:          implementorTools,
				PermissionMode: "acceptEdits",
				ReportSection:  SectionAgentReport,
			},
			"fe-auditor": {
				Provider:        "claude",
				SystemPrompt:    "You audit frontend work against the task instructions and the project's conventions. You never modify project code.",
				Codebase:        CodebaseFrontend,
				Onboarding:      []string{"auditor-guidelines.md"},
				Tools:           auditorTools,
				DisallowedTools: []string{"Write", "Bash"},
				ReadOnly:        true,
				PermissionMode:  "acceptEdits",
				ReportSection:   SectionAuditReport,
			},
			"be-auditor": {
				Provider:        "claude",
				SystemPrompt:    "You audit backend work against the task instructions and the project's conventions. You never modify project code.",
				Codebase:        CodebaseBackend,
				Onboarding:      []string{"auditor-guidelines.md"},
				Tools:           auditorTools,
				DisallowedTools: []string{"Write", "Bash"},
				ReadOnly:        true,
				PermissionMode:  "acceptEdits",
				ReportSection:   SectionAuditReport,
			},
			ManagerAgent: {
				Provider:       "claude",
				SystemPrompt:   managerPrompt,
				Onboarding:     []string{"manager.md"},
				Tools:          implementorTools,
				PermissionMode: "acceptEdits",
			},
		},
		Workflows: map[string]WorkflowConfig{
			"frontend": {
				Steps: []WorkflowStepConfig{
					{Name: "implement", Agent: "fe-implementor"},
					{Name: "audit", Agent: "fe-auditor", After: []string{"implement"}},
				},
			},
			"backend": {
				Steps: []WorkflowStepConfig{
					{Name: "implement", Agent: "be-implementor"},
					{Name: "audit", Agent: "be-auditor", After: []string{"implement"}},
				},
			},
		},
		Sessions: SessionStoreConfig{
			Backend: "json",
		},
	}
}
