package dispatch

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/aristath/pmdispatch/internal/config"
)

const onboardingDir = "agents/onboarding"

// BuildPrompt returns the instruction handed to the engine for one task.
// Read-write agents edit their report section in place; read-only agents
// answer with the report and the dispatcher writes it back. codeDir, when
// set, is the agent's codebase.
func BuildPrompt(docPath string, agent config.AgentConfig, codeDir string) string {
	section := agent.ReportSection
	if section == "" {
		section = config.SectionAgentReport
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Read the task file at %s using the Read tool.\n", docPath)
	if codeDir != "" {
		fmt.Fprintf(&b, "The %s code lives in %s.\n", agent.Codebase, codeDir)
	}

	if agent.ReadOnly {
		b.WriteString("Audit the work described in its AGENT REPORT section against the AGENT INSTRUCTIONS section. ")
		b.WriteString("Do not modify any file.\n")
		fmt.Fprintf(&b, "Reply with your complete report as your final message; it is recorded in the %s section.\n", section)
		b.WriteString("Include in your report: Status (passed, failed or warnings), Violations, Recommendations, Score.\n")
		return b.String()
	}

	b.WriteString("Implement the task according to the AGENT INSTRUCTIONS section.\n")
	fmt.Fprintf(&b, "When done, write your results in the %s section using the Edit tool.\n", section)
	b.WriteString("Include in your report: Status, Files Created/Modified, What Was Built, Issues, Performance Metrics.\n")
	return b.String()
}

// BuildRequestPrompt returns the instruction for a free-form request. The
// current NOW.md content is inlined so the agent starts from it.
func BuildRequestPrompt(request, statusPath, status string) string {
	var b strings.Builder
	b.WriteString("# User Request\n\n")
	b.WriteString(strings.TrimSpace(request))
	b.WriteString("\n\n---\n\n# Current Status\n\n")
	if s := strings.TrimSpace(status); s != "" {
		fmt.Fprintf(&b, "From %s:\n\n%s\n", statusPath, s)
	} else {
		fmt.Fprintf(&b, "%s does not exist yet.\n", statusPath)
	}
	b.WriteString("\n---\n\n# Instructions\n\n")
	b.WriteString("1. Determine what needs to be done based on the user request\n")
	b.WriteString("2. Create task files if needed with `pmdispatch task create`\n")
	b.WriteString("3. Dispatch agents with `pmdispatch dispatch-one` or `pmdispatch dispatch-batch`: ")
	b.WriteString("fe-implementor and be-implementor implement, fe-auditor and be-auditor review\n")
	b.WriteString("4. Record progress with `pmdispatch status append`\n")
	b.WriteString("5. Report completion with a summary\n")
	return b.String()
}

// BuildPersona joins the agent's onboarding documents and system prompt.
// Missing onboarding files are skipped with a warning.
func BuildPersona(pmRoot string, agent config.AgentConfig) string {
	var parts []string
	for _, name := range agent.Onboarding {
		path := filepath.Join(pmRoot, onboardingDir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("WARNING: onboarding document %s unavailable: %v", path, err)
			continue
		}
		if text := strings.TrimSpace(string(data)); text != "" {
			parts = append(parts, text)
		}
	}
	if agent.SystemPrompt != "" {
		parts = append(parts, agent.SystemPrompt)
	}
	return strings.Join(parts, "\n\n")
}
