package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// ClaudeEngine drives the Claude Code CLI in headless stream-json mode.
type ClaudeEngine struct {
	command string
	args    []string
	procMgr *ProcessManager
}

// claudeMessage is one line of `claude -p --output-format stream-json --verbose`.
type claudeMessage struct {
	Type      string `json:"type"`
	Subtype   string `json:"subtype"`
	SessionID string `json:"session_id"`
	Message   struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
			Name string `json:"name"`
		} `json:"content"`
	} `json:"message"`

	// result fields
	IsError      bool    `json:"is_error"`
	DurationMS   int64   `json:"duration_ms"`
	TotalCostUSD float64 `json:"total_cost_usd"`
	Result       string  `json:"result"`
}

// NewClaudeEngine creates a Claude Code engine adapter.
func NewClaudeEngine(cfg Config, procMgr *ProcessManager) *ClaudeEngine {
	command := cfg.Command
	if command == "" {
		command = "claude"
	}
	return &ClaudeEngine{command: command, args: cfg.Args, procMgr: procMgr}
}

// Name returns "claude".
func (e *ClaudeEngine) Name() string {
	return "claude"
}

// Start launches one headless claude invocation.
func (e *ClaudeEngine) Start(ctx context.Context, req Request) (Stream, error) {
	cmd := newCommand(ctx, e.command, e.buildArgs(req)...)
	cmd.Dir = req.WorkDir

	s, err := startProcess(cmd, e.procMgr, parseClaudeLine)
	if err != nil {
		return nil, fmt.Errorf("claude: %w", err)
	}
	return s, nil
}

// buildArgs constructs the command-line arguments for the claude CLI.
// A resume token continues the identity's previous conversation.
func (e *ClaudeEngine) buildArgs(req Request) []string {
	args := []string{"-p", req.Prompt, "--output-format", "stream-json", "--verbose"}

	if req.ResumeToken != "" {
		args = append(args, "--resume", req.ResumeToken)
	}
	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}
	if req.SystemPrompt != "" {
		args = append(args, "--append-system-prompt", req.SystemPrompt)
	}
	if len(req.AllowedTools) > 0 {
		args = append(args, "--allowedTools", strings.Join(req.AllowedTools, ","))
	}
	if len(req.DisallowedTools) > 0 {
		args = append(args, "--disallowedTools", strings.Join(req.DisallowedTools, ","))
	}
	if req.PermissionMode != "" {
		args = append(args, "--permission-mode", req.PermissionMode)
	}

	return append(args, e.args...)
}

// parseClaudeLine decodes one stream-json line. Message types that carry
// nothing for the dispatcher (e.g. "user" tool results) yield no events.
func parseClaudeLine(line []byte) ([]Event, error) {
	var m claudeMessage
	if err := json.Unmarshal(line, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}

	switch m.Type {
	case "system":
		if m.Subtype == "compact_boundary" {
			return []Event{{Kind: KindCompaction, SessionID: m.SessionID}}, nil
		}
		return []Event{{Kind: KindSystem, SessionID: m.SessionID}}, nil

	case "assistant":
		ev := Event{Kind: KindAssistant, SessionID: m.SessionID}
		var text []string
		for _, block := range m.Message.Content {
			switch block.Type {
			case "text":
				text = append(text, block.Text)
			case "tool_use":
				ev.ToolUses = append(ev.ToolUses, block.Name)
			}
		}
		ev.Text = strings.Join(text, "\n")
		return []Event{ev}, nil

	case "result":
		res := &Result{
			Success:    !m.IsError && (m.Subtype == "" || m.Subtype == "success"),
			CostUSD:    m.TotalCostUSD,
			DurationMS: m.DurationMS,
			Text:       m.Result,
		}
		if !res.Success {
			res.Error = m.Result
			if res.Error == "" {
				res.Error = m.Subtype
			}
		}
		return []Event{{Kind: KindResult, SessionID: m.SessionID, Result: res}}, nil
	}

	return nil, nil
}
