package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// CodexEngine drives the Codex CLI via `codex exec --json`.
// Codex reports no monetary cost, so results carry CostUSD 0 and a duration
// measured from process start.
type CodexEngine struct {
	command string
	args    []string
	procMgr *ProcessManager
	now     func() time.Time
}

// codexEvent covers both the dotted event names of current releases and the
// ThreadStarted/TurnCompleted names of older ones.
type codexEvent struct {
	Type     string `json:"type"`
	ThreadID string `json:"thread_id"`
	Content  string `json:"content"`
	Message  string `json:"message"`
	Item     struct {
		Type    string `json:"type"`
		Text    string `json:"text"`
		Command string `json:"command"`
	} `json:"item"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// NewCodexEngine creates a Codex engine adapter.
func NewCodexEngine(cfg Config, procMgr *ProcessManager) *CodexEngine {
	command := cfg.Command
	if command == "" {
		command = "codex"
	}
	return &CodexEngine{command: command, args: cfg.Args, procMgr: procMgr, now: time.Now}
}

// Name returns "codex".
func (e *CodexEngine) Name() string {
	return "codex"
}

// Start launches one codex exec invocation.
func (e *CodexEngine) Start(ctx context.Context, req Request) (Stream, error) {
	cmd := newCommand(ctx, e.command, e.buildArgs(req)...)
	cmd.Dir = req.WorkDir

	s, err := startProcess(cmd, e.procMgr, newCodexDecoder(e.now))
	if err != nil {
		return nil, fmt.Errorf("codex: %w", err)
	}
	return s, nil
}

// buildArgs constructs the command arguments for codex CLI.
// First message: ["exec", "--json", ..., prompt]
// Resume: ["exec", "resume", threadID, "--json", ..., prompt]
func (e *CodexEngine) buildArgs(req Request) []string {
	args := []string{"exec"}
	if req.ResumeToken != "" {
		args = append(args, "resume", req.ResumeToken)
	}
	args = append(args, "--json")

	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}
	if req.ReadOnly {
		args = append(args, "--sandbox", "read-only")
	} else {
		args = append(args, "--sandbox", "workspace-write")
	}
	args = append(args, e.args...)

	// Codex has no system prompt flag; the persona leads the prompt.
	prompt := req.Prompt
	if req.SystemPrompt != "" {
		prompt = req.SystemPrompt + "\n\n" + prompt
	}
	return append(args, prompt)
}

// newCodexDecoder returns a stateful decoder for one codex run. It remembers
// the last agent message so the terminal event can carry it.
func newCodexDecoder(now func() time.Time) decodeFunc {
	start := now()
	var lastMessage string

	return func(line []byte) ([]Event, error) {
		var evt codexEvent
		if err := json.Unmarshal(line, &evt); err != nil {
			return nil, fmt.Errorf("failed to parse event type: %w", err)
		}

		switch evt.Type {
		case "thread.started", "ThreadStarted":
			return []Event{{Kind: KindSystem, SessionID: evt.ThreadID}}, nil

		case "item.completed":
			switch evt.Item.Type {
			case "agent_message":
				lastMessage = evt.Item.Text
				return []Event{{Kind: KindAssistant, Text: evt.Item.Text}}, nil
			case "command_execution":
				return []Event{{Kind: KindAssistant, ToolUses: []string{"shell"}, Text: evt.Item.Command}}, nil
			case "file_change":
				return []Event{{Kind: KindAssistant, ToolUses: []string{"apply_patch"}}}, nil
			}

		case "error":
			return []Event{{Kind: KindAssistant, Text: "error: " + evt.Message}}, nil

		case "turn.completed", "TurnCompleted":
			text := lastMessage
			if evt.Content != "" {
				text = evt.Content
			}
			return []Event{{Kind: KindResult, Result: &Result{
				Success:    true,
				DurationMS: now().Sub(start).Milliseconds(),
				Text:       text,
			}}}, nil

		case "turn.failed":
			return []Event{{Kind: KindResult, Result: &Result{
				Success:    false,
				DurationMS: now().Sub(start).Milliseconds(),
				Error:      evt.Error.Message,
			}}}, nil
		}

		return nil, nil
	}
}
