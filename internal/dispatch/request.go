package dispatch

import (
	"context"
	"fmt"
	"log"

	"github.com/aristath/pmdispatch/internal/engine"
	"github.com/aristath/pmdispatch/internal/taskdoc"
)

// RequestOptions tunes a free-form request.
type RequestOptions struct {
	// Resume continues the agent's recorded session. Without it the engine
	// starts fresh, but the recorded session still advances on success.
	Resume bool
}

// RunRequest runs agent against a free-form request instead of a task
// document, with the project status inlined into the prompt. It follows
// the same state machine and session rules as Dispatch.
func (d *Dispatcher) RunRequest(ctx context.Context, agent, request string, opts RequestOptions) Outcome {
	r := d.newRun(agent, taskdoc.Ref{})
	cfg := d.cfg

	persona, ok := cfg.Registry.Agent(agent)
	if !ok {
		return r.fail(KindUnknownAgent, fmt.Errorf("%w: %q", ErrUnknownAgent, agent))
	}

	eng, ok := cfg.Engines[persona.Provider]
	if !ok {
		return r.fail(KindEngineSetup, fmt.Errorf("%w %q", ErrEngineUnavailable, persona.Provider))
	}

	prevRec, err := r.previousSession(ctx)
	if err != nil {
		return r.sessionFailure(ctx, err)
	}

	status, _, err := cfg.Docs.Status()
	if err != nil {
		log.Printf("WARNING: request %s runs without project status: %v", r.out.ID, err)
	}

	req := engine.Request{
		Prompt:          BuildRequestPrompt(request, cfg.Docs.StatusPath(), status),
		SystemPrompt:    BuildPersona(cfg.Docs.Root(), persona),
		Model:           persona.Model,
		AllowedTools:    persona.Tools,
		DisallowedTools: persona.DisallowedTools,
		ReadOnly:        persona.ReadOnly,
		WorkDir:         cfg.WorkDir,
		PermissionMode:  persona.PermissionMode,
	}
	if opts.Resume && prevRec != nil {
		req.ResumeToken = prevRec.Token
	}

	return r.converse(ctx, eng, persona, req, prevRec)
}
