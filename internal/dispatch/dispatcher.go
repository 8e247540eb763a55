// Package dispatch runs one agent identity against one task document through
// an execution engine and normalizes what happened into an Outcome.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/aristath/pmdispatch/internal/config"
	"github.com/aristath/pmdispatch/internal/engine"
	"github.com/aristath/pmdispatch/internal/events"
	"github.com/aristath/pmdispatch/internal/session"
	"github.com/aristath/pmdispatch/internal/taskdoc"
)

// Outcome is the immutable result of one dispatch.
type Outcome struct {
	ID       string
	Task     taskdoc.Ref
	Agent    string
	Success  bool
	State    State
	Elapsed  time.Duration // wall clock, request to terminal state
	Duration time.Duration // engine-reported run time
	CostUSD  float64
	Token    string   // session token captured from the stream, if any
	Failure  *Failure // nil on success
}

// Subject names what the dispatch worked on: the task reference, or
// "request" for a free-form request.
func (o Outcome) Subject() string {
	if o.Task == (taskdoc.Ref{}) {
		return "request"
	}
	return o.Task.String()
}

// Options tunes a single dispatch.
type Options struct {
	// RequireTask checks the task document exists before contacting the
	// engine. Batch dispatches leave this off and let the engine find out.
	RequireTask bool
}

// Config wires a Dispatcher.
type Config struct {
	Registry  *config.Config           // agent identities and providers
	WorkDir   string                   // project root the agent works in
	Codebases map[string]string        // codebase name -> directory, named in prompts
	Docs      *taskdoc.Store           // task documents
	Sessions  session.Registry         // resumption tokens
	Engines   map[string]engine.Engine // keyed by provider name
	Events    events.Publisher         // optional
	Clock     func() time.Time         // optional
}

// Dispatcher runs dispatches. It is safe for concurrent use as long as its
// collaborators are; it performs no retries.
type Dispatcher struct {
	cfg Config
}

// New creates a Dispatcher.
func New(cfg Config) *Dispatcher {
	if cfg.Events == nil {
		cfg.Events = events.Discard
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Dispatcher{cfg: cfg}
}

// Agents returns the registry the dispatcher resolves identities against.
func (d *Dispatcher) Agents() *config.Config {
	return d.cfg.Registry
}

// Dispatch runs agent against ref and always returns an outcome; failures are
// reported through Outcome.Failure, never as a panic or a separate error.
func (d *Dispatcher) Dispatch(ctx context.Context, agent string, ref taskdoc.Ref, opts Options) Outcome {
	return d.newRun(agent, ref).execute(ctx, opts)
}

func (d *Dispatcher) newRun(agent string, ref taskdoc.Ref) *dispatchRun {
	return &dispatchRun{
		d:     d,
		m:     &machine{},
		start: d.cfg.Clock(),
		out: Outcome{
			ID:    uuid.NewString(),
			Task:  ref,
			Agent: agent,
		},
	}
}

// dispatchRun carries the state of one in-flight dispatch.
type dispatchRun struct {
	d     *Dispatcher
	m     *machine
	start time.Time
	out   Outcome
}

func (r *dispatchRun) execute(ctx context.Context, opts Options) Outcome {
	cfg := r.d.cfg

	persona, ok := cfg.Registry.Agent(r.out.Agent)
	if !ok {
		return r.fail(KindUnknownAgent, fmt.Errorf("%w: %q", ErrUnknownAgent, r.out.Agent))
	}

	if err := r.out.Task.Validate(); err != nil {
		return r.fail(KindTaskNotFound, err)
	}
	if opts.RequireTask {
		exists, err := cfg.Docs.Exists(r.out.Task)
		if err != nil {
			return r.fail(KindTaskNotFound, err)
		}
		if !exists {
			return r.fail(KindTaskNotFound, fmt.Errorf("%w: %s", taskdoc.ErrTaskNotFound, cfg.Docs.Path(r.out.Task)))
		}
	}

	eng, ok := cfg.Engines[persona.Provider]
	if !ok {
		return r.fail(KindEngineSetup, fmt.Errorf("%w %q", ErrEngineUnavailable, persona.Provider))
	}

	prevRec, err := r.previousSession(ctx)
	if err != nil {
		return r.sessionFailure(ctx, err)
	}

	req := engine.Request{
		Prompt:          BuildPrompt(cfg.Docs.Path(r.out.Task), persona, cfg.Codebases[persona.Codebase]),
		SystemPrompt:    BuildPersona(cfg.Docs.Root(), persona),
		Model:           persona.Model,
		AllowedTools:    persona.Tools,
		DisallowedTools: persona.DisallowedTools,
		ReadOnly:        persona.ReadOnly,
		WorkDir:         cfg.WorkDir,
		PermissionMode:  persona.PermissionMode,
	}
	if prevRec != nil {
		req.ResumeToken = prevRec.Token
	}

	return r.converse(ctx, eng, persona, req, prevRec)
}

// previousSession returns the agent's recorded session, or nil.
func (r *dispatchRun) previousSession(ctx context.Context) (*session.Record, error) {
	prev, found, err := r.d.cfg.Sessions.Get(ctx, r.out.Agent)
	if err != nil || !found {
		return nil, err
	}
	return &prev, nil
}

func (r *dispatchRun) sessionFailure(ctx context.Context, err error) Outcome {
	if ctx.Err() != nil {
		return r.fail(KindCanceled, err)
	}
	return r.fail(KindSessionStore, err)
}

// converse runs req through eng from Requested to a terminal state. On
// success the session advances from prevRec, which carries the count forward
// even when req did not resume it.
func (r *dispatchRun) converse(ctx context.Context, eng engine.Engine, persona config.AgentConfig, req engine.Request, prevRec *session.Record) Outcome {
	cfg := r.d.cfg

	r.advance(StateRequested)
	stream, err := eng.Start(ctx, req)
	if err != nil {
		return r.streamFailure(ctx, err)
	}
	defer stream.Close()

	r.advance(StateStreaming)
	cfg.Events.Publish(events.DispatchStartedEvent{
		ID:        r.out.ID,
		Agent:     r.out.Agent,
		Task:      r.out.Subject(),
		Resumed:   req.ResumeToken != "",
		Timestamp: cfg.Clock(),
	})

	result, err := r.consume(stream)
	if err != nil {
		return r.streamFailure(ctx, err)
	}
	if !result.Success {
		return r.fail(KindEngineStream, fmt.Errorf("%w: engine reported failure: %s", ErrEngineStream, result.Error))
	}

	// Only task dispatches have a document to write back into
	writeBack := r.out.Task != (taskdoc.Ref{})
	if writeBack && persona.ReadOnly && persona.ReportSection != "" && result.Text != "" {
		if err := cfg.Docs.UpsertSection(r.out.Task, persona.ReportSection, result.Text); err != nil {
			kind := KindReportWrite
			if errors.Is(err, taskdoc.ErrTaskNotFound) {
				kind = KindTaskNotFound
			}
			return r.fail(kind, err)
		}
	}

	if r.out.Token != "" {
		rec := session.Advance(prevRec, r.out.Agent, r.out.Token, r.out.Subject(), cfg.Clock())
		if err := cfg.Sessions.Save(ctx, rec); err != nil {
			log.Printf("WARNING: dispatch %s succeeded but session for %q was not saved: %v", r.out.ID, r.out.Agent, err)
		}
	}

	r.out.CostUSD = result.CostUSD
	r.out.Duration = time.Duration(result.DurationMS) * time.Millisecond
	return r.succeed()
}

// consume reads the stream in arrival order up to the terminal result event.
func (r *dispatchRun) consume(stream engine.Stream) (*engine.Result, error) {
	cfg := r.d.cfg
	for {
		ev, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil, ErrNoResult
		}
		if err != nil {
			return nil, err
		}

		switch ev.Kind {
		case engine.KindSystem:
			if ev.SessionID != "" {
				r.out.Token = ev.SessionID
			}
		case engine.KindAssistant:
			cfg.Events.Publish(events.NarrationEvent{
				ID:        r.out.ID,
				Agent:     r.out.Agent,
				Text:      ev.Text,
				Tools:     ev.ToolUses,
				Timestamp: cfg.Clock(),
			})
		case engine.KindCompaction:
			cfg.Events.Publish(events.CompactionEvent{
				ID:        r.out.ID,
				Agent:     r.out.Agent,
				Timestamp: cfg.Clock(),
			})
		case engine.KindResult:
			if r.out.Token == "" && ev.SessionID != "" {
				r.out.Token = ev.SessionID
			}
			if ev.Result == nil {
				return nil, fmt.Errorf("result event without payload")
			}
			return ev.Result, nil
		}
	}
}

func (r *dispatchRun) advance(to State) {
	if err := r.m.advance(to); err != nil {
		// Only reachable through a programming error in execute.
		panic(err)
	}
}

func (r *dispatchRun) streamFailure(ctx context.Context, err error) Outcome {
	if ctx.Err() != nil {
		return r.fail(KindCanceled, fmt.Errorf("%w: %v", ctx.Err(), err))
	}
	if !errors.Is(err, ErrEngineStream) {
		err = fmt.Errorf("%w: %w", ErrEngineStream, err)
	}
	return r.fail(KindEngineStream, err)
}

func (r *dispatchRun) fail(kind ErrorKind, err error) Outcome {
	r.advance(StateFailed)
	r.out.State = StateFailed
	r.out.Success = false
	r.out.Failure = &Failure{Kind: kind, Err: err}
	r.out.Elapsed = r.d.cfg.Clock().Sub(r.start)

	r.d.cfg.Events.Publish(events.DispatchFailedEvent{
		ID:        r.out.ID,
		Agent:     r.out.Agent,
		Task:      r.out.Subject(),
		Kind:      string(kind),
		Err:       err,
		Elapsed:   r.out.Elapsed,
		Timestamp: r.d.cfg.Clock(),
	})
	return r.out
}

func (r *dispatchRun) succeed() Outcome {
	r.advance(StateSucceeded)
	r.out.State = StateSucceeded
	r.out.Success = true
	r.out.Elapsed = r.d.cfg.Clock().Sub(r.start)

	r.d.cfg.Events.Publish(events.DispatchSucceededEvent{
		ID:        r.out.ID,
		Agent:     r.out.Agent,
		Task:      r.out.Subject(),
		CostUSD:   r.out.CostUSD,
		Duration:  r.out.Duration,
		Elapsed:   r.out.Elapsed,
		Timestamp: r.d.cfg.Clock(),
	})
	return r.out
}
