package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/spf13/viper"

	"github.com/aristath/pmdispatch/internal/batch"
	"github.com/aristath/pmdispatch/internal/config"
	"github.com/aristath/pmdispatch/internal/dispatch"
	"github.com/aristath/pmdispatch/internal/engine"
	"github.com/aristath/pmdispatch/internal/events"
	"github.com/aristath/pmdispatch/internal/session"
	"github.com/aristath/pmdispatch/internal/taskdoc"
)

type engineFactory func(engine.Config, *engine.ProcessManager) (engine.Engine, error)

type app struct {
	pmRoot    string
	pm        *engine.ProcessManager
	newEngine engineFactory
	now       func() time.Time
}

func wireApp() *app {
	return &app{
		pm:        engine.NewProcessManager(),
		newEngine: engine.New,
		now:       time.Now,
	}
}

func (a *app) docs() *taskdoc.Store {
	return taskdoc.NewStore(a.pmRoot, taskdoc.WithClock(a.now))
}

func (a *app) registry() (*config.Config, error) {
	cfg, err := config.LoadDefault(a.pmRoot)
	if err != nil {
		return nil, fmt.Errorf("load agent registry: %w", err)
	}
	return cfg, nil
}

func (a *app) sessions(ctx context.Context, cfg *config.Config) (session.Registry, error) {
	reg, err := session.Open(ctx, cfg.Sessions.Backend, cfg.Sessions.Path, a.pmRoot)
	if err != nil {
		return nil, fmt.Errorf("open session registry: %w", err)
	}
	return reg, nil
}

// runtime is everything a dispatching command needs. Close it when done.
type runtime struct {
	project    *config.Project
	cfg        *config.Config
	sessions   session.Registry
	bus        *events.EventBus
	dispatcher *dispatch.Dispatcher
}

// runtime loads configuration and checks credentials for agents before
// anything is dispatched. Configuration errors are fatal for the invocation.
func (a *app) runtime(ctx context.Context, agents []string) (*runtime, error) {
	project, err := config.LoadProject(a.pmRoot, viper.New())
	if err != nil {
		return nil, err
	}

	cfg, err := a.registry()
	if err != nil {
		return nil, err
	}

	if err := project.RequireCredentials(cfg, agents...); err != nil {
		return nil, err
	}

	sessions, err := a.sessions(ctx, cfg)
	if err != nil {
		return nil, err
	}

	engines := make(map[string]engine.Engine, len(cfg.Providers))
	for name, p := range cfg.Providers {
		e, err := a.newEngine(engine.Config{Type: p.Type, Command: p.Command, Args: p.Args}, a.pm)
		if err != nil {
			// Dispatches for this provider fail individually.
			log.Printf("WARNING: provider %q unavailable: %v", name, err)
			continue
		}
		engines[name] = e
	}

	bus := events.NewEventBus()
	return &runtime{
		project:  project,
		cfg:      cfg,
		sessions: sessions,
		bus:      bus,
		dispatcher: dispatch.New(dispatch.Config{
			Registry:  cfg,
			WorkDir:   project.ProjectRoot,
			Codebases: project.Codebases(),
			Docs:      a.docs(),
			Sessions:  sessions,
			Engines:   engines,
			Events:    bus,
			Clock:     a.now,
		}),
	}, nil
}

func (r *runtime) coordinator(retries uint64) *batch.Coordinator {
	cfg := batch.Config{
		Dispatcher: r.dispatcher,
		Events:     r.bus,
		Registry:   r.cfg,
	}
	if retries > 0 {
		cfg.Retry = batch.DefaultRetryConfig(retries)
	}
	return batch.NewCoordinator(cfg)
}

func (r *runtime) Close() {
	r.bus.Close()
	if err := r.sessions.Close(); err != nil {
		log.Printf("WARNING: closing session registry: %v", err)
	}
}
