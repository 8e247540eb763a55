package dispatch

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aristath/pmdispatch/internal/config"
	"github.com/aristath/pmdispatch/internal/engine"
	"github.com/aristath/pmdispatch/internal/events"
	"github.com/aristath/pmdispatch/internal/session"
	"github.com/aristath/pmdispatch/internal/taskdoc"
)

// fakeEngine replays a scripted event sequence per request.
type fakeEngine struct {
	mu       sync.Mutex
	requests []engine.Request
	startErr error
	script   func(n int, req engine.Request) ([]engine.Event, error)
}

func (f *fakeEngine) Name() string { return "fake" }

func (f *fakeEngine) Start(ctx context.Context, req engine.Request) (engine.Stream, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	n := len(f.requests)
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.startErr != nil {
		return nil, f.startErr
	}
	evs, err := f.script(n, req)
	return &fakeStream{events: evs, err: err}, nil
}

func (f *fakeEngine) calls() []engine.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]engine.Request(nil), f.requests...)
}

type fakeStream struct {
	events []engine.Event
	err    error
	closed bool
}

func (s *fakeStream) Recv() (engine.Event, error) {
	if len(s.events) > 0 {
		ev := s.events[0]
		s.events = s.events[1:]
		return ev, nil
	}
	if s.err != nil {
		return engine.Event{}, s.err
	}
	return engine.Event{}, io.EOF
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

// succeedWith scripts a clean run that yields token and costs cost.
func succeedWith(token string, cost float64) []engine.Event {
	return []engine.Event{
		{Kind: engine.KindSystem, SessionID: token},
		{Kind: engine.KindAssistant, Text: "Reading the task file", ToolUses: []string{"Read"}},
		{Kind: engine.KindResult, Result: &engine.Result{Success: true, CostUSD: cost, DurationMS: 1500, Text: "done"}},
	}
}

type fixture struct {
	docs     *taskdoc.Store
	sessions *session.FileRegistry
	engine   *fakeEngine
	bus      *events.EventBus
	d        *Dispatcher
}

const testDoc = "# task\n\n## 📋 AGENT INSTRUCTIONS\nBuild it.\n\n## 🤖 AGENT REPORT\n_pending_\n"

func newFixture(t *testing.T, script func(n int, req engine.Request) ([]engine.Event, error)) *fixture {
	t.Helper()
	root := t.TempDir()

	f := &fixture{
		docs:     taskdoc.NewStore(root),
		sessions: session.NewFileRegistry(filepath.Join(root, "sessions.json")),
		engine:   &fakeEngine{script: script},
		bus:      events.NewEventBus(),
	}
	t.Cleanup(f.bus.Close)

	f.d = New(Config{
		Registry: config.DefaultConfig(),
		WorkDir:  "/src/project",
		Docs:     f.docs,
		Sessions: f.sessions,
		Engines:  map[string]engine.Engine{"claude": f.engine},
		Events:   f.bus,
	})
	return f
}

func (f *fixture) writeTask(t *testing.T, ref taskdoc.Ref) {
	t.Helper()
	path := f.docs.Path(ref)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(testDoc), 0644))
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}
