package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/pmdispatch/internal/batch"
	"github.com/aristath/pmdispatch/internal/config"
	"github.com/aristath/pmdispatch/internal/engine"
	"github.com/aristath/pmdispatch/internal/session"
)

const testDate = "2025-10-22"

// scriptedEngine succeeds for every task whose id is not in fail. The session
// token it hands out is derived from the task id.
type scriptedEngine struct {
	mu       sync.Mutex
	requests []engine.Request
	fail     map[string]bool
}

func (e *scriptedEngine) Name() string { return "scripted" }

func (e *scriptedEngine) Start(_ context.Context, req engine.Request) (engine.Stream, error) {
	e.mu.Lock()
	e.requests = append(e.requests, req)
	e.mu.Unlock()

	id := taskIDFromPrompt(req.Prompt)
	evs := []engine.Event{
		{Kind: engine.KindSystem, SessionID: "tok-" + id},
		{Kind: engine.KindAssistant, Text: "Working on " + id, ToolUses: []string{"Read"}},
	}
	if e.fail[id] {
		evs = append(evs, engine.Event{Kind: engine.KindResult, Result: &engine.Result{Success: false, Error: "max turns reached"}})
	} else {
		evs = append(evs, engine.Event{Kind: engine.KindResult, Result: &engine.Result{Success: true, CostUSD: 0.02, DurationMS: 1000, Text: "Status: passed"}})
	}
	return &sliceStream{events: evs}, nil
}

// taskIDFromPrompt recovers the task id from "Read the task file at <path> using ...".
// Free-form requests have no task file and map to "request".
func taskIDFromPrompt(prompt string) string {
	_, rest, found := strings.Cut(prompt, "task file at ")
	if !found {
		return "request"
	}
	path, _, _ := strings.Cut(rest, " ")
	return strings.TrimSuffix(filepath.Base(path), ".md")
}

func (e *scriptedEngine) calls() []engine.Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]engine.Request(nil), e.requests...)
}

type sliceStream struct {
	events []engine.Event
}

func (s *sliceStream) Recv() (engine.Event, error) {
	if len(s.events) == 0 {
		return engine.Event{}, io.EOF
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, nil
}

func (s *sliceStream) Close() error { return nil }

type cliEnv struct {
	pmRoot      string
	projectRoot string
	engine      *scriptedEngine
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("ANTHROPIC_API_KEY", "test-key")
	return &cliEnv{
		pmRoot:      t.TempDir(),
		projectRoot: t.TempDir(),
		engine:      &scriptedEngine{fail: map[string]bool{}},
	}
}

func (e *cliEnv) execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	a := wireApp()
	a.newEngine = func(engine.Config, *engine.ProcessManager) (engine.Engine, error) {
		return e.engine, nil
	}
	a.now = func() time.Time { return time.Date(2025, 10, 22, 9, 30, 0, 0, time.UTC) }

	root := newRootCmd(a)
	stdout := &bytes.Buffer{}
	root.SetOut(stdout)
	root.SetErr(&bytes.Buffer{})
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--pm-root", e.pmRoot}, args...))

	err := root.Execute()
	return stdout.String(), err
}

func (e *cliEnv) initProject(t *testing.T) {
	t.Helper()
	_, err := e.execute(t, "", "init", "--project-root", e.projectRoot, "--name", "shop")
	require.NoError(t, err)
}

func (e *cliEnv) writeTask(t *testing.T, id string) string {
	t.Helper()
	path := filepath.Join(e.pmRoot, "agents", "tasks", testDate, id+".md")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(taskTemplate), 0644))
	return path
}

func (e *cliEnv) writeTaskList(t *testing.T, entries ...batch.Entry) string {
	t.Helper()
	data, err := json.Marshal(entries)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "batch.json")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func entry(agent, id string) batch.Entry {
	return batch.Entry{AgentType: agent, TaskDate: testDate, TaskID: id}
}

const taskTemplate = `# Task

## 📋 AGENT INSTRUCTIONS
_to be filled_

## 🤖 AGENT REPORT
_pending_

## ✅ AUDIT REPORT
_pending_
`

func TestInit(t *testing.T) {
	e := newCLIEnv(t)

	stdout, err := e.execute(t, "", "init", "--project-root", e.projectRoot, "--frontend", "web", "--backend", "api")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Initialized")

	project, err := config.LoadProject(e.pmRoot, nil)
	require.NoError(t, err)
	assert.Equal(t, e.projectRoot, project.ProjectRoot)
	assert.Equal(t, filepath.Base(e.projectRoot), project.ProjectName)
	assert.Equal(t, "web", project.FrontendPath)
	assert.Equal(t, "2025-10-22T09:30:00Z", project.CreatedAt)
	assert.DirExists(t, filepath.Join(e.pmRoot, "agents", "tasks"))

	_, err = e.execute(t, "", "init", "--project-root", e.projectRoot)
	assert.ErrorContains(t, err, "already exists")

	_, err = e.execute(t, "", "init", "--project-root", e.projectRoot, "--force")
	assert.NoError(t, err)
}

func TestDispatchOne_MissingConfiguration(t *testing.T) {
	e := newCLIEnv(t)
	e.writeTask(t, "fe-task-001")

	_, err := e.execute(t, "", "dispatch-one", "fe-implementor", testDate, "fe-task-001")

	require.ErrorIs(t, err, config.ErrConfigurationMissing)
	assert.Contains(t, err.Error(), "pmdispatch init")
	assert.Empty(t, e.engine.calls())
}

func TestDispatchOne_MissingCredential(t *testing.T) {
	e := newCLIEnv(t)
	e.initProject(t)
	e.writeTask(t, "fe-task-001")
	t.Setenv("ANTHROPIC_API_KEY", "")

	_, err := e.execute(t, "", "dispatch-one", "fe-implementor", testDate, "fe-task-001")

	require.ErrorIs(t, err, config.ErrConfigurationMissing)
	assert.Contains(t, err.Error(), "ANTHROPIC_API_KEY")
	assert.Empty(t, e.engine.calls())
}

func TestDispatchOne_InvalidArguments(t *testing.T) {
	e := newCLIEnv(t)
	e.initProject(t)

	_, err := e.execute(t, "", "dispatch-one", "fe-implementor", testDate)
	assert.Error(t, err)

	_, err = e.execute(t, "", "dispatch-one", "fe-implementor", "22-10-2025", "fe-task-001")
	assert.Error(t, err)
}

func TestDispatchOne_SuccessThenResume(t *testing.T) {
	e := newCLIEnv(t)
	e.initProject(t)
	e.writeTask(t, "fe-task-001")
	e.writeTask(t, "fe-task-002")

	stdout, err := e.execute(t, "", "dispatch-one", "fe-implementor", testDate, "fe-task-001")
	require.NoError(t, err)
	assert.Contains(t, stdout, "[fe-implementor] started 2025-10-22/fe-task-001\n")
	assert.Contains(t, stdout, "[fe-implementor] Working on fe-task-001")
	assert.Contains(t, stdout, "[fe-implementor] tool: Read")
	assert.Contains(t, stdout, "✓ fe-implementor finished 2025-10-22/fe-task-001")
	assert.Contains(t, stdout, "cost: $0.0200")

	req := e.engine.calls()[0]
	assert.Equal(t, e.projectRoot, req.WorkDir)
	assert.Empty(t, req.ResumeToken)

	stdout, err = e.execute(t, "", "dispatch-one", "fe-implementor", testDate, "fe-task-002")
	require.NoError(t, err)
	assert.Contains(t, stdout, "(resuming session)")
	assert.Equal(t, "tok-fe-task-001", e.engine.calls()[1].ResumeToken)

	reg := session.NewFileRegistry(filepath.Join(e.pmRoot, "sessions.json"))
	rec, ok, err := reg.Get(context.Background(), "fe-implementor")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, rec.TasksCompleted)
	assert.Equal(t, "tok-fe-task-002", rec.Token)
}

func TestDispatchOne_Failures(t *testing.T) {
	e := newCLIEnv(t)
	e.initProject(t)
	e.writeTask(t, "be-task-001")
	e.engine.fail["be-task-001"] = true

	stdout, err := e.execute(t, "", "dispatch-one", "be-implementor", testDate, "be-task-001")
	require.ErrorIs(t, err, errDispatchFailed)
	assert.Contains(t, stdout, "✗ be-implementor failed 2025-10-22/be-task-001")
	assert.Contains(t, stdout, "max turns reached")

	stdout, err = e.execute(t, "", "dispatch-one", "be-implementor", testDate, "be-task-404")
	require.ErrorIs(t, err, errDispatchFailed)
	assert.Contains(t, stdout, "task_not_found")

	stdout, err = e.execute(t, "", "dispatch-one", "qa-engineer", testDate, "be-task-001")
	require.ErrorIs(t, err, errDispatchFailed)
	assert.Contains(t, stdout, "unknown_agent")
	assert.Contains(t, stdout, "available agents: be-auditor, be-implementor, fe-auditor, fe-implementor")

	assert.Len(t, e.engine.calls(), 1, "only the first dispatch reaches the engine")
}

func TestDispatchBatch_PartialFailure(t *testing.T) {
	e := newCLIEnv(t)
	e.initProject(t)
	for _, id := range []string{"fe-task-001", "be-task-001", "fe-task-002"} {
		e.writeTask(t, id)
	}
	e.engine.fail["be-task-001"] = true

	list := e.writeTaskList(t,
		entry("fe-implementor", "fe-task-001"),
		entry("be-implementor", "be-task-001"),
		entry("fe-auditor", "fe-task-002"),
	)
	stdout, err := e.execute(t, "", "dispatch-batch", list)

	require.ErrorIs(t, err, errDispatchFailed)
	assert.Contains(t, err.Error(), "1 of 3 dispatches failed")
	assert.Contains(t, stdout, "2/3 succeeded")
	assert.Contains(t, stdout, "✗ be-implementor 2025-10-22/be-task-001")
	assert.Contains(t, stdout, "Total cost: $0.0400  Average cost: $0.0200")
	assert.Len(t, e.engine.calls(), 3)
}

func TestDispatchBatch_AllFailed(t *testing.T) {
	e := newCLIEnv(t)
	e.initProject(t)
	e.writeTask(t, "fe-task-001")
	e.engine.fail["fe-task-001"] = true

	stdout, err := e.execute(t, "", "dispatch-batch", e.writeTaskList(t, entry("fe-implementor", "fe-task-001")))

	require.ErrorIs(t, err, errDispatchFailed)
	assert.Contains(t, stdout, "0/1 succeeded")
	assert.Contains(t, stdout, "Average cost: n/a")
}

func TestDispatchBatch_Clean(t *testing.T) {
	e := newCLIEnv(t)
	e.initProject(t)
	e.writeTask(t, "fe-task-001")
	e.writeTask(t, "be-task-001")

	stdout, err := e.execute(t, "", "dispatch-batch", e.writeTaskList(t,
		entry("fe-implementor", "fe-task-001"),
		entry("be-implementor", "be-task-001"),
	))
	require.NoError(t, err)
	assert.Contains(t, stdout, "2/2 succeeded")
	assert.NotContains(t, stdout, "Failed:")
}

func TestDispatchBatch_Rejected(t *testing.T) {
	e := newCLIEnv(t)
	e.initProject(t)

	_, err := e.execute(t, "", "dispatch-batch", e.writeTaskList(t,
		entry("fe-implementor", "fe-task-001"),
		entry("fe-implementor", "fe-task-002"),
	))
	assert.ErrorIs(t, err, batch.ErrConflictingPairs)

	_, err = e.execute(t, "", "dispatch-batch", e.writeTaskList(t))
	assert.ErrorContains(t, err, "empty")

	assert.Empty(t, e.engine.calls())
}

func TestTaskCommands(t *testing.T) {
	e := newCLIEnv(t)
	tplDir := filepath.Join(e.pmRoot, "agents", "templates")
	require.NoError(t, os.MkdirAll(tplDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(tplDir, "fe-task-template.md"), []byte(taskTemplate), 0644))

	stdout, err := e.execute(t, "Build the login form.\n", "task", "create", testDate, "fe-task-001", "--type", "fe")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Created")

	_, err = e.execute(t, "again", "task", "create", testDate, "fe-task-001", "--type", "fe")
	assert.Error(t, err, "existing task documents are never overwritten")

	reportFile := filepath.Join(t.TempDir(), "report.md")
	require.NoError(t, os.WriteFile(reportFile, []byte("Status: done\n"), 0644))
	_, err = e.execute(t, "", "task", "write-section", testDate, "fe-task-001", "report", "--file", reportFile)
	require.NoError(t, err)

	stdout, err = e.execute(t, "", "task", "show", testDate, "fe-task-001", "instructions")
	require.NoError(t, err)
	assert.Equal(t, "Build the login form.\n", stdout)

	stdout, err = e.execute(t, "", "task", "show", testDate, "fe-task-001", "report")
	require.NoError(t, err)
	assert.Equal(t, "Status: done\n", stdout)

	stdout, err = e.execute(t, "", "task", "show", testDate, "fe-task-001")
	require.NoError(t, err)
	assert.Contains(t, stdout, "## ✅ AUDIT REPORT\n_pending_")

	_, err = e.execute(t, "", "task", "write-section", testDate, "fe-task-001", "summary")
	assert.ErrorContains(t, err, "unknown section")
}

func TestStatusAppend(t *testing.T) {
	e := newCLIEnv(t)

	_, err := e.execute(t, "", "status", "append", "Shipped", "login")
	require.NoError(t, err)
	_, err = e.execute(t, "Started checkout\n", "status", "append")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(e.pmRoot, "NOW.md"))
	require.NoError(t, err)
	content := string(data)
	assert.True(t, strings.HasPrefix(content, "# NOW - Current Project Status"))
	assert.Contains(t, content, "## Update: 2025-10-22T09:30:00Z\nShipped login\n")
	assert.Contains(t, content, "Started checkout")

	_, err = e.execute(t, "", "status", "append")
	assert.ErrorContains(t, err, "empty")
}

func TestSessionCommands(t *testing.T) {
	e := newCLIEnv(t)
	e.initProject(t)
	e.writeTask(t, "fe-task-001")

	stdout, err := e.execute(t, "", "session", "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, "No sessions recorded.")

	_, err = e.execute(t, "", "dispatch-one", "fe-implementor", testDate, "fe-task-001")
	require.NoError(t, err)

	stdout, err = e.execute(t, "", "session", "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, "fe-implementor")
	assert.Contains(t, stdout, "tok-fe-task-001")

	stdout, err = e.execute(t, "", "session", "clear", "fe-implementor")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Cleared session for fe-implementor")

	stdout, err = e.execute(t, "", "session", "clear", "fe-implementor")
	require.NoError(t, err)
	assert.Contains(t, stdout, "No session recorded")
}

func TestWorkflowRun(t *testing.T) {
	e := newCLIEnv(t)
	e.initProject(t)
	first := e.writeTask(t, "fe-task-001")
	e.writeTask(t, "fe-task-002")

	stdout, err := e.execute(t, "", "workflow", "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, "frontend\tfe-implementor -> fe-auditor")

	list := e.writeTaskList(t, entry("", "fe-task-001"), entry("", "fe-task-002"))
	stdout, err = e.execute(t, "", "workflow", "run", "frontend", list)
	require.NoError(t, err)
	assert.Contains(t, stdout, "implement (fe-implementor): 2/2 succeeded")
	assert.Contains(t, stdout, "audit (fe-auditor): 2/2 succeeded")
	assert.Contains(t, stdout, "Total cost: $0.0800")

	doc, err := os.ReadFile(first)
	require.NoError(t, err)
	assert.Contains(t, string(doc), "## ✅ AUDIT REPORT\nStatus: passed\n")

	_, err = e.execute(t, "", "workflow", "run", "mobile", list)
	assert.Error(t, err)
}

func TestManager_ResumeIsOptIn(t *testing.T) {
	e := newCLIEnv(t)
	e.initProject(t)
	_, err := e.execute(t, "", "status", "append", "Week 1 kicked off")
	require.NoError(t, err)

	stdout, err := e.execute(t, "", "manager", "Start", "Week", "1")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Starting new manager session")
	assert.Contains(t, stdout, "[manager] started request\n")
	assert.Contains(t, stdout, "✓ manager finished request")
	assert.Contains(t, stdout, "session saved: tok-request (tasks completed 1)")

	stdout, err = e.execute(t, "", "manager", "--resume", "Continue Week 1")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Resuming session tok-request (started 2025-10-22T09:30:00Z, tasks completed 1)")
	assert.Contains(t, stdout, "tasks completed 2")

	_, err = e.execute(t, "", "manager", "Plan Week 2")
	require.NoError(t, err)

	calls := e.engine.calls()
	require.Len(t, calls, 3)
	assert.Contains(t, calls[0].Prompt, "Start Week 1")
	assert.Contains(t, calls[0].Prompt, "Week 1 kicked off")
	assert.Empty(t, calls[0].ResumeToken)
	assert.Equal(t, "tok-request", calls[1].ResumeToken)
	assert.Empty(t, calls[2].ResumeToken)
	assert.Equal(t, e.projectRoot, calls[0].WorkDir)

	reg := session.NewFileRegistry(filepath.Join(e.pmRoot, "sessions.json"))
	rec, ok, err := reg.Get(context.Background(), "manager")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, rec.TasksCompleted)
}

func TestManager_Failures(t *testing.T) {
	e := newCLIEnv(t)
	e.initProject(t)

	_, err := e.execute(t, "", "manager")
	assert.Error(t, err, "a request is required")

	_, err = e.execute(t, "", "manager", "  ")
	assert.ErrorContains(t, err, "empty")

	e.engine.fail["request"] = true
	stdout, err := e.execute(t, "", "manager", "Start Week 1")
	assert.ErrorIs(t, err, errDispatchFailed)
	assert.Contains(t, stdout, "✗ manager failed request")
	assert.NotContains(t, stdout, "session saved")
}

func TestDispatchOne_PromptNamesCodebase(t *testing.T) {
	e := newCLIEnv(t)
	_, err := e.execute(t, "", "init", "--project-root", e.projectRoot, "--frontend", "web", "--backend", "api")
	require.NoError(t, err)
	e.writeTask(t, "be-task-001")

	_, err = e.execute(t, "", "dispatch-one", "be-implementor", testDate, "be-task-001")
	require.NoError(t, err)

	prompt := e.engine.calls()[0].Prompt
	assert.Contains(t, prompt, "The backend code lives in "+filepath.Join(e.projectRoot, "api")+".")
	assert.NotContains(t, prompt, filepath.Join(e.projectRoot, "web"))
}
