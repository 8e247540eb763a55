package engine

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"os/exec"
	"sync"
	"syscall"
)

// maxLineSize bounds one NDJSON event line. Assistant turns that quote whole
// files can be far larger than bufio's 64KB default.
const maxLineSize = 16 * 1024 * 1024

// newCommand creates an exec.Cmd with process group isolation.
// The Setpgid: true flag ensures the subprocess is in its own process group,
// allowing for clean termination of the entire subprocess tree.
func newCommand(ctx context.Context, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true, // New process group so signals reach the agent's children
	}
	// Context cancellation takes down the whole group, not just the leader.
	cmd.Cancel = func() error {
		return killProcessGroup(cmd)
	}
	return cmd
}

// decodeFunc turns one stdout line into zero or more events.
type decodeFunc func(line []byte) ([]Event, error)

// processStream runs a CLI and decodes its stdout line by line.
//
// stderr is drained concurrently into a buffer so the child never blocks on
// a full pipe while we are reading stdout. cmd.Wait is called only after
// stdout hit EOF (or the group was killed) and the stderr reader finished.
type processStream struct {
	cmd     *exec.Cmd
	pm      *ProcessManager
	scanner *bufio.Scanner
	decode  decodeFunc

	stderr     bytes.Buffer
	stderrDone chan struct{}

	pending []Event
	done    bool
	waitErr error
	readErr error // stdout failed before EOF; takes precedence over waitErr
	once    sync.Once
}

// startProcess starts cmd and returns a stream over its stdout.
func startProcess(cmd *exec.Cmd, pm *ProcessManager, decode decodeFunc) (*processStream, error) {
	// Create pipes for stdout and stderr
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	// Start the command and register it for shutdown cleanup
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start command: %w", err)
	}
	if pm != nil {
		pm.Track(cmd)
	}

	s := &processStream{
		cmd:        cmd,
		pm:         pm,
		scanner:    bufio.NewScanner(stdoutPipe),
		decode:     decode,
		stderrDone: make(chan struct{}),
	}
	s.scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	// Drain stderr in a goroutine; stdout is read by Recv
	go func() {
		defer close(s.stderrDone)
		io.Copy(&s.stderr, stderrPipe)
	}()

	return s, nil
}

// Recv returns the next decoded event.
func (s *processStream) Recv() (Event, error) {
	for len(s.pending) == 0 {
		if s.done {
			return Event{}, s.finalErr()
		}

		if !s.scanner.Scan() {
			scanErr := s.scanner.Err()
			if scanErr != nil {
				// Nobody reads stdout any more, so the child would block on a
				// full pipe and never exit
				killProcessGroup(s.cmd)
				s.wait()
				s.readErr = fmt.Errorf("reading event stream: %w", scanErr)
				return Event{}, s.readErr
			}
			// Clean EOF: reap the process and report how it exited
			s.wait()
			return Event{}, s.finalErr()
		}

		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue // keep-alive blank lines
		}

		events, err := s.decode(line)
		if err != nil {
			// One bad line should not cost the whole dispatch
			log.Printf("WARNING: skipping undecodable engine output: %v", err)
			continue
		}
		s.pending = events
	}

	ev := s.pending[0]
	s.pending = s.pending[1:]
	return ev, nil
}

// Close terminates the process group if it is still running and reaps it.
func (s *processStream) Close() error {
	if !s.done {
		killProcessGroup(s.cmd)
		s.wait()
	}
	return nil
}

func (s *processStream) wait() {
	s.once.Do(func() {
		// stderr must be fully drained before Wait closes the pipe
		<-s.stderrDone
		s.waitErr = s.cmd.Wait()
		if s.pm != nil {
			s.pm.Untrack(s.cmd)
		}
		s.done = true
	})
}

// finalErr is io.EOF after a clean exit, else the exit error with stderr context.
func (s *processStream) finalErr() error {
	if s.readErr != nil {
		return s.readErr
	}
	if s.waitErr == nil {
		return io.EOF
	}
	// Combine the exit error with stderr context if available
	if stderr := bytes.TrimSpace(s.stderr.Bytes()); len(stderr) > 0 {
		return fmt.Errorf("command failed: %w (stderr: %s)", s.waitErr, stderr)
	}
	return fmt.Errorf("command failed: %w", s.waitErr)
}

// killProcessGroup kills the entire process group associated with the command.
// This ensures all child processes are terminated, not just the immediate subprocess.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return fmt.Errorf("process not started")
	}

	// SIGKILL to the negative PID reaches every process in the group,
	// so no orphaned tool subprocesses survive the agent
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil {
		return fmt.Errorf("failed to kill process group: %w", err)
	}

	return nil
}

// ProcessManager tracks all running engine subprocesses and can terminate them all on shutdown.
//
// Usage pattern (typically in main):
//
//	pm := NewProcessManager()
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
//	defer cancel()
//	go func() {
//	  <-ctx.Done()
//	  pm.KillAll()
//	}()
type ProcessManager struct {
	mu    sync.Mutex
	procs map[int]*exec.Cmd
}

// NewProcessManager creates a new ProcessManager.
func NewProcessManager() *ProcessManager {
	return &ProcessManager{
		procs: make(map[int]*exec.Cmd),
	}
}

// Track registers a subprocess. Must be called after cmd.Start().
func (pm *ProcessManager) Track(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.procs[cmd.Process.Pid] = cmd
}

// Untrack removes a subprocess after cmd.Wait() returned.
func (pm *ProcessManager) Untrack(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()
	delete(pm.procs, cmd.Process.Pid)
}

// KillAll terminates all tracked subprocesses.
func (pm *ProcessManager) KillAll() error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	var errs []error
	for pid, cmd := range pm.procs {
		if err := killProcessGroup(cmd); err != nil {
			errs = append(errs, fmt.Errorf("failed to kill process %d: %w", pid, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors killing processes: %v", errs)
	}

	return nil
}

// Count returns the number of currently tracked processes.
func (pm *ProcessManager) Count() int {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return len(pm.procs)
}
