package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/aristath/pmdispatch/internal/engine"
)

func main() {
	if err := run(context.Background(), wireApp(), os.Args[1:]); err != nil {
		os.Exit(1)
	}
}

// run executes the command line in args. SIGINT or SIGTERM, or cancellation
// of parent, cancels the running command and kills every agent process group.
func run(parent context.Context, a *app, args []string) error {
	// Create signal-aware context for graceful shutdown
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	release := killOnCancel(ctx, a.pm, stop)
	defer release()

	root := newRootCmd(a)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// killOnCancel kills every process tracked by pm once ctx is done. The
// returned release stops watching; it returns after any kill has finished.
func killOnCancel(ctx context.Context, pm *engine.ProcessManager, stop context.CancelFunc) (release func()) {
	done := make(chan struct{})
	finished := make(chan struct{})

	go func() {
		defer close(finished)
		select {
		case <-ctx.Done():
		case <-done:
		}
		if ctx.Err() == nil {
			return // normal exit
		}

		// Restore default handling so a second Ctrl+C force-exits
		stop()
		log.Println("Shutdown signal received, cleaning up...")
		if err := pm.KillAll(); err != nil {
			log.Printf("Error killing subprocesses: %v", err)
		}
	}()

	return func() {
		close(done)
		<-finished
	}
}
