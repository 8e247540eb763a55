package main

import (
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aristath/pmdispatch/internal/batch"
	"github.com/aristath/pmdispatch/internal/dispatch"
	"github.com/aristath/pmdispatch/internal/events"
)

const narrationLimit = 200

// printEvents writes dispatch narration to w until sub is closed, then
// closes done.
func printEvents(w io.Writer, sub <-chan events.Event, done chan<- struct{}) {
	defer close(done)
	for ev := range sub {
		switch e := ev.(type) {
		case events.DispatchStartedEvent:
			resumed := ""
			if e.Resumed {
				resumed = " (resuming session)"
			}
			fmt.Fprintf(w, "[%s] started %s%s\n", e.Agent, e.Task, resumed)
		case events.NarrationEvent:
			if text := strings.TrimSpace(e.Text); text != "" {
				fmt.Fprintf(w, "[%s] %s\n", e.Agent, truncate(text, narrationLimit))
			}
			for _, tool := range e.Tools {
				fmt.Fprintf(w, "[%s] tool: %s\n", e.Agent, tool)
			}
		case events.CompactionEvent:
			fmt.Fprintf(w, "[%s] context compacted\n", e.Agent)
		}
	}
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}

func printOutcome(w io.Writer, out dispatch.Outcome, docPath string) {
	if out.Success {
		fmt.Fprintf(w, "✓ %s finished %s\n", out.Agent, out.Subject())
		fmt.Fprintf(w, "  cost: $%.4f  duration: %v  elapsed: %v\n", out.CostUSD, out.Duration.Round(time.Millisecond), out.Elapsed.Round(time.Millisecond))
		if docPath != "" {
			fmt.Fprintf(w, "  report: %s\n", docPath)
		}
		return
	}
	fmt.Fprintf(w, "✗ %s failed %s\n", out.Agent, out.Subject())
	fmt.Fprintf(w, "  error: %v\n", out.Failure)
}

func printBatch(w io.Writer, res batch.Result) {
	succeeded, failed := res.Succeeded(), res.Failed()

	fmt.Fprintf(w, "\nBatch %s: %d/%d succeeded in %v\n", res.BatchID, len(succeeded), len(res.Outcomes), res.Elapsed.Round(time.Millisecond))
	if len(succeeded) > 0 {
		fmt.Fprintln(w, "Succeeded:")
		for _, o := range succeeded {
			fmt.Fprintf(w, "  ✓ %s %s  $%.4f  %v\n", o.Agent, o.Task, o.CostUSD, o.Duration.Round(time.Millisecond))
		}
	}
	if len(failed) > 0 {
		fmt.Fprintln(w, "Failed:")
		for _, o := range failed {
			fmt.Fprintf(w, "  ✗ %s %s  %v\n", o.Agent, o.Task, o.Failure)
		}
	}

	avg := "n/a"
	if v, ok := res.AverageCost(); ok {
		avg = fmt.Sprintf("$%.4f", v)
	}
	fmt.Fprintf(w, "Total cost: $%.4f  Average cost: %s\n", res.TotalCost(), avg)
}
