package batch

import (
	"time"

	"github.com/aristath/pmdispatch/internal/dispatch"
)

// Result aggregates one batch. Outcomes are in submission order regardless of
// completion order.
type Result struct {
	BatchID  string
	Outcomes []dispatch.Outcome
	Elapsed  time.Duration // wall clock from batch start to the last completion
}

// Succeeded returns the successful outcomes.
func (r Result) Succeeded() []dispatch.Outcome {
	return r.filter(true)
}

// Failed returns the failed outcomes.
func (r Result) Failed() []dispatch.Outcome {
	return r.filter(false)
}

func (r Result) filter(success bool) []dispatch.Outcome {
	var out []dispatch.Outcome
	for _, o := range r.Outcomes {
		if o.Success == success {
			out = append(out, o)
		}
	}
	return out
}

// TotalCost sums cost over successful outcomes only.
func (r Result) TotalCost() float64 {
	var total float64
	for _, o := range r.Outcomes {
		if o.Success {
			total += o.CostUSD
		}
	}
	return total
}

// AverageCost is TotalCost over the number of successes. ok is false when
// nothing succeeded and the average is undefined.
func (r Result) AverageCost() (avg float64, ok bool) {
	n := len(r.Succeeded())
	if n == 0 {
		return 0, false
	}
	return r.TotalCost() / float64(n), true
}

// Clean reports whether every dispatch succeeded. A batch with any failure is
// failed overall, even when others succeeded.
func (r Result) Clean() bool {
	return len(r.Failed()) == 0
}
