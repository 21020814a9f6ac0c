package fair

import (
	"errors"
	"time"
)

// MaxTools bounds the number of tools a single process can schedule,
// matching the fixed-size tool table of the system this package replaces.
const MaxTools = 100

// MaxCustomers bounds the customer arena.
const MaxCustomers = 1024

// Config holds the scheduler's tunables: the q/Q slice bounds, the tool
// count, and the resolutions chosen for the open questions around
// preemption ties, queue fairness, and report latency.
type Config struct {
	// NumTools is k: the number of tools available to schedule.
	NumTools int
	// MinSliceMs is q: once a holder has used its tool for at least this
	// long, it becomes eligible for soft preemption by a lower-share waiter.
	MinSliceMs int
	// MaxSliceMs is Q: once a holder has used its tool for at least this
	// long, it is preempted unconditionally if anyone is waiting.
	MaxSliceMs int
	// TickInterval is how often each tool's goroutine re-evaluates its
	// current holder. 10ms matches the polling interval of the system this
	// package replaces.
	TickInterval time.Duration

	// StrictGreaterPreemption changes the preemption condition from
	// victim.Share >= requester.Share (the literal reading) to
	// victim.Share > requester.Share, so an equal-share victim is no
	// longer preempted.
	StrictGreaterPreemption bool
	// FIFOTieBreak breaks equal-share waiting-queue ties by wait start time
	// instead of leaving the order heap-positional.
	FIFOTieBreak bool
	// ReportWithoutLock snapshots REPORT's data under the lock and formats
	// the response text after releasing it, instead of holding the lock for
	// the full formatting pass.
	ReportWithoutLock bool
}

// DefaultConfig returns a Config with TickInterval set and every open
// question resolved to its spec-literal default.
func DefaultConfig(numTools, minSliceMs, maxSliceMs int) Config {
	return Config{
		NumTools:     numTools,
		MinSliceMs:   minSliceMs,
		MaxSliceMs:   maxSliceMs,
		TickInterval: 10 * time.Millisecond,
	}
}

var (
	ErrInvalidTools = errors.New("fair: NumTools must be between 1 and MaxTools")
	ErrInvalidSlice = errors.New("fair: MinSliceMs and MaxSliceMs must be positive")
)

// Validate rejects the same parameter ranges the original CLI rejected:
// q and Q positive, 0 < k <= MaxTools.
func (c Config) Validate() error {
	if c.NumTools <= 0 || c.NumTools > MaxTools {
		return ErrInvalidTools
	}
	if c.MinSliceMs <= 0 || c.MaxSliceMs <= 0 {
		return ErrInvalidSlice
	}
	return nil
}
