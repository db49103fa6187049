// Package jobs implements the resumable sync jobs. Every job is a sequential
// page loop that commits one page before fetching the next and reports a
// continuation payload when it runs out of time.
package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/ad-tracker/youtube-subscription-sync-go/internal/service/quota"
)

// Status is the terminal state of one job invocation.
type Status int

const (
	// Completed means there is nothing left to do for the payload.
	Completed Status = iota
	// Interrupted means the run stopped early and Resume must be enqueued.
	Interrupted
)

func (s Status) String() string {
	switch s {
	case Completed:
		return "completed"
	case Interrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// Result is the outcome of a job run. Resume is only meaningful when
// Status is Interrupted; NotBefore, when set, delays the continuation.
type Result[P any] struct {
	Status    Status
	Resume    P
	NotBefore time.Time
}

func completed[P any]() Result[P] {
	return Result[P]{Status: Completed}
}

func interrupted[P any](resume P) Result[P] {
	return Result[P]{Status: Interrupted, Resume: resume}
}

func deferred[P any](resume P, until time.Time) Result[P] {
	return Result[P]{Status: Interrupted, Resume: resume, NotBefore: until}
}

// Budget decides when a run must stop and checkpoint. Margin is the time
// kept in reserve before the context deadline for committing and re-enqueueing.
type Budget struct {
	Margin time.Duration
}

// Exhausted reports whether ctx has less than Margin left.
func (b Budget) Exhausted(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		return false
	}
	return time.Until(deadline) <= b.Margin
}

// isDeadline reports whether err is the deadline signal.
func isDeadline(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

func isQuotaExhausted(err error) bool {
	return errors.Is(err, quota.ErrQuotaExhausted)
}
