package controller

import (
	"context"
	"math"
	"time"
)

// Deadline reports how much wall-clock time the current pass has left.
type Deadline interface {
	RemainingTime() time.Duration
}

// DeadlineFunc adapts a function to Deadline.
type DeadlineFunc func() time.Duration

func (f DeadlineFunc) RemainingTime() time.Duration {
	return f()
}

// ContextDeadline follows the deadline of ctx, such as the one Lambda sets on the handler context.
// Without a deadline the pass never runs out of time.
func ContextDeadline(ctx context.Context) Deadline {
	end, ok := ctx.Deadline()
	if !ok {
		return DeadlineFunc(func() time.Duration { return math.MaxInt64 })
	}
	return DeadlineFunc(func() time.Duration { return time.Until(end) })
}

// BudgetDeadline gives the pass a fixed budget starting now.
func BudgetDeadline(budget time.Duration) Deadline {
	end := time.Now().Add(budget)
	return DeadlineFunc(func() time.Duration { return time.Until(end) })
}
