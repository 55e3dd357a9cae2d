package market

import (
	"context"
	"log/slog"
)

type undoStep struct {
	name string
	fn   func(ctx context.Context) error
}

// undoStack records compensations for side effects already applied by an
// in-flight operation. Steps run last-in first-out.
type undoStack struct {
	steps []undoStep
}

func (u *undoStack) push(name string, fn func(ctx context.Context) error) {
	u.steps = append(u.steps, undoStep{name: name, fn: fn})
}

// run executes every step even when one fails. A failed compensation leaves
// a collaborator out of step with the engine and is logged at error level.
func (u *undoStack) run(ctx context.Context, logger *slog.Logger) {
	ctx = context.WithoutCancel(ctx)
	for i := len(u.steps) - 1; i >= 0; i-- {
		step := u.steps[i]
		if err := step.fn(ctx); err != nil {
			logger.ErrorContext(ctx, "rollback step failed",
				slog.String("step", step.name),
				slog.String("error", err.Error()),
			)
		}
	}
	u.steps = nil
}
