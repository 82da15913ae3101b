// File: internal/runner/runner.go
// Package runner replays scenario sequences against live pages.
package runner

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/forceps-cli/internal/browser"
	"github.com/xkilldash9x/forceps-cli/internal/scenario"
)

// Runner applies step sequences to pages, one step at a time.
type Runner struct {
	log *zap.Logger
}

// New returns a Runner logging through the given logger. A nil logger is
// replaced with a no-op one.
func New(logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{log: logger.With(zap.String("component", "runner"))}
}

// Transition applies every step of seq to page in order. Steps run strictly
// sequentially: a step's action and settle delay both complete before the
// next step starts. The first failing action aborts the remainder and is
// returned wrapped with the step's position; earlier steps have already
// taken effect on the page and are not rolled back.
func (r *Runner) Transition(ctx context.Context, page browser.Page, seq scenario.Sequence) error {
	for i, step := range seq {
		r.log.Debug("Applying step",
			zap.Int("step", i+1),
			zap.String("action", string(step.Kind)),
			zap.String("selector", step.Selector),
		)
		if err := applyStep(ctx, page, step); err != nil {
			return fmt.Errorf("step %d (%s %q): %w", i+1, step.Kind, step.Selector, err)
		}
		if step.SettleDelay > 0 {
			if err := page.WaitFor(ctx, step.SettleDelay); err != nil {
				return fmt.Errorf("step %d settle wait: %w", i+1, err)
			}
		}
	}
	return nil
}

// applyStep dispatches on the action kind. The switch is exhaustive over
// the enumeration; the default arm only fires on sequences that bypassed
// validation.
func applyStep(ctx context.Context, page browser.Page, step scenario.Step) error {
	switch step.Kind {
	case scenario.Click:
		return page.Click(ctx, step.Selector)
	case scenario.Select:
		return page.Select(ctx, step.Selector, strings.Split(step.Value, ";")...)
	case scenario.Input:
		return page.Type(ctx, step.Selector, step.Value)
	default:
		return fmt.Errorf("unknown action kind %q", step.Kind)
	}
}
