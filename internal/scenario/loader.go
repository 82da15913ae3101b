// File: internal/scenario/loader.go
package scenario

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/forceps-cli/internal/tabular"
)

// Loader orchestrates reading, validating and building one scenario source
// into a Sequence. Loading is all-or-nothing: a partially valid source never
// produces a partial sequence.
type Loader struct {
	log  *zap.Logger
	mode BindingMode
}

// Option configures a Loader.
type Option func(*Loader)

// WithBindingMode selects how the binding table is keyed. The default is
// BindByName.
func WithBindingMode(mode BindingMode) Option {
	return func(l *Loader) {
		l.mode = mode
	}
}

// NewLoader returns a Loader logging through the given logger. A nil logger
// is replaced with a no-op one.
func NewLoader(logger *zap.Logger, opts ...Option) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Loader{
		log:  logger.With(zap.String("component", "scenario_loader")),
		mode: BindByName,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads all records from src, validates them, and builds the ordered
// step sequence. Zero records fail with tabular.ErrEmptySource; any
// validation violation fails with a *tabular.ValidationError carrying the
// complete list of messages.
func (l *Loader) Load(ctx context.Context, src tabular.Source, bindings Bindings) (Sequence, error) {
	records, err := src.Records(ctx)
	if err != nil {
		return nil, fmt.Errorf("read scenario source: %w", err)
	}
	if len(records) == 0 {
		return nil, tabular.ErrEmptySource
	}
	if violations := ValidateRecords(records); len(violations) > 0 {
		l.log.Debug("Scenario validation failed", zap.Int("violations", len(violations)))
		return nil, &tabular.ValidationError{Violations: violations}
	}

	seq := make(Sequence, 0, len(records))
	for i, rec := range records {
		seq = append(seq, l.buildStep(rec, i+1, bindings))
	}
	l.log.Debug("Scenario loaded",
		zap.Int("steps", len(seq)),
		zap.String("binding_mode", string(l.mode)),
	)
	return seq, nil
}
