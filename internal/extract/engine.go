// File: internal/extract/engine.go
// Package extract resolves mapping tables against page nodes. Extraction is
// best-effort: a failed field lands in the result's error map and never
// disturbs its siblings, and a failed child never disturbs the other
// children of an ExtractMany call.
package extract

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/forceps-cli/internal/browser"
	"github.com/xkilldash9x/forceps-cli/internal/mapping"
)

const defaultChildConcurrency = 4

// Engine resolves extraction tables against nodes. It holds no per-call
// state and is safe for concurrent use across pages.
type Engine struct {
	log        *zap.Logger
	childLimit int
}

// Option configures an Engine.
type Option func(*Engine)

// WithChildConcurrency bounds how many children of one ExtractMany call are
// processed at once. Values below one fall back to sequential processing.
func WithChildConcurrency(n int) Option {
	return func(e *Engine) {
		if n < 1 {
			n = 1
		}
		e.childLimit = n
	}
}

// New returns an Engine logging through the given logger. A nil logger is
// replaced with a no-op one.
func New(logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		log:        logger.With(zap.String("component", "extract_engine")),
		childLimit: defaultChildConcurrency,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract resolves every field of table against node and always returns a
// Result, never an error: field failures are folded into Result.Errors.
// Fields are independent of each other, so they are resolved concurrently;
// the page capability serializes access to a live page underneath.
func (e *Engine) Extract(ctx context.Context, node browser.Node, table mapping.Table) Result {
	res := newResult(len(table))

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for name, fm := range table {
		wg.Add(1)
		go func(name string, fm mapping.FieldMapping) {
			defer wg.Done()
			value, err := e.resolveField(ctx, node, fm)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Errors[name] = err.Error()
				return
			}
			res.Fields[name] = value
		}(name, fm)
	}
	wg.Wait()

	if len(res.Errors) > 0 {
		e.log.Debug("Extraction finished with field errors",
			zap.Int("resolved", len(res.Fields)),
			zap.Int("failed", len(res.Errors)),
		)
	}
	return res
}

// resolveField reads one mapped value. An empty selector reads from the
// node's own snapshot, captured when the node was located; a non-empty
// selector queries the node's subtree and reads from the match's snapshot.
func (e *Engine) resolveField(ctx context.Context, node browser.Node, fm mapping.FieldMapping) (string, error) {
	if fm.Selector == "" {
		return node.Snapshot().Property(fm.Property), nil
	}
	_, snap, err := node.QueryOne(ctx, fm.Selector)
	if err != nil {
		return "", err
	}
	return snap.Property(fm.Property), nil
}

// ExtractMany queries node for all children matching childSelector and runs
// Extract against each, preserving document order in the output. Children
// are processed with bounded concurrency; one child's field failures stay in
// that child's Result. The only error is a failed root query.
func (e *Engine) ExtractMany(ctx context.Context, node browser.Node, childSelector string, table mapping.Table) ([]Result, error) {
	children, _, err := node.QueryAll(ctx, childSelector)
	if err != nil {
		return nil, fmt.Errorf("query children %q: %w", childSelector, err)
	}

	results := make([]Result, len(children))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.childLimit)
	for i, child := range children {
		g.Go(func() error {
			results[i] = e.Extract(gctx, child, table)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	e.log.Debug("Extracted children",
		zap.String("selector", childSelector),
		zap.Int("children", len(results)),
	)
	return results, nil
}
