// File: internal/runner/runner_test.go
package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/forceps-cli/internal/browser"
	"github.com/xkilldash9x/forceps-cli/internal/scenario"
)

type call struct {
	op       string
	selector string
	text     string
	values   []string
	wait     time.Duration
}

// scriptPage records every operation and can be told to fail one selector.
type scriptPage struct {
	calls  []call
	failOn string
	err    error
}

func (p *scriptPage) Goto(_ context.Context, url string) error {
	p.calls = append(p.calls, call{op: "goto", selector: url})
	return nil
}

func (p *scriptPage) Click(_ context.Context, sel string) error {
	p.calls = append(p.calls, call{op: "click", selector: sel})
	if sel == p.failOn {
		return p.err
	}
	return nil
}

func (p *scriptPage) Select(_ context.Context, sel string, values ...string) error {
	p.calls = append(p.calls, call{op: "select", selector: sel, values: values})
	if sel == p.failOn {
		return p.err
	}
	return nil
}

func (p *scriptPage) Type(_ context.Context, sel, text string) error {
	p.calls = append(p.calls, call{op: "type", selector: sel, text: text})
	if sel == p.failOn {
		return p.err
	}
	return nil
}

func (p *scriptPage) WaitFor(_ context.Context, d time.Duration) error {
	p.calls = append(p.calls, call{op: "wait", wait: d})
	return nil
}

func (p *scriptPage) Root(context.Context) (browser.Node, error) { return nil, nil }
func (p *scriptPage) Close(context.Context) error                { return nil }

func TestTransition(t *testing.T) {
	ctx := context.Background()
	r := New(zap.NewNop())

	t.Run("single click drives exactly one action and no wait", func(t *testing.T) {
		page := &scriptPage{}
		seq := scenario.Sequence{{Kind: scenario.Click, Selector: "#btn"}}
		require.NoError(t, r.Transition(ctx, page, seq))
		require.Len(t, page.calls, 1)
		assert.Equal(t, call{op: "click", selector: "#btn"}, page.calls[0])
	})

	t.Run("input with waitTime types then settles", func(t *testing.T) {
		page := &scriptPage{}
		seq := scenario.Sequence{{
			Kind: scenario.Input, Selector: "#box", Value: "hi",
			SettleDelay: 100 * time.Millisecond,
		}}
		require.NoError(t, r.Transition(ctx, page, seq))
		require.Len(t, page.calls, 2)
		assert.Equal(t, call{op: "type", selector: "#box", text: "hi"}, page.calls[0])
		assert.Equal(t, call{op: "wait", wait: 100 * time.Millisecond}, page.calls[1])
	})

	t.Run("select splits the option list", func(t *testing.T) {
		page := &scriptPage{}
		seq := scenario.Sequence{{Kind: scenario.Select, Selector: "#sel", Value: "a;b"}}
		require.NoError(t, r.Transition(ctx, page, seq))
		require.Len(t, page.calls, 1)
		assert.Equal(t, []string{"a", "b"}, page.calls[0].values)
	})

	t.Run("steps run in sequence order", func(t *testing.T) {
		page := &scriptPage{}
		seq := scenario.Sequence{
			{Kind: scenario.Input, Selector: "#user", Value: "jo"},
			{Kind: scenario.Input, Selector: "#pass", Value: "pw", SettleDelay: 50 * time.Millisecond},
			{Kind: scenario.Click, Selector: "#login"},
		}
		require.NoError(t, r.Transition(ctx, page, seq))
		ops := make([]string, len(page.calls))
		for i, c := range page.calls {
			ops[i] = c.op
		}
		assert.Equal(t, []string{"type", "type", "wait", "click"}, ops)
	})

	t.Run("first failure aborts the remainder", func(t *testing.T) {
		boom := errors.New("element detached")
		page := &scriptPage{failOn: "#flaky", err: boom}
		seq := scenario.Sequence{
			{Kind: scenario.Click, Selector: "#ok"},
			{Kind: scenario.Click, Selector: "#flaky", SettleDelay: time.Second},
			{Kind: scenario.Click, Selector: "#never"},
		}
		err := r.Transition(ctx, page, seq)
		require.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "step 2")
		require.Len(t, page.calls, 2, "no settle wait and no later steps after a failure")
		assert.Equal(t, "#flaky", page.calls[1].selector)
	})

	t.Run("empty sequence is a no-op", func(t *testing.T) {
		page := &scriptPage{}
		require.NoError(t, r.Transition(ctx, page, nil))
		assert.Empty(t, page.calls)
	})

	t.Run("unknown kind is an error", func(t *testing.T) {
		page := &scriptPage{}
		err := r.Transition(ctx, page, scenario.Sequence{{Kind: "Hover", Selector: "#x"}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown action kind")
	})
}
