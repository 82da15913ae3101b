// File: internal/extract/extract_test.go
package extract

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/xkilldash9x/forceps-cli/internal/browser"
	"github.com/xkilldash9x/forceps-cli/internal/mapping"
)

// fakeNode is an in-memory node tree implementing browser.Node.
type fakeNode struct {
	snap     browser.Snapshot
	one      map[string]*fakeNode
	all      map[string][]*fakeNode
	failWith map[string]error
}

func (n *fakeNode) QueryOne(_ context.Context, sel string) (browser.Node, browser.Snapshot, error) {
	if err := n.failWith[sel]; err != nil {
		return nil, nil, err
	}
	if c, ok := n.one[sel]; ok {
		return c, c.snap, nil
	}
	return nil, nil, fmt.Errorf("%w: %q", browser.ErrNoMatch, sel)
}

func (n *fakeNode) QueryAll(_ context.Context, sel string) ([]browser.Node, []browser.Snapshot, error) {
	if err := n.failWith[sel]; err != nil {
		return nil, nil, err
	}
	children := n.all[sel]
	nodes := make([]browser.Node, len(children))
	snaps := make([]browser.Snapshot, len(children))
	for i, c := range children {
		nodes[i] = c
		snaps[i] = c.snap
	}
	return nodes, snaps, nil
}

func (n *fakeNode) Snapshot() browser.Snapshot { return n.snap }

func textNode(text string, attrs ...string) *fakeNode {
	snap := browser.Snapshot{browser.TextProperty: text}
	for i := 0; i+1 < len(attrs); i += 2 {
		snap[attrs[i]] = attrs[i+1]
	}
	return &fakeNode{snap: snap}
}

func TestExtract(t *testing.T) {
	ctx := context.Background()
	engine := New(zap.NewNop())

	t.Run("resolves mapped fields", func(t *testing.T) {
		root := &fakeNode{
			snap: browser.Snapshot{browser.TextProperty: "page"},
			one: map[string]*fakeNode{
				"h1":     textNode("Welcome"),
				"a.more": textNode("More", "href", "/details"),
			},
		}
		table := mapping.Table{
			"title": {Name: "title", Selector: "h1", Property: "textContent"},
			"link":  {Name: "link", Selector: "a.more", Property: "href"},
		}
		res := engine.Extract(ctx, root, table)
		want := Result{
			Fields: map[string]string{"title": "Welcome", "link": "/details"},
			Errors: map[string]string{},
		}
		assert.Empty(t, cmp.Diff(want, res))
	})

	t.Run("isolates field failures", func(t *testing.T) {
		root := &fakeNode{
			one: map[string]*fakeNode{"h1": textNode("Welcome")},
		}
		table := mapping.Table{
			"a": {Name: "a", Selector: "h1", Property: "textContent"},
			"b": {Name: "b", Selector: ".missing", Property: "textContent"},
		}
		res := engine.Extract(ctx, root, table)
		assert.Equal(t, "Welcome", res.Fields["a"])
		require.Contains(t, res.Errors, "b")
		assert.Contains(t, res.Errors["b"], ".missing")
		_, hasB := res.Fields["b"]
		assert.False(t, hasB, "a failed field has no value entry")
	})

	t.Run("backend errors stay inside the field", func(t *testing.T) {
		root := &fakeNode{
			one:      map[string]*fakeNode{"h1": textNode("ok")},
			failWith: map[string]error{".flaky": errors.New("target crashed")},
		}
		table := mapping.Table{
			"good": {Name: "good", Selector: "h1", Property: "textContent"},
			"bad":  {Name: "bad", Selector: ".flaky", Property: "textContent"},
		}
		res := engine.Extract(ctx, root, table)
		assert.Equal(t, "ok", res.Fields["good"])
		assert.Equal(t, "target crashed", res.Errors["bad"])
	})

	t.Run("empty selector reads the node's own snapshot", func(t *testing.T) {
		node := textNode("self text", "data-id", "42")
		table := mapping.Table{
			"text": {Name: "text", Property: "textContent"},
			"id":   {Name: "id", Property: "data-id"},
		}
		res := engine.Extract(ctx, node, table)
		want := Result{
			Fields: map[string]string{"text": "self text", "id": "42"},
			Errors: map[string]string{},
		}
		assert.Empty(t, cmp.Diff(want, res))
	})

	t.Run("missing property yields empty value not error", func(t *testing.T) {
		root := &fakeNode{one: map[string]*fakeNode{"h1": textNode("Welcome")}}
		table := mapping.Table{
			"cls": {Name: "cls", Selector: "h1", Property: "class"},
		}
		res := engine.Extract(ctx, root, table)
		v, ok := res.Fields["cls"]
		require.True(t, ok)
		assert.Equal(t, "", v)
		assert.Empty(t, res.Errors)
	})

	t.Run("idempotent against an unchanged tree", func(t *testing.T) {
		root := &fakeNode{one: map[string]*fakeNode{"h1": textNode("Welcome")}}
		table := mapping.Table{
			"title": {Name: "title", Selector: "h1", Property: "textContent"},
			"gone":  {Name: "gone", Selector: ".nope", Property: "textContent"},
		}
		first := engine.Extract(ctx, root, table)
		second := engine.Extract(ctx, root, table)
		assert.Empty(t, cmp.Diff(first, second))
	})

	t.Run("empty table yields an empty result", func(t *testing.T) {
		res := engine.Extract(ctx, textNode("x"), mapping.Table{})
		assert.Empty(t, res.Fields)
		assert.NotNil(t, res.Errors)
		assert.Empty(t, res.Errors)
	})
}

func TestExtractMany(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	engine := New(zap.NewNop())

	cards := func() *fakeNode {
		ok1 := &fakeNode{
			snap: browser.Snapshot{browser.TextProperty: "card one"},
			one:  map[string]*fakeNode{".title": textNode("First")},
		}
		broken := &fakeNode{
			snap: browser.Snapshot{browser.TextProperty: "card two"},
			// no .title child: the field fails for this card only
		}
		ok2 := &fakeNode{
			snap: browser.Snapshot{browser.TextProperty: "card three"},
			one:  map[string]*fakeNode{".title": textNode("Third")},
		}
		return &fakeNode{all: map[string][]*fakeNode{".card": {ok1, broken, ok2}}}
	}

	t.Run("preserves document order and isolates children", func(t *testing.T) {
		table := mapping.Table{
			"title": {Name: "title", Selector: ".title", Property: "textContent"},
			"text":  {Name: "text", Property: "textContent"},
		}
		results, err := engine.ExtractMany(ctx, cards(), ".card", table)
		require.NoError(t, err)
		require.Len(t, results, 3)

		assert.Equal(t, "First", results[0].Fields["title"])
		assert.Equal(t, "card one", results[0].Fields["text"])
		assert.Empty(t, results[0].Errors)

		assert.Contains(t, results[1].Errors, "title")
		assert.Equal(t, "card two", results[1].Fields["text"], "other fields of the failing child still resolve")

		assert.Equal(t, "Third", results[2].Fields["title"])
		assert.Empty(t, results[2].Errors)
	})

	t.Run("zero matches yield an empty slice", func(t *testing.T) {
		results, err := engine.ExtractMany(ctx, cards(), ".missing", mapping.Table{})
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("root query failure is the only error", func(t *testing.T) {
		root := &fakeNode{failWith: map[string]error{".card": errors.New("page gone")}}
		_, err := engine.ExtractMany(ctx, root, ".card", mapping.Table{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "page gone")
	})

	t.Run("bounded concurrency handles many children", func(t *testing.T) {
		children := make([]*fakeNode, 32)
		for i := range children {
			children[i] = textNode("row " + strconv.Itoa(i))
		}
		root := &fakeNode{all: map[string][]*fakeNode{"li": children}}
		table := mapping.Table{"text": {Name: "text", Property: "textContent"}}

		results, err := New(zap.NewNop(), WithChildConcurrency(8)).ExtractMany(ctx, root, "li", table)
		require.NoError(t, err)
		require.Len(t, results, 32)
		for i, res := range results {
			assert.Equal(t, "row "+strconv.Itoa(i), res.Fields["text"])
		}
	})

	t.Run("nests for card lists with inner mappings", func(t *testing.T) {
		itemA := textNode("alpha")
		itemB := textNode("beta")
		card := &fakeNode{
			snap: browser.Snapshot{browser.TextProperty: "card"},
			one:  map[string]*fakeNode{".title": textNode("Card")},
			all:  map[string][]*fakeNode{"li": {itemA, itemB}},
		}
		root := &fakeNode{all: map[string][]*fakeNode{".card": {card}}}

		outer := mapping.Table{"title": {Name: "title", Selector: ".title", Property: "textContent"}}
		inner := mapping.Table{"item": {Name: "item", Property: "textContent"}}

		results, err := engine.ExtractMany(ctx, root, ".card", outer)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "Card", results[0].Fields["title"])

		// Second pass with a different table against the same children.
		children, _, err := root.QueryAll(ctx, ".card")
		require.NoError(t, err)
		items, err := engine.ExtractMany(ctx, children[0], "li", inner)
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, "alpha", items[0].Fields["item"])
		assert.Equal(t, "beta", items[1].Fields["item"])
	})
}

func TestResult_MarshalJSON(t *testing.T) {
	t.Run("flattens fields beside the error map", func(t *testing.T) {
		res := Result{
			Fields: map[string]string{"title": "Welcome"},
			Errors: map[string]string{},
		}
		data, err := res.MarshalJSON()
		require.NoError(t, err)
		assert.JSONEq(t, `{"title":"Welcome","errors":{}}`, string(data))
	})

	t.Run("carries field errors", func(t *testing.T) {
		res := Result{
			Fields: map[string]string{"a": "1"},
			Errors: map[string]string{"b": "no element matches selector: \".x\""},
		}
		data, err := res.MarshalJSON()
		require.NoError(t, err)
		assert.JSONEq(t, `{"a":"1","errors":{"b":"no element matches selector: \".x\""}}`, string(data))
	})

	t.Run("nil error map marshals as empty object", func(t *testing.T) {
		data, err := Result{Fields: map[string]string{}}.MarshalJSON()
		require.NoError(t, err)
		assert.JSONEq(t, `{"errors":{}}`, string(data))
	})
}
