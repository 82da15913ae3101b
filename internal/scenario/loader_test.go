// File: internal/scenario/loader_test.go
package scenario

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/forceps-cli/internal/tabular"
)

// sourceFunc adapts a function to the tabular.Source interface.
type sourceFunc func(ctx context.Context) ([]tabular.Record, error)

func (f sourceFunc) Records(ctx context.Context) ([]tabular.Record, error) {
	return f(ctx)
}

func fixedSource(recs ...tabular.Record) tabular.Source {
	return sourceFunc(func(context.Context) ([]tabular.Record, error) {
		return recs, nil
	})
}

func TestLoader_Load(t *testing.T) {
	ctx := context.Background()

	t.Run("empty source", func(t *testing.T) {
		_, err := NewLoader(zap.NewNop()).Load(ctx, fixedSource(), nil)
		require.ErrorIs(t, err, tabular.ErrEmptySource)
		assert.Equal(t, "File is empty.", err.Error())
	})

	t.Run("validation failure aggregates every message", func(t *testing.T) {
		src := fixedSource(
			tabular.Record{"selector": "#a"},
			tabular.Record{"action": "Hover", "selector": "#b"},
		)
		seq, err := NewLoader(zap.NewNop()).Load(ctx, src, nil)
		assert.Nil(t, seq, "no partial sequence on validation failure")

		var verr *tabular.ValidationError
		require.ErrorAs(t, err, &verr)
		require.Len(t, verr.Violations, 2)
		assert.Equal(t, "Line: 1, action is required.\nLine: 2, action must be Click, Select, Input.", err.Error())
	})

	t.Run("source errors are wrapped", func(t *testing.T) {
		boom := errors.New("disk on fire")
		src := sourceFunc(func(context.Context) ([]tabular.Record, error) {
			return nil, boom
		})
		_, err := NewLoader(zap.NewNop()).Load(ctx, src, nil)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("valid source preserves row order and count", func(t *testing.T) {
		src := fixedSource(
			tabular.Record{"action": "Click", "selector": "#btn"},
			tabular.Record{"action": "Input", "selector": "#box", "value": "hi", "waitTime": "100"},
			tabular.Record{"action": "Select", "selector": "#sel", "value": "a;b"},
		)
		seq, err := NewLoader(zap.NewNop()).Load(ctx, src, nil)
		require.NoError(t, err)
		require.Len(t, seq, 3)

		assert.Equal(t, Step{Kind: Click, Selector: "#btn"}, seq[0])
		assert.Equal(t, Step{Kind: Input, Selector: "#box", Value: "hi", SettleDelay: 100 * time.Millisecond}, seq[1])
		assert.Equal(t, Step{Kind: Select, Selector: "#sel", Value: "a;b"}, seq[2])
	})

	t.Run("byName binding substitutes placeholders", func(t *testing.T) {
		src := fixedSource(
			tabular.Record{"action": "Input", "selector": "#user", "value": "#bind:x"},
			tabular.Record{"action": "Input", "selector": "#note", "value": "literal"},
		)
		seq, err := NewLoader(zap.NewNop()).Load(ctx, src, Bindings{"x": "hello"})
		require.NoError(t, err)
		assert.Equal(t, "hello", seq[0].Value)
		assert.Equal(t, "literal", seq[1].Value, "values without the sentinel pass through")
	})

	t.Run("byName missing key resolves to empty", func(t *testing.T) {
		src := fixedSource(tabular.Record{"action": "Input", "selector": "#user", "value": "#bind:gone"})
		seq, err := NewLoader(zap.NewNop()).Load(ctx, src, Bindings{})
		require.NoError(t, err)
		assert.Equal(t, "", seq[0].Value)
	})

	t.Run("byIndex binding replaces per row", func(t *testing.T) {
		src := fixedSource(
			tabular.Record{"action": "Input", "selector": "#a", "value": "keep"},
			tabular.Record{"action": "Input", "selector": "#b", "value": "replace me"},
		)
		loader := NewLoader(zap.NewNop(), WithBindingMode(BindByIndex))
		seq, err := loader.Load(ctx, src, Bindings{"2": "swapped"})
		require.NoError(t, err)
		assert.Equal(t, "keep", seq[0].Value, "rows without an entry keep their literal")
		assert.Equal(t, "swapped", seq[1].Value)
	})

	t.Run("nil bindings are fine", func(t *testing.T) {
		src := fixedSource(tabular.Record{"action": "Click", "selector": "#btn", "value": "#bind:x"})
		seq, err := NewLoader(zap.NewNop()).Load(ctx, src, nil)
		require.NoError(t, err)
		assert.Equal(t, "", seq[0].Value)
	})

	t.Run("loads from a CSV file end to end", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "scenario.csv")
		content := "action,selector,value,waitTime\n" +
			"Input,#q,#bind:query,\n" +
			"Click,#go,,250\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		seq, err := NewLoader(zap.NewNop()).Load(ctx, tabular.CSVFile{Path: path}, Bindings{"query": "forceps"})
		require.NoError(t, err)
		require.Len(t, seq, 2)
		assert.Equal(t, Step{Kind: Input, Selector: "#q", Value: "forceps"}, seq[0])
		assert.Equal(t, Step{Kind: Click, Selector: "#go", SettleDelay: 250 * time.Millisecond}, seq[1])
	})
}

func TestNewLoader(t *testing.T) {
	assert.NotNil(t, NewLoader(nil), "nil logger falls back to a nop logger")
	assert.True(t, BindingMode("name").Valid())
	assert.True(t, BindingMode("index").Valid())
	assert.False(t, BindingMode("rows").Valid())
}
