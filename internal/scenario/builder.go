// File: internal/scenario/builder.go
package scenario

import (
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/forceps-cli/internal/tabular"
)

// bindPrefix marks a value for byName substitution.
const bindPrefix = "#bind:"

// buildStep converts one validated record into a Step. Validation has
// already guaranteed the action is a member of the enumeration and waitTime
// is numeric, so this is a pure data transform.
func (l *Loader) buildStep(rec tabular.Record, line int, bindings Bindings) Step {
	value := rec[colValue]
	switch l.mode {
	case BindByIndex:
		if v, ok := bindings[strconv.Itoa(line)]; ok {
			value = v
		}
	default:
		if key, ok := strings.CutPrefix(value, bindPrefix); ok {
			bound, found := bindings[key]
			if !found {
				l.log.Warn("Binding key not found, substituting empty value",
					zap.String("key", key),
					zap.Int("line", line),
				)
			}
			value = bound
		}
	}

	var delay time.Duration
	if wt := rec[colWaitTime]; wt != "" {
		ms, _ := strconv.Atoi(wt)
		delay = time.Duration(ms) * time.Millisecond
	}

	return Step{
		Kind:        ActionKind(rec[colAction]),
		Selector:    rec[colSelector],
		Value:       value,
		SettleDelay: delay,
	}
}
