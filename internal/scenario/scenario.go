// File: internal/scenario/scenario.go
// Package scenario turns tabular action definitions into typed, validated
// step sequences ready for the runner.
package scenario

import (
	"strings"
	"time"
)

// ActionKind enumerates the browser actions a step may perform. The set is
// closed; the validator rejects anything else.
type ActionKind string

const (
	Click  ActionKind = "Click"
	Select ActionKind = "Select"
	Input  ActionKind = "Input"
)

// Kinds returns the closed set of action kinds in canonical order.
func Kinds() []ActionKind {
	return []ActionKind{Click, Select, Input}
}

// Valid reports whether k is a member of the closed enumeration.
func (k ActionKind) Valid() bool {
	switch k {
	case Click, Select, Input:
		return true
	}
	return false
}

// kindList renders the enumeration for the validator's message.
func kindList() string {
	kinds := Kinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}

// Step is one action to perform against a live page. Value carries the
// option list for Select (";"-delimited) or the literal text for Input, and
// is unused for Click. SettleDelay, when non-zero, is waited out after the
// action before the next step runs. Steps are immutable once built.
type Step struct {
	Kind        ActionKind
	Selector    string
	Value       string
	SettleDelay time.Duration
}

// Sequence is an ordered list of steps. Order is source row order and is
// semantically significant: the runner replays it against one page.
type Sequence []Step

// Bindings maps a placeholder key to its replacement value. In byName mode
// the keys are the suffixes of "#bind:<key>" placeholders; in byIndex mode
// they are decimal 1-based row numbers. A byName lookup of a missing key
// resolves to the empty string. Bindings are consulted only while building;
// the finished sequence holds only literal values.
type Bindings map[string]string

// BindingMode selects how the binding table is keyed.
type BindingMode string

const (
	// BindByName substitutes values of the form "#bind:<key>" by key.
	BindByName BindingMode = "name"
	// BindByIndex replaces the value of row N whenever the table has an
	// entry for "N" (1-based), no placeholder required.
	BindByIndex BindingMode = "index"
)

// Valid reports whether m is a known binding mode.
func (m BindingMode) Valid() bool {
	return m == BindByName || m == BindByIndex
}

// Column names of the tabular scenario contract.
const (
	colAction   = "action"
	colSelector = "selector"
	colValue    = "value"
	colWaitTime = "waitTime"
)
