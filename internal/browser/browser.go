// File: internal/browser/browser.go
// Package browser defines the capability surface the runner and extraction
// engine drive: browsers hand out pages, pages hand out tree nodes, and
// every node carries the snapshot captured by the query that located it.
// Concrete backends live in the chrome and static subpackages.
package browser

import (
	"context"
	"errors"
	"time"
)

// TextProperty is the synthetic snapshot key holding a node's trimmed text
// content, alongside the node's real attributes.
const TextProperty = "textContent"

// ErrNoMatch is returned by queries whose selector matched nothing.
// Backends wrap it with the selector that failed.
var ErrNoMatch = errors.New("no element matches selector")

// Snapshot is the captured state of one tree node: every attribute name
// mapped to its value, plus the TextProperty entry. It is captured in the
// same call that locates the node and never refreshed afterwards, so
// selector-less field reads cost no extra round trip.
type Snapshot map[string]string

// Property reads a captured attribute or the text entry. A property the
// node never had reads as the empty string.
func (s Snapshot) Property(name string) string {
	return s[name]
}

// Node is a handle to one element in a page's tree. Queries are scoped to
// the node's subtree and return the matched child together with the
// snapshot taken at match time.
type Node interface {
	QueryOne(ctx context.Context, selector string) (Node, Snapshot, error)
	QueryAll(ctx context.Context, selector string) ([]Node, []Snapshot, error)
	// Snapshot returns the node's own captured state, taken when this
	// handle was obtained.
	Snapshot() Snapshot
}

// Page is a live page handle. Mutating operations (Goto, Click, Select,
// Type) must never run concurrently against the same page; closing the page
// invalidates every node handle derived from it.
type Page interface {
	Goto(ctx context.Context, url string) error
	Click(ctx context.Context, selector string) error
	Select(ctx context.Context, selector string, values ...string) error
	Type(ctx context.Context, selector string, text string) error
	// WaitFor suspends for the given duration, failing early only if the
	// context is cancelled.
	WaitFor(ctx context.Context, d time.Duration) error
	// Root returns the document node with its own snapshot captured.
	Root(ctx context.Context) (Node, error)
	Close(ctx context.Context) error
}

// Browser owns zero or more pages.
type Browser interface {
	NewPage(ctx context.Context, url string) (Page, error)
	Close(ctx context.Context) error
}
