// File: internal/browser/chrome/snapshot.go
package chrome

import (
	"fmt"

	json "github.com/json-iterator/go"
)

// The page-side element registry. Handles are indexes into this array;
// navigation replaces the window object, which empties the registry and
// invalidates every outstanding handle.
const registryJS = `
const reg = window.__forcepsNodes = window.__forcepsNodes || [];
const keep = (el) => { reg.push(el); return reg.length - 1; };
const snapOf = (el) => {
	const m = {};
	for (const a of el.attributes) m[a.name] = a.value;
	m["textContent"] = (el.textContent || "").trim();
	return m;
};
const resolve = (ref) => {
	const el = reg[ref];
	return el instanceof Element ? el : null;
};`

type evalStatus struct {
	Err     string `json:"err"`
	Missing bool   `json:"missing"`
}

type queryOneResult struct {
	Err   string            `json:"err"`
	Found bool              `json:"found"`
	Ref   int               `json:"ref"`
	Snap  map[string]string `json:"snap"`
}

type queryAllResult struct {
	Err   string              `json:"err"`
	Refs  []int               `json:"refs"`
	Snaps []map[string]string `json:"snaps"`
}

// rootScript registers the document element and snapshots it.
func rootScript() string {
	return fmt.Sprintf(`(() => {%s
	const el = document.documentElement;
	if (!el) return {err: "document has no root element"};
	return {found: true, ref: keep(el), snap: snapOf(el)};
})()`, registryJS)
}

// queryOneScript finds the first descendant of the referenced element
// matching the selector, registers it and snapshots it in one round trip.
func queryOneScript(ref int, selector string) (string, error) {
	sel, err := json.Marshal(selector)
	if err != nil {
		return "", fmt.Errorf("encode selector %q: %w", selector, err)
	}
	return fmt.Sprintf(`(() => {%s
	const root = resolve(%d);
	if (!root) return {err: "stale element handle"};
	let el;
	try {
		el = root.querySelector(%s);
	} catch (e) {
		return {err: "invalid selector: " + e.message};
	}
	if (!el) return {found: false};
	return {found: true, ref: keep(el), snap: snapOf(el)};
})()`, registryJS, ref, sel), nil
}

// queryAllScript registers and snapshots every matching descendant,
// preserving document order.
func queryAllScript(ref int, selector string) (string, error) {
	sel, err := json.Marshal(selector)
	if err != nil {
		return "", fmt.Errorf("encode selector %q: %w", selector, err)
	}
	return fmt.Sprintf(`(() => {%s
	const root = resolve(%d);
	if (!root) return {err: "stale element handle"};
	let els;
	try {
		els = root.querySelectorAll(%s);
	} catch (e) {
		return {err: "invalid selector: " + e.message};
	}
	const refs = [], snaps = [];
	for (const el of els) {
		refs.push(keep(el));
		snaps.push(snapOf(el));
	}
	return {refs: refs, snaps: snaps};
})()`, registryJS, ref, sel), nil
}

// selectScript updates the selected options of a select element. Options
// match on their value attribute, falling back to trimmed text when the
// attribute is empty or absent. Nothing changes unless every requested
// value matches, and listeners get input and change events afterwards.
func selectScript(selector string, values []string) (string, error) {
	sel, err := json.Marshal(selector)
	if err != nil {
		return "", fmt.Errorf("encode selector %q: %w", selector, err)
	}
	vals, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("encode values: %w", err)
	}
	return fmt.Sprintf(`(() => {
	let el;
	try {
		el = document.querySelector(%s);
	} catch (e) {
		return {err: "invalid selector: " + e.message};
	}
	if (!el) return {missing: true};
	if (el.tagName.toLowerCase() !== "select") {
		return {err: "element <" + el.tagName.toLowerCase() + "> is not a select"};
	}
	const opts = Array.from(el.options);
	const optValue = (o) => o.getAttribute("value") || o.text.trim();
	const want = new Set();
	for (const v of %s || []) {
		const opt = opts.find((o) => optValue(o) === v);
		if (!opt) return {err: 'option with value "' + v + '" not found'};
		want.add(opt);
	}
	for (const o of opts) o.selected = want.has(o);
	el.dispatchEvent(new Event("input", {bubbles: true}));
	el.dispatchEvent(new Event("change", {bubbles: true}));
	return {};
})()`, sel, vals), nil
}
