// File: internal/extract/result.go
package extract

import (
	json "github.com/json-iterator/go"
)

// Result bundles the resolved field values of one extraction with the
// isolated per-field error map. Errors is always non-nil; a field appears
// either in Fields or in Errors, never both. A property the matched node
// did not have resolves to the empty string rather than an error.
type Result struct {
	Fields map[string]string
	Errors map[string]string
}

func newResult(fields int) Result {
	return Result{
		Fields: make(map[string]string, fields),
		Errors: make(map[string]string),
	}
}

// MarshalJSON flattens the fields beside the error map, producing the shape
// consumers read: {"title":"Welcome","errors":{}}. A field literally named
// "errors" would be shadowed by the error map in this form; the struct keeps
// the two apart.
func (r Result) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(r.Fields)+1)
	for name, value := range r.Fields {
		flat[name] = value
	}
	errs := r.Errors
	if errs == nil {
		errs = map[string]string{}
	}
	flat["errors"] = errs
	return json.Marshal(flat)
}
