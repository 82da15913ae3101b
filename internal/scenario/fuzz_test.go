// File: internal/scenario/fuzz_test.go
package scenario

import (
	"strings"
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"

	"github.com/xkilldash9x/forceps-cli/internal/tabular"
)

// FuzzValidateRecords hammers the validator with arbitrary record shapes.
// Whatever the input, it must not panic, every message must be non-empty and
// line-prefixed, and a row can violate at most three rules.
func FuzzValidateRecords(f *testing.F) {
	f.Add([]byte("Click#btn100"))
	f.Add([]byte("Hover\x00\xff"))
	f.Add([]byte{})

	f.Fuzz(func(t *testing.T, data []byte) {
		fuzzConsumer := fuzz.NewConsumer(data)

		count, err := fuzzConsumer.GetInt()
		if err != nil {
			return
		}
		records := make([]tabular.Record, 0, count%8)
		for i := 0; i < count%8; i++ {
			rec := tabular.Record{}
			for _, col := range []string{colAction, colSelector, colValue, colWaitTime} {
				v, err := fuzzConsumer.GetString()
				if err != nil {
					break
				}
				rec[col] = v
			}
			records = append(records, rec)
		}

		violations := ValidateRecords(records)
		if len(violations) > 3*len(records) {
			t.Fatalf("more than three violations per row: %d for %d rows", len(violations), len(records))
		}
		for _, v := range violations {
			if v == "" {
				t.Fatal("empty violation message")
			}
			if !strings.HasPrefix(v, "Line: ") {
				t.Fatalf("violation missing line prefix: %q", v)
			}
		}
	})
}
