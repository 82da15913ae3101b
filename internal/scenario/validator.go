// File: internal/scenario/validator.go
package scenario

import (
	"fmt"
	"regexp"

	"github.com/xkilldash9x/forceps-cli/internal/tabular"
)

// waitTime must be empty or all digits.
var waitTimePattern = regexp.MustCompile(`^[0-9]*$`)

// ValidateRecords checks every record against the scenario contract and
// returns all violations in record order, one message per violated rule.
// Line numbers are the 1-based positions in the record list. The function is
// pure; deciding what to do about violations is the loader's job.
func ValidateRecords(records []tabular.Record) []string {
	var violations []string
	for i, rec := range records {
		line := i + 1
		action := rec[colAction]
		if action == "" {
			violations = append(violations, fmt.Sprintf("Line: %d, action is required.", line))
		}
		if rec[colSelector] == "" {
			violations = append(violations, fmt.Sprintf("Line: %d, selector is required.", line))
		}
		if action != "" && !ActionKind(action).Valid() {
			violations = append(violations, fmt.Sprintf("Line: %d, action must be %s.", line, kindList()))
		}
		if !waitTimePattern.MatchString(rec[colWaitTime]) {
			violations = append(violations, fmt.Sprintf("Line: %d, waitTime must be number.", line))
		}
	}
	return violations
}
