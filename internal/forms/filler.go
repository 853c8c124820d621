// internal/forms/filler.go
package forms

import (
	"fmt"

	"github.com/xkilldash9x/formrunner/api/schemas"
)

// Normalize fits answers to n rows. Absent answers default to the scale
// maximum on every row. In lenient mode longer lists are truncated and
// shorter ones right-padded with the maximum; in strict mode any supplied
// list of the wrong length is a ConfigurationError.
func Normalize(section string, answers []int, n int, strict bool) ([]int, error) {
	if answers != nil && len(answers) != n && strict {
		return nil, &ConfigurationError{
			Kind:   AnswerLength,
			Name:   section,
			Detail: fmt.Sprintf("expected %d answers, got %d", n, len(answers)),
		}
	}
	out := make([]int, n)
	copied := copy(out, answers)
	for i := copied; i < n; i++ {
		out[i] = schemas.ScaleMax
	}
	return out, nil
}
