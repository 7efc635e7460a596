package property

import (
	"fmt"
	"strings"

	"github.com/faasrt/core/pkg/rterrors"
)

// ValidateKey rejects empty keys and keys with internal whitespace
// (spec invariant: "keys never contain internal whitespace").
func ValidateKey(key string) error {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return rterrors.NewValidationError("property key must not be empty", rterrors.WithTag("key"))
	}
	if strings.ContainsAny(trimmed, " \t\n\r") {
		return rterrors.NewValidationError(
			fmt.Sprintf("property key %q must not contain whitespace", key), rterrors.WithTag("key"))
	}
	return nil
}
