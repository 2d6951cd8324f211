package util

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeInput folds user-typed text to NFKC and trims surrounding
// whitespace, so full-width digits and compatibility characters pasted into
// a form compare equal to their ASCII forms.
func NormalizeInput(s string) string {
	return strings.TrimSpace(norm.NFKC.String(s))
}
