package types

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeSymbol folds a token symbol to its canonical form: NFKC,
// trimmed and upper-cased. Full-width and compatibility characters map to
// the same symbol as their ASCII spelling.
func NormalizeSymbol(symbol string) string {
	trimmed := strings.TrimSpace(symbol)
	if trimmed == "" {
		return ""
	}
	return strings.ToUpper(strings.TrimSpace(norm.NFKC.String(trimmed)))
}
