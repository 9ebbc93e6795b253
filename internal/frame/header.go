package frame

import (
	"fmt"
	"strings"

	"github.com/go-gota/gota/dataframe"
)

const headerDropChars = ".,$%^&£@#()[]}{?"

// SanitiseName lowercases name, turns spaces and dashes into underscores,
// drops punctuation and collapses repeated or edge underscores.
//
//	"Impr.  A."  -> "impr_a"
//	"price [$]"  -> "price"
func SanitiseName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r == ' ' || r == '-':
			b.WriteRune('_')
		case strings.ContainsRune(headerDropChars, r):
		default:
			b.WriteRune(r)
		}
	}
	parts := strings.Split(b.String(), "_")
	kept := parts[:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "_")
}

// SanitiseHeader returns a copy of df with every column name passed through
// SanitiseName. Two columns mapping to the same name is an error.
func SanitiseHeader(df dataframe.DataFrame) (dataframe.DataFrame, error) {
	if df.Err != nil {
		return df, df.Err
	}
	names := df.Names()
	clean := make([]string, len(names))
	seen := make(map[string]string, len(names))
	for i, n := range names {
		c := SanitiseName(n)
		if prev, ok := seen[c]; ok {
			return df, fmt.Errorf("%w: %q and %q both become %q", ErrDuplicateColumns, prev, n, c)
		}
		seen[c] = n
		clean[i] = c
	}
	out := df.Copy()
	if err := out.SetNames(clean...); err != nil {
		return df, fmt.Errorf("rename columns: %w", err)
	}
	return out, nil
}
