// Package common provides shared utilities across the application.
package common

import (
	"strings"
)

// NormalizeTicker normalizes a user-supplied ticker symbol for storage and
// canonical-key matching. Symbols are uppercased and stripped of whitespace;
// class shares keep their dot notation (e.g. "BRK.B").
func NormalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

// NormalizeTickers normalizes a list of ticker symbols, dropping empties and
// duplicates while preserving first-seen order.
func NormalizeTickers(tickers []string) []string {
	seen := make(map[string]struct{}, len(tickers))
	result := make([]string, 0, len(tickers))
	for _, t := range tickers {
		normalized := NormalizeTicker(t)
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		result = append(result, normalized)
	}
	return result
}

// IsValidTicker reports whether a normalized ticker looks like a plausible
// US-listed symbol: 1-10 characters, uppercase letters, digits, dot or hyphen.
func IsValidTicker(ticker string) bool {
	if len(ticker) == 0 || len(ticker) > 10 {
		return false
	}
	for _, r := range ticker {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') && r != '.' && r != '-' {
			return false
		}
	}
	return true
}
