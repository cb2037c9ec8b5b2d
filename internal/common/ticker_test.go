package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTicker(t *testing.T) {
	assert.Equal(t, "AAPL", NormalizeTicker("aapl"))
	assert.Equal(t, "AAPL", NormalizeTicker("  AAPL  "))
	assert.Equal(t, "BRK.B", NormalizeTicker("brk.b"))
	assert.Equal(t, "", NormalizeTicker("   "))
}

func TestNormalizeTickers(t *testing.T) {
	got := NormalizeTickers([]string{"aapl", "MSFT", "", "AAPL", " msft "})
	assert.Equal(t, []string{"AAPL", "MSFT"}, got)
}

func TestIsValidTicker(t *testing.T) {
	valid := []string{"A", "AAPL", "BRK.B", "BF-B", "GOOG1", "ABCDEFGHIJ"}
	for _, ticker := range valid {
		assert.True(t, IsValidTicker(ticker), "expected %q to be valid", ticker)
	}

	invalid := []string{"", "aapl", "AAPL!", "AAP L", "ABCDEFGHIJK"}
	for _, ticker := range invalid {
		assert.False(t, IsValidTicker(ticker), "expected %q to be invalid", ticker)
	}
}

func TestNewEventID(t *testing.T) {
	a := NewEventID()
	b := NewEventID()
	assert.Contains(t, a, "evt_")
	assert.NotEqual(t, a, b)
}
