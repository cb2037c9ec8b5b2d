package sources

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ihaichao/stock-pulse/internal/models"
)

// MacroRoster maps macro event names to importance levels. Matching is a
// case-insensitive substring check so "Consumer Price Index (CPI)" still
// hits the "CPI" entry.
type MacroRoster struct {
	entries []rosterEntry
	def     models.Importance
}

type rosterEntry struct {
	match      string
	importance models.Importance
}

type rosterFile struct {
	Events []struct {
		Match      string `yaml:"match"`
		Importance string `yaml:"importance"`
	} `yaml:"events"`
	Default string `yaml:"default"`
}

// LoadMacroRoster reads a roster YAML file. A missing path returns the
// built-in default roster rather than an error.
func LoadMacroRoster(path string) (*MacroRoster, error) {
	if path == "" {
		return DefaultMacroRoster(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultMacroRoster(), nil
		}
		return nil, fmt.Errorf("failed to read roster file: %w", err)
	}

	var file rosterFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse roster file: %w", err)
	}

	roster := &MacroRoster{def: models.ImportanceLow}
	if imp, ok := parseImportance(file.Default); ok {
		roster.def = imp
	}
	for _, e := range file.Events {
		imp, ok := parseImportance(e.Importance)
		if !ok || e.Match == "" {
			return nil, fmt.Errorf("invalid roster entry: match=%q importance=%q", e.Match, e.Importance)
		}
		roster.entries = append(roster.entries, rosterEntry{
			match:      strings.ToLower(e.Match),
			importance: imp,
		})
	}

	return roster, nil
}

// DefaultMacroRoster returns the built-in importance mapping for US macro
// releases.
func DefaultMacroRoster() *MacroRoster {
	high := []string{
		"fomc", "fed interest rate", "federal funds rate",
		"cpi", "consumer price index",
		"nonfarm payrolls", "non-farm payrolls",
		"gdp", "unemployment rate",
	}
	medium := []string{
		"ppi", "producer price index",
		"retail sales", "pmi", "ism",
		"consumer confidence", "michigan consumer sentiment",
		"initial jobless claims", "durable goods",
		"housing starts", "existing home sales",
	}

	roster := &MacroRoster{def: models.ImportanceLow}
	for _, m := range high {
		roster.entries = append(roster.entries, rosterEntry{match: m, importance: models.ImportanceHigh})
	}
	for _, m := range medium {
		roster.entries = append(roster.entries, rosterEntry{match: m, importance: models.ImportanceMedium})
	}
	return roster
}

// Importance returns the importance level for a macro event name.
func (r *MacroRoster) Importance(eventName string) models.Importance {
	name := strings.ToLower(eventName)
	for _, e := range r.entries {
		if strings.Contains(name, e.match) {
			return e.importance
		}
	}
	return r.def
}

func parseImportance(s string) (models.Importance, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return models.ImportanceHigh, true
	case "medium":
		return models.ImportanceMedium, true
	case "low":
		return models.ImportanceLow, true
	default:
		return "", false
	}
}
