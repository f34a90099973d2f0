// Package scoring ranks tickets by priority label, keyword signals and data completeness.
package scoring

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed tables.yaml
var defaultTables []byte

// KeywordWeight is one keyword bonus
type KeywordWeight struct {
	Keyword string  `yaml:"keyword"`
	Weight  float64 `yaml:"weight"`
}

// Tables is the declarative scoring configuration
type Tables struct {
	PriorityWeights  map[string]float64 `yaml:"priority_weights"`
	DefaultWeight    float64            `yaml:"default_weight"`
	FallbackPriority string             `yaml:"fallback_priority"`
	Keywords         []KeywordWeight    `yaml:"keywords"`
	MissingPenalty   float64            `yaml:"missing_penalty"`
	RequiredFields   []string           `yaml:"required_fields"`
}

// DefaultTables returns the embedded scoring tables
func DefaultTables() *Tables {
	t, err := ParseTables(defaultTables)
	if err != nil {
		panic(fmt.Sprintf("embedded scoring tables are invalid: %v", err))
	}
	return t
}

// LoadTables reads tables from a YAML file; an empty path yields the defaults
func LoadTables(path string) (*Tables, error) {
	if path == "" {
		return DefaultTables(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scoring tables: %w", err)
	}
	return ParseTables(data)
}

// ParseTables decodes and validates YAML scoring tables
func ParseTables(data []byte) (*Tables, error) {
	var t Tables
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse scoring tables: %w", err)
	}

	weights := make(map[string]float64, len(t.PriorityWeights))
	for label, w := range t.PriorityWeights {
		if w < 0 {
			return nil, fmt.Errorf("priority weight for %q is negative", label)
		}
		weights[strings.ToLower(label)] = w
	}
	t.PriorityWeights = weights
	t.FallbackPriority = strings.ToLower(t.FallbackPriority)

	for i, kw := range t.Keywords {
		if kw.Keyword == "" || kw.Weight < 0 {
			return nil, fmt.Errorf("keyword entry %d is invalid", i)
		}
		t.Keywords[i].Keyword = strings.ToLower(kw.Keyword)
	}
	if t.MissingPenalty < 0 {
		return nil, fmt.Errorf("missing_penalty is negative")
	}
	if len(t.RequiredFields) == 0 {
		return nil, fmt.Errorf("required_fields is empty")
	}
	return &t, nil
}
