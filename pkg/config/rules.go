package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/Veraticus/autolinks/pkg/types"
)

// ErrNotArray is returned when imported rule data is not a JSON array.
var ErrNotArray = errors.New("rule data must be a JSON array")

// ImportRules reads a JSON array of rules. Entries that are not objects with
// a string "pattern", a string "url" and a boolean "enabled" are dropped.
func ImportRules(r io.Reader) ([]types.Rule, error) {
	var data any
	if err := json.NewDecoder(r).Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode rules: %w", err)
	}

	items, ok := data.([]any)
	if !ok {
		return nil, ErrNotArray
	}

	rules := make([]types.Rule, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		pattern, okPattern := obj["pattern"].(string)
		url, okURL := obj["url"].(string)
		enabled, okEnabled := obj["enabled"].(bool)
		if !okPattern || !okURL || !okEnabled {
			continue
		}
		rules = append(rules, types.Rule{Pattern: pattern, URL: url, Enabled: enabled})
	}

	return rules, nil
}

// ExportRules writes rules as an indented JSON array.
func ExportRules(w io.Writer, rules []types.Rule) error {
	if rules == nil {
		rules = []types.Rule{}
	}
	data, err := json.MarshalIndent(rules, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode rules: %w", err)
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write rules: %w", err)
	}
	return nil
}
