// Package types contains shared data structures used across the application.
package types

// Rule maps a regular expression to a URL template.
//
// Rules are applied in slice order; earlier rules win ties.
type Rule struct {
	Pattern string `yaml:"pattern" json:"pattern"`
	URL     string `yaml:"url" json:"url"`
	Enabled bool   `yaml:"enabled" json:"enabled"`
}

// Match is a rule occurrence with its resolved URL.
// Start and End are byte offsets; the interval is half-open.
type Match struct {
	Start       int    `json:"start"`
	End         int    `json:"end"`
	MatchedText string `json:"matchedText"`
	URL         string `json:"url"`
}

// TextRange is a half-open byte range [Start, End).
type TextRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of bytes covered by the range.
func (r TextRange) Len() int {
	return r.End - r.Start
}

// Contains reports whether pos falls inside the range.
func (r TextRange) Contains(pos int) bool {
	return pos >= r.Start && pos < r.End
}

// ValidationResult describes whether a pattern can be used for matching.
type ValidationResult struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}
