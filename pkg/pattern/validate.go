// Package pattern validates and compiles rule patterns and expands URL templates.
package pattern

import (
	"strings"
	"time"
	"unicode"

	"github.com/Veraticus/autolinks/pkg/types"
	"github.com/dlclark/regexp2"
)

// ErrEmptyPattern is the validation message for blank patterns.
const ErrEmptyPattern = "Pattern cannot be empty"

// syntax is the dialect rule patterns are written in.
const syntax = regexp2.ECMAScript

// Validate reports whether pattern can be used as a rule pattern.
func Validate(pattern string) types.ValidationResult {
	if isBlank(pattern) {
		return types.ValidationResult{Valid: false, Error: ErrEmptyPattern}
	}

	if _, err := regexp2.Compile(pattern, syntax); err != nil {
		return types.ValidationResult{Valid: false, Error: err.Error()}
	}

	return types.ValidationResult{Valid: true}
}

// isBlank reports whether pattern holds only white space. The byte order
// mark counts as white space.
func isBlank(pattern string) bool {
	return strings.TrimFunc(pattern, func(r rune) bool {
		return unicode.IsSpace(r) || r == '\ufeff'
	}) == ""
}

// Compile compiles a validated pattern. A positive timeout bounds each
// individual match attempt; zero means no limit.
func Compile(pattern string, timeout time.Duration) (*regexp2.Regexp, error) {
	re, err := regexp2.Compile(pattern, syntax)
	if err != nil {
		return nil, err
	}
	if timeout > 0 {
		re.MatchTimeout = timeout
	}
	return re, nil
}
