// Package engine applies ordered link rules to text and resolves overlapping
// matches with first-match-wins semantics.
package engine

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/Veraticus/autolinks/pkg/logger"
	"github.com/Veraticus/autolinks/pkg/metrics"
	"github.com/Veraticus/autolinks/pkg/pattern"
	"github.com/Veraticus/autolinks/pkg/types"
	"github.com/dlclark/regexp2"
)

// DefaultTimeout bounds a single match attempt of one rule.
const DefaultTimeout = time.Second

// Matcher finds rule matches in text. It holds no rules; the rule list is
// supplied on every call. A Matcher is safe for concurrent use.
type Matcher struct {
	timeout  time.Duration
	logger   logger.Logger
	recorder metrics.Recorder
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithTimeout sets the per-attempt match timeout. Zero disables the limit.
func WithTimeout(d time.Duration) Option {
	return func(m *Matcher) {
		if d >= 0 {
			m.timeout = d
		}
	}
}

// WithLogger sets the logger used for skipped and failing rules.
func WithLogger(log logger.Logger) Option {
	return func(m *Matcher) {
		if log != nil {
			m.logger = log
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(rec metrics.Recorder) Option {
	return func(m *Matcher) {
		if rec != nil {
			m.recorder = rec
		}
	}
}

// New creates a Matcher.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		timeout:  DefaultTimeout,
		logger:   logger.Noop(),
		recorder: metrics.Noop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

var defaultMatcher = New()

// FindAutoLinks finds matches using a Matcher with default settings.
func FindAutoLinks(text string, rules []types.Rule) []types.Match {
	return defaultMatcher.FindAutoLinks(text, rules)
}

// FindAutoLinks applies the enabled rules in order and returns the accepted
// matches sorted by start offset. Overlaps are resolved in favour of the
// match that starts first; at equal starts the earlier rule wins. Invalid
// patterns and rules that fail while matching contribute nothing further and
// never abort the scan.
func (m *Matcher) FindAutoLinks(text string, rules []types.Rule) []types.Match {
	if text == "" || len(rules) == 0 {
		return []types.Match{}
	}

	began := time.Now()
	src := newSource(text)

	var candidates []types.Match
	for i, rule := range rules {
		if !rule.Enabled {
			continue
		}

		if res := pattern.Validate(rule.Pattern); !res.Valid {
			m.logger.Debug("skipping invalid rule",
				logger.KeyRule, i,
				logger.KeyPattern, rule.Pattern,
				logger.KeyError, res.Error,
			)
			m.recorder.IncRuleFailure(metrics.ReasonInvalid)
			continue
		}

		found, err := m.scanRule(src, rule)
		candidates = append(candidates, found...)
		if err != nil {
			m.logger.Debug("rule stopped matching",
				logger.KeyRule, i,
				logger.KeyPattern, rule.Pattern,
				logger.KeyError, err,
			)
			m.recorder.IncRuleFailure(metrics.ReasonRuntime)
		}
	}

	// Stable: equal starts keep discovery order, so earlier rules come first.
	slices.SortStableFunc(candidates, func(a, b types.Match) int {
		return cmp.Compare(a.Start, b.Start)
	})

	accepted := resolveOverlaps(candidates)
	m.recorder.ObserveScan(time.Since(began), len(accepted))
	return accepted
}

// scanRule collects every non-empty occurrence of rule in src. On error the
// occurrences found before the failure are still returned.
func (m *Matcher) scanRule(src *source, rule types.Rule) (found []types.Match, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("regex engine panic: %v", r)
		}
	}()

	re, err := pattern.Compile(rule.Pattern, m.timeout)
	if err != nil {
		return nil, err
	}

	prev := -1
	occ, err := re.FindRunesMatch(src.runes)
	for occ != nil && err == nil {
		if occ.Index <= prev {
			break
		}
		prev = occ.Index

		if occ.Length > 0 {
			groups := src.groups(occ)
			start, end := src.span(occ.Index, occ.Length)
			found = append(found, types.Match{
				Start:       start,
				End:         end,
				MatchedText: groups[0],
				URL:         pattern.Substitute(rule.URL, groups),
			})
		}

		// regexp2 advances past empty matches before searching again.
		occ, err = re.FindNextMatch(occ)
	}

	return found, err
}

// resolveOverlaps keeps a candidate only if it starts at or after the end of
// the last accepted match. Input must be sorted by Start.
func resolveOverlaps(sorted []types.Match) []types.Match {
	accepted := make([]types.Match, 0, len(sorted))
	lastEnd := -1
	for _, c := range sorted {
		if c.Start >= lastEnd {
			accepted = append(accepted, c)
			lastEnd = c.End
		}
	}
	return accepted
}

// maxGroupRef is the highest group number a URL template can reference.
const maxGroupRef = 9

// source is the text prepared for regexp2, which indexes by rune.
type source struct {
	text    string
	runes   []rune
	offsets []int // byte offset of each rune, plus len(text)
}

func newSource(text string) *source {
	runes := make([]rune, 0, len(text))
	offsets := make([]int, 0, len(text)+1)
	for i, r := range text {
		runes = append(runes, r)
		offsets = append(offsets, i)
	}
	offsets = append(offsets, len(text))
	return &source{text: text, runes: runes, offsets: offsets}
}

// span converts a rune index and length into byte offsets.
func (s *source) span(index, length int) (int, int) {
	return s.offsets[index], s.offsets[index+length]
}

// groups returns $0..$9 for occ. Groups that do not exist or did not
// participate are empty.
func (s *source) groups(occ *regexp2.Match) []string {
	n := min(occ.GroupCount(), maxGroupRef+1)
	out := make([]string, n)
	for i := 0; i < n; i++ {
		g := occ.GroupByNumber(i)
		if g == nil || len(g.Captures) == 0 {
			continue
		}
		start, end := s.span(g.Index, g.Length)
		out[i] = s.text[start:end]
	}
	return out
}
