package engine

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/Veraticus/autolinks/pkg/logger"
	"github.com/Veraticus/autolinks/pkg/metrics"
	"github.com/Veraticus/autolinks/pkg/testutil"
	"github.com/Veraticus/autolinks/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rule(pattern, url string) types.Rule {
	return types.Rule{Pattern: pattern, URL: url, Enabled: true}
}

func TestFindAutoLinks_SingleMatch(t *testing.T) {
	rules := []types.Rule{rule(`ISSUE-(\d+)`, "https://github.com/issues/$1")}

	matches := FindAutoLinks("See ISSUE-123 for details", rules)

	require.Len(t, matches, 1)
	assert.Equal(t, types.Match{
		Start:       4,
		End:         13,
		MatchedText: "ISSUE-123",
		URL:         "https://github.com/issues/123",
	}, matches[0])
}

func TestFindAutoLinks(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		rules []types.Rule
		want  []string // matched text, in order
		urls  []string
	}{
		{
			name:  "multiple matches of one rule",
			text:  "See ISSUE-123 and ISSUE-456",
			rules: []types.Rule{rule(`ISSUE-(\d+)`, "https://github.com/issues/$1")},
			want:  []string{"ISSUE-123", "ISSUE-456"},
		},
		{
			name: "multiple rules",
			text: "See ISSUE-123 and PR-456",
			rules: []types.Rule{
				rule(`ISSUE-(\d+)`, "https://github.com/issues/$1"),
				rule(`PR-(\d+)`, "https://github.com/pull/$1"),
			},
			want: []string{"ISSUE-123", "PR-456"},
			urls: []string{"https://github.com/issues/123", "https://github.com/pull/456"},
		},
		{
			name: "first match wins on identical span",
			text: "See ISSUE-123",
			rules: []types.Rule{
				rule(`ISSUE-123`, "https://specific.com"),
				rule(`ISSUE-(\d+)`, "https://generic.com/$1"),
			},
			want: []string{"ISSUE-123"},
			urls: []string{"https://specific.com"},
		},
		{
			name: "earlier start wins regardless of rule order",
			text: "ABCD",
			rules: []types.Rule{
				rule(`BCD`, "https://bcd.com"),
				rule(`ABC`, "https://abc.com"),
			},
			want: []string{"ABC"},
			urls: []string{"https://abc.com"},
		},
		{
			name: "shorter earlier-rule match suppresses longer later rule at same start",
			text: "ISSUE-123456",
			rules: []types.Rule{
				rule(`ISSUE-\d{3}`, "https://short.com"),
				rule(`ISSUE-\d+`, "https://long.com"),
			},
			want: []string{"ISSUE-123"},
			urls: []string{"https://short.com"},
		},
		{
			name:  "no matches",
			text:  "No issues here",
			rules: []types.Rule{rule(`ISSUE-(\d+)`, "https://github.com/issues/$1")},
		},
		{
			name:  "special characters in pattern",
			text:  "Check $AAPL stock",
			rules: []types.Rule{rule(`\$([A-Z]+)`, "https://finance.com/$1")},
			want:  []string{"$AAPL"},
			urls:  []string{"https://finance.com/AAPL"},
		},
		{
			name:  "mentions",
			text:  "Follow @johndoe",
			rules: []types.Rule{rule(`@([a-zA-Z0-9_]+)`, "https://twitter.com/$1")},
			want:  []string{"@johndoe"},
			urls:  []string{"https://twitter.com/johndoe"},
		},
		{
			name:  "sorted by position",
			text:  "ZZZ-999 AAA-111 MMM-555",
			rules: []types.Rule{rule(`\b[A-Z]+-\d+\b`, "https://example.com")},
			want:  []string{"ZZZ-999", "AAA-111", "MMM-555"},
		},
		{
			name:  "multiline text",
			text:  "Line 1: ISSUE-123\nLine 2: ISSUE-456",
			rules: []types.Rule{rule(`ISSUE-(\d+)`, "https://example.com/$1")},
			want:  []string{"ISSUE-123", "ISSUE-456"},
		},
		{
			name:  "lookahead",
			text:  "v1.2 v3",
			rules: []types.Rule{rule(`v\d(?=\.)`, "https://example.com/$0")},
			want:  []string{"v1"},
			urls:  []string{"https://example.com/v1"},
		},
		{
			name:  "unmatched alternative group",
			text:  "bug:7",
			rules: []types.Rule{rule(`(?:feat:(\d+)|bug:(\d+))`, "https://x.com/$1/$2")},
			want:  []string{"bug:7"},
			urls:  []string{"https://x.com//7"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matches := FindAutoLinks(tt.text, tt.rules)

			require.Len(t, matches, len(tt.want))
			for i, want := range tt.want {
				assert.Equal(t, want, matches[i].MatchedText)
				assert.Equal(t, want, tt.text[matches[i].Start:matches[i].End])
			}
			for i, url := range tt.urls {
				assert.Equal(t, url, matches[i].URL)
			}
		})
	}
}

func TestFindAutoLinks_Empty(t *testing.T) {
	rules := []types.Rule{rule(`ISSUE-(\d+)`, "https://github.com/issues/$1")}

	assert.Empty(t, FindAutoLinks("", rules))
	assert.Empty(t, FindAutoLinks("ISSUE-123", nil))
	assert.NotNil(t, FindAutoLinks("ISSUE-123", nil))
}

func TestFindAutoLinks_DisabledRule(t *testing.T) {
	rules := []types.Rule{
		{Pattern: `ISSUE-(\d+)`, URL: "https://github.com/issues/$1", Enabled: false},
		{Pattern: `[broken`, URL: "https://broken.com", Enabled: false},
	}

	assert.Empty(t, FindAutoLinks("See ISSUE-123", rules))
}

func TestFindAutoLinks_InvalidPatternResilience(t *testing.T) {
	rules := []types.Rule{
		rule(`[invalid`, "https://invalid.com"),
		rule("   ", "https://blank.com"),
		rule(`ISSUE-(\d+)`, "https://github.com/issues/$1"),
	}

	var matches []types.Match
	require.NotPanics(t, func() {
		matches = FindAutoLinks("See ISSUE-123", rules)
	})
	require.Len(t, matches, 1)
	assert.Equal(t, "ISSUE-123", matches[0].MatchedText)
}

func TestFindAutoLinks_UnicodeOffsets(t *testing.T) {
	text := "日本語 ISSUE-123 テスト"
	rules := []types.Rule{rule(`ISSUE-(\d+)`, "https://example.com/$1")}

	matches := FindAutoLinks(text, rules)

	require.Len(t, matches, 1)
	assert.Equal(t, len("日本語 "), matches[0].Start)
	assert.Equal(t, "ISSUE-123", text[matches[0].Start:matches[0].End])
	assert.Equal(t, "https://example.com/123", matches[0].URL)
}

func TestFindAutoLinks_InvalidUTF8(t *testing.T) {
	text := "\xff\xfe ISSUE-9"
	matches := FindAutoLinks(text, []types.Rule{rule(`ISSUE-\d`, "https://x.com/$0")})

	require.Len(t, matches, 1)
	assert.Equal(t, "ISSUE-9", text[matches[0].Start:matches[0].End])
}

func TestFindAutoLinks_ZeroLengthMatchesTerminate(t *testing.T) {
	text := strings.Repeat("abc ", 5000)
	rules := []types.Rule{
		rule(`x*`, "https://empty.com"),
		rule(`\b`, "https://boundary.com"),
		rule(`b*`, "https://b.com/$0"),
	}

	done := make(chan []types.Match, 1)
	go func() { done <- FindAutoLinks(text, rules) }()

	select {
	case matches := <-done:
		require.Len(t, matches, 5000)
		for _, m := range matches {
			assert.Greater(t, m.End, m.Start)
			assert.Equal(t, "b", m.MatchedText)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("scan with zero-length pattern did not terminate")
	}
}

func TestFindAutoLinks_RuntimeFailureIsLocal(t *testing.T) {
	var logs bytes.Buffer
	m := New(
		WithTimeout(20*time.Millisecond),
		WithLogger(logger.New(&logs, logger.FormatText, true)),
	)

	text := strings.Repeat("a", 40) + "! ISSUE-7"
	rules := []types.Rule{
		rule(`(a+)+$`, "https://catastrophic.com"),
		rule(`ISSUE-(\d+)`, "https://issues.com/$1"),
	}

	var matches []types.Match
	require.NotPanics(t, func() {
		matches = m.FindAutoLinks(text, rules)
	})
	require.Len(t, matches, 1)
	assert.Equal(t, "https://issues.com/7", matches[0].URL)
	assert.Contains(t, logs.String(), "rule stopped matching")
}

func TestFindAutoLinks_Invariants(t *testing.T) {
	text := "PR-12 ISSUE-12 ISSUE-1234 ab-12 [[ISSUE-5]] x ISSUE-99"
	rules := []types.Rule{
		rule(`ISSUE-\d+`, "https://a.com/$0"),
		rule(`[A-Z]+-\d+`, "https://b.com/$0"),
		rule(`\d+`, "https://c.com/$0"),
		rule(`SUE-1`, "https://d.com"),
	}

	first := FindAutoLinks(text, rules)
	second := FindAutoLinks(text, rules)
	assert.Equal(t, first, second, "scan must be deterministic")

	for i, m := range first {
		assert.Greater(t, m.End, m.Start)
		if i > 0 {
			assert.GreaterOrEqual(t, m.Start, first[i-1].End)
		}
	}
}

func TestFindAutoLinks_DoesNotRetainRules(t *testing.T) {
	m := New()
	rules := []types.Rule{rule(`ISSUE-\d+`, "https://a.com")}

	require.Len(t, m.FindAutoLinks("ISSUE-1", rules), 1)

	rules[0].Enabled = false
	assert.Empty(t, m.FindAutoLinks("ISSUE-1", rules))
}

func TestFindAutoLinks_Recorder(t *testing.T) {
	rec := testutil.NewMockRecorder()
	m := New(WithRecorder(rec))

	m.FindAutoLinks("ISSUE-1 ISSUE-2", []types.Rule{
		rule(`(bad`, "x"),
		rule(`ISSUE-\d`, "https://a.com"),
	})

	assert.Equal(t, 1, rec.Scans())
	assert.Equal(t, 2, rec.Matches())
	assert.Equal(t, 1, rec.Failures(metrics.ReasonInvalid))
}
