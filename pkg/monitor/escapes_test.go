package monitor

import (
	"reflect"
	"testing"

	"github.com/Veraticus/autolinks/pkg/types"
)

func TestEscapeZones(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []types.TextRange
	}{
		{
			name: "no escapes",
			text: "plain ISSUE-1",
			want: nil,
		},
		{
			name: "colour codes",
			text: "\x1b[31mred\x1b[0m",
			want: []types.TextRange{{Start: 0, End: 5}, {Start: 8, End: 12}},
		},
		{
			name: "title with BEL",
			text: "\x1b]0;ISSUE-1\x07 text",
			want: []types.TextRange{{Start: 0, End: 12}},
		},
		{
			name: "existing hyperlink covers its text",
			text: "\x1b]8;;http://x\x1b\\ISSUE-1\x1b]8;;\x1b\\ ISSUE-2",
			want: []types.TextRange{{Start: 0, End: 29}},
		},
		{
			name: "unterminated CSI",
			text: "ab\x1b[12",
			want: []types.TextRange{{Start: 2, End: 6}},
		},
		{
			name: "two byte escape",
			text: "\x1bcreset",
			want: []types.TextRange{{Start: 0, End: 2}},
		},
		{
			name: "trailing escape",
			text: "x\x1b",
			want: []types.TextRange{{Start: 1, End: 2}},
		},
		{
			name: "hyperlink left open",
			text: "a\x1b]8;;http://x\x07ISSUE-1",
			want: []types.TextRange{{Start: 1, End: 22}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EscapeZones(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("EscapeZones(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestHyperlinkerRender(t *testing.T) {
	rules := []types.Rule{{Pattern: `ISSUE-(\d+)`, URL: "https://t.example/$1", Enabled: true}}
	h := NewHyperlinker(nil, rules)

	link := func(label, url string) string {
		return "\x1b]8;;" + url + "\x1b\\" + label + "\x1b]8;;\x1b\\"
	}

	tests := []struct {
		name string
		line string
		want string
	}{
		{
			name: "plain",
			line: "fixed ISSUE-1",
			want: "fixed " + link("ISSUE-1", "https://t.example/1"),
		},
		{
			name: "inside colour codes",
			line: "\x1b[1mISSUE-2\x1b[0m",
			want: "\x1b[1m" + link("ISSUE-2", "https://t.example/2") + "\x1b[0m",
		},
		{
			name: "already linked",
			line: link("ISSUE-3", "http://x") + " ISSUE-4",
			want: link("ISSUE-3", "http://x") + " " + link("ISSUE-4", "https://t.example/4"),
		},
		{
			name: "inline code",
			line: "run `ISSUE-5`",
			want: "run `ISSUE-5`",
		},
		{
			name: "in title sequence",
			line: "\x1b]0;ISSUE-6\x07",
			want: "\x1b]0;ISSUE-6\x07",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := h.Render(tt.line); got != tt.want {
				t.Errorf("Render(%q) = %q, want %q", tt.line, got, tt.want)
			}
		})
	}
}

func TestHyperlinkerSetRules(t *testing.T) {
	h := NewHyperlinker(nil, nil)
	if got := h.Render("ISSUE-1"); got != "ISSUE-1" {
		t.Errorf("expected no links without rules, got %q", got)
	}

	rules := []types.Rule{{Pattern: `ISSUE-\d+`, URL: "u", Enabled: true}}
	h.SetRules(rules)
	rules[0].Enabled = false

	if got := h.Render("ISSUE-1"); got == "ISSUE-1" {
		t.Error("expected SetRules to copy the rule list")
	}
	if len(h.Rules()) != 1 {
		t.Errorf("expected 1 rule, got %d", len(h.Rules()))
	}
}
