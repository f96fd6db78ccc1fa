package config

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/Veraticus/autolinks/pkg/types"
)

func TestImportRules(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []types.Rule
		wantErr error
	}{
		{
			name:  "valid rules",
			input: `[{"pattern":"ISSUE-(\\d+)","url":"https://x.com/$1","enabled":true},{"pattern":"PR","url":"https://y.com","enabled":false}]`,
			want: []types.Rule{
				{Pattern: `ISSUE-(\d+)`, URL: "https://x.com/$1", Enabled: true},
				{Pattern: "PR", URL: "https://y.com", Enabled: false},
			},
		},
		{
			name: "malformed entries are dropped",
			input: `[
				{"pattern":"A","url":"https://a.com","enabled":true},
				{"pattern":"B","url":"https://b.com"},
				{"pattern":1,"url":"https://c.com","enabled":true},
				{"pattern":"D","url":"https://d.com","enabled":"yes"},
				"not an object",
				null,
				{"pattern":"E","url":"https://e.com","enabled":false,"extra":42}
			]`,
			want: []types.Rule{
				{Pattern: "A", URL: "https://a.com", Enabled: true},
				{Pattern: "E", URL: "https://e.com", Enabled: false},
			},
		},
		{
			name:  "empty array",
			input: `[]`,
			want:  []types.Rule{},
		},
		{
			name:    "object instead of array",
			input:   `{"rules":[]}`,
			wantErr: ErrNotArray,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ImportRules(strings.NewReader(tt.input))

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("expected %v but got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d rules but got %d: %+v", len(tt.want), len(got), got)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("rule %d: expected %+v but got %+v", i, tt.want[i], got[i])
				}
			}
		})
	}
}

func TestImportRulesInvalidJSON(t *testing.T) {
	if _, err := ImportRules(strings.NewReader("[{")); err == nil {
		t.Error("expected error for truncated JSON")
	}
}

func TestExportRules(t *testing.T) {
	rules := []types.Rule{{Pattern: `ISSUE-(\d+)`, URL: "https://x.com/$1", Enabled: true}}

	var buf bytes.Buffer
	if err := ExportRules(&buf, rules); err != nil {
		t.Fatalf("export failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "\n  {\n    \"pattern\": ") {
		t.Errorf("expected two-space indented output, got:\n%s", out)
	}

	back, err := ImportRules(&buf)
	if err != nil {
		t.Fatalf("re-import failed: %v", err)
	}
	if len(back) != 1 || back[0] != rules[0] {
		t.Errorf("exported rules did not re-import: %+v", back)
	}
}

func TestExportRulesNil(t *testing.T) {
	var buf bytes.Buffer
	if err := ExportRules(&buf, nil); err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Errorf("expected [] but got %q", buf.String())
	}
}
