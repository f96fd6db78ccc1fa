package monitor

import (
	"sync/atomic"

	"github.com/Veraticus/autolinks/pkg/engine"
	"github.com/Veraticus/autolinks/pkg/render"
	"github.com/Veraticus/autolinks/pkg/types"
)

// Hyperlinker renders lines of terminal output with OSC 8 hyperlinks. Its
// rule list can be replaced while output is flowing.
type Hyperlinker struct {
	matcher *engine.Matcher
	rules   atomic.Pointer[[]types.Rule]
}

// NewHyperlinker creates a Hyperlinker. A nil matcher uses engine defaults.
func NewHyperlinker(matcher *engine.Matcher, rules []types.Rule) *Hyperlinker {
	if matcher == nil {
		matcher = engine.New()
	}
	h := &Hyperlinker{matcher: matcher}
	h.SetRules(rules)
	return h
}

// SetRules replaces the rule list used for subsequent lines.
func (h *Hyperlinker) SetRules(rules []types.Rule) {
	cp := append([]types.Rule(nil), rules...)
	h.rules.Store(&cp)
}

// Rules returns the current rule list.
func (h *Hyperlinker) Rules() []types.Rule {
	return *h.rules.Load()
}

// Render links every match in line that lies outside markdown skip zones and
// does not touch an escape sequence.
func (h *Hyperlinker) Render(line string) string {
	matches := render.Linkify(line, h.Rules(), h.matcher)
	if len(matches) == 0 {
		return line
	}

	if zones := EscapeZones(line); len(zones) > 0 {
		kept := matches[:0]
		for _, m := range matches {
			if !overlapsAny(m, zones) {
				kept = append(kept, m)
			}
		}
		matches = kept
	}

	return render.Splice(line, matches, render.Hyperlink)
}
