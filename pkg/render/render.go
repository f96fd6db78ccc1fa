// Package render writes surviving rule matches back into text as links:
// markdown links, terminal hyperlinks or HTML anchors.
package render

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/autolinks/pkg/engine"
	"github.com/Veraticus/autolinks/pkg/metrics"
	"github.com/Veraticus/autolinks/pkg/skipzone"
	"github.com/Veraticus/autolinks/pkg/types"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
)

// Output formats accepted by Render.
const (
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
	FormatTerminal = "terminal"
)

// DefaultLinkClass is the class attribute put on generated anchors.
const DefaultLinkClass = "auto-link external-link"

// ErrUnknownFormat is returned by Render for an unsupported format.
var ErrUnknownFormat = errors.New("unknown output format")

// Renderer linkifies text with a Matcher and writes the result in one of the
// supported formats. It is safe for concurrent use.
type Renderer struct {
	matcher   *engine.Matcher
	recorder  metrics.Recorder
	linkClass string
	sanitize  bool
	md        goldmark.Markdown
	policy    *bluemonday.Policy
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithLinkClass sets the class of generated HTML anchors.
func WithLinkClass(class string) Option {
	return func(r *Renderer) {
		r.linkClass = class
	}
}

// WithSanitize runs MarkdownToHTML output through an HTML sanitizer.
func WithSanitize(enabled bool) Option {
	return func(r *Renderer) {
		r.sanitize = enabled
	}
}

// WithRecorder sets the metrics recorder for skip zone counts.
func WithRecorder(rec metrics.Recorder) Option {
	return func(r *Renderer) {
		if rec != nil {
			r.recorder = rec
		}
	}
}

// New creates a Renderer. A nil matcher uses engine defaults.
func New(matcher *engine.Matcher, opts ...Option) *Renderer {
	if matcher == nil {
		matcher = engine.New()
	}
	r := &Renderer{
		matcher:   matcher,
		recorder:  metrics.Noop(),
		linkClass: DefaultLinkClass,
		md:        goldmark.New(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.policy = sanitizePolicy()
	return r
}

// Linkify returns the engine matches for text whose start lies outside every
// skip zone of the same text.
func Linkify(text string, rules []types.Rule, matcher *engine.Matcher) []types.Match {
	if matcher == nil {
		matcher = engine.New()
	}
	return skipzone.Filter(matcher.FindAutoLinks(text, rules), skipzone.FindSkipZones(text))
}

// Linkify returns the surviving matches for text using r's matcher.
func (r *Renderer) Linkify(text string, rules []types.Rule) []types.Match {
	matches := r.matcher.FindAutoLinks(text, rules)
	if len(matches) == 0 {
		return matches
	}
	zones := skipzone.FindSkipZones(text)
	r.recorder.ObserveZones(len(zones))
	return skipzone.Filter(matches, zones)
}

// Render writes text in the given format and returns the matches that were
// linked. For FormatHTML the text is treated as markdown source.
func (r *Renderer) Render(format, text string, rules []types.Rule) (string, []types.Match, error) {
	switch format {
	case FormatMarkdown, "":
		matches := r.Linkify(text, rules)
		return Splice(text, matches, markdownLink), matches, nil
	case FormatTerminal:
		matches := r.Linkify(text, rules)
		return Splice(text, matches, Hyperlink), matches, nil
	case FormatHTML:
		return r.MarkdownToHTML([]byte(text), rules)
	default:
		return "", nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// Markdown rewrites every surviving match as [matched](url).
func (r *Renderer) Markdown(text string, rules []types.Rule) string {
	return Splice(text, r.Linkify(text, rules), markdownLink)
}

// Terminal wraps every surviving match in an OSC 8 hyperlink.
func (r *Renderer) Terminal(text string, rules []types.Rule) string {
	return Splice(text, r.Linkify(text, rules), Hyperlink)
}

// Hyperlink returns label wrapped in an OSC 8 terminal hyperlink to url.
// Control characters are dropped from url so it cannot end the sequence.
func Hyperlink(label, url string) string {
	return "\x1b]8;;" + stripControl(url) + "\x1b\\" + label + "\x1b]8;;\x1b\\"
}

func markdownLink(label, url string) string {
	return "[" + label + "](" + url + ")"
}

// Splice replaces each match span in text with link(matched, url). Matches
// must be sorted and non-overlapping.
func Splice(text string, matches []types.Match, link func(label, url string) string) string {
	if len(matches) == 0 {
		return text
	}
	var b strings.Builder
	b.Grow(len(text) + len(matches)*32)
	last := 0
	for _, m := range matches {
		b.WriteString(text[last:m.Start])
		b.WriteString(link(m.MatchedText, m.URL))
		last = m.End
	}
	b.WriteString(text[last:])
	return b.String()
}

func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
}
