package render

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/Veraticus/autolinks/pkg/skipzone"
	"github.com/Veraticus/autolinks/pkg/types"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Text under these elements is never linkified.
var skipElements = map[atom.Atom]bool{
	atom.A:        true,
	atom.Code:     true,
	atom.Pre:      true,
	atom.Script:   true,
	atom.Style:    true,
	atom.Textarea: true,
}

// HTML linkifies the text nodes of an HTML fragment. Each text node is
// scanned on its own, so the returned match offsets are relative to the text
// node they were found in.
func (r *Renderer) HTML(doc string, rules []types.Rule) (string, []types.Match, error) {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(doc), body)
	if err != nil {
		return "", nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	for _, n := range nodes {
		body.AppendChild(n)
	}

	var texts []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch {
		case n.Type == html.ElementNode && skipElements[n.DataAtom]:
			return
		case n.Type == html.TextNode:
			texts = append(texts, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(body)

	all := []types.Match{}
	for _, n := range texts {
		if n.Data == "" {
			continue
		}
		matches := r.Linkify(n.Data, rules)
		if len(matches) == 0 {
			continue
		}
		r.replaceText(n, matches)
		all = append(all, matches...)
	}

	var buf bytes.Buffer
	for c := body.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", nil, fmt.Errorf("failed to render HTML: %w", err)
		}
	}
	return buf.String(), all, nil
}

// replaceText swaps n for text nodes and anchors built from matches.
func (r *Renderer) replaceText(n *html.Node, matches []types.Match) {
	parent := n.Parent
	text := n.Data
	last := 0
	for _, m := range matches {
		if m.Start > last {
			parent.InsertBefore(&html.Node{Type: html.TextNode, Data: text[last:m.Start]}, n)
		}
		parent.InsertBefore(r.anchor(m), n)
		last = m.End
	}
	if last < len(text) {
		parent.InsertBefore(&html.Node{Type: html.TextNode, Data: text[last:]}, n)
	}
	parent.RemoveChild(n)
}

func (r *Renderer) anchor(m types.Match) *html.Node {
	a := &html.Node{
		Type:     html.ElementNode,
		Data:     "a",
		DataAtom: atom.A,
		Attr:     []html.Attribute{{Key: "href", Val: m.URL}},
	}
	if r.linkClass != "" {
		a.Attr = append(a.Attr, html.Attribute{Key: "class", Val: r.linkClass})
	}
	a.AppendChild(&html.Node{Type: html.TextNode, Data: m.MatchedText})
	return a
}

// MarkdownToHTML renders markdown source to HTML and linkifies the result.
// Front matter is dropped before rendering.
func (r *Renderer) MarkdownToHTML(src []byte, rules []types.Rule) (string, []types.Match, error) {
	if fm, ok := skipzone.FrontMatter(string(src)); ok {
		src = src[fm.End:]
	}

	var buf bytes.Buffer
	if err := r.md.Convert(src, &buf); err != nil {
		return "", nil, fmt.Errorf("failed to render markdown: %w", err)
	}

	out, matches, err := r.HTML(buf.String(), rules)
	if err != nil {
		return "", nil, err
	}
	if r.sanitize {
		out = r.policy.Sanitize(out)
	}
	return out, matches, nil
}

var classTokens = regexp.MustCompile(`^[\w\- ]+$`)

// sanitizePolicy is the user generated content policy plus the class
// attribute on anchors, so generated links keep their styling.
func sanitizePolicy() *bluemonday.Policy {
	policy := bluemonday.UGCPolicy()
	policy.AllowAttrs("class").Matching(classTokens).OnElements("a")
	return policy
}
