// Package skipzone finds spans of markdown text that must never receive a
// generated link: front matter, fenced code, existing links and inline code.
package skipzone

import (
	"cmp"
	"regexp"
	"slices"
	"sort"

	"github.com/Veraticus/autolinks/pkg/types"
)

// Kind identifies the construct a zone was detected from.
type Kind string

const (
	KindFrontMatter  Kind = "frontmatter"
	KindFencedCode   Kind = "fenced_code"
	KindMarkdownLink Kind = "markdown_link"
	KindWikilink     Kind = "wikilink"
	KindInlineCode   Kind = "inline_code"
)

// Zone is a detected construct before merging.
type Zone struct {
	types.TextRange
	Kind Kind `json:"kind"`
}

// detector locates every occurrence of one construct class.
type detector struct {
	kind Kind
	re   *regexp.Regexp
	// anchored detectors only count a match at offset 0.
	anchored bool
}

// ---\n ... \n---\n at the very start of the document.
var frontMatter = regexp.MustCompile(`\A---\n(?s:.*?)\n---\n`)

// detectors run independently over the whole text; overlaps between classes
// are resolved only when merging.
var detectors = []detector{
	{kind: KindFrontMatter, re: frontMatter, anchored: true},
	// ``` ... ``` with the first closing fence winning, across lines.
	{kind: KindFencedCode, re: regexp.MustCompile("```(?s:.*?)```")},
	// [text](destination)
	{kind: KindMarkdownLink, re: regexp.MustCompile(`\[[^\]]+\]\([^)]+\)`)},
	// [[target]] and [[target|alias]]
	{kind: KindWikilink, re: regexp.MustCompile(`\[\[[^\]]+\]\]`)},
	// `code`
	{kind: KindInlineCode, re: regexp.MustCompile("`[^`]+`")},
}

// Detect returns every construct found in text, grouped by class in detector
// order and unmerged. Most callers want FindSkipZones.
func Detect(text string) []Zone {
	if text == "" {
		return nil
	}

	var zones []Zone
	for _, d := range detectors {
		if d.anchored {
			if loc := d.re.FindStringIndex(text); loc != nil && loc[0] == 0 {
				zones = append(zones, Zone{TextRange: types.TextRange{Start: loc[0], End: loc[1]}, Kind: d.kind})
			}
			continue
		}
		for _, loc := range d.re.FindAllStringIndex(text, -1) {
			zones = append(zones, Zone{TextRange: types.TextRange{Start: loc[0], End: loc[1]}, Kind: d.kind})
		}
	}
	return zones
}

// FrontMatter returns the front matter block at the start of text, if any.
func FrontMatter(text string) (types.TextRange, bool) {
	loc := frontMatter.FindStringIndex(text)
	if loc == nil || loc[0] != 0 {
		return types.TextRange{}, false
	}
	return types.TextRange{Start: loc[0], End: loc[1]}, true
}

// FindSkipZones returns the sorted, non-overlapping union of all skip
// constructs in text.
func FindSkipZones(text string) []types.TextRange {
	detected := Detect(text)
	ranges := make([]types.TextRange, len(detected))
	for i, z := range detected {
		ranges[i] = z.TextRange
	}
	return Merge(ranges)
}

// Merge sorts ranges by start and unions overlapping ones. Ranges that merely
// touch (next.Start == prev.End) stay separate. The input is not modified.
func Merge(ranges []types.TextRange) []types.TextRange {
	sorted := slices.Clone(ranges)
	slices.SortStableFunc(sorted, func(a, b types.TextRange) int {
		return cmp.Compare(a.Start, b.Start)
	})

	merged := make([]types.TextRange, 0, len(sorted))
	for _, z := range sorted {
		if len(merged) == 0 || z.Start >= merged[len(merged)-1].End {
			merged = append(merged, z)
			continue
		}
		if last := &merged[len(merged)-1]; z.End > last.End {
			last.End = z.End
		}
	}
	return merged
}

// IsInSkipZone reports whether pos lies in [Start, End) of any zone.
func IsInSkipZone(pos int, zones []types.TextRange) bool {
	for _, z := range zones {
		if z.Contains(pos) {
			return true
		}
	}
	return false
}

// Contains is IsInSkipZone for zones that are sorted and non-overlapping, as
// returned by FindSkipZones. It runs in logarithmic time.
func Contains(pos int, zones []types.TextRange) bool {
	i := sort.Search(len(zones), func(i int) bool { return zones[i].End > pos })
	return i < len(zones) && zones[i].Start <= pos
}

// Filter returns the matches whose start lies outside every zone. Zones must
// be sorted and non-overlapping.
func Filter(matches []types.Match, zones []types.TextRange) []types.Match {
	kept := make([]types.Match, 0, len(matches))
	for _, m := range matches {
		if !Contains(m.Start, zones) {
			kept = append(kept, m)
		}
	}
	return kept
}
