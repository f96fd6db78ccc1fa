package monitor

import (
	"strings"

	"github.com/Veraticus/autolinks/pkg/types"
)

const esc = 0x1b

// EscapeZones returns the byte ranges of terminal escape sequences in s.
// An OSC 8 hyperlink that is already open extends its zone to the sequence
// that closes it, so text that is already a link is covered too.
func EscapeZones(s string) []types.TextRange {
	var zones []types.TextRange
	linkStart := -1

	for i := 0; i < len(s); {
		if s[i] != esc {
			i++
			continue
		}

		start := i
		end, payload := sequenceEnd(s, i)
		i = end

		if uri, ok := hyperlinkURI(payload); ok {
			switch {
			case uri != "" && linkStart < 0:
				linkStart = start
			case uri == "" && linkStart >= 0:
				zones = append(zones, types.TextRange{Start: linkStart, End: end})
				linkStart = -1
			}
			continue
		}

		if linkStart < 0 {
			zones = append(zones, types.TextRange{Start: start, End: end})
		}
	}

	if linkStart >= 0 {
		zones = append(zones, types.TextRange{Start: linkStart, End: len(s)})
	}
	return zones
}

// sequenceEnd returns the end of the escape sequence starting at s[i] and,
// for OSC sequences, the payload between the introducer and the terminator.
// Unterminated sequences run to the end of s.
func sequenceEnd(s string, i int) (int, string) {
	if i+1 >= len(s) {
		return len(s), ""
	}

	switch s[i+1] {
	case '[':
		// CSI: parameters and intermediates up to a final byte in 0x40-0x7e.
		for j := i + 2; j < len(s); j++ {
			if s[j] >= 0x40 && s[j] <= 0x7e {
				return j + 1, ""
			}
		}
		return len(s), ""
	case ']':
		// OSC: terminated by BEL or ST (ESC \).
		for j := i + 2; j < len(s); j++ {
			if s[j] == 0x07 {
				return j + 1, s[i+2 : j]
			}
			if s[j] == esc && j+1 < len(s) && s[j+1] == '\\' {
				return j + 2, s[i+2 : j]
			}
		}
		return len(s), s[i+2:]
	default:
		return i + 2, ""
	}
}

// hyperlinkURI parses an OSC 8 payload of the form "8;params;uri".
func hyperlinkURI(payload string) (string, bool) {
	parts := strings.SplitN(payload, ";", 3)
	if len(parts) != 3 || parts[0] != "8" {
		return "", false
	}
	return parts[2], true
}

// overlapsAny reports whether m shares at least one byte with a zone.
func overlapsAny(m types.Match, zones []types.TextRange) bool {
	for _, z := range zones {
		if m.Start < z.End && z.Start < m.End {
			return true
		}
	}
	return false
}
