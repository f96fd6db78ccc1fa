package pattern

import "strings"

// Substitute expands $0..$9 in template using groups, where groups[0] is the
// full match. References to groups that are absent or did not participate in
// the match expand to the empty string. Any other text, including a '$' not
// followed by a digit, is copied unchanged. Only one digit is consumed, so
// "$12" is group 1 followed by a literal "2".
func Substitute(template string, groups []string) string {
	if !strings.Contains(template, "$") {
		return template
	}

	var b strings.Builder
	b.Grow(len(template))

	for i := 0; i < len(template); i++ {
		c := template[i]
		if c == '$' && i+1 < len(template) && isDigit(template[i+1]) {
			n := int(template[i+1] - '0')
			if n < len(groups) {
				b.WriteString(groups[n])
			}
			i++
			continue
		}
		b.WriteByte(c)
	}

	return b.String()
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
