package bridge

import "strings"

// EncodeListing renders names as a JSON-style array of strings. Only
// backslash and double quote are escaped: a name holding a control
// character such as a newline yields a payload strict JSON parsers reject.
func EncodeListing(names []string) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, name := range names {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		for j := 0; j < len(name); j++ {
			c := name[j]
			if c == '\\' || c == '"' {
				b.WriteByte('\\')
			}
			b.WriteByte(c)
		}
		b.WriteByte('"')
	}
	b.WriteByte(']')
	return b.String()
}
