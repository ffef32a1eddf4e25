// Package percent implements the percent-encoding rules the OAuth 1.0
// signing process requires (RFC 5849, section 3.6).
//
// These rules are stricter than generic URL escaping: every byte outside
// the unreserved set A-Za-z0-9-._~ is escaped as an uppercase %XX triplet,
// including characters such as '!', '*', '\'', '(' and ')' that net/url
// leaves untouched. Strings are encoded as their UTF-8 byte sequence, so a
// multi-byte code point produces one triplet per byte.
package percent

import "strings"

const upperhex = "0123456789ABCDEF"

// Encode percent-encodes s using the OAuth unreserved character set.
func Encode(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&0x0F])
	}
	return b.String()
}

// Decode reverses Encode. Malformed escape sequences are passed through
// unchanged rather than rejected, so Decode never fails; for any input x,
// Decode(Encode(x)) == x. A '+' is a literal plus, never a space.
func Decode(s string) string {
	if !strings.ContainsRune(s, '%') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) {
			hi, ok1 := unhex(s[i+1])
			lo, ok2 := unhex(s[i+2])
			if ok1 && ok2 {
				b.WriteByte(hi<<4 | lo)
				i += 2
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	return 'A' <= c && c <= 'Z' ||
		'a' <= c && c <= 'z' ||
		'0' <= c && c <= '9' ||
		c == '-' || c == '.' || c == '_' || c == '~'
}

func unhex(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	}
	return 0, false
}
