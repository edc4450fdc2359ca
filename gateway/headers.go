package gateway

import (
	"strings"

	"golang.org/x/net/http/httpguts"
)

// validHeaderField reports whether name/value form a well-formed header
// field, reusing golang.org/x/net/http/httpguts's token/field-value
// grammar checks (the successor of the teacher's vendored lex/httplex)
// instead of hand-rolling RFC 7230 token validation.
func validHeaderField(name, value string) bool {
	return httpguts.ValidHeaderFieldName(name) && httpguts.ValidHeaderFieldValue(value)
}

const toLower = 'a' - 'A'

// commaJoinedHeaders is the set of request headers that, on repeat,
// accumulate as "<old>, <new>" rather than the later value replacing the
// earlier one (spec §4.D step 6). Taken verbatim from the original
// syncless WSGI server's COMMA_SEPARATED_REQHEAD table.
var commaJoinedHeaders = map[string]bool{
	"ACCEPT":             true,
	"ACCEPT-CHARSET":     true,
	"ACCEPT-ENCODING":    true,
	"ACCEPT-LANGUAGE":    true,
	"ACCEPT-RANGES":      true,
	"ALLOW":              true,
	"CACHE-CONTROL":      true,
	"CONNECTION":         true,
	"CONTENT-ENCODING":   true,
	"CONTENT-LANGUAGE":   true,
	"EXPECT":             true,
	"IF-MATCH":           true,
	"IF-NONE-MATCH":      true,
	"PRAGMA":             true,
	"PROXY-AUTHENTICATE": true,
	"TE":                 true,
	"TRAILER":            true,
	"TRANSFER-ENCODING":  true,
	"UPGRADE":            true,
	"VARY":               true,
	"VIA":                true,
	"WARNING":            true,
	"WWW-AUTHENTICATE":   true,
}

// CapitalizeHeader lowercases name, then uppercases the first letter of
// each hyphen-separated word: "content-type" -> "Content-Type".
func CapitalizeHeader(name string) string {
	b := []byte(strings.ToLower(name))
	upperNext := true
	for i, c := range b {
		if upperNext && 'a' <= c && c <= 'z' {
			b[i] = c - toLower
		}
		upperNext = b[i] == '-'
	}
	return string(b)
}

// envKeyForHeader turns a lower-cased request header name into its
// wsgi-style env key: hyphens become underscores, the whole name is
// upper-cased, and it is prefixed with "HTTP_" (spec §4.D step 6).
func envKeyForHeader(lowerName string) string {
	b := make([]byte, 0, len(lowerName)+5)
	b = append(b, "HTTP_"...)
	for i := 0; i < len(lowerName); i++ {
		c := lowerName[i]
		if c == '-' {
			b = append(b, '_')
			continue
		}
		if 'a' <= c && c <= 'z' {
			c -= toLower
		}
		b = append(b, c)
	}
	return string(b)
}
