package gateway

import "testing"

var capitalizeHeaderTests = []struct{ in, out string }{
	{"content-type", "Content-Type"},
	{"CONTENT-TYPE", "Content-Type"},
	{"x-forwarded-for", "X-Forwarded-For"},
	{"accept", "Accept"},
	{"a-b-c", "A-B-C"},
}

func TestCapitalizeHeader(t *testing.T) {
	for _, tt := range capitalizeHeaderTests {
		if got := CapitalizeHeader(tt.in); got != tt.out {
			t.Errorf("CapitalizeHeader(%q) = %q, want %q", tt.in, got, tt.out)
		}
	}
}

var envKeyTests = []struct{ in, out string }{
	{"x-forwarded-for", "HTTP_X_FORWARDED_FOR"},
	{"accept", "HTTP_ACCEPT"},
	{"user-agent", "HTTP_USER_AGENT"},
}

func TestEnvKeyForHeader(t *testing.T) {
	for _, tt := range envKeyTests {
		if got := envKeyForHeader(tt.in); got != tt.out {
			t.Errorf("envKeyForHeader(%q) = %q, want %q", tt.in, got, tt.out)
		}
	}
}

func TestValidHeaderField(t *testing.T) {
	if !validHeaderField("Accept", "text/html") {
		t.Error("expected a normal header field to validate")
	}
	if validHeaderField("Bad Name", "value") {
		t.Error("expected a space in the field name to be rejected")
	}
	if validHeaderField("Accept", "bad\nvalue") {
		t.Error("expected a raw newline in the field value to be rejected")
	}
}

func TestCommaJoinedHeadersSet(t *testing.T) {
	for _, name := range []string{"ACCEPT", "VIA", "WWW-AUTHENTICATE"} {
		if !commaJoinedHeaders[name] {
			t.Errorf("expected %q to be comma-joined", name)
		}
	}
	if commaJoinedHeaders["CONTENT-LENGTH"] {
		t.Error("content-length must not be comma-joined")
	}
}
