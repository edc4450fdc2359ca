package gateway

import (
	"net"
	"strings"

	"golang.org/x/net/idna"
)

// validConnectTarget reports whether suburl is an acceptable authority-form
// target for CONNECT ("host:port"), widening spec.md step 4's path-only
// suburl grammar for this one method (spec.md's Non-goals still forbid
// actually proxying the connection; this only lets a syntactically sound
// CONNECT target reach the application instead of being rejected as a bad
// suburl before it's even inspected).
//
// Grounded on the teacher's url.ValidHostHeader CONNECT handling, reworked
// to use golang.org/x/net/idna for the host part so internationalized
// authority names normalize the same way a real browser's CONNECT would
// send them.
func validConnectTarget(suburl string) bool {
	host, port, err := net.SplitHostPort(suburl)
	if err != nil || port == "" {
		return false
	}
	for _, c := range port {
		if c < '0' || c > '9' {
			return false
		}
	}
	if host == "" {
		return false
	}
	if _, err := idna.Lookup.ToASCII(strings.TrimSuffix(host, ".")); err != nil {
		// Not a hostname; accept only if it's a literal IP address.
		if net.ParseIP(strings.Trim(host, "[]")) == nil {
			return false
		}
	}
	return true
}
