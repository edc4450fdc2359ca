package gateway

import (
	"bytes"
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// headerReadChunkSize is the per-call read size while scanning for the
// end of the header block (spec §4.D step 1).
const headerReadChunkSize = 4096

// maxHeaderBlockSize is the hard cap on accumulated header bytes before
// the connection is silently closed (spec §4.D step 1, §6).
const maxHeaderBlockSize = 32767

// ErrSilentClose marks request-parse failures that must close the
// connection without sending any response: a zero-length read before any
// header terminator, an oversized header block, or a first byte that
// isn't an uppercase ASCII letter.
var ErrSilentClose = errors.New("gateway: connection closed without response")

var suburlRE = regexp.MustCompile(`^/[-A-Za-z0-9_./,~!@$*()\[\]';:?&%+=]*$`)

var continuationRE = regexp.MustCompile(`\n[ \t]+`)

var validMethods = map[string]bool{
	"GET": true, "HEAD": true, "POST": true, "PUT": true, "DELETE": true,
	"OPTIONS": true, "TRACE": true, "CONNECT": true,
}

var methodsWithBody = map[string]bool{"POST": true, "PUT": true}

// ParsedRequest is the result of reading and validating one HTTP
// request-line-plus-headers block off a connection (spec §4.D).
type ParsedRequest struct {
	Method      string
	PathInfo    string
	QueryString string
	Version     string // "HTTP/1.0" or "HTTP/1.1"

	// Headers holds CONTENT_TYPE and every HTTP_<NAME> env entry
	// produced by spec §4.D step 6. content-length and connection are
	// tracked separately below, not duplicated here.
	Headers map[string]string

	ContentLength       int64 // -1 when absent
	HasContentLength    bool
	HasConnectionHeader bool
	RequestKeepAlive    bool

	// Carryover is whatever the accumulated header-scan buffer held
	// past the header terminator: request-body bytes (or, when it
	// exceeds ContentLength, rejected as pipelining in step 7).
	Carryover []byte
}

// ParseRequest reads one request off sock, reusing carryover bytes left
// over from a previous request on the same connection (spec §4.D).
func ParseRequest(sock *SocketFile, carryover []byte) (*ParsedRequest, error) {
	buf := append([]byte(nil), carryover...)

	idx, markerLen, found := findHeaderTerminator(buf)
	for !found {
		chunk, eof, err := sock.ReadSome(headerReadChunkSize)
		if err != nil {
			return nil, err
		}
		if len(chunk) == 0 {
			if eof {
				return nil, ErrSilentClose
			}
			continue
		}
		buf = append(buf, chunk...)
		idx, markerLen, found = findHeaderTerminator(buf)
		if !found {
			if len(buf) > maxHeaderBlockSize {
				return nil, ErrSilentClose
			}
			if eof {
				return nil, ErrSilentClose
			}
		}
	}

	headerText := buf[:idx+1]
	rest := buf[idx+markerLen:]

	if len(headerText) == 0 || headerText[0] < 'A' || headerText[0] > 'Z' {
		return nil, ErrSilentClose
	}

	lines := splitHeaderLines(headerText)
	if len(lines) == 0 {
		return nil, protocolErrorf("bad request line")
	}

	req, err := parseRequestLine(lines[0])
	if err != nil {
		return nil, err
	}

	if err := parseHeaderLines(req, lines[1:]); err != nil {
		return nil, err
	}

	if err := applyBodyPolicy(req, len(rest)); err != nil {
		return nil, err
	}

	req.RequestKeepAlive = computeKeepAlive(req)
	req.Carryover = rest
	return req, nil
}

// findHeaderTerminator returns the index of the first '\n' of whichever
// marker ("\n\n" or "\n\r\n") occurs earliest in buf, and that marker's
// byte length.
func findHeaderTerminator(buf []byte) (idx, markerLen int, found bool) {
	iLFLF := bytes.Index(buf, []byte("\n\n"))
	iLFCRLF := bytes.Index(buf, []byte("\n\r\n"))
	switch {
	case iLFLF == -1 && iLFCRLF == -1:
		return 0, 0, false
	case iLFCRLF == -1 || (iLFLF != -1 && iLFLF <= iLFCRLF):
		return iLFLF, 2, true
	default:
		return iLFCRLF, 3, true
	}
}

func splitHeaderLines(block []byte) []string {
	s := string(block)
	s = strings.TrimSuffix(s, "\r")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = continuationRE.ReplaceAllString(s, ", ")
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}

func parseRequestLine(line string) (*ParsedRequest, error) {
	tokens := strings.Split(line, " ")
	if len(tokens) != 3 {
		return nil, protocolErrorf("bad request line")
	}
	method, suburl, version := tokens[0], tokens[1], tokens[2]

	if !validMethods[method] {
		return nil, protocolErrorf("bad method")
	}
	if version != "HTTP/1.0" && version != "HTTP/1.1" {
		return nil, protocolErrorf("bad HTTP version")
	}

	if method == "CONNECT" {
		if !validConnectTarget(suburl) {
			return nil, protocolErrorf("bad suburl")
		}
		return &ParsedRequest{
			Method:        method,
			PathInfo:      suburl,
			Version:       version,
			Headers:       make(map[string]string),
			ContentLength: -1,
		}, nil
	}

	if !suburlRE.MatchString(suburl) {
		return nil, protocolErrorf("bad suburl")
	}

	path, query := suburl, ""
	if i := strings.IndexByte(suburl, '?'); i >= 0 {
		path, query = suburl[:i], suburl[i+1:]
	}

	return &ParsedRequest{
		Method:        method,
		PathInfo:      path,
		QueryString:   query,
		Version:       version,
		Headers:       make(map[string]string),
		ContentLength: -1,
	}, nil
}

func parseHeaderLines(req *ParsedRequest, lines []string) error {
	for _, line := range lines {
		colon := strings.IndexByte(line, ':')
		if colon < 0 {
			return protocolErrorf("bad header line")
		}
		name := line[:colon]
		valueStart := colon + 1
		if valueStart < len(line) && line[valueStart] == ' ' {
			valueStart++
		}
		value := line[valueStart:]
		lowerName := strings.ToLower(name)

		if !validHeaderField(name, value) {
			return protocolErrorf("bad header line")
		}

		switch {
		case lowerName == "connection":
			req.RequestKeepAlive = strings.ToLower(value) == "keep-alive"
			req.HasConnectionHeader = true
		case lowerName == "keep-alive":
			// accepted and ignored: not stored and not exposed in the env
		case lowerName == "content-length":
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil || n < 0 {
				return protocolErrorf("bad content-length")
			}
			req.ContentLength = n
			req.HasContentLength = true
		case lowerName == "content-type":
			req.Headers["CONTENT_TYPE"] = value
		case strings.HasPrefix(lowerName, "proxy-"):
			// discarded
		default:
			upperName := strings.ToUpper(lowerName)
			key := envKeyForHeader(lowerName)
			if commaJoinedHeaders[upperName] {
				if prev, ok := req.Headers[key]; ok {
					req.Headers[key] = prev + ", " + value
					continue
				}
			}
			req.Headers[key] = value
		}
	}
	return nil
}

func applyBodyPolicy(req *ParsedRequest, bufferedAfterHeaders int) error {
	switch {
	case methodsWithBody[req.Method] && !req.HasContentLength:
		return protocolErrorf("missing content")
	case !methodsWithBody[req.Method] && req.HasContentLength && req.ContentLength != 0:
		return protocolErrorf("unexpected content")
	}

	if req.HasContentLength && req.ContentLength > 0 {
		if int64(bufferedAfterHeaders) > req.ContentLength {
			return protocolErrorf("next request too early")
		}
	}
	return nil
}

func computeKeepAlive(req *ParsedRequest) bool {
	if req.HasConnectionHeader {
		return req.RequestKeepAlive
	}
	return req.Version == "HTTP/1.1"
}
