package gateway

import (
	"strconv"
	"strings"
)

type responsePhase int

const (
	phaseBuffering responsePhase = iota
	phaseHeadersSent
	phaseClosed
)

// droppedResponseHeaders are header names start_response may pass that the
// worker controls itself and always strips (spec §4.E).
var droppedResponseHeaders = map[string]bool{
	"status":     true,
	"server":     true,
	"date":       true,
	"connection": true,
}

// headResponseHeaders are additionally dropped when the request is HEAD.
var headResponseHeaders = map[string]bool{
	"content-length":             true,
	"content-transfer-encoding": true,
}

// ResponseWriter owns the response state machine for exactly one request
// (spec §3, §4.E): it buffers the status line and headers until the
// first non-empty body byte, then flips to unbuffered writes for the
// remainder of the body.
type ResponseWriter struct {
	sock *SocketFile

	version       string
	isHead        bool
	requestKeepAlive bool

	serverSoftware string
	dateString     string

	phase                 responsePhase
	declaredContentLength int64 // -1 when not declared
	hasDeclaredLength     bool
	keepAliveDecision     bool
	written               int64
	status                string

	// onHeadersSent, when set, fires once the status line and headers
	// have left the write buffer. Used to let a HEAD request's body
	// drain run in a background task while the worker moves on to the
	// next request (spec §4.E step 4, §5).
	onHeadersSent func()
}

// NewResponseWriter builds the response state for one request.
func NewResponseWriter(sock *SocketFile, version string, isHead, requestKeepAlive bool, serverSoftware, dateString string) *ResponseWriter {
	return &ResponseWriter{
		sock:                  sock,
		version:               version,
		isHead:                isHead,
		requestKeepAlive:      requestKeepAlive,
		serverSoftware:        serverSoftware,
		dateString:            dateString,
		phase:                 phaseBuffering,
		declaredContentLength: -1,
	}
}

// StartResponse implements the application-facing start_response contract
// (spec §4.E). It may be called a second time by an error handler, in
// which case any buffered bytes are discarded and declared length reset.
func (w *ResponseWriter) StartResponse(status string, headers []HeaderField) WriteFunc {
	w.status = status
	if w.sock.HasBufferedWrites() {
		w.sock.DiscardWriteBuffer()
		w.hasDeclaredLength = false
		w.declaredContentLength = -1
	}

	w.sock.Write([]byte(w.version + " " + status + "\r\n"))
	w.sock.Write([]byte("Server: " + w.serverSoftware + "\r\n"))
	w.sock.Write([]byte("Date: " + w.dateString + "\r\n"))

	for _, h := range headers {
		lower := strings.ToLower(h.Name)
		if droppedResponseHeaders[lower] || strings.HasPrefix(lower, "proxy-") {
			continue
		}
		if w.isHead && headResponseHeaders[lower] {
			continue
		}
		if lower == "content-length" {
			if n, err := strconv.ParseInt(h.Value, 10, 64); err == nil && n >= 0 {
				w.declaredContentLength = n
				w.hasDeclaredLength = true
			}
		}
		w.sock.Write([]byte(CapitalizeHeader(h.Name) + ": " + h.Value + "\r\n"))
	}

	return w.writeBody
}

// writeBody is the WriteFunc returned by StartResponse: writing any bytes
// (including the first call) triggers header transmission if it hasn't
// happened yet, then streams the bytes.
func (w *ResponseWriter) writeBody(p []byte) error {
	if w.phase == phaseBuffering {
		if err := w.beginBody(); err != nil {
			return err
		}
	}
	if len(p) == 0 {
		return nil
	}
	w.written += int64(len(p))
	if w.isHead {
		return nil
	}
	return w.sock.Write(p)
}

// EmitBody drains body into the connection following spec §4.E's body
// emission rules: leading empty chunks are consumed silently, and only
// the first non-empty chunk (or an explicit write() call, already
// handled by writeBody above) triggers header transmission.
func (w *ResponseWriter) EmitBody(body BodyIter) error {
	for {
		chunk, ok, err := body.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if len(chunk) == 0 {
			continue
		}
		if err := w.writeBody(chunk); err != nil {
			return err
		}
	}
	if w.phase == phaseBuffering {
		// Application never produced a non-empty chunk or explicit
		// write(); still must transmit headers for a valid response.
		if err := w.beginBody(); err != nil {
			return err
		}
	}
	return nil
}

// beginBody performs the one-time transition out of BUFFERING (spec
// §4.E step 2): compute the keep-alive decision, write the Connection
// and terminating blank line, drain any unconsumed request body, flush,
// and switch the socket to unbuffered mode.
func (w *ResponseWriter) beginBody() error {
	if w.isHead {
		// HEAD never puts a body on the wire regardless of whether
		// Content-Length was declared, so reuse is always safe when the
		// request asked for it (original's WriteHead: do_keep_alive_ary[0]
		// = do_req_keep_alive, unconditional on content length).
		w.keepAliveDecision = w.requestKeepAlive
	} else {
		w.keepAliveDecision = w.requestKeepAlive && w.hasDeclaredLength
	}
	if w.keepAliveDecision {
		w.sock.Write([]byte("Connection: Keep-Alive\r\n"))
	} else {
		w.sock.Write([]byte("Connection: close\r\n"))
	}
	w.sock.Write([]byte("\r\n"))

	if err := w.sock.DiscardToReadLimit(); err != nil {
		return err
	}
	if err := w.sock.Flush(); err != nil {
		return err
	}
	if err := w.sock.SetWriteMode(true); err != nil {
		return err
	}
	w.phase = phaseHeadersSent
	if w.onHeadersSent != nil {
		w.onHeadersSent()
	}
	return nil
}

// EmitBuffered implements spec §4.E step 5's fast path for an
// application that returned its whole body as a pre-joined byte slice:
// synthesize Content-Length when none was declared, then emit headers
// and body in one flush, keeping the connection alive per the request's
// preference.
func (w *ResponseWriter) EmitBuffered(body []byte) error {
	if !w.hasDeclaredLength && !w.isHead {
		w.declaredContentLength = int64(len(body))
		w.hasDeclaredLength = true
		w.sock.Write([]byte("Content-Length: " + strconv.FormatInt(int64(len(body)), 10) + "\r\n"))
	}
	w.keepAliveDecision = w.requestKeepAlive
	if w.keepAliveDecision {
		w.sock.Write([]byte("Connection: Keep-Alive\r\n"))
	} else {
		w.sock.Write([]byte("Connection: close\r\n"))
	}
	w.sock.Write([]byte("\r\n"))

	if err := w.sock.DiscardToReadLimit(); err != nil {
		return err
	}
	if !w.isHead {
		w.sock.Write(body)
	}
	w.written += int64(len(body))
	if err := w.sock.Flush(); err != nil {
		return err
	}
	w.phase = phaseHeadersSent
	if w.onHeadersSent != nil {
		w.onHeadersSent()
	}
	return nil
}

// KeepAlive reports the computed keep-alive decision. Valid only once the
// headers have been sent (HeadersSent is true), by beginBody or by
// EmitBuffered.
func (w *ResponseWriter) KeepAlive() bool { return w.keepAliveDecision }

// HeadersSent reports whether the status line and headers have left the
// write buffer.
func (w *ResponseWriter) HeadersSent() bool { return w.phase != phaseBuffering }

// Status returns the status string passed to StartResponse, or "" if it
// hasn't been called yet.
func (w *ResponseWriter) Status() string { return w.status }

// Written returns the number of body bytes the application has written
// or yielded so far (counted even for HEAD, where they are not put on
// the wire).
func (w *ResponseWriter) Written() int64 { return w.written }
