package gateway

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// errorHeaders is the fixed header block used in respondBad, matching
// spec §6's literal template.
const errorHeaders = "\r\nConnection: close\r\nContent-Type: text/plain\r\n"

// Worker drives one connection's lifecycle end to end (spec §4.F): parse
// a request, build its environment, call the application, emit the
// response, and loop while keep-alive holds.
type Worker struct {
	Scheduler      Scheduler
	App            Application
	DefaultEnv     *DefaultEnv
	ServerSoftware string
	Logger         *zap.Logger
	Metrics        *Metrics
}

func (wk *Worker) scheduler() Scheduler {
	if wk.Scheduler != nil {
		return wk.Scheduler
	}
	return defaultScheduler
}

func (wk *Worker) logger() *zap.Logger {
	if wk.Logger != nil {
		return wk.Logger
	}
	return NopLogger()
}

// Serve runs the worker loop for one accepted connection. dateString is
// the RFC 1123 date captured once at accept time (spec §4.G); it is
// reused for every response on this connection, matching the
// dispatcher's "capture the date string once per accept" contract. The
// one exception is the 500 response after an application error, which
// is dated with the current time.
func (wk *Worker) Serve(conn net.Conn, remoteAddr, remoteHost, remotePort, dateString string) {
	defer conn.Close()

	if tlsConn, ok := conn.(*tls.Conn); ok {
		if err := tlsConn.Handshake(); err != nil {
			wk.logger().Debug("tls-handshake-error", zap.String("remote", remoteAddr), zap.Error(err))
			return
		}
	}

	sock := NewSocketFile(conn)

	var carryover []byte
	ordinal := 0
	keepAlive := true

	for keepAlive {
		if err := sock.SetWriteMode(false); err != nil {
			return
		}
		if sock.HasBufferedWrites() {
			sock.DiscardWriteBuffer()
		}

		env := wk.DefaultEnv.Clone()
		env["REMOTE_ADDR"] = remoteAddr
		env["REMOTE_HOST"] = remoteHost
		env["REMOTE_PORT"] = remotePort

		ordinal++
		if ordinal > 1 {
			wk.scheduler().YieldNow()
		}

		sock.SetInfiniteReadCap()
		start := time.Now()
		parsed, err := ParseRequest(sock, carryover)
		carryover = nil
		if err != nil {
			wk.handleParseError(sock, remoteAddr, dateString, err)
			return
		}

		env["REQUEST_METHOD"] = parsed.Method
		env["SERVER_PROTOCOL"] = parsed.Version
		env["SCRIPT_NAME"] = ""
		env["PATH_INFO"] = parsed.PathInfo
		env["QUERY_STRING"] = parsed.QueryString
		if parsed.HasContentLength {
			env["CONTENT_LENGTH"] = strconv.FormatInt(parsed.ContentLength, 10)
		}
		for k, v := range parsed.Headers {
			env[k] = v
		}
		env["REQUEST_ID"] = requestID(env)

		env["wsgi.input"] = wk.buildInput(sock, parsed, &carryover)

		isHead := parsed.Method == "HEAD"
		resp := NewResponseWriter(sock, parsed.Version, isHead, parsed.RequestKeepAlive, wk.ServerSoftware, dateString)

		bodyIter, appErr := wk.callApplication(env, resp)
		if appErr != nil {
			wk.handleAppError(sock, resp, appErr)
			return
		}

		if buffered, ok := concatBufferedBody(bodyIter); ok {
			// Fast path (spec §4.E step 5): the application returned its
			// whole body as a pre-joined slice. Synthesize Content-Length
			// if the app didn't declare one and emit in one flush, the
			// same dispatch original_source/syncless/wsgi.py's request
			// handler makes for a list/tuple/str return value.
			if err := resp.EmitBuffered(buffered); err != nil {
				return
			}
		} else if isHead {
			if err := wk.emitHeadResponse(resp, bodyIter); err != nil {
				return
			}
		} else if err := resp.EmitBody(bodyIter); err != nil {
			return
		}

		wk.Metrics.recordResponse(resp.Status(), time.Since(start).Nanoseconds())

		keepAlive = resp.KeepAlive()
		if !keepAlive {
			return
		}
	}
}

// buildInput constructs wsgi.input per spec §4.F step 3: an empty stream
// when there's no declared body, or the socket itself capped to the
// remaining content length, after unread-ing the carry-over prefix that
// already arrived with the header block.
func (wk *Worker) buildInput(sock *SocketFile, parsed *ParsedRequest, nextCarryover *[]byte) InputStream {
	if !parsed.HasContentLength || parsed.ContentLength == 0 {
		if len(parsed.Carryover) > 0 {
			*nextCarryover = parsed.Carryover
		}
		return emptyInput
	}

	alreadyBuffered := int64(len(parsed.Carryover))
	sock.Unread(parsed.Carryover)
	sock.SetReadCap(parsed.ContentLength - alreadyBuffered)
	return socketInput{sock: sock}
}

// concatBufferedBody reports whether body is the fast-path SliceBody
// adapter and, if so, returns its remaining chunks concatenated into one
// slice.
func concatBufferedBody(body BodyIter) ([]byte, bool) {
	sb, ok := body.(*sliceBodyIter)
	if !ok {
		return nil, false
	}
	var buf []byte
	for _, chunk := range sb.chunks[sb.i:] {
		buf = append(buf, chunk...)
	}
	sb.i = len(sb.chunks)
	return buf, true
}

// callApplication invokes the application, converting a panic into an
// AppError the same way the teacher's conn.serve recovers from handler
// panics.
func (wk *Worker) callApplication(env Env, resp *ResponseWriter) (body BodyIter, appErr *AppError) {
	defer func() {
		if r := recover(); r != nil {
			appErr = &AppError{HeadersSent: resp.HeadersSent(), Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	body = wk.App(env, resp.StartResponse)
	return body, nil
}

// emitHeadResponse drives a HEAD request's response: headers are emitted
// the instant the application yields its first non-empty chunk (or the
// iterator is exhausted, whichever comes first), and the foreground
// worker resumes once that happens, while the iterator's remaining
// chunks finish draining in a background task for application-level side
// effects (spec §4.E step 4, §5).
func (wk *Worker) emitHeadResponse(resp *ResponseWriter, body BodyIter) error {
	headersSent := make(chan struct{})
	drainErr := make(chan error, 1)
	resp.onHeadersSent = func() { close(headersSent) }

	wk.scheduler().Spawn(func() {
		drainErr <- resp.EmitBody(body)
	})

	select {
	case <-headersSent:
		return nil
	case err := <-drainErr:
		return err
	}
}

func (wk *Worker) handleParseError(sock *SocketFile, remoteAddr, dateString string, err error) {
	if errors.Is(err, ErrSilentClose) {
		return
	}
	var ioErr *IoError
	if errors.As(err, &ioErr) {
		wk.logger().Debug("io-error", zap.String("remote", remoteAddr), zap.Error(err))
		return
	}
	var protoErr *ProtocolError
	if errors.As(err, &protoErr) {
		wk.respondBad(sock, dateString, protoErr.Status, protoErr.Reason)
		return
	}
	wk.logger().Error("unhandled-parse-error", zap.String("remote", remoteAddr), zap.Error(err))
}

func (wk *Worker) handleAppError(sock *SocketFile, resp *ResponseWriter, appErr *AppError) {
	lg := wk.logger()
	if lg.Core().Enabled(zap.DebugLevel) {
		lg.Debug("application-error", zap.Error(appErr), zap.Stack("stack"))
	} else {
		lg.Error("application-error", zap.String("summary", appErr.Error()))
	}
	if !appErr.HeadersSent {
		sock.DiscardWriteBuffer()
		wk.respondBadWithServerDate(sock, resp, statusInternalServerError, "application error")
	}
}

// respondBad writes the fixed bad-request template of spec §6.
func (wk *Worker) respondBad(sock *SocketFile, dateString, status, reason string) {
	short := status
	if i := strings.IndexByte(status, ' '); i >= 0 {
		short = status[i+1:]
	}
	body := short + ": " + reason + "\n"
	head := "HTTP/1.0 " + status + "\r\n" +
		"Server: " + wk.ServerSoftware + "\r\n" +
		"Date: " + dateString +
		errorHeaders +
		"Content-Length: " + strconv.Itoa(len(body)) + "\r\n\r\n"
	sock.DiscardWriteBuffer()
	_ = sock.SetWriteMode(true)
	sock.Write([]byte(head))
	sock.Write([]byte(body))
}

func (wk *Worker) respondBadWithServerDate(sock *SocketFile, resp *ResponseWriter, status, reason string) {
	dateString := HTTPDate(time.Now().Unix())
	_ = resp
	wk.respondBad(sock, dateString, status, reason)
}

func requestID(env Env) string {
	if v, ok := env["HTTP_X_REQUEST_ID"]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return uuid.NewString()
}

