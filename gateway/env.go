package gateway

import "io"

// Env is the request environment: a mapping from string keys to string
// or opaque values (spec §3), keyed per spec §6.
type Env map[string]interface{}

// ErrorsSink is wsgi.errors: a write-only diagnostic stream the
// application may use for error output.
type ErrorsSink interface {
	io.Writer
	WriteLines(lines [][]byte) error
	Flush() error
}

// InputStream is wsgi.input: the request body stream.
type InputStream interface {
	Read(n int) ([]byte, error)
	ReadLine() ([]byte, error)
	ReadLines(hint int) ([][]byte, error)
	DiscardToReadLimit() error
}

// emptyInputStream is wsgi.input for requests with no body (spec §4.F:
// "Build wsgi.input: either an empty-stream object, or B itself...").
type emptyInputStream struct{}

func (emptyInputStream) Read(int) ([]byte, error)            { return nil, nil }
func (emptyInputStream) ReadLine() ([]byte, error)            { return nil, nil }
func (emptyInputStream) ReadLines(int) ([][]byte, error)      { return nil, nil }
func (emptyInputStream) DiscardToReadLimit() error            { return nil }

var emptyInput InputStream = emptyInputStream{}

// socketInput adapts a SocketFile to InputStream for a request body that
// reuses the connection's buffered socket, capped at the remaining
// content length.
type socketInput struct{ sock *SocketFile }

func (s socketInput) Read(n int) ([]byte, error) { return s.sock.Read(n) }
func (s socketInput) ReadLine() ([]byte, error)  { return s.sock.ReadLine() }

// ReadLines iterates ReadLine to EOF, following spec §9's Open Question
// resolution (the original's self-referencing "readlines" is read as
// "iterate readline to EOF"). hint <= 0 means no limit on line count.
func (s socketInput) ReadLines(hint int) ([][]byte, error) {
	var lines [][]byte
	for hint <= 0 || len(lines) < hint {
		line, err := s.sock.ReadLine()
		if err != nil {
			return lines, err
		}
		if len(line) == 0 {
			break
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func (s socketInput) DiscardToReadLimit() error { return s.sock.DiscardToReadLimit() }

// errorsWriter adapts an io.Writer (typically os.Stderr, or a *zap
// logger's sink) to ErrorsSink.
type errorsWriter struct{ w io.Writer }

func (e errorsWriter) Write(p []byte) (int, error) { return e.w.Write(p) }

func (e errorsWriter) WriteLines(lines [][]byte) error {
	for _, l := range lines {
		if _, err := e.w.Write(l); err != nil {
			return err
		}
	}
	return nil
}

func (e errorsWriter) Flush() error {
	if f, ok := e.w.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

// NewErrorsSink wraps w as wsgi.errors.
func NewErrorsSink(w io.Writer) ErrorsSink { return errorsWriter{w: w} }

// DefaultEnv holds the server-wide environment entries that never change
// across requests on a listener (spec §4.G): SERVER_PORT, SERVER_ADDR,
// SERVER_NAME, SERVER_SOFTWARE, the wsgi.* gateway constants, and
// wsgi.url_scheme/HTTPS. It is read-only after construction; workers
// shallow-clone it per request (spec §5).
type DefaultEnv struct {
	entries Env
}

// NewDefaultEnv builds the shared per-listener environment.
func NewDefaultEnv(serverPort, serverAddr, serverName, serverSoftware string, isHTTPS bool, errs ErrorsSink) *DefaultEnv {
	scheme := "http"
	https := "off"
	if isHTTPS {
		scheme = "https"
		https = "on"
	}
	return &DefaultEnv{entries: Env{
		"SERVER_PORT":         serverPort,
		"SERVER_ADDR":         serverAddr,
		"SERVER_NAME":         serverName,
		"SERVER_SOFTWARE":     serverSoftware,
		"HTTPS":               https,
		"wsgi.version":        [2]int{1, 0},
		"wsgi.multithread":    true,
		"wsgi.multiprocess":   false,
		"wsgi.run_once":       false,
		"wsgi.url_scheme":     scheme,
		"wsgi.errors":         errs,
	}}
}

// Clone returns a fresh Env pre-populated with the shared entries, ready
// for a worker to add per-request keys.
func (d *DefaultEnv) Clone() Env {
	out := make(Env, len(d.entries)+16)
	for k, v := range d.entries {
		out[k] = v
	}
	return out
}
