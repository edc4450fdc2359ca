package gateway

import (
	"bytes"
	"io"
	"net"
	"testing"
	"time"
)

// onceBodyIter yields chunk once, unlike SliceBody it is not a
// *sliceBodyIter so the worker's buffered fast-path detection doesn't
// treat it specially — used to exercise the streaming/HEAD-drain path.
type onceBodyIter struct {
	chunk []byte
	done  bool
}

func (o *onceBodyIter) Next() ([]byte, bool, error) {
	if o.done {
		return nil, false, nil
	}
	o.done = true
	return o.chunk, true, nil
}

func newTestWorker(app Application) *Worker {
	return &Worker{
		App:            app,
		DefaultEnv:     NewDefaultEnv("8080", "127.0.0.1:8080", "localhost", "greenhttp/test", false, NewErrorsSink(io.Discard)),
		ServerSoftware: "greenhttp/test",
		Metrics:        NewMetrics(),
		Logger:         NopLogger(),
	}
}

func TestWorkerServeSingleRequestNoKeepAlive(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	app := func(env Env, start StartResponseFunc) BodyIter {
		body := []byte("hello")
		start("200 OK", []HeaderField{{Name: "Content-Length", Value: "5"}})
		return SliceBody(body)
	}
	wk := newTestWorker(app)

	done := make(chan struct{})
	go func() {
		wk.Serve(server, "1.2.3.4:5555", "1.2.3.4", "5555", "Mon, 01 Jan 2024 00:00:00 GMT")
		close(done)
	}()

	client.Write([]byte("GET / HTTP/1.0\n\n"))

	var buf bytes.Buffer
	io.Copy(&buf, client)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not finish serving")
	}

	out := buf.String()
	if !bytes.Contains([]byte(out), []byte("200 OK")) {
		t.Errorf("missing status line: %q", out)
	}
	if !bytes.Contains([]byte(out), []byte("hello")) {
		t.Errorf("missing body: %q", out)
	}
	if !bytes.Contains([]byte(out), []byte("Connection: close")) {
		t.Errorf("HTTP/1.0 with no keep-alive request should close: %q", out)
	}
}

func TestWorkerServeBadRequestRespondsWith400(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	wk := newTestWorker(func(env Env, start StartResponseFunc) BodyIter {
		t.Fatal("application must not be invoked for a malformed request")
		return nil
	})

	done := make(chan struct{})
	go func() {
		wk.Serve(server, "1.2.3.4:5555", "1.2.3.4", "5555", "Mon, 01 Jan 2024 00:00:00 GMT")
		close(done)
	}()

	client.Write([]byte("POST / HTTP/1.1\n\n")) // POST without Content-Length

	var buf bytes.Buffer
	io.Copy(&buf, client)

	<-done
	if !bytes.Contains(buf.Bytes(), []byte("400 Bad Request")) {
		t.Errorf("expected 400 response, got %q", buf.String())
	}
}

func TestWorkerServeApplicationPanicBeforeHeadersYields500(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	wk := newTestWorker(func(env Env, start StartResponseFunc) BodyIter {
		panic("boom")
	})

	done := make(chan struct{})
	go func() {
		wk.Serve(server, "1.2.3.4:5555", "1.2.3.4", "5555", "Mon, 01 Jan 2024 00:00:00 GMT")
		close(done)
	}()

	client.Write([]byte("GET / HTTP/1.1\n\n"))

	var buf bytes.Buffer
	io.Copy(&buf, client)

	<-done
	if !bytes.Contains(buf.Bytes(), []byte("500 Internal Server Error")) {
		t.Errorf("expected 500 response, got %q", buf.String())
	}
}

// TestWorkerServeSynthesizesContentLengthForBufferedBody is spec §8 end-
// to-end scenario 1 verbatim: a GET whose application returns a fully
// buffered SliceBody without declaring Content-Length must still see a
// synthesized Content-Length on the wire, via the EmitBuffered fast path.
func TestWorkerServeSynthesizesContentLengthForBufferedBody(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	app := func(env Env, start StartResponseFunc) BodyIter {
		start("200 OK", []HeaderField{{Name: "Content-Type", Value: "text/plain"}})
		return SliceBody([]byte("hi"))
	}
	wk := newTestWorker(app)

	done := make(chan struct{})
	go func() {
		wk.Serve(server, "1.2.3.4:5555", "1.2.3.4", "5555", "Mon, 01 Jan 2024 00:00:00 GMT")
		close(done)
	}()

	client.Write([]byte("GET / HTTP/1.0\n\n"))

	var buf bytes.Buffer
	io.Copy(&buf, client)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not finish serving")
	}

	out := buf.String()
	if !bytes.Contains([]byte(out), []byte("Content-Type: text/plain")) {
		t.Errorf("missing declared header: %q", out)
	}
	if !bytes.Contains([]byte(out), []byte("Content-Length: 2")) {
		t.Errorf("expected a synthesized Content-Length: 2, got %q", out)
	}
	if !bytes.Contains([]byte(out), []byte("Connection: close")) {
		t.Errorf("missing Connection: close: %q", out)
	}
	if !bytes.Contains([]byte(out), []byte("hi")) {
		t.Errorf("missing body: %q", out)
	}
}

// TestWorkerServeHeadKeepAliveIgnoresContentLength is the HEAD
// counterpart: a HEAD request on HTTP/1.1 must keep the connection alive
// even though the application never declares Content-Length, since no
// body bytes ever reach the wire regardless.
func TestWorkerServeHeadKeepAliveIgnoresContentLength(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	count := 0
	app := func(env Env, start StartResponseFunc) BodyIter {
		count++
		start("200 OK", []HeaderField{{Name: "Content-Type", Value: "text/plain"}})
		return &onceBodyIter{chunk: []byte("body bytes a HEAD request must never see")}
	}
	wk := newTestWorker(app)

	done := make(chan struct{})
	go func() {
		wk.Serve(server, "1.2.3.4:5555", "1.2.3.4", "5555", "Mon, 01 Jan 2024 00:00:00 GMT")
		close(done)
	}()

	go io.Copy(io.Discard, client)
	go client.Write([]byte("HEAD /first HTTP/1.1\n\nHEAD /second HTTP/1.1\nConnection: close\n\n"))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not finish serving two keep-alive HEAD requests")
	}

	if count != 2 {
		t.Errorf("application invoked %d times, want 2 (keep-alive should not have been forced closed)", count)
	}
}

func TestWorkerServeKeepAliveServesSecondRequest(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	count := 0
	app := func(env Env, start StartResponseFunc) BodyIter {
		count++
		body := []byte("ok")
		start("200 OK", []HeaderField{{Name: "Content-Length", Value: "2"}})
		return SliceBody(body)
	}
	wk := newTestWorker(app)

	done := make(chan struct{})
	go func() {
		wk.Serve(server, "1.2.3.4:5555", "1.2.3.4", "5555", "Mon, 01 Jan 2024 00:00:00 GMT")
		close(done)
	}()

	go io.Copy(io.Discard, client)
	go client.Write([]byte("GET /first HTTP/1.1\n\nGET /second HTTP/1.1\nConnection: close\n\n"))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not finish serving two keep-alive requests")
	}

	if count != 2 {
		t.Errorf("application invoked %d times, want 2", count)
	}
}
