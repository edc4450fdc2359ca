package gateway

import (
	"errors"
	"net"
	"testing"
	"time"
)

func pipeSocket(t *testing.T) (*SocketFile, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() { server.Close(); client.Close() })
	return NewSocketFile(server), client
}

func TestSocketFileUnreadThenRead(t *testing.T) {
	sock, _ := pipeSocket(t)
	sock.Unread([]byte("hello"))
	got, err := sock.Read(5)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("Read() = %q, want %q", got, "hello")
	}
}

func TestSocketFileReadRespectsCap(t *testing.T) {
	sock, client := pipeSocket(t)
	sock.SetReadCap(3)

	go client.Write([]byte("abcdef"))

	got, err := sock.Read(10)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "abc" {
		t.Errorf("Read() = %q, want %q", got, "abc")
	}
}

func TestSocketFileReadLineSplitsOnNewline(t *testing.T) {
	sock, _ := pipeSocket(t)
	sock.Unread([]byte("line1\nline2\n"))

	l1, err := sock.ReadLine()
	if err != nil || string(l1) != "line1\n" {
		t.Fatalf("ReadLine() = %q, %v, want %q", l1, err, "line1\n")
	}
	l2, err := sock.ReadLine()
	if err != nil || string(l2) != "line2\n" {
		t.Fatalf("ReadLine() = %q, %v, want %q", l2, err, "line2\n")
	}
}

func TestSocketFileReadSomeSingleCall(t *testing.T) {
	sock, client := pipeSocket(t)
	done := make(chan struct{})
	go func() {
		client.Write([]byte("ab"))
		<-done
	}()

	data, eof, err := sock.ReadSome(10)
	close(done)
	if err != nil {
		t.Fatalf("ReadSome: %v", err)
	}
	if eof {
		t.Fatal("unexpected eof")
	}
	if string(data) != "ab" {
		t.Errorf("ReadSome() = %q, want %q", data, "ab")
	}
}

func TestSocketFileReadSomeDoesNotBlockOnShortData(t *testing.T) {
	sock, client := pipeSocket(t)
	go client.Write([]byte("x"))

	resultCh := make(chan struct{})
	go func() {
		sock.ReadSome(10)
		close(resultCh)
	}()

	select {
	case <-resultCh:
	case <-time.After(time.Second):
		t.Fatal("ReadSome blocked waiting to fill the requested size")
	}
}

func TestSocketFileWriteBuffersUntilFlush(t *testing.T) {
	sock, client := pipeSocket(t)
	if err := sock.Write([]byte("hi")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !sock.HasBufferedWrites() {
		t.Fatal("expected buffered bytes before Flush")
	}

	readDone := make(chan []byte)
	go func() {
		buf := make([]byte, 2)
		n, _ := client.Read(buf)
		readDone <- buf[:n]
	}()

	if err := sock.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	got := <-readDone
	if string(got) != "hi" {
		t.Errorf("got %q, want %q", got, "hi")
	}
}

func TestSocketFileDiscardToReadLimitUnexpectedEOF(t *testing.T) {
	sock, client := pipeSocket(t)
	sock.SetReadCap(10)
	client.Close()

	err := sock.DiscardToReadLimit()
	var ioErr *IoError
	if !errors.As(err, &ioErr) {
		t.Fatalf("DiscardToReadLimit() = %v, want *IoError", err)
	}
}

func TestSocketFileDiscardToReadLimitUnlimitedDoesNotReadSocket(t *testing.T) {
	sock, _ := pipeSocket(t)
	sock.Unread([]byte("leftover"))
	if err := sock.DiscardToReadLimit(); err != nil {
		t.Fatalf("DiscardToReadLimit: %v", err)
	}
}
