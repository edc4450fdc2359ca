package gateway

import "sync"

// readChunkSize is the unit in which SocketFile pulls fresh bytes off the
// underlying socket (spec §4.B).
const readChunkSize = 8192

// readChunkPool recycles the byte slices SocketFile's Read, ReadLine,
// ReadSome and DiscardToReadLimit use to read off the socket, the same way the teacher package pools its bufio.Reader and
// bufio.Writer instances around a connection's lifetime instead of
// allocating fresh buffers per request.
var readChunkPool = sync.Pool{
	New: func() interface{} {
		b := make([]byte, readChunkSize)
		return &b
	},
}

func getReadChunk() *[]byte { return readChunkPool.Get().(*[]byte) }

func putReadChunk(b *[]byte) { readChunkPool.Put(b) }
