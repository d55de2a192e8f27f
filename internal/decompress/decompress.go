// Package decompress implements the decompressor capability (C6): one
// interface, Store/Deflate/Deflate64/Bzip2/LZMA/Zstd behind it, each driven
// incrementally by the Entry FSM rather than handed a blocking io.Reader.
//
// Deflate64 owns a self-contained decode loop and suspends mid-stream with
// a plain panic/recover sentinel (errSuspend in deflate64.go). The other
// four variants wrap io.Reader-based decoders (stdlib compress/flate,
// compress/bzip2, and third-party lzma/zstd) that cache the first error a
// Read returns and replay it forever after, so they can never tolerate a
// transient "no input yet" error the way deflate64.go's own loop does.
// Those four are instead driven through a streamBridge: a background
// goroutine runs the wrapped reader against a blocking pipeFeeder, relaying
// decoded output back through a bounded channel so Decompress itself stays
// a plain, non-blocking call. See bridge.go.
package decompress

import (
	"strconv"

	"github.com/sansio/zipfsm/internal/recfmt"
)

// Result is what one Decompress call produced.
type Result struct {
	BytesRead    int
	BytesWritten int
	StreamEnd    bool
}

// Decompressor turns compressed bytes into plain bytes, one buffer at a
// time. Implementations never block: decompress consumes as much of in as
// it can use and writes as much of out as it can fill, then returns. When
// in is exhausted and hasMoreInput is true, the call returns having made
// whatever progress it could, ready to be called again once more input is
// available.
type Decompressor interface {
	Decompress(in, out []byte, hasMoreInput bool) (Result, error)
}

// New constructs the decompressor for a compression method, per the
// central-directory/local-header method field.
func New(method uint16) (Decompressor, error) {
	switch method {
	case recfmt.MethodStore:
		return newStore(), nil
	case recfmt.MethodDeflate:
		return newDeflate(), nil
	case recfmt.MethodDeflate64:
		return newDeflate64(), nil
	case recfmt.MethodBzip2:
		return newBzip2(), nil
	case recfmt.MethodLZMA:
		return newLZMA(), nil
	case recfmt.MethodZstd:
		return newZstd(), nil
	default:
		return nil, ErrUnsupportedMethod{Method: method}
	}
}

// ErrUnsupportedMethod reports a compression method code this catalogue
// doesn't implement.
type ErrUnsupportedMethod struct {
	Method uint16
}

func (e ErrUnsupportedMethod) Error() string {
	return "decompress: unsupported compression method " + strconv.Itoa(int(e.Method))
}
