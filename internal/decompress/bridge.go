package decompress

import (
	"io"
	"sync"
)

// pipeFeeder is a blocking io.Reader fed by discrete, non-blocking calls to
// feed(). It exists because the stdlib decoders wrapped below (and the
// third-party ones) all cache the first error a Read returns and replay it
// forever afterward, so handing them a "no data yet" sentinel error the way
// deflate64.go's own hand-rolled decoder tolerates would permanently wedge
// them after the first suspend. Read blocks until feed() supplies more
// bytes, the stream is declared finished, or close is called, so the
// spurious-error path is never exercised.
type pipeFeeder struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []byte
	more   bool
	closed bool
}

func newPipeFeeder() *pipeFeeder {
	f := &pipeFeeder{more: true}
	f.cond = sync.NewCond(&f.mu)
	return f
}

func (f *pipeFeeder) feed(b []byte, moreComing bool) {
	f.mu.Lock()
	if !f.closed {
		f.buf = append(f.buf, b...)
		f.more = moreComing
	}
	f.cond.Broadcast()
	f.mu.Unlock()
}

func (f *pipeFeeder) close() {
	f.mu.Lock()
	f.closed = true
	f.cond.Broadcast()
	f.mu.Unlock()
}

func (f *pipeFeeder) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for len(f.buf) == 0 {
		if f.closed || !f.more {
			return 0, io.EOF
		}
		f.cond.Wait()
	}
	n := copy(p, f.buf)
	f.buf = f.buf[n:]
	return n, nil
}

const bridgeChunkSize = 32 * 1024

// streamBridge runs a stdlib/third-party io.Reader-based decompressor on a
// dedicated goroutine against a pipeFeeder, relaying its output through a
// bounded channel. This is what lets Decompress stay a plain, synchronous,
// never-blocks-on-missing-input call: it hands the goroutine whatever bytes
// it has (feed, never blocks) and drains whatever output is ready (a
// channel receive with a default case, never blocks waiting on more
// decoding than the goroutine has done). The goroutine itself is free to
// block inside the wrapped reader for as long as it needs to; nothing
// outside this type ever touches the buffer it decodes into, so there's no
// hazard in leaving a Read call in flight between Decompress calls.
type streamBridge struct {
	feeder *pipeFeeder
	chunks chan []byte
	doneCh chan error

	pending []byte
	err     error
	atEOF   bool
}

// newStreamBridge starts the background goroutine running r, which must
// read its compressed input from feeder (the caller builds both, since
// constructing a stdlib reader like flate.NewReader requires the feeder to
// exist first).
func newStreamBridge(feeder *pipeFeeder, r io.Reader) *streamBridge {
	b := &streamBridge{
		feeder: feeder,
		chunks: make(chan []byte, 4),
		doneCh: make(chan error, 1),
	}
	go b.run(r)
	return b
}

func (b *streamBridge) run(r io.Reader) {
	for {
		buf := make([]byte, bridgeChunkSize)
		n, err := r.Read(buf)
		if n > 0 {
			b.chunks <- buf[:n]
		}
		if err != nil {
			b.doneCh <- err
			return
		}
	}
}

// feed hands newly-available compressed bytes to the background reader and
// drains whatever decoded output is ready for out, without blocking on
// decoding the goroutine hasn't finished yet.
func (b *streamBridge) feed(in []byte, hasMoreInput bool, out []byte) (Result, error) {
	if len(in) > 0 || !hasMoreInput {
		b.feeder.feed(in, hasMoreInput)
	}

	written := 0
	for written < len(out) {
		if len(b.pending) > 0 {
			n := copy(out[written:], b.pending)
			b.pending = b.pending[n:]
			written += n
			continue
		}
		if b.atEOF {
			break
		}
		select {
		case chunk := <-b.chunks:
			b.pending = chunk
		case err := <-b.doneCh:
			// run sends every chunk before its final error, so whatever is
			// still buffered belongs ahead of EOF.
			for len(b.chunks) > 0 {
				b.pending = append(b.pending, <-b.chunks...)
			}
			b.atEOF = true
			if err != nil && err != io.EOF {
				b.err = err
			}
		default:
			return Result{BytesRead: len(in), BytesWritten: written}, nil
		}
	}

	if b.err != nil {
		return Result{BytesRead: len(in), BytesWritten: written}, b.err
	}
	streamEnd := b.atEOF && len(b.pending) == 0
	return Result{BytesRead: len(in), BytesWritten: written, StreamEnd: streamEnd}, nil
}

// close releases the background goroutine; call it if an entry is
// abandoned before its decompressor reaches StreamEnd.
func (b *streamBridge) close() { b.feeder.close() }
