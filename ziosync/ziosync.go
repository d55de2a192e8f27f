// Package ziosync drives zipfsm's ArchiveFSM and EntryFSM synchronously
// against an io.ReaderAt, the shape every real caller actually wants most
// of the time. Grounded on original_source/rc-zip-sync's lib.rs/
// entry_reader.rs (a thin synchronous driver wrapping the same sans-I/O
// core) and on martin-sucha-zipserve/archive.go's ReadAtContext idiom for
// threading a context through a ReaderAt-backed operation.
package ziosync

import (
	"context"
	"io"

	"github.com/sansio/zipfsm"
)

// Open drives an ArchiveFSM to completion by issuing ReadAt calls against r.
func Open(ctx context.Context, r io.ReaderAt, size int64) (*zipfsm.Archive, error) {
	fsm := zipfsm.NewArchiveFSM(size)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if off, ok := fsm.WantsRead(); ok {
			if err := fill(r, fsm.Space(), off, fsm.Fill); err != nil {
				return nil, err
			}
		}
		status, err := fsm.Process()
		if err != nil {
			return nil, err
		}
		if status == zipfsm.StatusDone {
			return fsm.Archive(), nil
		}
	}
}

// fill reads exactly len(buf) bytes at off (tolerating a trailing io.EOF
// only when the read filled the buffer anyway, the same convention
// io.ReaderAt.ReadAt itself documents) and reports the count to done.
func fill(r io.ReaderAt, buf []byte, off int64, done func(int)) error {
	n, err := r.ReadAt(buf, off)
	done(n)
	if err != nil && !(err == io.EOF && n == len(buf)) {
		return err
	}
	return nil
}

// EntryReader adapts an EntryFSM into an io.Reader backed by an
// io.ReaderAt, so entry data can be consumed with the stdlib's usual
// io.Copy/io.ReadAll idioms.
type EntryReader struct {
	ctx  context.Context
	r    io.ReaderAt
	fsm  *zipfsm.EntryFSM
	done bool
}

// OpenEntry begins reading entry's data out of r.
func OpenEntry(ctx context.Context, r io.ReaderAt, entry zipfsm.Entry) *EntryReader {
	return &EntryReader{ctx: ctx, r: r, fsm: zipfsm.NewEntryFSM(entry)}
}

func (e *EntryReader) Read(p []byte) (int, error) {
	if e.done {
		return 0, io.EOF
	}
	for {
		if err := e.ctx.Err(); err != nil {
			return 0, err
		}
		if off, ok := e.fsm.WantsRead(); ok {
			if err := fill(e.r, e.fsm.Space(), off, e.fsm.Fill); err != nil {
				return 0, err
			}
		}

		n, status, err := e.fsm.Process(p)
		if err != nil {
			e.done = true
			e.fsm.Close()
			return n, err
		}
		if status == zipfsm.StatusDone {
			e.done = true
			e.fsm.Close()
		}
		if n > 0 || e.done {
			if e.done && n == 0 {
				return 0, io.EOF
			}
			return n, nil
		}
		// No output yet and not done: the FSM needed more input before it
		// could produce anything (true for the local-header skip step).
	}
}

// Close releases any background decode goroutine backing this entry's
// decompressor. Callers that stop reading before reaching io.EOF must call
// this to avoid leaking it; Read itself calls it automatically once the
// entry is exhausted or errors.
func (e *EntryReader) Close() error {
	return e.fsm.Close()
}
