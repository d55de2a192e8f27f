// Package zioasync provides cached, concurrent random-access reads over
// entries whose underlying decompressor can only run forward: a ReadAt
// behind a byte offset already produced restarts the entry's EntryFSM from
// scratch rather than blocking the whole archive.
//
// Adapted from internal/spinner/spinner.go's single-multiplexer-goroutine
// design (itself a cache of open sequential file readers, repurposed here
// into a cache of decompressed entry chunks sitting in front of possibly
// many concurrent EntryFSMs). The block cache uses
// github.com/dgryski/go-tinylfu, same as spinner.go; the hash function
// driving it is github.com/cespare/xxhash/v2 in place of spinner's
// hash/maphash, since xxhash is itself part of the retrieved dependency
// pack and gives a stable, allocation-free key hash for the (entry, block)
// cache key.
package zioasync

import (
	"context"
	"io"

	"github.com/cespare/xxhash/v2"
	"github.com/dgryski/go-tinylfu"

	"github.com/sansio/zipfsm"
	"github.com/sansio/zipfsm/ziosync"
)

const (
	blockSize  = 32 * 1024
	blockMask  = -blockSize
	blockCache = 4096 // blocks, i.e. up to 128MiB of cached decompressed data
)

// Pool serves ReadAt requests against many entries of one archive
// concurrently, decompressing each entry at most once per cache generation
// and serving repeat/overlapping reads out of a shared block cache.
type Pool struct {
	src   io.ReaderAt
	calls chan readAtCall
}

// NewPool starts the multiplexer goroutine backing a Pool. src is the
// archive's underlying data source. Pool has no Close method: the
// multiplexer goroutine, its cache and its open entry readers stay alive
// for the life of the process, even after the Pool is dropped.
func NewPool(src io.ReaderAt) *Pool {
	p := &Pool{src: src, calls: make(chan readAtCall, 16)}
	go p.multiplex()
	return p
}

// ReadAt decompresses (or replays from cache) entry's data and copies
// len(p) bytes starting at off into p, with io.ReaderAt semantics.
func (p *Pool) ReadAt(ctx context.Context, entry zipfsm.Entry, buf []byte, off int64) (int, error) {
	done := make(chan readAtResult, 1)
	select {
	case p.calls <- readAtCall{ctx: ctx, entry: entry, buf: buf, off: off, done: done}:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	select {
	case r := <-done:
		return r.n, r.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

type readAtCall struct {
	ctx   context.Context
	entry zipfsm.Entry
	buf   []byte
	off   int64
	done  chan<- readAtResult
}

type readAtResult struct {
	n   int
	err error
}

type blockKey struct {
	offset int64
	name   string
}

func hashBlockKey(k blockKey) uint64 {
	h := xxhash.New()
	h.WriteString(k.name)
	var off [8]byte
	for i := range off {
		off[i] = byte(k.offset >> (8 * i))
	}
	h.Write(off[:])
	return h.Sum64()
}

// worker replays one entry sequentially from its EntryFSM. A request for an
// offset behind what's already been produced discards the worker and
// starts a fresh one, mirroring spinner.go's close-reopen-reread strategy
// for files that can't seek backward.
type worker struct {
	entry  zipfsm.Entry
	reader *ziosync.EntryReader
	pos    int64
}

func (p *Pool) multiplex() {
	cache := tinylfu.New[blockKey, []byte](blockCache, blockCache*10, hashBlockKey)
	workers := make(map[string]*worker)

	for call := range p.calls {
		if err := call.ctx.Err(); err != nil {
			call.done <- readAtResult{err: err}
			continue
		}

		key := call.entry.Name
		w := workers[key]
		if w == nil || call.off < w.pos {
			if w != nil {
				w.reader.Close()
			}
			w = &worker{
				entry:  call.entry,
				reader: ziosync.OpenEntry(call.ctx, p.src, call.entry),
			}
			workers[key] = w
		}

		n, err, w2 := p.serve(cache, w, call.buf, call.off)
		if w2 != w {
			w.reader.Close()
		}
		workers[key] = w2
		call.done <- readAtResult{n: n, err: err}

		if err != nil && err != io.EOF {
			w2.reader.Close()
			delete(workers, key)
		}
	}
}

// serve fills buf from cached blocks where possible, advancing w only to
// produce blocks it doesn't have cached yet. It returns the worker that
// actually served the request, which may be a fresh one if w's position had
// already passed a block the cache evicted; the caller is responsible for
// closing whichever of the two it no longer holds onto.
func (p *Pool) serve(cache *tinylfu.T[blockKey, []byte], w *worker, buf []byte, off int64) (int, error, *worker) {
	filled := 0
	for filled < len(buf) {
		blockOff := (off + int64(filled)) & blockMask
		block, ok := cache.Get(blockKey{offset: blockOff, name: w.entry.Name})
		if !ok {
			if w.pos > blockOff {
				// Cache evicted a block behind the worker's current
				// position: there is no way to recover it without
				// restarting the worker from the beginning.
				w.reader.Close()
				w = &worker{entry: w.entry, reader: ziosync.OpenEntry(context.Background(), p.src, w.entry)}
			}
			for w.pos <= blockOff {
				buf2 := make([]byte, blockSize)
				n, err := io.ReadFull(w.reader, buf2)
				if n == 0 && err != nil {
					if err == io.EOF || err == io.ErrUnexpectedEOF {
						return filled, io.EOF, w
					}
					return filled, err, w
				}
				buf2 = buf2[:n]
				cache.Add(blockKey{offset: w.pos, name: w.entry.Name}, buf2)
				if w.pos == blockOff {
					block = buf2
				}
				w.pos += int64(n)
				if err != nil {
					break
				}
			}
			if block == nil {
				return filled, io.EOF, w
			}
		}

		start := (off + int64(filled)) - blockOff
		if start >= int64(len(block)) {
			return filled, io.EOF, w
		}
		n := copy(buf[filled:], block[start:])
		filled += n
	}
	return filled, nil, w
}
