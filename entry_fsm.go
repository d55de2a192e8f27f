package zipfsm

import (
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/sansio/zipfsm/internal/decompress"
	"github.com/sansio/zipfsm/internal/recfmt"
)

type entryState int

const (
	entryWantLocalHeader entryState = iota
	entryDecompressing
	entryDone
)

// EntryFSM reads and decompresses one entry's data: skip the local file
// header (whose only role, since the central directory already carries
// authoritative metadata, is telling us how many bytes of name/extra field
// to skip), then decompress the entry body and validate its size and
// CRC-32 against the central directory's recorded values.
//
// Grounded on internal/zip/zip.go's localHeaderReader (skip-the-local-header
// arithmetic) and newChecksumReader/newChecksumReaderAt (post-hoc CRC
// validation instead of trusting a trailing data descriptor. Like the
// teacher, this never reads the data descriptor itself: HasDataDescriptor
// on Entry is purely informational, since the central directory's sizes
// and CRC are authoritative regardless of how the writer recorded them.
type EntryFSM struct {
	entry Entry

	state entryState

	wantOffset int64
	buf        []byte
	needRead   bool

	dataOffset          int64
	consumedCompressed  uint64
	writtenUncompressed uint64
	crc                 uint32

	decomp decompress.Decompressor
	err    error
}

// NewEntryFSM begins reading the given entry at entry.LocalHeaderOffset, the
// absolute file offset of its local header (it already includes the
// archive's BaseCorrection).
func NewEntryFSM(entry Entry) *EntryFSM {
	f := &EntryFSM{
		entry:      entry,
		state:      entryWantLocalHeader,
		wantOffset: entry.LocalHeaderOffset,
		buf:        make([]byte, recfmt.LocalFileHeaderLen),
		needRead:   true,
	}
	return f
}

// WantsRead reports the absolute offset the FSM needs compressed bytes
// from next, or ok=false if it currently needs no more input (Process can
// still be called to drain already-buffered input).
func (f *EntryFSM) WantsRead() (offset int64, ok bool) {
	if f.state == entryDone || !f.needRead {
		return 0, false
	}
	return f.wantOffset, true
}

// Space returns the buffer the driver should fill.
func (f *EntryFSM) Space() []byte { return f.buf }

// Fill records that n bytes of Space were written.
func (f *EntryFSM) Fill(n int) {
	if n < len(f.buf) {
		f.buf = f.buf[:n]
	}
	f.needRead = false
}

// Process decompresses as much of the buffered input as it can into out,
// returning how many decompressed bytes were written and whether the FSM
// is now done. hasMoreInput tells the FSM whether there is more compressed
// data beyond what WantsRead has already asked for (the caller does not
// need to pass anything extra: the FSM tracks this against the entry's
// recorded compressed size).
func (f *EntryFSM) Process(out []byte) (int, Status, error) {
	if f.err != nil {
		return 0, StatusDone, f.err
	}

	switch f.state {
	case entryWantLocalHeader:
		if err := f.processLocalHeader(); err != nil {
			f.err = err
			f.state = entryDone
			return 0, StatusDone, err
		}
		// The local header step only resolved where compressed data
		// starts; the driver still needs to read it before there's
		// anything to decompress.
		return 0, StatusContinue, nil

	case entryDecompressing:
		return f.processDecompress(out)

	default:
		return 0, StatusDone, nil
	}
}

func (f *EntryFSM) processLocalHeader() error {
	hdr := f.buf
	if binary.LittleEndian.Uint32(hdr) != recfmt.LocalFileHeaderSignature {
		return newFormatError(TruncatedRecord, "local file header signature mismatch")
	}
	namelen := int64(binary.LittleEndian.Uint16(hdr[26:]))
	extralen := int64(binary.LittleEndian.Uint16(hdr[28:]))

	f.dataOffset = f.entry.LocalHeaderOffset + int64(recfmt.LocalFileHeaderLen) + namelen + extralen

	decomp, err := decompress.New(f.entry.Method)
	if err != nil {
		return &UnsupportedMethod{Name: f.entry.Name, Method: f.entry.Method}
	}
	f.decomp = decomp

	if f.entry.CompressedSize == 0 {
		f.state = entryDecompressing
		f.wantOffset = f.dataOffset
		f.buf = nil
		f.needRead = true
		return nil
	}

	f.state = entryDecompressing
	f.wantOffset = f.dataOffset
	f.buf = make([]byte, nextChunk(f.entry.CompressedSize))
	f.needRead = true
	return nil
}

// entryChunkSize bounds how much compressed data the FSM asks for at once;
// callers with smaller buffers of their own are free to hand back less via
// Fill, the FSM only ever reads what Space() offers.
const entryChunkSize = 32 * 1024

func nextChunk(remaining uint64) int {
	if remaining > entryChunkSize {
		return entryChunkSize
	}
	return int(remaining)
}

func (f *EntryFSM) processDecompress(out []byte) (int, Status, error) {
	in := f.buf
	hasMoreInput := f.consumedCompressed+uint64(len(in)) < f.entry.CompressedSize

	result, err := f.decomp.Decompress(in, out, hasMoreInput)
	if err != nil {
		f.err = &DecompressionError{Name: f.entry.Name, Err: err}
		f.state = entryDone
		return result.BytesWritten, StatusDone, f.err
	}

	f.consumedCompressed += uint64(result.BytesRead)
	f.buf = f.buf[result.BytesRead:]
	f.crc = crc32.Update(f.crc, crc32.IEEETable, out[:result.BytesWritten])
	f.writtenUncompressed += uint64(result.BytesWritten)

	if result.StreamEnd {
		status := f.finish()
		return result.BytesWritten, status, f.err
	}

	if len(f.buf) == 0 && f.consumedCompressed < f.entry.CompressedSize {
		f.wantOffset = f.dataOffset + int64(f.consumedCompressed)
		f.buf = make([]byte, nextChunk(f.entry.CompressedSize-f.consumedCompressed))
		f.needRead = true
	}

	return result.BytesWritten, StatusContinue, nil
}

// Close releases any background decoding goroutine the FSM's decompressor
// started. Callers that abandon an entry before it reaches StatusDone
// should call this; it is a no-op for decompressors (store, deflate64) that
// never started one.
func (f *EntryFSM) Close() error {
	if closer, ok := f.decomp.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func (f *EntryFSM) finish() Status {
	f.state = entryDone
	if f.writtenUncompressed != f.entry.UncompressedSize {
		f.err = &SizeMismatch{Name: f.entry.Name, Want: f.entry.UncompressedSize, Got: f.writtenUncompressed}
		return StatusDone
	}
	if f.crc != f.entry.CRC32 {
		f.err = &CrcMismatch{Name: f.entry.Name, Want: f.entry.CRC32, Got: f.crc}
		return StatusDone
	}
	return StatusDone
}
