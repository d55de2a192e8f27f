package decompress

import (
	"errors"
	"math/bits"
	"sync"
)

// deflate64Decompressor is a pure-Go DEFLATE64 decoder adapted from the
// Huffman/LZ77 machinery of internal/flate/inflate.go (itself a resumable
// port of stdlib compress/flate), extended for DEFLATE64's two deviations
// from RFC 1951: a 64KiB sliding window instead of 32KiB, and length code
// 285 carrying 16 extra bits (base 3) instead of a fixed length of 258.
//
// Every read of the underlying byte stream can suspend mid-record when the
// caller hasn't supplied enough bytes yet, so every multi-step parse (block
// header, stored-block body, dynamic Huffman table, one literal/length/
// distance symbol) tracks its own progress in struct fields rather than
// locals: a suspended step is retried from its last committed checkpoint,
// never from the top of the enclosing block.
type deflate64Decompressor struct {
	in         []byte // accumulated, not-yet-structurally-consumed input
	pos        int    // read cursor into in
	moreComing bool

	b  uint32 // bit accumulator
	nb uint   // valid bits in b

	window  []byte // trailing maxMatchOffset64 bytes of output history
	pending []byte // decoded bytes not yet copied into a caller's out buffer
	done    bool

	phase d64Phase

	// block header in progress
	haveBlockHeader bool
	blockFinal      bool
	blockType       uint32

	// stored block in progress
	haveStoredLen   bool
	storedRemaining int

	// dynamic Huffman table in progress
	table d64TableBuild

	// literal/length/distance body in progress
	body d64BodyState

	h1, h2   d64HuffmanDecoder
	useFixed bool
}

type d64Phase int

const (
	d64PhaseHeader d64Phase = iota
	d64PhaseStored
	d64PhaseTable
	d64PhaseBody
)

// d64TableBuild holds readHuffman's progress across suspensions.
type d64TableBuild struct {
	haveSizes bool
	nlit      int
	ndist     int
	nclen     int

	codebits   [d64NumCodes]int
	codebitIdx int
	haveH1     bool

	lenBits    [d64MaxNumLit + d64MaxNumDist]int
	lenBitsIdx int

	havePendingSym bool
	pendingSym     int
}

// d64BodyState holds huffmanBlock's progress across suspensions: at most one
// decoded-but-not-yet-fully-applied literal/length symbol or distance symbol
// at a time.
type d64BodyState struct {
	haveV    bool
	v        int
	haveLen  bool
	length   int
	haveDist bool
	dist     int
}

const (
	d64MaxCodeLen      = 16
	d64MaxNumLit       = 286
	d64MaxNumDist      = 32 // codes 30, 31 are valid under DEFLATE64
	d64NumCodes        = 19
	d64MaxMatchOffset  = 1 << 16 // 64KiB window
	d64EndBlockMarker  = 256
	d64HuffmanChunkBit = 9
	d64HuffmanChunks   = 1 << d64HuffmanChunkBit
	d64CountMask       = 15
	d64ValueShift      = 4
)

var d64CodeOrder = [...]int{16, 17, 18, 0, 8, 7, 9, 6, 10, 5, 11, 4, 12, 3, 13, 2, 14, 1, 15}

var d64FixedOnce sync.Once
var d64FixedDecoder d64HuffmanDecoder

func newDeflate64() *deflate64Decompressor {
	return &deflate64Decompressor{}
}

var errCorruptDeflate64 = errors.New("decompress: corrupt deflate64 stream")

// errSuspend is panicked by readByte when the accumulated input has run out
// but the caller indicated more bytes are still coming. step's recover
// catches it and reports the partial progress made so far instead of a real
// decode error; it never escapes this file. Unlike the other variants in
// this package, deflate64Decompressor owns its entire decode loop (no
// wrapped stdlib reader with sticky-error semantics to worry about), so a
// plain panic/recover suspend is safe here — see bridge.go for why the
// other variants need a different mechanism.
var errSuspend = errors.New("decompress: input exhausted, suspend")

// Decompress takes ownership of in (appending it to an internal buffer,
// since a suspended step may need bytes from several calls before it can
// complete) and drains whatever output the state machine can produce.
func (d *deflate64Decompressor) Decompress(in, out []byte, hasMoreInput bool) (Result, error) {
	if len(in) > 0 {
		d.in = append(d.in, in...)
	}
	d.moreComing = hasMoreInput
	read := len(in)

	written := 0
	for written < len(out) {
		if len(d.pending) > 0 {
			n := copy(out[written:], d.pending)
			d.pending = d.pending[n:]
			written += n
			continue
		}
		if d.done {
			break
		}

		progressed, err := d.step()
		if err != nil {
			d.done = true
			return Result{BytesRead: read, BytesWritten: written}, err
		}
		if !progressed {
			break
		}
	}

	if d.pos > 0 {
		d.in = append(d.in[:0], d.in[d.pos:]...)
		d.pos = 0
	}

	streamEnd := d.done && len(d.pending) == 0
	return Result{BytesRead: read, BytesWritten: written, StreamEnd: streamEnd}, nil
}

// step advances the state machine by one bounded unit of work (a block
// header, one stored block, one dynamic table, or one symbol), reporting
// ok=false when it ran out of buffered input before finishing that unit.
func (d *deflate64Decompressor) step() (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			e, isErr := r.(error)
			if !isErr {
				e = errCorruptDeflate64
			}
			if errors.Is(e, errSuspend) {
				ok, err = false, nil
				return
			}
			ok, err = false, e
		}
	}()

	switch d.phase {
	case d64PhaseHeader:
		d.readBlockHeader()
	case d64PhaseStored:
		d.readStoredBlock()
	case d64PhaseTable:
		d.buildDynamicTable()
	case d64PhaseBody:
		d.decodeOneSymbol()
	}
	return true, nil
}

// readByte pulls one byte from the accumulated input, panicking with
// errSuspend (more bytes expected) or errCorruptDeflate64 (stream ended
// mid-record) so callers can stay close to a straight-line decode shape.
// It never advances pos without having a byte in hand, so a panic here
// never loses already-committed progress.
func (d *deflate64Decompressor) readByte() byte {
	if d.pos >= len(d.in) {
		if d.moreComing {
			panic(errSuspend)
		}
		panic(errCorruptDeflate64)
	}
	b := d.in[d.pos]
	d.pos++
	return b
}

func (d *deflate64Decompressor) moreBits() {
	c := d.readByte()
	d.b |= uint32(c) << (d.nb & 31)
	d.nb += 8
}

func (d *deflate64Decompressor) readBlockHeader() {
	if !d.haveBlockHeader {
		for d.nb < 3 {
			d.moreBits()
		}
		d.blockFinal = d.b&1 == 1
		d.b >>= 1
		d.blockType = d.b & 3
		d.b >>= 2
		d.nb -= 3
		d.haveBlockHeader = true
	}

	switch d.blockType {
	case 0:
		d.haveStoredLen = false
		d.phase = d64PhaseStored
	case 1:
		d64FixedOnce.Do(func() {
			var lens [288]int
			for i := 0; i < 144; i++ {
				lens[i] = 8
			}
			for i := 144; i < 256; i++ {
				lens[i] = 9
			}
			for i := 256; i < 280; i++ {
				lens[i] = 7
			}
			for i := 280; i < 288; i++ {
				lens[i] = 8
			}
			d64FixedDecoder.init(lens[:])
		})
		d.h1 = d64FixedDecoder
		d.useFixed = true
		d.body = d64BodyState{}
		d.phase = d64PhaseBody
	case 2:
		d.table = d64TableBuild{}
		d.useFixed = false
		d.phase = d64PhaseTable
	default:
		panic(errCorruptDeflate64)
	}
}

func (d *deflate64Decompressor) finishBlock() {
	d.haveBlockHeader = false
	if d.blockFinal {
		d.done = true
	} else {
		d.phase = d64PhaseHeader
	}
}

func (d *deflate64Decompressor) readStoredBlock() {
	if !d.haveStoredLen {
		d.nb, d.b = 0, 0
		n := int(d.readByte()) | int(d.readByte())<<8
		nn := int(d.readByte()) | int(d.readByte())<<8
		if uint16(nn) != uint16(^n) {
			panic(errCorruptDeflate64)
		}
		d.storedRemaining = n
		d.haveStoredLen = true
	}
	for d.storedRemaining > 0 {
		d.emit(d.readByte())
		d.storedRemaining--
	}
	d.finishBlock()
}

// emit appends one decoded byte, keeping the trailing window for
// backreferences and staging output for the caller's buffer.
func (d *deflate64Decompressor) emit(b byte) {
	d.pending = append(d.pending, b)
	d.window = append(d.window, b)
	if excess := len(d.window) - d64MaxMatchOffset; excess > 0 {
		d.window = d.window[excess:]
	}
}

func (d *deflate64Decompressor) buildDynamicTable() {
	t := &d.table

	if !t.haveSizes {
		for d.nb < 5+5+4 {
			d.moreBits()
		}
		t.nlit = int(d.b&0x1F) + 257
		if t.nlit > d64MaxNumLit {
			panic(errCorruptDeflate64)
		}
		d.b >>= 5
		t.ndist = int(d.b&0x1F) + 1
		if t.ndist > d64MaxNumDist {
			panic(errCorruptDeflate64)
		}
		d.b >>= 5
		t.nclen = int(d.b&0xF) + 4
		d.b >>= 4
		d.nb -= 5 + 5 + 4
		t.haveSizes = true
	}

	for t.codebitIdx < t.nclen {
		for d.nb < 3 {
			d.moreBits()
		}
		t.codebits[d64CodeOrder[t.codebitIdx]] = int(d.b & 0x7)
		d.b >>= 3
		d.nb -= 3
		t.codebitIdx++
	}
	if !t.haveH1 {
		for i := t.nclen; i < len(d64CodeOrder); i++ {
			t.codebits[d64CodeOrder[i]] = 0
		}
		if !d.h1.init(t.codebits[0:]) {
			panic(errCorruptDeflate64)
		}
		t.haveH1 = true
	}

	n := t.nlit + t.ndist
	for t.lenBitsIdx < n {
		var x int
		if t.havePendingSym {
			x = t.pendingSym
		} else {
			x = d.huffSym(&d.h1)
			if x < 16 {
				t.lenBits[t.lenBitsIdx] = x
				t.lenBitsIdx++
				continue
			}
			t.pendingSym = x
			t.havePendingSym = true
		}

		var rep int
		var nb uint
		var b int
		switch x {
		case 16:
			rep, nb = 3, 2
			if t.lenBitsIdx == 0 {
				panic(errCorruptDeflate64)
			}
			b = t.lenBits[t.lenBitsIdx-1]
		case 17:
			rep, nb, b = 3, 3, 0
		case 18:
			rep, nb, b = 11, 7, 0
		default:
			panic(errCorruptDeflate64)
		}
		for d.nb < nb {
			d.moreBits()
		}
		rep += int(d.b & uint32(1<<nb-1))
		d.b >>= nb
		d.nb -= nb
		if t.lenBitsIdx+rep > n {
			panic(errCorruptDeflate64)
		}
		for j := 0; j < rep; j++ {
			t.lenBits[t.lenBitsIdx] = b
			t.lenBitsIdx++
		}
		t.havePendingSym = false
	}

	if !d.h1.init(t.lenBits[0:t.nlit]) || !d.h2.init(t.lenBits[t.nlit:t.nlit+t.ndist]) {
		panic(errCorruptDeflate64)
	}

	d.body = d64BodyState{}
	d.phase = d64PhaseBody
}

// decodeOneSymbol decodes exactly one literal byte, or one length/distance
// match, applying it (via emit) before returning. Called repeatedly by the
// driving loop until it reports end-of-block by switching the phase back to
// d64PhaseHeader/done.
func (d *deflate64Decompressor) decodeOneSymbol() {
	s := &d.body
	hl := &d.h1
	var hd *d64HuffmanDecoder
	if !d.useFixed {
		hd = &d.h2
	}

	if !s.haveV {
		s.v = d.huffSym(hl)
		s.haveV = true
	}

	switch {
	case s.v < 256:
		d.emit(byte(s.v))
		d.body = d64BodyState{}
		return
	case s.v == d64EndBlockMarker:
		d.finishBlock()
		d.body = d64BodyState{}
		return
	}

	if !s.haveLen {
		v := s.v
		var n uint
		var length int
		switch {
		case v < 265:
			length, n = v-(257-3), 0
		case v < 269:
			length, n = v*2-(265*2-11), 1
		case v < 273:
			length, n = v*4-(269*4-19), 2
		case v < 277:
			length, n = v*8-(273*8-35), 3
		case v < 281:
			length, n = v*16-(277*16-67), 4
		case v == 285:
			length, n = 3, 16 // DEFLATE64 extension: extra-long match
		case v < d64MaxNumLit:
			length, n = v*32-(281*32-131), 5
		default:
			panic(errCorruptDeflate64)
		}
		if n > 0 {
			for d.nb < n {
				d.moreBits()
			}
			length += int(d.b & uint32(1<<n-1))
			d.b >>= n
			d.nb -= n
		}
		s.length = length
		s.haveLen = true
	}

	if !s.haveDist {
		var dist int
		if hd == nil {
			for d.nb < 5 {
				d.moreBits()
			}
			dist = int(bits.Reverse8(uint8(d.b & 0x1F << 3)))
			d.b >>= 5
			d.nb -= 5
		} else {
			dist = d.huffSym(hd)
		}

		switch {
		case dist < 4:
			dist++
		case dist < d64MaxNumDist:
			nb := uint(dist-2) >> 1
			extra := (dist & 1) << nb
			for d.nb < nb {
				d.moreBits()
			}
			extra |= int(d.b & uint32(1<<nb-1))
			d.b >>= nb
			d.nb -= nb
			dist = 1<<(nb+1) + 1 + extra
		default:
			panic(errCorruptDeflate64)
		}
		s.dist = dist
		s.haveDist = true
	}

	if s.dist > len(d.window) || s.dist > d64MaxMatchOffset {
		panic(errCorruptDeflate64)
	}
	for i := 0; i < s.length; i++ {
		d.emit(d.window[len(d.window)-s.dist])
	}
	d.body = d64BodyState{}
}

// huffSym decodes one Huffman symbol, writing d.b/d.nb back after every byte
// it pulls in (not just on a fully successful decode) so a suspend never
// discards bits it already paid to read.
func (d *deflate64Decompressor) huffSym(h *d64HuffmanDecoder) int {
	n := uint(h.min)
	for {
		for d.nb < n {
			d.moreBits()
		}
		chunk := h.chunks[d.b&(d64HuffmanChunks-1)]
		cnt := uint(chunk & d64CountMask)
		if cnt > d64HuffmanChunkBit {
			chunk = h.links[chunk>>d64ValueShift][(d.b>>d64HuffmanChunkBit)&h.linkMask]
			cnt = uint(chunk & d64CountMask)
		}
		if cnt <= d.nb {
			if cnt == 0 {
				panic(errCorruptDeflate64)
			}
			d.b >>= cnt & 31
			d.nb -= cnt
			return int(chunk >> d64ValueShift)
		}
		n = cnt
	}
}

// d64HuffmanDecoder is internal/flate/inflate.go's zlib-derived lookup-table
// decoder, unmodified in structure (only the enclosing constants above
// differ between DEFLATE and DEFLATE64).
type d64HuffmanDecoder struct {
	min      int
	chunks   [d64HuffmanChunks]uint32
	links    [][]uint32
	linkMask uint32
}

func (h *d64HuffmanDecoder) init(lengths []int) bool {
	if h.min != 0 {
		*h = d64HuffmanDecoder{}
	}

	var count [d64MaxCodeLen]int
	var min, max int
	for _, n := range lengths {
		if n == 0 {
			continue
		}
		if min == 0 || n < min {
			min = n
		}
		if n > max {
			max = n
		}
		count[n]++
	}
	if max == 0 {
		return true
	}

	code := 0
	var nextcode [d64MaxCodeLen]int
	for i := min; i <= max; i++ {
		code <<= 1
		nextcode[i] = code
		code += count[i]
	}
	if code != 1<<uint(max) && !(code == 1 && max == 1) {
		return false
	}

	h.min = min
	if max > d64HuffmanChunkBit {
		numLinks := 1 << (uint(max) - d64HuffmanChunkBit)
		h.linkMask = uint32(numLinks - 1)

		link := nextcode[d64HuffmanChunkBit+1] >> 1
		h.links = make([][]uint32, d64HuffmanChunks-link)
		for j := uint(link); j < d64HuffmanChunks; j++ {
			reverse := int(bits.Reverse16(uint16(j)))
			reverse >>= uint(16 - d64HuffmanChunkBit)
			off := j - uint(link)
			h.chunks[reverse] = uint32(off<<d64ValueShift | (d64HuffmanChunkBit + 1))
			h.links[off] = make([]uint32, numLinks)
		}
	}

	for i, n := range lengths {
		if n == 0 {
			continue
		}
		code := nextcode[n]
		nextcode[n]++
		chunk := uint32(i<<d64ValueShift | n)
		reverse := int(bits.Reverse16(uint16(code)))
		reverse >>= uint(16 - n)
		if n <= d64HuffmanChunkBit {
			for off := reverse; off < len(h.chunks); off += 1 << uint(n) {
				h.chunks[off] = chunk
			}
		} else {
			j := reverse & (d64HuffmanChunks - 1)
			value := h.chunks[j] >> d64ValueShift
			linktab := h.links[value]
			reverse >>= d64HuffmanChunkBit
			for off := reverse; off < len(linktab); off += 1 << uint(n-d64HuffmanChunkBit) {
				linktab[off] = chunk
			}
		}
	}

	return true
}
