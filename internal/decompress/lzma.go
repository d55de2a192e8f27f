package decompress

import (
	"io"

	"github.com/therootcompany/xz/lzma"
)

// lzmaDecompressor drives github.com/therootcompany/xz's lzma subpackage,
// the same dependency probe.go/fs.go reach for when they detect an .xz
// stream, generalized here to the ZIP LZMA method's own framing.
//
// The ZIP LZMA method (APPNOTE 4.5.3, method 14) prefixes the raw LZMA
// stream with a small SDK header the central directory doesn't carry:
// 2 bytes version, 2 bytes little-endian property size, then that many
// property bytes (lc/lp/pb packed into one byte plus a 4-byte dictionary
// size, in the common 5-byte case). lzmaDecompressor buffers those bytes
// directly (before any streamBridge exists, since lzma.NewReader can't be
// built until the properties are known) and only then builds the pipeFeeder
// and bridge the rest of the stream is driven through.
type lzmaDecompressor struct {
	prologue    []byte
	propSize    int
	haveVersion bool
	haveSize    bool

	bridge *streamBridge
}

func newLZMA() *lzmaDecompressor {
	return &lzmaDecompressor{}
}

func (l *lzmaDecompressor) Decompress(in, out []byte, hasMoreInput bool) (Result, error) {
	consumed := 0

	if l.bridge == nil {
		n, done, err := l.feedPrologue(in)
		consumed += n
		if err != nil {
			return Result{BytesRead: consumed}, err
		}
		if !done {
			return Result{BytesRead: consumed}, nil
		}
		in = in[n:]
	}

	res, err := l.bridge.feed(in, hasMoreInput, out)
	res.BytesRead += consumed
	return res, err
}

func (l *lzmaDecompressor) Close() error {
	if l.bridge != nil {
		l.bridge.close()
	}
	return nil
}

// feedPrologue accumulates the version + property-size + properties header
// before the underlying lzma.Reader (and the streamBridge that drives it)
// can be constructed, returning the number of bytes of in it consumed and
// whether the header is now complete.
func (l *lzmaDecompressor) feedPrologue(in []byte) (int, bool, error) {
	consumed := 0

	for !l.haveVersion && len(in) > 0 {
		l.prologue = append(l.prologue, in[0])
		in, consumed = in[1:], consumed+1
		if len(l.prologue) == 2 {
			l.haveVersion = true
		}
	}
	for !l.haveSize && l.haveVersion && len(in) >= 2 {
		l.prologue = append(l.prologue, in[0], in[1])
		in, consumed = in[2:], consumed+2
		l.propSize = int(uint16(l.prologue[2]) | uint16(l.prologue[3])<<8)
		l.haveSize = true
	}
	if !l.haveSize {
		return consumed, false, nil
	}

	need := l.propSize - (len(l.prologue) - 4)
	take := need
	if take > len(in) {
		take = len(in)
	}
	l.prologue = append(l.prologue, in[:take]...)
	consumed += take
	if take < need {
		return consumed, false, nil
	}

	props := l.prologue[4:]
	feeder := newPipeFeeder()
	r, err := lzma.NewReader(&lzmaPropsReader{props: props, body: feeder})
	if err != nil {
		return consumed, false, err
	}
	l.bridge = newStreamBridge(feeder, r)
	return consumed, true, nil
}

// lzmaPropsReader re-synthesizes a classic .lzma-style stream (properties
// byte + dict size, then raw compressed data) in front of the feeder, since
// lzma.NewReader expects to read the properties itself rather than take
// them pre-parsed.
type lzmaPropsReader struct {
	props []byte
	body  io.Reader
	pos   int
}

func (p *lzmaPropsReader) Read(b []byte) (int, error) {
	if p.pos < len(p.props) {
		n := copy(b, p.props[p.pos:])
		p.pos += n
		return n, nil
	}
	return p.body.Read(b)
}
