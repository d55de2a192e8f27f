package decompress

import "github.com/klauspost/compress/zstd"

// zstdDecompressor drives klauspost/compress's streaming zstd.Decoder
// through a streamBridge. klauspost/compress is already a transitive
// dependency of the teacher's module (pulled in for xz's own use); here it
// is promoted to a direct dependency for method 93 (APPNOTE's Zstandard
// assignment).
//
// zstd.Decoder is driven the same way the stdlib decoders are: a background
// goroutine owns the blocking Read loop against a pipeFeeder, since nothing
// guarantees it tolerates a transient "no input yet" error without wedging.
type zstdDecompressor struct {
	bridge *streamBridge
}

func newZstd() *zstdDecompressor {
	feeder := newPipeFeeder()
	d, _ := zstd.NewReader(feeder, zstd.WithDecoderConcurrency(1))
	z := &zstdDecompressor{}
	z.bridge = newStreamBridge(feeder, d)
	return z
}

func (z *zstdDecompressor) Decompress(in, out []byte, hasMoreInput bool) (Result, error) {
	return z.bridge.feed(in, hasMoreInput, out)
}

func (z *zstdDecompressor) Close() error {
	z.bridge.close()
	return nil
}
