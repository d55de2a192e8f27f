package decompress

import "compress/flate"

// deflateDecompressor drives stdlib compress/flate through a streamBridge.
// Grounded on internal/zip/zip.go's method-8 dispatch
// (flate.NewReader(sectionReader)), generalized from a blocking ReaderAt
// source to one fed incrementally by the Entry FSM.
//
// compress/flate's decompressor caches the first error a Read returns and
// replays it on every later call, so it cannot be driven through the
// sentinel-error suspend deflate64.go uses for its own hand-rolled decoder;
// see bridge.go for why a background goroutine and a blocking feeder are
// used here instead.
type deflateDecompressor struct {
	bridge *streamBridge
}

func newDeflate() *deflateDecompressor {
	feeder := newPipeFeeder()
	d := &deflateDecompressor{}
	d.bridge = newStreamBridge(feeder, flate.NewReader(feeder))
	return d
}

func (d *deflateDecompressor) Decompress(in, out []byte, hasMoreInput bool) (Result, error) {
	return d.bridge.feed(in, hasMoreInput, out)
}

func (d *deflateDecompressor) Close() error {
	d.bridge.close()
	return nil
}
