package decompress

import "compress/bzip2"

// bzip2Decompressor drives stdlib compress/bzip2 through a streamBridge,
// same shape as deflateDecompressor. Grounded on internal/zip/zip.go's
// method-12 dispatch (bzip2.NewReader(sectionReader)).
//
// compress/bzip2's bit reader caches the first error a Read returns and
// replays it on every later call, so it cannot be driven through the
// sentinel-error suspend deflate64.go uses for its own hand-rolled decoder;
// see bridge.go for why a background goroutine and a blocking feeder are
// used here instead.
type bzip2Decompressor struct {
	bridge *streamBridge
}

func newBzip2() *bzip2Decompressor {
	feeder := newPipeFeeder()
	b := &bzip2Decompressor{}
	b.bridge = newStreamBridge(feeder, bzip2.NewReader(feeder))
	return b
}

func (b *bzip2Decompressor) Decompress(in, out []byte, hasMoreInput bool) (Result, error) {
	return b.bridge.feed(in, hasMoreInput, out)
}

func (b *bzip2Decompressor) Close() error {
	b.bridge.close()
	return nil
}
