// File: internal/browser/static/compression.go
package static

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
)

// Pooled decompression readers. Pages are fetched one after another per
// scenario but scenarios may run concurrently, so the pools keep reader
// allocations off the per-request path.
var (
	gzipReaders = sync.Pool{
		New: func() interface{} { return new(gzip.Reader) },
	}
	brotliReaders = sync.Pool{
		New: func() interface{} { return brotli.NewReader(nil) },
	}
)

// drained is used to detach pooled readers from their previous source.
// Resetting gzip with a nil reader can panic, an empty one cannot.
var drained = strings.NewReader("")

// decompressTransport is an http.RoundTripper that negotiates compression
// on outgoing requests and unwraps gzip, deflate and brotli response
// bodies, including layered encodings applied in sequence.
type decompressTransport struct {
	next http.RoundTripper
}

func newDecompressTransport(next http.RoundTripper) *decompressTransport {
	if next == nil {
		next = http.DefaultTransport
	}
	return &decompressTransport{next: next}
}

func (t *decompressTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "br, gzip, deflate, identity")
	}

	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if err := decompressBody(resp); err != nil {
		// The body may be partially consumed at this point, so the
		// response cannot be salvaged.
		_ = resp.Body.Close()
		return nil, fmt.Errorf("decompress response: %w", err)
	}
	return resp, nil
}

// decompressBody wraps resp.Body with decoders for every Content-Encoding
// layer, applied in reverse of the order the server listed them. On success
// the encoding headers are cleared and resp.Uncompressed is set.
func decompressBody(resp *http.Response) error {
	if resp == nil || resp.Body == nil {
		return nil
	}
	encodings := resp.Header.Values("Content-Encoding")
	if len(encodings) == 0 {
		return nil
	}

	for i := len(encodings) - 1; i >= 0; i-- {
		encoding := strings.ToLower(strings.TrimSpace(encodings[i]))

		var reader io.ReadCloser
		var release func()

		switch encoding {
		case "gzip":
			zr := gzipReaders.Get().(*gzip.Reader)
			if err := zr.Reset(resp.Body); err != nil {
				gzipReaders.Put(zr)
				return fmt.Errorf("gzip: %w", err)
			}
			reader = zr
			release = func() {
				_ = zr.Reset(drained)
				gzipReaders.Put(zr)
			}

		case "br":
			br := brotliReaders.Get().(*brotli.Reader)
			if err := br.Reset(resp.Body); err != nil {
				brotliReaders.Put(br)
				return fmt.Errorf("brotli: %w", err)
			}
			reader = io.NopCloser(br)
			release = func() {
				_ = br.Reset(drained)
				brotliReaders.Put(br)
			}

		case "deflate":
			var err error
			reader, err = openDeflate(resp.Body)
			if err != nil {
				return fmt.Errorf("deflate: %w", err)
			}

		case "identity", "":
			continue

		default:
			return fmt.Errorf("unsupported Content-Encoding layer: %s", encoding)
		}

		resp.Body = &decodedBody{
			ReadCloser: reader,
			underlying: resp.Body,
			release:    release,
		}
	}

	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return nil
}

// decodedBody closes the decoder and the wrapped network body together and
// returns pooled readers on Close.
type decodedBody struct {
	io.ReadCloser
	underlying io.ReadCloser
	release    func()
}

func (b *decodedBody) Close() error {
	// The decoder must be fully closed before release hands it back to the
	// pool, or a concurrent fetch could grab it mid-close.
	err := b.ReadCloser.Close()
	if b.release != nil {
		b.release()
		b.release = nil
	}
	return errors.Join(err, b.underlying.Close())
}

// rewindReader buffers what has been read so a failed decode attempt can be
// replayed from the start of the stream.
type rewindReader struct {
	r      io.Reader
	buf    *bytes.Buffer
	source io.Reader
}

func newRewindReader(r io.Reader) *rewindReader {
	buf := bytes.NewBuffer(make([]byte, 0, 128))
	return &rewindReader{
		r:      io.TeeReader(r, buf),
		buf:    buf,
		source: r,
	}
}

func (rr *rewindReader) Read(p []byte) (int, error) {
	return rr.r.Read(p)
}

func (rr *rewindReader) rewind() {
	rr.r = io.MultiReader(bytes.NewReader(rr.buf.Bytes()), rr.source)
}

// openDeflate decodes "deflate" bodies. Servers disagree on whether that
// means a zlib stream (RFC 1950) or raw deflate (RFC 1951), so zlib is
// tried first and the raw decoder used as the fallback.
func openDeflate(r io.Reader) (io.ReadCloser, error) {
	rr := newRewindReader(r)

	if zr, err := zlib.NewReader(rr); err == nil {
		return zr, nil
	}

	rr.rewind()
	return flate.NewReader(rr), nil
}
