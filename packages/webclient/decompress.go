package webclient

import (
	"bufio"
	"errors"
	"io"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

// decompressReader decodes a gzip or deflate body. The decoder is created on
// the first Read so an unread body costs nothing.
type decompressReader struct {
	src      SocketStream
	encoding string
	r        io.ReadCloser
	err      error
	position int64
	finished bool
}

// supportedEncoding normalizes a Content-Encoding value and reports whether
// the body can be decoded.
func supportedEncoding(contentEncoding string) (string, bool) {
	enc := strings.ToLower(strings.TrimSpace(contentEncoding))
	switch enc {
	case "gzip", "x-gzip":
		return "gzip", true
	case "deflate":
		return "deflate", true
	}
	return enc, false
}

func newDecompressReader(src SocketStream, encoding string) *decompressReader {
	return &decompressReader{src: src, encoding: encoding}
}

func (d *decompressReader) Read(p []byte) (int, error) {
	if d.r == nil && d.err == nil {
		d.r, d.err = d.open()
	}
	if d.err != nil {
		return 0, d.err
	}

	n, err := d.r.Read(p)
	d.position += int64(n)
	switch {
	case errors.Is(err, io.EOF):
		d.finish()
	case err != nil:
		err = responseError("unable to decode the "+d.encoding+" response body", err)
		d.err = err
	}
	return n, err
}

// finish consumes whatever follows the compressed data, such as the
// terminal chunk, so the body ends where the framing says it does.
func (d *decompressReader) finish() {
	if d.finished {
		return
	}
	d.finished = true
	var buf [512]byte
	for {
		n, err := d.src.Read(buf[:])
		if err != nil || n == 0 {
			return
		}
	}
}

func (d *decompressReader) open() (io.ReadCloser, error) {
	switch d.encoding {
	case "gzip":
		zr, err := gzip.NewReader(d.src)
		if err != nil {
			return nil, d.openError(err)
		}
		return zr, nil

	case "deflate":
		// servers disagree on whether deflate means raw or zlib-wrapped data
		br := bufio.NewReaderSize(d.src, 512)
		if hdr, _ := br.Peek(2); isZlibHeader(hdr) {
			zr, err := zlib.NewReader(br)
			if err != nil {
				return nil, d.openError(err)
			}
			return zr, nil
		}
		return flate.NewReader(br), nil
	}
	return nil, responseError("unsupported content encoding "+d.encoding, ErrUnsupported)
}

func (d *decompressReader) openError(err error) error {
	if errors.Is(err, io.EOF) {
		return io.EOF
	}
	return responseError("unable to decode the "+d.encoding+" response body", err)
}

func isZlibHeader(b []byte) bool {
	if len(b) < 2 {
		return false
	}
	return b[0]&0x0f == 8 && (uint16(b[0])<<8|uint16(b[1]))%31 == 0
}

func (d *decompressReader) Close() error {
	if d.r == nil {
		return nil
	}
	return d.r.Close()
}

func (d *decompressReader) Available() int       { return d.src.Available() }
func (d *decompressReader) BufferAvailable() int { return d.src.BufferAvailable() }
func (d *decompressReader) SocketAvailable() int { return d.src.SocketAvailable() }
func (d *decompressReader) SocketReceive(p []byte) (int, error) {
	return d.src.SocketReceive(p)
}
func (d *decompressReader) ForceClose()     { d.src.ForceClose() }
func (d *decompressReader) Position() int64 { return d.position }
