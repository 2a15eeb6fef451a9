package webclient

import (
	"bytes"
	"time"

	"go.uber.org/zap"
)

// DrainPolicy bounds how hard Response.Close works to consume an unread
// body so the socket can be reused. It is a heuristic: a remainder that does
// not show up in time costs a new connection, never correctness.
type DrainPolicy struct {
	// MaxPollBytes is the largest remainder worth waiting for
	MaxPollBytes int64
	// PollAttempts is how many times availability is re-checked
	PollAttempts int
	// PollInterval is the wait before each check
	PollInterval time.Duration
}

// DefaultDrainPolicy waits up to 50ms for at most 64KiB
var DefaultDrainPolicy = DrainPolicy{
	MaxPollBytes: 64 * 1024,
	PollAttempts: 50,
	PollInterval: time.Millisecond,
}

const chunkTailSize = 5

// settle leaves the socket either fully consumed or marked for closing.
func (r *Response) settle() {
	switch {
	case r.ConnectionClose():
		r.body.ForceClose()
	case r.chunked != nil:
		r.settleChunked()
	case r.body.length >= 0:
		r.settleFixed()
	default:
		// delimited by the peer closing the connection
		r.body.ForceClose()
	}
}

func (r *Response) settleFixed() {
	remaining := r.body.length - r.body.Position()
	if remaining <= 0 {
		return
	}

	p := r.policy
	switch {
	case remaining == int64(r.body.BufferAvailable()) || remaining == int64(r.body.Available()):
		r.skip(remaining)
	case remaining <= p.MaxPollBytes:
		for i := 0; i < p.PollAttempts; i++ {
			time.Sleep(p.PollInterval)
			if remaining == int64(r.body.Available()) {
				r.skip(remaining)
				break
			}
		}
	}

	if r.body.Position() < r.body.length {
		r.logger.Debug("undrained response body, closing connection",
			zap.String("host", r.Headers.Hostname), zap.Int64("remaining", r.body.length-r.body.Position()))
		r.body.ForceClose()
	}
}

// settleChunked checks that an unfinished chunked body ends with the terminal
// chunk by looking only at its last bytes.
func (r *Response) settleChunked() {
	if r.chunked.Done() {
		return
	}

	if avail := r.body.SocketAvailable(); avail >= chunkTailSize {
		if !r.skipSocket(avail - chunkTailSize) {
			r.body.ForceClose()
			return
		}
		var tail [chunkTailSize]byte
		if !r.receiveSocket(tail[:]) || !bytes.Equal(tail[:], chunkTerminator) {
			r.body.ForceClose()
		}
		return
	}

	if r.body.SocketAvailable() == 0 && bytes.HasSuffix(r.body.leftover, chunkTerminator) {
		return
	}
	r.body.ForceClose()
}

func (r *Response) skip(n int64) {
	var buf [4096]byte
	for n > 0 {
		m, err := r.body.Read(buf[:min(n, int64(len(buf)))])
		n -= int64(m)
		if err != nil || m == 0 {
			return
		}
	}
}

func (r *Response) skipSocket(n int) bool {
	var buf [256]byte
	for n > 0 {
		m, err := r.body.SocketReceive(buf[:min(n, len(buf))])
		n -= m
		if err != nil || m == 0 {
			return false
		}
	}
	return true
}

func (r *Response) receiveSocket(p []byte) bool {
	for len(p) > 0 {
		m, err := r.body.SocketReceive(p)
		p = p[m:]
		if err != nil || m == 0 {
			return len(p) == 0
		}
	}
	return true
}
