package webclient

import (
	"bytes"
	"io"
	"net"
	"sync"
	"time"
)

// memorySocket is an in-memory Socket. Received bytes come from in; when in
// runs dry a Flush loads the next queued reply, which is how a server answers
// once the request is complete.
type memorySocket struct {
	mu sync.Mutex

	host string
	port int

	in      []byte
	replies [][]byte
	sent    bytes.Buffer

	maxRead   int // per Receive, 0 for no limit
	zeroSend  bool
	peerGone  bool
	available int // overrides len(in) when >= 0

	timeout          time.Duration
	keepAlive        bool
	keepAliveStarted time.Time
	keepAliveTimeout time.Duration
	forceClose       bool
	closed           bool
	flushes          int
}

func newMemorySocket(host string, port int, replies ...string) *memorySocket {
	s := &memorySocket{host: host, port: port, timeout: DefaultTimeout, available: -1}
	for _, r := range replies {
		s.replies = append(s.replies, []byte(r))
	}
	return s
}

func (s *memorySocket) Hostname() string { return s.host }
func (s *memorySocket) Port() int        { return s.port }

func (s *memorySocket) Send(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, net.ErrClosed
	}
	if s.zeroSend {
		return 0, nil
	}
	return s.sent.Write(p)
}

func (s *memorySocket) Receive(p []byte, peek bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, net.ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	if len(s.in) == 0 {
		return 0, io.EOF
	}
	n := min(len(p), len(s.in))
	if s.maxRead > 0 {
		n = min(n, s.maxRead)
	}
	copy(p, s.in[:n])
	if !peek {
		s.in = s.in[n:]
	}
	return n, nil
}

func (s *memorySocket) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
	if len(s.in) == 0 && len(s.replies) > 0 {
		s.in = s.replies[0]
		s.replies = s.replies[1:]
	}
	return nil
}

func (s *memorySocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *memorySocket) MarkKeepAlive(timeout time.Duration) {
	if timeout <= 0 {
		timeout = s.timeout / 2
	}
	s.keepAlive = true
	s.keepAliveStarted = time.Now()
	s.keepAliveTimeout = timeout
}

func (s *memorySocket) ResetKeepAlive() {
	s.keepAlive = false
	s.keepAliveTimeout = 0
}

func (s *memorySocket) KeepAlive() bool { return s.keepAlive }

func (s *memorySocket) KeepAliveExpired() bool {
	return s.keepAliveTimeout > 0 && time.Since(s.keepAliveStarted) > s.keepAliveTimeout
}

func (s *memorySocket) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && !s.peerGone
}

func (s *memorySocket) Available() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0
	}
	if s.available >= 0 {
		return s.available
	}
	return len(s.in)
}

func (s *memorySocket) Timeout() time.Duration     { return s.timeout }
func (s *memorySocket) SetTimeout(d time.Duration) { s.timeout = d }
func (s *memorySocket) SetForceClose(force bool)   { s.forceClose = force }
func (s *memorySocket) ForceClosed() bool          { return s.forceClose }

func (s *memorySocket) Sent() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent.String()
}

func (s *memorySocket) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// memoryDialer hands out the given sockets in order and records each dial
type memoryDialer struct {
	mu      sync.Mutex
	sockets []*memorySocket
	dials   int
}

func (d *memoryDialer) Dial(host string, port int, secure bool, timeout time.Duration) (Socket, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.sockets) == 0 {
		return nil, &net.OpError{Op: "dial", Net: "tcp", Err: io.ErrClosedPipe}
	}
	s := d.sockets[0]
	d.sockets = d.sockets[1:]
	s.host = host
	s.port = port
	s.timeout = timeout
	d.dials++
	return s, nil
}

func newTestClient(sockets ...*memorySocket) (*Client, *memoryDialer) {
	d := &memoryDialer{sockets: sockets}
	return NewClient(WithDialer(d.Dial)), d
}

var _ Socket = (*memorySocket)(nil)
