package webclient

import (
	"crypto/tls"
	"errors"
	"io"
	"net"
	"strconv"
	"time"
)

// DefaultTimeout is the default send/receive timeout of a socket
const DefaultTimeout = 30 * time.Second

// Socket is a connected bidirectional byte stream to one host and port.
type Socket interface {
	Hostname() string
	Port() int

	// Send writes p and returns the number of bytes the transport accepted.
	Send(p []byte) (int, error)
	// Receive reads into p. With peek set the bytes stay unread and the next
	// Receive returns them again. Returns 0, io.EOF once the peer has closed.
	Receive(p []byte, peek bool) (int, error)
	// Flush pushes data the transport may be holding back to coalesce writes.
	Flush() error
	Close() error

	// MarkKeepAlive makes the socket eligible for reuse for timeout. A zero
	// timeout means half the socket timeout.
	MarkKeepAlive(timeout time.Duration)
	ResetKeepAlive()
	KeepAlive() bool
	KeepAliveExpired() bool

	Connected() bool
	// Available returns the number of bytes that can be received without blocking.
	Available() int

	Timeout() time.Duration
	SetTimeout(d time.Duration)

	SetForceClose(force bool)
	ForceClosed() bool
}

// Dialer opens a new socket. It is the injection point for alternative
// transports and for tests.
type Dialer func(host string, port int, secure bool, timeout time.Duration) (Socket, error)

// TCPSocket is a Socket over a TCP (optionally TLS) connection.
type TCPSocket struct {
	host    string
	port    int
	conn    net.Conn
	tcp     *net.TCPConn
	timeout time.Duration
	noDelay bool

	// bytes received from the transport by a peek and not yet consumed
	pending []byte

	keepAlive        bool
	keepAliveStarted time.Time
	keepAliveTimeout time.Duration

	forceClose bool
	closed     bool
}

// DialTCP connects to host:port, negotiating TLS when secure is set.
func DialTCP(host string, port int, secure bool, timeout time.Duration) (Socket, error) {
	return dialTCP(host, port, secure, timeout, nil)
}

// NewDialer returns a Dialer that uses tlsConfig for secure connections. The
// config is cloned per connection and its ServerName defaults to the host.
func NewDialer(tlsConfig *tls.Config) Dialer {
	return func(host string, port int, secure bool, timeout time.Duration) (Socket, error) {
		return dialTCP(host, port, secure, timeout, tlsConfig)
	}
}

func dialTCP(host string, port int, secure bool, timeout time.Duration, tlsConfig *tls.Config) (Socket, error) {
	d := net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}
	conn, err := d.Dial("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, err
	}

	s := &TCPSocket{host: host, port: port, timeout: timeout, noDelay: true}
	if tcp, ok := conn.(*net.TCPConn); ok {
		s.tcp = tcp
		_ = tcp.SetNoDelay(true)
	}

	if !secure {
		s.conn = conn
		return s, nil
	}

	cfg := &tls.Config{}
	if tlsConfig != nil {
		cfg = tlsConfig.Clone()
	}
	if cfg.ServerName == "" {
		cfg.ServerName = host
	}

	tlsConn := tls.Client(conn, cfg)
	if timeout > 0 {
		_ = tlsConn.SetDeadline(time.Now().Add(timeout))
	}
	if err := tlsConn.Handshake(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	_ = tlsConn.SetDeadline(time.Time{})
	s.conn = tlsConn

	return s, nil
}

// NewTCPSocket wraps an already connected net.Conn
func NewTCPSocket(conn net.Conn, host string, port int, timeout time.Duration) *TCPSocket {
	s := &TCPSocket{host: host, port: port, conn: conn, timeout: timeout, noDelay: true}
	if tcp, ok := conn.(*net.TCPConn); ok {
		s.tcp = tcp
	}
	return s
}

func (s *TCPSocket) Hostname() string { return s.host }
func (s *TCPSocket) Port() int        { return s.port }

func (s *TCPSocket) Send(p []byte) (int, error) {
	if s.closed {
		return 0, net.ErrClosed
	}
	if s.timeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.timeout))
	}
	return s.conn.Write(p)
}

func (s *TCPSocket) Receive(p []byte, peek bool) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if s.closed {
		return 0, net.ErrClosed
	}

	if peek {
		if len(s.pending) == 0 || (len(s.pending) < len(p) && s.kernelAvailable() > 0) {
			if err := s.fill(len(p) - len(s.pending)); err != nil && len(s.pending) == 0 {
				return 0, err
			}
		}
		return copy(p, s.pending), nil
	}

	if len(s.pending) > 0 {
		n := copy(p, s.pending)
		s.pending = s.pending[n:]
		if len(s.pending) == 0 {
			s.pending = nil
		}
		return n, nil
	}

	return s.read(p)
}

func (s *TCPSocket) fill(want int) error {
	buf := make([]byte, want)
	n, err := s.read(buf)
	s.pending = append(s.pending, buf[:n]...)
	return err
}

func (s *TCPSocket) read(p []byte) (int, error) {
	if s.timeout > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.timeout))
	}
	n, err := s.conn.Read(p)
	if n > 0 && errors.Is(err, io.EOF) {
		err = nil
	}
	return n, err
}

// Flush toggles TCP_NODELAY so the kernel sends anything Nagle is holding back.
func (s *TCPSocket) Flush() error {
	if s.tcp == nil || s.noDelay {
		return nil
	}
	if err := s.tcp.SetNoDelay(true); err != nil {
		return err
	}
	return s.tcp.SetNoDelay(false)
}

// SetNoDelay controls Nagle's algorithm on the underlying TCP connection
func (s *TCPSocket) SetNoDelay(noDelay bool) error {
	s.noDelay = noDelay
	if s.tcp == nil {
		return nil
	}
	return s.tcp.SetNoDelay(noDelay)
}

func (s *TCPSocket) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.pending = nil
	return s.conn.Close()
}

func (s *TCPSocket) MarkKeepAlive(timeout time.Duration) {
	if timeout <= 0 {
		timeout = s.timeout / 2
	}
	s.keepAlive = true
	s.keepAliveStarted = time.Now()
	s.keepAliveTimeout = timeout
}

func (s *TCPSocket) ResetKeepAlive() {
	s.keepAlive = false
	s.keepAliveStarted = time.Time{}
	s.keepAliveTimeout = 0
}

func (s *TCPSocket) KeepAlive() bool { return s.keepAlive }

func (s *TCPSocket) KeepAliveExpired() bool {
	if s.keepAliveTimeout <= 0 {
		return false
	}
	return time.Since(s.keepAliveStarted) > s.keepAliveTimeout
}

// Connected reports whether the socket is open and the peer has not closed its side.
func (s *TCPSocket) Connected() bool {
	if s.closed {
		return false
	}
	if len(s.pending) > 0 {
		return true
	}
	return !s.peerClosed()
}

func (s *TCPSocket) Available() int {
	if s.closed {
		return 0
	}
	return len(s.pending) + s.kernelAvailable()
}

func (s *TCPSocket) Timeout() time.Duration { return s.timeout }

func (s *TCPSocket) SetTimeout(d time.Duration) { s.timeout = d }

func (s *TCPSocket) SetForceClose(force bool) { s.forceClose = force }

func (s *TCPSocket) ForceClosed() bool { return s.forceClose }

func (s *TCPSocket) rawConn() net.Conn {
	if tlsConn, ok := s.conn.(*tls.Conn); ok {
		return tlsConn.NetConn()
	}
	return s.conn
}
