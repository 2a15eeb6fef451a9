//go:build linux || darwin || freebsd || netbsd || openbsd

package webclient

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// kernelAvailable returns the unread byte count of the underlying descriptor.
// For TLS connections this counts undecrypted record bytes.
func (s *TCPSocket) kernelAvailable() int {
	sc, ok := s.rawConn().(syscall.Conn)
	if !ok {
		return 0
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return 0
	}

	n := 0
	_ = raw.Control(func(fd uintptr) {
		v, err := unix.IoctlGetInt(int(fd), ioctlInQueue)
		if err == nil {
			n = v
		}
	})
	return n
}

// peerClosed probes the descriptor with a non-blocking MSG_PEEK read; a zero
// byte result means the peer sent FIN.
func (s *TCPSocket) peerClosed() bool {
	sc, ok := s.rawConn().(syscall.Conn)
	if !ok {
		return false
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return true
	}

	closed := false
	var probe [1]byte
	cerr := raw.Control(func(fd uintptr) {
		n, _, err := unix.Recvfrom(int(fd), probe[:], unix.MSG_PEEK|unix.MSG_DONTWAIT)
		switch {
		case err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR:
		case err != nil:
			closed = true
		case n == 0:
			closed = true
		}
	})
	return closed || cerr != nil
}
