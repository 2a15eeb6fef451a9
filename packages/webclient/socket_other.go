//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package webclient

// Without FIONREAD only bytes already pulled in by a peek are known.
func (s *TCPSocket) kernelAvailable() int { return 0 }

func (s *TCPSocket) peerClosed() bool { return false }
