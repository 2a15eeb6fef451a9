//go:build darwin || freebsd || netbsd || openbsd

package webclient

// ioctlInQueue is FIONREAD, _IOR('f', 127, int)
const ioctlInQueue = 0x4004667f
