package webclient

import "golang.org/x/sys/unix"

// ioctlInQueue reads the number of unread bytes in the receive queue
const ioctlInQueue = unix.TIOCINQ
