// Package webclient is an HTTP/1.1 client written directly against stream
// sockets.
//
// A Request serializes its HeaderSet and body through a buffered writer,
// chunk-encoding the body when no length was announced. A Response reads the
// header block into a bounded buffer and exposes the body as a chain of
// SocketStream layers:
//
//	socket -> body (buffered prefix, then socket) -> chunked -> gzip/deflate
//
// Closing a Response drains what is cheap to drain and hands the socket back
// to the Client, which keeps keep-alive connections in a ConnectionCache for
// the next request to the same host and port.
package webclient
