package tcpstate

import "errors"

// Sentinel errors returned through the connection's I/O surface. Callers
// should compare with errors.Is.
var (
	// ErrWouldBlock is returned when the requested direction is open but
	// no progress is possible right now (empty receive buffer on an
	// established connection, full send buffer, empty accept queue).
	ErrWouldBlock = errors.New("tcpstate: would block")
	// ErrNotConnected is returned after eof has been signaled and the
	// user issues another read or write, or for shutdown on a listening
	// or unconnected socket.
	ErrNotConnected = errors.New("tcpstate: not connected")
	// ErrBrokenPipe is returned on the first write after the remote
	// half-close.
	ErrBrokenPipe = errors.New("tcpstate: broken pipe")
	// ErrConnReset is returned on read or write after a RST was observed.
	ErrConnReset = errors.New("tcpstate: connection reset")
	// ErrConnRefused is returned on a SYN answered with RST before
	// establishment.
	ErrConnRefused = errors.New("tcpstate: connection refused")
	// ErrInProgress is returned immediately after a non-blocking connect.
	ErrInProgress = errors.New("tcpstate: operation in progress")
	// ErrAlready is returned when a connect is retried while the
	// connection is already in SYN_SENT or SYN_RECEIVED.
	ErrAlready = errors.New("tcpstate: operation already in progress")
)
