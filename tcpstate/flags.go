package tcpstate

// connFlags is the connection's flag set. The error taxonomy's
// connection-reset member is folded into flagResetSignaled rather than
// kept as a separate bit, since the two are set at exactly the same
// instant (observing a RST); send-eof/receive-eof are kept as their own
// bool fields on Conn instead, since unlike these five they aren't purely
// edge-triggered — the send direction needs to distinguish "eof not yet
// signaled" from "eof signaled" as an ongoing condition checked on every
// write.
type connFlags uint8

const (
	// flagHalfClose is set by Shutdown: the local side has stopped writing
	// but, unlike Close, still expects to read until the peer's own FIN
	// arrives.
	flagHalfClose connFlags = 1 << iota
	// flagEstablishedOnce is set the first time the connection reaches
	// ESTABLISHED, distinguishing a freshly-refused SYN_SENT from one that
	// had already been up.
	flagEstablishedOnce
	// flagConnectSignalNeeded is set when Connect is called and cleared
	// when the connection first reaches ESTABLISHED, so the completed
	// connect is logged only once.
	flagConnectSignalNeeded
	// flagResetSignaled is set the first time a RST is observed, so a
	// second RST (or a stray packet afterward) is a no-op.
	flagResetSignaled
	// flagWriteFinPending is set when Close is called while send data is
	// still queued; the FIN is deferred until the queue drains.
	flagWriteFinPending
)

func (f connFlags) has(bit connFlags) bool { return f&bit != 0 }

func (f connFlags) with(bit connFlags) connFlags    { return f | bit }
func (f connFlags) without(bit connFlags) connFlags { return f &^ bit }
