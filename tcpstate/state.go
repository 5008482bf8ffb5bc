package tcpstate

// State is a TCP connection's position in the eleven-state RFC 793
// automaton. The numeric values mirror Linux's tcp_info state constants
// (TCP_ESTABLISHED=1 through TCP_CLOSING=11) so GetInfo's state code is
// wire-compatible with anything that already understands that numbering.
// The one departure: Linux leaves 0 unused and numbers TCP_CLOSE 7 — this
// automaton instead gives slot 0 to the single CLOSED state (the
// automaton's start and terminal state), which is also where a zero-value
// Conn already sits before anyone calls Connect or Listen on it, and
// defines nothing at 7.
type State int32

const (
	CLOSED       State = 0
	ESTABLISHED  State = 1
	SYN_SENT     State = 2
	SYN_RECEIVED State = 3
	FIN_WAIT_1   State = 4
	FIN_WAIT_2   State = 5
	TIME_WAIT    State = 6
	CLOSE_WAIT   State = 8
	LAST_ACK     State = 9
	LISTEN       State = 10
	CLOSING      State = 11
)

var stateName = map[State]string{
	CLOSED:       "CLOSED",
	ESTABLISHED:  "ESTABLISHED",
	SYN_SENT:     "SYN_SENT",
	SYN_RECEIVED: "SYN_RECEIVED",
	FIN_WAIT_1:   "FIN_WAIT_1",
	FIN_WAIT_2:   "FIN_WAIT_2",
	TIME_WAIT:    "TIME_WAIT",
	CLOSE_WAIT:   "CLOSE_WAIT",
	LAST_ACK:     "LAST_ACK",
	LISTEN:       "LISTEN",
	CLOSING:      "CLOSING",
}

func (s State) String() string {
	if name, ok := stateName[s]; ok {
		return name
	}
	return "UNKNOWN"
}
