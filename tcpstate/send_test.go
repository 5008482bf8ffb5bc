package tcpstate

import (
	"bytes"
	"testing"

	"github.com/m-lab/netsim/descriptor"
)

// TestSmallTransfer drives a 4096-byte write across a fresh connection and
// checks every byte arrives in order, with nothing left outstanding and
// nothing lost along the way.
func TestSmallTransfer(t *testing.T) {
	h, client, listener := twoHosts(5, 512)
	child := handshake(h, client, listener)

	payload := bytes.Repeat([]byte("x"), 4096)
	for i := range payload {
		payload[i] = byte(i % 251)
	}
	n, err := client.SendUserData(payload)
	if err != nil {
		t.Fatalf("SendUserData: %v", err)
	}
	if n != len(payload) {
		t.Fatalf("SendUserData accepted %d bytes, want %d", n, len(payload))
	}

	h.advanceTo(h.now + 500*int64(msInNanos))

	if info := client.GetInfo(); info.Unacked != 0 {
		t.Fatalf("client.GetInfo().Unacked = %d, want 0", info.Unacked)
	}
	if info := client.GetInfo(); info.TotalRetrans != 0 {
		t.Fatalf("client.GetInfo().TotalRetrans = %d, want 0 (nothing should have been lost)", info.TotalRetrans)
	}

	got := make([]byte, len(payload))
	var total int
	for total < len(payload) {
		n, err := child.ReadUserData(got[total:])
		if err != nil {
			t.Fatalf("ReadUserData: %v", err)
		}
		if n == 0 {
			t.Fatalf("ReadUserData returned 0 bytes with %d/%d delivered so far", total, len(payload))
		}
		total += n
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("delivered payload does not match what was sent")
	}
}

// TestSendBufferExhaustion checks a write larger than the send buffer is
// clamped rather than blocking or erroring, and that a second write once
// the buffer is genuinely full reports ErrWouldBlock.
func TestSendBufferExhaustion(t *testing.T) {
	h, client, listener := twoHosts(50, 512)
	handshake(h, client, listener)

	huge := make([]byte, 100_000)
	n, err := client.SendUserData(huge)
	if err != nil {
		t.Fatalf("SendUserData: %v", err)
	}
	if n == 0 || n > len(huge) {
		t.Fatalf("SendUserData accepted %d bytes, want a clamped positive amount", n)
	}
	if client.sendBufferSpace() != 0 {
		t.Fatalf("sendBufferSpace() = %d right after filling the buffer, want 0", client.sendBufferSpace())
	}

	if _, err := client.SendUserData([]byte("more")); err != ErrWouldBlock {
		t.Fatalf("SendUserData on a full buffer: got %v, want ErrWouldBlock", err)
	}
}

// TestCloseWithPendingData checks Close queues the FIN behind any data
// still in flight: the automaton moves to FIN_WAIT_1 immediately, but the
// FIN itself only goes out — and the peer only sees CLOSE_WAIT — once
// every byte ahead of it has actually been delivered.
func TestCloseWithPendingData(t *testing.T) {
	h, client, listener := twoHosts(5, 512)
	child := handshake(h, client, listener)

	payload := make([]byte, 4096)
	if _, err := client.SendUserData(payload); err != nil {
		t.Fatalf("SendUserData: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := client.State(); got != FIN_WAIT_1 {
		t.Fatalf("client state right after Close() = %v, want FIN_WAIT_1", got)
	}

	h.advanceTo(h.now + 500*int64(msInNanos))

	if got := client.State(); got != FIN_WAIT_2 {
		t.Fatalf("client state once its FIN is acked = %v, want FIN_WAIT_2", got)
	}
	if got := child.State(); got != CLOSE_WAIT {
		t.Fatalf("child state once it has consumed the FIN = %v, want CLOSE_WAIT", got)
	}
	if !child.recvEOFSignaled {
		t.Fatalf("child.recvEOFSignaled should be true once the FIN is consumed")
	}
	if total := len(drainAll(t, child, len(payload))); total != len(payload) {
		t.Fatalf("child received %d bytes before its FIN, want %d", total, len(payload))
	}
}

func drainAll(t *testing.T, c *Conn, want int) []byte {
	t.Helper()
	out := make([]byte, 0, want)
	buf := make([]byte, want)
	for len(out) < want {
		n, err := c.ReadUserData(buf)
		if err != nil {
			t.Fatalf("ReadUserData: %v", err)
		}
		if n == 0 {
			break
		}
		out = append(out, buf[:n]...)
	}
	return out
}

// TestFullClose drives both sides through a full close and checks the
// passive side ends up CLOSED immediately on its final ack, while the
// active side holds TIME_WAIT for the configured duration before
// finalizing.
func TestFullClose(t *testing.T) {
	h, client, listener := twoHosts(5, 512)
	child := handshake(h, client, listener)

	if err := client.Close(); err != nil {
		t.Fatalf("client.Close: %v", err)
	}
	h.advanceTo(h.now + 20*int64(msInNanos))
	if got := child.State(); got != CLOSE_WAIT {
		t.Fatalf("child state after client's FIN = %v, want CLOSE_WAIT", got)
	}
	if err := child.Close(); err != nil {
		t.Fatalf("child.Close: %v", err)
	}
	h.advanceTo(h.now + 20*int64(msInNanos))

	if got := child.State(); got != CLOSED {
		t.Fatalf("child state after its FIN is acked = %v, want CLOSED", got)
	}
	if child.desc.Status() != descriptor.Closed {
		t.Fatalf("child descriptor status = %v, want exactly Closed", child.desc.Status())
	}
	if got := client.State(); got != TIME_WAIT {
		t.Fatalf("client state right after acking the child's FIN = %v, want TIME_WAIT", got)
	}

	h.advanceTo(h.now + timeWaitDuration + int64(msInNanos))
	if got := client.State(); got != CLOSED {
		t.Fatalf("client state after the TIME_WAIT hold = %v, want CLOSED", got)
	}
	if client.desc.Status() != descriptor.Closed {
		t.Fatalf("client descriptor status = %v, want exactly Closed", client.desc.Status())
	}
}

// TestListenerWaitsForChildren checks a listening socket whose Close is
// called while a spawned child is still open doesn't mark its descriptor
// Closed right away: it waits until that child finalizes too, per the
// server-destroyed-only-after-its-children rule.
func TestListenerWaitsForChildren(t *testing.T) {
	h, client, listener := twoHosts(5, 512)
	child := handshake(h, client, listener)

	if err := listener.Close(); err != nil {
		t.Fatalf("listener.Close: %v", err)
	}
	if got := listener.State(); got != CLOSED {
		t.Fatalf("listener state right after Close = %v, want CLOSED", got)
	}
	if listener.desc.Status() == descriptor.Closed {
		t.Fatalf("listener descriptor marked Closed while a child is still open")
	}
	if !listener.server.closing {
		t.Fatalf("listener.server.closing = false, want true once Close is called with live children")
	}

	// Drive the data connection itself through a full close: client
	// initiates, child (the passive side) finishes on its final ack,
	// which is what removes it from the listener's child table.
	if err := client.Close(); err != nil {
		t.Fatalf("client.Close: %v", err)
	}
	h.advanceTo(h.now + 20*int64(msInNanos))
	if err := child.Close(); err != nil {
		t.Fatalf("child.Close: %v", err)
	}
	h.advanceTo(h.now + 20*int64(msInNanos))

	if child.desc.Status() != descriptor.Closed {
		t.Fatalf("child descriptor status = %v, want exactly Closed", child.desc.Status())
	}
	if listener.desc.Status() != descriptor.Closed {
		t.Fatalf("listener descriptor status = %v, want exactly Closed once its last child finalized", listener.desc.Status())
	}
}
