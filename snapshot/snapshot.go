// Package snapshot turns a tcpstate.Conn's periodic GetInfo snapshot
// into a flat, CSV-exportable Row, and writes a run's worth of rows out
// with gocarina/gocsv — the simulator's counterpart to tcp-info's
// snapshot+csvtool pipeline, scaled down from an unbounded archival
// stream of real kernel polls to one row per (time, connection) sample
// taken over the course of a single run.
package snapshot

import (
	"fmt"
	"io"

	"github.com/gocarina/gocsv"

	"github.com/m-lab/netsim/tcpstate"
)

// Row is one CSV record: a connection identity, its simulated-time
// sample time, and the get_info-shaped fields spec.md §6 names for the
// descriptor I/O surface.
type Row struct {
	SampleTimeNs int64  `csv:"sample_time_ns"`
	ConnID       string `csv:"conn_id"`
	Host         uint32 `csv:"host"`
	PeerHost     uint32 `csv:"peer_host"`
	LocalIP      string `csv:"local_ip"`
	LocalPort    uint16 `csv:"local_port"`
	PeerIP       string `csv:"peer_ip"`
	PeerPort     uint16 `csv:"peer_port"`

	State          string  `csv:"state"`
	SndMSS         uint32  `csv:"snd_mss"`
	RcvMSS         uint32  `csv:"rcv_mss"`
	Unacked        uint32  `csv:"unacked"`
	Retransmits    uint32  `csv:"retransmits"`
	LastDataSentUs int64   `csv:"last_data_sent_us"`
	LastAckSentUs  int64   `csv:"last_ack_sent_us"`
	LastDataRecvUs int64   `csv:"last_data_recv_us"`
	LastAckRecvUs  int64   `csv:"last_ack_recv_us"`
	PMTU           uint32  `csv:"pmtu"`
	RTT            float64 `csv:"rtt_us"`
	RTTVar         float64 `csv:"rttvar_us"`
	SndSSThresh    uint32  `csv:"snd_ssthresh"`
	SndCwnd        uint32  `csv:"snd_cwnd"`
	AdvMSS         uint32  `csv:"advmss"`
	RcvRTT         float64 `csv:"rcv_rtt_us"`
	RcvSpace       uint32  `csv:"rcv_space"`
	TotalRetrans   uint64  `csv:"total_retrans"`
}

func ipString(ip [4]byte) string {
	return fmt.Sprintf("%d.%d.%d.%d", ip[0], ip[1], ip[2], ip[3])
}

// FromConn builds a Row from c's current GetInfo snapshot, tagged with
// sampleTimeNs (typically the scheduler's simulated "now" for c's host
// at the moment of sampling).
func FromConn(c *tcpstate.Conn, sampleTimeNs int64) Row {
	info := c.GetInfo()
	localIP, localPort := c.LocalAddr()
	peerIP, peerPort := c.PeerAddr()
	return Row{
		SampleTimeNs: sampleTimeNs,
		ConnID:       c.ID().String(),
		Host:         uint32(c.Host()),
		PeerHost:     uint32(c.PeerHost()),
		LocalIP:      ipString(localIP),
		LocalPort:    localPort,
		PeerIP:       ipString(peerIP),
		PeerPort:     peerPort,

		State:          info.State.String(),
		SndMSS:         info.SndMSS,
		RcvMSS:         info.RcvMSS,
		Unacked:        info.Unacked,
		Retransmits:    info.Retransmits,
		LastDataSentUs: info.LastDataSentUs,
		LastAckSentUs:  info.LastAckSentUs,
		LastDataRecvUs: info.LastDataRecvUs,
		LastAckRecvUs:  info.LastAckRecvUs,
		PMTU:           info.PMTU,
		RTT:            info.RTT,
		RTTVar:         info.RTTVar,
		SndSSThresh:    info.SndSSThresh,
		SndCwnd:        info.SndCwnd,
		AdvMSS:         info.AdvMSS,
		RcvRTT:         info.RcvRTT,
		RcvSpace:       info.RcvSpace,
		TotalRetrans:   info.TotalRetrans,
	}
}

// Writer accumulates Rows across a run and flushes them as CSV.
type Writer struct {
	rows []Row
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer { return &Writer{} }

// Add appends row to the accumulated set.
func (w *Writer) Add(row Row) { w.rows = append(w.rows, row) }

// Sample is a convenience for Add(FromConn(c, sampleTimeNs)).
func (w *Writer) Sample(c *tcpstate.Conn, sampleTimeNs int64) {
	w.Add(FromConn(c, sampleTimeNs))
}

// Len returns the number of rows accumulated so far.
func (w *Writer) Len() int { return len(w.rows) }

// WriteTo marshals every accumulated row to out as CSV, header first,
// mirroring cmd/csvtool's gocsv.Marshal call.
func (w *Writer) WriteTo(out io.Writer) error {
	return gocsv.Marshal(w.rows, out)
}

// Marshal is a package-level convenience for writing a fixed slice of
// rows without going through a Writer, for callers that already have
// every row (e.g. a test asserting on a single snapshot).
func Marshal(rows []Row, out io.Writer) error {
	return gocsv.Marshal(rows, out)
}
