package rtsp

import (
	"testing"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/require"
)

func rtpPacket(seq uint16, ts uint32, marker bool, payload ...byte) *rtp.Packet {
	return &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			Marker:         marker,
			SequenceNumber: seq,
			Timestamp:      ts,
		},
		Payload: payload,
	}
}

type wantFrame struct {
	ts      uint32
	seqs    []uint16
	corrupt bool
}

func frameSummary(f RTPFrame) wantFrame {
	w := wantFrame{ts: f.Timestamp, corrupt: f.Corrupt}
	for _, p := range f.Packets {
		w.seqs = append(w.seqs, p.SequenceNumber)
	}
	return w
}

func TestJitterQueue(t *testing.T) {
	cases := []struct {
		name  string
		depth int
		in    []*rtp.Packet
		flush bool
		want  []wantFrame
		late  int
		lost  int
	}{
		{
			name: "in order",
			in:   []*rtp.Packet{rtpPacket(1, 100, true), rtpPacket(2, 200, false), rtpPacket(3, 200, true)},
			want: []wantFrame{{ts: 100, seqs: []uint16{1}}, {ts: 200, seqs: []uint16{2, 3}}},
		},
		{
			name: "reordered",
			in:   []*rtp.Packet{rtpPacket(10, 100, false), rtpPacket(12, 200, true), rtpPacket(11, 100, true)},
			want: []wantFrame{{ts: 100, seqs: []uint16{10, 11}}, {ts: 200, seqs: []uint16{12}}},
		},
		{
			name: "sequence wrap",
			in:   []*rtp.Packet{rtpPacket(65534, 1, true), rtpPacket(0, 3, true), rtpPacket(65535, 2, true)},
			want: []wantFrame{{ts: 1, seqs: []uint16{65534}}, {ts: 2, seqs: []uint16{65535}}, {ts: 3, seqs: []uint16{0}}},
		},
		{
			name: "late and duplicate",
			in: []*rtp.Packet{
				rtpPacket(5, 10, true), rtpPacket(7, 30, true), rtpPacket(7, 30, true),
				rtpPacket(6, 20, true), rtpPacket(5, 10, true),
			},
			want: []wantFrame{{ts: 10, seqs: []uint16{5}}, {ts: 20, seqs: []uint16{6}}, {ts: 30, seqs: []uint16{7}}},
			late: 1,
		},
		{
			name:  "gap over depth",
			depth: 2,
			in:    []*rtp.Packet{rtpPacket(1, 10, false), rtpPacket(3, 10, false), rtpPacket(4, 20, true), rtpPacket(5, 30, true)},
			want: []wantFrame{
				{ts: 10, seqs: []uint16{1, 3}, corrupt: true},
				{ts: 20, seqs: []uint16{4}},
				{ts: 30, seqs: []uint16{5}},
			},
			lost: 1,
		},
		{
			name:  "timestamp change ends frame",
			in:    []*rtp.Packet{rtpPacket(1, 10, false), rtpPacket(2, 20, false)},
			flush: true,
			want:  []wantFrame{{ts: 10, seqs: []uint16{1}}, {ts: 20, seqs: []uint16{2}}},
		},
		{
			name:  "flush skips gap",
			in:    []*rtp.Packet{rtpPacket(1, 10, true), rtpPacket(3, 30, true)},
			flush: true,
			want:  []wantFrame{{ts: 10, seqs: []uint16{1}}, {ts: 30, seqs: []uint16{3}, corrupt: true}},
			lost:  1,
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			q := NewJitterQueue(c.depth)
			var got []wantFrame
			drain := func() {
				for q.HasFrame() {
					got = append(got, frameSummary(q.Frame()))
				}
			}
			for _, p := range c.in {
				q.Push(p)
				drain()
			}
			if c.flush {
				q.Flush()
				drain()
			}
			require.Equal(t, c.want, got)
			require.Equal(t, c.late, q.Late)
			require.Equal(t, c.lost, q.Lost)
		})
	}
}

func TestJitterQueueReset(t *testing.T) {
	q := NewJitterQueue(0)
	q.Push(rtpPacket(100, 1, false))
	q.Push(rtpPacket(102, 1, false))
	q.Reset()
	require.False(t, q.HasFrame())

	q.Push(rtpPacket(7, 5, true))
	require.True(t, q.HasFrame())
	require.Equal(t, wantFrame{ts: 5, seqs: []uint16{7}}, frameSummary(q.Frame()))
}
