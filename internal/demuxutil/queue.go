package demuxutil

import "github.com/Eyevinn/avdemux/av"

// PacketQueue is the interval buffer of packets that are ready but not yet
// returned to the caller.
type PacketQueue struct {
	pkts []*av.Packet
}

func (q *PacketQueue) Push(p *av.Packet) {
	q.pkts = append(q.pkts, p)
}

func (q *PacketQueue) Pop() *av.Packet {
	if len(q.pkts) == 0 {
		return nil
	}
	p := q.pkts[0]
	q.pkts[0] = nil
	q.pkts = q.pkts[1:]
	return p
}

func (q *PacketQueue) Len() int {
	return len(q.pkts)
}

func (q *PacketQueue) Clear() {
	q.pkts = nil
}
