package rtsp

import (
	"github.com/pion/rtp"
)

// DefaultJitterDepth is the number of out of order packets held before a
// missing packet is given up.
const DefaultJitterDepth = 64

// RTPFrame is the run of packets sharing one RTP timestamp.
type RTPFrame struct {
	Timestamp uint32
	Packets   []*rtp.Packet
	// Corrupt is set when packets of the frame were lost.
	Corrupt bool
}

// JitterQueue puts RTP packets back into sequence order and groups them into
// frames. A frame is complete when a packet has the marker bit set or the next
// packet in sequence carries a different timestamp.
type JitterQueue struct {
	depth   int
	started bool
	// next is the sequence number expected next
	next    uint16
	pending []*rtp.Packet
	cur     RTPFrame
	ready   []RTPFrame
	// Late counts packets dropped for arriving after their slot was released.
	Late int
	// Lost counts sequence numbers given up.
	Lost int
}

func NewJitterQueue(depth int) *JitterQueue {
	if depth <= 0 {
		depth = DefaultJitterDepth
	}
	return &JitterQueue{depth: depth}
}

// seqDiff is a-b in sequence space, correct across the 16-bit wrap.
func seqDiff(a, b uint16) int {
	return int(int16(a - b))
}

// Push adds a packet. Duplicates and packets older than the release point are
// dropped.
func (q *JitterQueue) Push(p *rtp.Packet) {
	if !q.started {
		q.started = true
		q.next = p.SequenceNumber
	}
	d := seqDiff(p.SequenceNumber, q.next)
	if d < 0 {
		q.Late++
		return
	}
	i := len(q.pending)
	for i > 0 && seqDiff(q.pending[i-1].SequenceNumber, p.SequenceNumber) > 0 {
		i--
	}
	if i > 0 && q.pending[i-1].SequenceNumber == p.SequenceNumber {
		return
	}
	q.pending = append(q.pending, nil)
	copy(q.pending[i+1:], q.pending[i:])
	q.pending[i] = p
	q.release()
	for len(q.pending) > q.depth {
		q.skipGap()
		q.release()
	}
}

// release moves in-sequence packets into frames.
func (q *JitterQueue) release() {
	for len(q.pending) > 0 && q.pending[0].SequenceNumber == q.next {
		p := q.pending[0]
		q.pending = q.pending[1:]
		q.next++
		q.add(p)
	}
}

func (q *JitterQueue) add(p *rtp.Packet) {
	if len(q.cur.Packets) > 0 && p.Timestamp != q.cur.Timestamp {
		q.finish()
	}
	if len(q.cur.Packets) == 0 {
		q.cur.Timestamp = p.Timestamp
	}
	q.cur.Packets = append(q.cur.Packets, p)
	if p.Marker {
		q.finish()
	}
}

func (q *JitterQueue) finish() {
	if len(q.cur.Packets) > 0 {
		q.ready = append(q.ready, q.cur)
	}
	q.cur = RTPFrame{}
}

// skipGap gives up the sequence numbers before the oldest held packet. A
// frame interrupted by the gap is marked corrupt.
func (q *JitterQueue) skipGap() {
	if len(q.pending) == 0 {
		return
	}
	first := q.pending[0]
	q.Lost += seqDiff(first.SequenceNumber, q.next)
	if len(q.cur.Packets) > 0 {
		q.cur.Corrupt = true
		if first.Timestamp != q.cur.Timestamp {
			q.finish()
		}
	} else if len(q.ready) == 0 || q.ready[len(q.ready)-1].Timestamp != first.Timestamp {
		q.cur.Corrupt = true
	}
	q.next = first.SequenceNumber
}

func (q *JitterQueue) HasFrame() bool {
	return len(q.ready) > 0
}

// Frame pops the oldest complete frame. It must only be called when HasFrame
// reports true.
func (q *JitterQueue) Frame() RTPFrame {
	f := q.ready[0]
	q.ready = q.ready[1:]
	return f
}

// Flush releases everything held, skipping gaps, including an unterminated
// last frame.
func (q *JitterQueue) Flush() {
	for len(q.pending) > 0 {
		q.skipGap()
		q.release()
	}
	q.finish()
}

// Reset drops all state.
func (q *JitterQueue) Reset() {
	*q = JitterQueue{depth: q.depth, Late: q.Late, Lost: q.Lost}
}
