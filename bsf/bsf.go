// Package bsf implements bitstream filters that convert access units between a
// container's wire syntax and the raw form exchanged through av.Packet.
package bsf

import (
	"github.com/Eyevinn/avdemux/av"
)

// Filter is a stateful, per-stream converter. Send accepts one input packet and
// may queue any number of output packets, which Receive returns in FIFO order.
// Receive returns av.ErrEmpty when nothing is queued. Send(nil) signals end of
// stream and flushes what can be completed.
type Filter interface {
	Init(par *av.CodecParameters, tb av.Rational) error
	Send(pkt *av.Packet) error
	Receive() (*av.Packet, error)
	// Reset drops queued output and carried bytes, e.g. after a seek.
	Reset()
	Close()
}

// frameQueue is the owned output deque of a filter.
type frameQueue struct {
	items []*av.Packet
	head  int
}

func (q *frameQueue) push(p *av.Packet) {
	q.items = append(q.items, p)
}

func (q *frameQueue) pop() *av.Packet {
	if q.head >= len(q.items) {
		return nil
	}
	p := q.items[q.head]
	q.items[q.head] = nil
	q.head++
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	}
	return p
}

func (q *frameQueue) len() int {
	return len(q.items) - q.head
}

// truncate drops entries queued after the first n.
func (q *frameQueue) truncate(n int) {
	for i := q.head + n; i < len(q.items); i++ {
		q.items[i] = nil
	}
	if q.head+n < len(q.items) {
		q.items = q.items[:q.head+n]
	}
}

func (q *frameQueue) clear() {
	for i := range q.items {
		q.items[i] = nil
	}
	q.items = q.items[:0]
	q.head = 0
}

// base holds the parameters and output queue shared by all filters.
type base struct {
	par av.CodecParameters
	tb  av.Rational
	out frameQueue
}

func (b *base) Init(par *av.CodecParameters, tb av.Rational) error {
	if par != nil {
		b.par = par.Clone()
	}
	b.tb = tb
	return nil
}

func (b *base) Receive() (*av.Packet, error) {
	if p := b.out.pop(); p != nil {
		return p, nil
	}
	return nil, av.ErrEmpty
}

func (b *base) Reset() {
	b.out.clear()
}

func (b *base) Close() {
	b.out.clear()
}

// nullFilter passes packets through unchanged.
type nullFilter struct {
	base
}

func (f *nullFilter) Send(pkt *av.Packet) error {
	if pkt == nil {
		return nil
	}
	f.out.push(pkt)
	return nil
}
