package av

import "sync"

// Pool hands out packets. Demuxers fall back to plain allocation without one.
type Pool interface {
	Alloc() *Packet
	Release(p *Packet)
}

type packetPool struct {
	p sync.Pool
}

func NewPacketPool() Pool {
	return &packetPool{p: sync.Pool{New: func() any { return NewPacket() }}}
}

func (pp *packetPool) Alloc() *Packet {
	p := pp.p.Get().(*Packet)
	p.Reset()
	return p
}

func (pp *packetPool) Release(p *Packet) {
	if p == nil {
		return
	}
	pp.p.Put(p)
}

// Alloc takes a packet from pool, or allocates one when pool is nil.
func Alloc(pool Pool) *Packet {
	if pool == nil {
		return NewPacket()
	}
	return pool.Alloc()
}
