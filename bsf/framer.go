package bsf

import (
	"errors"

	"github.com/Eyevinn/avdemux/av"
)

// errNeedMore is returned by a framer parse function when the header at hand
// is cut short and parsing must wait for the next Send.
var errNeedMore = errors.New("frame header continues in next packet")

// frameInfo is what a framing filter learns from one frame header.
type frameInfo struct {
	size       int
	headerLen  int
	samples    int
	sampleRate int
	// dependent frames belong to the preceding frame's access unit. They take
	// its PTS and have no duration of their own.
	dependent bool
}

// framer splits a byte stream of self-delimiting frames. Bytes of a frame that
// spans two Send calls are carried over to the next call.
type framer struct {
	base
	carry []byte
	// carryPTS is the PTS of the packet the carried frame started in.
	carryPTS int64
	nextPTS  int64
	lastPTS  int64
	// minHeader is the number of bytes needed to parse a header.
	minHeader int
	parse     func(b []byte) (frameInfo, error)
	// findSync, when set, enables resynchronisation after a bad header.
	findSync func(b []byte) int
	// emit turns a complete frame into zero or more output packets and returns
	// the duration they span.
	emit func(frame []byte, info frameInfo, props *av.Packet) (int64, error)
}

func (f *framer) Init(par *av.CodecParameters, tb av.Rational) error {
	f.nextPTS, f.lastPTS, f.carryPTS = av.NoPTS, av.NoPTS, av.NoPTS
	return f.base.Init(par, tb)
}

func (f *framer) Reset() {
	f.base.Reset()
	f.carry = nil
	f.nextPTS, f.lastPTS, f.carryPTS = av.NoPTS, av.NoPTS, av.NoPTS
}

func (f *framer) Send(pkt *av.Packet) error {
	if pkt == nil {
		// An incomplete trailing frame cannot be emitted.
		f.carry = nil
		f.carryPTS = av.NoPTS
		return nil
	}
	queued := f.out.len()
	startOff := len(f.carry)
	data := append(f.carry, pkt.Data...)
	carryPTS := f.carryPTS
	f.carry, f.carryPTS = nil, av.NoPTS
	pktPTSUsed := false
	sideDataUsed := false
	pos := 0
	for len(data)-pos >= f.minHeader {
		info, err := f.parse(data[pos:])
		if errors.Is(err, errNeedMore) {
			break
		}
		if err != nil {
			if f.findSync == nil || !errors.Is(err, av.ErrDataInvalid) {
				f.out.truncate(queued)
				return err
			}
			next := f.findSync(data[pos+1:])
			if next < 0 {
				pos = len(data) - (f.minHeader - 1)
				break
			}
			pos += 1 + next
			continue
		}
		if len(data)-pos < info.size {
			break
		}
		props := av.NewPacket()
		props.CopyProps(pkt)
		if sideDataUsed {
			props.SideData = nil
		}
		sideDataUsed = true
		props.Pos = -1
		pts := f.nextPTS
		switch {
		case info.dependent && f.lastPTS != av.NoPTS:
			pts = f.lastPTS
		case pos < startOff && carryPTS != av.NoPTS:
			pts = carryPTS
			carryPTS = av.NoPTS
		case pos >= startOff && !pktPTSUsed && pkt.PTS != av.NoPTS:
			pts = pkt.PTS
			pktPTSUsed = true
			if pkt.Pos >= 0 {
				props.Pos = pkt.Pos + int64(pos-startOff)
			}
		}
		props.PTS, props.DTS = pts, pts
		if info.sampleRate > 0 && !info.dependent {
			props.Duration = av.Rescale(int64(info.samples), av.Rational{Num: 1, Den: int64(info.sampleRate)}, f.tb)
		}
		props.Flags |= av.FlagKey
		frame := append([]byte(nil), data[pos:pos+info.size]...)
		span, err := f.emit(frame, info, props)
		if err != nil {
			f.out.truncate(queued)
			return err
		}
		if pts != av.NoPTS && !info.dependent {
			f.nextPTS = pts + span
			f.lastPTS = pts
		}
		pos += info.size
	}
	if pos < len(data) {
		f.carry = append([]byte(nil), data[pos:]...)
		switch {
		case pos < startOff:
			f.carryPTS = carryPTS
		case !pktPTSUsed:
			f.carryPTS = pkt.PTS
		}
	}
	return nil
}
