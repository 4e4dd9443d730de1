package av

import (
	"fmt"
	"math"
)

// NoPTS marks an unknown timestamp.
const NoPTS int64 = math.MinInt64

type Flag uint32

const (
	FlagKey Flag = 1 << iota
	// FlagAnnexB is set when video data uses start codes instead of length prefixes.
	FlagAnnexB
	FlagDiscontinuity
	FlagCorrupt
)

type SideDataType int

const (
	SideDataNewExtradata SideDataType = iota + 1
	SideDataProducerReferenceTime
	SideDataSkipSamples
)

func (t SideDataType) String() string {
	switch t {
	case SideDataNewExtradata:
		return "NewExtradata"
	case SideDataProducerReferenceTime:
		return "ProducerReferenceTime"
	case SideDataSkipSamples:
		return "SkipSamples"
	default:
		return fmt.Sprintf("SideData(%d)", int(t))
	}
}

type SideData struct {
	Type SideDataType
	Data []byte
}

// Packet is one access unit. The caller owns a packet once it has been returned
// by a demuxer or a filter.
type Packet struct {
	Data        []byte
	PTS         int64
	DTS         int64
	Duration    int64
	Pos         int64
	StreamIndex int
	TimeBase    Rational
	Flags       Flag
	SideData    []SideData
}

// NewPacket returns an empty packet with unknown timestamps.
func NewPacket() *Packet {
	return &Packet{PTS: NoPTS, DTS: NoPTS, Pos: -1}
}

func (p *Packet) IsKey() bool {
	return p.Flags&FlagKey != 0
}

func (p *Packet) SetFlag(f Flag, on bool) {
	if on {
		p.Flags |= f
	} else {
		p.Flags &^= f
	}
}

// AddSideData attaches data of type t, replacing an existing entry of that type.
func (p *Packet) AddSideData(t SideDataType, data []byte) {
	for i := range p.SideData {
		if p.SideData[i].Type == t {
			p.SideData[i].Data = data
			return
		}
	}
	p.SideData = append(p.SideData, SideData{Type: t, Data: data})
}

func (p *Packet) SideDataOf(t SideDataType) ([]byte, bool) {
	for _, sd := range p.SideData {
		if sd.Type == t {
			return sd.Data, true
		}
	}
	return nil, false
}

// CopyProps copies everything but the payload from src.
func (p *Packet) CopyProps(src *Packet) {
	p.PTS = src.PTS
	p.DTS = src.DTS
	p.Duration = src.Duration
	p.Pos = src.Pos
	p.StreamIndex = src.StreamIndex
	p.TimeBase = src.TimeBase
	p.Flags = src.Flags
	p.SideData = nil
	for _, sd := range src.SideData {
		p.SideData = append(p.SideData, SideData{Type: sd.Type, Data: append([]byte(nil), sd.Data...)})
	}
}

func (p *Packet) Clone() *Packet {
	c := &Packet{}
	c.CopyProps(p)
	c.Data = append([]byte(nil), p.Data...)
	return c
}

func (p *Packet) Reset() {
	*p = Packet{Data: p.Data[:0], PTS: NoPTS, DTS: NoPTS, Pos: -1}
}

// DecodeTS returns DTS when known, otherwise PTS.
func (p *Packet) DecodeTS() int64 {
	if p.DTS != NoPTS {
		return p.DTS
	}
	return p.PTS
}

func (p *Packet) String() string {
	return fmt.Sprintf("stream=%d pts=%d dts=%d dur=%d size=%d key=%t", p.StreamIndex, p.PTS, p.DTS, p.Duration, len(p.Data), p.IsKey())
}
