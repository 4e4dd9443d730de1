package mpegts

import (
	"fmt"

	"github.com/Eyevinn/avdemux/av"
)

// NoPCR marks an absent PCR or OPCR.
const NoPCR int64 = -1

// AdaptationField holds the fields of a TS adaptation field. PCR and OPCR are in
// 27 MHz units.
type AdaptationField struct {
	// Length is adaptation_field_length, not counting the length byte.
	Length        int
	Discontinuity bool
	RandomAccess  bool
	ESPriority    bool
	PCR           int64
	OPCR          int64
}

// Packet is one parsed 188-byte transport packet. Payload aliases the input.
type Packet struct {
	TEI              bool
	PayloadUnitStart bool
	Priority         bool
	PID              uint16
	Scrambling       byte
	HasAdaptation    bool
	HasPayload       bool
	CC               byte
	Adaptation       AdaptationField
	Payload          []byte
}

// NewPacketHeader returns the header of a packet on pid without PCR or OPCR,
// ready for AppendPacket.
func NewPacketHeader(pid uint16, cc byte) *Packet {
	return &Packet{PID: pid, CC: cc, Adaptation: AdaptationField{PCR: NoPCR, OPCR: NoPCR}}
}

// AdaptationSize is the number of bytes taken by the adaptation field including
// its length byte, 0 when there is none.
func (p *Packet) AdaptationSize() int {
	if !p.HasAdaptation {
		return 0
	}
	return 1 + p.Adaptation.Length
}

// ParsePacket parses a 188-byte packet.
func ParsePacket(b []byte) (*Packet, error) {
	if len(b) < PacketSize {
		return nil, fmt.Errorf("ts packet of %d bytes: %w", len(b), av.ErrDataInvalid)
	}
	if b[0] != SyncByte {
		return nil, fmt.Errorf("ts sync byte %#02x: %w", b[0], av.ErrDataInvalid)
	}
	p := &Packet{
		TEI:              b[1]&0x80 != 0,
		PayloadUnitStart: b[1]&0x40 != 0,
		Priority:         b[1]&0x20 != 0,
		PID:              uint16(b[1]&0x1f)<<8 | uint16(b[2]),
		Scrambling:       b[3] >> 6,
		HasAdaptation:    b[3]&0x20 != 0,
		HasPayload:       b[3]&0x10 != 0,
		CC:               b[3] & 0x0f,
	}
	p.Adaptation.PCR, p.Adaptation.OPCR = NoPCR, NoPCR
	pos := headerLength
	if p.HasAdaptation {
		afLen := int(b[pos])
		limit := maxPayload - 1
		if p.HasPayload {
			limit--
		}
		if afLen > limit {
			return p, fmt.Errorf("adaptation field length %d on pid %d: %w", afLen, p.PID, av.ErrDataInvalid)
		}
		if err := parseAdaptation(b[pos+1:pos+1+afLen], &p.Adaptation); err != nil {
			return p, fmt.Errorf("pid %d: %w", p.PID, err)
		}
		p.Adaptation.Length = afLen
		pos += 1 + afLen
	}
	if p.HasPayload {
		p.Payload = b[pos:PacketSize]
	}
	return p, nil
}

func parseAdaptation(b []byte, af *AdaptationField) error {
	if len(b) == 0 {
		return nil
	}
	flags := b[0]
	af.Discontinuity = flags&0x80 != 0
	af.RandomAccess = flags&0x40 != 0
	af.ESPriority = flags&0x20 != 0
	pos := 1
	if flags&0x10 != 0 {
		if pos+6 > len(b) {
			return fmt.Errorf("truncated PCR: %w", av.ErrDataInvalid)
		}
		af.PCR = decodePCR(b[pos:])
		pos += 6
	}
	if flags&0x08 != 0 {
		if pos+6 > len(b) {
			return fmt.Errorf("truncated OPCR: %w", av.ErrDataInvalid)
		}
		af.OPCR = decodePCR(b[pos:])
	}
	return nil
}

func decodePCR(b []byte) int64 {
	base := int64(b[0])<<25 | int64(b[1])<<17 | int64(b[2])<<9 | int64(b[3])<<1 | int64(b[4]>>7)
	ext := int64(b[4]&0x01)<<8 | int64(b[5])
	return base*300 + ext
}

func appendPCR(dst []byte, pcr int64) []byte {
	base, ext := pcr/300, pcr%300
	return append(dst,
		byte(base>>25), byte(base>>17), byte(base>>9), byte(base>>1),
		byte(base<<7)|0x7e|byte(ext>>8), byte(ext))
}

// AppendPacket appends one 188-byte packet carrying as much of payload as fits
// and returns the number of payload bytes used. The adaptation field is written
// when p.HasAdaptation is set or any of its fields need it, and is padded with
// stuffing so that the packet length stays fixed.
func AppendPacket(dst []byte, p *Packet, payload []byte) ([]byte, int) {
	af := p.Adaptation
	var body []byte
	needAF := p.HasAdaptation || af.Discontinuity || af.RandomAccess || af.ESPriority ||
		af.PCR >= 0 || af.OPCR >= 0
	if needAF {
		var flags byte
		if af.Discontinuity {
			flags |= 0x80
		}
		if af.RandomAccess {
			flags |= 0x40
		}
		if af.ESPriority {
			flags |= 0x20
		}
		if af.PCR >= 0 {
			flags |= 0x10
		}
		if af.OPCR >= 0 {
			flags |= 0x08
		}
		body = append(body, flags)
		if af.PCR >= 0 {
			body = appendPCR(body, af.PCR)
		}
		if af.OPCR >= 0 {
			body = appendPCR(body, af.OPCR)
		}
	}
	afSize := 0
	if needAF {
		afSize = 1 + len(body)
	}
	n := len(payload)
	if avail := maxPayload - afSize; n > avail {
		n = avail
	}
	if stuffing := maxPayload - afSize - n; stuffing > 0 {
		switch {
		case needAF:
			for i := 0; i < stuffing; i++ {
				body = append(body, 0xff)
			}
		case stuffing == 1:
			needAF = true
		default:
			needAF = true
			body = append(body, 0x00)
			for i := 0; i < stuffing-2; i++ {
				body = append(body, 0xff)
			}
		}
	}
	b1 := byte(p.PID>>8) & 0x1f
	if p.TEI {
		b1 |= 0x80
	}
	if p.PayloadUnitStart {
		b1 |= 0x40
	}
	if p.Priority {
		b1 |= 0x20
	}
	b3 := p.Scrambling<<6 | p.CC&0x0f
	if needAF {
		b3 |= 0x20
	}
	if n > 0 {
		b3 |= 0x10
	}
	dst = append(dst, SyncByte, b1, byte(p.PID), b3)
	if needAF {
		dst = append(dst, byte(len(body)))
		dst = append(dst, body...)
	}
	return append(dst, payload[:n]...), n
}
