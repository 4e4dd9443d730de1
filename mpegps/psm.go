package mpegps

import (
	"encoding/binary"
	"fmt"

	"github.com/Eyevinn/avdemux/av"
	"github.com/Eyevinn/avdemux/mpegts"
	"github.com/Eyevinn/avdemux/pes"
)

// MapEntry is one elementary stream of a program stream map.
type MapEntry struct {
	StreamType  byte
	StreamID    byte
	Descriptors []mpegts.Descriptor
}

// StreamMap is a parsed program stream map.
type StreamMap struct {
	Version     byte
	CurrentNext bool
	Descriptors []mpegts.Descriptor
	Streams     []MapEntry
}

// Lookup returns the entry for a PES stream id.
func (m *StreamMap) Lookup(id byte) (MapEntry, bool) {
	if m == nil {
		return MapEntry{}, false
	}
	for _, e := range m.Streams {
		if e.StreamID == id {
			return e, true
		}
	}
	return MapEntry{}, false
}

// ParseStreamMap parses a complete program stream map PES, start code
// included. The CRC is not verified.
func ParseStreamMap(b []byte) (*StreamMap, error) {
	if len(b) < pes.FixedHeaderLength+4 || !pes.IsStartCode(b) || b[3] != pes.StreamIDProgramStreamMap {
		return nil, fmt.Errorf("not a program stream map: %w", av.ErrDataInvalid)
	}
	n := int(binary.BigEndian.Uint16(b[4:]))
	if pes.FixedHeaderLength+n > len(b) || n < 10 {
		return nil, fmt.Errorf("stream map length %d of %d: %w", n, len(b), av.ErrDataInvalid)
	}
	body := b[pes.FixedHeaderLength : pes.FixedHeaderLength+n-4]
	m := &StreamMap{
		CurrentNext: body[0]&0x80 != 0,
		Version:     body[0] & 0x1f,
	}
	body = body[2:]
	infoLen := int(binary.BigEndian.Uint16(body))
	body = body[2:]
	if infoLen+2 > len(body) {
		return nil, fmt.Errorf("stream map info length %d: %w", infoLen, av.ErrDataInvalid)
	}
	var err error
	if m.Descriptors, err = mpegts.ParseDescriptors(body[:infoLen]); err != nil {
		return nil, err
	}
	body = body[infoLen:]
	mapLen := int(binary.BigEndian.Uint16(body))
	body = body[2:]
	if mapLen > len(body) {
		return nil, fmt.Errorf("elementary stream map length %d: %w", mapLen, av.ErrDataInvalid)
	}
	body = body[:mapLen]
	for len(body) >= 4 {
		e := MapEntry{StreamType: body[0], StreamID: body[1]}
		esLen := int(binary.BigEndian.Uint16(body[2:]))
		body = body[4:]
		if esLen > len(body) {
			return nil, fmt.Errorf("es info length %d: %w", esLen, av.ErrDataInvalid)
		}
		if e.Descriptors, err = mpegts.ParseDescriptors(body[:esLen]); err != nil {
			return nil, err
		}
		body = body[esLen:]
		m.Streams = append(m.Streams, e)
	}
	return m, nil
}

// AppendStreamMap appends m as a program stream map PES including its CRC.
func AppendStreamMap(dst []byte, m *StreamMap) []byte {
	start := len(dst)
	dst = append(dst, 0x00, 0x00, 0x01, pes.StreamIDProgramStreamMap, 0, 0)
	flags := m.Version & 0x1f
	if m.CurrentNext {
		flags |= 0x80
	}
	dst = append(dst, flags|0x60, 0xff)
	dst = appendDescriptorLoop(dst, m.Descriptors)
	lenPos := len(dst)
	dst = append(dst, 0, 0)
	for _, e := range m.Streams {
		dst = append(dst, e.StreamType, e.StreamID)
		dst = appendDescriptorLoop(dst, e.Descriptors)
	}
	binary.BigEndian.PutUint16(dst[lenPos:], uint16(len(dst)-lenPos-2))
	binary.BigEndian.PutUint16(dst[start+4:], uint16(len(dst)-start-pes.FixedHeaderLength+4))
	crc := mpegts.CRC32(dst[start:])
	return binary.BigEndian.AppendUint32(dst, crc)
}

func appendDescriptorLoop(dst []byte, ds []mpegts.Descriptor) []byte {
	n := 0
	for _, d := range ds {
		n += 2 + len(d.Data)
	}
	dst = binary.BigEndian.AppendUint16(dst, uint16(n))
	for _, d := range ds {
		dst = append(dst, d.Tag, byte(len(d.Data)))
		dst = append(dst, d.Data...)
	}
	return dst
}

// codecForMap maps a stream map entry to a codec id.
func codecForMap(e MapEntry) av.CodecID {
	switch e.StreamType {
	case StreamTypeG711A:
		return av.CodecPCMAlaw
	case StreamTypeG711U:
		return av.CodecPCMMulaw
	}
	return mpegts.CodecForStream(e.StreamType, e.Descriptors)
}
