// Package opus handles the Opus access unit framing used in MPEG-TS and
// packet durations derived from the TOC byte.
package opus

import (
	"fmt"

	"github.com/Eyevinn/avdemux/av"
)

// SampleRate is the Opus timestamp rate.
const SampleRate = 48000

// ControlHeader is the header preceding each Opus access unit in MPEG-TS.
type ControlHeader struct {
	StartTrim int
	EndTrim   int
	// Extension holds the control extension bytes, if present.
	Extension []byte
	// AUSize is the length of the Opus packet following the header.
	AUSize int
	// Length is the size of the header itself.
	Length int
}

// IsControlHeader reports whether b starts with the 11-bit 0x3ff prefix.
func IsControlHeader(b []byte) bool {
	return len(b) >= 2 && b[0] == 0x7f && b[1]&0xe0 == 0xe0
}

// ParseControlHeader parses the header at the start of b. io-level truncation of
// the header is reported as av.ErrDataInvalid.
func ParseControlHeader(b []byte) (ControlHeader, error) {
	var h ControlHeader
	if !IsControlHeader(b) {
		return h, fmt.Errorf("opus control header prefix: %w", av.ErrDataInvalid)
	}
	startTrim := b[1]&0x10 != 0
	endTrim := b[1]&0x08 != 0
	ext := b[1]&0x04 != 0
	pos := 2
	for {
		if pos >= len(b) {
			return h, fmt.Errorf("opus au_size truncated: %w", av.ErrDataInvalid)
		}
		v := int(b[pos])
		pos++
		h.AUSize += v
		if v != 0xff {
			break
		}
	}
	if startTrim {
		if pos+2 > len(b) {
			return h, fmt.Errorf("opus start trim truncated: %w", av.ErrDataInvalid)
		}
		h.StartTrim = int(b[pos]&0x1f)<<8 | int(b[pos+1])
		pos += 2
	}
	if endTrim {
		if pos+2 > len(b) {
			return h, fmt.Errorf("opus end trim truncated: %w", av.ErrDataInvalid)
		}
		h.EndTrim = int(b[pos]&0x1f)<<8 | int(b[pos+1])
		pos += 2
	}
	if ext {
		if pos >= len(b) {
			return h, fmt.Errorf("opus control extension truncated: %w", av.ErrDataInvalid)
		}
		n := int(b[pos])
		pos++
		if pos+n > len(b) {
			return h, fmt.Errorf("opus control extension truncated: %w", av.ErrDataInvalid)
		}
		h.Extension = b[pos : pos+n]
		pos += n
	}
	h.Length = pos
	return h, nil
}

// Encode returns the control header for h.
func (h ControlHeader) Encode() []byte {
	b := []byte{0x7f, 0xe0}
	if h.StartTrim > 0 {
		b[1] |= 0x10
	}
	if h.EndTrim > 0 {
		b[1] |= 0x08
	}
	if len(h.Extension) > 0 {
		b[1] |= 0x04
	}
	n := h.AUSize
	for ; n >= 0xff; n -= 0xff {
		b = append(b, 0xff)
	}
	b = append(b, byte(n))
	if h.StartTrim > 0 {
		b = append(b, byte(h.StartTrim>>8)&0x1f, byte(h.StartTrim))
	}
	if h.EndTrim > 0 {
		b = append(b, byte(h.EndTrim>>8)&0x1f, byte(h.EndTrim))
	}
	if len(h.Extension) > 0 {
		b = append(b, byte(len(h.Extension)))
		b = append(b, h.Extension...)
	}
	return b
}

// frame durations in 48 kHz samples per TOC config
var frameSamples = [32]int{
	480, 960, 1920, 2880, 480, 960, 1920, 2880, 480, 960, 1920, 2880,
	480, 960, 480, 960,
	120, 240, 480, 960, 120, 240, 480, 960, 120, 240, 480, 960, 120, 240, 480, 960,
}

// PacketSamples returns the duration of an Opus packet in 48 kHz samples.
func PacketSamples(pkt []byte) (int, error) {
	if len(pkt) < 1 {
		return 0, fmt.Errorf("empty opus packet: %w", av.ErrDataInvalid)
	}
	toc := pkt[0]
	per := frameSamples[toc>>3]
	var frames int
	switch toc & 0x3 {
	case 0:
		frames = 1
	case 1, 2:
		frames = 2
	default:
		if len(pkt) < 2 {
			return 0, fmt.Errorf("opus code 3 packet without frame count: %w", av.ErrDataInvalid)
		}
		frames = int(pkt[1] & 0x3f)
	}
	return per * frames, nil
}
