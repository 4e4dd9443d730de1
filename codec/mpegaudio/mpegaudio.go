// Package mpegaudio parses MPEG-1, MPEG-2 and MPEG-2.5 audio frame headers.
package mpegaudio

import (
	"encoding/binary"
	"fmt"

	"github.com/Eyevinn/avdemux/av"
)

const HeaderLength = 4

type Header struct {
	// Version is 1 for MPEG-1, 2 for MPEG-2 and 3 for MPEG-2.5.
	Version    int
	Layer      int
	SampleRate int
	Channels   int
	BitRate    int
	FrameSize  int
	Samples    int
}

// CodecID maps the layer to MP1, MP2 or MP3.
func (h Header) CodecID() av.CodecID {
	switch h.Layer {
	case 1:
		return av.CodecMP1
	case 2:
		return av.CodecMP2
	default:
		return av.CodecMP3
	}
}

var sampleRates = [3]int{44100, 48000, 32000}

// bit rates in kbit/s indexed by [lsf][layer-1][index]
var bitRates = [2][3][15]int{
	{
		{0, 32, 64, 96, 128, 160, 192, 224, 256, 288, 320, 352, 384, 416, 448},
		{0, 32, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 384},
		{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320},
	},
	{
		{0, 32, 48, 56, 64, 80, 96, 112, 128, 144, 160, 176, 192, 224, 256},
		{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160},
		{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160},
	},
}

// IsSync reports whether b starts with an 11-bit frame sync.
func IsSync(b []byte) bool {
	return len(b) >= 2 && b[0] == 0xff && b[1]&0xe0 == 0xe0
}

// ParseHeader parses the 4-byte frame header at the start of b. Free format
// streams are rejected.
func ParseHeader(b []byte) (Header, error) {
	var h Header
	if len(b) < HeaderLength {
		return h, fmt.Errorf("mpeg audio header needs %d bytes: %w", HeaderLength, av.ErrDataInvalid)
	}
	v := binary.BigEndian.Uint32(b)
	if v&0xffe00000 != 0xffe00000 {
		return h, fmt.Errorf("mpeg audio sync %08x: %w", v, av.ErrDataInvalid)
	}
	versionBits := (v >> 19) & 0x3
	layerBits := (v >> 17) & 0x3
	bitrateIdx := (v >> 12) & 0xf
	srIdx := (v >> 10) & 0x3
	padding := int((v >> 9) & 0x1)
	mode := (v >> 6) & 0x3
	if versionBits == 1 || layerBits == 0 || bitrateIdx == 0 || bitrateIdx == 15 || srIdx == 3 {
		return h, fmt.Errorf("mpeg audio header %08x: %w", v, av.ErrDataInvalid)
	}
	lsf := 0
	switch versionBits {
	case 3:
		h.Version = 1
	case 2:
		h.Version = 2
		lsf = 1
	case 0:
		h.Version = 3
		lsf = 1
	}
	h.Layer = 4 - int(layerBits)
	h.SampleRate = sampleRates[srIdx] >> uint(h.Version-1)
	h.BitRate = bitRates[lsf][h.Layer-1][bitrateIdx] * 1000
	h.Channels = 2
	if mode == 3 {
		h.Channels = 1
	}
	switch h.Layer {
	case 1:
		h.Samples = 384
		h.FrameSize = (12*h.BitRate/h.SampleRate + padding) * 4
	case 2:
		h.Samples = 1152
		h.FrameSize = 144*h.BitRate/h.SampleRate + padding
	default:
		if lsf == 1 {
			h.Samples = 576
			h.FrameSize = 72*h.BitRate/h.SampleRate + padding
		} else {
			h.Samples = 1152
			h.FrameSize = 144*h.BitRate/h.SampleRate + padding
		}
	}
	return h, nil
}
