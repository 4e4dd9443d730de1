// Package dts parses DTS core frame headers in the 16-bit big endian form.
package dts

import (
	"bytes"
	"fmt"

	"github.com/Eyevinn/avdemux/av"
	"github.com/Eyevinn/mp4ff/bits"
)

const (
	HeaderLength = 11
	minFrameSize = 96
)

var syncWord = []byte{0x7f, 0xfe, 0x80, 0x01}

type Header struct {
	SampleRate int
	Channels   int
	BitRate    int
	FrameSize  int
	Samples    int
}

var sampleRates = [16]int{0, 8000, 16000, 32000, 0, 0, 11025, 22050, 44100, 0, 0, 12000, 24000, 48000, 0, 0}

var amodeChannels = [16]int{1, 2, 2, 2, 2, 3, 3, 4, 4, 5, 6, 6, 6, 7, 8, 8}

var bitRates = [32]int{
	32000, 56000, 64000, 96000, 112000, 128000, 192000, 224000,
	256000, 320000, 384000, 448000, 512000, 576000, 640000, 768000,
	960000, 1024000, 1152000, 1280000, 1344000, 1408000, 1411200, 1472000,
	1536000, 0, 0, 0, 0, 0, 0, 0,
}

func IsSync(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], syncWord)
}

// FindSync returns the offset of the first sync word in b, or -1.
func FindSync(b []byte) int {
	return bytes.Index(b, syncWord)
}

// ParseHeader parses the core header at the start of b.
func ParseHeader(b []byte) (Header, error) {
	var h Header
	if len(b) < HeaderLength {
		return h, fmt.Errorf("dts header needs %d bytes: %w", HeaderLength, av.ErrDataInvalid)
	}
	if !IsSync(b) {
		return h, fmt.Errorf("dts sync: %w", av.ErrDataInvalid)
	}
	r := bits.NewReader(bytes.NewReader(b[4:HeaderLength]))
	_ = r.Read(1) // frame type
	_ = r.Read(5) // deficit sample count
	_ = r.Read(1) // crc present
	nblks := int(r.Read(7))
	fsize := int(r.Read(14))
	amode := int(r.Read(6))
	sfreq := int(r.Read(4))
	rate := int(r.Read(5))
	_ = r.Read(1 + 1 + 1 + 1 + 1 + 3 + 1 + 1) // mix, dynf, timef, auxf, hdcd, ext id, ext, aspf
	lff := int(r.Read(2))
	if r.AccError() != nil {
		return h, fmt.Errorf("dts header: %w", av.ErrDataInvalid)
	}
	h.FrameSize = fsize + 1
	if h.FrameSize < minFrameSize || nblks < 5 {
		return h, fmt.Errorf("dts frame size %d blocks %d: %w", h.FrameSize, nblks+1, av.ErrDataInvalid)
	}
	h.SampleRate = sampleRates[sfreq]
	if h.SampleRate == 0 {
		return h, fmt.Errorf("dts sfreq %d: %w", sfreq, av.ErrDataInvalid)
	}
	h.Samples = (nblks + 1) * 32
	if amode < len(amodeChannels) {
		h.Channels = amodeChannels[amode]
	} else {
		h.Channels = 2
	}
	if lff != 0 {
		h.Channels++
	}
	h.BitRate = bitRates[rate]
	return h, nil
}
