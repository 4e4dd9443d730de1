// Package ac3 parses AC-3 and E-AC-3 sync frame headers.
package ac3

import (
	"bytes"
	"fmt"

	"github.com/Eyevinn/avdemux/av"
	"github.com/Eyevinn/mp4ff/bits"
)

const (
	HeaderLength    = 7
	SamplesPerFrame = 1536
)

// Header describes one sync frame.
type Header struct {
	EAC3 bool
	// Dependent is set for E-AC-3 dependent substreams, which extend the
	// preceding independent frame.
	Dependent  bool
	SampleRate int
	Channels   int
	BitRate    int
	FrameSize  int
	Samples    int
	BSID       int
}

var sampleRates = [3]int{48000, 44100, 32000}

var bitRates = [19]int{32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 384, 448, 512, 576, 640}

// channels per acmod, LFE excluded
var acmodChannels = [8]int{2, 1, 2, 3, 3, 4, 4, 5}

var eac3Blocks = [4]int{1, 2, 3, 6}

// frame size in 16-bit words for 44.1 kHz, for odd frmsizecod the extra word
var frameSizes441 = [19]int{69, 87, 104, 121, 139, 174, 208, 243, 278, 348, 417, 487, 557, 696, 835, 975, 1114, 1253, 1393}

// IsSync reports whether b starts with the 0x0B77 sync word.
func IsSync(b []byte) bool {
	return len(b) >= 2 && b[0] == 0x0b && b[1] == 0x77
}

// ParseHeader parses the sync frame header at the start of b.
func ParseHeader(b []byte) (Header, error) {
	var h Header
	if len(b) < HeaderLength {
		return h, fmt.Errorf("ac3 header needs %d bytes: %w", HeaderLength, av.ErrDataInvalid)
	}
	if !IsSync(b) {
		return h, fmt.Errorf("ac3 sync %02x%02x: %w", b[0], b[1], av.ErrDataInvalid)
	}
	bsid := int(b[5] >> 3)
	h.BSID = bsid
	switch {
	case bsid <= 10:
		return parseAC3(b, h)
	case bsid > 10 && bsid <= 16:
		h.EAC3 = true
		return parseEAC3(b, h)
	default:
		return h, fmt.Errorf("ac3 bsid %d: %w", bsid, av.ErrDataInvalid)
	}
}

func parseAC3(b []byte, h Header) (Header, error) {
	r := bits.NewReader(bytes.NewReader(b[2:]))
	_ = r.Read(16) // crc1
	fscod := int(r.Read(2))
	frmsizecod := int(r.Read(6))
	_ = r.Read(5) // bsid
	_ = r.Read(3) // bsmod
	acmod := int(r.Read(3))
	if fscod == 3 || frmsizecod > 37 {
		return h, fmt.Errorf("ac3 fscod %d frmsizecod %d: %w", fscod, frmsizecod, av.ErrDataInvalid)
	}
	if acmod&0x1 != 0 && acmod != 0x1 {
		_ = r.Read(2) // cmixlev
	}
	if acmod&0x4 != 0 {
		_ = r.Read(2) // surmixlev
	}
	if acmod == 0x2 {
		_ = r.Read(2) // dsurmod
	}
	lfe := int(r.Read(1))
	h.SampleRate = sampleRates[fscod]
	h.BitRate = bitRates[frmsizecod>>1] * 1000
	switch fscod {
	case 0:
		h.FrameSize = 4 * bitRates[frmsizecod>>1]
	case 1:
		h.FrameSize = (frameSizes441[frmsizecod>>1] + frmsizecod&1) * 2
	case 2:
		h.FrameSize = 6 * bitRates[frmsizecod>>1]
	}
	h.Channels = acmodChannels[acmod] + lfe
	h.Samples = SamplesPerFrame
	return h, nil
}

func parseEAC3(b []byte, h Header) (Header, error) {
	r := bits.NewReader(bytes.NewReader(b[2:]))
	strmtyp := r.Read(2)
	if strmtyp == 3 {
		return h, fmt.Errorf("eac3 stream type 3: %w", av.ErrDataInvalid)
	}
	h.Dependent = strmtyp == 1
	_ = r.Read(3) // substreamid
	frmsiz := int(r.Read(11))
	fscod := int(r.Read(2))
	numblkscod := 3
	if fscod == 3 {
		fscod2 := int(r.Read(2))
		if fscod2 == 3 {
			return h, fmt.Errorf("eac3 fscod2: %w", av.ErrDataInvalid)
		}
		h.SampleRate = sampleRates[fscod2] / 2
	} else {
		numblkscod = int(r.Read(2))
		h.SampleRate = sampleRates[fscod]
	}
	acmod := int(r.Read(3))
	lfe := int(r.Read(1))
	h.FrameSize = (frmsiz + 1) * 2
	h.Samples = 256 * eac3Blocks[numblkscod]
	h.Channels = acmodChannels[acmod] + lfe
	h.BitRate = h.FrameSize * 8 * h.SampleRate / h.Samples
	return h, nil
}
