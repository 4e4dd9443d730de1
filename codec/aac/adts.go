// Package aac parses and builds the AAC transport syntaxes ADTS and LATM/LOAS.
package aac

import (
	"bytes"
	"fmt"

	"github.com/Eyevinn/avdemux/av"
	"github.com/Eyevinn/mp4ff/bits"
)

const (
	ADTSHeaderLength = 7
	// SamplesPerFrame is the frame length of AAC-LC.
	SamplesPerFrame = 1024
	maxADTSFrameLen = 1<<13 - 1
)

// ADTSHeader is a parsed ADTS fixed+variable header.
type ADTSHeader struct {
	MPEG2            bool
	ProtectionAbsent bool
	// ObjectType is the MPEG-4 audio object type, i.e. ADTS profile + 1.
	ObjectType      byte
	SampleRateIndex byte
	SampleRate      int
	Channels        int
	FrameLength     int
	HeaderLength    int
	NumRawBlocks    int
}

// PayloadLength is the number of raw AAC bytes following the header.
func (h ADTSHeader) PayloadLength() int {
	return h.FrameLength - h.HeaderLength
}

// Samples returns the number of PCM samples in the frame.
func (h ADTSHeader) Samples() int {
	return SamplesPerFrame * (h.NumRawBlocks + 1)
}

// IsADTSSync reports whether b starts with an ADTS sync word and layer 0.
func IsADTSSync(b []byte) bool {
	return len(b) >= 2 && b[0] == 0xff && b[1]&0xf6 == 0xf0
}

// ParseADTSHeader parses the header at the start of b.
func ParseADTSHeader(b []byte) (ADTSHeader, error) {
	var h ADTSHeader
	if len(b) < ADTSHeaderLength {
		return h, fmt.Errorf("adts header needs %d bytes, got %d: %w", ADTSHeaderLength, len(b), av.ErrDataInvalid)
	}
	r := bits.NewReader(bytes.NewReader(b[:ADTSHeaderLength]))
	if sync := r.Read(12); sync != 0xfff {
		return h, fmt.Errorf("adts sync word %#x: %w", sync, av.ErrDataInvalid)
	}
	h.MPEG2 = r.Read(1) == 1
	if layer := r.Read(2); layer != 0 {
		return h, fmt.Errorf("adts layer %d: %w", layer, av.ErrDataInvalid)
	}
	h.ProtectionAbsent = r.Read(1) == 1
	h.ObjectType = byte(r.Read(2)) + 1
	h.SampleRateIndex = byte(r.Read(4))
	_ = r.Read(1) // private bit
	h.Channels = int(r.Read(3))
	_ = r.Read(4) // original/copy, home, copyright id bit and start
	h.FrameLength = int(r.Read(13))
	_ = r.Read(11) // buffer fullness
	h.NumRawBlocks = int(r.Read(2))
	if r.AccError() != nil {
		return h, fmt.Errorf("adts header: %w", av.ErrDataInvalid)
	}
	if int(h.SampleRateIndex) >= len(sampleRates) {
		return h, fmt.Errorf("adts sample rate index %d: %w", h.SampleRateIndex, av.ErrDataInvalid)
	}
	h.SampleRate = sampleRates[h.SampleRateIndex]
	h.HeaderLength = ADTSHeaderLength
	if !h.ProtectionAbsent {
		h.HeaderLength += 2
	}
	if h.FrameLength < h.HeaderLength {
		return h, fmt.Errorf("adts frame length %d: %w", h.FrameLength, av.ErrDataInvalid)
	}
	return h, nil
}

// NewADTSHeader creates a header without CRC for a payload of payloadLen bytes.
func NewADTSHeader(objectType byte, sampleRate, channels, payloadLen int) (ADTSHeader, error) {
	idx, ok := SampleRateIndex(sampleRate)
	if !ok {
		return ADTSHeader{}, fmt.Errorf("no adts sample rate index for %d Hz: %w", sampleRate, av.ErrCodecNotSupport)
	}
	if objectType < 1 || objectType > 4 {
		// ADTS can only signal the first four object types; HE-AAC is carried as LC.
		objectType = AOTAACLC
	}
	frameLen := ADTSHeaderLength + payloadLen
	if frameLen > maxADTSFrameLen {
		return ADTSHeader{}, fmt.Errorf("adts frame of %d bytes too large: %w", frameLen, av.ErrDataInvalid)
	}
	return ADTSHeader{
		ProtectionAbsent: true,
		ObjectType:       objectType,
		SampleRateIndex:  idx,
		SampleRate:       sampleRate,
		Channels:         channels,
		FrameLength:      frameLen,
		HeaderLength:     ADTSHeaderLength,
	}, nil
}

// Encode returns the 7-byte header. The CRC, if any, is not written.
func (h ADTSHeader) Encode() []byte {
	b := make([]byte, ADTSHeaderLength)
	b[0] = 0xff
	b[1] = 0xf1
	if h.MPEG2 {
		b[1] |= 0x08
	}
	if !h.ProtectionAbsent {
		b[1] &^= 0x01
	}
	b[2] = (h.ObjectType-1)<<6 | (h.SampleRateIndex&0x0f)<<2 | byte(h.Channels>>2)&0x01
	b[3] = byte(h.Channels&0x03)<<6 | byte(h.FrameLength>>11)&0x03
	b[4] = byte(h.FrameLength >> 3)
	b[5] = byte(h.FrameLength&0x07)<<5 | 0x1f
	b[6] = 0xfc | byte(h.NumRawBlocks&0x03)
	return b
}
