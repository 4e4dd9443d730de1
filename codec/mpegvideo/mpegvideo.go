// Package mpegvideo inspects MPEG-1 and MPEG-2 video elementary streams.
package mpegvideo

import (
	"github.com/Eyevinn/avdemux/av"
)

const (
	PictureStartCode = 0x00
	SequenceHeader   = 0xb3
	ExtensionStart   = 0xb5
	SequenceEnd      = 0xb7
	GroupStartCode   = 0xb8
)

const (
	PictureI = 1
	PictureP = 2
	PictureB = 3
)

var frameRates = [9]av.Rational{
	{}, {Num: 24000, Den: 1001}, {Num: 24, Den: 1}, {Num: 25, Den: 1}, {Num: 30000, Den: 1001}, {Num: 30, Den: 1}, {Num: 50, Den: 1}, {Num: 60000, Den: 1001}, {Num: 60, Den: 1},
}

// FindStartCode returns the offset of the next 00 00 01 prefix at or after from, or -1.
func FindStartCode(b []byte, from int) int {
	for i := from; i+3 <= len(b); i++ {
		if b[i] == 0 && b[i+1] == 0 && b[i+2] == 1 {
			return i
		}
	}
	return -1
}

// FrameStarts returns the offsets at which a new coded picture begins. A picture
// begins at a sequence header or GOP header preceding its picture start code.
func FrameStarts(b []byte) []int {
	var starts []int
	pending := -1
	for i := FindStartCode(b, 0); i >= 0 && i+3 < len(b); i = FindStartCode(b, i+3) {
		switch code := b[i+3]; code {
		case SequenceHeader, GroupStartCode:
			if pending < 0 {
				pending = i
			}
		case PictureStartCode:
			if pending >= 0 {
				starts = append(starts, pending)
				pending = -1
			} else {
				starts = append(starts, i)
			}
		}
	}
	return starts
}

// PictureType returns the coding type of the first picture header in b, or 0.
func PictureType(b []byte) int {
	for i := FindStartCode(b, 0); i >= 0; i = FindStartCode(b, i+3) {
		if i+5 >= len(b) {
			return 0
		}
		if b[i+3] == PictureStartCode {
			return int(b[i+5]>>3) & 0x7
		}
	}
	return 0
}

// IsKeyframe reports whether the access unit carries a sequence header or an
// I-picture.
func IsKeyframe(b []byte) bool {
	for i := FindStartCode(b, 0); i >= 0 && i+3 < len(b); i = FindStartCode(b, i+3) {
		switch b[i+3] {
		case SequenceHeader:
			return true
		case PictureStartCode:
			return i+5 < len(b) && int(b[i+5]>>3)&0x7 == PictureI
		}
	}
	return false
}

// SequenceInfo holds the fields of a sequence header.
type SequenceInfo struct {
	Width     int
	Height    int
	FrameRate av.Rational
	BitRate   int
	MPEG2     bool
	// Header is the sequence header including quantiser matrices and a following
	// sequence extension, usable as extradata.
	Header []byte
}

// ParseSequenceHeader finds and parses the first sequence header in b.
func ParseSequenceHeader(b []byte) (SequenceInfo, bool) {
	var si SequenceInfo
	start := -1
	for i := FindStartCode(b, 0); i >= 0 && i+3 < len(b); i = FindStartCode(b, i+3) {
		if b[i+3] == SequenceHeader {
			start = i
			break
		}
	}
	if start < 0 || start+12 > len(b) {
		return si, false
	}
	h := b[start+4:]
	si.Width = int(h[0])<<4 | int(h[1]>>4)
	si.Height = int(h[1]&0x0f)<<8 | int(h[2])
	if fr := int(h[3] & 0x0f); fr < len(frameRates) {
		si.FrameRate = frameRates[fr]
	}
	si.BitRate = (int(h[4])<<10 | int(h[5])<<2 | int(h[6]>>6)) * 400
	end := FindStartCode(b, start+12)
	if end < 0 {
		end = len(b)
	}
	if end+5 <= len(b) && b[end+3] == ExtensionStart && b[end+4]>>4 == 1 {
		si.MPEG2 = true
		if next := FindStartCode(b, end+4); next >= 0 {
			end = next
		} else {
			end = len(b)
		}
	}
	si.Header = append([]byte(nil), b[start:end]...)
	return si, true
}

// CodecID guesses MPEG-1 or MPEG-2 from the presence of a sequence extension.
func (si SequenceInfo) CodecID() av.CodecID {
	if si.MPEG2 {
		return av.CodecMPEG2Video
	}
	return av.CodecMPEG1Video
}

func isIDR(data []byte, _ bool) bool {
	return IsKeyframe(data)
}

func parseCodecParameters(par *av.CodecParameters, extradata []byte) error {
	si, ok := ParseSequenceHeader(extradata)
	if !ok {
		return av.ErrDataInvalid
	}
	par.Width, par.Height, par.BitRate = si.Width, si.Height, si.BitRate
	return nil
}

func init() {
	c := &av.Capability{Name: "mpegvideo", IsIDR: isIDR, ParseCodecParameters: parseCodecParameters}
	av.RegisterCapability(av.CodecMPEG1Video, c)
	av.RegisterCapability(av.CodecMPEG2Video, c)
}
