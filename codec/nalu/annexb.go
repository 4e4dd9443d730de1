// Package nalu converts between Annex-B and length-prefixed (AVCC) NAL unit
// streams and provides the H.264, HEVC and VVC capability records.
package nalu

import (
	"encoding/binary"
	"fmt"

	"github.com/Eyevinn/avdemux/av"
	"github.com/Eyevinn/mp4ff/avc"
)

var startCode = []byte{0, 0, 0, 1}

// IsAnnexB reports whether b starts with a 3 or 4 byte start code.
func IsAnnexB(b []byte) bool {
	if len(b) >= 3 && b[0] == 0 && b[1] == 0 && b[2] == 1 {
		return true
	}
	return len(b) >= 4 && b[0] == 0 && b[1] == 0 && b[2] == 0 && b[3] == 1
}

// SplitAnnexB returns the NAL units of a start-code prefixed stream.
func SplitAnnexB(b []byte) [][]byte {
	return avc.ExtractNalusFromByteStream(b)
}

// JoinAnnexB writes nalus with 4-byte start codes.
func JoinAnnexB(nalus [][]byte) []byte {
	size := 0
	for _, n := range nalus {
		size += 4 + len(n)
	}
	out := make([]byte, 0, size)
	for _, n := range nalus {
		out = append(out, startCode...)
		out = append(out, n...)
	}
	return out
}

// SplitAVCC returns the NAL units of a length-prefixed sample.
func SplitAVCC(b []byte, lengthSize int) ([][]byte, error) {
	if lengthSize < 1 || lengthSize > 4 {
		return nil, fmt.Errorf("nalu length size %d: %w", lengthSize, av.ErrDataInvalid)
	}
	var nalus [][]byte
	for pos := 0; pos < len(b); {
		if pos+lengthSize > len(b) {
			return nil, fmt.Errorf("truncated nalu length at %d: %w", pos, av.ErrDataInvalid)
		}
		n := 0
		for i := 0; i < lengthSize; i++ {
			n = n<<8 | int(b[pos+i])
		}
		pos += lengthSize
		if n > len(b)-pos {
			return nil, fmt.Errorf("nalu length %d exceeds sample at %d: %w", n, pos, av.ErrDataInvalid)
		}
		nalus = append(nalus, b[pos:pos+n])
		pos += n
	}
	return nalus, nil
}

// JoinAVCC writes nalus with 4-byte length prefixes.
func JoinAVCC(nalus [][]byte) []byte {
	size := 0
	for _, n := range nalus {
		size += 4 + len(n)
	}
	out := make([]byte, size)
	pos := 0
	for _, n := range nalus {
		binary.BigEndian.PutUint32(out[pos:], uint32(len(n)))
		copy(out[pos+4:], n)
		pos += 4 + len(n)
	}
	return out
}

// RemoveEmulationPrevention strips 0x03 bytes following two zero bytes.
func RemoveEmulationPrevention(b []byte) []byte {
	out := make([]byte, 0, len(b))
	zeros := 0
	for _, c := range b {
		if zeros >= 2 && c == 3 {
			zeros = 0
			continue
		}
		if c == 0 {
			zeros++
		} else {
			zeros = 0
		}
		out = append(out, c)
	}
	return out
}

// Split returns the NAL units of data in either form.
func Split(data []byte, annexB bool, lengthSize int) ([][]byte, error) {
	if annexB || IsAnnexB(data) {
		return SplitAnnexB(data), nil
	}
	return SplitAVCC(data, lengthSize)
}

// LengthSize returns the NALU length field size signalled in a decoder
// configuration record, defaulting to 4.
func LengthSize(id av.CodecID, extradata []byte) int {
	switch {
	case len(extradata) == 0 || IsAnnexB(extradata):
		return 4
	case id == av.CodecH264 && len(extradata) >= 5:
		return int(extradata[4]&0x3) + 1
	case id == av.CodecHEVC && len(extradata) >= 22:
		return int(extradata[21]&0x3) + 1
	case id == av.CodecVVC && len(extradata) >= 1:
		return int(extradata[0]>>1&0x3) + 1
	}
	return 4
}
