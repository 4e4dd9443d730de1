// Package pes parses and writes PES packet headers in the MPEG-1 and MPEG-2
// (ISO/IEC 13818-1) forms. It is shared by the TS and PS demuxers and the TS
// muxer.
package pes

import (
	"fmt"
	"io"

	"github.com/Eyevinn/avdemux/av"
)

// Stream ids
const (
	StreamIDProgramStreamMap = 0xbc
	StreamIDPrivate1         = 0xbd
	StreamIDPadding          = 0xbe
	StreamIDPrivate2         = 0xbf
	StreamIDAudioFirst       = 0xc0
	StreamIDAudioLast        = 0xdf
	StreamIDVideoFirst       = 0xe0
	StreamIDVideoLast        = 0xef
	StreamIDECM              = 0xf0
	StreamIDEMM              = 0xf1
	StreamIDDSMCC            = 0xf2
	StreamIDH2221TypeE       = 0xf8
	StreamIDMetadata         = 0xfc
	StreamIDExtended         = 0xfd
	StreamIDDirectory        = 0xff
)

const (
	// StartCodeLength is the packet_start_code_prefix plus stream_id.
	StartCodeLength = 4
	// FixedHeaderLength covers start code, stream id and PES_packet_length.
	FixedHeaderLength = 6
	timestampLength   = 5
	maxStuffing       = 16
	// MaxTimestamp is the 33-bit PTS/DTS wrap value.
	MaxTimestamp = 1 << 33
)

// Header is a parsed PES header.
type Header struct {
	StreamID byte
	// PacketLength is PES_packet_length; 0 means unbounded (TS video only).
	PacketLength int
	// HeaderLength is the offset of the payload from the start code.
	HeaderLength int
	MPEG2        bool
	// DataAlignment is data_alignment_indicator (MPEG-2 only).
	DataAlignment bool
	PTS           int64
	DTS           int64
}

// PayloadLength returns the number of payload bytes the header declares, or -1
// when the packet is unbounded.
func (h Header) PayloadLength() int {
	if h.PacketLength == 0 {
		return -1
	}
	return FixedHeaderLength + h.PacketLength - h.HeaderLength
}

// HasOptionalHeader reports whether a PES with stream id id carries the optional
// header with flags and timestamps.
func HasOptionalHeader(id byte) bool {
	switch id {
	case StreamIDProgramStreamMap, StreamIDPadding, StreamIDPrivate2, StreamIDECM,
		StreamIDEMM, StreamIDDSMCC, StreamIDH2221TypeE, StreamIDDirectory:
		return false
	}
	return true
}

func IsAudio(id byte) bool {
	return id >= StreamIDAudioFirst && id <= StreamIDAudioLast
}

func IsVideo(id byte) bool {
	return id >= StreamIDVideoFirst && id <= StreamIDVideoLast
}

// IsStartCode reports whether b starts with 00 00 01.
func IsStartCode(b []byte) bool {
	return len(b) >= 3 && b[0] == 0 && b[1] == 0 && b[2] == 1
}

// ParseHeader parses the header at the start of b, which must begin with the
// packet start code. A malformed header yields av.ErrDataInvalid.
func ParseHeader(b []byte) (Header, error) {
	h := Header{PTS: av.NoPTS, DTS: av.NoPTS}
	if len(b) < FixedHeaderLength {
		return h, fmt.Errorf("pes header needs %d bytes, got %d: %w", FixedHeaderLength, len(b), av.ErrDataInvalid)
	}
	if !IsStartCode(b) {
		return h, fmt.Errorf("pes start code %02x%02x%02x: %w", b[0], b[1], b[2], av.ErrDataInvalid)
	}
	h.StreamID = b[3]
	h.PacketLength = int(b[4])<<8 | int(b[5])
	h.HeaderLength = FixedHeaderLength
	if !HasOptionalHeader(h.StreamID) {
		return h, nil
	}
	var err error
	if len(b) > FixedHeaderLength && b[FixedHeaderLength]&0xc0 == 0x80 {
		err = parseMPEG2(b, &h)
	} else {
		err = parseMPEG1(b, &h)
	}
	if err != nil {
		return h, err
	}
	if h.PacketLength != 0 && h.HeaderLength > FixedHeaderLength+h.PacketLength {
		return h, fmt.Errorf("pes header length %d exceeds packet length %d: %w", h.HeaderLength, h.PacketLength, av.ErrDataInvalid)
	}
	return h, nil
}

func parseMPEG2(b []byte, h *Header) error {
	h.MPEG2 = true
	if len(b) < FixedHeaderLength+3 {
		return fmt.Errorf("mpeg2 pes header truncated: %w", av.ErrDataInvalid)
	}
	flags1, flags2, dataLen := b[6], b[7], int(b[8])
	h.DataAlignment = flags1&0x04 != 0
	h.HeaderLength = FixedHeaderLength + 3 + dataLen
	if len(b) < h.HeaderLength {
		return fmt.Errorf("pes header data length %d beyond %d bytes: %w", dataLen, len(b), av.ErrDataInvalid)
	}
	opt := b[9:h.HeaderLength]
	switch flags2 >> 6 {
	case 2:
		if len(opt) < timestampLength {
			return fmt.Errorf("pes PTS truncated: %w", av.ErrDataInvalid)
		}
		h.PTS = DecodeTimestamp(opt)
		h.DTS = h.PTS
	case 3:
		if len(opt) < 2*timestampLength {
			return fmt.Errorf("pes PTS/DTS truncated: %w", av.ErrDataInvalid)
		}
		h.PTS = DecodeTimestamp(opt)
		h.DTS = DecodeTimestamp(opt[timestampLength:])
	case 1:
		return fmt.Errorf("pes PTS_DTS_flags forbidden value: %w", av.ErrDataInvalid)
	}
	return nil
}

func parseMPEG1(b []byte, h *Header) error {
	pos := FixedHeaderLength
	for i := 0; pos < len(b) && b[pos] == 0xff; i++ {
		if i == maxStuffing {
			return fmt.Errorf("mpeg1 pes stuffing exceeds %d bytes: %w", maxStuffing, av.ErrDataInvalid)
		}
		pos++
	}
	if pos >= len(b) {
		return fmt.Errorf("mpeg1 pes header truncated: %w", av.ErrDataInvalid)
	}
	if b[pos]&0xc0 == 0x40 {
		// STD_buffer_scale and size
		pos += 2
		if pos >= len(b) {
			return fmt.Errorf("mpeg1 pes header truncated: %w", av.ErrDataInvalid)
		}
	}
	switch b[pos] >> 4 {
	case 0x2:
		if pos+timestampLength > len(b) {
			return fmt.Errorf("mpeg1 pes PTS truncated: %w", av.ErrDataInvalid)
		}
		h.PTS = DecodeTimestamp(b[pos:])
		h.DTS = h.PTS
		pos += timestampLength
	case 0x3:
		if pos+2*timestampLength > len(b) {
			return fmt.Errorf("mpeg1 pes PTS/DTS truncated: %w", av.ErrDataInvalid)
		}
		h.PTS = DecodeTimestamp(b[pos:])
		h.DTS = DecodeTimestamp(b[pos+timestampLength:])
		pos += 2 * timestampLength
	default:
		if b[pos] != 0x0f {
			return fmt.Errorf("mpeg1 pes header byte %02x: %w", b[pos], av.ErrDataInvalid)
		}
		pos++
	}
	h.HeaderLength = pos
	return nil
}

// DecodeTimestamp decodes a 33-bit PTS or DTS from its 5-byte marker coded form.
// Marker bits are not checked.
func DecodeTimestamp(b []byte) int64 {
	return int64(b[0]>>1&0x07)<<30 |
		int64(b[1])<<22 | int64(b[2]>>1)<<15 |
		int64(b[3])<<7 | int64(b[4]>>1)
}

// EncodeTimestamp writes ts into dst[:5] with the 4-bit prefix (0x2 for PTS
// only, 0x3 for PTS followed by DTS, 0x1 for that DTS).
func EncodeTimestamp(dst []byte, prefix byte, ts int64) {
	ts &= MaxTimestamp - 1
	dst[0] = prefix<<4 | byte(ts>>29)&0x0e | 0x01
	dst[1] = byte(ts >> 22)
	dst[2] = byte(ts>>14)&0xfe | 0x01
	dst[3] = byte(ts >> 7)
	dst[4] = byte(ts<<1)&0xfe | 0x01
}

// AppendHeader appends an MPEG-2 PES header for a payload of payloadLen bytes.
// PTS and DTS are written when known; DTS only when it differs from PTS. A
// payloadLen that does not fit PES_packet_length is written as 0 (unbounded),
// which is only valid for video in a transport stream.
func AppendHeader(dst []byte, streamID byte, pts, dts int64, payloadLen int, dataAlignment bool) []byte {
	flags1 := byte(0x80)
	if dataAlignment {
		flags1 |= 0x04
	}
	var flags2 byte
	var opt []byte
	switch {
	case pts == av.NoPTS:
	case dts == av.NoPTS || dts == pts:
		flags2 = 0x80
		opt = make([]byte, timestampLength)
		EncodeTimestamp(opt, 0x2, pts)
	default:
		flags2 = 0xc0
		opt = make([]byte, 2*timestampLength)
		EncodeTimestamp(opt, 0x3, pts)
		EncodeTimestamp(opt[timestampLength:], 0x1, dts)
	}
	pktLen := 3 + len(opt) + payloadLen
	if pktLen > 0xffff {
		pktLen = 0
	}
	dst = append(dst, 0x00, 0x00, 0x01, streamID, byte(pktLen>>8), byte(pktLen), flags1, flags2, byte(len(opt)))
	return append(dst, opt...)
}

// HeaderSize returns the size AppendHeader writes for the given timestamps.
func HeaderSize(pts, dts int64) int {
	switch {
	case pts == av.NoPTS:
		return FixedHeaderLength + 3
	case dts == av.NoPTS || dts == pts:
		return FixedHeaderLength + 3 + timestampLength
	default:
		return FixedHeaderLength + 3 + 2*timestampLength
	}
}

// WriteHeader writes an MPEG-2 PES header to w.
func WriteHeader(w io.Writer, streamID byte, pts, dts int64, payloadLen int, dataAlignment bool) error {
	_, err := w.Write(AppendHeader(nil, streamID, pts, dts, payloadLen, dataAlignment))
	return err
}
