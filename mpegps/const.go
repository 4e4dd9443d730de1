// Package mpegps reads MPEG-2 program streams (ISO/IEC 13818-1 section 2.5) and
// MPEG-1 system streams. There is no fixed packet size: the reader synchronises
// on the 00 00 01 start code prefix and walks pack headers, system headers,
// stream maps and PES packets.
package mpegps

// Start codes following the 00 00 01 prefix.
const (
	StartCodeEnd          = 0xb9
	StartCodePack         = 0xba
	StartCodeSystemHeader = 0xbb
)

// Stream types seen in GB28181 stream maps that are not assigned by ISO/IEC
// 13818-1.
const (
	StreamTypeG711A = 0x90
	StreamTypeG711U = 0x91
)

const (
	// packHeaderLength is the fixed part of an MPEG-2 pack header before
	// pack_stuffing_length is applied.
	packHeaderLength      = 14
	mpeg1PackHeaderLength = 12
	prefixLength          = 3
)

// Private stream 1 substream id ranges (DVD-Video).
const (
	subStreamSubpictureFirst = 0x20
	subStreamSubpictureLast  = 0x3f
	subStreamAC3First        = 0x80
	subStreamAC3Last         = 0x87
	subStreamDTSFirst        = 0x88
	subStreamDTSLast         = 0x8f
	subStreamLPCMFirst       = 0xa0
	subStreamLPCMLast        = 0xaf
)

// privateStreamID combines private stream 1 and a substream id into one stream
// id, keeping the ids of plain PES streams below 0x100.
func privateStreamID(sub byte) int {
	return 0xbd<<8 | int(sub)
}

var lpcmSampleRates = [4]int{48000, 96000, 44100, 32000}
