package bsf

import (
	"encoding/binary"
	"fmt"

	"github.com/Eyevinn/avdemux/av"
	"github.com/Eyevinn/avdemux/codec/opus"
)

// SkipSamples side data layout: start and end trim as little endian uint32,
// followed by two reason bytes.
const skipSamplesSize = 10

// EncodeSkipSamples builds SkipSamples side data.
func EncodeSkipSamples(start, end int) []byte {
	b := make([]byte, skipSamplesSize)
	binary.LittleEndian.PutUint32(b[0:], uint32(start))
	binary.LittleEndian.PutUint32(b[4:], uint32(end))
	return b
}

// DecodeSkipSamples parses SkipSamples side data.
func DecodeSkipSamples(b []byte) (start, end int, ok bool) {
	if len(b) < 8 {
		return 0, 0, false
	}
	return int(binary.LittleEndian.Uint32(b[0:])), int(binary.LittleEndian.Uint32(b[4:])), true
}

// OpusTSToRaw removes the Opus control headers of MPEG-TS access units. A PES
// payload may carry several of them, and an access unit may continue in the
// next payload. Trims become SkipSamples side data.
type OpusTSToRaw struct {
	framer
}

// opusMinHeader is the prefix plus one au_size byte.
const opusMinHeader = 3

func NewOpusTSToRaw() *OpusTSToRaw {
	f := &OpusTSToRaw{}
	f.minHeader = opusMinHeader
	f.parse = func(b []byte) (frameInfo, error) {
		if !opus.IsControlHeader(b) {
			return frameInfo{}, fmt.Errorf("opus control header prefix: %w", av.ErrDataInvalid)
		}
		h, err := opus.ParseControlHeader(b)
		if err != nil {
			// only truncation fails once the prefix matched
			return frameInfo{}, errNeedMore
		}
		return frameInfo{size: h.Length + h.AUSize, headerLen: h.Length}, nil
	}
	f.emit = f.emitFrame
	return f
}

func (f *OpusTSToRaw) emitFrame(frame []byte, info frameInfo, props *av.Packet) (int64, error) {
	h, err := opus.ParseControlHeader(frame)
	if err != nil {
		return 0, err
	}
	au := frame[info.headerLen:]
	samples, err := opus.PacketSamples(au)
	if err != nil {
		return 0, err
	}
	props.Duration = av.Rescale(int64(samples), av.Rational{Num: 1, Den: opus.SampleRate}, f.tb)
	props.Data = au
	if h.StartTrim > 0 || h.EndTrim > 0 {
		props.AddSideData(av.SideDataSkipSamples, EncodeSkipSamples(h.StartTrim, h.EndTrim))
	}
	f.out.push(props)
	return props.Duration, nil
}

// OpusRawToTS prepends the MPEG-TS control header to each Opus packet.
type OpusRawToTS struct {
	base
}

func (f *OpusRawToTS) Send(pkt *av.Packet) error {
	if pkt == nil {
		return nil
	}
	h := opus.ControlHeader{AUSize: len(pkt.Data)}
	if sd, ok := pkt.SideDataOf(av.SideDataSkipSamples); ok {
		h.StartTrim, h.EndTrim, _ = DecodeSkipSamples(sd)
	}
	out := av.NewPacket()
	out.CopyProps(pkt)
	out.Data = append(h.Encode(), pkt.Data...)
	f.out.push(out)
	return nil
}
