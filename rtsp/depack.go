package rtsp

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/Eyevinn/mp4ff/bits"
	"github.com/pion/rtp/codecs"

	"github.com/Eyevinn/avdemux/av"
)

// Unit is one access unit, or for MPEG audio and AC-3 a run of frames, taken
// from an RTP frame.
type Unit struct {
	Data      []byte
	Key       bool
	Timestamp uint32
}

// Depacketizer turns the payloads of one RTP frame into units.
type Depacketizer interface {
	Depacketize(f RTPFrame) ([]Unit, error)
}

// NewDepacketizer returns the depacketizer for the codec of m.
func NewDepacketizer(m Media) (Depacketizer, error) {
	switch m.Codec {
	case av.CodecH264:
		return &h264Depacketizer{caps: av.LookupCapability(av.CodecH264)}, nil
	case av.CodecHEVC:
		return &h265Depacketizer{caps: av.LookupCapability(av.CodecHEVC)}, nil
	case av.CodecAAC:
		if m.SizeLength <= 0 {
			return nil, fmt.Errorf("aac without AU size length: %w", av.ErrCodecNotSupport)
		}
		return &aacDepacketizer{sizeLength: m.SizeLength, indexLength: m.IndexLength, deltaLength: m.IndexDeltaLength}, nil
	case av.CodecMP3:
		return &headerDepacketizer{header: 4}, nil
	case av.CodecAC3, av.CodecEAC3:
		return &headerDepacketizer{header: 2}, nil
	case av.CodecOpus:
		return &opusDepacketizer{}, nil
	case av.CodecPCMAlaw, av.CodecPCMMulaw:
		return &rawDepacketizer{}, nil
	}
	return nil, fmt.Errorf("rtp payload %q: %w", m.Encoding, av.ErrCodecNotSupport)
}

func invalid(codec string, err error) error {
	return fmt.Errorf("%s rtp payload: %v: %w", codec, err, av.ErrDataInvalid)
}

// h264Depacketizer uses the pion depacketizer, which emits Annex-B.
type h264Depacketizer struct {
	caps *av.Capability
}

func (d *h264Depacketizer) Depacketize(f RTPFrame) ([]Unit, error) {
	// FU-A fragments never cross frames
	var p codecs.H264Packet
	var au []byte
	for _, pkt := range f.Packets {
		b, err := p.Unmarshal(pkt.Payload)
		if err != nil {
			return nil, invalid("h264", err)
		}
		au = append(au, b...)
	}
	if len(au) == 0 {
		return nil, nil
	}
	return []Unit{{Data: au, Key: d.caps.IsIDR(au, true), Timestamp: f.Timestamp}}, nil
}

var startCode = []byte{0, 0, 0, 1}

// h265Depacketizer reassembles RFC 7798 single, aggregation and fragmentation
// packets into Annex-B.
type h265Depacketizer struct {
	caps *av.Capability
}

func (d *h265Depacketizer) Depacketize(f RTPFrame) ([]Unit, error) {
	var au, frag []byte
	for _, pkt := range f.Packets {
		var p codecs.H265Packet
		if _, err := p.Unmarshal(pkt.Payload); err != nil {
			return nil, invalid("h265", err)
		}
		switch v := p.Packet().(type) {
		case *codecs.H265SingleNALUnitPacket:
			h := v.PayloadHeader()
			au = append(au, startCode...)
			au = append(au, byte(h>>8), byte(h))
			au = append(au, v.Payload()...)
		case *codecs.H265AggregationPacket:
			if u := v.FirstUnit(); u != nil {
				au = append(append(au, startCode...), u.NalUnit()...)
			}
			for _, u := range v.OtherUnits() {
				au = append(append(au, startCode...), u.NalUnit()...)
			}
		case *codecs.H265FragmentationUnitPacket:
			fu := v.FuHeader()
			if fu.S() {
				h := v.PayloadHeader()
				frag = []byte{byte(h>>8)&0x81 | fu.FuType()<<1, byte(h)}
			}
			if frag == nil {
				// start fragment lost
				continue
			}
			frag = append(frag, v.Payload()...)
			if fu.E() {
				au = append(append(au, startCode...), frag...)
				frag = nil
			}
		}
	}
	if len(au) == 0 {
		return nil, nil
	}
	return []Unit{{Data: au, Key: d.caps.IsIDR(au, true), Timestamp: f.Timestamp}}, nil
}

// aacDepacketizer reads RFC 3640 AU headers (AAC-hbr and AAC-lbr). An AU
// larger than one packet is fragmented over the packets of a frame.
type aacDepacketizer struct {
	sizeLength  int
	indexLength int
	deltaLength int
}

const aacFrameSamples = 1024

func (d *aacDepacketizer) Depacketize(f RTPFrame) ([]Unit, error) {
	var units []Unit
	var frag []byte
	fragSize := 0
	for _, pkt := range f.Packets {
		b := pkt.Payload
		if len(b) < 2 {
			return nil, invalid("aac", fmt.Errorf("payload of %d bytes", len(b)))
		}
		headerBits := int(binary.BigEndian.Uint16(b))
		headerBytes := (headerBits + 7) / 8
		b = b[2:]
		if len(b) < headerBytes {
			return nil, invalid("aac", fmt.Errorf("AU headers of %d bits in %d bytes", headerBits, len(b)))
		}
		r := bits.NewReader(bytes.NewReader(b[:headerBytes]))
		var sizes []int
		for read := 0; read+d.sizeLength <= headerBits; {
			sizes = append(sizes, int(r.Read(d.sizeLength)))
			read += d.sizeLength
			idx := d.deltaLength
			if len(sizes) == 1 {
				idx = d.indexLength
			}
			if idx > 0 {
				r.Read(idx)
				read += idx
			}
		}
		if r.AccError() != nil {
			return nil, invalid("aac", r.AccError())
		}
		data := b[headerBytes:]
		if len(sizes) == 1 && sizes[0] > len(data) {
			fragSize = sizes[0]
			frag = append(frag, data...)
			if len(frag) >= fragSize {
				units = append(units, Unit{Data: frag[:fragSize], Key: true, Timestamp: f.Timestamp})
				frag = nil
			}
			continue
		}
		ts := pkt.Timestamp
		for _, n := range sizes {
			if n > len(data) {
				return units, invalid("aac", fmt.Errorf("AU of %d bytes with %d left", n, len(data)))
			}
			units = append(units, Unit{Data: data[:n], Key: true, Timestamp: ts})
			data = data[n:]
			ts += aacFrameSamples
		}
	}
	return units, nil
}

// headerDepacketizer strips a fixed payload header and joins the rest of the
// frame: MPEG audio (RFC 2250, 4 bytes) and AC-3 (RFC 4184, 2 bytes). The
// result is framed by the stream's bitstream filter.
type headerDepacketizer struct {
	header int
}

func (d *headerDepacketizer) Depacketize(f RTPFrame) ([]Unit, error) {
	var data []byte
	for _, pkt := range f.Packets {
		if len(pkt.Payload) < d.header {
			return nil, invalid("audio", fmt.Errorf("payload of %d bytes", len(pkt.Payload)))
		}
		data = append(data, pkt.Payload[d.header:]...)
	}
	if len(data) == 0 {
		return nil, nil
	}
	return []Unit{{Data: data, Key: true, Timestamp: f.Timestamp}}, nil
}

type opusDepacketizer struct{}

func (d *opusDepacketizer) Depacketize(f RTPFrame) ([]Unit, error) {
	units := make([]Unit, 0, len(f.Packets))
	for _, pkt := range f.Packets {
		var p codecs.OpusPacket
		if _, err := p.Unmarshal(pkt.Payload); err != nil {
			return nil, invalid("opus", err)
		}
		units = append(units, Unit{Data: p.Payload, Key: true, Timestamp: pkt.Timestamp})
	}
	return units, nil
}

// rawDepacketizer passes payloads through, for G.711.
type rawDepacketizer struct{}

func (d *rawDepacketizer) Depacketize(f RTPFrame) ([]Unit, error) {
	var data []byte
	for _, pkt := range f.Packets {
		data = append(data, pkt.Payload...)
	}
	if len(data) == 0 {
		return nil, nil
	}
	return []Unit{{Data: data, Key: true, Timestamp: f.Timestamp}}, nil
}
