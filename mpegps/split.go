package mpegps

import (
	"github.com/Eyevinn/avdemux/av"
	"github.com/Eyevinn/avdemux/codec/ac3"
	"github.com/Eyevinn/avdemux/codec/dts"
	"github.com/Eyevinn/avdemux/codec/mpegaudio"
)

// framing selects how the payload of a stream is cut into access units.
type framing int

const (
	// frameByPES ends an access unit when a PES with a new timestamp starts.
	frameByPES framing = iota
	// frameAudio cuts self-delimiting audio frames, each confirmed by a valid
	// header directly after it.
	frameAudio
	// frameVideo cuts MPEG-1/2 video at picture boundaries.
	frameVideo
	// frameSubpicture cuts DVD subpicture units by their size field.
	frameSubpicture
)

func framingFor(id av.CodecID) framing {
	switch id {
	case av.CodecMPEG1Video, av.CodecMPEG2Video:
		return frameVideo
	case av.CodecAC3, av.CodecEAC3, av.CodecDTS, av.CodecMP1, av.CodecMP2, av.CodecMP3:
		return frameAudio
	case av.CodecDVDSubtitle:
		return frameSubpicture
	}
	return frameByPES
}

// audioHeader describes the frame header of one audio codec family.
type audioHeader struct {
	min   int
	parse func(b []byte) (audioFrame, error)
}

type audioFrame struct {
	size       int
	samples    int
	sampleRate int
	channels   int
	bitRate    int
}

func audioHeaderFor(id av.CodecID) audioHeader {
	switch id {
	case av.CodecAC3, av.CodecEAC3:
		return audioHeader{min: ac3.HeaderLength, parse: func(b []byte) (audioFrame, error) {
			h, err := ac3.ParseHeader(b)
			return audioFrame{h.FrameSize, h.Samples, h.SampleRate, h.Channels, h.BitRate}, err
		}}
	case av.CodecDTS:
		return audioHeader{min: dts.HeaderLength, parse: func(b []byte) (audioFrame, error) {
			h, err := dts.ParseHeader(b)
			return audioFrame{h.FrameSize, h.Samples, h.SampleRate, h.Channels, h.BitRate}, err
		}}
	}
	return audioHeader{min: mpegaudio.HeaderLength, parse: func(b []byte) (audioFrame, error) {
		h, err := mpegaudio.ParseHeader(b)
		return audioFrame{h.FrameSize, h.Samples, h.SampleRate, h.Channels, h.BitRate}, err
	}}
}

// findFrame returns the offset of the first frame in b whose header is valid.
// ok is set when the header directly after the frame is valid too. off is -1
// when b holds no candidate.
func findFrame(b []byte, h audioHeader) (off int, ok bool) {
	for o := 0; o+h.min <= len(b); o++ {
		f, err := h.parse(b[o:])
		if err != nil || f.size <= 0 {
			continue
		}
		next := o + f.size
		if next+h.min > len(b) {
			return o, false
		}
		if g, err := h.parse(b[next:]); err == nil && g.size > 0 {
			return o, true
		}
	}
	return -1, false
}

// stamp holds the timestamps of one PES whose payload was appended to a stream
// buffer at offset off.
type stamp struct {
	off  int
	pts  int64
	dts  int64
	pos  int64
	scr  int64
	used bool
}

type stamps []stamp

// take returns the stamp of the PES holding offset o. fresh is set when it
// carries a timestamp that no earlier access unit has taken. Stamps of PES
// before that one are dropped.
func (ss *stamps) take(o int) (st stamp, fresh bool) {
	s := *ss
	i := -1
	for j := range s {
		if s[j].off > o {
			break
		}
		i = j
	}
	if i < 0 {
		return stamp{pts: av.NoPTS, dts: av.NoPTS, pos: -1, scr: NoSCR}, false
	}
	s = s[i:]
	st = s[0]
	fresh = !st.used && st.pts != av.NoPTS
	s[0].used = true
	*ss = s
	return st, fresh
}

// next returns the DTS of the first stamp no access unit has taken yet.
func (ss stamps) next() (int64, bool) {
	for _, st := range ss {
		if !st.used && st.dts != av.NoPTS {
			return st.dts, true
		}
	}
	return av.NoPTS, false
}

// consume shifts the stamps after n leading buffer bytes were removed. The
// stamp covering the new offset 0 is kept.
func (ss *stamps) consume(n int) {
	s := *ss
	keep := 0
	for i := range s {
		s[i].off -= n
		if s[i].off <= 0 {
			keep = i
		}
	}
	*ss = s[keep:]
}

// maxPending bounds the pictures held back waiting for a timestamp.
const maxPending = 32

// interpolator assigns decode timestamps to MPEG video pictures that share a
// PES with an earlier picture. Such pictures are held until the next picture
// with its own timestamp arrives and then spaced linearly in between.
type interpolator struct {
	pending []*av.Packet
	lastDTS int64
	// step is the frame duration in the stream time base, 0 when unknown.
	step int64
}

func newInterpolator() interpolator {
	return interpolator{lastDTS: av.NoPTS}
}

func (p *interpolator) reset() {
	p.pending = nil
	p.lastDTS = av.NoPTS
}

// push adds a picture in decode order and returns the pictures whose
// timestamps are final.
func (p *interpolator) push(pkt *av.Packet) []*av.Packet {
	if pkt.DTS == av.NoPTS {
		p.pending = append(p.pending, pkt)
		if len(p.pending) > maxPending {
			return p.extrapolate()
		}
		return nil
	}
	var out []*av.Packet
	if len(p.pending) > 0 {
		out = p.release(pkt.DTS)
	}
	if p.lastDTS != av.NoPTS && pkt.DTS > p.lastDTS {
		p.step = pkt.DTS - p.lastDTS
	}
	p.lastDTS = pkt.DTS
	return append(out, pkt)
}

// release spaces the pending pictures linearly between the last known DTS and
// b, the DTS of the next picture.
func (p *interpolator) release(b int64) []*av.Packet {
	out := p.pending
	k := int64(len(out))
	switch {
	case k == 0:
		return nil
	case p.lastDTS != av.NoPTS && b-p.lastDTS > k:
		a := p.lastDTS
		for i, q := range out {
			q.DTS = a + int64(i+1)*(b-a)/(k+1)
			q.PTS = q.DTS
		}
	case p.lastDTS == av.NoPTS && p.step > 0:
		for i, q := range out {
			q.DTS = b - (k-int64(i))*p.step
			q.PTS = q.DTS
		}
	default:
		return p.extrapolate()
	}
	p.pending = nil
	p.lastDTS = out[k-1].DTS
	return out
}

// extrapolate releases the pending pictures spaced by step after the last
// known DTS.
func (p *interpolator) extrapolate() []*av.Packet {
	out := p.pending
	p.pending = nil
	if p.lastDTS == av.NoPTS || p.step <= 0 {
		return out
	}
	for _, q := range out {
		p.lastDTS += p.step
		q.DTS, q.PTS = p.lastDTS, p.lastDTS
	}
	return out
}

// flush releases all pending pictures.
func (p *interpolator) flush() []*av.Packet {
	return p.extrapolate()
}
