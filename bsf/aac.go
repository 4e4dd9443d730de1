package bsf

import (
	"bytes"
	"fmt"

	"github.com/Eyevinn/avdemux/av"
	"github.com/Eyevinn/avdemux/codec/aac"
)

// ADTSToRaw strips ADTS headers. One input packet may hold several frames.
// A changed AudioSpecificConfig is attached as new extradata side data.
type ADTSToRaw struct {
	framer
}

func NewADTSToRaw() *ADTSToRaw {
	f := &ADTSToRaw{}
	f.minHeader = aac.ADTSHeaderLength
	f.parse = func(b []byte) (frameInfo, error) {
		h, err := aac.ParseADTSHeader(b)
		if err != nil {
			return frameInfo{}, err
		}
		return frameInfo{size: h.FrameLength, headerLen: h.HeaderLength, samples: h.Samples(), sampleRate: h.SampleRate}, nil
	}
	f.emit = f.emitFrame
	return f
}

func (f *ADTSToRaw) emitFrame(frame []byte, info frameInfo, props *av.Packet) (int64, error) {
	h, err := aac.ParseADTSHeader(frame)
	if err != nil {
		return 0, err
	}
	asc, err := aac.ConfigFromADTS(h)
	if err != nil {
		return 0, err
	}
	if !bytes.Equal(asc, f.par.Extradata) {
		f.par.Extradata = asc
		f.par.SampleRate = h.SampleRate
		f.par.Channels = h.Channels
		props.AddSideData(av.SideDataNewExtradata, append([]byte(nil), asc...))
	}
	props.Data = frame[info.headerLen:]
	f.out.push(props)
	return props.Duration, nil
}

// RawToADTS prepends an ADTS header to each raw AAC frame, built from the
// stream's AudioSpecificConfig.
type RawToADTS struct {
	base
	cfg        aac.Config
	configured bool
}

func (f *RawToADTS) Init(par *av.CodecParameters, tb av.Rational) error {
	if err := f.base.Init(par, tb); err != nil {
		return err
	}
	return f.configure(f.par.Extradata)
}

func (f *RawToADTS) configure(extradata []byte) error {
	if len(extradata) > 0 {
		cfg, err := aac.DecodeConfig(extradata)
		if err != nil {
			return err
		}
		f.cfg, f.configured = cfg, true
		return nil
	}
	if f.par.SampleRate > 0 && f.par.Channels > 0 {
		f.cfg = aac.Config{ObjectType: aac.AOTAACLC, SampleRate: f.par.SampleRate, Channels: f.par.Channels}
		f.configured = true
	}
	return nil
}

func (f *RawToADTS) Send(pkt *av.Packet) error {
	if pkt == nil {
		return nil
	}
	if ed, ok := pkt.SideDataOf(av.SideDataNewExtradata); ok {
		if err := f.configure(ed); err != nil {
			return err
		}
	}
	if aac.IsADTSSync(pkt.Data) {
		f.out.push(pkt)
		return nil
	}
	if !f.configured {
		return fmt.Errorf("raw aac without AudioSpecificConfig: %w", av.ErrDataInvalid)
	}
	h, err := aac.NewADTSHeader(f.cfg.ObjectType, f.cfg.SampleRate, f.cfg.Channels, len(pkt.Data))
	if err != nil {
		return err
	}
	out := av.NewPacket()
	out.CopyProps(pkt)
	out.Data = append(h.Encode(), pkt.Data...)
	f.out.push(out)
	return nil
}

// LATMToRaw unpacks LOAS/LATM frames into raw AAC frames.
type LATMToRaw struct {
	framer
	latm aac.LATMParser
}

func NewLATMToRaw() *LATMToRaw {
	f := &LATMToRaw{}
	f.minHeader = aac.LOASHeaderLength
	f.parse = func(b []byte) (frameInfo, error) {
		n, err := aac.ParseLOASHeader(b)
		if err != nil {
			return frameInfo{}, err
		}
		info := frameInfo{size: n, headerLen: aac.LOASHeaderLength, samples: aac.SamplesPerFrame}
		if cfg, ok := f.latm.Config(); ok {
			info.sampleRate = cfg.SampleRate
		}
		return info, nil
	}
	f.emit = f.emitFrame
	return f
}

func (f *LATMToRaw) Reset() {
	f.framer.Reset()
	f.latm.Reset()
}

func (f *LATMToRaw) emitFrame(frame []byte, info frameInfo, props *av.Packet) (int64, error) {
	frames, changed, err := f.latm.ParseAudioMuxElement(frame[info.headerLen:])
	if err != nil {
		return 0, err
	}
	cfg, _ := f.latm.Config()
	if changed {
		asc, err := aac.EncodeConfig(cfg)
		if err != nil {
			return 0, err
		}
		f.par.Extradata = asc
		aac.FillParameters(&f.par, cfg)
		props.AddSideData(av.SideDataNewExtradata, asc)
	}
	dur := av.Rescale(aac.SamplesPerFrame, av.Rational{Num: 1, Den: int64(cfg.SampleRate)}, f.tb)
	for i, raw := range frames {
		p := props
		if i > 0 {
			p = av.NewPacket()
			p.CopyProps(props)
			p.SideData = nil
			if props.PTS != av.NoPTS {
				p.PTS = props.PTS + int64(i)*dur
				p.DTS = p.PTS
			}
		}
		p.Duration = dur
		p.Data = raw
		f.out.push(p)
	}
	return int64(len(frames)) * dur, nil
}

// RawToLATM wraps raw AAC frames in LOAS/LATM, repeating the StreamMuxConfig
// every MuxConfigPeriod frames.
type RawToLATM struct {
	base
	MuxConfigPeriod int
	w               aac.LATMWriter
}

func (f *RawToLATM) Init(par *av.CodecParameters, tb av.Rational) error {
	if err := f.base.Init(par, tb); err != nil {
		return err
	}
	f.w.Period = f.MuxConfigPeriod
	if f.w.Period <= 0 {
		f.w.Period = 20
	}
	if len(f.par.Extradata) > 0 {
		cfg, err := aac.DecodeConfig(f.par.Extradata)
		if err != nil {
			return err
		}
		f.w.Config = cfg
	} else {
		f.w.Config = aac.Config{ObjectType: aac.AOTAACLC, SampleRate: f.par.SampleRate, Channels: f.par.Channels}
	}
	return nil
}

func (f *RawToLATM) Reset() {
	f.base.Reset()
	f.w.Reset()
}

func (f *RawToLATM) Send(pkt *av.Packet) error {
	if pkt == nil {
		return nil
	}
	if ed, ok := pkt.SideDataOf(av.SideDataNewExtradata); ok {
		cfg, err := aac.DecodeConfig(ed)
		if err != nil {
			return err
		}
		f.w.Config = cfg
		f.w.Reset()
	}
	data, err := f.w.WriteFrame(pkt.Data)
	if err != nil {
		return err
	}
	out := av.NewPacket()
	out.CopyProps(pkt)
	out.Data = data
	f.out.push(out)
	return nil
}
