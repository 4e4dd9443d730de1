package bsf

import (
	"bytes"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Eyevinn/avdemux/av"
	"github.com/Eyevinn/avdemux/codec/nalu"
)

// AnnexBToAVCC converts start-code prefixed access units to 4-byte length
// prefixes. In-band parameter sets are moved into the extradata; a change is
// reported as new extradata side data on the next emitted packet.
type AnnexBToAVCC struct {
	base
	caps    *av.Capability
	pending []byte
}

func (f *AnnexBToAVCC) Init(par *av.CodecParameters, tb av.Rational) error {
	if err := f.base.Init(par, tb); err != nil {
		return err
	}
	f.caps = av.LookupCapability(f.par.CodecID)
	if f.caps == nil || f.caps.AnnexBToAVCC == nil {
		return fmt.Errorf("annexb2avcc for %s: %w", f.par.CodecID, av.ErrCodecNotSupport)
	}
	if nalu.IsAnnexB(f.par.Extradata) {
		ps := nalu.SplitAnnexB(f.par.Extradata)
		if ed, err := f.caps.GenerateExtradata(ps); err == nil {
			f.par.Extradata = ed
		}
	}
	return nil
}

func (f *AnnexBToAVCC) Reset() {
	f.base.Reset()
	f.pending = nil
}

func (f *AnnexBToAVCC) Send(pkt *av.Packet) error {
	if pkt == nil {
		return nil
	}
	data := pkt.Data
	if !nalu.IsAnnexB(data) && pkt.Flags&av.FlagAnnexB == 0 {
		// already length prefixed
		f.out.push(pkt)
		return nil
	}
	avcc, ps, err := f.caps.AnnexBToAVCC(data)
	if err != nil {
		return err
	}
	if len(ps) > 0 {
		ed, err := f.caps.GenerateExtradata(ps)
		if err == nil && !bytes.Equal(ed, f.par.Extradata) {
			f.par.Extradata = ed
			if err := f.caps.ParseCodecParameters(&f.par, ed); err != nil {
				logrus.WithFields(logrus.Fields{"codec": f.par.CodecID, "filter": "annexb2avcc"}).
					WithError(err).Warn("in-band parameter sets not parsed")
			}
			f.pending = ed
		}
	}
	if len(avcc) == 0 {
		return nil
	}
	out := av.NewPacket()
	out.CopyProps(pkt)
	out.Data = avcc
	out.SetFlag(av.FlagAnnexB, false)
	out.SetFlag(av.FlagKey, out.IsKey() || f.caps.IsIDR(avcc, false))
	if f.pending != nil {
		out.AddSideData(av.SideDataNewExtradata, append([]byte(nil), f.pending...))
		f.pending = nil
	}
	f.out.push(out)
	return nil
}

// AVCCToAnnexB converts length-prefixed access units to Annex-B. Parameter sets
// are prepended to keyframes that do not carry them, taken from new extradata
// side data when present and from the stream extradata otherwise.
type AVCCToAnnexB struct {
	base
	// InsertAUD prepends an access unit delimiter when missing.
	InsertAUD  bool
	caps       *av.Capability
	lengthSize int
	paramSets  [][]byte
}

func (f *AVCCToAnnexB) Init(par *av.CodecParameters, tb av.Rational) error {
	if err := f.base.Init(par, tb); err != nil {
		return err
	}
	f.caps = av.LookupCapability(f.par.CodecID)
	if f.caps == nil || f.caps.AVCCToAnnexB == nil {
		return fmt.Errorf("avcc2annexb for %s: %w", f.par.CodecID, av.ErrCodecNotSupport)
	}
	return f.setExtradata(f.par.Extradata)
}

func (f *AVCCToAnnexB) setExtradata(ed []byte) error {
	f.lengthSize = nalu.LengthSize(f.par.CodecID, ed)
	if len(ed) == 0 {
		return nil
	}
	annexB, err := f.caps.GenerateAnnexBExtradata(ed)
	if err != nil {
		return err
	}
	f.paramSets = nalu.SplitAnnexB(annexB)
	f.par.Extradata = ed
	return nil
}

func (f *AVCCToAnnexB) Send(pkt *av.Packet) error {
	if pkt == nil {
		return nil
	}
	if ed, ok := pkt.SideDataOf(av.SideDataNewExtradata); ok {
		if err := f.setExtradata(ed); err != nil {
			return err
		}
	}
	annexB := pkt.Flags&av.FlagAnnexB != 0 || nalu.IsAnnexB(pkt.Data)
	units, err := nalu.Split(pkt.Data, annexB, f.lengthSize)
	if err != nil {
		return err
	}
	id := f.par.CodecID
	hasAUD, hasPS := false, false
	for _, n := range units {
		hasAUD = hasAUD || nalu.IsAUD(id, n)
		hasPS = hasPS || nalu.IsParameterSet(id, n)
	}
	key := pkt.IsKey() || f.caps.IsIDR(pkt.Data, annexB)
	out := make([][]byte, 0, len(units)+len(f.paramSets)+1)
	if f.InsertAUD && !hasAUD {
		if aud := nalu.AUD(id); aud != nil {
			out = append(out, aud)
		}
	}
	for i, n := range units {
		if i == 0 && hasAUD && nalu.IsAUD(id, n) {
			out = append(out, n)
			continue
		}
		if key && !hasPS && len(f.paramSets) > 0 {
			out = append(out, f.paramSets...)
			hasPS = true
		}
		out = append(out, n)
	}
	o := av.NewPacket()
	o.CopyProps(pkt)
	o.Data = nalu.JoinAnnexB(out)
	o.SetFlag(av.FlagAnnexB, true)
	o.SetFlag(av.FlagKey, key)
	f.out.push(o)
	return nil
}
