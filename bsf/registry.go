package bsf

import (
	"fmt"
	"sort"

	"github.com/Eyevinn/avdemux/av"
)

var constructors = map[string]func() Filter{
	"null":        func() Filter { return &nullFilter{} },
	"adts2raw":    func() Filter { return NewADTSToRaw() },
	"raw2adts":    func() Filter { return &RawToADTS{} },
	"latm2raw":    func() Filter { return NewLATMToRaw() },
	"raw2latm":    func() Filter { return &RawToLATM{} },
	"ac3":         NewAC3,
	"dts":         NewDTS,
	"mp3":         NewMP3,
	"opus_ts2raw": func() Filter { return NewOpusTSToRaw() },
	"opus_raw2ts": func() Filter { return &OpusRawToTS{} },
	"annexb2avcc": func() Filter { return &AnnexBToAVCC{} },
	"avcc2annexb": func() Filter { return &AVCCToAnnexB{} },
}

// Names lists the registered filter names.
func Names() []string {
	names := make([]string, 0, len(constructors))
	for n := range constructors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// New returns an uninitialised filter by name.
func New(name string) (Filter, error) {
	c, ok := constructors[name]
	if !ok {
		return nil, fmt.Errorf("bitstream filter %q: %w", name, av.ErrCodecNotSupport)
	}
	return c(), nil
}

// ForDemux names the filter turning container payloads of codec id into raw
// packets.
func ForDemux(id av.CodecID) string {
	switch id {
	case av.CodecAAC:
		return "adts2raw"
	case av.CodecAACLATM:
		return "latm2raw"
	case av.CodecAC3, av.CodecEAC3:
		return "ac3"
	case av.CodecDTS:
		return "dts"
	case av.CodecMP1, av.CodecMP2, av.CodecMP3:
		return "mp3"
	case av.CodecOpus:
		return "opus_ts2raw"
	case av.CodecH264, av.CodecHEVC, av.CodecVVC:
		return "annexb2avcc"
	}
	return "null"
}

// ForMux names the filter preparing raw packets of codec id for MPEG-TS.
func ForMux(id av.CodecID) string {
	switch id {
	case av.CodecAAC:
		return "raw2adts"
	case av.CodecAACLATM:
		return "raw2latm"
	case av.CodecOpus:
		return "opus_raw2ts"
	case av.CodecH264, av.CodecHEVC, av.CodecVVC:
		return "avcc2annexb"
	}
	return "null"
}

// NewInit creates the named filter and initialises it.
func NewInit(name string, par *av.CodecParameters, tb av.Rational) (Filter, error) {
	f, err := New(name)
	if err != nil {
		return nil, err
	}
	if err := f.Init(par, tb); err != nil {
		return nil, fmt.Errorf("init %s: %w", name, err)
	}
	return f, nil
}

// NewForDemux creates and initialises the demux side filter of par.CodecID.
func NewForDemux(par *av.CodecParameters, tb av.Rational) (Filter, error) {
	return NewInit(ForDemux(par.CodecID), par, tb)
}

// NewForMux creates and initialises the mux side filter of par.CodecID.
func NewForMux(par *av.CodecParameters, tb av.Rational) (Filter, error) {
	return NewInit(ForMux(par.CodecID), par, tb)
}

// Drain collects everything f currently has queued.
func Drain(f Filter) []*av.Packet {
	var pkts []*av.Packet
	for {
		p, err := f.Receive()
		if err != nil {
			return pkts
		}
		pkts = append(pkts, p)
	}
}
