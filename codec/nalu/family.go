package nalu

import (
	"fmt"

	"github.com/Eyevinn/avdemux/av"
)

// family describes one NAL unit based codec. Its capability record is built
// from these primitives.
type family struct {
	id         av.CodecID
	naluType   func(nalu []byte) int
	isParamSet func(t int) bool
	isSPS      func(t int) bool
	isIRAP     func(t int) bool
	isAUD      func(t int) bool
	// buildConfig creates a decoder configuration record from parameter sets.
	buildConfig func(paramSets [][]byte) ([]byte, error)
	// parseConfig returns the parameter sets of a decoder configuration record.
	parseConfig func(extradata []byte) ([][]byte, error)
	parseSPS    func(par *av.CodecParameters, sps []byte) error
}

func (f *family) typeOf(n []byte) int {
	if len(n) == 0 {
		return -1
	}
	return f.naluType(n)
}

func (f *family) paramSetsOf(extradata []byte) ([][]byte, error) {
	if IsAnnexB(extradata) {
		return SplitAnnexB(extradata), nil
	}
	return f.parseConfig(extradata)
}

func (f *family) generateAnnexBExtradata(extradata []byte) ([]byte, error) {
	if len(extradata) == 0 {
		return nil, fmt.Errorf("%s: no extradata: %w", f.id, av.ErrDataInvalid)
	}
	if IsAnnexB(extradata) {
		return append([]byte(nil), extradata...), nil
	}
	ps, err := f.parseConfig(extradata)
	if err != nil {
		return nil, err
	}
	return JoinAnnexB(ps), nil
}

func (f *family) isIDR(data []byte, annexB bool) bool {
	nalus, err := Split(data, annexB, 4)
	if err != nil {
		return false
	}
	for _, n := range nalus {
		if t := f.typeOf(n); t >= 0 && f.isIRAP(t) {
			return true
		}
	}
	return false
}

func (f *family) parseCodecParameters(par *av.CodecParameters, extradata []byte) error {
	ps, err := f.paramSetsOf(extradata)
	if err != nil {
		return err
	}
	for _, n := range ps {
		if t := f.typeOf(n); t >= 0 && f.isSPS(t) {
			return f.parseSPS(par, n)
		}
	}
	return fmt.Errorf("%s: no SPS in extradata: %w", f.id, av.ErrDataInvalid)
}

func (f *family) avccToAnnexB(data []byte, lengthSize int) ([]byte, error) {
	nalus, err := SplitAVCC(data, lengthSize)
	if err != nil {
		return nil, err
	}
	return JoinAnnexB(nalus), nil
}

func (f *family) annexBToAVCC(data []byte) ([]byte, [][]byte, error) {
	var rest, ps [][]byte
	for _, n := range SplitAnnexB(data) {
		t := f.typeOf(n)
		switch {
		case t < 0:
			continue
		case f.isParamSet(t):
			ps = append(ps, n)
		case f.isAUD(t):
		default:
			rest = append(rest, n)
		}
	}
	return JoinAVCC(rest), ps, nil
}

func (f *family) capability() *av.Capability {
	return &av.Capability{
		Name:                    f.id.String(),
		GenerateAnnexBExtradata: f.generateAnnexBExtradata,
		IsIDR:                   f.isIDR,
		ParseCodecParameters:    f.parseCodecParameters,
		AVCCToAnnexB:            f.avccToAnnexB,
		AnnexBToAVCC:            f.annexBToAVCC,
		GenerateExtradata:       f.buildConfig,
	}
}

var families = map[av.CodecID]*family{}

func register(f *family) {
	families[f.id] = f
	av.RegisterCapability(f.id, f.capability())
}

// IsParameterSet reports whether nalu is a VPS, SPS or PPS of codec id.
func IsParameterSet(id av.CodecID, nalu []byte) bool {
	f := families[id]
	if f == nil {
		return false
	}
	t := f.typeOf(nalu)
	return t >= 0 && f.isParamSet(t)
}

// IsAUD reports whether nalu is an access unit delimiter of codec id.
func IsAUD(id av.CodecID, nalu []byte) bool {
	f := families[id]
	if f == nil {
		return false
	}
	t := f.typeOf(nalu)
	return t >= 0 && f.isAUD(t)
}

// AUD returns an access unit delimiter NAL unit for codec id, or nil.
func AUD(id av.CodecID) []byte {
	switch id {
	case av.CodecH264:
		return []byte{0x09, 0xf0}
	case av.CodecHEVC:
		return []byte{0x46, 0x01, 0x50}
	case av.CodecVVC:
		return []byte{0x00, 0xa1, 0x28}
	}
	return nil
}
