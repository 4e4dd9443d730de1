package nalu

import (
	"fmt"

	"github.com/Eyevinn/avdemux/av"
)

const (
	vvcNaluIDRWRADL = 7
	vvcNaluIDRNLP   = 8
	vvcNaluCRA      = 9
	vvcNaluGDR      = 10
	vvcNaluOPI      = 12
	vvcNaluDCI      = 13
	vvcNaluVPS      = 14
	vvcNaluSPS      = 15
	vvcNaluPPS      = 16
	vvcNaluAUD      = 20
)

func vvcNaluType(n []byte) int {
	if len(n) < 2 {
		return -1
	}
	return int(n[1] >> 3)
}

func vvcIsParamSet(t int) bool {
	return t == vvcNaluVPS || t == vvcNaluSPS || t == vvcNaluPPS
}

// vvcBuildConfig writes a VvcDecoderConfigurationRecord without the
// profile_tier_level part and with 4-byte NALU lengths.
func vvcBuildConfig(paramSets [][]byte) ([]byte, error) {
	byType := map[int][][]byte{}
	for _, ps := range paramSets {
		if t := vvcNaluType(ps); vvcIsParamSet(t) {
			byType[t] = append(byType[t], ps)
		}
	}
	if len(byType[vvcNaluSPS]) == 0 || len(byType[vvcNaluPPS]) == 0 {
		return nil, fmt.Errorf("vvcC needs SPS and PPS: %w", av.ErrDataInvalid)
	}
	out := []byte{0xf8 | 3<<1}
	order := []int{vvcNaluVPS, vvcNaluSPS, vvcNaluPPS}
	return writeArrays(out, order, byType, func(t int) byte { return 0x80 | byte(t) }), nil
}

func vvcParseConfig(extradata []byte) ([][]byte, error) {
	if len(extradata) < 2 {
		return nil, fmt.Errorf("vvcC header: %w", av.ErrDataInvalid)
	}
	if extradata[0]&0x1 != 0 {
		return nil, fmt.Errorf("vvcC with profile_tier_level: %w", av.ErrCodecNotSupport)
	}
	return readArrays(extradata[1:], func(tb byte) bool {
		t := int(tb & 0x1f)
		return t != vvcNaluDCI && t != vvcNaluOPI
	})
}

// vvcParseSPS reads profile and level from the SPS profile_tier_level.
func vvcParseSPS(par *av.CodecParameters, nalu []byte) error {
	rbsp := RemoveEmulationPrevention(nalu)
	if len(rbsp) < 6 {
		return fmt.Errorf("VVC SPS too short: %w", av.ErrDataInvalid)
	}
	if rbsp[3]&0x1 == 0 {
		return nil
	}
	par.Profile = int(rbsp[4] >> 1)
	par.Level = int(rbsp[5])
	return nil
}

func init() {
	register(&family{
		id:         av.CodecVVC,
		naluType:   vvcNaluType,
		isParamSet: vvcIsParamSet,
		isSPS:      func(t int) bool { return t == vvcNaluSPS },
		isIRAP: func(t int) bool {
			return t == vvcNaluIDRWRADL || t == vvcNaluIDRNLP || t == vvcNaluCRA || t == vvcNaluGDR
		},
		isAUD:       func(t int) bool { return t == vvcNaluAUD },
		buildConfig: vvcBuildConfig,
		parseConfig: vvcParseConfig,
		parseSPS:    vvcParseSPS,
	})
}
