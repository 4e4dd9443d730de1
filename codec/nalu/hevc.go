package nalu

import (
	"encoding/binary"
	"fmt"

	"github.com/Eyevinn/avdemux/av"
	"github.com/Eyevinn/mp4ff/hevc"
)

const hvcCHeaderLength = 23

func hevcNaluType(n []byte) int {
	return int(hevc.GetNaluType(n[0]))
}

func hevcIsParamSet(t int) bool {
	return t == int(hevc.NALU_VPS) || t == int(hevc.NALU_SPS) || t == int(hevc.NALU_PPS)
}

// writeArrays appends the parameter set arrays shared by hvcC and vvcC.
func writeArrays(out []byte, order []int, byType map[int][][]byte, typeByte func(t int) byte) []byte {
	n := 0
	for _, t := range order {
		if len(byType[t]) > 0 {
			n++
		}
	}
	out = append(out, byte(n))
	for _, t := range order {
		nalus := byType[t]
		if len(nalus) == 0 {
			continue
		}
		out = append(out, typeByte(t))
		out = binary.BigEndian.AppendUint16(out, uint16(len(nalus)))
		for _, nalu := range nalus {
			out = binary.BigEndian.AppendUint16(out, uint16(len(nalu)))
			out = append(out, nalu...)
		}
	}
	return out
}

// readArrays parses parameter set arrays starting at b[0] (the array count).
func readArrays(b []byte, hasCount func(typeByte byte) bool) ([][]byte, error) {
	if len(b) < 1 {
		return nil, fmt.Errorf("missing nalu array count: %w", av.ErrDataInvalid)
	}
	numArrays := int(b[0])
	pos := 1
	var ps [][]byte
	for i := 0; i < numArrays; i++ {
		if pos >= len(b) {
			return nil, fmt.Errorf("truncated nalu array: %w", av.ErrDataInvalid)
		}
		tb := b[pos]
		pos++
		numNalus := 1
		if hasCount(tb) {
			if pos+2 > len(b) {
				return nil, fmt.Errorf("truncated nalu array: %w", av.ErrDataInvalid)
			}
			numNalus = int(binary.BigEndian.Uint16(b[pos:]))
			pos += 2
		}
		for j := 0; j < numNalus; j++ {
			if pos+2 > len(b) {
				return nil, fmt.Errorf("truncated nalu length: %w", av.ErrDataInvalid)
			}
			n := int(binary.BigEndian.Uint16(b[pos:]))
			pos += 2
			if pos+n > len(b) {
				return nil, fmt.Errorf("truncated nalu: %w", av.ErrDataInvalid)
			}
			ps = append(ps, b[pos:pos+n])
			pos += n
		}
	}
	return ps, nil
}

func hevcBuildConfig(paramSets [][]byte) ([]byte, error) {
	byType := map[int][][]byte{}
	var sps []byte
	for _, ps := range paramSets {
		t := hevcNaluType(ps)
		if !hevcIsParamSet(t) {
			continue
		}
		byType[t] = append(byType[t], ps)
		if t == int(hevc.NALU_SPS) && sps == nil {
			sps = ps
		}
	}
	if sps == nil || len(byType[int(hevc.NALU_PPS)]) == 0 {
		return nil, fmt.Errorf("hvcC needs SPS and PPS: %w", av.ErrDataInvalid)
	}
	rbsp := RemoveEmulationPrevention(sps)
	if len(rbsp) < 15 {
		return nil, fmt.Errorf("SPS too short for profile_tier_level: %w", av.ErrDataInvalid)
	}
	out := make([]byte, 0, 256)
	out = append(out, 1)
	// general profile, compatibility, constraint flags and level copied from the SPS
	out = append(out, rbsp[3:15]...)
	out = append(out, 0xf0, 0x00, 0xfc, 0xfd, 0xf8, 0xf8, 0x00, 0x00)
	maxSubLayers := (rbsp[2]>>1)&0x7 + 1
	nested := rbsp[2] & 0x1
	out = append(out, maxSubLayers<<3|nested<<2|0x3)
	order := []int{int(hevc.NALU_VPS), int(hevc.NALU_SPS), int(hevc.NALU_PPS)}
	out = writeArrays(out, order, byType, func(t int) byte { return 0x80 | byte(t) })
	return out, nil
}

func hevcParseConfig(extradata []byte) ([][]byte, error) {
	if len(extradata) < hvcCHeaderLength || extradata[0] != 1 {
		return nil, fmt.Errorf("hvcC header: %w", av.ErrDataInvalid)
	}
	return readArrays(extradata[hvcCHeaderLength-1:], func(byte) bool { return true })
}

func hevcParseSPS(par *av.CodecParameters, nalu []byte) error {
	sps, err := hevc.ParseSPSNALUnit(nalu)
	if err != nil {
		return fmt.Errorf("parsing SPS: %v: %w", err, av.ErrDataInvalid)
	}
	w, h := sps.ImageSize()
	par.Width, par.Height = int(w), int(h)
	if rbsp := RemoveEmulationPrevention(nalu); len(rbsp) >= 15 {
		par.Profile = int(rbsp[3] & 0x1f)
		par.Level = int(rbsp[14])
	}
	return nil
}

func init() {
	register(&family{
		id:          av.CodecHEVC,
		naluType:    hevcNaluType,
		isParamSet:  hevcIsParamSet,
		isSPS:       func(t int) bool { return t == int(hevc.NALU_SPS) },
		isIRAP:      func(t int) bool { return t >= 16 && t <= 23 },
		isAUD:       func(t int) bool { return t == 35 },
		buildConfig: hevcBuildConfig,
		parseConfig: hevcParseConfig,
		parseSPS:    hevcParseSPS,
	})
}
