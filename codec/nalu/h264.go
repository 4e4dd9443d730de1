package nalu

import (
	"bytes"
	"fmt"

	"github.com/Eyevinn/avdemux/av"
	"github.com/Eyevinn/mp4ff/avc"
)

func avcNaluType(n []byte) int {
	return int(avc.GetNaluType(n[0]))
}

func avcBuildConfig(paramSets [][]byte) ([]byte, error) {
	var spss, ppss [][]byte
	for _, ps := range paramSets {
		switch avc.GetNaluType(ps[0]) {
		case avc.NALU_SPS:
			spss = append(spss, ps)
		case avc.NALU_PPS:
			ppss = append(ppss, ps)
		}
	}
	if len(spss) == 0 || len(ppss) == 0 {
		return nil, fmt.Errorf("avcC needs SPS and PPS: %w", av.ErrDataInvalid)
	}
	rec, err := avc.CreateAVCDecConfRec(spss, ppss, true)
	if err != nil {
		return nil, fmt.Errorf("creating avcC: %w", err)
	}
	buf := &bytes.Buffer{}
	if err := rec.Encode(buf); err != nil {
		return nil, fmt.Errorf("encoding avcC: %w", err)
	}
	return buf.Bytes(), nil
}

func avcParseConfig(extradata []byte) ([][]byte, error) {
	rec, err := avc.DecodeAVCDecConfRec(extradata)
	if err != nil {
		return nil, fmt.Errorf("decoding avcC: %v: %w", err, av.ErrDataInvalid)
	}
	ps := make([][]byte, 0, len(rec.SPSnalus)+len(rec.PPSnalus))
	ps = append(ps, rec.SPSnalus...)
	ps = append(ps, rec.PPSnalus...)
	return ps, nil
}

func avcParseSPS(par *av.CodecParameters, nalu []byte) error {
	sps, err := avc.ParseSPSNALUnit(nalu, false)
	if err != nil {
		return fmt.Errorf("parsing SPS: %v: %w", err, av.ErrDataInvalid)
	}
	par.Width = int(sps.Width)
	par.Height = int(sps.Height)
	par.Profile = int(sps.Profile)
	par.Level = int(sps.Level)
	return nil
}

func init() {
	register(&family{
		id:          av.CodecH264,
		naluType:    avcNaluType,
		isParamSet:  func(t int) bool { return t == int(avc.NALU_SPS) || t == int(avc.NALU_PPS) },
		isSPS:       func(t int) bool { return t == int(avc.NALU_SPS) },
		isIRAP:      func(t int) bool { return t == int(avc.NALU_IDR) },
		isAUD:       func(t int) bool { return t == 9 },
		buildConfig: avcBuildConfig,
		parseConfig: avcParseConfig,
		parseSPS:    avcParseSPS,
	})
}
