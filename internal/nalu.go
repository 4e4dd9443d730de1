package internal

import (
	"fmt"

	"github.com/Eyevinn/mp4ff/avc"
	"github.com/Eyevinn/mp4ff/hevc"
	"github.com/Eyevinn/mp4ff/sei"

	"github.com/Eyevinn/avdemux/av"
	"github.com/Eyevinn/avdemux/codec/nalu"
	"github.com/Eyevinn/avdemux/common"
)

type NaluFrameData struct {
	PID     uint16     `json:"pid"`
	RAI     bool       `json:"rai"`
	PTS     int64      `json:"pts"`
	DTS     int64      `json:"dts,omitempty"`
	ImgType string     `json:"imgType,omitempty"`
	NALUS   []NaluData `json:"nalus,omitempty"`
}

type NaluData struct {
	Type string `json:"type"`
	Len  int    `json:"len"`
	Data any    `json:"data,omitempty"`
}

type SeiOut struct {
	Msg     string `json:"msg"`
	Payload any    `json:"payload,omitempty"`
}

// videoStream lists the NAL units of one AVC or HEVC stream and keeps the
// parameter sets needed to interpret SEI messages.
type videoStream struct {
	st      *av.Stream
	psSeen  bool
	avcSPS  map[uint32]*avc.SPS
	avcPPS  map[uint32]*avc.PPS
	hevcSPS map[uint32]*hevc.SPS
	hevcPPS map[uint32]*hevc.PPS
	stats   *StreamStatistics
}

func newVideoStream(st *av.Stream, stats *StreamStatistics) *videoStream {
	return &videoStream{
		st:      st,
		avcSPS:  make(map[uint32]*avc.SPS, 1),
		avcPPS:  make(map[uint32]*avc.PPS, 1),
		hevcSPS: make(map[uint32]*hevc.SPS, 1),
		hevcPPS: make(map[uint32]*hevc.PPS, 1),
		stats:   stats,
	}
}

func (v *videoStream) codec() av.CodecID {
	return v.st.Codecpar.CodecID
}

// parameterSets returns the parameter sets announced with pkt, falling back to
// the stream extradata for the first packet.
func (v *videoStream) parameterSets(pkt *av.Packet) ([][]byte, error) {
	ed, ok := pkt.SideDataOf(av.SideDataNewExtradata)
	if !ok && !v.psSeen && len(v.st.Codecpar.Extradata) > 0 {
		ed, ok = v.st.Codecpar.Extradata, true
	}
	if !ok || v.st.Caps == nil {
		return nil, nil
	}
	v.psSeen = true
	annexB, err := v.st.Caps.GenerateAnnexBExtradata(ed)
	if err != nil {
		return nil, fmt.Errorf("parameter sets of pid %d: %w", v.st.ID, err)
	}
	return nalu.SplitAnnexB(annexB), nil
}

// setParameterSet parses an SPS or PPS and reports its kind and id. kind is
// empty for other NAL units.
func (v *videoStream) setParameterSet(n []byte) (kind string, nr uint32, details any, err error) {
	switch v.codec() {
	case av.CodecH264:
		switch avc.GetNaluType(n[0]) {
		case avc.NALU_SPS:
			sps, err := avc.ParseSPSNALUnit(n, true)
			if err != nil {
				return "", 0, nil, fmt.Errorf("cannot parse SPS: %w", err)
			}
			v.avcSPS[sps.ParameterID] = sps
			return "SPS", sps.ParameterID, sps, nil
		case avc.NALU_PPS:
			pps, err := avc.ParsePPSNALUnit(n, v.avcSPS)
			if err != nil {
				return "", 0, nil, fmt.Errorf("cannot parse PPS: %w", err)
			}
			v.avcPPS[pps.PicParameterSetID] = pps
			return "PPS", pps.PicParameterSetID, pps, nil
		}
	case av.CodecHEVC:
		switch hevc.GetNaluType(n[0]) {
		case hevc.NALU_VPS:
			return "VPS", 0, nil, nil
		case hevc.NALU_SPS:
			sps, err := hevc.ParseSPSNALUnit(n)
			if err != nil {
				return "", 0, nil, fmt.Errorf("cannot parse SPS: %w", err)
			}
			v.hevcSPS[uint32(sps.SpsID)] = sps
			return "SPS", uint32(sps.SpsID), sps, nil
		case hevc.NALU_PPS:
			pps, err := hevc.ParsePPSNALUnit(n, v.hevcSPS)
			if err != nil {
				return "", 0, nil, fmt.Errorf("cannot parse PPS: %w", err)
			}
			v.hevcPPS[pps.PicParameterSetID] = pps
			return "PPS", pps.PicParameterSetID, pps, nil
		}
	}
	return "", 0, nil, nil
}

func (v *videoStream) naluTypeName(n []byte) string {
	if v.codec() == av.CodecHEVC {
		return hevc.GetNaluType(n[0]).String()
	}
	return avc.GetNaluType(n[0]).String()
}

func firstOf[K comparable, V any](m map[K]*V) *V {
	for _, v := range m {
		return v
	}
	return nil
}

func seiParts(msgs []sei.SEIMessage, details bool) []SeiOut {
	parts := make([]SeiOut, 0, len(msgs))
	for _, msg := range msgs {
		out := SeiOut{Msg: sei.SEIType(msg.Type()).String()}
		if details {
			switch m := msg.(type) {
			case *sei.PicTimingAvcSEI:
				if len(m.Clocks) > 0 {
					out.Payload = fmt.Sprintf("%s", m.Clocks[0])
				}
			case *sei.PicTimingHevcSEI:
				out.Payload = m
			default:
				out.Payload = msg.String()
			}
		}
		parts = append(parts, out)
	}
	return parts
}

// parseSEI returns nil when no SPS has been seen, since picture timing cannot
// be interpreted without one.
func (v *videoStream) parseSEI(n []byte, o Options) (any, error) {
	var msgs []sei.SEIMessage
	var err error
	switch v.codec() {
	case av.CodecH264:
		sps := firstOf(v.avcSPS)
		if sps == nil {
			return nil, nil
		}
		msgs, err = avc.ParseSEINalu(n, sps)
	case av.CodecHEVC:
		sps := firstOf(v.hevcSPS)
		if sps == nil {
			return nil, nil
		}
		msgs, err = hevc.ParseSEINalu(n, sps)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot parse SEI NALU: %w", err)
	}
	return seiParts(msgs, o.ShowSEIDetails), nil
}

func (v *videoStream) isSEI(n []byte) bool {
	if v.codec() == av.CodecHEVC {
		t := hevc.GetNaluType(n[0])
		return t == hevc.NALU_SEI_PREFIX || t == hevc.NALU_SEI_SUFFIX
	}
	return avc.GetNaluType(n[0]) == avc.NALU_SEI
}

func (v *videoStream) isIDR(n []byte) bool {
	if v.codec() == av.CodecHEVC {
		t := hevc.GetNaluType(n[0])
		return t == hevc.NALU_IDR_W_RADL || t == hevc.NALU_IDR_N_LP
	}
	return avc.GetNaluType(n[0]) == avc.NALU_IDR
}

// ParsePacket prints the parameter sets and NAL units of one access unit.
func (v *videoStream) ParsePacket(jp *common.JsonPrinter, pkt *av.Packet, o Options) error {
	pid := uint16(v.st.ID)
	pts, dts := pkt.PTS, pkt.DTS
	if pts == av.NoPTS {
		pts = dts
	}
	if dts == av.NoPTS {
		// Use PTS as DTS if DTS is not present
		dts = pts
	}
	nfd := NaluFrameData{PID: pid, RAI: pkt.IsKey()}
	if pts != av.NoPTS {
		nfd.PTS = common.To90k(pts, pkt.TimeBase)
		nfd.DTS = common.To90k(dts, pkt.TimeBase)
	}

	paramSets, err := v.parameterSets(pkt)
	if err != nil {
		return err
	}
	nalus, err := nalu.Split(pkt.Data, pkt.Flags&av.FlagAnnexB != 0, nalu.LengthSize(v.codec(), v.st.Codecpar.Extradata))
	if err != nil {
		return fmt.Errorf("splitting access unit of pid %d: %w", pid, err)
	}

	for _, n := range append(paramSets, nalus...) {
		if len(n) == 0 {
			continue
		}
		nd := NaluData{Type: v.naluTypeName(n), Len: len(n)}
		kind, nr, details, err := v.setParameterSet(n)
		if err != nil {
			return err
		}
		switch {
		case kind != "":
			jp.PrintPS(pid, kind, nr, n, details, o.VerbosePSInfo, o.ShowPS)
		case v.isSEI(n):
			if nd.Data, err = v.parseSEI(n, o); err != nil {
				return err
			}
		case v.isIDR(n):
			v.stats.IDRPTS = append(v.stats.IDRPTS, nfd.PTS)
		}
		if v.codec() == av.CodecH264 {
			if t := avc.GetNaluType(n[0]); t == avc.NALU_IDR || t == avc.NALU_NON_IDR {
				if sliceType, err := avc.GetSliceTypeFromNALU(n); err == nil {
					nfd.ImgType = fmt.Sprintf("[%s]", sliceType)
				}
			}
		}
		nfd.NALUS = append(nfd.NALUS, nd)
	}

	jp.Print(nfd, o.ShowNALU)
	return jp.Error()
}
