package common

import "github.com/Eyevinn/avdemux/av"

// ElementaryStreamInfo describes one demuxed stream. PID is the stream id of
// the container: the TS PID, the PS stream id or the RTP payload type.
type ElementaryStreamInfo struct {
	PID      uint16 `json:"pid"`
	Codec    string `json:"codec"`
	Type     string `json:"type"`
	Language string `json:"language,omitempty"`
}

func StreamInfo(st *av.Stream) ElementaryStreamInfo {
	info := ElementaryStreamInfo{
		PID:      uint16(st.ID),
		Codec:    st.Codecpar.CodecID.String(),
		Type:     st.Codecpar.MediaType.String(),
		Language: st.Language,
	}
	if st.Codecpar.CodecID == av.CodecSCTE35 {
		info.Type = "cue"
	}
	return info
}
