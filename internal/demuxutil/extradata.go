package demuxutil

import (
	"github.com/Eyevinn/avdemux/av"
	"github.com/Eyevinn/avdemux/codec/mpegvideo"
)

// CaptureExtradata stores extradata on st the first time it becomes available,
// from new extradata side data or, for MPEG-1/2 video, from a sequence header
// in the packet. It reports whether the stream extradata changed and any error
// parsing codec parameters from it.
func CaptureExtradata(st *av.Stream, pkt *av.Packet) (bool, error) {
	if ed, ok := pkt.SideDataOf(av.SideDataNewExtradata); ok {
		return st.SetExtradata(ed)
	}
	if len(st.Codecpar.Extradata) > 0 {
		return false, nil
	}
	switch st.Codecpar.CodecID {
	case av.CodecMPEG1Video, av.CodecMPEG2Video:
		si, ok := mpegvideo.ParseSequenceHeader(pkt.Data)
		if !ok {
			return false, nil
		}
		if si.CodecID() != st.Codecpar.CodecID {
			st.SetCodec(si.CodecID())
		}
		return st.SetExtradata(si.Header)
	}
	return false, nil
}

// IsKeyframe applies the codec specific keyframe test: audio is always key,
// video is key when its capability record finds an IDR or I-picture.
func IsKeyframe(st *av.Stream, data []byte, annexB bool) bool {
	switch st.Codecpar.MediaType {
	case av.MediaTypeAudio:
		return true
	case av.MediaTypeVideo:
		if st.Caps != nil && st.Caps.IsIDR != nil {
			return st.Caps.IsIDR(data, annexB)
		}
		return false
	}
	return true
}
