package rtsp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Eyevinn/avdemux/av"
)

const (
	spsB64 = "J2QAIKwrQCgC3YCIAAADAAgAAAMDJ0IAFFgABRDt73wdocMq"
	ppsB64 = "KO48sA=="
)

func sdpBody(lines ...string) []byte {
	head := []string{
		"v=0",
		"o=- 0 0 IN IP4 127.0.0.1",
		"s=camera",
		"c=IN IP4 0.0.0.0",
		"t=0 0",
		"a=control:*",
	}
	return []byte(strings.Join(append(head, lines...), "\r\n") + "\r\n")
}

var cameraSDP = sdpBody(
	"m=video 0 RTP/AVP 96",
	"a=rtpmap:96 H264/90000",
	"a=fmtp:96 packetization-mode=1;profile-level-id=640020;sprop-parameter-sets="+spsB64+","+ppsB64,
	"a=control:trackID=0",
	"m=audio 0 RTP/AVP 97",
	"a=rtpmap:97 MPEG4-GENERIC/48000/2",
	"a=fmtp:97 streamtype=5;profile-level-id=1;mode=AAC-hbr;SizeLength=13;IndexLength=3;IndexDeltaLength=3;config=1190",
	"a=control:trackID=1",
	"m=application 0 RTP/AVP 107",
	"a=rtpmap:107 vnd.onvif.metadata/90000",
	"a=control:trackID=2",
)

func TestParseSDP(t *testing.T) {
	medias, err := ParseSDP(cameraSDP)
	require.NoError(t, err)
	require.Len(t, medias, 3)

	v := medias[0]
	require.Equal(t, "video", v.Type)
	require.Equal(t, "trackID=0", v.Control)
	require.Equal(t, uint8(96), v.PayloadType)
	require.Equal(t, av.CodecH264, v.Codec)
	require.Equal(t, 90000, v.ClockRate)
	require.Equal(t, "1", v.Fmtp["packetization-mode"])
	require.NotEmpty(t, v.Extradata)
	require.Equal(t, byte(1), v.Extradata[0], "avcC version")

	a := medias[1]
	require.Equal(t, av.CodecAAC, a.Codec)
	require.Equal(t, 48000, a.ClockRate)
	require.Equal(t, 2, a.Channels)
	require.Equal(t, []byte{0x11, 0x90}, a.Extradata)
	require.Equal(t, 13, a.SizeLength)
	require.Equal(t, 3, a.IndexLength)
	require.Equal(t, 3, a.IndexDeltaLength)

	m := medias[2]
	require.Equal(t, "application", m.Type)
	require.Equal(t, av.CodecNone, m.Codec)
}

func TestParseSDPAudio(t *testing.T) {
	cases := []struct {
		name     string
		lines    []string
		codec    av.CodecID
		rate     int
		channels int
	}{
		{"static pcmu", []string{"m=audio 0 RTP/AVP 0"}, av.CodecPCMMulaw, 8000, 1},
		{"static pcma", []string{"m=audio 0 RTP/AVP 8"}, av.CodecPCMAlaw, 8000, 1},
		{"static mpa", []string{"m=audio 0 RTP/AVP 14"}, av.CodecMP3, 90000, 1},
		{"opus mono", []string{"m=audio 0 RTP/AVP 111", "a=rtpmap:111 opus/48000/2", "a=fmtp:111 stereo=0"}, av.CodecOpus, 48000, 1},
		{"opus", []string{"m=audio 0 RTP/AVP 111", "a=rtpmap:111 opus/48000/2"}, av.CodecOpus, 48000, 2},
		{"ac3", []string{"m=audio 0 RTP/AVP 100", "a=rtpmap:100 AC3/48000/6"}, av.CodecAC3, 48000, 6},
		{"unknown", []string{"m=audio 0 RTP/AVP 101", "a=rtpmap:101 L16/44100/2"}, av.CodecNone, 44100, 2},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			medias, err := ParseSDP(sdpBody(c.lines...))
			require.NoError(t, err)
			require.Len(t, medias, 1)
			require.Equal(t, c.codec, medias[0].Codec)
			require.Equal(t, c.rate, medias[0].ClockRate)
			require.Equal(t, c.channels, medias[0].Channels)
		})
	}
}

func TestParseSDPErrors(t *testing.T) {
	cases := []struct {
		name string
		body []byte
	}{
		{"not sdp", []byte("hello\r\n")},
		{"bad payload type", sdpBody("m=video 0 RTP/AVP h264")},
		{"bad sprop", sdpBody("m=video 0 RTP/AVP 96", "a=rtpmap:96 H264/90000", "a=fmtp:96 sprop-parameter-sets=!!!")},
		{"bad aac config", sdpBody("m=audio 0 RTP/AVP 97", "a=rtpmap:97 MPEG4-GENERIC/44100", "a=fmtp:97 config=xyz")},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := ParseSDP(c.body)
			require.ErrorIs(t, err, av.ErrDataInvalid)
		})
	}
}
