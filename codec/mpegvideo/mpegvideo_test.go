package mpegvideo

import (
	"testing"

	"github.com/Eyevinn/avdemux/av"
	"github.com/stretchr/testify/require"
)

// sequence header 720x576 25 fps, then a sequence extension
var seqHeader = []byte{
	0x00, 0x00, 0x01, 0xb3, 0x2d, 0x02, 0x40, 0x33, 0x24, 0x9f, 0x23, 0x80,
	0x00, 0x00, 0x01, 0xb5, 0x14, 0x8a, 0x00, 0x01, 0x00, 0x00,
}

func picture(codingType byte) []byte {
	return []byte{0x00, 0x00, 0x01, 0x00, 0x00, codingType << 3, 0xff, 0xf8, 0x00, 0x00, 0x01, 0x01, 0x11, 0x22}
}

func TestParseSequenceHeader(t *testing.T) {
	data := append(append([]byte{}, seqHeader...), picture(PictureI)...)
	si, ok := ParseSequenceHeader(data)
	require.True(t, ok)
	require.Equal(t, 720, si.Width)
	require.Equal(t, 576, si.Height)
	require.Equal(t, av.Rational{Num: 25, Den: 1}, si.FrameRate)
	require.True(t, si.MPEG2)
	require.Equal(t, av.CodecMPEG2Video, si.CodecID())
	require.Equal(t, seqHeader, si.Header)
}

func TestFrameStartsAndTypes(t *testing.T) {
	var data []byte
	data = append(data, seqHeader...)
	data = append(data, picture(PictureI)...)
	second := len(data)
	data = append(data, picture(PictureB)...)
	third := len(data)
	data = append(data, picture(PictureP)...)

	require.Equal(t, []int{0, second, third}, FrameStarts(data))
	require.True(t, IsKeyframe(data))
	require.False(t, IsKeyframe(data[second:third]))
	require.Equal(t, PictureB, PictureType(data[second:third]))
	require.Equal(t, PictureP, PictureType(data[third:]))

	caps := av.LookupCapability(av.CodecMPEG2Video)
	require.NotNil(t, caps)
	require.True(t, caps.IsIDR(data[:second], true))
}
