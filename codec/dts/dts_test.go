package dts

import (
	"testing"

	"github.com/stretchr/testify/require"
)

var header = []byte{0x7f, 0xfe, 0x80, 0x01, 0xfc, 0x3c, 0x7d, 0xc2, 0x75, 0xe0, 0x02}

func TestParseHeader(t *testing.T) {
	h, err := ParseHeader(header)
	require.NoError(t, err)
	require.Equal(t, Header{SampleRate: 48000, Channels: 6, BitRate: 768000, FrameSize: 2013, Samples: 512}, h)
}

func TestFindSync(t *testing.T) {
	buf := append([]byte{0x00, 0x7f, 0xfe, 0x00}, header...)
	require.Equal(t, 4, FindSync(buf))
	require.Equal(t, -1, FindSync(buf[:6]))
	_, err := ParseHeader(buf)
	require.Error(t, err)
}
