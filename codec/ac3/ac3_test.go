package ac3

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseHeader(t *testing.T) {
	cases := []struct {
		name string
		data []byte
		want Header
	}{
		{
			"ac3 448k 5.1",
			[]byte{0x0b, 0x77, 0x00, 0x00, 0x1e, 0x40, 0xe1},
			Header{SampleRate: 48000, Channels: 6, BitRate: 448000, FrameSize: 1792, Samples: 1536, BSID: 8},
		},
		{
			"ac3 192k stereo 44.1",
			[]byte{0x0b, 0x77, 0x00, 0x00, 0x55, 0x40, 0x40},
			Header{SampleRate: 44100, Channels: 2, BitRate: 192000, FrameSize: 836, Samples: 1536, BSID: 8},
		},
		{
			"eac3 stereo",
			[]byte{0x0b, 0x77, 0x02, 0xff, 0x34, 0x80, 0x00},
			Header{EAC3: true, SampleRate: 48000, Channels: 2, BitRate: 384000, FrameSize: 1536, Samples: 1536, BSID: 16},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			h, err := ParseHeader(c.data)
			require.NoError(t, err)
			require.Equal(t, c.want, h)
		})
	}
}

func TestParseHeaderInvalid(t *testing.T) {
	_, err := ParseHeader([]byte{0x0b, 0x78, 0, 0, 0, 0, 0})
	require.Error(t, err)
	_, err = ParseHeader([]byte{0x0b, 0x77, 0, 0, 0xc0, 0x40, 0})
	require.Error(t, err)
}
