package opus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestControlHeader(t *testing.T) {
	cases := []struct {
		name string
		h    ControlHeader
	}{
		{"small", ControlHeader{AUSize: 100}},
		{"size 255", ControlHeader{AUSize: 255}},
		{"large with trims", ControlHeader{AUSize: 700, StartTrim: 312, EndTrim: 20}},
		{"extension", ControlHeader{AUSize: 3, Extension: []byte{1, 2}}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			enc := c.h.Encode()
			got, err := ParseControlHeader(enc)
			require.NoError(t, err)
			want := c.h
			want.Length = len(enc)
			require.Equal(t, want, got)
		})
	}
}

func TestControlHeaderLayout(t *testing.T) {
	require.Equal(t, []byte{0x7f, 0xe0, 0xff, 0x2d}, ControlHeader{AUSize: 300}.Encode())
	_, err := ParseControlHeader([]byte{0x7f, 0xe0, 0xff})
	require.Error(t, err)
	_, err = ParseControlHeader([]byte{0x7e, 0xe0, 0x01})
	require.Error(t, err)
}

func TestPacketSamples(t *testing.T) {
	n, err := PacketSamples([]byte{0xfc})
	require.NoError(t, err)
	require.Equal(t, 960, n)
	n, err = PacketSamples([]byte{0x79})
	require.NoError(t, err)
	require.Equal(t, 1920, n)
	n, err = PacketSamples([]byte{0x03, 0x03})
	require.NoError(t, err)
	require.Equal(t, 1440, n)
}
