package pes

import (
	"bytes"
	"testing"

	"github.com/Eyevinn/avdemux/av"
	"github.com/stretchr/testify/require"
)

func TestTimestampRoundTrip(t *testing.T) {
	for _, ts := range []int64{0, 1, 90000, 1<<32 + 12345, MaxTimestamp - 1} {
		b := make([]byte, 5)
		EncodeTimestamp(b, 0x2, ts)
		require.Equal(t, byte(0x21), b[0]&0xf1)
		require.Equal(t, byte(1), b[2]&1)
		require.Equal(t, byte(1), b[4]&1)
		require.Equal(t, ts, DecodeTimestamp(b))
	}
	b := make([]byte, 5)
	EncodeTimestamp(b, 0x2, MaxTimestamp+5)
	require.Equal(t, int64(5), DecodeTimestamp(b))
}

func TestParseMPEG2Header(t *testing.T) {
	cases := []struct {
		name      string
		pts, dts  int64
		wantLen   int
		wantDTS   int64
		streamID  byte
		payload   int
		alignment bool
	}{
		{"pts only", 900000, av.NoPTS, 14, 900000, 0xc0, 100, false},
		{"pts and dts", 903600, 900000, 19, 900000, 0xe0, 2000, true},
		{"no timestamps", av.NoPTS, av.NoPTS, 9, av.NoPTS, 0xbd, 10, false},
		{"unbounded video", 3000, 3000, 14, 3000, 0xe0, 70000, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			hdr := AppendHeader(nil, c.streamID, c.pts, c.dts, c.payload, c.alignment)
			require.Len(t, hdr, HeaderSize(c.pts, c.dts))
			pkt := append(hdr, make([]byte, c.payload)...)
			h, err := ParseHeader(pkt)
			require.NoError(t, err)
			require.True(t, h.MPEG2)
			require.Equal(t, c.streamID, h.StreamID)
			require.Equal(t, c.wantLen, h.HeaderLength)
			require.Equal(t, c.pts, h.PTS)
			require.Equal(t, c.wantDTS, h.DTS)
			require.Equal(t, c.alignment, h.DataAlignment)
			if c.payload+h.HeaderLength-FixedHeaderLength > 0xffff {
				require.Equal(t, -1, h.PayloadLength())
			} else {
				require.Equal(t, c.payload, h.PayloadLength())
			}
		})
	}
}

func TestParseMPEG1Header(t *testing.T) {
	ts := make([]byte, 10)
	EncodeTimestamp(ts, 0x3, 7200)
	EncodeTimestamp(ts[5:], 0x1, 3600)
	// stuffing, STD buffer, PTS+DTS
	b := []byte{0x00, 0x00, 0x01, 0xe0, 0x00, 0x10, 0xff, 0xff, 0x60, 0x2e}
	b = append(b, ts...)
	b = append(b, 0xaa, 0xbb)
	h, err := ParseHeader(b)
	require.NoError(t, err)
	require.False(t, h.MPEG2)
	require.Equal(t, int64(7200), h.PTS)
	require.Equal(t, int64(3600), h.DTS)
	require.Equal(t, 20, h.HeaderLength)
	require.Equal(t, 2, h.PayloadLength())

	// no timestamps
	h, err = ParseHeader([]byte{0x00, 0x00, 0x01, 0xc0, 0x00, 0x03, 0x0f, 0x01, 0x02})
	require.NoError(t, err)
	require.Equal(t, av.NoPTS, h.PTS)
	require.Equal(t, 7, h.HeaderLength)
}

func TestParseHeaderErrors(t *testing.T) {
	cases := []struct {
		name string
		data []byte
	}{
		{"short", []byte{0x00, 0x00, 0x01, 0xe0}},
		{"no start code", []byte{0x00, 0x01, 0x01, 0xe0, 0x00, 0x00, 0x80, 0x00, 0x00}},
		{"header beyond buffer", []byte{0x00, 0x00, 0x01, 0xe0, 0x00, 0x00, 0x80, 0x80, 0x05, 0x21}},
		{"header beyond packet length", []byte{0x00, 0x00, 0x01, 0xe0, 0x00, 0x02, 0x80, 0x00, 0x00}},
		{"forbidden pts flags", []byte{0x00, 0x00, 0x01, 0xe0, 0x00, 0x00, 0x80, 0x40, 0x00}},
		{"too much stuffing", append([]byte{0x00, 0x00, 0x01, 0xc0, 0x00, 0x20}, bytes.Repeat([]byte{0xff}, 20)...)},
		{"bad mpeg1 byte", []byte{0x00, 0x00, 0x01, 0xc0, 0x00, 0x03, 0x55, 0x00, 0x00}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := ParseHeader(c.data)
			require.ErrorIs(t, err, av.ErrDataInvalid)
		})
	}
}

func TestHeaderWithoutOptionalPart(t *testing.T) {
	h, err := ParseHeader([]byte{0x00, 0x00, 0x01, StreamIDPadding, 0x00, 0x04, 0xff, 0xff, 0xff, 0xff})
	require.NoError(t, err)
	require.Equal(t, FixedHeaderLength, h.HeaderLength)
	require.Equal(t, 4, h.PayloadLength())
	require.True(t, IsAudio(0xc3))
	require.True(t, IsVideo(0xe1))
	require.False(t, IsVideo(StreamIDPrivate1))
}

func TestWriteHeader(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHeader(&buf, 0xe0, 90000, av.NoPTS, 4, true))
	require.Equal(t, AppendHeader(nil, 0xe0, 90000, av.NoPTS, 4, true), buf.Bytes())
	require.Equal(t, []byte{0x00, 0x00, 0x01, 0xe0, 0x00, 0x0c, 0x84, 0x80, 0x05}, buf.Bytes()[:9])
}
