package mpegps

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Eyevinn/avdemux/av"
	"github.com/Eyevinn/avdemux/bytesio"
	"github.com/Eyevinn/avdemux/mpegts"
	"github.com/Eyevinn/avdemux/pes"
)

func TestStreamMapRoundTrip(t *testing.T) {
	m := &StreamMap{
		Version:     3,
		CurrentNext: true,
		Streams: []MapEntry{
			{StreamType: mpegts.StreamTypeH264, StreamID: 0xe0},
			{StreamType: StreamTypeG711A, StreamID: 0xc0, Descriptors: []mpegts.Descriptor{
				{Tag: mpegts.DescriptorLanguage, Data: []byte("eng\x00")},
			}},
		},
	}
	b := AppendStreamMap(nil, m)
	require.Equal(t, uint32(0), mpegts.CRC32(b))

	got, err := ParseStreamMap(b)
	require.NoError(t, err)
	require.Equal(t, byte(3), got.Version)
	require.True(t, got.CurrentNext)
	require.Len(t, got.Streams, 2)
	e, ok := got.Lookup(0xc0)
	require.True(t, ok)
	require.Equal(t, av.CodecPCMAlaw, codecForMap(e))
	require.Equal(t, "eng\x00", string(e.Descriptors[0].Data))
	e, ok = got.Lookup(0xe0)
	require.True(t, ok)
	require.Equal(t, av.CodecH264, codecForMap(e))
	_, ok = got.Lookup(0xe1)
	require.False(t, ok)

	_, err = ParseStreamMap(b[:8])
	require.ErrorIs(t, err, av.ErrDataInvalid)
}

func TestPackHeaderSCR(t *testing.T) {
	for _, scr := range []int64{0, 27_000_000, 1<<33*300 - 1, 12345678901} {
		b := AppendPackHeader(nil, scr, 20000)
		require.Len(t, b, packHeaderLength)
		require.Equal(t, scr, parseSCR(b[4:10]), "scr %d", scr)
	}
}

func TestScannerSkipsPacksAndPadding(t *testing.T) {
	var b []byte
	b = append(b, 0x12, 0x34) // garbage before the first pack
	b = AppendPackHeader(b, 900*300, 1000)
	b = append(b, 0x00, 0x00, 0x01, pes.StreamIDPadding, 0x00, 0x03, 0xff, 0xff, 0xff)
	first := len(b)
	b = pes.AppendHeader(b, 0xe0, 900, av.NoPTS, 4, true)
	b = append(b, 1, 2, 3, 4)
	b = append(b, 0x00, 0x00, 0x01, StartCodeEnd)

	s := NewScanner(bytesio.NewReader(bytes.NewReader(b)), nil)
	u, err := s.Next()
	require.NoError(t, err)
	require.Equal(t, byte(0xe0), u.StreamID)
	require.Equal(t, int64(first), u.Pos)
	require.Equal(t, int64(900*300), u.SCR)
	require.False(t, u.Truncated)
	require.Equal(t, 1, s.Packs)
	require.False(t, s.MPEG1)
	_, err = s.Next()
	require.Error(t, err)
}

func TestFindFrame(t *testing.T) {
	h := audioHeaderFor(av.CodecMP2)
	frame := mp2Frame()
	cases := []struct {
		name string
		data []byte
		off  int
		ok   bool
	}{
		{"confirmed", append(append([]byte{}, frame...), frame[:4]...), 0, true},
		{"unconfirmed", frame, 0, false},
		{"leading garbage", append([]byte{0x00, 0x11, 0x22}, append(frame, frame...)...), 3, true},
		{"none", []byte{0x55, 0x55, 0x55, 0x55, 0x55}, -1, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			off, ok := findFrame(c.data, h)
			require.Equal(t, c.off, off)
			require.Equal(t, c.ok, ok)
		})
	}
}

func TestInterpolator(t *testing.T) {
	pkt := func(dts int64) *av.Packet {
		p := av.NewPacket()
		p.DTS, p.PTS = dts, dts
		return p
	}
	p := newInterpolator()
	require.Len(t, p.push(pkt(1000)), 1)
	require.Nil(t, p.push(pkt(av.NoPTS)))
	require.Nil(t, p.push(pkt(av.NoPTS)))
	out := p.push(pkt(4000))
	require.Len(t, out, 3)
	require.Equal(t, []int64{2000, 3000, 4000}, []int64{out[0].DTS, out[1].DTS, out[2].DTS})

	// trailing pictures are extrapolated with the last step
	require.Nil(t, p.push(pkt(av.NoPTS)))
	out = p.flush()
	require.Len(t, out, 1)
	require.Equal(t, int64(5000), out[0].DTS)
	require.Equal(t, int64(5000), out[0].PTS)
}

func TestProbe(t *testing.T) {
	f := buildPS(10, true)
	require.Equal(t, 100, Probe(f.data[:min(len(f.data), 8192)]))
	ts := bytes.Repeat([]byte{0x47, 0x1f, 0xff, 0x10}, 500)
	require.Equal(t, 0, Probe(ts))
}
