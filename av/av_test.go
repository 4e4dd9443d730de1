package av

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRescale(t *testing.T) {
	cases := []struct {
		name     string
		v        int64
		from, to Rational
		want     int64
	}{
		{"aac frame 44.1k to 90k", 1024, Rational{1, 44100}, TimeBase90k, 2090},
		{"aac frame 48k to 90k", 1024, Rational{1, 48000}, TimeBase90k, 1920},
		{"90k to ms", 900000, TimeBase90k, TimeBaseMsec, 10000},
		{"negative", -3000, TimeBase90k, TimeBaseMsec, -33},
		{"nopts", NoPTS, TimeBase90k, TimeBaseMsec, NoPTS},
		{"large", 1 << 40, TimeBase90k, Rational{1, 27000000}, (1 << 40) * 300},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			require.Equal(t, c.want, Rescale(c.v, c.from, c.to))
		})
	}
}

func TestSideData(t *testing.T) {
	p := NewPacket()
	_, ok := p.SideDataOf(SideDataNewExtradata)
	require.False(t, ok)
	p.AddSideData(SideDataNewExtradata, []byte{1})
	p.AddSideData(SideDataNewExtradata, []byte{2})
	require.Len(t, p.SideData, 1)
	d, ok := p.SideDataOf(SideDataNewExtradata)
	require.True(t, ok)
	require.Equal(t, []byte{2}, d)

	c := p.Clone()
	c.SideData[0].Data[0] = 9
	require.Equal(t, []byte{2}, p.SideData[0].Data)
}

func TestStreamSetExtradata(t *testing.T) {
	s := NewStream(0, 256, TimeBase90k)
	s.SetCodec(CodecAAC)
	require.Equal(t, MediaTypeAudio, s.Codecpar.MediaType)
	for _, c := range []struct {
		data    []byte
		changed bool
	}{
		{[]byte{0x12, 0x10}, true},
		{[]byte{0x12, 0x10}, false},
		{nil, false},
		{[]byte{0x11, 0x90}, true},
	} {
		changed, err := s.SetExtradata(c.data)
		require.NoError(t, err)
		require.Equal(t, c.changed, changed)
	}
}

func TestStreamSetExtradataParseError(t *testing.T) {
	RegisterCapability(CodecDTS, &Capability{Name: "dts", ParseCodecParameters: func(par *CodecParameters, ed []byte) error {
		if len(ed) < 2 {
			return ErrDataInvalid
		}
		par.Channels = int(ed[1])
		return nil
	}})
	defer delete(capabilities, CodecDTS)

	s := NewStream(0, 256, TimeBase90k)
	s.SetCodec(CodecDTS)
	changed, err := s.SetExtradata([]byte{0, 6})
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, 6, s.Codecpar.Channels)

	changed, err = s.SetExtradata([]byte{1})
	require.True(t, changed)
	require.ErrorIs(t, err, ErrDataInvalid)
	require.Equal(t, []byte{1}, s.Codecpar.Extradata)
}

func TestPool(t *testing.T) {
	pool := NewPacketPool()
	p := pool.Alloc()
	p.Data = append(p.Data, 1, 2, 3)
	p.PTS = 5
	pool.Release(p)
	q := pool.Alloc()
	require.Equal(t, NoPTS, q.PTS)
	require.Len(t, q.Data, 0)
}
