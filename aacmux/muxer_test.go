package aacmux

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Eyevinn/avdemux/av"
	"github.com/Eyevinn/avdemux/bsf"
	"github.com/Eyevinn/avdemux/bytesio"
	"github.com/Eyevinn/avdemux/codec/aac"
)

func aacStream(t *testing.T) *av.Stream {
	t.Helper()
	st := av.NewStream(0, 0, av.Rational{Num: 1, Den: 48000})
	st.SetCodec(av.CodecAAC)
	asc, err := aac.EncodeConfig(aac.Config{ObjectType: aac.AOTAACLC, SampleRate: 48000, Channels: 2})
	require.NoError(t, err)
	st.SetExtradata(asc)
	return st
}

func TestWriteADTS(t *testing.T) {
	st := aacStream(t)
	var out bytes.Buffer
	m := NewMuxer(bytesio.NewWriter(&out), MuxerOptions{})
	require.NoError(t, m.WriteHeader([]*av.Stream{st}))

	frames := [][]byte{bytes.Repeat([]byte{0x21}, 300), {1, 2, 3}, bytes.Repeat([]byte{0x5a}, 1500)}
	for i, fr := range frames {
		p := av.NewPacket()
		p.Data = fr
		p.PTS, p.DTS = int64(i)*1024, int64(i)*1024
		require.NoError(t, m.WritePacket(p))
	}
	require.NoError(t, m.WriteTrailer())
	require.Equal(t, 3, m.frames)

	h, err := aac.ParseADTSHeader(out.Bytes())
	require.NoError(t, err)
	require.Equal(t, len(frames[0]), h.PayloadLength())

	par := av.CodecParameters{CodecID: av.CodecAAC}
	dec, err := bsf.NewInit("adts2raw", &par, st.TimeBase)
	require.NoError(t, err)
	p := av.NewPacket()
	p.Data = out.Bytes()
	p.PTS = 0
	require.NoError(t, dec.Send(p))
	got := bsf.Drain(dec)
	require.Len(t, got, len(frames))
	for i, g := range got {
		require.Equal(t, frames[i], g.Data)
		require.Equal(t, int64(1024), g.Duration)
	}
}

func TestWriteADTSPassthrough(t *testing.T) {
	st := aacStream(t)
	h, err := aac.NewADTSHeader(aac.AOTAACLC, 48000, 2, 4)
	require.NoError(t, err)
	frame := append(h.Encode(), 9, 8, 7, 6)

	var out bytes.Buffer
	m := NewMuxer(bytesio.NewWriter(&out), MuxerOptions{})
	require.NoError(t, m.WriteHeader([]*av.Stream{st}))
	p := av.NewPacket()
	p.Data = frame
	require.NoError(t, m.WritePacket(p))
	require.NoError(t, m.WriteTrailer())
	require.Equal(t, frame, out.Bytes())
}

func TestWriteHeaderErrors(t *testing.T) {
	m := NewMuxer(bytesio.NewWriter(&bytes.Buffer{}), MuxerOptions{})
	require.ErrorIs(t, m.WriteHeader(nil), av.ErrFormatNotSupport)

	st := av.NewStream(0, 0, av.TimeBase90k)
	st.SetCodec(av.CodecMP2)
	require.ErrorIs(t, m.WriteHeader([]*av.Stream{st}), av.ErrCodecNotSupport)

	require.ErrorIs(t, m.WritePacket(av.NewPacket()), av.ErrDataInvalid)
}
