package nalu

import (
	"encoding/hex"
	"testing"

	"github.com/Eyevinn/avdemux/av"
	"github.com/stretchr/testify/require"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func TestSplitJoin(t *testing.T) {
	nalus := [][]byte{{0x09, 0xf0}, {0x65, 0x88, 0x84}, {0x41, 0x9a}}
	annexB := JoinAnnexB(nalus)
	require.True(t, IsAnnexB(annexB))
	require.Equal(t, nalus, SplitAnnexB(annexB))

	avcc := JoinAVCC(nalus)
	require.False(t, IsAnnexB(avcc))
	got, err := SplitAVCC(avcc, 4)
	require.NoError(t, err)
	require.Equal(t, nalus, got)

	_, err = SplitAVCC(avcc[:len(avcc)-1], 4)
	require.ErrorIs(t, err, av.ErrDataInvalid)
}

func TestRemoveEmulationPrevention(t *testing.T) {
	in := []byte{0x00, 0x00, 0x03, 0x01, 0x00, 0x00, 0x03, 0x00, 0x03}
	require.Equal(t, []byte{0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x03}, RemoveEmulationPrevention(in))
}

func TestH264Capability(t *testing.T) {
	sps := mustHex(t, "27640020ac2b402802dd80880000030008000003032742001458000510edef7c1da1c32a")
	pps := mustHex(t, "28ee3cb0")
	idr := []byte{0x65, 0x88, 0x84, 0x00, 0x33}
	caps := av.LookupCapability(av.CodecH264)
	require.NotNil(t, caps)

	extradata, err := caps.GenerateExtradata([][]byte{sps, pps})
	require.NoError(t, err)
	require.Equal(t, byte(1), extradata[0])
	require.Equal(t, 4, LengthSize(av.CodecH264, extradata))

	annexB, err := caps.GenerateAnnexBExtradata(extradata)
	require.NoError(t, err)
	require.Equal(t, JoinAnnexB([][]byte{sps, pps}), annexB)

	par := av.CodecParameters{}
	require.NoError(t, caps.ParseCodecParameters(&par, extradata))
	require.Equal(t, 100, par.Profile)
	require.Equal(t, 32, par.Level)
	require.Greater(t, par.Width, 0)

	frame := JoinAnnexB([][]byte{AUD(av.CodecH264), sps, pps, idr})
	require.True(t, caps.IsIDR(frame, true))
	avcc, ps, err := caps.AnnexBToAVCC(frame)
	require.NoError(t, err)
	require.Equal(t, [][]byte{sps, pps}, ps)
	require.Equal(t, JoinAVCC([][]byte{idr}), avcc)
	require.True(t, caps.IsIDR(avcc, false))

	back, err := caps.AVCCToAnnexB(avcc, 4)
	require.NoError(t, err)
	require.Equal(t, JoinAnnexB([][]byte{idr}), back)
	require.False(t, caps.IsIDR(JoinAnnexB([][]byte{{0x41, 0x9a, 0x00}}), true))
}

func TestHEVCConfig(t *testing.T) {
	vps := mustHex(t, "40010c01ffff")
	sps := mustHex(t, "42010101600000030090000003000003005da00280802d")
	pps := mustHex(t, "4401c172b46240")
	caps := av.LookupCapability(av.CodecHEVC)
	require.NotNil(t, caps)

	extradata, err := caps.GenerateExtradata([][]byte{pps, sps, vps})
	require.NoError(t, err)
	require.Equal(t, byte(0x01), extradata[1])
	require.Equal(t, byte(0x5d), extradata[12])
	require.Equal(t, 4, LengthSize(av.CodecHEVC, extradata))

	ps, err := hevcParseConfig(extradata)
	require.NoError(t, err)
	require.Equal(t, [][]byte{vps, sps, pps}, ps)

	idr := []byte{0x26, 0x01, 0xaf, 0x00}
	require.True(t, caps.IsIDR(JoinAnnexB([][]byte{idr}), true))
	require.True(t, IsParameterSet(av.CodecHEVC, vps))
	require.True(t, IsAUD(av.CodecHEVC, AUD(av.CodecHEVC)))
}

func TestVVCConfig(t *testing.T) {
	sps := []byte{0x00, 0x79, 0x00, 0x0b, 0x02, 0x33, 0x80}
	pps := []byte{0x00, 0x81, 0x00, 0x10}
	caps := av.LookupCapability(av.CodecVVC)
	require.NotNil(t, caps)

	extradata, err := caps.GenerateExtradata([][]byte{sps, pps})
	require.NoError(t, err)
	require.Equal(t, 4, LengthSize(av.CodecVVC, extradata))
	annexB, err := caps.GenerateAnnexBExtradata(extradata)
	require.NoError(t, err)
	require.Equal(t, JoinAnnexB([][]byte{sps, pps}), annexB)

	par := av.CodecParameters{}
	require.NoError(t, caps.ParseCodecParameters(&par, extradata))
	require.Equal(t, 1, par.Profile)
	require.Equal(t, 0x33, par.Level)

	idr := []byte{0x00, 0x39, 0x10}
	require.True(t, caps.IsIDR(JoinAVCC([][]byte{idr}), false))
}
