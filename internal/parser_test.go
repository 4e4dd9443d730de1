package internal

import (
	"bytes"
	"context"
	"encoding/hex"
	"flag"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Eyevinn/avdemux/av"
	"github.com/Eyevinn/avdemux/bytesio"
	"github.com/Eyevinn/avdemux/codec/nalu"
	"github.com/Eyevinn/avdemux/mpegts"
)

var (
	update = flag.Bool("update", false, "update the golden files of this test")
)

var (
	testSPS = mustHex("27640020ac2b402802dd80880000030008000003032742001458000510edef7c1da1c32a")
	testPPS = mustHex("28ee3cb0")
	testASC = []byte{0x11, 0x90}
)

const (
	videoFrameTicks = 3000
	audioFrameTicks = 1920
	gopLength       = 10
)

func mustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

func scte35Section() []byte {
	s := []byte{0xfc, 0x30, 0x11, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xff, 0xf0, 0x00, 0x00, 0x00, 0x00}
	crc := mpegts.CRC32(s)
	return append(s, byte(crc>>24), byte(crc>>16), byte(crc>>8), byte(crc))
}

func testStreams(t *testing.T) []*av.Stream {
	t.Helper()
	video := av.NewStream(0, 0x100, av.TimeBase90k)
	video.SetCodec(av.CodecH264)
	ed, err := video.Caps.GenerateExtradata([][]byte{testSPS, testPPS})
	require.NoError(t, err)
	video.SetExtradata(ed)

	audio := av.NewStream(1, 0x101, av.Rational{Num: 1, Den: 48000})
	audio.SetCodec(av.CodecAAC)
	audio.SetExtradata(testASC)

	cue := av.NewStream(2, 0x102, av.TimeBase90k)
	cue.SetCodec(av.CodecSCTE35)
	return []*av.Stream{video, audio, cue}
}

func videoFrame(i int) *av.Packet {
	nal := []byte{0x41}
	if i%gopLength == 0 {
		nal[0] = 0x65
	}
	nal = append(nal, bytes.Repeat([]byte{0x88, 0x84}, 200)...)
	p := av.NewPacket()
	p.Data = nalu.JoinAVCC([][]byte{nal})
	p.PTS = int64(i * videoFrameTicks)
	p.DTS = p.PTS
	p.TimeBase = av.TimeBase90k
	p.SetFlag(av.FlagKey, i%gopLength == 0)
	return p
}

func audioFrame(i int) *av.Packet {
	p := av.NewPacket()
	p.Data = bytes.Repeat([]byte{byte(i)}, 200)
	p.PTS = int64(i * 1024)
	p.DTS = p.PTS
	p.StreamIndex = 1
	p.TimeBase = av.Rational{Num: 1, Den: 48000}
	return p
}

// buildTS muxes nVideo video frames with the audio covering the same time and
// one SCTE-35 cue after the second frame. It returns the number of audio frames.
func buildTS(t *testing.T, nVideo int) ([]byte, int) {
	t.Helper()
	var buf bytes.Buffer
	m := mpegts.NewMuxer(bytesio.NewWriter(&buf), mpegts.MuxerOptions{})
	require.NoError(t, m.WriteHeader(testStreams(t)))
	nAudio := 0
	for i := 0; i < nVideo; i++ {
		require.NoError(t, m.WritePacket(videoFrame(i)))
		for nAudio*audioFrameTicks < (i+1)*videoFrameTicks {
			require.NoError(t, m.WritePacket(audioFrame(nAudio)))
			nAudio++
		}
		if i == 1 {
			cue := av.NewPacket()
			cue.Data = scte35Section()
			cue.PTS = int64(i * videoFrameTicks)
			cue.StreamIndex = 2
			require.NoError(t, m.WritePacket(cue))
		}
	}
	require.NoError(t, m.WriteTrailer())
	return buf.Bytes(), nAudio
}

func openTS(t *testing.T, data []byte) Demuxer {
	t.Helper()
	dmx, err := OpenDemuxer(bytes.NewReader(data), Options{})
	require.NoError(t, err)
	t.Cleanup(dmx.Close)
	return dmx
}

func TestParseInfo(t *testing.T) {
	data, _ := buildTS(t, 20)
	cases := []struct {
		name                 string
		options              Options
		expected_output_file string
	}{
		{"info", Options{ShowStreamInfo: true, ShowService: true}, "testdata/golden_info.txt"},
		{"info_without_service", Options{ShowStreamInfo: true}, "testdata/golden_info_without_service.txt"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			buf := bytes.Buffer{}
			err := ParseInfo(context.TODO(), &buf, openTS(t, data), c.options)
			require.NoError(t, err)
			compareUpdateGolden(t, buf.String(), c.expected_output_file, *update)
		})
	}
}

func TestParseAll(t *testing.T) {
	data, _ := buildTS(t, 20)
	buf := bytes.Buffer{}
	o := CreateFullOptions(0)
	o.ShowSEIDetails = false
	err := ParseAll(context.TODO(), &buf, openTS(t, data), o)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Equal(t, `{"pid":256,"codec":"AVC","type":"video"}`, lines[0])
	out := buf.String()
	require.Contains(t, out, `"serviceName":"Service01"`)
	require.Equal(t, 1, strings.Count(out, `"SDT"`))
	require.Equal(t, 1, strings.Count(out, `"parameterSet":"SPS"`), "unchanged parameter sets are listed once")
	require.Contains(t, out, `"parameterSet":"PPS"`)
	require.Contains(t, out, `{"type":"SPS_7","len":36}`)
	require.Equal(t, 2, strings.Count(out, `"type":"IDR_5"`))
	require.Equal(t, 18, strings.Count(out, `"type":"NonIDR_1"`))
	require.Contains(t, out, `{"pid":258,`)
	require.Contains(t, out, `"spliceCommand":{"type":`)
	require.Contains(t, out, `{"streamType":"AVC","pid":256,"packets":20,`)
	require.Contains(t, out, `"frameRate":30`)
	require.Contains(t, out, `"IDRGoPDuration"`)
	require.NotContains(t, out, `"type":"AUD_9"`)
}

func TestParseAllMaxPictures(t *testing.T) {
	data, _ := buildTS(t, 20)
	buf := bytes.Buffer{}
	err := ParseAll(context.TODO(), &buf, openTS(t, data), Options{MaxNrPictures: 3, ShowNALU: true})
	require.NoError(t, err)
	require.Equal(t, 3, strings.Count(buf.String(), `"nalus"`))
	require.Equal(t, 1, strings.Count(buf.String(), `"rai":true`))
}

func TestParseAllCancelled(t *testing.T) {
	data, _ := buildTS(t, 20)
	buf := bytes.Buffer{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := ParseAll(ctx, &buf, openTS(t, data), Options{ShowNALU: true})
	require.NoError(t, err)
	require.NotContains(t, buf.String(), `"nalus"`)
}

func TestParseSCTE35(t *testing.T) {
	data, _ := buildTS(t, 5)
	buf := bytes.Buffer{}
	err := ParseSCTE35(context.TODO(), &buf, openTS(t, data), Options{ShowStreamInfo: true})
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	require.Equal(t, `{"pid":258,"codec":"SCTE35","type":"cue"}`, lines[2])
	require.True(t, strings.HasPrefix(lines[3], `{"pid":258,`))
	require.Contains(t, lines[3], `"spliceCommand"`)
}

func TestParseSCTE35Section(t *testing.T) {
	info, err := ParseSCTE35Section(258, 9000, scte35Section())
	require.NoError(t, err)
	require.Equal(t, uint16(258), info.PID)
	require.Equal(t, int64(9000), info.PTS)
	require.Empty(t, info.SegDesc)

	info, err = ParseSCTE35Section(258, av.NoPTS, scte35Section())
	require.NoError(t, err)
	require.Zero(t, info.PTS)
}

func getExpectedOutput(t *testing.T, file string) string {
	t.Helper()
	expected_output, err := os.ReadFile(file)
	require.NoError(t, err)
	expected_output_str := strings.ReplaceAll(string(expected_output), "\r\n", "\n")
	return expected_output_str
}

func compareUpdateGolden(t *testing.T, actual string, goldenFile string, update bool) {
	t.Helper()
	if update {
		err := os.WriteFile(goldenFile, []byte(actual), 0644)
		require.NoError(t, err)
	} else {
		expected := getExpectedOutput(t, goldenFile)
		require.Equal(t, expected, actual, "should produce expected output")
	}
}

// TestMain is to set flags for tests. In particular, the update flag to update golden files.
func TestMain(m *testing.M) {
	flag.Parse()
	os.Exit(m.Run())
}
