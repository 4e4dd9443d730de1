package mpegps

import (
	"bytes"
	"errors"
	"io"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Eyevinn/avdemux/av"
	"github.com/Eyevinn/avdemux/bytesio"
	"github.com/Eyevinn/avdemux/codec/mpegvideo"
	"github.com/Eyevinn/avdemux/mpegts"
	"github.com/Eyevinn/avdemux/pes"
)

const (
	testBase     = 9000
	pictureTicks = 3600
	mp2Ticks     = 2160
	mp2FrameSize = 576
	audioChunk   = 700
)

// sequenceHeader is a 352x288 25 Hz MPEG-2 sequence header with extension
// and a GOP header.
func sequenceHeader() []byte {
	return []byte{
		0x00, 0x00, 0x01, 0xb3, 0x16, 0x01, 0x20, 0x13, 0xff, 0xff, 0xe0, 0x18,
		0x00, 0x00, 0x01, 0xb5, 0x14, 0x8a, 0x00, 0x01, 0x00, 0x00,
		0x00, 0x00, 0x01, 0xb8, 0x00, 0x08, 0x00, 0x00,
	}
}

// picture returns coded picture i. Every fifth picture is an I-picture
// preceded by a sequence header.
func picture(i int) []byte {
	var b []byte
	typ := byte(mpegvideo.PictureP)
	n := 500
	if i%5 == 0 {
		b = append(b, sequenceHeader()...)
		typ = mpegvideo.PictureI
		n = 1200
	}
	b = append(b, 0x00, 0x00, 0x01, mpegvideo.PictureStartCode, byte(i>>2), byte(i&3)<<6|typ<<3, 0xff, 0xf8)
	b = append(b, 0x00, 0x00, 0x01, 0x01)
	return append(b, bytes.Repeat([]byte{0x80 | byte(i&0x3f)}, n)...)
}

// mp2Frame is a 192 kbit/s 48 kHz mono layer II frame.
func mp2Frame() []byte {
	return append([]byte{0xff, 0xfd, 0xa4, 0xc0}, bytes.Repeat([]byte{0x55}, mp2FrameSize-4)...)
}

type psUnit struct {
	key     int64
	id      byte
	pts     int64
	payload []byte
	video   bool
}

type psFixture struct {
	data []byte
	// videoPES holds the offset of each video PES start code.
	videoPES  []int
	nPictures int
	nFrames   int
}

// buildPS muxes nPictures pictures, two per PES with a timestamp on the first
// only, and the matching MP2 audio cut into fixed size PES chunks.
func buildPS(nPictures int, withMap bool) psFixture {
	f := psFixture{nPictures: nPictures, nFrames: nPictures * pictureTicks / mp2Ticks}
	var units []psUnit
	for j := 0; 2*j < nPictures; j++ {
		payload := picture(2 * j)
		if 2*j+1 < nPictures {
			payload = append(payload, picture(2*j+1)...)
		}
		ts := int64(testBase + 2*j*pictureTicks)
		units = append(units, psUnit{key: ts, id: 0xe0, pts: ts, payload: payload, video: true})
	}
	var es []byte
	for k := 0; k < f.nFrames; k++ {
		es = append(es, mp2Frame()...)
	}
	for start := 0; start < len(es); start += audioChunk {
		end := min(start+audioChunk, len(es))
		k := (start + mp2FrameSize - 1) / mp2FrameSize
		pts := av.NoPTS
		if k*mp2FrameSize < end {
			pts = int64(testBase + k*mp2Ticks)
		}
		key := int64(testBase + start*mp2Ticks/mp2FrameSize)
		units = append(units, psUnit{key: key, id: 0xc0, pts: pts, payload: es[start:end]})
	}
	sort.SliceStable(units, func(i, j int) bool { return units[i].key < units[j].key })

	var b []byte
	for i, u := range units {
		b = AppendPackHeader(b, max(u.key-4500, 0)*300, 20000)
		if i == 0 && withMap {
			b = AppendStreamMap(b, &StreamMap{CurrentNext: true, Streams: []MapEntry{
				{StreamType: mpegts.StreamTypeMPEG2Video, StreamID: 0xe0},
				{StreamType: mpegts.StreamTypeMPEG1Audio, StreamID: 0xc0, Descriptors: []mpegts.Descriptor{
					{Tag: mpegts.DescriptorLanguage, Data: []byte("swe\x00")},
				}},
			}})
		}
		if u.video {
			f.videoPES = append(f.videoPES, len(b))
		}
		b = pes.AppendHeader(b, u.id, u.pts, av.NoPTS, len(u.payload), true)
		b = append(b, u.payload...)
	}
	f.data = append(b, 0x00, 0x00, 0x01, StartCodeEnd)
	return f
}

func openDemuxer(t *testing.T, data []byte, opts DemuxerOptions) (*Demuxer, *bytesio.ByteReader) {
	t.Helper()
	r := bytesio.NewReader(bytes.NewReader(data))
	d := NewDemuxer(r, opts)
	require.NoError(t, d.ReadHeader())
	return d, r
}

func readAll(t *testing.T, d *Demuxer) map[int][]*av.Packet {
	t.Helper()
	out := map[int][]*av.Packet{}
	for {
		p, err := d.ReadPacket()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out[p.StreamIndex] = append(out[p.StreamIndex], p)
	}
}

func TestDemuxProgramStream(t *testing.T) {
	for _, withMap := range []bool{true, false} {
		name := "without stream map"
		if withMap {
			name = "with stream map"
		}
		t.Run(name, func(t *testing.T) {
			f := buildPS(20, withMap)
			d, _ := openDemuxer(t, f.data, DemuxerOptions{})
			pkts := readAll(t, d)

			streams := d.Streams()
			require.Len(t, streams, 2)
			video, audio := streams[0], streams[1]
			require.Equal(t, 0xe0, video.ID)
			require.Equal(t, av.CodecMPEG2Video, video.Codecpar.CodecID)
			require.Equal(t, 352, video.Codecpar.Width)
			require.Equal(t, 288, video.Codecpar.Height)
			require.Equal(t, 0xc0, audio.ID)
			require.Equal(t, av.CodecMP2, audio.Codecpar.CodecID)
			require.Equal(t, 48000, audio.Codecpar.SampleRate)
			require.Equal(t, 1, audio.Codecpar.Channels)
			if withMap {
				require.Equal(t, "swe", audio.Language)
			}

			vp := pkts[video.Index]
			require.Len(t, vp, f.nPictures)
			for i, p := range vp {
				require.Equal(t, int64(testBase+i*pictureTicks), p.DTS, "picture %d", i)
				require.Equal(t, p.DTS, p.PTS, "picture %d", i)
				require.Equal(t, i%5 == 0, p.IsKey(), "picture %d", i)
				require.Equal(t, picture(i), p.Data, "picture %d", i)
			}
			require.Equal(t, int64(testBase), video.StartTime)

			ap := pkts[audio.Index]
			require.Len(t, ap, f.nFrames)
			for k, p := range ap {
				require.Equal(t, int64(testBase+k*mp2Ticks), p.PTS, "frame %d", k)
				require.Equal(t, int64(mp2Ticks), p.Duration)
				require.Len(t, p.Data, mp2FrameSize)
			}
		})
	}
}

func TestTimestampsMonotonic(t *testing.T) {
	f := buildPS(60, false)
	d, _ := openDemuxer(t, f.data, DemuxerOptions{})
	for idx, ps := range readAll(t, d) {
		last := av.NoPTS
		for _, p := range ps {
			require.NotEqual(t, av.NoPTS, p.DTS)
			if last != av.NoPTS {
				require.Greater(t, p.DTS, last, "stream %d", idx)
			}
			last = p.DTS
		}
	}
}

func TestTruncatedStreamFlushesOncePerStream(t *testing.T) {
	f := buildPS(20, true)
	last := f.videoPES[len(f.videoPES)-1]
	data := f.data[:last+pes.HeaderSize(testBase, av.NoPTS)+100]
	d, _ := openDemuxer(t, data, DemuxerOptions{})

	for !d.eof {
		err := d.readOne()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
	}
	for d.out.Pop() != nil {
	}
	buffered := 0
	for _, st := range d.Streams() {
		if len(st.Priv.(*psStream).buf) > 0 {
			buffered++
		}
	}
	require.Equal(t, 2, buffered)

	d.eof = true
	seen := map[int]int{}
	for {
		p, err := d.ReadPacket()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		seen[p.StreamIndex]++
		if p.StreamIndex == 0 {
			require.True(t, p.Flags&av.FlagCorrupt != 0)
			require.Len(t, p.Data, 100)
			require.Equal(t, int64(testBase+18*pictureTicks), p.PTS)
		}
	}
	require.Equal(t, map[int]int{0: 1, 1: 1}, seen)
	_, err := d.ReadPacket()
	require.ErrorIs(t, err, io.EOF)
}

func TestSeekTimestampFromIndex(t *testing.T) {
	f := buildPS(100, true)
	d, r := openDemuxer(t, f.data, DemuxerOptions{})
	readAll(t, d)
	require.Greater(t, d.Index(0).Len(), 10)

	target := int64(testBase + 52*pictureTicks)
	require.NoError(t, d.SeekTimestamp(0, target, av.SeekBackward))
	require.Equal(t, int64(f.videoPES[25]), r.Pos())
	for {
		p, err := d.ReadPacket()
		require.NoError(t, err)
		if p.StreamIndex != 0 {
			continue
		}
		require.Equal(t, int64(testBase+50*pictureTicks), p.PTS)
		require.True(t, p.IsKey())
		break
	}
}

func TestSeekTimestampBisection(t *testing.T) {
	f := buildPS(400, true)
	d, _ := openDemuxer(t, f.data, DemuxerOptions{ProbeSize: 4096})
	target := int64(testBase + 377*pictureTicks)
	_, ok := d.Index(0).Search(target, 10*90000)
	require.False(t, ok)

	require.NoError(t, d.SeekTimestamp(-1, target, av.SeekBackward))
	var first *av.Packet
	for {
		p, err := d.ReadPacket()
		require.NoError(t, err)
		if p.StreamIndex != 0 {
			continue
		}
		if first == nil {
			first = p
			require.LessOrEqual(t, p.PTS, target)
		}
		if p.IsKey() {
			require.LessOrEqual(t, p.PTS, target)
			require.GreaterOrEqual(t, p.PTS, target-10*pictureTicks)
			break
		}
	}
}

func TestSeekByteResync(t *testing.T) {
	f := buildPS(20, true)
	d, r := openDemuxer(t, f.data, DemuxerOptions{})
	mid := f.videoPES[3] + 50
	require.NoError(t, d.SeekByte(int64(mid), 0))
	b, err := r.Peek(4)
	require.NoError(t, err)
	require.True(t, pes.IsStartCode(b))
	require.True(t, b[3] == StartCodePack || b[3] == 0xc0 || b[3] == 0xe0)

	p, err := d.ReadPacket()
	require.NoError(t, err)
	require.Greater(t, p.Pos, int64(mid))
}

func TestPrivateStreamSubstreams(t *testing.T) {
	var b []byte
	lpcmHeader := []byte{0xa0, 0x01, 0x00, 0x04, 0x00, 0x01, 0x80}
	for i := 0; i < 3; i++ {
		payload := append(append([]byte(nil), lpcmHeader...), bytes.Repeat([]byte{byte(i + 1)}, 800)...)
		b = AppendPackHeader(b, int64(i)*300*3000, 20000)
		b = pes.AppendHeader(b, pes.StreamIDPrivate1, int64(testBase+i*3000), av.NoPTS, len(payload), true)
		b = append(b, payload...)
	}
	spu := append([]byte{0x00, 100}, bytes.Repeat([]byte{0x33}, 98)...)
	first := append([]byte{0x20}, spu[:59]...)
	b = pes.AppendHeader(b, pes.StreamIDPrivate1, testBase, av.NoPTS, len(first), true)
	b = append(b, first...)
	second := append([]byte{0x20}, spu[59:]...)
	b = pes.AppendHeader(b, pes.StreamIDPrivate1, av.NoPTS, av.NoPTS, len(second), true)
	b = append(b, second...)

	d, _ := openDemuxer(t, b, DemuxerOptions{})
	pkts := readAll(t, d)
	streams := d.Streams()
	require.Len(t, streams, 2)

	lpcm := streams[0]
	require.Equal(t, privateStreamID(0xa0), lpcm.ID)
	require.Equal(t, av.CodecPCMS16BE, lpcm.Codecpar.CodecID)
	require.Equal(t, 48000, lpcm.Codecpar.SampleRate)
	require.Equal(t, 2, lpcm.Codecpar.Channels)
	require.Len(t, pkts[0], 3)
	for i, p := range pkts[0] {
		require.Equal(t, bytes.Repeat([]byte{byte(i + 1)}, 800), p.Data)
		require.Equal(t, int64(testBase+i*3000), p.PTS)
	}

	sub := streams[1]
	require.Equal(t, av.CodecDVDSubtitle, sub.Codecpar.CodecID)
	require.Len(t, pkts[1], 1)
	require.Equal(t, spu, pkts[1][0].Data)
	require.Equal(t, int64(testBase), pkts[1][0].PTS)
}

func TestReadHeaderNoStreams(t *testing.T) {
	r := bytesio.NewReader(bytes.NewReader(bytes.Repeat([]byte{0x47, 0x1f, 0xff, 0x10}, 500)))
	err := NewDemuxer(r, DemuxerOptions{}).ReadHeader()
	require.ErrorIs(t, err, av.ErrFormatNotSupport)
}
