package internal

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Eyevinn/avdemux/av"
	"github.com/Eyevinn/avdemux/mpegps"
	"github.com/Eyevinn/avdemux/mpegts"
	"github.com/Eyevinn/avdemux/pes"
)

// buildPS returns a few packs with one MPEG audio PES each.
func buildPS() []byte {
	var b []byte
	for i := 0; i < 4; i++ {
		b = mpegps.AppendPackHeader(b, int64(i)*3600*300, 20000)
		payload := bytes.Repeat([]byte{0x00}, 100)
		b = pes.AppendHeader(b, 0xc0, int64(i)*3600, av.NoPTS, len(payload), false)
		b = append(b, payload...)
	}
	return b
}

func TestDetectFormat(t *testing.T) {
	ts, _ := buildTS(t, 3)
	cases := []struct {
		name string
		data []byte
		want string
	}{
		{"ts", ts, "ts"},
		{"ps", buildPS(), "ps"},
		{"garbage", bytes.Repeat([]byte("garbage!"), 100), ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := DetectFormat(c.data)
			if c.want == "" {
				require.ErrorIs(t, err, av.ErrFormatNotSupport)
				return
			}
			require.NoError(t, err)
			require.Equal(t, c.want, got)
		})
	}
}

func TestOpenDemuxer(t *testing.T) {
	ts, _ := buildTS(t, 3)
	dmx, err := OpenDemuxer(bytes.NewReader(ts), Options{})
	require.NoError(t, err)
	_, ok := dmx.(*mpegts.Demuxer)
	require.True(t, ok)
	require.Len(t, dmx.Streams(), 3)
	dmx.Close()

	_, err = OpenDemuxer(bytes.NewReader(bytes.Repeat([]byte("garbage!"), 100)), Options{})
	require.ErrorIs(t, err, av.ErrFormatNotSupport)

	_, err = OpenDemuxer(bytes.NewReader(ts), Options{Format: "mkv"})
	require.ErrorIs(t, err, av.ErrFormatNotSupport)

	_, err = OpenDemuxer(bytes.NewReader(nil), Options{})
	require.Error(t, err)
}

func TestOpenInput(t *testing.T) {
	ts, _ := buildTS(t, 3)
	file := filepath.Join(t.TempDir(), "in.ts")
	require.NoError(t, os.WriteFile(file, ts, 0644))

	dmx, closer, err := OpenInput(context.TODO(), file, Options{})
	require.NoError(t, err)
	require.Len(t, dmx.Streams(), 3)
	dmx.Close()
	require.NoError(t, closer.Close())

	_, _, err = OpenInput(context.TODO(), filepath.Join(t.TempDir(), "missing.ts"), Options{})
	require.ErrorIs(t, err, os.ErrNotExist)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = OpenInput(ctx, "rtsp://127.0.0.1:1/stream", Options{})
	require.Error(t, err)
}
