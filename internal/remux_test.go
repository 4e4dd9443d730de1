package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Eyevinn/avdemux/av"
	"github.com/Eyevinn/avdemux/mpegts"
)

func TestRemux(t *testing.T) {
	data, nAudio := buildTS(t, 20)

	cases := []struct {
		name      string
		drop      string
		wantPIDs  []int
		wantCodec []av.CodecID
		dropped   uint32
	}{
		{"keep all", "", []int{256, 257, 258}, []av.CodecID{av.CodecH264, av.CodecAAC, av.CodecSCTE35}, 0},
		{"drop audio", "257", []int{256, 258}, []av.CodecID{av.CodecH264, av.CodecSCTE35}, uint32(nAudio)},
		{"drop unknown and cue", "258 999 x", []int{256, 257}, []av.CodecID{av.CodecH264, av.CodecAAC}, 1},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			var text, ts bytes.Buffer
			err := Remux(context.TODO(), &text, &ts, openTS(t, data), Options{PidsToDrop: c.drop, ShowStreamInfo: true})
			require.NoError(t, err)

			lines := strings.Split(strings.TrimSpace(text.String()), "\n")
			require.Len(t, lines, 4)
			var stats RemuxStatistics
			require.NoError(t, json.Unmarshal([]byte(lines[3]), &stats))
			require.Equal(t, c.wantPIDs, stats.PidsKept)
			require.Equal(t, c.dropped, stats.DroppedPackets)
			require.Equal(t, int64(ts.Len()), stats.OutputBytes)
			require.Zero(t, ts.Len()%mpegts.PacketSize)

			out := openTS(t, ts.Bytes())
			var pids []int
			var codecs []av.CodecID
			for _, st := range out.Streams() {
				pids = append(pids, st.ID)
				codecs = append(codecs, st.Codecpar.CodecID)
			}
			require.Equal(t, c.wantPIDs, pids)
			require.Equal(t, c.wantCodec, codecs)

			video := 0
			for {
				pkt, err := out.ReadPacket()
				if errors.Is(err, io.EOF) {
					break
				}
				require.NoError(t, err)
				if pkt.StreamIndex == 0 {
					require.Equal(t, videoFrame(video).Data, pkt.Data)
					video++
				}
			}
			require.Equal(t, 20, video)
		})
	}
}

func TestRemuxErrors(t *testing.T) {
	data, _ := buildTS(t, 3)
	var text, ts bytes.Buffer
	err := Remux(context.TODO(), &text, &ts, openTS(t, data), Options{PidsToDrop: "0"})
	require.Error(t, err)

	err = Remux(context.TODO(), &text, &ts, openTS(t, data), Options{PidsToDrop: "256 257 258"})
	require.ErrorIs(t, err, av.ErrFormatNotSupport)
	require.Zero(t, ts.Len())
}
