package internal

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"

	"github.com/Eyevinn/avdemux/av"
	"github.com/Eyevinn/avdemux/bytesio"
	"github.com/Eyevinn/avdemux/common"
	"github.com/Eyevinn/avdemux/mpegts"
)

type RemuxStatistics struct {
	PidsToDrop     []int  `json:"pidsToDrop"`
	PidsKept       []int  `json:"pidsKept"`
	TotalPackets   uint32 `json:"totalPackets"`
	DroppedPackets uint32 `json:"droppedPackets"`
	OutputBytes    int64  `json:"outputBytes"`
}

// Remux writes the streams of dmx whose ids are not listed in o.PidsToDrop
// to tsWriter as a transport stream. PIDs of a transport stream input are
// kept. The stream info and a summary are printed to textWriter.
func Remux(ctx context.Context, textWriter io.Writer, tsWriter io.Writer, dmx Demuxer, o Options) error {
	pidsToDrop := ParsePidsFromString(o.PidsToDrop)
	if slices.Contains(pidsToDrop, int(mpegts.PIDPAT)) {
		return fmt.Errorf("filtering out PAT is not allowed")
	}

	jp := &common.JsonPrinter{W: textWriter, Indent: o.Indent}
	statistics := RemuxStatistics{PidsToDrop: pidsToDrop, PidsKept: []int{}}
	if statistics.PidsToDrop == nil {
		statistics.PidsToDrop = []int{}
	}

	var kept []*av.Stream
	newIndex := make(map[int]int)
	for _, st := range dmx.Streams() {
		jp.Print(common.StreamInfo(st), o.ShowStreamInfo)
		if slices.Contains(pidsToDrop, st.ID) {
			continue
		}
		newIndex[st.Index] = len(kept)
		kept = append(kept, st)
		statistics.PidsKept = append(statistics.PidsKept, st.ID)
	}
	if len(kept) == 0 {
		return fmt.Errorf("all streams dropped: %w", av.ErrFormatNotSupport)
	}

	_, isTS := dmx.(*mpegts.Demuxer)
	bw := bytesio.NewWriter(tsWriter)
	mux := mpegts.NewMuxer(bw, mpegts.MuxerOptions{Logger: logrus.StandardLogger(), KeepPIDs: isTS})
	if err := mux.WriteHeader(kept); err != nil {
		return fmt.Errorf("writing ts header: %w", err)
	}
	logrus.WithFields(logrus.Fields{"kept": statistics.PidsKept, "pids": mux.PIDs()}).Debug("remuxing")

dataLoop:
	for {
		select {
		case <-ctx.Done():
			break dataLoop
		default:
		}
		pkt, err := dmx.ReadPacket()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break dataLoop
			}
			return fmt.Errorf("reading next packet %w", err)
		}
		statistics.TotalPackets++
		idx, ok := newIndex[pkt.StreamIndex]
		if !ok {
			statistics.DroppedPackets++
			continue
		}
		pkt.StreamIndex = idx
		if err := mux.WritePacket(pkt); err != nil {
			return err
		}
	}

	if err := mux.WriteTrailer(); err != nil {
		return fmt.Errorf("writing ts trailer: %w", err)
	}
	statistics.OutputBytes = bw.Pos()
	jp.Print(statistics, true)
	return jp.Error()
}
