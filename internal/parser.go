package internal

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/Eyevinn/avdemux/av"
	"github.com/Eyevinn/avdemux/common"
	"github.com/Eyevinn/avdemux/mpegts"
)

// ParseAll prints stream info, service info, parameter sets, NAL units,
// SCTE-35 cues and SMPTE-2038 data as they are demuxed, followed by
// per-stream statistics.
func ParseAll(ctx context.Context, w io.Writer, dmx Demuxer, o Options) error {
	jp := &common.JsonPrinter{W: w, Indent: o.Indent}
	streams := dmx.Streams()
	for _, st := range streams {
		jp.Print(common.StreamInfo(st), o.ShowStreamInfo)
	}
	tsDmx, _ := dmx.(*mpegts.Demuxer)
	sdtPrinted := tsDmx == nil
	nrPics := 0
	videoStreams := make(map[int]*videoStream)
	statistics := make(map[int]*StreamStatistics)
dataLoop:
	for {
		// Check if context was cancelled
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

		// Print service information
		if !sdtPrinted && tsDmx.Context().SDTVersion >= 0 {
			PrintSdtInfo(jp, tsDmx.Context().Services, o.ShowService)
			sdtPrinted = true
		}

		if pkt.StreamIndex < 0 || pkt.StreamIndex >= len(streams) {
			logrus.WithField("streamIndex", pkt.StreamIndex).Debug("packet of unknown stream")
			continue
		}
		st := streams[pkt.StreamIndex]
		stats := statistics[st.Index]
		if stats == nil {
			stats = newStreamStatistics(st)
			statistics[st.Index] = stats
		}
		stats.AddPacket(pkt)

		pts := pkt.PTS
		if pts != av.NoPTS {
			pts = common.To90k(pts, pkt.TimeBase)
		}
		switch st.Codecpar.CodecID {
		case av.CodecH264, av.CodecHEVC:
			vs := videoStreams[st.Index]
			if vs == nil {
				vs = newVideoStream(st, stats)
				videoStreams[st.Index] = vs
			}
			if err := vs.ParsePacket(jp, pkt, o); err != nil {
				return err
			}
			nrPics++
		case av.CodecSMPTE2038:
			if !o.ShowSMPTE2038 {
				continue
			}
			data, err := ParseSMPTE2038(uint16(st.ID), pts, pkt.Data)
			if err != nil {
				logrus.WithField("pid", st.ID).Warnf("skipping SMPTE-2038 PES: %v", err)
				continue
			}
			jp.Print(data, true)
		case av.CodecSCTE35:
			if !o.ShowSCTE35 {
				continue
			}
			info, err := ParseSCTE35Section(uint16(st.ID), pts, pkt.Data)
			if err != nil {
				logrus.WithField("pid", st.ID).Warnf("skipping SCTE-35 section: %v", err)
				continue
			}
			jp.Print(info, true)
		default:
			// Skip unknown elementary streams
			continue
		}

		// Keep looping if MaxNrPictures equals 0
		if o.MaxNrPictures > 0 && nrPics >= o.MaxNrPictures {
			break dataLoop
		}
	}

	if !sdtPrinted && tsDmx.Context().SDTVersion >= 0 {
		PrintSdtInfo(jp, tsDmx.Context().Services, o.ShowService)
	}
	indices := maps.Keys(statistics)
	slices.Sort(indices)
	for _, i := range indices {
		PrintStatistics(jp, *statistics[i], o.ShowStatistics)
	}

	return jp.Error()
}

// ParseSCTE35 prints the stream info and all SCTE-35 cues.
func ParseSCTE35(ctx context.Context, w io.Writer, dmx Demuxer, o Options) error {
	o.ShowPS = false
	o.ShowNALU = false
	o.ShowSMPTE2038 = false
	o.ShowStatistics = false
	o.ShowSCTE35 = true
	o.MaxNrPictures = 0
	return ParseAll(ctx, w, dmx, o)
}
