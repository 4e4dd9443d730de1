package internal

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Eyevinn/avdemux/common"
	"github.com/Eyevinn/avdemux/mpegts"
)

// ParseInfo prints the streams and, for transport streams, the first SDT.
func ParseInfo(ctx context.Context, w io.Writer, dmx Demuxer, o Options) error {
	jp := &common.JsonPrinter{W: w, Indent: o.Indent}
	for _, st := range dmx.Streams() {
		jp.Print(common.StreamInfo(st), o.ShowStreamInfo)
	}

	// Exit imediately if we don't want service information
	tsDmx, ok := dmx.(*mpegts.Demuxer)
	if !o.ShowService || !ok {
		return jp.Error()
	}

	// Loop until we have printed service information
dataLoop:
	for tsDmx.Context().SDTVersion < 0 {
		select {
		case <-ctx.Done():
			return jp.Error()
		default:
		}
		if _, err := dmx.ReadPacket(); err != nil {
			if errors.Is(err, io.EOF) {
				break dataLoop
			}
			return fmt.Errorf("reading next packet %w", err)
		}
	}
	if tsDmx.Context().SDTVersion >= 0 {
		PrintSdtInfo(jp, tsDmx.Context().Services, o.ShowService)
	}
	return jp.Error()
}
