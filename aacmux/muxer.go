// Package aacmux writes raw AAC packets as an ADTS elementary stream, the
// format of .aac files.
package aacmux

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Eyevinn/avdemux/av"
	"github.com/Eyevinn/avdemux/bsf"
	"github.com/Eyevinn/avdemux/bytesio"
)

// MuxerOptions configures a Muxer.
type MuxerOptions struct {
	Logger logrus.FieldLogger
}

func DefaultMuxerOptions() MuxerOptions {
	return MuxerOptions{Logger: logrus.StandardLogger()}
}

func (o MuxerOptions) withDefaults() MuxerOptions {
	if o.Logger == nil {
		o.Logger = DefaultMuxerOptions().Logger
	}
	return o
}

// Muxer writes the single AAC stream it is given. Packets that already start
// with an ADTS header are written unchanged.
type Muxer struct {
	w      bytesio.Writer
	log    logrus.FieldLogger
	st     *av.Stream
	filter bsf.Filter
	frames int
}

func NewMuxer(w bytesio.Writer, opts MuxerOptions) *Muxer {
	opts = opts.withDefaults()
	return &Muxer{w: w, log: opts.Logger}
}

func (m *Muxer) WriteHeader(streams []*av.Stream) error {
	if len(streams) != 1 {
		return fmt.Errorf("adts mux of %d streams: %w", len(streams), av.ErrFormatNotSupport)
	}
	st := streams[0]
	if st.Codecpar.CodecID != av.CodecAAC {
		return fmt.Errorf("adts mux of %s: %w", st.Codecpar.CodecID, av.ErrCodecNotSupport)
	}
	f, err := bsf.NewInit("raw2adts", &st.Codecpar, st.TimeBase)
	if err != nil {
		return err
	}
	m.st, m.filter = st, f
	return nil
}

func (m *Muxer) WritePacket(pkt *av.Packet) error {
	if m.filter == nil {
		return fmt.Errorf("write before header: %w", av.ErrDataInvalid)
	}
	if pkt.StreamIndex != m.st.Index {
		return fmt.Errorf("packet for unknown stream %d: %w", pkt.StreamIndex, av.ErrDataInvalid)
	}
	if len(pkt.Data) == 0 {
		return nil
	}
	if err := m.filter.Send(pkt); err != nil {
		return fmt.Errorf("adts frame at pts %d: %w", pkt.PTS, err)
	}
	return m.drain()
}

func (m *Muxer) drain() error {
	for _, out := range bsf.Drain(m.filter) {
		if err := m.w.WriteBuffer(out.Data); err != nil {
			return err
		}
		m.frames++
	}
	return nil
}

// WriteTrailer flushes the filter and the writer. ADTS has no trailer.
func (m *Muxer) WriteTrailer() error {
	if m.filter != nil {
		if err := m.filter.Send(nil); err != nil {
			return err
		}
		if err := m.drain(); err != nil {
			return err
		}
		m.filter.Close()
	}
	m.log.WithFields(logrus.Fields{"frames": m.frames, "bytes": m.w.Pos()}).Debug("adts mux done")
	return m.w.Flush()
}
