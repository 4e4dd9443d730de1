package rtsp

import (
	"errors"
	"fmt"
	"io"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/sirupsen/logrus"

	"github.com/Eyevinn/avdemux/av"
	"github.com/Eyevinn/avdemux/bsf"
	"github.com/Eyevinn/avdemux/internal/demuxutil"
)

// DemuxerOptions configures a Demuxer.
type DemuxerOptions struct {
	Logger logrus.FieldLogger
	// Pool provides output packets. Nil allocates per packet.
	Pool av.Pool
	// JitterDepth is the reorder window in packets.
	JitterDepth int
}

func DefaultDemuxerOptions() DemuxerOptions {
	return DemuxerOptions{Logger: logrus.StandardLogger(), JitterDepth: DefaultJitterDepth}
}

func (o DemuxerOptions) withDefaults() DemuxerOptions {
	d := DefaultDemuxerOptions()
	if o.Logger == nil {
		o.Logger = d.Logger
	}
	if o.JitterDepth <= 0 {
		o.JitterDepth = d.JitterDepth
	}
	return o
}

type rtspStream struct {
	st      *av.Stream
	media   Media
	jitter  *JitterQueue
	depack  Depacketizer
	clock   *rtpClock
	filter  bsf.Filter
	ssrc    uint32
	hasSSRC bool
}

// Demuxer reads the media of an RTSP session as av.Packets. Every supported
// media section is set up with interleaved transport. Seeking is not
// supported.
type Demuxer struct {
	s       *Session
	opts    DemuxerOptions
	log     logrus.FieldLogger
	streams []*av.Stream
	// byChannel maps the RTP channel of each stream, RTCP uses channel+1
	byChannel map[byte]*rtspStream
	clock     sessionClock
	out       demuxutil.PacketQueue
	playing   bool
	eof       bool
	flushed   int
}

func NewDemuxer(s *Session, opts DemuxerOptions) *Demuxer {
	opts = opts.withDefaults()
	return &Demuxer{s: s, opts: opts, log: opts.Logger, byChannel: map[byte]*rtspStream{}}
}

func (d *Demuxer) Streams() []*av.Stream {
	return d.streams
}

// ReadHeader describes the session, sets up the supported media and starts
// playback.
func (d *Demuxer) ReadHeader() error {
	medias, err := d.s.Describe()
	if err != nil {
		return fmt.Errorf("describe: %w", err)
	}
	for _, m := range medias {
		log := d.log.WithFields(logrus.Fields{"media": m.Type, "encoding": m.Encoding})
		if m.Codec == av.CodecNone || m.ClockRate <= 0 {
			log.Info("skipping unsupported media")
			continue
		}
		dp, err := NewDepacketizer(m)
		if err != nil {
			log.Infof("skipping media: %v", err)
			continue
		}
		ch := 2 * len(d.streams)
		if err := d.s.Setup(m, ch); err != nil {
			return fmt.Errorf("setup %s: %w", m.Type, err)
		}
		if err := d.addStream(m, dp, byte(ch)); err != nil {
			return err
		}
	}
	if len(d.streams) == 0 {
		return fmt.Errorf("no supported media in session: %w", av.ErrFormatNotSupport)
	}
	if err := d.s.Play(); err != nil {
		return fmt.Errorf("play: %w", err)
	}
	d.playing = true
	return nil
}

func (d *Demuxer) addStream(m Media, dp Depacketizer, ch byte) error {
	st := av.NewStream(len(d.streams), int(m.PayloadType), av.Rational{Num: 1, Den: int64(m.ClockRate)})
	st.SetCodec(m.Codec)
	if st.Codecpar.MediaType == av.MediaTypeAudio {
		st.Codecpar.Channels = m.Channels
		switch m.Codec {
		case av.CodecMP3, av.CodecAC3, av.CodecEAC3:
			// the framing filter reads the rate from the frame headers
		default:
			st.Codecpar.SampleRate = m.ClockRate
		}
	}
	if _, err := st.SetExtradata(m.Extradata); err != nil {
		d.log.WithFields(logrus.Fields{"stream": st.Index, "encoding": m.Encoding}).WithError(err).Warn("SDP parameter sets")
	}
	name := bsf.ForDemux(m.Codec)
	switch m.Codec {
	case av.CodecAAC, av.CodecOpus:
		// RTP carries these raw
		name = "null"
	}
	f, err := bsf.NewInit(name, &st.Codecpar, st.TimeBase)
	if err != nil {
		return fmt.Errorf("stream %d: %w", st.Index, err)
	}
	rs := &rtspStream{
		st:     st,
		media:  m,
		jitter: NewJitterQueue(d.opts.JitterDepth),
		depack: dp,
		clock:  newRTPClock(&d.clock, m.ClockRate),
		filter: f,
	}
	st.Priv = rs
	d.streams = append(d.streams, st)
	d.byChannel[ch] = rs
	d.log.WithFields(logrus.Fields{"stream": st.Index, "codec": m.Codec, "channel": ch}).Debug("stream added")
	return nil
}

// ReadPacket returns the next packet. When the connection ends the jitter
// queues and filters are drained before io.EOF is returned.
func (d *Demuxer) ReadPacket() (*av.Packet, error) {
	for {
		if p := d.out.Pop(); p != nil {
			return p, nil
		}
		if d.eof {
			if !d.flushNext() {
				return nil, io.EOF
			}
			continue
		}
		f, err := d.s.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) {
				d.eof = true
				continue
			}
			return nil, err
		}
		d.handleFrame(f)
	}
}

func (d *Demuxer) handleFrame(f Frame) {
	rs := d.byChannel[f.Channel&^1]
	if rs == nil {
		d.log.WithField("channel", f.Channel).Debug("frame on unknown channel")
		return
	}
	if f.Channel&1 == 1 {
		d.handleRTCP(rs, f.Data)
		return
	}
	var p rtp.Packet
	if err := p.Unmarshal(f.Data); err != nil {
		d.log.WithField("stream", rs.st.Index).Warnf("rtp: %v", err)
		return
	}
	if p.PayloadType != rs.media.PayloadType {
		return
	}
	if rs.hasSSRC && p.SSRC != rs.ssrc {
		d.log.WithFields(logrus.Fields{"stream": rs.st.Index, "ssrc": p.SSRC}).Info("ssrc changed")
		rs.jitter.Reset()
	}
	rs.ssrc, rs.hasSSRC = p.SSRC, true
	rs.jitter.Push(&p)
	d.drainJitter(rs)
}

func (d *Demuxer) handleRTCP(rs *rtspStream, data []byte) {
	pkts, err := rtcp.Unmarshal(data)
	if err != nil {
		d.log.WithField("stream", rs.st.Index).Warnf("rtcp: %v", err)
		return
	}
	for _, p := range pkts {
		if sr, ok := p.(*rtcp.SenderReport); ok {
			rs.clock.SenderReport(sr)
		}
	}
}

func (d *Demuxer) drainJitter(rs *rtspStream) {
	for rs.jitter.HasFrame() {
		f := rs.jitter.Frame()
		units, err := rs.depack.Depacketize(f)
		if err != nil {
			d.log.WithFields(logrus.Fields{"stream": rs.st.Index, "ts": f.Timestamp}).Warnf("depacketize: %v", err)
		}
		for _, u := range units {
			d.send(rs, d.newPacket(rs, u, f.Corrupt))
		}
	}
}

func (d *Demuxer) newPacket(rs *rtspStream, u Unit, corrupt bool) *av.Packet {
	pkt := av.Alloc(d.opts.Pool)
	pkt.Data = append(pkt.Data[:0], u.Data...)
	pkt.PTS = rs.clock.PTS(u.Timestamp)
	pkt.DTS = av.NoPTS
	if rs.st.Codecpar.MediaType == av.MediaTypeAudio {
		pkt.DTS = pkt.PTS
	} else {
		pkt.SetFlag(av.FlagAnnexB, true)
	}
	pkt.StreamIndex = rs.st.Index
	pkt.TimeBase = rs.st.TimeBase
	pkt.SetFlag(av.FlagKey, u.Key)
	pkt.SetFlag(av.FlagCorrupt, corrupt)
	return pkt
}

func (d *Demuxer) send(rs *rtspStream, pkt *av.Packet) {
	if err := rs.filter.Send(pkt); err != nil {
		d.log.WithField("stream", rs.st.Index).Warnf("filter: %v", err)
		return
	}
	d.drainFilter(rs)
}

func (d *Demuxer) drainFilter(rs *rtspStream) {
	for _, pkt := range bsf.Drain(rs.filter) {
		pkt.StreamIndex = rs.st.Index
		pkt.TimeBase = rs.st.TimeBase
		changed, err := demuxutil.CaptureExtradata(rs.st, pkt)
		if err != nil {
			d.log.WithField("stream", rs.st.Index).WithError(err).Warn("codec parameters not updated")
		} else if changed {
			d.log.WithField("stream", rs.st.Index).Debug("extradata captured")
		}
		if rs.st.StartTime == av.NoPTS && pkt.PTS != av.NoPTS {
			rs.st.StartTime = pkt.PTS
		}
		d.out.Push(pkt)
	}
}

// flushNext flushes the next stream and reports whether that produced output.
func (d *Demuxer) flushNext() bool {
	for d.flushed < len(d.streams) {
		rs := d.streams[d.flushed].Priv.(*rtspStream)
		d.flushed++
		rs.jitter.Flush()
		d.drainJitter(rs)
		if err := rs.filter.Send(nil); err == nil {
			d.drainFilter(rs)
		}
		if d.out.Len() > 0 {
			return true
		}
	}
	return false
}

func (d *Demuxer) SeekByte(int64, av.SeekFlag) error {
	return fmt.Errorf("rtsp byte seek: %w", av.ErrFormatNotSupport)
}

func (d *Demuxer) SeekTimestamp(int, int64, av.SeekFlag) error {
	return fmt.Errorf("rtsp timestamp seek: %w", av.ErrFormatNotSupport)
}

// Close tears the session down and releases the filters.
func (d *Demuxer) Close() {
	if d.playing && !d.eof {
		if err := d.s.Teardown(); err != nil {
			d.log.Warnf("teardown: %v", err)
		}
	}
	d.playing = false
	for _, st := range d.streams {
		st.Priv.(*rtspStream).filter.Close()
	}
}
