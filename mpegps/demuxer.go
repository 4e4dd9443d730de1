package mpegps

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/Eyevinn/avdemux/av"
	"github.com/Eyevinn/avdemux/bsf"
	"github.com/Eyevinn/avdemux/bytesio"
	"github.com/Eyevinn/avdemux/codec/aac"
	"github.com/Eyevinn/avdemux/codec/ac3"
	"github.com/Eyevinn/avdemux/codec/mpegaudio"
	"github.com/Eyevinn/avdemux/codec/mpegvideo"
	"github.com/Eyevinn/avdemux/common"
	"github.com/Eyevinn/avdemux/internal/demuxutil"
	"github.com/Eyevinn/avdemux/mpegts"
	"github.com/Eyevinn/avdemux/pes"
)

// DemuxerOptions configures a Demuxer. The zero value of a field selects the
// default of DefaultDemuxerOptions.
type DemuxerOptions struct {
	Logger logrus.FieldLogger
	// Pool provides output packets. Nil allocates per packet.
	Pool av.Pool
	// ProbeSize bounds the bytes ReadHeader reads looking for streams, and is
	// the byte range below which timestamp bisection stops.
	ProbeSize int
}

func DefaultDemuxerOptions() DemuxerOptions {
	return DemuxerOptions{
		Logger:    logrus.StandardLogger(),
		ProbeSize: 1 << 20,
	}
}

func (o DemuxerOptions) withDefaults() DemuxerOptions {
	d := DefaultDemuxerOptions()
	if o.Logger == nil {
		o.Logger = d.Logger
	}
	if o.ProbeSize <= 0 {
		o.ProbeSize = d.ProbeSize
	}
	return o
}

// headerUnits is the number of PES packets after which ReadHeader stops when
// there is no stream map and every stream has produced output.
const headerUnits = 64

// defaultFrameStep is the MPEG video frame duration assumed before a sequence
// header is seen, 25 Hz in 90 kHz ticks.
const defaultFrameStep = 3600

// psStream is the PS private context of an av.Stream.
type psStream struct {
	id      int
	st      *av.Stream
	filter  bsf.Filter
	framing framing
	audio   audioHeader
	// buf holds payload not yet cut into access units.
	buf      []byte
	stamps   stamps
	corrupt  bool
	unwrap   demuxutil.Unwrapper
	index    demuxutil.KeyframeIndex
	interp   interpolator
	nextPTS  int64
	produced bool
}

// Demuxer reads an MPEG program stream.
type Demuxer struct {
	r       bytesio.Reader
	opts    DemuxerOptions
	log     logrus.FieldLogger
	scan    *Scanner
	psm     *StreamMap
	start   int64
	streams []*av.Stream
	ids     map[int]*psStream
	out     demuxutil.PacketQueue
	units   int
	eof     bool
	flushed int
}

func NewDemuxer(r bytesio.Reader, opts DemuxerOptions) *Demuxer {
	opts = opts.withDefaults()
	return &Demuxer{
		r:    r,
		opts: opts,
		log:  opts.Logger,
		scan: NewScanner(r, opts.Logger),
		ids:  map[int]*psStream{},
	}
}

func (d *Demuxer) Streams() []*av.Stream {
	return d.streams
}

// StreamMap returns the last program stream map read, or nil.
func (d *Demuxer) StreamMap() *StreamMap {
	return d.psm
}

// ReadHeader reads until the streams of the stream map have produced output,
// or without a stream map until enough PES packets have been seen, bounded by
// ProbeSize. Packets completed meanwhile are kept for ReadPacket.
func (d *Demuxer) ReadHeader() error {
	d.start = d.r.Pos()
	for !d.headerDone() {
		if d.r.Pos()-d.start >= int64(d.opts.ProbeSize) {
			break
		}
		if err := d.readOne(); err != nil {
			if !errors.Is(err, io.EOF) {
				return err
			}
			d.eof = true
			break
		}
	}
	if len(d.streams) == 0 {
		return fmt.Errorf("no elementary streams in first %d bytes: %w", d.r.Pos()-d.start, av.ErrFormatNotSupport)
	}
	d.log.WithFields(logrus.Fields{"streams": len(d.streams), "psm": d.psm != nil, "packs": d.scan.Packs}).Debug("ps header read")
	return nil
}

func (d *Demuxer) headerDone() bool {
	if len(d.streams) == 0 {
		return false
	}
	for _, st := range d.streams {
		if !st.Priv.(*psStream).produced {
			return false
		}
	}
	if d.psm != nil {
		for _, e := range d.psm.Streams {
			if _, ok := d.ids[int(e.StreamID)]; !ok && e.StreamID != pes.StreamIDPrivate1 {
				return false
			}
		}
		return true
	}
	return d.units >= headerUnits
}

// ReadPacket returns the next access unit. After the source ends, the data
// still buffered is flushed as one packet per stream and then io.EOF is
// returned.
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
		if err := d.readOne(); err != nil {
			if !errors.Is(err, io.EOF) {
				return nil, err
			}
			d.log.Debug("ps source ended, draining")
			d.eof = true
		}
	}
}

func (d *Demuxer) Close() {
	for _, s := range d.ids {
		if s.filter != nil {
			s.filter.Close()
		}
	}
	d.out.Clear()
}

// readOne handles the next stream map or PES packet.
func (d *Demuxer) readOne() error {
	u, err := d.scan.Next()
	if err != nil {
		return err
	}
	if u.StreamID == pes.StreamIDProgramStreamMap {
		d.handleStreamMap(u)
		return nil
	}
	err = d.handlePES(u)
	if err == nil && u.Truncated {
		return io.EOF
	}
	return err
}

func (d *Demuxer) handleStreamMap(u Unit) {
	m, err := ParseStreamMap(u.Data)
	if err != nil {
		d.log.WithField("pos", u.Pos).Warnf("dropping stream map: %v", err)
		return
	}
	if !m.CurrentNext {
		return
	}
	if d.psm == nil || d.psm.Version != m.Version {
		d.log.WithFields(logrus.Fields{"version": m.Version, "streams": len(m.Streams)}).Debug("stream map applied")
	}
	d.psm = m
}

func (d *Demuxer) handlePES(u Unit) error {
	h, err := pes.ParseHeader(u.Data)
	if err != nil {
		d.log.WithFields(logrus.Fields{"pos": u.Pos}).Warnf("dropping PES: %v", err)
		return nil
	}
	if h.HeaderLength > len(u.Data) {
		return nil
	}
	payload := u.Data[h.HeaderLength:]
	d.units++
	id := int(u.StreamID)
	var sub byte
	if u.StreamID == pes.StreamIDPrivate1 {
		if len(payload) == 0 {
			return nil
		}
		sub = payload[0]
		id = privateStreamID(sub)
	}
	s, ok := d.ids[id]
	if !ok {
		codec := d.guessCodec(u.StreamID, sub, payload)
		s = d.addStream(id, u.StreamID, codec)
	}
	if u.StreamID == pes.StreamIDPrivate1 {
		payload = d.stripSubstreamHeader(s, sub, payload)
	}
	if len(payload) == 0 {
		return nil
	}
	pts, dts := s.unwrap.Unwrap(h.PTS), av.NoPTS
	if h.DTS != av.NoPTS && pts != av.NoPTS {
		dts = pts - common.SignedPTSDiff(h.PTS, h.DTS)
	}
	if dts == av.NoPTS {
		dts = pts
	}
	if s.framing == frameByPES && len(s.buf) > 0 && (s.stamps[0].pts == av.NoPTS || pts != av.NoPTS && pts != s.stamps[0].pts) {
		d.emit(s, s.buf, 0)
		s.buf = nil
		s.stamps = nil
	}
	s.stamps = append(s.stamps, stamp{off: len(s.buf), pts: pts, dts: dts, pos: u.Pos, scr: u.SCR})
	s.buf = append(s.buf, payload...)
	d.split(s)
	if u.Truncated {
		s.corrupt = true
	}
	return nil
}

// guessCodec picks the codec of a new stream from the stream map or, without
// one, from the stream id and the first payload bytes.
func (d *Demuxer) guessCodec(streamID, sub byte, payload []byte) av.CodecID {
	if e, ok := d.psm.Lookup(streamID); ok && streamID != pes.StreamIDPrivate1 {
		return codecForMap(e)
	}
	switch {
	case pes.IsVideo(streamID):
		return guessVideo(payload)
	case pes.IsAudio(streamID):
		if aac.IsADTSSync(payload) {
			return av.CodecAAC
		}
		if h, err := mpegaudio.ParseHeader(payload); err == nil {
			return h.CodecID()
		}
		return av.CodecMP2
	case streamID == pes.StreamIDPrivate1:
		switch {
		case sub >= subStreamAC3First && sub <= subStreamAC3Last:
			if len(payload) > 4 {
				if h, err := ac3.ParseHeader(payload[4:]); err == nil && h.EAC3 {
					return av.CodecEAC3
				}
			}
			return av.CodecAC3
		case sub >= subStreamDTSFirst && sub <= subStreamDTSLast:
			return av.CodecDTS
		case sub >= subStreamLPCMFirst && sub <= subStreamLPCMLast:
			return av.CodecPCMS16BE
		case sub >= subStreamSubpictureFirst && sub <= subStreamSubpictureLast:
			return av.CodecDVDSubtitle
		}
	}
	return av.CodecPrivateData
}

// guessVideo tells MPEG-1/2 video from H.264 and HEVC by the first start code.
func guessVideo(b []byte) av.CodecID {
	i := mpegvideo.FindStartCode(b, 0)
	if i < 0 || i+5 > len(b) {
		return av.CodecMPEG2Video
	}
	c := b[i+3]
	switch c {
	case mpegvideo.SequenceHeader, mpegvideo.GroupStartCode, mpegvideo.PictureStartCode:
		return av.CodecMPEG2Video
	}
	if c&0x81 == 0 && b[i+4] == 1 {
		switch c >> 1 {
		case 19, 20, 32, 33, 34, 35:
			return av.CodecHEVC
		}
	}
	if c&0x80 == 0 {
		switch c & 0x1f {
		case 1, 5, 6, 7, 8, 9:
			return av.CodecH264
		}
	}
	return av.CodecMPEG2Video
}

func (d *Demuxer) addStream(id int, streamID byte, codec av.CodecID) *psStream {
	st := av.NewStream(len(d.streams), id, av.TimeBase90k)
	st.SetCodec(codec)
	s := &psStream{
		id:      id,
		st:      st,
		framing: framingFor(codec),
		nextPTS: av.NoPTS,
		interp:  newInterpolator(),
	}
	if s.framing == frameAudio {
		s.audio = audioHeaderFor(codec)
	}
	if s.framing == frameVideo {
		s.interp.step = defaultFrameStep
	}
	if st.Codecpar.MediaType == av.MediaTypeAudio {
		s.index.MinDistance = common.TimeScale
	}
	if e, ok := d.psm.Lookup(streamID); ok {
		st.Language = mpegts.Language(e.Descriptors)
	}
	st.Priv = s
	d.streams = append(d.streams, st)
	d.ids[id] = s
	d.attachFilter(s)
	d.log.WithFields(logrus.Fields{
		"id": fmt.Sprintf("%#x", id), "stream": st.Index, "codec": codec,
	}).Debug("elementary stream")
	return s
}

func (d *Demuxer) attachFilter(s *psStream) {
	f, err := bsf.NewForDemux(&s.st.Codecpar, s.st.TimeBase)
	if err != nil {
		d.log.WithFields(logrus.Fields{"stream": s.st.Index, "codec": s.st.Codecpar.CodecID}).Warnf("using passthrough: %v", err)
		f, _ = bsf.NewInit("null", &s.st.Codecpar, s.st.TimeBase)
	}
	s.filter = f
}

// stripSubstreamHeader removes the DVD private stream 1 header in front of the
// payload. For LPCM the stream parameters are read from it.
func (d *Demuxer) stripSubstreamHeader(s *psStream, sub byte, payload []byte) []byte {
	n := 1
	switch {
	case sub >= subStreamAC3First && sub <= subStreamDTSLast:
		// frame count and first access unit pointer
		n = 4
	case sub >= subStreamLPCMFirst && sub <= subStreamLPCMLast:
		n = 7
		if len(payload) >= n {
			par := &s.st.Codecpar
			par.SampleRate = lpcmSampleRates[payload[5]>>4&0x03]
			par.Channels = int(payload[5]&0x07) + 1
		}
	}
	if len(payload) < n {
		return nil
	}
	return payload[n:]
}

// split cuts the complete access units out of the stream buffer.
func (d *Demuxer) split(s *psStream) {
	switch s.framing {
	case frameAudio:
		d.splitAudio(s)
	case frameVideo:
		d.splitVideo(s)
	case frameSubpicture:
		d.splitSubpicture(s)
	}
}

// consume drops n leading bytes of the stream buffer.
func (s *psStream) consume(n int) {
	s.buf = s.buf[n:]
	s.stamps.consume(n)
	if len(s.buf) == 0 {
		s.buf = nil
	}
}

func (d *Demuxer) splitAudio(s *psStream) {
	for {
		off, ok := findFrame(s.buf, s.audio)
		if off < 0 {
			if len(s.buf) >= s.audio.min {
				s.consume(len(s.buf) - (s.audio.min - 1))
			}
			return
		}
		if off > 0 {
			d.log.WithFields(logrus.Fields{"stream": s.st.Index, "bytes": off}).Debug("skipping to audio sync")
			s.consume(off)
		}
		if !ok {
			return
		}
		f, _ := s.audio.parse(s.buf)
		d.emitAudio(s, f)
	}
}

// emitAudio emits the frame f at the start of the stream buffer.
func (d *Demuxer) emitAudio(s *psStream, f audioFrame) {
	par := &s.st.Codecpar
	if par.SampleRate == 0 {
		par.SampleRate, par.Channels, par.BitRate = f.sampleRate, f.channels, f.bitRate
	}
	var duration int64
	if f.sampleRate > 0 {
		duration = av.Rescale(int64(f.samples), av.Rational{Num: 1, Den: int64(f.sampleRate)}, s.st.TimeBase)
	}
	d.emit(s, s.buf[:f.size], duration)
	s.consume(f.size)
}

func (d *Demuxer) splitVideo(s *psStream) {
	starts := mpegvideo.FrameStarts(s.buf)
	if len(starts) == 0 {
		return
	}
	if first := starts[0]; first > 0 {
		s.consume(first)
		for i := range starts {
			starts[i] -= first
		}
	}
	if len(s.buf) > 3 && s.buf[3] == mpegvideo.SequenceHeader {
		if si, ok := mpegvideo.ParseSequenceHeader(s.buf); ok && si.FrameRate.Num > 0 {
			s.interp.step = av.Rescale(1, av.Rational{Num: si.FrameRate.Den, Den: si.FrameRate.Num}, s.st.TimeBase)
		}
	}
	for len(starts) > 1 {
		n := starts[1]
		d.emit(s, s.buf[:n], 0)
		s.consume(n)
		starts = starts[1:]
		for i := range starts {
			starts[i] -= n
		}
	}
	// pictures bundled in the previous PES can be placed once the timestamp
	// of the next one is known
	if dts, ok := s.stamps.next(); ok {
		for _, p := range s.interp.release(dts) {
			d.send(s, p)
		}
	}
}

func (d *Demuxer) splitSubpicture(s *psStream) {
	for len(s.buf) >= 2 {
		n := int(binary.BigEndian.Uint16(s.buf))
		if n < 2 {
			d.log.WithField("stream", s.st.Index).Warn("invalid subpicture size")
			s.consume(len(s.buf))
			return
		}
		if n > len(s.buf) {
			return
		}
		d.emit(s, s.buf[:n], 0)
		s.consume(n)
	}
}

// newPacket builds a packet from access unit data starting at buffer offset 0
// of s.
func (d *Demuxer) newPacket(s *psStream, data []byte, duration int64) *av.Packet {
	st, fresh := s.stamps.take(0)
	pkt := av.Alloc(d.opts.Pool)
	pkt.Data = append(pkt.Data[:0], data...)
	pkt.PTS, pkt.DTS = av.NoPTS, av.NoPTS
	if fresh {
		pkt.PTS, pkt.DTS = st.pts, st.dts
		if st.scr != NoSCR {
			prft := make([]byte, 8)
			binary.BigEndian.PutUint64(prft, uint64(st.scr))
			pkt.AddSideData(av.SideDataProducerReferenceTime, prft)
		}
	}
	pkt.Duration = duration
	pkt.Pos = st.pos
	pkt.StreamIndex = s.st.Index
	pkt.TimeBase = s.st.TimeBase
	nalu := s.st.Codecpar.CodecID.IsNALU()
	pkt.SetFlag(av.FlagAnnexB, nalu)
	pkt.SetFlag(av.FlagKey, demuxutil.IsKeyframe(s.st, data, nalu))
	pkt.SetFlag(av.FlagCorrupt, s.corrupt)
	s.corrupt = false
	if s.framing == frameAudio {
		if pkt.PTS == av.NoPTS {
			pkt.PTS, pkt.DTS = s.nextPTS, s.nextPTS
		}
		if pkt.PTS != av.NoPTS {
			s.nextPTS = pkt.PTS + duration
		}
	}
	return pkt
}

// emit passes one access unit through the stream filter. MPEG video pictures
// first go through timestamp interpolation.
func (d *Demuxer) emit(s *psStream, data []byte, duration int64) {
	pkt := d.newPacket(s, data, duration)
	if s.framing == frameVideo {
		for _, p := range s.interp.push(pkt) {
			d.send(s, p)
		}
		return
	}
	d.send(s, pkt)
}

func (d *Demuxer) send(s *psStream, pkt *av.Packet) {
	if err := s.filter.Send(pkt); err != nil {
		d.log.WithFields(logrus.Fields{"stream": s.st.Index, "pos": pkt.Pos}).Warnf("filter: %v", err)
		return
	}
	d.drainFilter(s)
}

// drainFilter moves all ready filter output to the interval buffer.
func (d *Demuxer) drainFilter(s *psStream) {
	for _, pkt := range bsf.Drain(s.filter) {
		d.output(s, pkt)
	}
}

func (d *Demuxer) output(s *psStream, pkt *av.Packet) {
	pkt.StreamIndex = s.st.Index
	pkt.TimeBase = s.st.TimeBase
	s.produced = true
	changed, err := demuxutil.CaptureExtradata(s.st, pkt)
	log := d.log.WithFields(logrus.Fields{"stream": s.st.Index, "codec": s.st.Codecpar.CodecID})
	if err != nil {
		log.WithError(err).Warn("codec parameters not updated")
	} else if changed {
		log.Debug("extradata captured")
	}
	if s.st.StartTime == av.NoPTS && pkt.PTS != av.NoPTS {
		s.st.StartTime = pkt.PTS
	}
	if pkt.IsKey() && pkt.PTS != av.NoPTS {
		s.index.Add(pkt.PTS, pkt.Pos)
	}
	d.out.Push(pkt)
}

// flushNext flushes the next stream and reports whether that produced output.
func (d *Demuxer) flushNext() bool {
	for d.flushed < len(d.streams) {
		s := d.streams[d.flushed].Priv.(*psStream)
		d.flushed++
		d.flushStream(s)
		if d.out.Len() > 0 {
			return true
		}
	}
	return false
}

// flushStream emits the data left in the buffer of s as one access unit and
// flushes the filter.
func (d *Demuxer) flushStream(s *psStream) {
	if len(s.buf) > 0 {
		if s.framing == frameAudio {
			d.flushAudio(s)
		} else {
			d.emit(s, s.buf, 0)
		}
	}
	if s.framing == frameVideo {
		for _, p := range s.interp.flush() {
			d.send(s, p)
		}
	}
	_ = s.filter.Send(nil)
	d.drainFilter(s)
	s.buf = nil
	s.stamps = nil
}

// flushAudio emits the first complete frame left in the buffer, which has no
// following header to confirm it. A truncated frame cannot be cut by the
// filter and is output as is, flagged corrupt.
func (d *Demuxer) flushAudio(s *psStream) {
	for o := 0; o+s.audio.min <= len(s.buf); o++ {
		f, err := s.audio.parse(s.buf[o:])
		if err == nil && f.size > 0 && o+f.size <= len(s.buf) {
			s.consume(o)
			d.emitAudio(s, f)
			return
		}
	}
	pkt := d.newPacket(s, s.buf, 0)
	pkt.SetFlag(av.FlagCorrupt, true)
	d.output(s, pkt)
}

// reset drops all in-flight data: stream buffers, pending pictures, filter
// state and buffered output.
func (d *Demuxer) reset() {
	for _, s := range d.ids {
		s.buf = nil
		s.stamps = nil
		s.corrupt = false
		s.nextPTS = av.NoPTS
		s.interp.reset()
		if s.filter != nil {
			s.filter.Reset()
		}
	}
	d.scan.Reset()
	d.out.Clear()
	d.flushed = 0
	d.eof = false
}

// Index returns the keyframe index built so far for stream index i.
func (d *Demuxer) Index(i int) *demuxutil.KeyframeIndex {
	if i < 0 || i >= len(d.streams) {
		return nil
	}
	return &d.streams[i].Priv.(*psStream).index
}
