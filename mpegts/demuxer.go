package mpegts

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/Eyevinn/avdemux/av"
	"github.com/Eyevinn/avdemux/bsf"
	"github.com/Eyevinn/avdemux/bytesio"
	"github.com/Eyevinn/avdemux/common"
	"github.com/Eyevinn/avdemux/internal/demuxutil"
	"github.com/Eyevinn/avdemux/internal/slicequeue"
	"github.com/Eyevinn/avdemux/pes"
)

// DemuxerOptions configures a Demuxer. The zero value of a field selects the
// default of DefaultDemuxerOptions.
type DemuxerOptions struct {
	Logger logrus.FieldLogger
	// Pool provides output packets. Nil allocates per packet.
	Pool av.Pool
	// ProbeSize is the number of bytes inspected for packet size detection and
	// the byte range below which timestamp bisection stops.
	ProbeSize int
	// MaxCorruptPackets is the number of consecutive packets without sync
	// byte tolerated before ReadPacket fails.
	MaxCorruptPackets int
}

func DefaultDemuxerOptions() DemuxerOptions {
	return DemuxerOptions{
		Logger:            logrus.StandardLogger(),
		ProbeSize:         100 * FECPacketSize,
		MaxCorruptPackets: 1000,
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
	if o.MaxCorruptPackets <= 0 {
		o.MaxCorruptPackets = d.MaxCorruptPackets
	}
	return o
}

type demuxState int

const (
	stateAwaitingTables demuxState = iota
	stateSteady
	stateDrained
)

// resyncPackets is the number of consecutive sync bytes at packet stride
// required after a byte seek or a lost sync.
const resyncPackets = 5

// tsStream is the TS private context of an av.Stream.
type tsStream struct {
	pid        uint16
	streamType byte
	st         *av.Stream
	filter     bsf.Filter
	pes        *slicequeue.Queue
	// pcr seen in the packet that started the queued PES, or NoPCR
	pcr       int64
	unwrap    demuxutil.Unwrapper
	index     demuxutil.KeyframeIndex
	isSection bool
}

// Demuxer reads an MPEG-2 transport stream of 188, 192 or 204 byte packets.
type Demuxer struct {
	r          bytesio.Reader
	opts       DemuxerOptions
	log        logrus.FieldLogger
	ctx        *ParseContext
	state      demuxState
	packetSize int
	// prefix is the number of bytes in front of the 188-byte packet
	prefix   int
	start    int64
	buf      []byte
	streams  []*av.Stream
	pids     map[uint16]*tsStream
	sections map[uint16]*slicequeue.Queue
	lastCC   map[uint16]int
	lastPCR  map[uint16]int64
	out      demuxutil.PacketQueue
	flushed  int
	corrupt  int
}

func NewDemuxer(r bytesio.Reader, opts DemuxerOptions) *Demuxer {
	opts = opts.withDefaults()
	return &Demuxer{
		r:        r,
		opts:     opts,
		log:      opts.Logger,
		ctx:      NewParseContext(),
		pids:     map[uint16]*tsStream{},
		sections: map[uint16]*slicequeue.Queue{},
		lastCC:   map[uint16]int{},
		lastPCR:  map[uint16]int64{},
	}
}

// Context returns the PSI state read so far.
func (d *Demuxer) Context() *ParseContext {
	return d.ctx
}

func (d *Demuxer) Streams() []*av.Stream {
	return d.streams
}

// PacketSize returns the detected packet size including any prefix or trailer.
func (d *Demuxer) PacketSize() int {
	return d.packetSize
}

// ReadHeader detects the packet size and reads until the PAT and the PMTs of
// all announced programs have been applied. Packets completed meanwhile are
// kept for ReadPacket.
func (d *Demuxer) ReadHeader() error {
	probe, err := d.r.Peek(d.opts.ProbeSize)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("probing ts packet size: %w", err)
	}
	size, start, err := DetectPacketSize(probe)
	if err != nil {
		return err
	}
	d.packetSize = size
	if size == M2TSPacketSize {
		d.prefix = m2tsPrefix
	}
	d.buf = make([]byte, size)
	if err := d.r.Skip(int64(start)); err != nil {
		return fmt.Errorf("skipping to first packet: %w", err)
	}
	d.start = d.r.Pos()
	d.log.WithFields(logrus.Fields{"packetSize": size, "start": d.start}).Debug("ts packet size detected")
	for !(d.ctx.HasPAT && d.ctx.HasPMT) {
		if err := d.readOne(); err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("no complete PAT/PMT before end of stream: %w", av.ErrFormatNotSupport)
			}
			return err
		}
	}
	d.state = stateSteady
	return nil
}

// ReadPacket returns the next access unit. After the source ends, partially
// assembled PES packets are flushed one stream at a time and then io.EOF is
// returned.
func (d *Demuxer) ReadPacket() (*av.Packet, error) {
	for {
		if p := d.out.Pop(); p != nil {
			return p, nil
		}
		if d.state == stateDrained {
			if !d.flushNext() {
				return nil, io.EOF
			}
			continue
		}
		if err := d.readOne(); err != nil {
			if !errors.Is(err, io.EOF) {
				return nil, err
			}
			d.log.Debug("ts source ended, draining")
			d.state = stateDrained
		}
	}
}

func (d *Demuxer) Close() {
	for _, s := range d.pids {
		if s.filter != nil {
			s.filter.Close()
		}
	}
	d.out.Clear()
}

// readOne reads and handles one transport packet.
func (d *Demuxer) readOne() error {
	pos := d.r.Pos()
	if err := d.r.ReadFull(d.buf); err != nil {
		return err
	}
	raw := d.buf[d.prefix : d.prefix+PacketSize]
	if raw[0] != SyncByte {
		d.corrupt++
		if d.corrupt > d.opts.MaxCorruptPackets {
			return fmt.Errorf("%d packets without sync byte at %d: %w", d.corrupt, pos, av.ErrDataInvalid)
		}
		d.log.WithField("pos", pos).Warn("ts sync lost")
		if d.r.Seekable() {
			if err := d.r.Seek(pos + 1); err != nil {
				return err
			}
		}
		return d.resync()
	}
	d.corrupt = 0
	p, err := ParsePacket(raw)
	if err != nil {
		d.log.WithFields(logrus.Fields{"pos": pos}).Warnf("dropping packet: %v", err)
		return nil
	}
	return d.handlePacket(p, pos)
}

// resync advances to the next offset where resyncPackets sync bytes follow at
// packet stride. Near the end of the source fewer are accepted.
func (d *Demuxer) resync() error {
	window := d.packetSize * (resyncPackets + 1)
	for {
		b, err := d.r.Peek(window)
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		if len(b) <= d.prefix {
			return io.EOF
		}
		for off := 0; off < d.packetSize && off+d.prefix < len(b); off++ {
			if syncedAt(b, off+d.prefix, d.packetSize) {
				return d.r.Skip(int64(off))
			}
		}
		if len(b) < window {
			return io.EOF
		}
		if err := d.r.Skip(int64(d.packetSize)); err != nil {
			return err
		}
	}
}

func syncedAt(b []byte, off, stride int) bool {
	n := 0
	for i := off; i < len(b) && n < resyncPackets; i += stride {
		if b[i] != SyncByte {
			return false
		}
		n++
	}
	return n > 0
}

func (d *Demuxer) isSectionPID(pid uint16) bool {
	if pid == PIDPAT || pid == PIDSDT || d.ctx.IsPMTPID(pid) {
		return true
	}
	s, ok := d.pids[pid]
	return ok && s.isSection
}

// checkCC applies the continuity rules and reports whether the packet should be
// used. After a gap the PES being assembled on pid is still delivered, flagged
// corrupt, while a partial section is dropped.
func (d *Demuxer) checkCC(p *Packet) bool {
	if !p.HasPayload {
		return true
	}
	last, seen := d.lastCC[p.PID]
	d.lastCC[p.PID] = int(p.CC)
	if !seen || p.Adaptation.Discontinuity {
		return true
	}
	if int(p.CC) == last {
		return false
	}
	if int(p.CC) != (last+1)&0x0f {
		d.log.WithFields(logrus.Fields{"pid": p.PID, "expected": (last + 1) & 0x0f, "cc": p.CC}).Warn("continuity error")
		if s, ok := d.pids[p.PID]; ok && !s.pes.Empty() {
			s.pes.Corrupt = true
		}
		if q, ok := d.sections[p.PID]; ok {
			q.Clear()
		}
	}
	return true
}

func (d *Demuxer) handlePacket(p *Packet, pos int64) error {
	if p.TEI {
		return nil
	}
	if p.Adaptation.PCR != NoPCR && d.ctx.IsPCRPID(p.PID) {
		d.lastPCR[p.PID] = p.Adaptation.PCR
	}
	if !d.checkCC(p) {
		return nil
	}
	if p.Scrambling != 0 || len(p.Payload) == 0 {
		return nil
	}
	if d.isSectionPID(p.PID) {
		return d.handlePSI(p, pos)
	}
	if s, ok := d.pids[p.PID]; ok {
		return d.handlePES(s, p, pos)
	}
	return nil
}

func (d *Demuxer) sectionQueue(pid uint16) *slicequeue.Queue {
	q, ok := d.sections[pid]
	if !ok {
		q = slicequeue.New()
		d.sections[pid] = q
	}
	return q
}

func (d *Demuxer) handlePSI(p *Packet, pos int64) error {
	q := d.sectionQueue(p.PID)
	payload := p.Payload
	if !p.PayloadUnitStart {
		if q.Pos < 0 {
			return nil
		}
		q.Push(payload)
		return d.completeSection(p.PID, q)
	}
	ptr := int(payload[0])
	payload = payload[1:]
	if ptr > len(payload) {
		q.Clear()
		d.log.WithField("pid", p.PID).Warn("pointer field beyond payload")
		return nil
	}
	if q.Pos >= 0 {
		q.Push(payload[:ptr])
		if err := d.completeSection(p.PID, q); err != nil {
			return err
		}
	}
	q.Clear()
	payload = payload[ptr:]
	for len(payload) > 0 && payload[0] != tableIDStuff {
		n := SectionLength(payload)
		if n < 0 || n > len(payload) {
			q.Start(pos, n, false)
			q.Push(payload)
			return nil
		}
		if err := d.handleSection(p.PID, payload[:n], pos); err != nil {
			return err
		}
		payload = payload[n:]
	}
	return nil
}

func (d *Demuxer) completeSection(pid uint16, q *slicequeue.Queue) error {
	if q.Expected < 0 && q.Len() >= sectionHeaderLength {
		q.Expected = SectionLength(q.Peek(sectionHeaderLength))
	}
	if !q.Complete() {
		return nil
	}
	pos := q.Pos
	return d.handleSection(pid, q.Take(), pos)
}

func (d *Demuxer) handleSection(pid uint16, b []byte, pos int64) error {
	if s, ok := d.pids[pid]; ok && s.isSection {
		d.emitSection(s, b, pos)
		return nil
	}
	update, err := d.ctx.HandleSection(pid, b)
	if err != nil {
		if errors.Is(err, av.ErrDataInvalid) {
			d.log.WithFields(logrus.Fields{"pid": pid, "pos": pos}).Warnf("dropping section: %v", err)
			return nil
		}
		return err
	}
	switch update {
	case UpdatePAT:
		d.log.WithField("version", d.ctx.PATVersion).Debug("PAT applied")
	case UpdatePMT:
		d.updateStreams()
	case UpdateSDT:
		d.log.WithField("services", len(d.ctx.Services)).Debug("SDT applied")
	}
	return nil
}

// updateStreams creates streams for new elementary PIDs and re-initialises those
// whose stream type changed.
func (d *Demuxer) updateStreams() {
	pids := make([]int, 0, len(d.ctx.StreamTypes))
	for pid := range d.ctx.StreamTypes {
		pids = append(pids, int(pid))
	}
	sort.Ints(pids)
	for _, v := range pids {
		pid := uint16(v)
		streamType := d.ctx.StreamTypes[pid]
		ds := d.ctx.Descriptors[pid]
		s, ok := d.pids[pid]
		if ok && s.streamType == streamType {
			continue
		}
		if !ok {
			st := av.NewStream(len(d.streams), int(pid), av.TimeBase90k)
			s = &tsStream{pid: pid, st: st, pes: slicequeue.New(), pcr: NoPCR}
			st.Priv = s
			d.streams = append(d.streams, st)
			d.pids[pid] = s
		}
		s.streamType = streamType
		s.st.SetCodec(CodecForStream(streamType, ds))
		s.st.Language = Language(ds)
		s.isSection = s.st.Codecpar.CodecID == av.CodecSCTE35
		if s.st.Codecpar.MediaType == av.MediaTypeAudio {
			s.index.MinDistance = common.TimeScale
		}
		d.attachFilter(s)
		d.log.WithFields(logrus.Fields{
			"pid": pid, "stream": s.st.Index, "streamType": fmt.Sprintf("%#02x", streamType),
			"codec": s.st.Codecpar.CodecID,
		}).Debug("elementary stream")
	}
}

func (d *Demuxer) attachFilter(s *tsStream) {
	if s.filter != nil {
		s.filter.Close()
	}
	f, err := bsf.NewForDemux(&s.st.Codecpar, s.st.TimeBase)
	if err != nil {
		d.log.WithFields(logrus.Fields{"pid": s.pid, "codec": s.st.Codecpar.CodecID}).Warnf("using passthrough: %v", err)
		f, _ = bsf.NewInit("null", &s.st.Codecpar, s.st.TimeBase)
	}
	s.filter = f
}

// emitSection turns an SCTE-35 section into a data packet stamped with the
// latest PCR of its program.
func (d *Demuxer) emitSection(s *tsStream, b []byte, pos int64) {
	if len(b) == 0 || b[0] != TableIDSCTE {
		return
	}
	pkt := av.Alloc(d.opts.Pool)
	pkt.Data = append(pkt.Data[:0], b...)
	if prog := d.ctx.ProgramOf(s.pid); prog != nil {
		if pcr, ok := d.lastPCR[prog.PCRPID]; ok {
			pkt.PTS = s.unwrap.Unwrap(pcr / 300)
			pkt.DTS = pkt.PTS
		}
	}
	pkt.Pos = pos
	pkt.StreamIndex = s.st.Index
	pkt.TimeBase = s.st.TimeBase
	pkt.SetFlag(av.FlagKey, true)
	d.out.Push(pkt)
}

// expectedPESLength returns the full PES length declared at the start of b, or
// -1 when it is unbounded or not yet known.
func expectedPESLength(b []byte) int {
	if len(b) < pes.FixedHeaderLength || !pes.IsStartCode(b) {
		return -1
	}
	n := int(binary.BigEndian.Uint16(b[4:]))
	if n == 0 {
		return -1
	}
	return pes.FixedHeaderLength + n
}

func (d *Demuxer) handlePES(s *tsStream, p *Packet, pos int64) error {
	if p.PayloadUnitStart {
		if !s.pes.Empty() {
			if err := d.completePES(s); err != nil {
				return err
			}
		}
		s.pes.Start(pos, expectedPESLength(p.Payload), p.Adaptation.RandomAccess)
		s.pcr = NoPCR
		if p.Adaptation.PCR != NoPCR {
			s.pcr = p.Adaptation.PCR
		}
	} else if s.pes.Pos < 0 {
		// no start seen since the last reset
		return nil
	}
	s.pes.Push(p.Payload)
	if s.pes.Complete() {
		return d.completePES(s)
	}
	return nil
}

// completePES parses the assembled PES of s and passes its payload through the
// stream filter. A malformed PES is dropped.
func (d *Demuxer) completePES(s *tsStream) error {
	q := s.pes
	pos, ra, corrupt := q.Pos, q.RandomAccess, q.Corrupt
	data := q.Take()
	h, err := pes.ParseHeader(data)
	if err != nil {
		d.log.WithFields(logrus.Fields{"pid": s.pid, "pos": pos}).Warnf("dropping PES: %v", err)
		return nil
	}
	payload := data[h.HeaderLength:]
	if n := h.PayloadLength(); n >= 0 && n < len(payload) {
		payload = payload[:n]
	}
	if len(payload) == 0 {
		return nil
	}
	st := s.st
	in := av.Alloc(d.opts.Pool)
	in.Data = append(in.Data[:0], payload...)
	in.DTS = s.unwrap.Unwrap(h.DTS)
	if h.PTS != av.NoPTS {
		if in.DTS == av.NoPTS {
			in.PTS = s.unwrap.Unwrap(h.PTS)
			in.DTS = in.PTS
		} else {
			in.PTS = in.DTS + common.SignedPTSDiff(h.PTS, h.DTS)
		}
	}
	in.Pos = pos
	in.StreamIndex = st.Index
	in.TimeBase = st.TimeBase
	nalu := st.Codecpar.CodecID.IsNALU()
	in.SetFlag(av.FlagAnnexB, nalu)
	key := demuxutil.IsKeyframe(st, payload, nalu)
	if st.Codecpar.MediaType == av.MediaTypeVideo && st.Caps == nil {
		key = ra
	}
	in.SetFlag(av.FlagKey, key)
	in.SetFlag(av.FlagCorrupt, corrupt)
	if s.pcr != NoPCR {
		prft := make([]byte, 8)
		binary.BigEndian.PutUint64(prft, uint64(s.pcr))
		in.AddSideData(av.SideDataProducerReferenceTime, prft)
	}
	if err := s.filter.Send(in); err != nil {
		if errors.Is(err, av.ErrDataInvalid) {
			d.log.WithFields(logrus.Fields{"pid": s.pid, "pos": pos}).Warnf("filter: %v", err)
			return nil
		}
		return fmt.Errorf("filter on pid %d: %w", s.pid, err)
	}
	d.drainFilter(s)
	return nil
}

// drainFilter moves all ready filter output to the interval buffer.
func (d *Demuxer) drainFilter(s *tsStream) {
	for _, pkt := range bsf.Drain(s.filter) {
		pkt.StreamIndex = s.st.Index
		pkt.TimeBase = s.st.TimeBase
		changed, err := demuxutil.CaptureExtradata(s.st, pkt)
		log := d.log.WithFields(logrus.Fields{"pid": s.pid, "codec": s.st.Codecpar.CodecID})
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
}

// flushNext completes the next non-empty PES queue and, once all are done,
// flushes the filters. It reports whether anything was left to flush.
func (d *Demuxer) flushNext() bool {
	for d.flushed < len(d.streams) {
		s := d.streams[d.flushed].Priv.(*tsStream)
		if !s.pes.Empty() && !s.isSection {
			_ = d.completePES(s)
			if d.out.Len() > 0 {
				return true
			}
			continue
		}
		d.flushed++
		if s.filter != nil {
			_ = s.filter.Send(nil)
			d.drainFilter(s)
			if d.out.Len() > 0 {
				return true
			}
		}
	}
	return false
}

// reset drops all in-flight data: PES and section queues, filter state,
// continuity counters and buffered output.
func (d *Demuxer) reset() {
	for _, s := range d.pids {
		s.pes.Clear()
		s.pcr = NoPCR
		if s.filter != nil {
			s.filter.Reset()
		}
	}
	for _, q := range d.sections {
		q.Clear()
	}
	d.lastCC = map[uint16]int{}
	d.out.Clear()
	d.flushed = 0
	d.corrupt = 0
	if d.state == stateDrained {
		d.state = stateSteady
	}
}

// Index returns the keyframe index built so far for stream index i.
func (d *Demuxer) Index(i int) *demuxutil.KeyframeIndex {
	if i < 0 || i >= len(d.streams) {
		return nil
	}
	return &d.streams[i].Priv.(*tsStream).index
}
