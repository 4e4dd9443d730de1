package mpegts

import (
	"encoding/binary"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Eyevinn/avdemux/av"
	"github.com/Eyevinn/avdemux/bsf"
	"github.com/Eyevinn/avdemux/bytesio"
	"github.com/Eyevinn/avdemux/common"
	"github.com/Eyevinn/avdemux/pes"
)

// MuxerOptions configures a Muxer. Zero fields take the defaults of
// DefaultMuxerOptions.
type MuxerOptions struct {
	Logger            logrus.FieldLogger
	TransportStreamID uint16
	ServiceID         uint16
	PMTPID            uint16
	// StartPID is the PID of the first elementary stream.
	StartPID uint16
	// KeepPIDs uses the stream ids as PIDs when they are valid and unique.
	KeepPIDs     bool
	ServiceName  string
	ProviderName string
	// TablePeriod is the PAT/PMT/SDT repetition interval in 90 kHz ticks.
	TablePeriod int64
	// PCRPeriod is the longest PCR interval in 90 kHz ticks before a PCR-only
	// packet is inserted.
	PCRPeriod int64
	// PESPayloadSize is the size up to which audio frames are aggregated into
	// one PES.
	PESPayloadSize int
	// Delay is subtracted from the DTS to derive the PCR, in 90 kHz ticks.
	Delay int64
	// M2TS writes 192-byte packets with a 4-byte arrival timestamp.
	M2TS bool
	// InsertAUD adds an H.264 access unit delimiter to every access unit.
	InsertAUD bool
}

func DefaultMuxerOptions() MuxerOptions {
	return MuxerOptions{
		Logger:            logrus.StandardLogger(),
		TransportStreamID: 1,
		ServiceID:         1,
		PMTPID:            0x1000,
		StartPID:          0x100,
		ServiceName:       "Service01",
		ProviderName:      "avdemux",
		TablePeriod:       9000,
		PCRPeriod:         1800,
		PESPayloadSize:    2930,
		Delay:             63000,
		InsertAUD:         true,
	}
}

func (o MuxerOptions) withDefaults() MuxerOptions {
	d := DefaultMuxerOptions()
	if o.Logger == nil {
		o.Logger = d.Logger
	}
	if o.TransportStreamID == 0 {
		o.TransportStreamID = d.TransportStreamID
	}
	if o.ServiceID == 0 {
		o.ServiceID = d.ServiceID
	}
	if o.PMTPID == 0 {
		o.PMTPID = d.PMTPID
	}
	if o.StartPID == 0 {
		o.StartPID = d.StartPID
	}
	if o.TablePeriod <= 0 {
		o.TablePeriod = d.TablePeriod
	}
	if o.PCRPeriod <= 0 {
		o.PCRPeriod = d.PCRPeriod
	}
	if o.PESPayloadSize < 0 {
		o.PESPayloadSize = 0
	}
	return o
}

// originalNetworkID is the value written in the SDT.
const originalNetworkID = 0xff01

const (
	serviceTypeTV    = 0x01
	serviceTypeRadio = 0x02
)

type muxStream struct {
	st         *av.Stream
	pid        uint16
	streamID   byte
	streamType byte
	cc         byte
	filter     bsf.Filter
	// audio frames waiting to be written as one PES
	pending    []byte
	pendingPTS int64
	pendingKey bool
}

// Muxer writes av.Packets as an MPEG-2 transport stream with one program.
type Muxer struct {
	w       bytesio.Writer
	opts    MuxerOptions
	log     logrus.FieldLogger
	streams []*muxStream
	pcr     *muxStream
	pat     *PAT
	pmt     *PMT
	sdt     *SDT
	patCC   byte
	pmtCC   byte
	sdtCC   byte
	// lastTables and lastPCR are in 90 kHz ticks, NoPTS before the first write
	lastTables int64
	lastPCR    int64
	// pcrValue is the last PCR written, in 27 MHz units
	pcrValue int64
	buf      []byte
}

func NewMuxer(w bytesio.Writer, opts MuxerOptions) *Muxer {
	opts = opts.withDefaults()
	return &Muxer{w: w, opts: opts, log: opts.Logger, lastTables: av.NoPTS, lastPCR: av.NoPTS}
}

// PIDs returns the elementary PIDs in stream order.
func (m *Muxer) PIDs() []uint16 {
	pids := make([]uint16, len(m.streams))
	for i, ms := range m.streams {
		pids[i] = ms.pid
	}
	return pids
}

func (m *Muxer) WriteHeader(streams []*av.Stream) error {
	if len(streams) == 0 {
		return fmt.Errorf("ts mux without streams: %w", av.ErrFormatNotSupport)
	}
	used := map[uint16]bool{m.opts.PMTPID: true, PIDPAT: true, PIDSDT: true, PIDNull: true}
	video := false
	for i, st := range streams {
		ms := &muxStream{st: st, pendingPTS: av.NoPTS}
		ms.pid = m.opts.StartPID + uint16(i)
		if m.opts.KeepPIDs && st.ID >= 0x20 && st.ID < int(PIDNull) && !used[uint16(st.ID)] {
			ms.pid = uint16(st.ID)
		}
		used[ms.pid] = true
		ms.streamType, _ = StreamTypeForCodec(st)
		switch st.Codecpar.MediaType {
		case av.MediaTypeVideo:
			ms.streamID = pes.StreamIDVideoFirst
			video = true
			if m.pcr == nil || m.pcr.st.Codecpar.MediaType != av.MediaTypeVideo {
				m.pcr = ms
			}
		case av.MediaTypeAudio:
			ms.streamID = pes.StreamIDAudioFirst
			switch st.Codecpar.CodecID {
			case av.CodecAC3, av.CodecEAC3, av.CodecDTS, av.CodecOpus:
				ms.streamID = pes.StreamIDPrivate1
			}
		case av.MediaTypeData:
			ms.streamID = pes.StreamIDPrivate1
			if st.Codecpar.CodecID == av.CodecSMPTE2038 {
				ms.streamID = pes.StreamIDMetadata
			}
		default:
			ms.streamID = pes.StreamIDPrivate1
		}
		if m.pcr == nil {
			m.pcr = ms
		}
		if st.Codecpar.CodecID != av.CodecSCTE35 {
			f, err := m.newFilter(st)
			if err != nil {
				return fmt.Errorf("stream %d: %w", i, err)
			}
			ms.filter = f
		}
		m.streams = append(m.streams, ms)
	}
	m.buildTables(video)
	return m.writeTables()
}

func (m *Muxer) newFilter(st *av.Stream) (bsf.Filter, error) {
	f, err := bsf.New(bsf.ForMux(st.Codecpar.CodecID))
	if err != nil {
		return nil, err
	}
	if a, ok := f.(*bsf.AVCCToAnnexB); ok {
		a.InsertAUD = m.opts.InsertAUD && st.Codecpar.CodecID == av.CodecH264
	}
	if err := f.Init(&st.Codecpar, st.TimeBase); err != nil {
		return nil, err
	}
	return f, nil
}

func (m *Muxer) buildTables(video bool) {
	m.pat = &PAT{
		TransportStreamID: m.opts.TransportStreamID,
		Programs:          []PATProgram{{Number: m.opts.ServiceID, PID: m.opts.PMTPID}},
	}
	m.pmt = &PMT{ProgramNumber: m.opts.ServiceID, PCRPID: m.pcr.pid}
	for _, ms := range m.streams {
		streamType, ds := StreamTypeForCodec(ms.st)
		m.pmt.Streams = append(m.pmt.Streams, PMTStream{StreamType: streamType, PID: ms.pid, Descriptors: ds})
	}
	serviceType := byte(serviceTypeTV)
	if !video {
		serviceType = serviceTypeRadio
	}
	m.sdt = &SDT{
		TransportStreamID: m.opts.TransportStreamID,
		OriginalNetworkID: originalNetworkID,
		Services: []Service{{
			ServiceID:    m.opts.ServiceID,
			ServiceType:  serviceType,
			ProviderName: m.opts.ProviderName,
			ServiceName:  m.opts.ServiceName,
		}},
	}
}

func (m *Muxer) writeTables() error {
	if err := m.writeSection(PIDPAT, &m.patCC, m.pat.AppendSection(nil)); err != nil {
		return err
	}
	if err := m.writeSection(m.opts.PMTPID, &m.pmtCC, m.pmt.AppendSection(nil)); err != nil {
		return err
	}
	return m.writeSection(PIDSDT, &m.sdtCC, m.sdt.AppendSection(nil))
}

// writeSection packetizes one section behind a zero pointer field and fills the
// last packet with 0xff.
func (m *Muxer) writeSection(pid uint16, cc *byte, section []byte) error {
	payload := append([]byte{0}, section...)
	if r := len(payload) % maxPayload; r != 0 {
		for i := r; i < maxPayload; i++ {
			payload = append(payload, tableIDStuff)
		}
	}
	for first := true; len(payload) > 0; first = false {
		p := NewPacketHeader(pid, *cc)
		p.PayloadUnitStart = first
		*cc = (*cc + 1) & 0x0f
		var n int
		if err := m.writePacket(p, payload, &n); err != nil {
			return err
		}
		payload = payload[n:]
	}
	return nil
}

func (m *Muxer) writePacket(p *Packet, payload []byte, n *int) error {
	m.buf = m.buf[:0]
	if m.opts.M2TS {
		ats := uint32(0)
		if m.lastPCR != av.NoPTS {
			ats = uint32(m.pcrValue) & 0x3fffffff
		}
		m.buf = binary.BigEndian.AppendUint32(m.buf, ats)
	}
	m.buf, *n = AppendPacket(m.buf, p, payload)
	return m.w.WriteBuffer(m.buf)
}

// pcrFor derives the PCR written with a PES of decode time dts.
func (m *Muxer) pcrFor(dts int64) int64 {
	t := dts - m.opts.Delay
	if t < 0 {
		t = 0
	}
	return (t % common.PtsWrap) * 300
}

// stampPCR puts the PCR for dts into the adaptation field of p. The arrival
// timestamps of M2TS output follow the same value.
func (m *Muxer) stampPCR(p *Packet, dts int64) {
	p.Adaptation.PCR = m.pcrFor(dts)
	m.lastPCR = dts
	m.pcrValue = p.Adaptation.PCR
}

// WritePacket converts pkt with the stream filter and writes the result. Audio
// frames are aggregated up to PESPayloadSize bytes per PES.
func (m *Muxer) WritePacket(pkt *av.Packet) error {
	if pkt.StreamIndex < 0 || pkt.StreamIndex >= len(m.streams) {
		return fmt.Errorf("packet for unknown stream %d: %w", pkt.StreamIndex, av.ErrDataInvalid)
	}
	ms := m.streams[pkt.StreamIndex]
	if ms.filter == nil {
		return m.writeFrame(ms, pkt)
	}
	if err := ms.filter.Send(pkt); err != nil {
		return fmt.Errorf("filter on pid %d: %w", ms.pid, err)
	}
	for _, out := range bsf.Drain(ms.filter) {
		if err := m.writeFrame(ms, out); err != nil {
			return err
		}
	}
	return nil
}

func (m *Muxer) writeFrame(ms *muxStream, pkt *av.Packet) error {
	tb := pkt.TimeBase
	if !tb.Valid() {
		tb = ms.st.TimeBase
	}
	pts := av.Rescale(pkt.PTS, tb, av.TimeBase90k)
	dts := av.Rescale(pkt.DTS, tb, av.TimeBase90k)
	if dts == av.NoPTS {
		dts = pts
	}
	if ms.st.Codecpar.CodecID == av.CodecSCTE35 {
		return m.writeSCTE35(ms, pkt.Data, dts)
	}
	if ms.st.Codecpar.MediaType == av.MediaTypeAudio && m.opts.PESPayloadSize > 0 {
		if len(ms.pending) > 0 && len(ms.pending)+len(pkt.Data) > m.opts.PESPayloadSize {
			if err := m.flushPending(ms); err != nil {
				return err
			}
		}
		if len(ms.pending) == 0 {
			ms.pendingPTS = pts
			ms.pendingKey = pkt.IsKey()
		}
		ms.pending = append(ms.pending, pkt.Data...)
		if len(ms.pending) >= m.opts.PESPayloadSize {
			return m.flushPending(ms)
		}
		return nil
	}
	return m.writePES(ms, pkt.Data, pts, dts, pkt.IsKey())
}

func (m *Muxer) flushPending(ms *muxStream) error {
	if len(ms.pending) == 0 {
		return nil
	}
	err := m.writePES(ms, ms.pending, ms.pendingPTS, ms.pendingPTS, ms.pendingKey)
	ms.pending = ms.pending[:0]
	ms.pendingPTS = av.NoPTS
	return err
}

func (m *Muxer) writeSCTE35(ms *muxStream, section []byte, dts int64) error {
	if err := m.maybeWriteTables(dts); err != nil {
		return err
	}
	return m.writeSection(ms.pid, &ms.cc, section)
}

func (m *Muxer) maybeWriteTables(dts int64) error {
	if dts == av.NoPTS {
		return nil
	}
	if m.lastTables != av.NoPTS && dts-m.lastTables < m.opts.TablePeriod {
		return nil
	}
	m.lastTables = dts
	return m.writeTables()
}

// writePES writes one PES over as many packets as needed. The first packet
// carries the random access flag for keyframes and, on the PCR PID, the PCR.
func (m *Muxer) writePES(ms *muxStream, data []byte, pts, dts int64, key bool) error {
	if err := m.maybeWriteTables(dts); err != nil {
		return err
	}
	if ms != m.pcr && dts != av.NoPTS && m.lastPCR != av.NoPTS && dts-m.lastPCR > m.opts.PCRPeriod {
		if err := m.writePCROnly(dts); err != nil {
			return err
		}
	}
	if pts == av.NoPTS {
		dts = av.NoPTS
	}
	payload := pes.AppendHeader(nil, ms.streamID, pts, dts, len(data), true)
	if ms.st.Codecpar.MediaType == av.MediaTypeVideo {
		// unbounded length for video
		payload[4], payload[5] = 0, 0
	}
	payload = append(payload, data...)
	for first := true; len(payload) > 0; first = false {
		p := NewPacketHeader(ms.pid, ms.cc)
		ms.cc = (ms.cc + 1) & 0x0f
		if first {
			p.PayloadUnitStart = true
			p.Adaptation.RandomAccess = key
			if ms == m.pcr && dts != av.NoPTS {
				m.stampPCR(p, dts)
			}
		}
		var n int
		if err := m.writePacket(p, payload, &n); err != nil {
			return err
		}
		payload = payload[n:]
	}
	return nil
}

// writePCROnly writes an adaptation field only packet on the PCR PID.
func (m *Muxer) writePCROnly(dts int64) error {
	p := NewPacketHeader(m.pcr.pid, m.pcr.cc)
	m.stampPCR(p, dts)
	var n int
	return m.writePacket(p, nil, &n)
}

// WriteTrailer flushes the filters and pending audio and the output.
func (m *Muxer) WriteTrailer() error {
	for _, ms := range m.streams {
		if ms.filter != nil {
			if err := ms.filter.Send(nil); err != nil {
				return err
			}
			for _, out := range bsf.Drain(ms.filter) {
				if err := m.writeFrame(ms, out); err != nil {
					return err
				}
			}
		}
		if err := m.flushPending(ms); err != nil {
			return err
		}
	}
	return m.w.Flush()
}
