package mpegts

import (
	"fmt"

	"github.com/Eyevinn/avdemux/av"
)

// Program is one PAT entry and the PMT content last applied for it.
type Program struct {
	Number     uint16
	PMTPID     uint16
	PCRPID     uint16
	PMTVersion int
	Streams    []PMTStream
}

// TableUpdate tells which table a section changed.
type TableUpdate int

const (
	UpdateNone TableUpdate = iota
	UpdatePAT
	UpdatePMT
	UpdateSDT
)

// ParseContext is the PSI state of one transport stream. It is owned by a single
// demuxer and only changed through the Apply methods.
type ParseContext struct {
	TransportStreamID uint16
	Programs          map[uint16]*Program
	// StreamTypes and Descriptors are keyed by elementary PID.
	StreamTypes map[uint16]byte
	Descriptors map[uint16][]Descriptor
	Services    []Service
	PATVersion  int
	SDTVersion  int
	HasPAT      bool
	HasPMT      bool
	pmtPIDs     map[uint16]uint16
	pcrPIDs     map[uint16]bool
}

func NewParseContext() *ParseContext {
	c := &ParseContext{}
	c.reset()
	return c
}

func (c *ParseContext) reset() {
	*c = ParseContext{
		Programs:    map[uint16]*Program{},
		StreamTypes: map[uint16]byte{},
		Descriptors: map[uint16][]Descriptor{},
		PATVersion:  -1,
		SDTVersion:  -1,
		pmtPIDs:     map[uint16]uint16{},
		pcrPIDs:     map[uint16]bool{},
	}
}

func (c *ParseContext) IsPMTPID(pid uint16) bool {
	_, ok := c.pmtPIDs[pid]
	return ok
}

func (c *ParseContext) IsPCRPID(pid uint16) bool {
	return c.pcrPIDs[pid]
}

// ProgramOf returns the program carrying elementary PID pid.
func (c *ParseContext) ProgramOf(pid uint16) *Program {
	for _, p := range c.Programs {
		for _, es := range p.Streams {
			if es.PID == pid {
				return p
			}
		}
	}
	return nil
}

// HandleSection parses one complete section received on pid and applies it.
func (c *ParseContext) HandleSection(pid uint16, b []byte) (TableUpdate, error) {
	h, body, err := ParseSectionHeader(b)
	if err != nil {
		return UpdateNone, err
	}
	switch {
	case pid == PIDPAT && h.TableID == TableIDPAT:
		pat, err := ParsePAT(h, body)
		if err != nil {
			return UpdateNone, err
		}
		if c.ApplyPAT(h, pat) {
			return UpdatePAT, nil
		}
	case h.TableID == TableIDPMT && c.IsPMTPID(pid):
		pmt, err := ParsePMT(h, body)
		if err != nil {
			return UpdateNone, fmt.Errorf("pmt on pid %d: %w", pid, err)
		}
		if c.ApplyPMT(h, pmt) {
			return UpdatePMT, nil
		}
	case pid == PIDSDT && h.TableID == TableIDSDT:
		sdt, err := ParseSDT(h, body)
		if err != nil {
			return UpdateNone, err
		}
		if c.ApplySDT(h, sdt) {
			return UpdateSDT, nil
		}
	}
	return UpdateNone, nil
}

// ApplyPAT replaces the program list when the version changes. Programs whose
// PMT PID is unchanged keep their PMT state.
func (c *ParseContext) ApplyPAT(h SectionHeader, pat *PAT) bool {
	if !h.Applies() || (c.HasPAT && int(pat.Version) == c.PATVersion) {
		return false
	}
	old := c.Programs
	c.Programs = map[uint16]*Program{}
	c.pmtPIDs = map[uint16]uint16{}
	for _, p := range pat.Programs {
		if p.Number == 0 {
			continue
		}
		if prev, ok := old[p.Number]; ok && prev.PMTPID == p.PID {
			c.Programs[p.Number] = prev
		} else {
			c.Programs[p.Number] = &Program{Number: p.Number, PMTPID: p.PID, PMTVersion: -1}
		}
		c.pmtPIDs[p.PID] = p.Number
	}
	for n, p := range old {
		if _, ok := c.Programs[n]; !ok || c.Programs[n] != p {
			c.dropStreams(p)
		}
	}
	c.TransportStreamID = pat.TransportStreamID
	c.PATVersion = int(pat.Version)
	c.HasPAT = true
	c.updatePMTState()
	return true
}

// ApplyPMT replaces the elementary streams of the program when the version
// changes. Stream types of the previous version are removed, not merged.
func (c *ParseContext) ApplyPMT(h SectionHeader, pmt *PMT) bool {
	p, ok := c.Programs[pmt.ProgramNumber]
	if !ok || !h.Applies() || int(pmt.Version) == p.PMTVersion {
		return false
	}
	c.dropStreams(p)
	p.PMTVersion = int(pmt.Version)
	p.PCRPID = pmt.PCRPID
	p.Streams = pmt.Streams
	for _, es := range pmt.Streams {
		c.StreamTypes[es.PID] = es.StreamType
		c.Descriptors[es.PID] = es.Descriptors
	}
	c.pcrPIDs[p.PCRPID] = true
	c.updatePMTState()
	return true
}

func (c *ParseContext) ApplySDT(h SectionHeader, sdt *SDT) bool {
	if !h.Applies() || int(sdt.Version) == c.SDTVersion {
		return false
	}
	c.SDTVersion = int(sdt.Version)
	c.Services = sdt.Services
	return true
}

func (c *ParseContext) dropStreams(p *Program) {
	for _, es := range p.Streams {
		delete(c.StreamTypes, es.PID)
		delete(c.Descriptors, es.PID)
	}
	p.Streams = nil
	p.PMTVersion = -1
	c.pcrPIDs = map[uint16]bool{}
	for _, q := range c.Programs {
		if q != p && q.PMTVersion >= 0 {
			c.pcrPIDs[q.PCRPID] = true
		}
	}
}

// updatePMTState sets HasPMT once every announced program has a PMT.
func (c *ParseContext) updatePMTState() {
	if len(c.Programs) == 0 {
		c.HasPMT = false
		return
	}
	for _, p := range c.Programs {
		if p.PMTVersion < 0 {
			c.HasPMT = false
			return
		}
	}
	c.HasPMT = true
}

// CodecForStream maps a PMT stream type and its descriptors to a codec id.
func CodecForStream(streamType byte, ds []Descriptor) av.CodecID {
	switch streamType {
	case StreamTypeMPEG1Video:
		return av.CodecMPEG1Video
	case StreamTypeMPEG2Video:
		return av.CodecMPEG2Video
	case StreamTypeMPEG1Audio, StreamTypeMPEG2Audio:
		return av.CodecMP2
	case StreamTypeADTS:
		return av.CodecAAC
	case StreamTypeMPEG4Video:
		return av.CodecMPEG4Video
	case StreamTypeLATM:
		return av.CodecAACLATM
	case StreamTypeMetadata:
		return av.CodecPrivateData
	case StreamTypeH264:
		return av.CodecH264
	case StreamTypeHEVC:
		return av.CodecHEVC
	case StreamTypeVVC:
		return av.CodecVVC
	case StreamTypeAC3:
		return av.CodecAC3
	case StreamTypeDTS:
		return av.CodecDTS
	case StreamTypeSCTE35:
		return av.CodecSCTE35
	case StreamTypeEAC3:
		return av.CodecEAC3
	}
	switch Registration(ds) {
	case "AC-3":
		return av.CodecAC3
	case "EAC3":
		return av.CodecEAC3
	case "Opus":
		return av.CodecOpus
	case "HEVC":
		return av.CodecHEVC
	case "VANC":
		return av.CodecSMPTE2038
	case "DTS1", "DTS2", "DTS3":
		return av.CodecDTS
	}
	for _, d := range ds {
		switch d.Tag {
		case DescriptorAC3:
			return av.CodecAC3
		case DescriptorEAC3:
			return av.CodecEAC3
		case DescriptorDTS:
			return av.CodecDTS
		case DescriptorSubtitling:
			return av.CodecDVBSubtitle
		case DescriptorExtension:
			if len(d.Data) > 0 && d.Data[0] == opusExtensionTag {
				return av.CodecOpus
			}
		}
	}
	return av.CodecPrivateData
}

// opusExtensionTag is the DVB extension descriptor tag of the Opus audio
// descriptor.
const opusExtensionTag = 0x80

// StreamTypeForCodec returns the PMT stream type and descriptors used when
// muxing st.
func StreamTypeForCodec(st *av.Stream) (byte, []Descriptor) {
	var ds []Descriptor
	var streamType byte
	par := &st.Codecpar
	switch par.CodecID {
	case av.CodecH264:
		streamType = StreamTypeH264
	case av.CodecHEVC:
		streamType = StreamTypeHEVC
		ds = append(ds, RegistrationDescriptor("HEVC"))
	case av.CodecVVC:
		streamType = StreamTypeVVC
	case av.CodecMPEG1Video:
		streamType = StreamTypeMPEG1Video
	case av.CodecMPEG2Video:
		streamType = StreamTypeMPEG2Video
	case av.CodecMPEG4Video:
		streamType = StreamTypeMPEG4Video
	case av.CodecAAC:
		streamType = StreamTypeADTS
	case av.CodecAACLATM:
		streamType = StreamTypeLATM
	case av.CodecMP1, av.CodecMP2, av.CodecMP3:
		streamType = StreamTypeMPEG1Audio
		if par.SampleRate > 0 && par.SampleRate < 32000 {
			streamType = StreamTypeMPEG2Audio
		}
	case av.CodecAC3:
		streamType = StreamTypeAC3
		ds = append(ds, RegistrationDescriptor("AC-3"))
	case av.CodecEAC3:
		streamType = StreamTypeEAC3
		ds = append(ds, RegistrationDescriptor("EAC3"))
	case av.CodecDTS:
		streamType = StreamTypeDTS
	case av.CodecOpus:
		streamType = StreamTypePrivate
		ch := byte(par.Channels)
		if ch == 0 || ch > 8 {
			ch = 2
		}
		ds = append(ds, RegistrationDescriptor("Opus"),
			Descriptor{Tag: DescriptorExtension, Data: []byte{opusExtensionTag, ch}})
	case av.CodecSCTE35:
		streamType = StreamTypeSCTE35
	case av.CodecSMPTE2038:
		streamType = StreamTypePrivate
		ds = append(ds, RegistrationDescriptor("VANC"))
	case av.CodecDVBSubtitle:
		streamType = StreamTypePrivate
		ds = append(ds, Descriptor{Tag: DescriptorSubtitling, Data: par.Extradata})
	default:
		streamType = StreamTypePrivate
	}
	if len(st.Language) == 3 {
		ds = append(ds, Descriptor{Tag: DescriptorLanguage, Data: append([]byte(st.Language), 0)})
	}
	return streamType, ds
}
