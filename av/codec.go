package av

type MediaType int

const (
	MediaTypeUnknown MediaType = iota
	MediaTypeVideo
	MediaTypeAudio
	MediaTypeData
	MediaTypeSubtitle
)

func (m MediaType) String() string {
	switch m {
	case MediaTypeVideo:
		return "video"
	case MediaTypeAudio:
		return "audio"
	case MediaTypeData:
		return "data"
	case MediaTypeSubtitle:
		return "subtitle"
	default:
		return "unknown"
	}
}

type CodecID int

const (
	CodecNone CodecID = iota
	CodecH264
	CodecHEVC
	CodecVVC
	CodecMPEG1Video
	CodecMPEG2Video
	CodecMPEG4Video
	CodecAAC
	CodecAACLATM
	CodecAC3
	CodecEAC3
	CodecDTS
	CodecMP1
	CodecMP2
	CodecMP3
	CodecOpus
	CodecPCMS16BE
	CodecPCMMulaw
	CodecPCMAlaw
	CodecSCTE35
	CodecSMPTE2038
	CodecDVBSubtitle
	CodecDVDSubtitle
	CodecPrivateData
)

type codecDesc struct {
	name      string
	mediaType MediaType
}

var codecDescs = map[CodecID]codecDesc{
	CodecH264:        {"AVC", MediaTypeVideo},
	CodecHEVC:        {"HEVC", MediaTypeVideo},
	CodecVVC:         {"VVC", MediaTypeVideo},
	CodecMPEG1Video:  {"MPEG1Video", MediaTypeVideo},
	CodecMPEG2Video:  {"MPEG2Video", MediaTypeVideo},
	CodecMPEG4Video:  {"MPEG4Video", MediaTypeVideo},
	CodecAAC:         {"AAC", MediaTypeAudio},
	CodecAACLATM:     {"AAC-LATM", MediaTypeAudio},
	CodecAC3:         {"AC-3", MediaTypeAudio},
	CodecEAC3:        {"E-AC-3", MediaTypeAudio},
	CodecDTS:         {"DTS", MediaTypeAudio},
	CodecMP1:         {"MP1", MediaTypeAudio},
	CodecMP2:         {"MP2", MediaTypeAudio},
	CodecMP3:         {"MP3", MediaTypeAudio},
	CodecOpus:        {"Opus", MediaTypeAudio},
	CodecPCMS16BE:    {"PCM-S16BE", MediaTypeAudio},
	CodecPCMMulaw:    {"PCMU", MediaTypeAudio},
	CodecPCMAlaw:     {"PCMA", MediaTypeAudio},
	CodecSCTE35:      {"SCTE35", MediaTypeData},
	CodecSMPTE2038:   {"SMPTE-2038", MediaTypeData},
	CodecDVBSubtitle: {"DVBSub", MediaTypeSubtitle},
	CodecDVDSubtitle: {"DVDSub", MediaTypeSubtitle},
	CodecPrivateData: {"PrivateData", MediaTypeData},
}

func (c CodecID) String() string {
	if d, ok := codecDescs[c]; ok {
		return d.name
	}
	return "unknown"
}

func (c CodecID) MediaType() MediaType {
	return codecDescs[c].mediaType
}

// IsNALU reports whether the codec carries NAL units in Annex-B or AVCC form.
func (c CodecID) IsNALU() bool {
	return c == CodecH264 || c == CodecHEVC || c == CodecVVC
}

// CodecParameters describes an elementary stream. Fields are filled in as they
// are discovered.
type CodecParameters struct {
	CodecID       CodecID
	MediaType     MediaType
	CodecTag      uint32
	Profile       int
	Level         int
	Width         int
	Height        int
	SampleRate    int
	Channels      int
	ChannelLayout uint64
	FrameSize     int
	BitRate       int
	Extradata     []byte
}

func (p *CodecParameters) Clone() CodecParameters {
	c := *p
	c.Extradata = append([]byte(nil), p.Extradata...)
	return c
}

// Capability bundles the codec family specific operations used by demuxers,
// muxers and filters. One record is looked up per stream when its codec is known.
type Capability struct {
	Name string
	// GenerateAnnexBExtradata turns a decoder configuration record into
	// start-code prefixed parameter sets.
	GenerateAnnexBExtradata func(extradata []byte) ([]byte, error)
	IsIDR                   func(data []byte, annexB bool) bool
	ParseCodecParameters    func(par *CodecParameters, extradata []byte) error
	AVCCToAnnexB            func(data []byte, lengthSize int) ([]byte, error)
	// AnnexBToAVCC converts to 4-byte length prefixes and returns the parameter
	// sets found, which are left out of the output.
	AnnexBToAVCC func(data []byte) ([]byte, [][]byte, error)
	// GenerateExtradata builds a decoder configuration record from parameter sets.
	GenerateExtradata func(paramSets [][]byte) ([]byte, error)
}

var capabilities = map[CodecID]*Capability{}

// RegisterCapability installs the capability record for a codec. It is called
// from init functions of codec packages.
func RegisterCapability(id CodecID, c *Capability) {
	capabilities[id] = c
}

// LookupCapability returns the record for id, or nil.
func LookupCapability(id CodecID) *Capability {
	return capabilities[id]
}
