package mpegts

import (
	"encoding/binary"
	"fmt"

	"github.com/Eyevinn/avdemux/av"
)

const (
	sectionHeaderLength = 3
	// long form header after section_length up to and including last_section_number
	syntaxHeaderLength = 5
	crcLength          = 4
	maxSectionLength   = 1021
)

// SectionHeader is the common header of a long form PSI section.
type SectionHeader struct {
	TableID           byte
	SyntaxIndicator   bool
	Length            int
	TableIDExtension  uint16
	Version           byte
	CurrentNext       bool
	SectionNumber     byte
	LastSectionNumber byte
}

// Applies reports whether the section should update the tables: only current
// sections with section_number 0 are used.
func (h SectionHeader) Applies() bool {
	return h.CurrentNext && h.SectionNumber == 0
}

// SectionLength returns the total length of the section starting at b, or -1
// when fewer than 3 bytes are available.
func SectionLength(b []byte) int {
	if len(b) < sectionHeaderLength {
		return -1
	}
	return sectionHeaderLength + int(binary.BigEndian.Uint16(b[1:])&0x0fff)
}

// ParseSectionHeader parses the header of a complete section and returns the
// body between the header and the CRC. The CRC is not verified.
func ParseSectionHeader(b []byte) (SectionHeader, []byte, error) {
	var h SectionHeader
	if len(b) < sectionHeaderLength {
		return h, nil, fmt.Errorf("section header truncated: %w", av.ErrDataInvalid)
	}
	h.TableID = b[0]
	h.SyntaxIndicator = b[1]&0x80 != 0
	h.Length = int(binary.BigEndian.Uint16(b[1:]) & 0x0fff)
	end := sectionHeaderLength + h.Length
	if end > len(b) {
		return h, nil, fmt.Errorf("section length %d beyond %d bytes: %w", h.Length, len(b), av.ErrDataInvalid)
	}
	if !h.SyntaxIndicator {
		return h, b[sectionHeaderLength:end], nil
	}
	if h.Length < syntaxHeaderLength+crcLength {
		return h, nil, fmt.Errorf("section length %d too short: %w", h.Length, av.ErrDataInvalid)
	}
	h.TableIDExtension = binary.BigEndian.Uint16(b[3:])
	h.Version = b[5] >> 1 & 0x1f
	h.CurrentNext = b[5]&0x01 != 0
	h.SectionNumber = b[6]
	h.LastSectionNumber = b[7]
	return h, b[sectionHeaderLength+syntaxHeaderLength : end-crcLength], nil
}

// appendSection writes a long form section around body and appends its CRC.
func appendSection(dst []byte, h SectionHeader, body []byte) []byte {
	start := len(dst)
	length := syntaxHeaderLength + len(body) + crcLength
	dst = append(dst, h.TableID, 0xb0|byte(length>>8)&0x0f, byte(length))
	cn := byte(0)
	if h.CurrentNext {
		cn = 1
	}
	dst = binary.BigEndian.AppendUint16(dst, h.TableIDExtension)
	dst = append(dst, 0xc0|(h.Version&0x1f)<<1|cn, h.SectionNumber, h.LastSectionNumber)
	dst = append(dst, body...)
	return binary.BigEndian.AppendUint32(dst, CRC32(dst[start:]))
}

// Descriptor is a raw tag-length-value descriptor.
type Descriptor struct {
	Tag  byte
	Data []byte
}

func ParseDescriptors(b []byte) ([]Descriptor, error) {
	var ds []Descriptor
	for len(b) > 0 {
		if len(b) < 2 || 2+int(b[1]) > len(b) {
			return ds, fmt.Errorf("descriptor truncated: %w", av.ErrDataInvalid)
		}
		n := int(b[1])
		ds = append(ds, Descriptor{Tag: b[0], Data: append([]byte(nil), b[2:2+n]...)})
		b = b[2+n:]
	}
	return ds, nil
}

func appendDescriptors(dst []byte, ds []Descriptor) []byte {
	for _, d := range ds {
		dst = append(dst, d.Tag, byte(len(d.Data)))
		dst = append(dst, d.Data...)
	}
	return dst
}

func descriptorsLength(ds []Descriptor) int {
	n := 0
	for _, d := range ds {
		n += 2 + len(d.Data)
	}
	return n
}

// FindDescriptor returns the first descriptor with tag.
func FindDescriptor(ds []Descriptor, tag byte) (Descriptor, bool) {
	for _, d := range ds {
		if d.Tag == tag {
			return d, true
		}
	}
	return Descriptor{}, false
}

// Registration returns the format_identifier of a registration descriptor.
func Registration(ds []Descriptor) string {
	d, ok := FindDescriptor(ds, DescriptorRegistration)
	if !ok || len(d.Data) < 4 {
		return ""
	}
	return string(d.Data[:4])
}

// Language returns the first ISO 639 language code.
func Language(ds []Descriptor) string {
	d, ok := FindDescriptor(ds, DescriptorLanguage)
	if !ok || len(d.Data) < 3 {
		return ""
	}
	return string(d.Data[:3])
}

// RegistrationDescriptor builds a registration descriptor.
func RegistrationDescriptor(format string) Descriptor {
	return Descriptor{Tag: DescriptorRegistration, Data: []byte(format)}
}

type PATProgram struct {
	Number uint16
	// PID is the PMT PID, or the network PID for program 0.
	PID uint16
}

type PAT struct {
	TransportStreamID uint16
	Version           byte
	Programs          []PATProgram
}

func ParsePAT(h SectionHeader, body []byte) (*PAT, error) {
	if h.TableID != TableIDPAT {
		return nil, fmt.Errorf("table id %#x is not a PAT: %w", h.TableID, av.ErrDataInvalid)
	}
	pat := &PAT{TransportStreamID: h.TableIDExtension, Version: h.Version}
	for ; len(body) >= 4; body = body[4:] {
		pat.Programs = append(pat.Programs, PATProgram{
			Number: binary.BigEndian.Uint16(body),
			PID:    binary.BigEndian.Uint16(body[2:]) & 0x1fff,
		})
	}
	return pat, nil
}

func (pat *PAT) AppendSection(dst []byte) []byte {
	body := make([]byte, 0, 4*len(pat.Programs))
	for _, p := range pat.Programs {
		body = binary.BigEndian.AppendUint16(body, p.Number)
		body = binary.BigEndian.AppendUint16(body, 0xe000|p.PID)
	}
	return appendSection(dst, SectionHeader{
		TableID: TableIDPAT, TableIDExtension: pat.TransportStreamID,
		Version: pat.Version, CurrentNext: true,
	}, body)
}

type PMTStream struct {
	StreamType  byte
	PID         uint16
	Descriptors []Descriptor
}

type PMT struct {
	ProgramNumber uint16
	Version       byte
	PCRPID        uint16
	Descriptors   []Descriptor
	Streams       []PMTStream
}

func ParsePMT(h SectionHeader, body []byte) (*PMT, error) {
	if h.TableID != TableIDPMT {
		return nil, fmt.Errorf("table id %#x is not a PMT: %w", h.TableID, av.ErrDataInvalid)
	}
	if len(body) < 4 {
		return nil, fmt.Errorf("pmt truncated: %w", av.ErrDataInvalid)
	}
	pmt := &PMT{
		ProgramNumber: h.TableIDExtension,
		Version:       h.Version,
		PCRPID:        binary.BigEndian.Uint16(body) & 0x1fff,
	}
	infoLen := int(binary.BigEndian.Uint16(body[2:]) & 0x0fff)
	body = body[4:]
	if infoLen > len(body) {
		return nil, fmt.Errorf("pmt program_info_length %d: %w", infoLen, av.ErrDataInvalid)
	}
	var err error
	if pmt.Descriptors, err = ParseDescriptors(body[:infoLen]); err != nil {
		return nil, err
	}
	body = body[infoLen:]
	for len(body) >= 5 {
		es := PMTStream{
			StreamType: body[0],
			PID:        binary.BigEndian.Uint16(body[1:]) & 0x1fff,
		}
		esLen := int(binary.BigEndian.Uint16(body[3:]) & 0x0fff)
		body = body[5:]
		if esLen > len(body) {
			return nil, fmt.Errorf("pmt ES_info_length %d on pid %d: %w", esLen, es.PID, av.ErrDataInvalid)
		}
		if es.Descriptors, err = ParseDescriptors(body[:esLen]); err != nil {
			return nil, err
		}
		body = body[esLen:]
		pmt.Streams = append(pmt.Streams, es)
	}
	return pmt, nil
}

func (pmt *PMT) AppendSection(dst []byte) []byte {
	var body []byte
	body = binary.BigEndian.AppendUint16(body, 0xe000|pmt.PCRPID)
	body = binary.BigEndian.AppendUint16(body, 0xf000|uint16(descriptorsLength(pmt.Descriptors)))
	body = appendDescriptors(body, pmt.Descriptors)
	for _, es := range pmt.Streams {
		body = append(body, es.StreamType)
		body = binary.BigEndian.AppendUint16(body, 0xe000|es.PID)
		body = binary.BigEndian.AppendUint16(body, 0xf000|uint16(descriptorsLength(es.Descriptors)))
		body = appendDescriptors(body, es.Descriptors)
	}
	return appendSection(dst, SectionHeader{
		TableID: TableIDPMT, TableIDExtension: pmt.ProgramNumber,
		Version: pmt.Version, CurrentNext: true,
	}, body)
}

type Service struct {
	ServiceID    uint16
	ServiceType  byte
	ProviderName string
	ServiceName  string
	Descriptors  []Descriptor
}

type SDT struct {
	TransportStreamID uint16
	OriginalNetworkID uint16
	Version           byte
	Services          []Service
}

func ParseSDT(h SectionHeader, body []byte) (*SDT, error) {
	if h.TableID != TableIDSDT {
		return nil, fmt.Errorf("table id %#x is not an SDT: %w", h.TableID, av.ErrDataInvalid)
	}
	if len(body) < 3 {
		return nil, fmt.Errorf("sdt truncated: %w", av.ErrDataInvalid)
	}
	sdt := &SDT{
		TransportStreamID: h.TableIDExtension,
		Version:           h.Version,
		OriginalNetworkID: binary.BigEndian.Uint16(body),
	}
	body = body[3:]
	for len(body) >= 5 {
		s := Service{ServiceID: binary.BigEndian.Uint16(body)}
		n := int(binary.BigEndian.Uint16(body[3:]) & 0x0fff)
		body = body[5:]
		if n > len(body) {
			return nil, fmt.Errorf("sdt descriptors_loop_length %d: %w", n, av.ErrDataInvalid)
		}
		var err error
		if s.Descriptors, err = ParseDescriptors(body[:n]); err != nil {
			return nil, err
		}
		body = body[n:]
		if d, ok := FindDescriptor(s.Descriptors, DescriptorService); ok {
			s.ServiceType, s.ProviderName, s.ServiceName = parseServiceDescriptor(d.Data)
		}
		sdt.Services = append(sdt.Services, s)
	}
	return sdt, nil
}

func parseServiceDescriptor(b []byte) (serviceType byte, provider, name string) {
	if len(b) < 2 {
		return 0, "", ""
	}
	serviceType = b[0]
	pl := int(b[1])
	if 2+pl > len(b) {
		return serviceType, "", ""
	}
	provider = string(b[2 : 2+pl])
	b = b[2+pl:]
	if len(b) < 1 || 1+int(b[0]) > len(b) {
		return serviceType, provider, ""
	}
	return serviceType, provider, string(b[1 : 1+int(b[0])])
}

// ServiceDescriptor builds a DVB service descriptor.
func ServiceDescriptor(serviceType byte, provider, name string) Descriptor {
	d := []byte{serviceType, byte(len(provider))}
	d = append(d, provider...)
	d = append(d, byte(len(name)))
	d = append(d, name...)
	return Descriptor{Tag: DescriptorService, Data: d}
}

func (sdt *SDT) AppendSection(dst []byte) []byte {
	var body []byte
	body = binary.BigEndian.AppendUint16(body, sdt.OriginalNetworkID)
	body = append(body, 0xff)
	for _, s := range sdt.Services {
		ds := s.Descriptors
		if _, ok := FindDescriptor(ds, DescriptorService); !ok && (s.ServiceName != "" || s.ProviderName != "") {
			ds = append([]Descriptor{ServiceDescriptor(s.ServiceType, s.ProviderName, s.ServiceName)}, ds...)
		}
		body = binary.BigEndian.AppendUint16(body, s.ServiceID)
		body = append(body, 0xfc)
		// running_status 4 (running), free_CA_mode 0
		body = binary.BigEndian.AppendUint16(body, 0x8000|uint16(descriptorsLength(ds)))
		body = appendDescriptors(body, ds)
	}
	return appendSection(dst, SectionHeader{
		TableID: TableIDSDT, TableIDExtension: sdt.TransportStreamID,
		Version: sdt.Version, CurrentNext: true,
	}, body)
}
