package mpegts

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCRC32(t *testing.T) {
	pat := &PAT{TransportStreamID: 1, Programs: []PATProgram{{Number: 1, PID: 0x1000}}}
	section := pat.AppendSection(nil)
	require.Equal(t, []byte{
		0x00, 0xb0, 0x0d, 0x00, 0x01, 0xc1, 0x00, 0x00,
		0x00, 0x01, 0xf0, 0x00, 0x2a, 0xb1, 0x04, 0xb2,
	}, section)
	// the MPEG-2 CRC over a section including its CRC is zero
	require.Zero(t, CRC32(section))
}

func TestPSIRoundTrip(t *testing.T) {
	pat := &PAT{TransportStreamID: 7, Version: 3, Programs: []PATProgram{{0, 0x10}, {1, 0x1000}, {2, 0x1001}}}
	h, body, err := ParseSectionHeader(pat.AppendSection(nil))
	require.NoError(t, err)
	require.True(t, h.Applies())
	gotPAT, err := ParsePAT(h, body)
	require.NoError(t, err)
	require.Equal(t, pat, gotPAT)

	pmt := &PMT{
		ProgramNumber: 1,
		Version:       5,
		PCRPID:        0x100,
		Streams: []PMTStream{
			{StreamType: StreamTypeH264, PID: 0x100},
			{StreamType: StreamTypePrivate, PID: 0x101, Descriptors: []Descriptor{
				RegistrationDescriptor("Opus"),
				{Tag: DescriptorLanguage, Data: []byte("swe\x00")},
			}},
		},
	}
	h, body, err = ParseSectionHeader(pmt.AppendSection(nil))
	require.NoError(t, err)
	gotPMT, err := ParsePMT(h, body)
	require.NoError(t, err)
	require.Equal(t, pmt, gotPMT)
	require.Equal(t, "Opus", Registration(gotPMT.Streams[1].Descriptors))
	require.Equal(t, "swe", Language(gotPMT.Streams[1].Descriptors))

	sdt := &SDT{TransportStreamID: 7, OriginalNetworkID: originalNetworkID, Version: 1,
		Services: []Service{{ServiceID: 1, ServiceType: serviceTypeTV, ProviderName: "prov", ServiceName: "name"}}}
	h, body, err = ParseSectionHeader(sdt.AppendSection(nil))
	require.NoError(t, err)
	gotSDT, err := ParseSDT(h, body)
	require.NoError(t, err)
	require.Len(t, gotSDT.Services, 1)
	s := gotSDT.Services[0]
	require.Equal(t, "prov", s.ProviderName)
	require.Equal(t, "name", s.ServiceName)
	require.Equal(t, byte(serviceTypeTV), s.ServiceType)
}

func TestSectionErrors(t *testing.T) {
	cases := []struct {
		name string
		data []byte
	}{
		{"short", []byte{0x00, 0xb0}},
		{"length beyond data", []byte{0x00, 0xb0, 0x20, 0, 1, 0xc1, 0, 0}},
		{"too short for crc", []byte{0x00, 0xb0, 0x05, 0, 1, 0xc1, 0, 0}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, _, err := ParseSectionHeader(c.data)
			require.Error(t, err)
		})
	}

	pmt := (&PMT{ProgramNumber: 1, Streams: []PMTStream{{StreamType: 0x1b, PID: 256,
		Descriptors: []Descriptor{{Tag: 5, Data: []byte("HEVC")}}}}}).AppendSection(nil)
	// corrupt the ES_info_length so it points past the section
	pmt[len(pmt)-4-6-2] = 0xf0
	pmt[len(pmt)-4-6-1] = 0x40
	h, body, err := ParseSectionHeader(pmt)
	require.NoError(t, err)
	_, err = ParsePMT(h, body)
	require.Error(t, err)
}

func TestApplyPMTReplacesStreamTypes(t *testing.T) {
	c := NewParseContext()
	patHeader := SectionHeader{TableID: TableIDPAT, CurrentNext: true}
	require.True(t, c.ApplyPAT(patHeader, &PAT{Programs: []PATProgram{{Number: 1, PID: 0x1000}}}))
	require.True(t, c.HasPAT)
	require.False(t, c.HasPMT)
	require.True(t, c.IsPMTPID(0x1000))

	h := SectionHeader{TableID: TableIDPMT, TableIDExtension: 1, CurrentNext: true}
	v0 := &PMT{ProgramNumber: 1, PCRPID: 256, Streams: []PMTStream{
		{StreamType: StreamTypeH264, PID: 256},
		{StreamType: StreamTypeADTS, PID: 257},
	}}
	require.True(t, c.ApplyPMT(h, v0))
	require.True(t, c.HasPMT)
	require.True(t, c.IsPCRPID(256))
	require.Equal(t, map[uint16]byte{256: StreamTypeH264, 257: StreamTypeADTS}, c.StreamTypes)

	// same version is ignored
	require.False(t, c.ApplyPMT(h, &PMT{ProgramNumber: 1, Streams: []PMTStream{{StreamType: 0x24, PID: 300}}}))

	// sections that are not current or not section 0 are ignored
	next := h
	next.Version = 1
	next.CurrentNext = false
	require.False(t, c.ApplyPMT(next, &PMT{ProgramNumber: 1, Version: 1}))
	second := h
	second.Version = 1
	second.SectionNumber = 1
	require.False(t, c.ApplyPMT(second, &PMT{ProgramNumber: 1, Version: 1}))

	h.Version = 1
	v1 := &PMT{ProgramNumber: 1, Version: 1, PCRPID: 258, Streams: []PMTStream{{StreamType: StreamTypeHEVC, PID: 258}}}
	require.True(t, c.ApplyPMT(h, v1))
	require.Equal(t, map[uint16]byte{258: StreamTypeHEVC}, c.StreamTypes)
	require.False(t, c.IsPCRPID(256))
	require.True(t, c.IsPCRPID(258))
	require.Len(t, c.Descriptors, 1)
}

func TestApplyPATDropsPrograms(t *testing.T) {
	c := NewParseContext()
	h := SectionHeader{TableID: TableIDPAT, CurrentNext: true}
	c.ApplyPAT(h, &PAT{Programs: []PATProgram{{1, 0x1000}, {2, 0x1001}}})
	c.ApplyPMT(SectionHeader{TableID: TableIDPMT, CurrentNext: true},
		&PMT{ProgramNumber: 1, PCRPID: 256, Streams: []PMTStream{{StreamType: StreamTypeH264, PID: 256}}})
	c.ApplyPMT(SectionHeader{TableID: TableIDPMT, CurrentNext: true},
		&PMT{ProgramNumber: 2, PCRPID: 512, Streams: []PMTStream{{StreamType: StreamTypeADTS, PID: 512}}})
	require.True(t, c.HasPMT)

	h.Version = 1
	require.True(t, c.ApplyPAT(h, &PAT{Version: 1, Programs: []PATProgram{{1, 0x1000}}}))
	require.Equal(t, map[uint16]byte{256: StreamTypeH264}, c.StreamTypes)
	require.False(t, c.IsPMTPID(0x1001))
	require.True(t, c.HasPMT)
}

func TestCodecMapping(t *testing.T) {
	cases := []struct {
		streamType byte
		ds         []Descriptor
		want       string
	}{
		{StreamTypeH264, nil, "AVC"},
		{StreamTypeHEVC, nil, "HEVC"},
		{StreamTypeADTS, nil, "AAC"},
		{StreamTypeLATM, nil, "AAC-LATM"},
		{StreamTypeMPEG1Audio, nil, "MP2"},
		{StreamTypeAC3, nil, "AC-3"},
		{StreamTypeSCTE35, nil, "SCTE35"},
		{StreamTypePrivate, []Descriptor{RegistrationDescriptor("Opus")}, "Opus"},
		{StreamTypePrivate, []Descriptor{RegistrationDescriptor("VANC")}, "SMPTE-2038"},
		{StreamTypePrivate, []Descriptor{{Tag: DescriptorAC3}}, "AC-3"},
		{StreamTypePrivate, []Descriptor{{Tag: DescriptorEAC3}}, "E-AC-3"},
		{StreamTypePrivate, []Descriptor{{Tag: DescriptorExtension, Data: []byte{0x80, 2}}}, "Opus"},
		{StreamTypePrivate, []Descriptor{{Tag: DescriptorSubtitling}}, "DVBSub"},
		{StreamTypePrivate, nil, "PrivateData"},
	}
	for _, c := range cases {
		t.Run(c.want, func(t *testing.T) {
			require.Equal(t, c.want, CodecForStream(c.streamType, c.ds).String())
		})
	}
}
