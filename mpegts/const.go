// Package mpegts demultiplexes and multiplexes MPEG-2 transport streams.
package mpegts

const (
	PacketSize     = 188
	M2TSPacketSize = 192
	FECPacketSize  = 204
	SyncByte       = 0x47
	headerLength   = 4
	maxPayload     = PacketSize - headerLength
	m2tsPrefix     = M2TSPacketSize - PacketSize
)

// Well known PIDs
const (
	PIDPAT  uint16 = 0x0000
	PIDCAT  uint16 = 0x0001
	PIDSDT  uint16 = 0x0011
	PIDNull uint16 = 0x1fff
)

// Table ids
const (
	TableIDPAT   = 0x00
	TableIDPMT   = 0x02
	TableIDSDT   = 0x42
	TableIDSCTE  = 0xfc
	tableIDStuff = 0xff
)

// Stream types of the PMT
const (
	StreamTypeMPEG1Video = 0x01
	StreamTypeMPEG2Video = 0x02
	StreamTypeMPEG1Audio = 0x03
	StreamTypeMPEG2Audio = 0x04
	StreamTypePrivate    = 0x06
	StreamTypeADTS       = 0x0f
	StreamTypeMPEG4Video = 0x10
	StreamTypeLATM       = 0x11
	StreamTypeMetadata   = 0x15
	StreamTypeH264       = 0x1b
	StreamTypeHEVC       = 0x24
	StreamTypeVVC        = 0x33
	StreamTypeAC3        = 0x81
	StreamTypeDTS        = 0x82
	StreamTypeSCTE35     = 0x86
	StreamTypeEAC3       = 0x87
)

// Descriptor tags
const (
	DescriptorRegistration = 0x05
	DescriptorLanguage     = 0x0a
	DescriptorService      = 0x48
	DescriptorTeletext     = 0x56
	DescriptorSubtitling   = 0x59
	DescriptorAC3          = 0x6a
	DescriptorEAC3         = 0x7a
	DescriptorDTS          = 0x7b
	DescriptorExtension    = 0x7f
)
