package mpegts

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func payloadOf(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i%250 + 1)
	}
	return b
}

func TestAppendPacketLength(t *testing.T) {
	pcrs := []int64{NoPCR, 0, 27000000*10 + 299}
	for _, pcr := range pcrs {
		for size := 0; size <= maxPayload+10; size++ {
			p := NewPacketHeader(0x100, byte(size))
			p.PayloadUnitStart = true
			p.Adaptation.PCR = pcr
			p.Adaptation.RandomAccess = size%7 == 0
			b, n := AppendPacket(nil, p, payloadOf(size))
			require.Len(t, b, PacketSize, "size %d pcr %d", size, pcr)
			require.LessOrEqual(t, n, size)

			got, err := ParsePacket(b)
			require.NoError(t, err)
			require.Equal(t, PacketSize, headerLength+got.AdaptationSize()+len(got.Payload))
			if n > 0 {
				require.Equal(t, payloadOf(size)[:n], got.Payload)
			} else {
				require.Empty(t, got.Payload)
			}
			require.Equal(t, pcr, got.Adaptation.PCR)
			require.Equal(t, p.CC&0x0f, got.CC)
			require.Equal(t, n > 0, got.HasPayload)
			if pcr == NoPCR && !p.Adaptation.RandomAccess && size >= maxPayload {
				require.False(t, got.HasAdaptation)
			}
		}
	}
}

func TestParsePacket(t *testing.T) {
	// PCR base 0x123456789 (33 bits), extension 0x1ab
	pkt := []byte{0x47, 0x41, 0x00, 0x35, 0x07, 0x50, 0x91, 0xa2, 0xb3, 0xc4, 0xff, 0xab}
	pkt = append(pkt, bytes.Repeat([]byte{0xaa}, PacketSize-len(pkt))...)
	p, err := ParsePacket(pkt)
	require.NoError(t, err)
	require.True(t, p.PayloadUnitStart)
	require.Equal(t, uint16(0x100), p.PID)
	require.Equal(t, byte(5), p.CC)
	require.True(t, p.Adaptation.RandomAccess)
	base := int64(0x91a2b3c4)<<1 | 1
	require.Equal(t, base*300+0x1ab, p.Adaptation.PCR)
	require.Len(t, p.Payload, PacketSize-4-8)

	bad := append([]byte(nil), pkt...)
	bad[4] = 184
	_, err = ParsePacket(bad)
	require.Error(t, err)

	bad[0] = 0x46
	_, err = ParsePacket(bad)
	require.Error(t, err)

	_, err = ParsePacket(pkt[:100])
	require.Error(t, err)
}

func streamOf(size, n, offset int) []byte {
	var b []byte
	b = append(b, bytes.Repeat([]byte{0x11}, offset)...)
	for i := 0; i < n; i++ {
		unit := make([]byte, size)
		pos := 0
		if size == M2TSPacketSize {
			pos = m2tsPrefix
		}
		unit[pos] = SyncByte
		b = append(b, unit...)
	}
	return b
}

func TestDetectPacketSize(t *testing.T) {
	cases := []struct {
		name   string
		size   int
		offset int
	}{
		{"ts", PacketSize, 0},
		{"ts with garbage", PacketSize, 17},
		{"m2ts", M2TSPacketSize, 0},
		{"m2ts with garbage", M2TSPacketSize, 9},
		{"fec", FECPacketSize, 0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			buf := streamOf(c.size, 20, c.offset)
			size, start, err := DetectPacketSize(buf)
			require.NoError(t, err)
			require.Equal(t, c.size, size)
			require.Equal(t, c.offset, start)
			require.Equal(t, 100, Probe(buf[start:]))
		})
	}
	_, _, err := DetectPacketSize(bytes.Repeat([]byte{0x12}, 4000))
	require.Error(t, err)
	require.Zero(t, Probe(bytes.Repeat([]byte{0x12}, 4000)))
}
