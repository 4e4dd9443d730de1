package internal

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Eyevinn/avdemux/av"
)

type bitWriter struct {
	b []byte
	n int
}

func (w *bitWriter) write(v uint64, bits int) {
	for i := bits - 1; i >= 0; i-- {
		if w.n%8 == 0 {
			w.b = append(w.b, 0)
		}
		if v>>i&1 == 1 {
			w.b[len(w.b)-1] |= 1 << (7 - w.n%8)
		}
		w.n++
	}
}

// ancPacket writes one ANC data packet padded with ones to a byte boundary.
func (w *bitWriter) ancPacket(line, did, sdid uint64, words []uint64) {
	w.write(0, 6)
	w.write(0, 1)
	w.write(line, 11)
	w.write(0, 12)
	w.write(did, 10)
	w.write(sdid, 10)
	w.write(uint64(len(words))|0x100, 10)
	for _, word := range words {
		w.write(word, 10)
	}
	w.write(0x1aa, 10)
	for w.n%8 != 0 {
		w.write(1, 1)
	}
}

func TestParseSMPTE2038(t *testing.T) {
	var w bitWriter
	w.ancPacket(9, 0x161, 0x101, []uint64{0x296, 0x269})
	w.ancPacket(12, 0x241, 0x105, nil)
	data := append(w.b, 0xff, 0xff)

	got, err := ParseSMPTE2038(259, 3000, data)
	require.NoError(t, err)
	require.Equal(t, uint16(259), got.PID)
	require.Equal(t, int64(3000), got.PTS)
	require.Equal(t, []smpte2038Entry{
		{LineNr: 9, DID: 0x61, SDID: 0x01, DataCount: 2, Type: "EIA 708B Data mapping into VANC space"},
		{LineNr: 12, DID: 0x41, SDID: 0x05, DataCount: 0, Type: "AFD and Bar Data"},
	}, got.Entries)

	got, err = ParseSMPTE2038(259, 0, nil)
	require.NoError(t, err)
	require.Empty(t, got.Entries)

	w = bitWriter{}
	w.ancPacket(9, 0x1ff, 0x1ff, nil)
	got, err = ParseSMPTE2038(259, 0, w.b)
	require.NoError(t, err)
	require.Equal(t, "unknown SID/DID", got.Entries[0].Type)

	_, err = ParseSMPTE2038(259, 0, []byte{0x04, 0x00})
	require.ErrorIs(t, err, av.ErrDataInvalid)

	_, err = ParseSMPTE2038(259, 0, []byte{0x00, 0x00})
	require.ErrorIs(t, err, av.ErrDataInvalid)
}
