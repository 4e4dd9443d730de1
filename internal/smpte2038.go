package internal

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/Eyevinn/mp4ff/bits"
	"github.com/sirupsen/logrus"

	"github.com/Eyevinn/avdemux/av"
)

// SMPTE291Identifier is a [did, sdid] pair registered by SMPTE
// [dids]: https://smpte-ra.org/smpte-ancillary-data-smpte-st-291
type SMPTE291Identifier struct {
	did, sdid byte
}

var SMPTE291Map = map[SMPTE291Identifier]string{
	{0x41, 0x7}: "ANSI/SCTE 104 messages",
	{0x41, 0x5}: "AFD and Bar Data",
	{0x41, 0x8}: "DVB/SCTE VBI data",
	{0x61, 0x1}: "EIA 708B Data mapping into VANC space",
	{0x61, 0x2}: "EIA 608 Data mapping into VANC space",
}

type smpte2038Data struct {
	PID     uint16           `json:"pid"`
	PTS     int64            `json:"pts"`
	Entries []smpte2038Entry `json:"entries"`
}

type smpte2038Entry struct {
	LineNr    uint16 `json:"lineNr"`
	HorOffset uint16 `json:"horOffset"`
	DID       byte   `json:"did"`
	SDID      byte   `json:"sdid"`
	DataCount byte   `json:"dataCount"`
	Type      string `json:"type"`
}

// smpte2038Stuffing in the leading zero bits ends the ANC packets of a PES.
const smpte2038Stuffing = 0x3f

// readANCPacket reads one ANC data packet and the padding up to the next byte
// boundary. done is set at stuffing or end of data.
func readANCPacket(r *bits.Reader) (e smpte2038Entry, done bool, err error) {
	lead := r.Read(6)
	if errors.Is(r.AccError(), io.EOF) || lead == smpte2038Stuffing {
		return e, true, nil
	}
	if lead != 0 {
		return e, false, fmt.Errorf("ANC packet leading bits %#x: %w", lead, av.ErrDataInvalid)
	}
	r.Read(1) // c_not_y_channel_flag
	e.LineNr = uint16(r.Read(11))
	e.HorOffset = uint16(r.Read(12))
	// DID, SDID and data_count are 10-bit words with two parity bits
	e.DID = byte(r.Read(10))
	e.SDID = byte(r.Read(10))
	e.DataCount = byte(r.Read(10))
	for i := 0; i < int(e.DataCount); i++ {
		r.Read(10)
	}
	r.Read(10) // checksum_word
	if n := r.NrBitsReadInCurrentByte(); n != 8 {
		r.Read(8 - n)
	}
	if r.AccError() != nil {
		return e, false, fmt.Errorf("truncated ANC packet at line %d: %w", e.LineNr, av.ErrDataInvalid)
	}
	e.Type = SMPTE291Map[SMPTE291Identifier{e.DID, e.SDID}]
	if e.Type == "" {
		e.Type = "unknown SID/DID"
	}
	return e, false, nil
}

// ParseSMPTE2038 decodes the ANC data packets of one SMPTE ST 2038 PES
// payload.
func ParseSMPTE2038(pid uint16, pts int64, data []byte) (*smpte2038Data, error) {
	r := bits.NewReader(bytes.NewReader(data))
	out := &smpte2038Data{PID: pid, PTS: pts, Entries: []smpte2038Entry{}}
	for {
		e, done, err := readANCPacket(r)
		if err != nil {
			return nil, fmt.Errorf("SMPTE-2038 on pid %d: %w", pid, err)
		}
		if done {
			break
		}
		out.Entries = append(out.Entries, e)
	}
	logrus.WithFields(logrus.Fields{"pid": pid, "entries": len(out.Entries)}).Debug("SMPTE-2038 PES parsed")
	return out, nil
}
