package mpegps

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/Eyevinn/avdemux/bytesio"
	"github.com/Eyevinn/avdemux/pes"
)

// NoSCR marks a unit read before any pack header.
const NoSCR = -1

// syncWindow is how many bytes are inspected per step of the start code search.
const syncWindow = 4096

// Unit is a program stream map or PES packet found by the Scanner.
type Unit struct {
	// StreamID is the byte following the start code prefix.
	StreamID byte
	Pos      int64
	// Data is the whole unit including start code and length field.
	Data []byte
	// SCR is the system clock reference of the last pack header, in 27 MHz
	// units, or NoSCR.
	SCR int64
	// Truncated is set when the source ended inside the unit.
	Truncated bool
}

// Scanner walks the start codes of a program stream. Pack headers, system
// headers, padding and private stream 2 are consumed internally.
type Scanner struct {
	r   bytesio.Reader
	log logrus.FieldLogger
	scr int64
	// MPEG1 is set once an MPEG-1 pack header has been seen.
	MPEG1 bool
	// Packs counts the pack headers passed.
	Packs int
}

func NewScanner(r bytesio.Reader, log logrus.FieldLogger) *Scanner {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Scanner{r: r, log: log, scr: NoSCR}
}

// Reset forgets the last SCR, e.g. after a seek.
func (s *Scanner) Reset() {
	s.scr = NoSCR
}

// Sync advances to the next 00 00 01 prefix. It returns io.EOF when fewer than
// four bytes remain.
func (s *Scanner) Sync() error {
	for {
		b, err := s.r.Peek(syncWindow)
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		if len(b) < pes.StartCodeLength {
			return io.EOF
		}
		for i := 0; i+pes.StartCodeLength <= len(b); i++ {
			if b[i] == 0 && b[i+1] == 0 && b[i+2] == 1 {
				return s.r.Skip(int64(i))
			}
		}
		// the last bytes may hold the beginning of a prefix
		if err := s.r.Skip(int64(len(b) - prefixLength)); err != nil {
			return err
		}
	}
}

// Next returns the next stream map or PES packet.
func (s *Scanner) Next() (Unit, error) {
	for {
		if err := s.Sync(); err != nil {
			return Unit{}, err
		}
		pos := s.r.Pos()
		hdr, err := s.r.Peek(pes.FixedHeaderLength)
		if err != nil && !errors.Is(err, io.EOF) {
			return Unit{}, err
		}
		code := hdr[3]
		switch {
		case code == StartCodePack:
			if err := s.skipPack(); err != nil {
				return Unit{}, err
			}
		case code == StartCodeEnd:
			if err := s.r.Skip(pes.StartCodeLength); err != nil {
				return Unit{}, err
			}
		case code < StartCodeEnd:
			// elementary stream start code outside a PES
			if err := s.r.Skip(prefixLength); err != nil {
				return Unit{}, err
			}
		case len(hdr) < pes.FixedHeaderLength:
			return Unit{}, io.EOF
		default:
			n := pes.FixedHeaderLength + int(binary.BigEndian.Uint16(hdr[4:]))
			if !s.isUnit(code) {
				if err := s.r.Skip(int64(n)); err != nil {
					return Unit{}, err
				}
				continue
			}
			if n == pes.FixedHeaderLength {
				s.log.WithFields(logrus.Fields{"pos": pos, "streamID": fmt.Sprintf("%#02x", code)}).Warn("empty PES")
				if err := s.r.Skip(pes.StartCodeLength); err != nil {
					return Unit{}, err
				}
				continue
			}
			return s.readUnit(code, pos, n)
		}
	}
}

// isUnit reports whether a length-prefixed start code is returned by Next.
func (s *Scanner) isUnit(code byte) bool {
	switch {
	case code == pes.StreamIDProgramStreamMap, code == pes.StreamIDPrivate1, code == pes.StreamIDExtended:
		return true
	case code >= pes.StreamIDAudioFirst && code <= pes.StreamIDVideoLast:
		return true
	}
	return false
}

func (s *Scanner) readUnit(code byte, pos int64, n int) (Unit, error) {
	u := Unit{StreamID: code, Pos: pos, SCR: s.scr}
	b, err := s.r.Peek(n)
	if err != nil {
		if !errors.Is(err, io.EOF) {
			return u, err
		}
		u.Truncated = true
	}
	u.Data = append([]byte(nil), b...)
	if err := s.r.Skip(int64(len(b))); err != nil && !errors.Is(err, io.EOF) {
		return u, err
	}
	return u, nil
}

// skipPack consumes a pack header, recording its SCR, and a system header
// directly following it.
func (s *Scanner) skipPack() error {
	b, err := s.r.Peek(packHeaderLength)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	if len(b) < mpeg1PackHeaderLength {
		return s.r.Skip(int64(len(b)))
	}
	n := pes.StartCodeLength
	switch {
	case b[4]&0xc0 == 0x40 && len(b) == packHeaderLength:
		s.scr = parseSCR(b[4:10])
		n = packHeaderLength + int(b[13]&0x07)
	case b[4]&0xf0 == 0x20:
		s.scr = pes.DecodeTimestamp(b[4:9]) * 300
		s.MPEG1 = true
		n = mpeg1PackHeaderLength
	default:
		s.log.WithField("pos", s.r.Pos()).Warn("invalid pack header")
	}
	s.Packs++
	if err := s.r.Skip(int64(n)); err != nil {
		return err
	}
	sys, err := s.r.Peek(pes.FixedHeaderLength)
	if err != nil || !pes.IsStartCode(sys) || sys[3] != StartCodeSystemHeader {
		return nil
	}
	return s.r.Skip(int64(pes.FixedHeaderLength + int(binary.BigEndian.Uint16(sys[4:]))))
}

// parseSCR decodes the 6-byte MPEG-2 system_clock_reference field into 27 MHz
// units.
func parseSCR(b []byte) int64 {
	v := uint64(b[0])<<40 | uint64(b[1])<<32 | uint64(binary.BigEndian.Uint32(b[2:]))
	base := (v>>43&0x07)<<30 | (v>>27&0x7fff)<<15 | v>>11&0x7fff
	ext := v >> 1 & 0x1ff
	return int64(base*300 + ext)
}

// AppendPackHeader appends an MPEG-2 pack header with the given SCR in 27 MHz
// units and program_mux_rate in units of 50 bytes per second.
func AppendPackHeader(dst []byte, scr int64, muxRate int) []byte {
	base, ext := uint64(scr/300), uint64(scr%300)
	v := uint64(1)<<46 | (base>>30&0x07)<<43 | 1<<42 | (base>>15&0x7fff)<<27 | 1<<26 |
		(base&0x7fff)<<11 | 1<<10 | ext<<1 | 1
	dst = append(dst, 0x00, 0x00, 0x01, StartCodePack)
	dst = append(dst, byte(v>>40), byte(v>>32), byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
	mr := uint32(muxRate)<<2 | 0x03
	dst = append(dst, byte(mr>>16), byte(mr>>8), byte(mr))
	// no stuffing
	return append(dst, 0xf8)
}

// Probe scores how likely buf is the start of a program stream, 0..100.
func Probe(buf []byte) int {
	packs, pesUnits, invalid := 0, 0, 0
	for i := 0; i+pes.FixedHeaderLength <= len(buf); {
		if !pes.IsStartCode(buf[i:]) {
			i++
			continue
		}
		code := buf[i+3]
		switch {
		case code == StartCodePack:
			packs++
			i += mpeg1PackHeaderLength
		case code == StartCodeSystemHeader, code == pes.StreamIDProgramStreamMap,
			code == pes.StreamIDPadding, code == pes.StreamIDPrivate2:
			i += pes.FixedHeaderLength + int(binary.BigEndian.Uint16(buf[i+4:]))
		case code >= pes.StreamIDAudioFirst && code <= pes.StreamIDVideoLast, code == pes.StreamIDPrivate1:
			if _, err := pes.ParseHeader(buf[i:]); err != nil {
				invalid++
			} else {
				pesUnits++
			}
			i += pes.FixedHeaderLength + int(binary.BigEndian.Uint16(buf[i+4:]))
		default:
			i += prefixLength
		}
	}
	switch {
	case packs == 0 && pesUnits < 2, invalid > pesUnits:
		return 0
	case packs > 0 && pesUnits > 2:
		return 100
	case packs > 0 || pesUnits > 2:
		return 50
	}
	return 25
}
