package av

import (
	"bytes"
	"fmt"
)

// Stream is one elementary stream of a container.
type Stream struct {
	Index     int
	ID        int
	TimeBase  Rational
	Codecpar  CodecParameters
	StartTime int64
	Duration  int64
	Language  string
	// Caps is selected once when the codec id becomes known.
	Caps *Capability
	// Priv holds the per-format private context of the owning container.
	Priv any
}

func NewStream(index, id int, tb Rational) *Stream {
	return &Stream{Index: index, ID: id, TimeBase: tb, StartTime: NoPTS, Duration: NoPTS}
}

// SetCodec sets the codec id and media type and selects the capability record.
func (s *Stream) SetCodec(id CodecID) {
	s.Codecpar.CodecID = id
	s.Codecpar.MediaType = id.MediaType()
	s.Caps = LookupCapability(id)
}

// SetExtradata stores extradata and reports whether it differed from the stored
// copy. The extradata is kept even when the codec parameters cannot be parsed
// from it, in which case err says why.
func (s *Stream) SetExtradata(data []byte) (changed bool, err error) {
	if len(data) == 0 || bytes.Equal(s.Codecpar.Extradata, data) {
		return false, nil
	}
	s.Codecpar.Extradata = append([]byte(nil), data...)
	if s.Caps != nil && s.Caps.ParseCodecParameters != nil {
		if err := s.Caps.ParseCodecParameters(&s.Codecpar, s.Codecpar.Extradata); err != nil {
			return true, fmt.Errorf("parsing %s extradata: %w", s.Codecpar.CodecID, err)
		}
	}
	return true, nil
}
