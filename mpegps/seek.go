package mpegps

import (
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/Eyevinn/avdemux/av"
	"github.com/Eyevinn/avdemux/internal/demuxutil"
	"github.com/Eyevinn/avdemux/pes"
)

// SeekByte repositions the source to pos, clamped to the stream bounds, and
// drops all in-flight state. Unless SeekAny is given, the position is moved
// forward to the next pack header or parseable PES.
func (d *Demuxer) SeekByte(pos int64, flags av.SeekFlag) error {
	if pos < d.start {
		pos = d.start
	}
	size, err := d.r.Size()
	if err != nil {
		return fmt.Errorf("seek: %w", err)
	}
	if size >= 0 && pos > size {
		pos = size
	}
	if err := d.r.Seek(pos); err != nil {
		return fmt.Errorf("seek to %d: %w", pos, err)
	}
	d.reset()
	if flags&av.SeekAny != 0 {
		return nil
	}
	if err := d.resync(); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("resync after seek to %d: %w", pos, err)
	}
	return nil
}

// resync advances to the next start code that begins a pack header or a PES
// whose header parses.
func (d *Demuxer) resync() error {
	for {
		if err := d.scan.Sync(); err != nil {
			return err
		}
		b, err := d.r.Peek(pes.FixedHeaderLength + 3 + 10)
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		if len(b) >= pes.StartCodeLength {
			code := b[3]
			switch {
			case code == StartCodePack, code == StartCodeSystemHeader, code == pes.StreamIDProgramStreamMap:
				return nil
			case d.scan.isUnit(code):
				if _, err := pes.ParseHeader(b); err == nil {
					return nil
				}
			}
		}
		if err := d.r.Skip(1); err != nil {
			return err
		}
	}
}

// SeekTimestamp positions the demuxer on the last keyframe of stream
// streamIndex at or before ts, in the stream time base. A negative streamIndex
// selects the first video stream. The keyframe index is used when it has an
// entry within demuxutil.SeekTolerance of ts, otherwise the byte range is
// bisected.
func (d *Demuxer) SeekTimestamp(streamIndex int, ts int64, flags av.SeekFlag) error {
	if streamIndex < 0 {
		streamIndex = d.defaultStream()
	}
	if streamIndex < 0 || streamIndex >= len(d.streams) {
		return fmt.Errorf("seek on stream %d of %d: %w", streamIndex, len(d.streams), av.ErrFormatNotSupport)
	}
	s := d.streams[streamIndex].Priv.(*psStream)
	if e, ok := s.index.Search(ts, demuxutil.SeekTolerance); ok {
		d.log.WithFields(logrus.Fields{"stream": streamIndex, "pts": e.PTS, "pos": e.Pos}).Debug("seek from index")
		return d.SeekByte(e.Pos, flags|av.SeekAny)
	}
	if !d.r.Seekable() {
		return fmt.Errorf("timestamp seek without index entry: %w", av.ErrFormatNotSupport)
	}
	pos, err := d.bisect(s, ts)
	if err != nil {
		return err
	}
	d.log.WithFields(logrus.Fields{"stream": streamIndex, "pos": pos}).Debug("seek from bisection")
	return d.SeekByte(pos, flags|av.SeekAny)
}

func (d *Demuxer) defaultStream() int {
	for _, st := range d.streams {
		if st.Codecpar.MediaType == av.MediaTypeVideo {
			return st.Index
		}
	}
	if len(d.streams) > 0 {
		return 0
	}
	return -1
}

// bisect narrows [start, size) to the range holding the last keyframe of s at
// or before ts and returns its position.
func (d *Demuxer) bisect(s *psStream, ts int64) (int64, error) {
	size, err := d.r.Size()
	if err != nil {
		return 0, err
	}
	lo, hi := d.start, size
	best := d.start
	for hi-lo > int64(d.opts.ProbeSize) {
		mid := lo + (hi-lo)/2
		if err := d.SeekByte(mid, 0); err != nil {
			return 0, err
		}
		kts, kpos, err := d.nextKeyframe(s, hi)
		if err != nil {
			return 0, err
		}
		if kpos < 0 || kts > ts {
			hi = mid
			continue
		}
		best, lo = kpos, kpos+1
	}
	if err := d.SeekByte(lo, 0); err != nil {
		return 0, err
	}
	for {
		kts, kpos, err := d.nextKeyframe(s, hi)
		if err != nil {
			return 0, err
		}
		if kpos < 0 || kts > ts {
			return best, nil
		}
		best = kpos
	}
}

// nextKeyframe reads forward to the first keyframe of s starting before limit.
// It returns pos -1 when there is none.
func (d *Demuxer) nextKeyframe(s *psStream, limit int64) (int64, int64, error) {
	for {
		pkt, err := d.ReadPacket()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return 0, -1, nil
			}
			return 0, -1, err
		}
		if pkt.Pos >= limit {
			return 0, -1, nil
		}
		if pkt.StreamIndex == s.st.Index && pkt.IsKey() && pkt.PTS != av.NoPTS && pkt.Pos >= 0 {
			return pkt.PTS, pkt.Pos, nil
		}
		if d.opts.Pool != nil {
			d.opts.Pool.Release(pkt)
		}
	}
}
