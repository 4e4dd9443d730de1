package rtsp

import (
	"github.com/pion/rtcp"

	"github.com/Eyevinn/avdemux/av"
)

// ntpTimeBase is the unit of the 32.32 fixed point NTP timestamps in sender
// reports.
var ntpTimeBase = av.Rational{Num: 1, Den: 1 << 32}

// sessionClock holds the NTP time of the first sender report of the session.
// All streams place their timestamps relative to it.
type sessionClock struct {
	ntpBase uint64
	valid   bool
}

// rtpClock maps the 32-bit RTP timestamps of one stream to a continuous
// timeline in the stream clock rate.
type rtpClock struct {
	session *sessionClock
	tb      av.Rational
	started bool
	first   int64
	last    int64
	hasSR   bool
	srNTP   uint64
	srRTP   int64
}

func newRTPClock(session *sessionClock, rate int) *rtpClock {
	return &rtpClock{session: session, tb: av.Rational{Num: 1, Den: int64(rate)}}
}

// extend unwraps ts next to the last value seen.
func (c *rtpClock) extend(ts uint32) int64 {
	if !c.started {
		c.started = true
		c.first = int64(ts)
		c.last = int64(ts)
		return c.last
	}
	c.last += int64(int32(ts - uint32(c.last)))
	return c.last
}

// SenderReport records the NTP to RTP mapping of sr.
func (c *rtpClock) SenderReport(sr *rtcp.SenderReport) {
	if !c.session.valid {
		c.session.valid = true
		c.session.ntpBase = sr.NTPTime
	}
	c.hasSR = true
	c.srNTP = sr.NTPTime
	c.srRTP = c.extend(sr.RTPTime)
}

// PTS converts an RTP timestamp to the stream time base. Before the first
// sender report the timeline starts at the first packet, afterwards it is
// anchored on the session's first report.
func (c *rtpClock) PTS(ts uint32) int64 {
	ext := c.extend(ts)
	if !c.hasSR {
		return ext - c.first
	}
	offset := av.Rescale(int64(c.srNTP-c.session.ntpBase), ntpTimeBase, c.tb)
	return offset + ext - c.srRTP
}
