package demuxutil

import (
	"github.com/Eyevinn/avdemux/av"
	"github.com/Eyevinn/avdemux/common"
)

// Unwrapper extends 33-bit PTS/DTS values into a continuous 64-bit range.
type Unwrapper struct {
	last  int64
	valid bool
}

// Unwrap places ts next to the previous value, taking the shorter way around
// the 33-bit wrap. NoPTS passes through.
func (u *Unwrapper) Unwrap(ts int64) int64 {
	if ts == av.NoPTS {
		return ts
	}
	ts %= common.PtsWrap
	if !u.valid {
		u.valid = true
		u.last = ts
		return ts
	}
	prev := u.last % common.PtsWrap
	if prev < 0 {
		prev += common.PtsWrap
	}
	u.last += common.SignedPTSDiff(ts, prev)
	return u.last
}

func (u *Unwrapper) Reset() {
	*u = Unwrapper{}
}
