// Package common holds the timestamp arithmetic and JSON report types shared by
// the avdemux tools.
package common

import "github.com/Eyevinn/avdemux/av"

const (
	// PtsWrap is the period of 33-bit PES timestamps.
	PtsWrap   = 1 << 33
	PcrWrap   = PtsWrap * 300
	TimeScale = 90000
)

// SignedPTSDiff returns p2-p1 folded into [-PtsWrap/2, PtsWrap/2).
func SignedPTSDiff(p2, p1 int64) int64 {
	d := (p2 - p1) % PtsWrap
	return (d+PtsWrap+PtsWrap/2)%PtsWrap - PtsWrap/2
}

// UnsignedPTSDiff returns p2-p1 modulo PtsWrap.
func UnsignedPTSDiff(p2, p1 int64) int64 {
	return ((p2-p1)%PtsWrap + PtsWrap) % PtsWrap
}

// To90k rescales ts from tb to the 90 kHz clock. NoPTS is kept.
func To90k(ts int64, tb av.Rational) int64 {
	if !tb.Valid() {
		return ts
	}
	return av.Rescale(ts, tb, av.TimeBase90k)
}
