// Package demuxutil holds the pieces shared by the TS and PS demuxers: the
// keyframe index, timestamp unwrapping, extradata capture and the interval
// buffer of ready packets.
package demuxutil

import (
	"golang.org/x/exp/slices"
)

// SeekTolerance is how far before a seek target an index entry may lie and
// still be used directly, in 90 kHz ticks.
const SeekTolerance = 10 * 90000

type IndexEntry struct {
	PTS int64
	Pos int64
}

// KeyframeIndex is a per stream list of keyframe positions sorted by PTS.
type KeyframeIndex struct {
	entries []IndexEntry
	// MinDistance drops entries closer than this to their predecessor.
	MinDistance int64
}

func cmpEntry(e IndexEntry, pts int64) int {
	switch {
	case e.PTS < pts:
		return -1
	case e.PTS > pts:
		return 1
	}
	return 0
}

// Add records a keyframe. Entries already present are ignored, so a region
// read twice after a seek does not grow the index.
func (x *KeyframeIndex) Add(pts, pos int64) {
	if pos < 0 {
		return
	}
	i, found := slices.BinarySearchFunc(x.entries, pts, cmpEntry)
	if found {
		return
	}
	if x.MinDistance > 0 && i > 0 && pts-x.entries[i-1].PTS < x.MinDistance {
		return
	}
	x.entries = slices.Insert(x.entries, i, IndexEntry{PTS: pts, Pos: pos})
}

// Search returns the last entry with PTS <= ts, provided it lies within
// tolerance of ts.
func (x *KeyframeIndex) Search(ts, tolerance int64) (IndexEntry, bool) {
	i, found := slices.BinarySearchFunc(x.entries, ts, cmpEntry)
	if !found {
		i--
	}
	if i < 0 || i >= len(x.entries) {
		return IndexEntry{}, false
	}
	e := x.entries[i]
	if ts-e.PTS > tolerance {
		return IndexEntry{}, false
	}
	return e, true
}

func (x *KeyframeIndex) Len() int {
	return len(x.entries)
}

func (x *KeyframeIndex) Entries() []IndexEntry {
	return x.entries
}
