package mpegts

import (
	"fmt"

	"github.com/Eyevinn/avdemux/av"
)

var candidateSizes = []int{PacketSize, M2TSPacketSize, FECPacketSize}

// minSyncHits is the number of sync bytes at one stride needed to accept it.
const minSyncHits = 3

// syncHits returns the best number of sync bytes found at stride size, and the
// offset of the first of them.
func syncHits(buf []byte, size int) (hits, offset int) {
	offset = -1
	for off := 0; off < size && off < len(buf); off++ {
		n := 0
		for i := off; i < len(buf); i += size {
			if buf[i] == SyncByte {
				n++
			}
		}
		if n > hits {
			hits, offset = n, off
		}
	}
	return hits, offset
}

// DetectPacketSize scores the sync byte hit rate of buf at each candidate stride
// and returns the packet size and the offset of the first packet start.
func DetectPacketSize(buf []byte) (size, start int, err error) {
	bestScore := -1
	for _, s := range candidateSizes {
		hits, off := syncHits(buf, s)
		if hits < minSyncHits && hits*s < len(buf) {
			continue
		}
		// score relative to the number of packets the buffer can hold
		score := hits * 1000 / (len(buf)/s + 1)
		if score > bestScore {
			bestScore, size = score, s
			start = off
			if s == M2TSPacketSize {
				start -= m2tsPrefix
				if start < 0 {
					start += M2TSPacketSize
				}
			}
		}
	}
	if bestScore < 0 {
		return 0, 0, fmt.Errorf("no ts sync pattern in %d bytes: %w", len(buf), av.ErrFormatNotSupport)
	}
	return size, start, nil
}

// Probe returns a score from 0 to 100 for buf being the start of a transport
// stream.
func Probe(buf []byte) int {
	best := 0
	for _, s := range candidateSizes {
		packets := len(buf) / s
		if packets == 0 {
			continue
		}
		hits, _ := syncHits(buf, s)
		if hits < minSyncHits && hits < packets {
			continue
		}
		if score := hits * 100 / packets; score > best {
			best = score
		}
	}
	if best > 100 {
		best = 100
	}
	return best
}
