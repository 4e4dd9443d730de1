package internal

import (
	"golang.org/x/exp/slices"

	"github.com/Eyevinn/avdemux/av"
	"github.com/Eyevinn/avdemux/common"
)

// StreamStatistics collects per stream packet counts and timestamp steps.
type StreamStatistics struct {
	Type       string  `json:"streamType"`
	Pid        uint16  `json:"pid"`
	Packets    int     `json:"packets"`
	Bytes      int64   `json:"bytes"`
	Corrupt    int     `json:"corrupt,omitempty"`
	FrameRate  float64 `json:"frameRate,omitempty"`
	TimeStamps []int64 `json:"-"`
	MaxStep    int64   `json:"maxStep,omitempty"`
	MinStep    int64   `json:"minStep,omitempty"`
	AvgStep    int64   `json:"avgStep,omitempty"`
	// RAI-markers
	RAIPTS         []int64 `json:"-"`
	IDRPTS         []int64 `json:"-"`
	RAIGOPDuration float64 `json:"RAIGoPDuration,omitempty"`
	IDRGOPDuration float64 `json:"IDRGoPDuration,omitempty"`
	// Errors
	Errors []string `json:"errors,omitempty"`
}

func newStreamStatistics(st *av.Stream) *StreamStatistics {
	return &StreamStatistics{Type: st.Codecpar.CodecID.String(), Pid: uint16(st.ID)}
}

// AddPacket accounts one packet. Timestamps are taken in 90 kHz.
func (s *StreamStatistics) AddPacket(pkt *av.Packet) {
	s.Packets++
	s.Bytes += int64(len(pkt.Data))
	if pkt.Flags&av.FlagCorrupt != 0 {
		s.Corrupt++
	}
	ts := pkt.DTS
	if ts == av.NoPTS {
		if ts = pkt.PTS; ts == av.NoPTS {
			return
		}
	}
	s.TimeStamps = append(s.TimeStamps, common.To90k(ts, pkt.TimeBase))
	if pkt.PTS != av.NoPTS && pkt.IsKey() {
		s.RAIPTS = append(s.RAIPTS, common.To90k(pkt.PTS, pkt.TimeBase))
	}
}

// PrintStatistics finishes the derived values of s and prints them.
func PrintStatistics(jp *common.JsonPrinter, s StreamStatistics, show bool) {
	s.calculateFrameRate(common.TimeScale)
	if len(s.IDRPTS) > 0 {
		s.calculateGoPDuration(common.TimeScale)
	}
	jp.Print(s, show)
}

// CalculateSteps returns the differences of consecutive timestamps, taking
// the 33-bit wrap into account.
func CalculateSteps(timestamps []int64) []int64 {
	var steps []int64
	for i := 1; i < len(timestamps); i++ {
		steps = append(steps, common.SignedPTSDiff(timestamps[i], timestamps[i-1]))
	}
	return steps
}

func meanStep(steps []int64) int64 {
	if len(steps) == 0 {
		return 0
	}
	var sum int64
	for _, s := range steps {
		sum += s
	}
	return sum / int64(len(steps))
}

func (s *StreamStatistics) calculateFrameRate(timescale int64) {
	steps := CalculateSteps(s.TimeStamps)
	if len(steps) == 0 {
		s.Errors = append(s.Errors, "too few timestamps to calculate frame rate")
		return
	}
	avg := meanStep(steps)
	if lo, hi := slices.Min(steps), slices.Max(steps); lo != hi {
		s.Errors = append(s.Errors, "irregular PTS/DTS steps")
		s.MinStep, s.MaxStep, s.AvgStep = lo, hi, avg
	}
	if avg <= 0 {
		s.Errors = append(s.Errors, "non-increasing timestamps")
		return
	}
	s.FrameRate = float64(timescale) / float64(avg)
}

// calculateGoPDuration sets the mean distance in seconds between random
// access points and between IDR pictures.
func (s *StreamStatistics) calculateGoPDuration(timescale int64) {
	if len(s.RAIPTS) < 2 || len(s.IDRPTS) < 2 {
		s.Errors = append(s.Errors, "no GoP duration since less than 2 I-frames")
		return
	}
	seconds := func(pts []int64) float64 {
		return float64(meanStep(CalculateSteps(pts))) / float64(timescale)
	}
	s.RAIGOPDuration = seconds(s.RAIPTS)
	s.IDRGOPDuration = seconds(s.IDRPTS)
}
