package internal

import (
	"fmt"

	"github.com/Comcast/gots/v2/scte35"

	"github.com/Eyevinn/avdemux/av"
)

// SCTE35Info is the JSON view of one splice_info_section.
type SCTE35Info struct {
	PID           uint16                   `json:"pid"`
	PTS           int64                    `json:"pts,omitempty"`
	SpliceCommand SpliceCommand            `json:"spliceCommand"`
	SegDesc       []SegmentationDescriptor `json:"segmentationDes,omitempty"`
}

type SpliceCommand struct {
	Type      string `json:"type"`
	EventId   uint32 `json:"eventId"`
	PTS       uint64 `json:"pts"`
	Duration  uint64 `json:"duration,omitempty"`
	Out       bool   `json:"outOfNetwork,omitempty"`
	Immediate bool   `json:"immediate,omitempty"`
}

type SegmentationDescriptor struct {
	SegmentNumber uint8  `json:"segmentNumber"`
	EventId       uint32 `json:"eventId"`
	Type          string `json:"type"`
	Duration      uint64 `json:"duration,omitempty"`
}

// ParseSCTE35Section decodes one splice_info_section. pts is the 90 kHz time
// the section arrived at, or av.NoPTS.
func ParseSCTE35Section(pid uint16, pts int64, section []byte) (SCTE35Info, error) {
	// gots expects the pointer field of the TS payload
	msg, err := scte35.NewSCTE35(append([]byte{0x00}, section...))
	if err != nil {
		return SCTE35Info{}, fmt.Errorf("decoding splice info on pid %d: %w", pid, err)
	}
	info := SCTE35Info{PID: pid, SpliceCommand: spliceCommandInfo(msg.CommandInfo())}
	if pts != av.NoPTS {
		info.PTS = pts
	}
	for _, d := range msg.Descriptors() {
		info.SegDesc = append(info.SegDesc, segmentationInfo(d))
	}
	return info, nil
}

func spliceCommandInfo(cmd scte35.SpliceCommand) SpliceCommand {
	sc := SpliceCommand{Type: scte35.SpliceCommandTypeNames[cmd.CommandType()]}
	if cmd.HasPTS() {
		sc.PTS = uint64(cmd.PTS())
	}
	switch c := cmd.(type) {
	case scte35.SpliceInsertCommand:
		sc.EventId = c.EventID()
		sc.Immediate = c.SpliceImmediate()
		sc.Out = c.IsOut()
		if c.HasDuration() {
			sc.Duration = uint64(c.Duration())
		}
	}
	return sc
}

func segmentationInfo(d scte35.SegmentationDescriptor) SegmentationDescriptor {
	sd := SegmentationDescriptor{
		SegmentNumber: d.SegmentNumber(),
		EventId:       d.EventID(),
		Type:          scte35.SegDescTypeNames[d.TypeID()],
	}
	if d.HasDuration() {
		sd.Duration = uint64(d.Duration())
	}
	return sd
}
