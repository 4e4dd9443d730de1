package bsf

import (
	"github.com/Eyevinn/avdemux/av"
	"github.com/Eyevinn/avdemux/codec/ac3"
	"github.com/Eyevinn/avdemux/codec/dts"
	"github.com/Eyevinn/avdemux/codec/mpegaudio"
)

// NewAC3 returns a filter splitting AC-3 and E-AC-3 payloads into sync frames.
// E-AC-3 dependent substreams share the PTS of their independent frame and
// add no duration.
func NewAC3() Filter {
	f := &framer{minHeader: ac3.HeaderLength}
	f.parse = func(b []byte) (frameInfo, error) {
		h, err := ac3.ParseHeader(b)
		if err != nil {
			return frameInfo{}, err
		}
		return frameInfo{size: h.FrameSize, samples: h.Samples, sampleRate: h.SampleRate, dependent: h.Dependent}, nil
	}
	f.emit = wholeFrame(f, func(b []byte, par *av.CodecParameters) {
		if h, err := ac3.ParseHeader(b); err == nil {
			par.SampleRate, par.Channels, par.BitRate = h.SampleRate, h.Channels, h.BitRate
		}
	})
	return f
}

// NewDTS returns a filter splitting DTS core frames. Garbage between frames is
// skipped by searching for the next sync word.
func NewDTS() Filter {
	f := &framer{minHeader: dts.HeaderLength, findSync: dts.FindSync}
	f.parse = func(b []byte) (frameInfo, error) {
		h, err := dts.ParseHeader(b)
		if err != nil {
			return frameInfo{}, err
		}
		return frameInfo{size: h.FrameSize, samples: h.Samples, sampleRate: h.SampleRate}, nil
	}
	f.emit = wholeFrame(f, func(b []byte, par *av.CodecParameters) {
		if h, err := dts.ParseHeader(b); err == nil {
			par.SampleRate, par.Channels, par.BitRate = h.SampleRate, h.Channels, h.BitRate
		}
	})
	return f
}

// NewMP3 returns a filter splitting MPEG audio layer 1, 2 and 3 frames.
func NewMP3() Filter {
	f := &framer{minHeader: mpegaudio.HeaderLength}
	f.parse = func(b []byte) (frameInfo, error) {
		h, err := mpegaudio.ParseHeader(b)
		if err != nil {
			return frameInfo{}, err
		}
		return frameInfo{size: h.FrameSize, samples: h.Samples, sampleRate: h.SampleRate}, nil
	}
	f.emit = wholeFrame(f, func(b []byte, par *av.CodecParameters) {
		if h, err := mpegaudio.ParseHeader(b); err == nil {
			par.SampleRate, par.Channels, par.BitRate = h.SampleRate, h.Channels, h.BitRate
		}
	})
	return f
}

// wholeFrame emits frames unchanged, keeping the header. update refreshes the
// filter's parameters from the first frame.
func wholeFrame(f *framer, update func(b []byte, par *av.CodecParameters)) func([]byte, frameInfo, *av.Packet) (int64, error) {
	seen := false
	return func(frame []byte, _ frameInfo, props *av.Packet) (int64, error) {
		if !seen {
			update(frame, &f.par)
			seen = true
		}
		props.Data = frame
		f.out.push(props)
		return props.Duration, nil
	}
}
