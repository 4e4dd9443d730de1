package aac

import (
	"bytes"
	"fmt"

	"github.com/Eyevinn/avdemux/av"
	"github.com/Eyevinn/mp4ff/bits"
)

const (
	LOASHeaderLength = 3
	loasSync         = 0x2b7
	maxLOASPayload   = 1<<13 - 1
)

// IsLOASSync reports whether b starts with the 11-bit LOAS sync word.
func IsLOASSync(b []byte) bool {
	return len(b) >= 2 && b[0] == 0x56 && b[1]&0xe0 == 0xe0
}

// ParseLOASHeader returns the total length of the LOAS frame at the start of b,
// header included.
func ParseLOASHeader(b []byte) (int, error) {
	if len(b) < LOASHeaderLength {
		return 0, fmt.Errorf("loas header needs %d bytes: %w", LOASHeaderLength, av.ErrDataInvalid)
	}
	if !IsLOASSync(b) {
		return 0, fmt.Errorf("loas sync %02x%02x: %w", b[0], b[1], av.ErrDataInvalid)
	}
	n := int(b[1]&0x1f)<<8 | int(b[2])
	return LOASHeaderLength + n, nil
}

// LATMParser parses AudioMuxElements and keeps the last StreamMuxConfig.
type LATMParser struct {
	cfg             Config
	configured      bool
	muxVersion      uint
	numSubFrames    int
	frameLengthType uint
}

func (p *LATMParser) Config() (Config, bool) {
	return p.cfg, p.configured
}

func (p *LATMParser) Reset() {
	*p = LATMParser{}
}

// ParseAudioMuxElement parses one AudioMuxElement with muxConfigPresent set and
// returns its raw AAC payloads. A changed StreamMuxConfig is reported via
// configChanged.
func (p *LATMParser) ParseAudioMuxElement(b []byte) (frames [][]byte, configChanged bool, err error) {
	r := bits.NewReader(bytes.NewReader(b))
	useSameStreamMux := r.Read(1) == 1
	if !useSameStreamMux {
		prev, had := p.cfg, p.configured
		if err := p.readStreamMuxConfig(r); err != nil {
			return nil, false, err
		}
		configChanged = !had || prev != p.cfg
	}
	if !p.configured {
		return nil, false, fmt.Errorf("latm payload before StreamMuxConfig: %w", av.ErrDataInvalid)
	}
	for i := 0; i <= p.numSubFrames; i++ {
		length := 0
		for {
			tmp := int(r.Read(8))
			length += tmp
			if tmp != 255 || r.AccError() != nil {
				break
			}
		}
		frame := make([]byte, length)
		for j := range frame {
			frame[j] = byte(r.Read(8))
		}
		if r.AccError() != nil {
			return nil, false, fmt.Errorf("latm payload of %d bytes truncated: %w", length, av.ErrDataInvalid)
		}
		frames = append(frames, frame)
	}
	return frames, configChanged, nil
}

func latmGetValue(r *bits.Reader) uint {
	n := r.Read(2)
	v := uint(0)
	for i := uint(0); i <= n; i++ {
		v = v<<8 | r.Read(8)
	}
	return v
}

func (p *LATMParser) readStreamMuxConfig(r *bits.Reader) error {
	p.muxVersion = r.Read(1)
	if p.muxVersion == 1 {
		if r.Read(1) != 0 {
			return fmt.Errorf("latm audioMuxVersionA: %w", av.ErrCodecNotSupport)
		}
		_ = latmGetValue(r) // taraBufferFullness
	}
	_ = r.Read(1) // allStreamsSameTimeFraming
	p.numSubFrames = int(r.Read(6))
	if numProgram := r.Read(4); numProgram != 0 {
		return fmt.Errorf("latm with %d programs: %w", numProgram+1, av.ErrCodecNotSupport)
	}
	if numLayer := r.Read(3); numLayer != 0 {
		return fmt.Errorf("latm with %d layers: %w", numLayer+1, av.ErrCodecNotSupport)
	}
	if p.muxVersion == 1 {
		_ = latmGetValue(r) // ascLen
	}
	cfg, err := readAudioSpecificConfig(r)
	if err != nil {
		return err
	}
	p.frameLengthType = r.Read(3)
	if p.frameLengthType != 0 {
		return fmt.Errorf("latm frameLengthType %d: %w", p.frameLengthType, av.ErrCodecNotSupport)
	}
	_ = r.Read(8) // latmBufferFullness
	if r.Read(1) == 1 {
		if p.muxVersion == 1 {
			_ = latmGetValue(r)
		} else {
			for {
				esc := r.Read(1)
				_ = r.Read(8)
				if esc == 0 || r.AccError() != nil {
					break
				}
			}
		}
	}
	if r.Read(1) == 1 {
		_ = r.Read(8) // crcCheckSum
	}
	if r.AccError() != nil {
		return fmt.Errorf("latm StreamMuxConfig truncated: %w", av.ErrDataInvalid)
	}
	p.cfg = cfg
	p.configured = true
	return nil
}

func readObjectType(r *bits.Reader) byte {
	aot := r.Read(5)
	if aot == 31 {
		aot = 32 + r.Read(6)
	}
	return byte(aot)
}

func readSampleRate(r *bits.Reader) (int, error) {
	idx := r.Read(4)
	if idx == 0xf {
		return int(r.Read(24)), nil
	}
	if int(idx) >= len(sampleRates) {
		return 0, fmt.Errorf("sample rate index %d: %w", idx, av.ErrDataInvalid)
	}
	return sampleRates[idx], nil
}

// readAudioSpecificConfig reads a bit-aligned AudioSpecificConfig as embedded in
// a StreamMuxConfig. Only GA object types are accepted.
func readAudioSpecificConfig(r *bits.Reader) (Config, error) {
	var c Config
	c.ObjectType = readObjectType(r)
	rate, err := readSampleRate(r)
	if err != nil {
		return c, err
	}
	c.SampleRate = rate
	c.Channels = int(r.Read(4))
	if c.ObjectType == AOTSBR || c.ObjectType == AOTPS {
		if _, err := readSampleRate(r); err != nil {
			return c, err
		}
		c.ObjectType = readObjectType(r)
	}
	switch c.ObjectType {
	case 1, 2, 3, 4:
	default:
		return c, fmt.Errorf("latm audio object type %d: %w", c.ObjectType, av.ErrCodecNotSupport)
	}
	if c.Channels == 0 {
		return c, fmt.Errorf("latm program config element: %w", av.ErrCodecNotSupport)
	}
	_ = r.Read(1) // frameLengthFlag
	if r.Read(1) == 1 {
		_ = r.Read(14) // coreCoderDelay
	}
	_ = r.Read(1) // extensionFlag, zero for object types 1-4
	if r.AccError() != nil {
		return c, fmt.Errorf("AudioSpecificConfig truncated: %w", av.ErrDataInvalid)
	}
	return c, nil
}

// LATMWriter wraps raw AAC frames in LOAS/LATM. The StreamMuxConfig is repeated
// every Period frames.
type LATMWriter struct {
	Config Config
	Period int
	count  int
}

func (w *LATMWriter) Reset() {
	w.count = 0
}

// WriteFrame returns a complete LOAS frame carrying raw.
func (w *LATMWriter) WriteFrame(raw []byte) ([]byte, error) {
	idx, ok := SampleRateIndex(w.Config.SampleRate)
	if !ok {
		return nil, fmt.Errorf("no sample rate index for %d Hz: %w", w.Config.SampleRate, av.ErrCodecNotSupport)
	}
	period := w.Period
	if period <= 0 {
		period = 1
	}
	buf := &bytes.Buffer{}
	bw := bits.NewWriter(buf)
	if w.count%period == 0 {
		bw.Write(0, 1) // useSameStreamMux
		bw.Write(0, 1) // audioMuxVersion
		bw.Write(1, 1) // allStreamsSameTimeFraming
		bw.Write(0, 6) // numSubFrames
		bw.Write(0, 4) // numProgram
		bw.Write(0, 3) // numLayer
		bw.Write(uint(w.Config.ObjectType), 5)
		bw.Write(uint(idx), 4)
		bw.Write(uint(w.Config.Channels), 4)
		bw.Write(0, 3) // frameLengthFlag, dependsOnCoreCoder, extensionFlag
		bw.Write(0, 3) // frameLengthType
		bw.Write(0xff, 8)
		bw.Write(0, 1) // otherDataPresent
		bw.Write(0, 1) // crcCheckPresent
	} else {
		bw.Write(1, 1)
	}
	w.count++
	n := len(raw)
	for ; n >= 255; n -= 255 {
		bw.Write(255, 8)
	}
	bw.Write(uint(n), 8)
	for _, c := range raw {
		bw.Write(uint(c), 8)
	}
	bw.Flush()
	if err := bw.AccError(); err != nil {
		return nil, err
	}
	elem := buf.Bytes()
	if len(elem) > maxLOASPayload {
		return nil, fmt.Errorf("latm element of %d bytes too large: %w", len(elem), av.ErrDataInvalid)
	}
	out := make([]byte, LOASHeaderLength, LOASHeaderLength+len(elem))
	out[0] = 0x56
	out[1] = 0xe0 | byte(len(elem)>>8)
	out[2] = byte(len(elem))
	return append(out, elem...), nil
}
