package aac

import (
	"bytes"
	"fmt"

	"github.com/Eyevinn/avdemux/av"
	mp4aac "github.com/Eyevinn/mp4ff/aac"
)

const (
	AOTAACMain = 1
	AOTAACLC   = 2
	AOTSBR     = 5
	AOTPS      = 29
)

var sampleRates = []int{
	96000, 88200, 64000, 48000, 44100, 32000, 24000,
	22050, 16000, 12000, 11025, 8000, 7350,
}

// SampleRateIndex returns the MPEG-4 sampling frequency index of rate.
func SampleRateIndex(rate int) (byte, bool) {
	for i, r := range sampleRates {
		if r == rate {
			return byte(i), true
		}
	}
	return 0, false
}

// Config is the subset of an AudioSpecificConfig that the demuxers need.
type Config struct {
	ObjectType byte
	SampleRate int
	Channels   int
}

// EncodeConfig returns an AudioSpecificConfig, used as AAC extradata.
func EncodeConfig(c Config) ([]byte, error) {
	asc := &mp4aac.AudioSpecificConfig{
		ObjectType:           c.ObjectType,
		ChannelConfiguration: byte(c.Channels),
		SamplingFrequency:    c.SampleRate,
	}
	buf := &bytes.Buffer{}
	if err := asc.Encode(buf); err != nil {
		return nil, fmt.Errorf("encoding AudioSpecificConfig: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeConfig parses AAC extradata.
func DecodeConfig(extradata []byte) (Config, error) {
	asc, err := mp4aac.DecodeAudioSpecificConfig(bytes.NewReader(extradata))
	if err != nil {
		return Config{}, fmt.Errorf("decoding AudioSpecificConfig: %v: %w", err, av.ErrDataInvalid)
	}
	return Config{
		ObjectType: asc.ObjectType,
		SampleRate: asc.SamplingFrequency,
		Channels:   int(asc.ChannelConfiguration),
	}, nil
}

// ConfigFromADTS builds the AudioSpecificConfig matching an ADTS header.
func ConfigFromADTS(h ADTSHeader) ([]byte, error) {
	return EncodeConfig(Config{ObjectType: h.ObjectType, SampleRate: h.SampleRate, Channels: h.Channels})
}

// FillParameters copies config values into par.
func FillParameters(par *av.CodecParameters, c Config) {
	par.SampleRate = c.SampleRate
	par.Channels = c.Channels
	par.Profile = int(c.ObjectType)
	par.FrameSize = SamplesPerFrame
}

func parseCodecParameters(par *av.CodecParameters, extradata []byte) error {
	c, err := DecodeConfig(extradata)
	if err != nil {
		return err
	}
	FillParameters(par, c)
	return nil
}

func init() {
	c := &av.Capability{Name: "aac", ParseCodecParameters: parseCodecParameters}
	av.RegisterCapability(av.CodecAAC, c)
	av.RegisterCapability(av.CodecAACLATM, c)
}
