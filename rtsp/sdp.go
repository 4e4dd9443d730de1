// Package rtsp pulls media from an RTSP server over TCP with interleaved RTP.
// A Session drives the request/response exchange, Demuxer turns the RTP
// streams it sets up into av.Packets.
package rtsp

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/pion/sdp/v3"

	"github.com/Eyevinn/avdemux/av"
	"github.com/Eyevinn/avdemux/codec/aac"
	_ "github.com/Eyevinn/avdemux/codec/nalu"
)

// Media is one m= section of a session description.
type Media struct {
	// Type is the media field, e.g. "video" or "audio".
	Type        string
	Control     string
	PayloadType uint8
	// Encoding is the rtpmap encoding name as written.
	Encoding  string
	ClockRate int
	Channels  int
	Codec     av.CodecID
	Fmtp      map[string]string
	Extradata []byte
	// AU header layout of RFC 3640 payloads, in bits.
	SizeLength       int
	IndexLength      int
	IndexDeltaLength int
}

// static payload types not covered by the SDP package
var staticPayloads = map[uint8]sdp.Codec{
	14: {PayloadType: 14, Name: "MPA", ClockRate: 90000},
}

// ParseSDP parses a DESCRIBE response body. Media sections whose first format
// cannot be resolved are returned with Codec set to av.CodecNone.
func ParseSDP(body []byte) ([]Media, error) {
	var sd sdp.SessionDescription
	if err := sd.Unmarshal(body); err != nil {
		return nil, fmt.Errorf("parsing session description: %v: %w", err, av.ErrDataInvalid)
	}
	medias := make([]Media, 0, len(sd.MediaDescriptions))
	for _, md := range sd.MediaDescriptions {
		m, err := parseMedia(md)
		if err != nil {
			return nil, err
		}
		medias = append(medias, m)
	}
	return medias, nil
}

func parseMedia(md *sdp.MediaDescription) (Media, error) {
	m := Media{Type: md.MediaName.Media, Fmtp: map[string]string{}}
	m.Control, _ = md.Attribute("control")
	if len(md.MediaName.Formats) == 0 {
		return m, nil
	}
	pt, err := strconv.ParseUint(md.MediaName.Formats[0], 10, 8)
	if err != nil {
		return m, fmt.Errorf("payload type %q: %w", md.MediaName.Formats[0], av.ErrDataInvalid)
	}
	m.PayloadType = uint8(pt)
	// resolve per media so payload types reused across sections do not mix
	one := &sdp.SessionDescription{MediaDescriptions: []*sdp.MediaDescription{md}}
	c, err := one.GetCodecForPayloadType(m.PayloadType)
	if err != nil {
		var ok bool
		if c, ok = staticPayloads[m.PayloadType]; !ok {
			return m, nil
		}
	}
	m.Encoding = c.Name
	m.ClockRate = int(c.ClockRate)
	m.Channels = 1
	if n, err := strconv.Atoi(c.EncodingParameters); err == nil && n > 0 {
		m.Channels = n
	}
	m.Fmtp = parseFmtp(c.Fmtp)
	m.Codec = codecForEncoding(m.Type, c.Name)
	if err := m.configure(); err != nil {
		return m, fmt.Errorf("media %s/%s: %w", m.Type, m.Encoding, err)
	}
	return m, nil
}

func codecForEncoding(media, name string) av.CodecID {
	switch strings.ToUpper(name) {
	case "H264":
		return av.CodecH264
	case "H265", "HEVC":
		return av.CodecHEVC
	case "MPEG4-GENERIC":
		if media == "audio" {
			return av.CodecAAC
		}
	case "MPA":
		return av.CodecMP3
	case "AC3":
		return av.CodecAC3
	case "E-AC3", "EAC3":
		return av.CodecEAC3
	case "OPUS":
		return av.CodecOpus
	case "PCMA":
		return av.CodecPCMAlaw
	case "PCMU":
		return av.CodecPCMMulaw
	}
	return av.CodecNone
}

// parseFmtp splits "a=b; c=d" into a map with lower case keys.
func parseFmtp(s string) map[string]string {
	out := map[string]string{}
	for _, kv := range strings.Split(s, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(kv), "=")
		if !ok {
			continue
		}
		out[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	return out
}

// configure derives extradata and payload layout from the fmtp parameters.
func (m *Media) configure() error {
	switch m.Codec {
	case av.CodecH264:
		return m.paramSets("sprop-parameter-sets")
	case av.CodecHEVC:
		return m.paramSets("sprop-vps", "sprop-sps", "sprop-pps")
	case av.CodecAAC:
		if cfg, ok := m.Fmtp["config"]; ok {
			ed, err := hex.DecodeString(cfg)
			if err != nil {
				return fmt.Errorf("aac config %q: %w", cfg, av.ErrDataInvalid)
			}
			m.Extradata = ed
			if c, err := aac.DecodeConfig(ed); err == nil && c.Channels > 0 {
				m.Channels = c.Channels
			}
		}
		m.SizeLength = m.fmtpInt("sizelength", 13)
		m.IndexLength = m.fmtpInt("indexlength", 3)
		m.IndexDeltaLength = m.fmtpInt("indexdeltalength", 3)
	case av.CodecOpus:
		// the rtpmap always says 2, stereo is signalled in fmtp
		m.Channels = 2
		if m.Fmtp["stereo"] == "0" {
			m.Channels = 1
		}
	}
	return nil
}

func (m *Media) fmtpInt(key string, def int) int {
	if v, err := strconv.Atoi(m.Fmtp[key]); err == nil {
		return v
	}
	return def
}

// paramSets turns base64 parameter sets into a decoder configuration record.
func (m *Media) paramSets(keys ...string) error {
	var ps [][]byte
	for _, k := range keys {
		for _, s := range strings.Split(m.Fmtp[k], ",") {
			if s == "" {
				continue
			}
			b, err := base64.StdEncoding.DecodeString(s)
			if err != nil {
				return fmt.Errorf("%s: %v: %w", k, err, av.ErrDataInvalid)
			}
			ps = append(ps, b)
		}
	}
	if len(ps) == 0 {
		return nil
	}
	caps := av.LookupCapability(m.Codec)
	if caps == nil || caps.GenerateExtradata == nil {
		return nil
	}
	ed, err := caps.GenerateExtradata(ps)
	if err != nil {
		return err
	}
	m.Extradata = ed
	return nil
}
