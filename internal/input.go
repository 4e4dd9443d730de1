package internal

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Eyevinn/avdemux/av"
	"github.com/Eyevinn/avdemux/bytesio"
	"github.com/Eyevinn/avdemux/mpegps"
	"github.com/Eyevinn/avdemux/mpegts"
	"github.com/Eyevinn/avdemux/rtsp"
)

// Demuxer is the part of a demuxer the tools need.
type Demuxer interface {
	ReadHeader() error
	ReadPacket() (*av.Packet, error)
	Streams() []*av.Stream
	Close()
}

const (
	probeSize       = 100 * mpegts.FECPacketSize
	rtspDefaultPort = "554"
	dialTimeout     = 10 * time.Second
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// OpenInput opens a file, stdin ("-") or an rtsp:// or rtsps:// URL and returns
// a demuxer whose header has been read. The closer releases the input and must
// be called after the demuxer is closed.
func OpenInput(ctx context.Context, inFile string, o Options) (Demuxer, io.Closer, error) {
	if strings.HasPrefix(inFile, "rtsp://") || strings.HasPrefix(inFile, "rtsps://") {
		return OpenRTSP(ctx, inFile, o)
	}
	var f io.ReadCloser = os.Stdin
	if inFile != "-" {
		fh, err := os.Open(inFile)
		if err != nil {
			return nil, nil, err
		}
		f = fh
	}
	dmx, err := OpenDemuxer(f, o)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return dmx, f, nil
}

// DetectFormat returns "ts" or "ps" for the start of a stream. Transport
// stream wins a tie.
func DetectFormat(buf []byte) (string, error) {
	ts, ps := mpegts.Probe(buf), mpegps.Probe(buf)
	logrus.WithFields(logrus.Fields{"ts": ts, "ps": ps}).Debug("probe scores")
	switch {
	case ts == 0 && ps == 0:
		return "", fmt.Errorf("unknown input format: %w", av.ErrFormatNotSupport)
	case ts >= ps:
		return "ts", nil
	default:
		return "ps", nil
	}
}

// OpenDemuxer probes r and reads the header with the matching demuxer.
func OpenDemuxer(r io.Reader, o Options) (Demuxer, error) {
	br := bytesio.NewReader(r)
	format := o.Format
	if format == "" {
		buf, err := br.Peek(probeSize)
		if err != nil && len(buf) == 0 {
			return nil, fmt.Errorf("reading input: %w", err)
		}
		if format, err = DetectFormat(buf); err != nil {
			return nil, err
		}
	}
	var dmx Demuxer
	switch format {
	case "ts":
		dmx = mpegts.NewDemuxer(br, mpegts.DemuxerOptions{Logger: logrus.StandardLogger()})
	case "ps":
		dmx = mpegps.NewDemuxer(br, mpegps.DemuxerOptions{Logger: logrus.StandardLogger()})
	default:
		return nil, fmt.Errorf("format %q: %w", format, av.ErrFormatNotSupport)
	}
	if err := dmx.ReadHeader(); err != nil {
		dmx.Close()
		return nil, fmt.Errorf("reading %s header: %w", format, err)
	}
	return dmx, nil
}

// OpenRTSP connects to an RTSP server and starts playing all supported media
// over TCP. Cancelling ctx unblocks pending reads.
func OpenRTSP(ctx context.Context, rawURL string, o Options) (Demuxer, io.Closer, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing url: %w", err)
	}
	host := u.Host
	if u.Port() == "" {
		host = net.JoinHostPort(u.Hostname(), rtspDefaultPort)
	}
	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", host)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to %s: %w", host, err)
	}
	if u.Scheme == "rtsps" {
		conn = tls.Client(conn, &tls.Config{ServerName: u.Hostname()})
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	closer := closerFunc(func() error {
		stop()
		return conn.Close()
	})

	log := logrus.WithField("url", u.Redacted())
	s, err := rtsp.NewSession(bytesio.NewReader(conn), bytesio.NewWriter(conn), rawURL,
		rtsp.SessionOptions{Logger: log})
	if err != nil {
		closer.Close()
		return nil, nil, err
	}
	dmx := rtsp.NewDemuxer(s, rtsp.DemuxerOptions{Logger: log})
	if err := dmx.ReadHeader(); err != nil {
		closer.Close()
		return nil, nil, fmt.Errorf("starting rtsp session: %w", err)
	}
	log.WithField("streams", len(dmx.Streams())).Info("rtsp session playing")
	return dmx, closer, nil
}
