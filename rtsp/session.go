package rtsp

import (
	"bufio"
	"bytes"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Eyevinn/avdemux/av"
	"github.com/Eyevinn/avdemux/bytesio"
)

const (
	protocol = "RTSP/1.0"
	// maxHeaderSize bounds the header block of one response.
	maxHeaderSize = 16 * 1024
)

// SessionOptions configures a Session.
type SessionOptions struct {
	Logger    logrus.FieldLogger
	UserAgent string
	// Headers are sent with every request, e.g. "Require: onvif-replay".
	Headers []string
}

func DefaultSessionOptions() SessionOptions {
	return SessionOptions{Logger: logrus.StandardLogger(), UserAgent: "avdemux"}
}

func (o SessionOptions) withDefaults() SessionOptions {
	d := DefaultSessionOptions()
	if o.Logger == nil {
		o.Logger = d.Logger
	}
	if o.UserAgent == "" {
		o.UserAgent = d.UserAgent
	}
	return o
}

// Response is a parsed RTSP response.
type Response struct {
	StatusCode int
	Status     string
	Header     textproto.MIMEHeader
	Body       []byte
}

// StatusError is returned when the server answers with a status other than
// 200.
type StatusError struct {
	Method     string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("rtsp %s: %d %s", e.Method, e.StatusCode, e.Status)
}

// Frame is one interleaved binary frame. Even channels carry RTP, odd ones
// RTCP.
type Frame struct {
	Channel byte
	Data    []byte
}

// Session is the client side of one RTSP session over a connection given as
// a reader and writer pair. Session is not safe for concurrent use.
type Session struct {
	r    bytesio.Reader
	w    bytesio.Writer
	opts SessionOptions
	log  logrus.FieldLogger
	url  *url.URL
	// uri is the request URI without user info.
	uri  string
	base string
	cseq int
	id   string
	auth func(method, uri string) string
	// frames that arrived while waiting for a response
	frames []Frame
}

func NewSession(r bytesio.Reader, w bytesio.Writer, rawURL string, opts SessionOptions) (*Session, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing url: %w", err)
	}
	if u.Scheme != "rtsp" && u.Scheme != "rtsps" {
		return nil, fmt.Errorf("url scheme %q: %w", u.Scheme, av.ErrFormatNotSupport)
	}
	opts = opts.withDefaults()
	clean := *u
	clean.User = nil
	return &Session{
		r:    r,
		w:    w,
		opts: opts,
		log:  opts.Logger.WithField("url", clean.String()),
		url:  u,
		uri:  clean.String(),
		base: clean.String(),
	}, nil
}

// ID returns the session identifier assigned by the server.
func (s *Session) ID() string {
	return s.id
}

func (s *Session) Options() (*Response, error) {
	return s.Do("OPTIONS", s.uri, nil)
}

// Describe fetches and parses the session description. A Content-Base header
// becomes the base of relative control URLs.
func (s *Session) Describe() ([]Media, error) {
	res, err := s.Do("DESCRIBE", s.uri, []string{"Accept: application/sdp"})
	if err != nil {
		return nil, err
	}
	if b := res.Header.Get("Content-Base"); b != "" {
		s.base = strings.TrimSuffix(b, "/")
	}
	return ParseSDP(res.Body)
}

// Setup requests interleaved TCP transport for m on channels ch and ch+1.
func (s *Session) Setup(m Media, ch int) error {
	transport := fmt.Sprintf("Transport: RTP/AVP/TCP;unicast;interleaved=%d-%d", ch, ch+1)
	_, err := s.Do("SETUP", s.ControlURL(m.Control), []string{transport})
	return err
}

func (s *Session) Play() error {
	_, err := s.Do("PLAY", s.base, []string{"Range: npt=0.000-"})
	return err
}

func (s *Session) Teardown() error {
	_, err := s.Do("TEARDOWN", s.base, nil)
	return err
}

// ControlURL resolves a media control attribute against the session base.
func (s *Session) ControlURL(control string) string {
	switch {
	case control == "" || control == "*":
		return s.base
	case strings.HasPrefix(control, "rtsp://"), strings.HasPrefix(control, "rtsps://"):
		return control
	}
	return s.base + "/" + strings.TrimPrefix(control, "/")
}

// Do sends one request and returns the matching response. A 401 is answered
// once with credentials from the URL.
func (s *Session) Do(method, uri string, header []string) (*Response, error) {
	res, err := s.roundTrip(method, uri, header)
	if err != nil {
		return nil, err
	}
	if res.StatusCode == 401 && s.auth == nil {
		if err := s.authenticate(res); err != nil {
			return nil, err
		}
		if res, err = s.roundTrip(method, uri, header); err != nil {
			return nil, err
		}
	}
	if res.StatusCode != 200 {
		return res, &StatusError{Method: method, StatusCode: res.StatusCode, Status: res.Status}
	}
	if id := res.Header.Get("Session"); id != "" {
		id, _, _ = strings.Cut(id, ";")
		s.id = strings.TrimSpace(id)
	}
	return res, nil
}

func (s *Session) roundTrip(method, uri string, header []string) (*Response, error) {
	s.cseq++
	var b bytes.Buffer
	fmt.Fprintf(&b, "%s %s %s\r\n", method, uri, protocol)
	fmt.Fprintf(&b, "CSeq: %d\r\n", s.cseq)
	fmt.Fprintf(&b, "User-Agent: %s\r\n", s.opts.UserAgent)
	if s.id != "" {
		fmt.Fprintf(&b, "Session: %s\r\n", s.id)
	}
	if s.auth != nil {
		fmt.Fprintf(&b, "Authorization: %s\r\n", s.auth(method, uri))
	}
	for _, h := range append(header, s.opts.Headers...) {
		b.WriteString(h)
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n")
	s.log.WithFields(logrus.Fields{"method": method, "cseq": s.cseq}).Debug("rtsp request")
	if err := s.w.WriteBuffer(b.Bytes()); err != nil {
		return nil, fmt.Errorf("writing %s: %w", method, err)
	}
	if err := s.w.Flush(); err != nil {
		return nil, fmt.Errorf("writing %s: %w", method, err)
	}
	for {
		res, f, err := s.readMessage()
		if err != nil {
			return nil, fmt.Errorf("reading %s response: %w", method, err)
		}
		if res == nil {
			s.frames = append(s.frames, f)
			continue
		}
		if cseq, err := strconv.Atoi(res.Header.Get("CSeq")); err == nil && cseq != s.cseq {
			s.log.WithField("cseq", cseq).Warn("skipping response to earlier request")
			continue
		}
		return res, nil
	}
}

// ReadFrame returns the next interleaved frame. Responses arriving in
// between, e.g. to keep-alive requests, are dropped.
func (s *Session) ReadFrame() (Frame, error) {
	if len(s.frames) > 0 {
		f := s.frames[0]
		s.frames = s.frames[1:]
		return f, nil
	}
	for {
		res, f, err := s.readMessage()
		if err != nil {
			return Frame{}, err
		}
		if res == nil {
			return f, nil
		}
		s.log.WithField("status", res.StatusCode).Debug("unsolicited rtsp response")
	}
}

// readMessage reads either a response or an interleaved frame, skipping bytes
// that start neither.
func (s *Session) readMessage() (*Response, Frame, error) {
	skipped := 0
	for {
		c, err := s.r.PeekUint8()
		if err != nil {
			return nil, Frame{}, err
		}
		switch c {
		case '$':
			f, err := s.readFrame()
			return nil, f, err
		case 'R':
			if b, err := s.r.Peek(len(protocol)); err == nil && string(b) == protocol {
				res, err := s.readResponse()
				return res, Frame{}, err
			}
		}
		if skipped == 0 {
			s.log.WithField("byte", c).Warn("resyncing rtsp stream")
		}
		skipped++
		if err := s.r.Skip(1); err != nil {
			return nil, Frame{}, err
		}
	}
}

func (s *Session) readFrame() (Frame, error) {
	if err := s.r.Skip(1); err != nil {
		return Frame{}, err
	}
	ch, err := s.r.ReadUint8()
	if err != nil {
		return Frame{}, err
	}
	n, err := s.r.ReadUint16()
	if err != nil {
		return Frame{}, err
	}
	data, err := s.r.ReadBuffer(int(n))
	if err != nil {
		return Frame{}, err
	}
	return Frame{Channel: ch, Data: data}, nil
}

func (s *Session) readResponse() (*Response, error) {
	var hdr []byte
	for !bytes.HasSuffix(hdr, []byte("\r\n\r\n")) && !bytes.HasSuffix(hdr, []byte("\n\n")) {
		if len(hdr) > maxHeaderSize {
			return nil, fmt.Errorf("response header over %d bytes: %w", maxHeaderSize, av.ErrDataInvalid)
		}
		c, err := s.r.ReadUint8()
		if err != nil {
			return nil, err
		}
		hdr = append(hdr, c)
	}
	tp := textproto.NewReader(bufio.NewReader(bytes.NewReader(hdr)))
	line, err := tp.ReadLine()
	if err != nil {
		return nil, err
	}
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return nil, fmt.Errorf("status line %q: %w", line, av.ErrDataInvalid)
	}
	res := &Response{}
	if res.StatusCode, err = strconv.Atoi(parts[1]); err != nil {
		return nil, fmt.Errorf("status line %q: %w", line, av.ErrDataInvalid)
	}
	if len(parts) == 3 {
		res.Status = parts[2]
	}
	if res.Header, err = tp.ReadMIMEHeader(); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("response headers: %v: %w", err, av.ErrDataInvalid)
	}
	if n, _ := strconv.Atoi(res.Header.Get("Content-Length")); n > 0 {
		if res.Body, err = s.r.ReadBuffer(n); err != nil {
			return nil, fmt.Errorf("response body: %w", err)
		}
	}
	return res, nil
}

// authenticate installs Basic or Digest credentials for the challenge in res.
func (s *Session) authenticate(res *Response) error {
	if s.url.User == nil {
		return &StatusError{Method: "auth", StatusCode: res.StatusCode, Status: "no credentials in url"}
	}
	user := s.url.User.Username()
	pass, _ := s.url.User.Password()
	scheme, params, _ := strings.Cut(res.Header.Get("WWW-Authenticate"), " ")
	if !strings.EqualFold(scheme, "Digest") {
		token := base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))
		s.auth = func(string, string) string { return "Basic " + token }
		return nil
	}
	var realm, nonce string
	for _, field := range strings.Split(params, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(field), "=")
		if !ok {
			continue
		}
		v = strings.Trim(v, `"`)
		switch k {
		case "realm":
			realm = v
		case "nonce":
			nonce = v
		}
	}
	ha1 := md5hex(user + ":" + realm + ":" + pass)
	s.auth = func(method, uri string) string {
		resp := md5hex(ha1 + ":" + nonce + ":" + md5hex(method+":"+uri))
		return fmt.Sprintf(`Digest username="%s", realm="%s", nonce="%s", uri="%s", response="%s"`,
			user, realm, nonce, uri, resp)
	}
	return nil
}

func md5hex(s string) string {
	h := md5.Sum([]byte(s))
	return hex.EncodeToString(h[:])
}
