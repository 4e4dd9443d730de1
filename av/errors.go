package av

import "errors"

var (
	// ErrDataInvalid marks a malformed frame, section or PES. The error is local to
	// the unit being parsed; callers resync where they can.
	ErrDataInvalid = errors.New("data invalid")
	// ErrEmpty is flow control, not a failure: no output is buffered yet.
	ErrEmpty = errors.New("no output available")
	// ErrCodecNotSupport is returned when a codec cannot be handled by a component.
	ErrCodecNotSupport = errors.New("codec not supported")
	// ErrFormatNotSupport is returned for operations a container cannot perform,
	// e.g. seeking an RTSP session.
	ErrFormatNotSupport = errors.New("format not supported")
)
