// Package bytesio provides the byte source and sink used by demuxers and muxers.
package bytesio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const defaultBufSize = 1000 * 188

var ErrNotSeekable = errors.New("source is not seekable")

// Reader is a sequential, optionally seekable, byte source. All multi-byte values
// are big endian. End of stream is reported as io.EOF.
type Reader interface {
	ReadUint8() (uint8, error)
	ReadUint16() (uint16, error)
	ReadUint24() (uint32, error)
	ReadUint32() (uint32, error)
	ReadBuffer(n int) ([]byte, error)
	ReadFull(p []byte) error
	Peek(n int) ([]byte, error)
	PeekUint8() (uint8, error)
	PeekUint16() (uint16, error)
	PeekUint32() (uint32, error)
	Skip(n int64) error
	Seek(pos int64) error
	Pos() int64
	Size() (int64, error)
	Seekable() bool
}

// ByteReader is a buffered Reader over an io.Reader. It is seekable when the
// underlying reader implements io.Seeker.
type ByteReader struct {
	src    io.Reader
	seeker io.Seeker
	rd     *bufio.Reader
	pos    int64
}

func NewReader(r io.Reader) *ByteReader {
	return NewReaderSize(r, defaultBufSize)
}

func NewReaderSize(r io.Reader, size int) *ByteReader {
	br := &ByteReader{src: r, rd: bufio.NewReaderSize(r, size)}
	if s, ok := r.(io.Seeker); ok {
		br.seeker = s
		if pos, err := s.Seek(0, io.SeekCurrent); err == nil {
			br.pos = pos
		} else {
			br.seeker = nil
		}
	}
	return br
}

func eof(err error) error {
	if err == io.ErrUnexpectedEOF {
		return io.EOF
	}
	return err
}

func (b *ByteReader) ReadFull(p []byte) error {
	n, err := io.ReadFull(b.rd, p)
	b.pos += int64(n)
	return eof(err)
}

func (b *ByteReader) ReadUint8() (uint8, error) {
	c, err := b.rd.ReadByte()
	if err != nil {
		return 0, err
	}
	b.pos++
	return c, nil
}

func (b *ByteReader) ReadUint16() (uint16, error) {
	var buf [2]byte
	if err := b.ReadFull(buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf[:]), nil
}

func (b *ByteReader) ReadUint24() (uint32, error) {
	var buf [3]byte
	if err := b.ReadFull(buf[:]); err != nil {
		return 0, err
	}
	return uint32(buf[0])<<16 | uint32(buf[1])<<8 | uint32(buf[2]), nil
}

func (b *ByteReader) ReadUint32() (uint32, error) {
	var buf [4]byte
	if err := b.ReadFull(buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

// ReadBuffer reads exactly n bytes into a new slice.
func (b *ByteReader) ReadBuffer(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("negative read length %d", n)
	}
	buf := make([]byte, n)
	if err := b.ReadFull(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Peek returns the next n bytes without consuming them. The slice is only valid
// until the next read. If fewer bytes remain, they are returned with io.EOF.
func (b *ByteReader) Peek(n int) ([]byte, error) {
	if n > b.rd.Size() {
		held, _ := b.rd.Peek(b.rd.Buffered())
		held = append([]byte(nil), held...)
		b.rd = bufio.NewReaderSize(io.MultiReader(bytes.NewReader(held), b.src), n)
	}
	p, err := b.rd.Peek(n)
	if err != nil && len(p) < n {
		return p, eof(err)
	}
	return p, nil
}

func (b *ByteReader) PeekUint8() (uint8, error) {
	p, err := b.Peek(1)
	if err != nil {
		return 0, err
	}
	return p[0], nil
}

func (b *ByteReader) PeekUint16() (uint16, error) {
	p, err := b.Peek(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(p), nil
}

func (b *ByteReader) PeekUint32() (uint32, error) {
	p, err := b.Peek(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(p), nil
}

// Skip discards n bytes, seeking when the skip exceeds the buffered data.
func (b *ByteReader) Skip(n int64) error {
	if n <= 0 {
		return nil
	}
	if buffered := int64(b.rd.Buffered()); n > buffered && b.seeker != nil {
		return b.Seek(b.pos + n)
	}
	m, err := io.CopyN(io.Discard, b.rd, n)
	b.pos += m
	return eof(err)
}

// Seek repositions to an absolute offset and drops buffered data.
func (b *ByteReader) Seek(pos int64) error {
	if b.seeker == nil {
		if pos >= b.pos {
			return b.Skip(pos - b.pos)
		}
		return ErrNotSeekable
	}
	if pos < 0 {
		pos = 0
	}
	// Stay inside the buffer when possible.
	if delta := pos - b.pos; delta >= 0 && delta <= int64(b.rd.Buffered()) {
		_, _ = b.rd.Discard(int(delta))
		b.pos = pos
		return nil
	}
	if _, err := b.seeker.Seek(pos, io.SeekStart); err != nil {
		return err
	}
	b.rd.Reset(b.src)
	b.pos = pos
	return nil
}

func (b *ByteReader) Pos() int64 {
	return b.pos
}

// Size returns the total source size for seekable sources, or -1.
func (b *ByteReader) Size() (int64, error) {
	if b.seeker == nil {
		return -1, nil
	}
	end, err := b.seeker.Seek(0, io.SeekEnd)
	if err != nil {
		return -1, err
	}
	// The underlying offset sits after the buffered bytes.
	if _, err := b.seeker.Seek(b.pos+int64(b.rd.Buffered()), io.SeekStart); err != nil {
		return -1, err
	}
	return end, nil
}

func (b *ByteReader) Seekable() bool {
	return b.seeker != nil
}
