package bytesio

import (
	"bufio"
	"encoding/binary"
	"io"
)

// Writer is the byte sink used by muxers. Multi-byte values are big endian.
type Writer interface {
	WriteUint8(v uint8) error
	WriteUint16(v uint16) error
	WriteUint32(v uint32) error
	WriteBuffer(p []byte) error
	// Skip writes n zero bytes.
	Skip(n int) error
	Flush() error
	Pos() int64
}

type ByteWriter struct {
	wr  *bufio.Writer
	pos int64
}

func NewWriter(w io.Writer) *ByteWriter {
	return &ByteWriter{wr: bufio.NewWriterSize(w, 64*188)}
}

func (b *ByteWriter) WriteUint8(v uint8) error {
	if err := b.wr.WriteByte(v); err != nil {
		return err
	}
	b.pos++
	return nil
}

func (b *ByteWriter) WriteUint16(v uint16) error {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	return b.WriteBuffer(buf[:])
}

func (b *ByteWriter) WriteUint32(v uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	return b.WriteBuffer(buf[:])
}

func (b *ByteWriter) WriteBuffer(p []byte) error {
	n, err := b.wr.Write(p)
	b.pos += int64(n)
	return err
}

func (b *ByteWriter) Skip(n int) error {
	for i := 0; i < n; i++ {
		if err := b.WriteUint8(0); err != nil {
			return err
		}
	}
	return nil
}

func (b *ByteWriter) Flush() error {
	return b.wr.Flush()
}

func (b *ByteWriter) Pos() int64 {
	return b.pos
}
