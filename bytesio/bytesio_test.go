package bytesio

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReaderSeekable(t *testing.T) {
	data := make([]byte, 1000)
	for i := range data {
		data[i] = byte(i)
	}
	r := NewReaderSize(bytes.NewReader(data), 64)
	require.True(t, r.Seekable())
	size, err := r.Size()
	require.NoError(t, err)
	require.Equal(t, int64(1000), size)

	v16, err := r.ReadUint16()
	require.NoError(t, err)
	require.Equal(t, uint16(0x0001), v16)
	p, err := r.PeekUint8()
	require.NoError(t, err)
	require.Equal(t, uint8(2), p)
	require.Equal(t, int64(2), r.Pos())

	require.NoError(t, r.Skip(500))
	require.Equal(t, int64(502), r.Pos())
	b, err := r.ReadUint8()
	require.NoError(t, err)
	require.Equal(t, byte(502%256), b)

	require.NoError(t, r.Seek(10))
	v32, err := r.ReadUint32()
	require.NoError(t, err)
	require.Equal(t, uint32(0x0a0b0c0d), v32)

	big, err := r.Peek(200)
	require.NoError(t, err)
	require.Equal(t, data[14:214], big)

	require.NoError(t, r.Seek(998))
	_, err = r.ReadBuffer(4)
	require.ErrorIs(t, err, io.EOF)
}

func TestReaderSequential(t *testing.T) {
	r := NewReader(bytes.NewBufferString("abcdef"))
	require.False(t, r.Seekable())
	require.NoError(t, r.Seek(2))
	c, err := r.ReadUint8()
	require.NoError(t, err)
	require.Equal(t, byte('c'), c)
	require.ErrorIs(t, r.Seek(0), ErrNotSeekable)
	size, err := r.Size()
	require.NoError(t, err)
	require.Equal(t, int64(-1), size)
}

func TestWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteUint8(0x47))
	require.NoError(t, w.WriteUint16(0x1234))
	require.NoError(t, w.WriteUint32(0xdeadbeef))
	require.NoError(t, w.Skip(2))
	require.NoError(t, w.Flush())
	require.Equal(t, int64(9), w.Pos())
	require.Equal(t, []byte{0x47, 0x12, 0x34, 0xde, 0xad, 0xbe, 0xef, 0, 0}, buf.Bytes())
}
