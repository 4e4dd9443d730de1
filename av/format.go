package av

type SeekFlag int

const (
	// SeekAny skips framing resynchronisation after a byte seek. It is used when
	// the target is known to be a unit boundary, e.g. an index entry.
	SeekAny SeekFlag = 1 << iota
	// SeekBackward selects the last keyframe at or before the target.
	SeekBackward
)

// Demuxer is implemented by the TS, PS and RTSP demuxers. ReadPacket returns
// io.EOF once all buffered data has been drained.
type Demuxer interface {
	ReadHeader() error
	ReadPacket() (*Packet, error)
	Streams() []*Stream
	SeekByte(pos int64, flags SeekFlag) error
	SeekTimestamp(streamIndex int, ts int64, flags SeekFlag) error
	Close()
}

// Muxer is implemented by the TS and AAC muxers.
type Muxer interface {
	WriteHeader(streams []*Stream) error
	WritePacket(pkt *Packet) error
	WriteTrailer() error
}
