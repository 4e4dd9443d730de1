// Package slicequeue accumulates the byte chunks of one PSI section or PES packet
// until it is complete.
package slicequeue

// Queue holds the chunks of one unit. Expected is the declared total length, or
// -1 when the unit ends at the next start marker.
type Queue struct {
	chunks       [][]byte
	size         int
	Expected     int
	RandomAccess bool
	// Pos is the source byte position of the first chunk.
	Pos int64
	// Corrupt is set when a chunk was lost while the unit was being assembled.
	Corrupt bool
}

func New() *Queue {
	return &Queue{Expected: -1, Pos: -1}
}

// Start clears the queue and begins a new unit.
func (q *Queue) Start(pos int64, expected int, randomAccess bool) {
	q.Clear()
	q.Pos = pos
	q.Expected = expected
	q.RandomAccess = randomAccess
}

// Push appends a copy of b.
func (q *Queue) Push(b []byte) {
	if len(b) == 0 {
		return
	}
	q.chunks = append(q.chunks, append([]byte(nil), b...))
	q.size += len(b)
}

func (q *Queue) Len() int {
	return q.size
}

func (q *Queue) Empty() bool {
	return q.size == 0
}

// Complete reports whether the declared length has been reached.
func (q *Queue) Complete() bool {
	return q.Expected >= 0 && q.size >= q.Expected
}

// Peek returns up to n leading bytes without consuming them.
func (q *Queue) Peek(n int) []byte {
	if len(q.chunks) > 0 && len(q.chunks[0]) >= n {
		return q.chunks[0][:n]
	}
	out := make([]byte, 0, n)
	for _, c := range q.chunks {
		if len(out)+len(c) >= n {
			return append(out, c[:n-len(out)]...)
		}
		out = append(out, c...)
	}
	return out
}

// Bytes returns the accumulated data as one slice, truncated to Expected when
// that is known.
func (q *Queue) Bytes() []byte {
	var out []byte
	if len(q.chunks) == 1 {
		out = q.chunks[0]
	} else {
		out = make([]byte, 0, q.size)
		for _, c := range q.chunks {
			out = append(out, c...)
		}
	}
	if q.Expected >= 0 && len(out) > q.Expected {
		out = out[:q.Expected]
	}
	return out
}

// Take returns the accumulated data and clears the queue.
func (q *Queue) Take() []byte {
	b := q.Bytes()
	q.Clear()
	return b
}

// Clear drops all data, e.g. on resync.
func (q *Queue) Clear() {
	q.chunks = nil
	q.size = 0
	q.Expected = -1
	q.RandomAccess = false
	q.Pos = -1
	q.Corrupt = false
}
