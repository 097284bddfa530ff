package session

// BufferType identifies which half of a WriteQueue currently holds
// transmissible bytes.
type BufferType int

const (
	// BufferNone means neither half of the queue has bytes to send.
	BufferNone BufferType = iota
	// BufferCurrent means only the current (append) buffer has bytes;
	// the caller must Switch before writing.
	BufferCurrent
	// BufferWriting means the writing buffer already has bytes queued
	// for (or mid-) transmission.
	BufferWriting
)

// WriteQueue is a double-buffered outbound queue: one buffer accepts
// appends (current) while the other is handed to the socket (writing).
// Switch exchanges their roles and is only valid when writing is empty;
// the Session is responsible for enforcing that precondition, not the
// queue itself.
type WriteQueue struct {
	current *StreamBuffer
	writing *StreamBuffer
}

// NewWriteQueue returns an empty WriteQueue with both halves initialised.
func NewWriteQueue() *WriteQueue {
	return &WriteQueue{
		current: NewStreamBuffer(defaultStreamBufferCapacity),
		writing: NewStreamBuffer(defaultStreamBufferCapacity),
	}
}

// Put appends data to the current buffer. Never blocks.
func (q *WriteQueue) Put(data []byte) {
	q.current.Write(data)
}

// Switch exchanges the roles of current and writing. The caller must
// ensure writing is empty first (GetTransmissibleBufferType() != Writing,
// or simply that the previous flush has fully drained it).
func (q *WriteQueue) Switch() {
	q.current, q.writing = q.writing, q.current
}

// Consume advances the writing buffer by n bytes, marking them sent.
func (q *WriteQueue) Consume(n int) {
	q.writing.Consume(n)
}

// GetTransmissibleBufferType reports which half (if any) still has bytes
// to send, driving the Session's flush loop.
func (q *WriteQueue) GetTransmissibleBufferType() BufferType {
	if q.writing.GetLength() > 0 {
		return BufferWriting
	}
	if q.current.GetLength() > 0 {
		return BufferCurrent
	}
	return BufferNone
}

// WritingSegments returns the writing buffer's bytes as up to two
// zero-copy segments, suitable for a scatter-gather (vectorised) write.
func (q *WriteQueue) WritingSegments() (first, second []byte) {
	return q.writing.Segments(q.writing.GetLength())
}
