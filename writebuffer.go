package session

import "encoding/binary"

// writeBufferInlineSize is the small-buffer-optimisation size: a WriteBuffer
// starts backed by an inline array and only spills to the heap once a Put
// would overflow it. Mirrors WriteBufferImpl::DEFAULT_BUFFER_SIZE in
// _examples/original_source/network_impl.h.
const writeBufferInlineSize = 12

// reservedPrefixSize is the 4-byte little-endian length prefix every
// WriteBuffer reserves before the caller's first Put.
const reservedPrefixSize = 4

// WriteBuffer is a length-prefixed builder for a single outbound message.
// The first 4 bytes are reserved for the payload length, stamped by
// Commit. Storage starts inline and grows by doubling to a heap slice on
// overflow; the inline-to-heap transition is one-way.
type WriteBuffer struct {
	inline [writeBufferInlineSize]byte
	heap   []byte
	onHeap bool
	offset int
}

// NewWriteBuffer returns a WriteBuffer with its 4-byte prefix reserved and
// the write offset positioned right after it.
func NewWriteBuffer() *WriteBuffer {
	return &WriteBuffer{offset: reservedPrefixSize}
}

func (w *WriteBuffer) storage() []byte {
	if w.onHeap {
		return w.heap
	}
	return w.inline[:]
}

func (w *WriteBuffer) capacity() int {
	return len(w.storage())
}

// Put appends n bytes after the current offset, growing by doubling
// (switching from inline to heap storage on first overflow) if needed.
func (w *WriteBuffer) Put(data []byte) {
	need := w.offset + len(data)
	if need > w.capacity() {
		w.grow(need)
	}

	dst := w.storage()
	copy(dst[w.offset:need], data)
	w.offset = need
}

func (w *WriteBuffer) grow(need int) {
	newCap := w.capacity()
	if newCap == 0 {
		newCap = writeBufferInlineSize
	}
	for newCap < need {
		newCap *= 2
	}

	newBuf := make([]byte, newCap)
	copy(newBuf, w.storage()[:w.offset])
	w.heap = newBuf
	w.onHeap = true
}

// Commit stamps the reserved prefix with the little-endian length of
// everything written since construction (offset - 4).
func (w *WriteBuffer) Commit() {
	length := uint32(w.offset - reservedPrefixSize)
	binary.LittleEndian.PutUint32(w.storage()[:reservedPrefixSize], length)
}

// GetData returns the full framed region, prefix included.
func (w *WriteBuffer) GetData() []byte {
	return w.storage()[:w.offset]
}

// GetLength returns the length of the full framed region, prefix included.
func (w *WriteBuffer) GetLength() int {
	return w.offset
}
