package session

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteBufferCommitStampsLength(t *testing.T) {
	wb := NewWriteBuffer()
	wb.Put([]byte("Hello"))
	wb.Commit()

	data := wb.GetData()
	require.Len(t, data, 9)
	require.EqualValues(t, 5, binary.LittleEndian.Uint32(data[:4]))
	require.Equal(t, "Hello", string(data[4:]))
}

func TestWriteBufferEmptyPayload(t *testing.T) {
	wb := NewWriteBuffer()
	wb.Commit()

	data := wb.GetData()
	require.Len(t, data, 4)
	require.EqualValues(t, 0, binary.LittleEndian.Uint32(data))
}

func TestWriteBufferSpillsToHeapPastInlineSize(t *testing.T) {
	wb := NewWriteBuffer()
	payload := make([]byte, writeBufferInlineSize*3)
	for i := range payload {
		payload[i] = byte(i)
	}

	wb.Put(payload)
	wb.Commit()

	require.True(t, wb.onHeap)
	data := wb.GetData()
	require.Equal(t, payload, data[reservedPrefixSize:])
	require.EqualValues(t, len(payload), binary.LittleEndian.Uint32(data[:4]))
}
