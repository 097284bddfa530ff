package session

import (
	"encoding/binary"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// recordingService is a Service that records every callback invocation,
// safe for concurrent use by the session's executor and the test
// goroutine asserting on it.
type recordingService struct {
	mu         sync.Mutex
	connected  []SID
	messages   [][]byte
	errors     []error
	closes     []error
	closeCount int
	onMessage  chan []byte
}

func newRecordingService() *recordingService {
	return &recordingService{onMessage: make(chan []byte, 16)}
}

func (r *recordingService) OnConnected(sid SID) {
	r.mu.Lock()
	r.connected = append(r.connected, sid)
	r.mu.Unlock()
}

func (r *recordingService) OnMessage(sid SID, data []byte) {
	cp := append([]byte(nil), data...)
	r.mu.Lock()
	r.messages = append(r.messages, cp)
	r.mu.Unlock()
	r.onMessage <- cp
}

func (r *recordingService) OnError(sid SID, err error) {
	r.mu.Lock()
	r.errors = append(r.errors, err)
	r.mu.Unlock()
}

func (r *recordingService) OnClose(sid SID, err error) {
	r.mu.Lock()
	r.closes = append(r.closes, err)
	r.closeCount++
	r.mu.Unlock()
}

func (r *recordingService) connectedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.connected)
}

func frameMessage(payload string) []byte {
	buf := make([]byte, 4+len(payload))
	binary.LittleEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[4:], payload)
	return buf
}

func newTestSession(t *testing.T, pool *WorkerPool, svc Service) (*Session, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	sess := newSession(1, pool, svc, nil, nil, 0, func(SID) {})
	sess.setConn(server)
	return sess, client
}

func TestSessionEchoSingleMessage(t *testing.T) {
	pool := NewWorkerPool(2)
	defer pool.Stop()

	svc := newRecordingService()
	sess, client := newTestSession(t, pool, svc)
	defer client.Close()

	sess.Start()

	_, err := client.Write(frameMessage("Hello"))
	require.NoError(t, err)

	select {
	case msg := <-svc.onMessage:
		require.Equal(t, "Hello", string(msg))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OnMessage")
	}

	require.Equal(t, 1, svc.connectedCount())
}

func TestSessionOnConnectedPrecedesOnMessage(t *testing.T) {
	pool := NewWorkerPool(2)
	defer pool.Stop()

	svc := newRecordingService()
	sess, client := newTestSession(t, pool, svc)
	defer client.Close()

	sess.Start()
	_, err := client.Write(frameMessage("x"))
	require.NoError(t, err)

	select {
	case <-svc.onMessage:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OnMessage")
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()
	require.Len(t, svc.connected, 1)
	require.Len(t, svc.messages, 1)
}

func TestSessionSplitHeaderReassembly(t *testing.T) {
	pool := NewWorkerPool(2)
	defer pool.Stop()

	svc := newRecordingService()
	sess, client := newTestSession(t, pool, svc)
	defer client.Close()

	sess.Start()

	full := frameMessage("Hello")
	_, err := client.Write(full[:2])
	require.NoError(t, err)
	_, err = client.Write(full[2:])
	require.NoError(t, err)

	select {
	case msg := <-svc.onMessage:
		require.Equal(t, "Hello", string(msg))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OnMessage")
	}
}

func TestSessionTwoMessagesOneChunk(t *testing.T) {
	pool := NewWorkerPool(2)
	defer pool.Stop()

	svc := newRecordingService()
	sess, client := newTestSession(t, pool, svc)
	defer client.Close()

	sess.Start()

	chunk := append(append([]byte(nil), frameMessage("AB")...), frameMessage("CDE")...)
	_, err := client.Write(chunk)
	require.NoError(t, err)

	first := <-svc.onMessage
	second := <-svc.onMessage
	require.Equal(t, "AB", string(first))
	require.Equal(t, "CDE", string(second))
}

func TestSessionEmptyPayload(t *testing.T) {
	pool := NewWorkerPool(2)
	defer pool.Stop()

	svc := newRecordingService()
	sess, client := newTestSession(t, pool, svc)
	defer client.Close()

	sess.Start()
	_, err := client.Write(frameMessage(""))
	require.NoError(t, err)

	select {
	case msg := <-svc.onMessage:
		require.Len(t, msg, 0)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OnMessage")
	}
}

func TestSessionPostBeforeConnectedIsUsageError(t *testing.T) {
	pool := NewWorkerPool(1)
	defer pool.Stop()

	svc := newRecordingService()
	sess, client := newTestSession(t, pool, svc)
	defer client.Close()

	// Never call Start(); state stays NONE.
	sess.Post([]byte("too early"))

	svc.mu.Lock()
	defer svc.mu.Unlock()
	require.Len(t, svc.errors, 1)
	require.ErrorIs(t, svc.errors[0], NotConnected)
}

func TestSessionOnCloseExactlyOnce(t *testing.T) {
	pool := NewWorkerPool(2)
	defer pool.Stop()

	svc := newRecordingService()
	sess, client := newTestSession(t, pool, svc)

	sess.Start()
	client.Close()

	select {
	case <-sess.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for session close")
	}

	// A second, later close attempt must not double-deliver OnClose. The
	// executor runs closures in FIFO order, so once the marker closure runs
	// the second close has been processed.
	sess.PostClose(nil)
	processed := make(chan struct{})
	sess.executor.Post(func() { close(processed) })
	<-processed

	svc.mu.Lock()
	defer svc.mu.Unlock()
	require.Equal(t, 1, svc.closeCount)
}

func TestSessionPostWritesFramedMessage(t *testing.T) {
	pool := NewWorkerPool(2)
	defer pool.Stop()

	svc := newRecordingService()
	sess, client := newTestSession(t, pool, svc)
	defer client.Close()

	sess.Start()
	sess.Post([]byte("ping"))

	header := make([]byte, 4)
	_, err := readFull(client, header)
	require.NoError(t, err)
	length := binary.LittleEndian.Uint32(header)
	require.EqualValues(t, 4, length)

	payload := make([]byte, length)
	_, err = readFull(client, payload)
	require.NoError(t, err)
	require.Equal(t, "ping", string(payload))
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
