package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/sagernet/sing/common/bufio"
)

const readScratchSize = 1024

// defaultMaxMessageSize is a tighter cap than INT32_MAX, used when no
// Configuration.MMS override is attached.
const defaultMaxMessageSize = 64 << 20 // 64 MiB

const (
	writeIdle int32 = iota
	writeWriting
)

// Session is the per-connection state machine: resolve -> connect ->
// connected -> closed. It owns the socket, the inbound StreamBuffer, the
// message framer loop, and the outbound WriteQueue. OnConnected, OnMessage
// and OnClose are delivered strictly serialised through its serialExecutor;
// OnError for a Post before Connected, or for a failed dial, is delivered
// on the posting or dialing goroutine.
type Session struct {
	id       SID
	pool     *WorkerPool
	executor *serialExecutor

	service Service
	logging Logging
	monitor Monitor

	state atomic.Int32

	conn   net.Conn
	dialer *net.Dialer

	inbound           *StreamBuffer
	writeQueue        *WriteQueue
	writeState        int32
	writeInFlight     atomic.Int32
	writeInFlightPeak atomic.Int32

	maxMessageSize int

	destroy func(SID)

	closeOnce sync.Once
	closed    chan struct{}

	dialCancel context.CancelFunc
}

func newSession(sid SID, pool *WorkerPool, service Service, logging Logging, monitor Monitor, maxMessageSize int, destroy func(SID)) *Session {
	if maxMessageSize <= 0 {
		maxMessageSize = defaultMaxMessageSize
	}
	s := &Session{
		id:             sid,
		pool:           pool,
		service:        service,
		logging:        logging,
		monitor:        monitor,
		inbound:        NewStreamBuffer(defaultStreamBufferCapacity),
		writeQueue:     NewWriteQueue(),
		maxMessageSize: maxMessageSize,
		destroy:        destroy,
		closed:         make(chan struct{}),
	}
	s.executor = newSerialExecutor(pool)
	return s
}

// GetSID returns this session's identifier. The id is immutable for the
// life of the Session; once closed it is also no longer reachable via
// SessionRegistry.Lookup.
func (s *Session) GetSID() SID { return s.id }

// IsState reports the current connection state. Safe to call from any
// goroutine, including a client polling for Connected right after
// Connect: the read is a relaxed atomic load.
func (s *Session) IsState(want State) bool {
	return State(s.state.Load()) == want
}

// Done is closed once the session has fully transitioned to Closed and
// OnClose has returned.
func (s *Session) Done() <-chan struct{} { return s.closed }

func (s *Session) log(level LogLevel, format string, args ...any) {
	if s.logging == nil {
		return
	}
	s.logging.Log(level, fmt.Sprintf(format, args...))
}

// setConn attaches an already-accepted (server-side) socket. It does not
// change state; the Start that follows moves the session straight to
// Connected, skipping Connecting.
func (s *Session) setConn(conn net.Conn) {
	s.conn = conn
}

// Resolve begins the client connect path: state -> Connecting, then
// asynchronously resolves+dials host:port. On success, any non-absent
// socket options from cfg are applied before the session transitions to
// Start(); on failure OnError fires and the session closes. cfg may be
// nil, in which case no options are applied.
func (s *Session) Resolve(host, port string, cfg Configuration) {
	s.state.Store(int32(StateConnecting))

	ctx, cancel := context.WithCancel(context.Background())
	s.dialCancel = cancel
	s.dialer = &net.Dialer{}

	go func() {
		conn, err := s.dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, port))
		if err != nil {
			s.log(LogDebug, "dial %s:%s failed: %v", host, port, err)
			s.failConnect(err)
			return
		}
		if err := applySocketOptions(conn, cfg); err != nil {
			s.log(LogWarn, "apply socket options: %v", err)
		}
		s.conn = conn
		s.Start()
	}()
}

func (s *Session) failConnect(err error) {
	wrapped := s.classifyConnectErr(err)
	if s.service != nil {
		s.service.OnError(s.id, wrapped)
	}
	s.executor.Post(func() {
		s.doClose(wrapped)
	})
}

func (s *Session) classifyConnectErr(err error) error {
	if errors.Is(err, context.Canceled) {
		return Aborted
	}
	return wrapTransport(err, "connect")
}

// Start transitions the session to Connected and, on the session
// executor, kicks off the read loop followed by OnConnected — guaranteeing
// OnConnected is observed on the same serial context that subsequently
// delivers OnMessage.
func (s *Session) Start() {
	s.state.Store(int32(StateConnected))

	s.executor.Post(func() {
		go s.readLoop()
	})
	s.executor.Post(func() {
		if s.service != nil {
			s.service.OnConnected(s.id)
		}
	})
}

// Post enqueues raw bytes to be framed and sent. If the session is not
// Connected this is a usage error: OnError(NotConnected) fires
// synchronously and nothing is queued.
func (s *Session) Post(data []byte) {
	if !s.IsState(StateConnected) {
		if s.service != nil {
			s.service.OnError(s.id, NotConnected)
		}
		return
	}

	wb := NewWriteBuffer()
	wb.Put(data)
	wb.Commit()
	payload := wb.GetData()

	s.executor.Post(func() {
		s.writeLocked(payload)
	})
}

// PostBuffer is like Post but takes an already-framed WriteBuffer (the
// caller must have called Commit).
func (s *Session) PostBuffer(buf *WriteBuffer) {
	if !s.IsState(StateConnected) {
		if s.service != nil {
			s.service.OnError(s.id, NotConnected)
		}
		return
	}

	payload := append([]byte(nil), buf.GetData()...)
	s.executor.Post(func() {
		s.writeLocked(payload)
	})
}

// PostClose enqueues an orderly close so it never races in-flight I/O
// handlers for this session.
func (s *Session) PostClose(err error) {
	s.executor.Post(func() {
		s.doClose(err)
	})
}

func (s *Session) writeLocked(framed []byte) {
	s.writeQueue.Put(framed)
	if s.writeState == writeIdle {
		s.flushWrites()
	}
}

// flushWrites drains the WriteQueue to the socket. It collapses the
// asio HandleWrite completion-callback recursion into a loop: conn.Write
// blocks to completion on this (pool) goroutine, so there is never more
// than one logical write in flight for this session.
func (s *Session) flushWrites() {
	s.writeQueue.Switch()
	s.writeState = writeWriting

	for {
		if s.monitor != nil {
			s.monitor.OnSend()
		}

		n, err := s.writeOnce()
		s.writeQueue.Consume(n)

		if err != nil {
			s.doClose(wrapTransport(err, "write"))
			return
		}

		if s.monitor != nil {
			s.monitor.OnSent()
		}

		s.writeState = writeIdle

		switch s.writeQueue.GetTransmissibleBufferType() {
		case BufferNone:
			return
		case BufferCurrent:
			s.writeQueue.Switch()
		}
		s.writeState = writeWriting
	}
}

// writeOnce performs one socket write of the writing buffer's full
// contents, using sagernet/sing's vectorised writer when the connection
// supports scatter-gather writes and the ring region wraps into two
// segments.
func (s *Session) writeOnce() (int, error) {
	s.writeInFlight.Add(1)
	defer s.writeInFlight.Add(-1)
	if v := s.writeInFlight.Load(); v > s.writeInFlightPeak.Load() {
		s.writeInFlightPeak.Store(v)
	}

	first, second := s.writeQueue.WritingSegments()
	if len(first) == 0 && len(second) == 0 {
		return 0, nil
	}
	if len(second) == 0 {
		return s.conn.Write(first)
	}
	if bw, ok := bufio.CreateVectorisedWriter(s.conn); ok {
		return bufio.WriteVectorised(bw, [][]byte{first, second})
	}

	combined := make([]byte, len(first)+len(second))
	n := copy(combined, first)
	copy(combined[n:], second)
	return s.conn.Write(combined)
}

// readLoop is the session's dedicated inbound goroutine: one blocking
// Read at a time, with processing of each chunk (the framer loop and
// resulting OnMessage calls) handed to the serial executor and awaited
// before the next Read is issued -- the Go analogue of "never more than
// one async_read_some in flight, framer always returns to it."
func (s *Session) readLoop() {
	scratch := make([]byte, readScratchSize)
	for {
		n, err := s.conn.Read(scratch)

		var chunk []byte
		if n > 0 {
			chunk = append([]byte(nil), scratch[:n]...)
		}

		done := make(chan struct{})
		s.executor.Post(func() {
			s.handleReadCompletion(chunk, err)
			close(done)
		})
		<-done

		if err != nil {
			return
		}
	}
}

func (s *Session) handleReadCompletion(chunk []byte, readErr error) {
	if readErr != nil {
		s.doClose(s.classifyReadErr(readErr))
		return
	}

	if s.monitor != nil {
		s.monitor.OnReceive()
	}

	s.inbound.Write(chunk)

	for {
		if s.inbound.GetLength() < 4 {
			return
		}

		length, err := s.inbound.PeekUint32LE()
		if err != nil {
			return
		}
		l := int32(length)
		if l < 0 || int(l) > s.maxMessageSize {
			s.doClose(newError(CodeInvalidFrame, fmt.Errorf("frame length %d exceeds limit %d", l, s.maxMessageSize)))
			return
		}

		if s.inbound.GetLength() < 4+int(l) {
			return
		}

		frame := make([]byte, 4+int(l))
		if err := s.inbound.ReadAndConsume(frame, len(frame)); err != nil {
			// Unreachable given the length check above; defensive only.
			s.doClose(newError(CodeInvalidFrame, err))
			return
		}
		msg := frame[4:]

		if s.service != nil {
			s.service.OnMessage(s.id, msg)
		}
	}
}

func (s *Session) classifyReadErr(err error) error {
	if IsOperationAborted(err) {
		return Aborted
	}
	return wrapTransport(err, "read")
}

// doClose runs the orderly teardown sequence exactly once: best-effort
// shutdown when no upstream error drove the close, unconditional socket
// close, OnClose, registry removal, then the final state transition.
// Closing here is what actually unblocks a readLoop parked in a blocking
// Read — including when this doClose was reached via Controller.Stop's
// PostClose(Aborted) rather than via a read/write error the socket itself
// produced, so the close must never be skipped just because the error is
// operation_aborted: net.Conn.Close is safe to call even if something else
// raced it closed first.
func (s *Session) doClose(err error) {
	s.closeOnce.Do(func() {
		if s.dialCancel != nil {
			s.dialCancel()
		}

		if err == nil && s.conn != nil {
			shutdownBoth(s.conn)
		}
		if s.conn != nil {
			_ = s.conn.Close()
		}

		if s.service != nil {
			s.service.OnClose(s.id, err)
		}
		if s.destroy != nil {
			s.destroy(s.id)
		}

		s.state.Store(int32(StateClosed))
		close(s.closed)
	})
}

// shutdownBoth best-effort shuts down both directions of a TCP connection
// without releasing the file descriptor, the Go analogue of
// socket.shutdown(shutdown_both).
func shutdownBoth(conn net.Conn) {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	_ = tc.CloseRead()
	_ = tc.CloseWrite()
}
