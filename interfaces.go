package session

// SID is a session identifier: a strictly positive, monotonically
// assigned, opaque integer. 0 is the "none" sentinel returned on a failed
// Connect. Once a session is destroyed its SID is never reused for the
// life of the process (SessionRegistry's counter only ever increases).
type SID uint64

// State is one of the four linear connection states. There is no
// revival: any state transitions to Closed and stays there.
type State int32

const (
	StateNone State = iota
	StateConnecting
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNone:
		return "none"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Service is the embedder-supplied callback contract. The core guarantees
// OnConnected precedes all OnMessage calls, OnMessage calls occur in wire
// order, and OnClose is the last callback delivered for a given session,
// delivered exactly once.
type Service interface {
	OnConnected(sid SID)
	OnMessage(sid SID, data []byte)
	OnError(sid SID, err error)
	OnClose(sid SID, err error)
}

// LogLevel mirrors _examples/original_source/net_interface.h's eLogLevel.
type LogLevel int

const (
	LogTrace LogLevel = iota
	LogDebug
	LogInfo
	LogWarn
	LogError
)

// Logging is the embedder-supplied logging sink. The core calls it from its
// own goroutines (worker pool, per-session dial goroutine, accept loop),
// except that a failed listen in Controller.Accept is logged on the
// caller's goroutine.
type Logging interface {
	Log(level LogLevel, message string)
}

// Monitor is an optional, non-owning observer of send/receive activity.
// It is declared by the original interface (net_interface.h's IMonitor).
// The Session calls OnSend before a flush, OnSent once it completes, and
// OnReceive after each successful socket read; it is inert unless an
// embedder attaches one.
type Monitor interface {
	OnSend()
	OnSent()
	OnReceive()
}

// LingerOption mirrors IConfiguration::_lingeropt_t.
type LingerOption struct {
	OnOff   bool
	Seconds int
}

// Configuration is the embedder-supplied connection target + socket
// option contract. Pointer fields are nil when "do not touch system
// default" — the Go analogue of C++'s std::optional<T> fields in
// _examples/original_source/net_interface.h.
type Configuration interface {
	// GetAddress returns the host and port to Dial (client) or Listen
	// (server) on.
	GetAddress() (host, port string)

	// Reuse, when non-nil and true, requests SO_REUSEADDR be set before
	// Listen; false leaves the listener's default in place.
	Reuse() *bool
	// MMS, when non-nil, is an advisory max-message-size cap used to
	// validate incoming frame lengths against CodeInvalidFrame; the
	// per-session read scratch buffer stays a fixed 1024 bytes regardless.
	MMS() *int32
	// Linger, when non-nil, is applied via net.TCPConn.SetLinger.
	Linger() *LingerOption
	// Nagle, when non-nil and false, disables Nagle's algorithm
	// (TCP_NODELAY) via net.TCPConn.SetNoDelay.
	Nagle() *bool
	// Keepalive, when non-nil, is applied via net.TCPConn.SetKeepAlive.
	Keepalive() *bool
}
