package session

import (
	"net"
	"syscall"
	"time"

	"github.com/pkg/errors"
)

// controlReuseAddr is passed as a net.ListenConfig.Control hook to set
// SO_REUSEADDR before bind, the Go equivalent of the original's
// reuse_address(true).
func controlReuseAddr(_, _ string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}

// applySocketOptions applies every non-absent Configuration option to an
// accepted (server-side) or dialed (client-side) connection: Linger, Nagle
// (TCP_NODELAY), and
// Keepalive. Reuse is applied earlier, at listen time, via
// controlReuseAddr. MMS is a framing-layer hint, not a socket option, and
// is consumed directly by the Session's maxMessageSize.
func applySocketOptions(conn net.Conn, cfg Configuration) error {
	if cfg == nil {
		return nil
	}
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}

	if linger := cfg.Linger(); linger != nil {
		seconds := 0
		if linger.OnOff {
			seconds = linger.Seconds
		} else {
			seconds = -1
		}
		if err := tc.SetLinger(seconds); err != nil {
			return errors.Wrap(err, "set linger")
		}
	}

	if nagle := cfg.Nagle(); nagle != nil {
		// Nagle == false means disable Nagle's algorithm, i.e. enable
		// TCP_NODELAY.
		if err := tc.SetNoDelay(!*nagle); err != nil {
			return errors.Wrap(err, "set nodelay")
		}
	}

	if keepalive := cfg.Keepalive(); keepalive != nil {
		if err := tc.SetKeepAlive(*keepalive); err != nil {
			return errors.Wrap(err, "set keepalive")
		}
		if *keepalive {
			_ = tc.SetKeepAlivePeriod(30 * time.Second)
		}
	}

	return nil
}
