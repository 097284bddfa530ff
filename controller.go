package session

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// stopDrainTimeout bounds how long Stop waits for in-flight close
// closures to drain through the worker pool before stopping it outright.
const stopDrainTimeout = 2 * time.Second

// Controller is the facade binding Service/Logging/Monitor/Configuration,
// owning the SessionRegistry and the shared WorkerPool, and driving
// Connect/Accept/Write/Stop. Signal handling and the concrete logging sink
// are external collaborators; see cmd/tcpsessd and cmd/tcpsessc for the
// errgroup + signal.Notify wiring that calls Stop.
type Controller struct {
	workers int

	mu      sync.RWMutex
	service Service
	logging Logging
	monitor Monitor
	config  Configuration

	registry *SessionRegistry

	poolMu sync.Mutex
	pool   *WorkerPool

	listenerMu sync.Mutex
	listener   net.Listener
	accepting  bool

	stopOnce sync.Once
}

// NewController returns a Controller with no collaborators attached and no
// worker pool started yet; the pool is lazily created on first Connect or
// Accept, which ensures workers are running before either does I/O.
func NewController(workers int) *Controller {
	if workers < 1 {
		workers = 1
	}
	return &Controller{
		workers:  workers,
		registry: NewSessionRegistry(),
	}
}

// AttachService binds the callback collaborator, replacing any prior one.
func (c *Controller) AttachService(svc Service) {
	c.mu.Lock()
	c.service = svc
	c.mu.Unlock()
}

// DetachService clears the callback collaborator.
func (c *Controller) DetachService() {
	c.mu.Lock()
	c.service = nil
	c.mu.Unlock()
}

// AttachLogging binds the logging sink, replacing any prior one.
func (c *Controller) AttachLogging(l Logging) {
	c.mu.Lock()
	c.logging = l
	c.mu.Unlock()
}

// DetachLogging clears the logging sink.
func (c *Controller) DetachLogging() {
	c.mu.Lock()
	c.logging = nil
	c.mu.Unlock()
}

// AttachMonitor binds the optional send/receive observer.
func (c *Controller) AttachMonitor(m Monitor) {
	c.mu.Lock()
	c.monitor = m
	c.mu.Unlock()
}

// DetachMonitor clears the optional send/receive observer.
func (c *Controller) DetachMonitor() {
	c.mu.Lock()
	c.monitor = nil
	c.mu.Unlock()
}

// AttachConfiguration binds the address/socket-option provider.
func (c *Controller) AttachConfiguration(cfg Configuration) {
	c.mu.Lock()
	c.config = cfg
	c.mu.Unlock()
}

// DetachConfiguration clears the address/socket-option provider.
func (c *Controller) DetachConfiguration() {
	c.mu.Lock()
	c.config = nil
	c.mu.Unlock()
}

func (c *Controller) collaborators() (Service, Logging, Monitor, Configuration) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.service, c.logging, c.monitor, c.config
}

func (c *Controller) ensurePool() *WorkerPool {
	c.poolMu.Lock()
	defer c.poolMu.Unlock()
	if c.pool == nil {
		c.pool = NewWorkerPool(c.workers)
	}
	return c.pool
}

func (c *Controller) maxMessageSize(cfg Configuration) int {
	if cfg == nil {
		return 0
	}
	if mms := cfg.MMS(); mms != nil {
		return int(*mms)
	}
	return 0
}

// Connect creates a session and asynchronously dials the attached
// Configuration's address, returning the new SID immediately (0 if no
// Configuration is attached). Failure to resolve/connect is reported
// later through OnError/OnClose on the returned session — the only
// synchronous failure this function itself can report is a missing
// Configuration.
func (c *Controller) Connect() SID {
	service, logging, monitor, cfg := c.collaborators()
	if cfg == nil {
		return 0
	}

	pool := c.ensurePool()
	sess := c.registry.Create(pool, service, logging, monitor, c.maxMessageSize(cfg))

	host, port := cfg.GetAddress()
	sess.Resolve(host, port, cfg)

	return sess.GetSID()
}

// Accept lazily opens the listener (applying Reuse/Linger/Nagle/Keepalive
// from the attached Configuration), starts the worker pool, and launches
// the accept loop as a background goroutine. Returns false if a
// Configuration is not attached or the listen fails.
func (c *Controller) Accept() bool {
	service, logging, monitor, cfg := c.collaborators()
	if cfg == nil {
		return false
	}

	c.listenerMu.Lock()
	defer c.listenerMu.Unlock()

	if c.listener == nil {
		host, port := cfg.GetAddress()
		lc := net.ListenConfig{}
		if reuse := cfg.Reuse(); reuse != nil && *reuse {
			lc.Control = controlReuseAddr
		}

		ln, err := lc.Listen(context.Background(), "tcp", net.JoinHostPort(host, port))
		if err != nil {
			c.log(logging, LogError, "listen %s:%s: %v", host, port, err)
			return false
		}
		c.listener = ln
	}

	pool := c.ensurePool()

	if !c.accepting {
		c.accepting = true
		go c.acceptLoop(c.listener, pool, service, logging, monitor, cfg)
	}

	return true
}

func (c *Controller) acceptLoop(ln net.Listener, pool *WorkerPool, service Service, logging Logging, monitor Monitor, cfg Configuration) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if IsOperationAborted(err) {
				return
			}
			c.log(logging, LogError, "accept: %v", errors.Wrap(err, "accept"))
			return
		}

		if err := applySocketOptions(conn, cfg); err != nil {
			c.log(logging, LogWarn, "apply socket options: %v", err)
		}

		sess := c.registry.Create(pool, service, logging, monitor, c.maxMessageSize(cfg))
		sess.setConn(conn)
		sess.Start()
	}
}

// Write looks up sid and, on a hit, posts data for framing and delivery,
// returning whether the session was found. It does not itself check
// connection state; Session.Post enforces that.
func (c *Controller) Write(sid SID, data []byte) bool {
	sess, ok := c.registry.Lookup(sid)
	if !ok {
		return false
	}
	sess.Post(data)
	return true
}

// WriteBuffer is like Write but accepts a pre-framed WriteBuffer.
func (c *Controller) WriteBuffer(sid SID, buf *WriteBuffer) bool {
	sess, ok := c.registry.Lookup(sid)
	if !ok {
		return false
	}
	sess.PostBuffer(buf)
	return true
}

// IsState looks up sid and reports whether it is currently in the given
// state; a missing sid reports false.
func (c *Controller) IsState(sid SID, state State) bool {
	sess, ok := c.registry.Lookup(sid)
	if !ok {
		return false
	}
	return sess.IsState(state)
}

// Stop closes the listener (if open) and every live session, waits for
// the resulting close closures to drain through the worker pool, and
// only then stops the pool itself. PostClose(Aborted) reaches doClose,
// which closes the session's conn unconditionally — that is what actually
// cancels a session's in-flight blocking Read and lets its readLoop
// goroutine return, rather than merely marking the session closed while
// the socket and goroutine leak. This ordering also works around the
// pool's run() loop being able to exit via its stop channel while jobs
// remain queued: by the time pool.Stop() is reached, registry.WaitEmpty
// has either observed every session removed by its doClose or given up
// after stopDrainTimeout.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() {
		c.listenerMu.Lock()
		if c.listener != nil {
			_ = c.listener.Close()
		}
		c.listenerMu.Unlock()

		for _, sid := range c.registry.Snapshot() {
			sess, ok := c.registry.Lookup(sid)
			if !ok {
				continue
			}
			sess.PostClose(Aborted)
		}

		c.registry.WaitEmpty(stopDrainTimeout)

		c.poolMu.Lock()
		pool := c.pool
		c.poolMu.Unlock()
		if pool != nil {
			pool.Stop()
		}
	})
}

func (c *Controller) log(logging Logging, level LogLevel, format string, args ...any) {
	if logging == nil {
		return
	}
	logging.Log(level, fmt.Sprintf(format, args...))
}
