// SPDX-License-Identifier: LGPL-3.0-or-later

package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mk-samoilov/shadowwire-server/crypto/dhpool"
	"github.com/mk-samoilov/shadowwire-server/dispatch"
	"github.com/mk-samoilov/shadowwire-server/internal/logger"
	"github.com/mk-samoilov/shadowwire-server/session"
	"github.com/mk-samoilov/shadowwire-server/storage"
)

// acceptTimeout is how long the acceptor blocks in Accept before
// checking the running flag again — matches the original's 1-second
// socket timeout on the listening socket.
const acceptTimeout = time.Second

// shutdownJoinTimeout caps how long Stop waits for every worker to
// exit before giving up on a graceful join.
const shutdownJoinTimeout = 5 * time.Second

// Config configures an Acceptor.
type Config struct {
	// Address is the host:port to bind, e.g. "0.0.0.0:5477".
	Address string
	// MaxConnections limits concurrently tracked workers; 0 means
	// unlimited. A connection accepted over the limit is closed
	// immediately.
	MaxConnections int
}

// Acceptor binds a listening TCP socket, spawns a Worker per accepted
// connection, and tracks them so Stop can signal and join every one.
//
// Grounded on postalsys-Muti-Metroo's socks5.Server for the atomic
// running flag / sync.Once stop / tracked-connection shape, and on
// the original TCPServer.main_loop for the accept-timeout-and-prune
// cadence and the 5-second shutdown join cap.
type Acceptor struct {
	cfg        Config
	pool       *dhpool.Pool
	dispatcher *dispatch.Dispatcher
	store      *storage.Store
	log        logger.Logger

	listener *net.TCPListener

	mu      sync.Mutex
	workers map[*Worker]*session.Session

	running  atomic.Bool
	stopOnce sync.Once
	group    errgroup.Group
}

// New builds an Acceptor. pool, dispatcher, and store are shared
// across every worker it spawns.
func New(cfg Config, pool *dhpool.Pool, dispatcher *dispatch.Dispatcher, store *storage.Store, log logger.Logger) *Acceptor {
	if log == nil {
		log = logger.GetDefaultLogger()
	}
	return &Acceptor{
		cfg:        cfg,
		pool:       pool,
		dispatcher: dispatcher,
		store:      store,
		log:        log,
		workers:    make(map[*Worker]*session.Session),
	}
}

// Start binds the listening socket with address reuse and spawns the
// accept loop in the background. It returns once the socket is bound.
func (a *Acceptor) Start() error {
	if a.running.Load() {
		return fmt.Errorf("transport: acceptor already running")
	}

	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}

	ln, err := lc.Listen(context.Background(), "tcp", a.cfg.Address)
	if err != nil {
		return fmt.Errorf("transport: listen: %w", err)
	}
	tcpLn, ok := ln.(*net.TCPListener)
	if !ok {
		_ = ln.Close()
		return fmt.Errorf("transport: expected a TCP listener")
	}

	a.listener = tcpLn
	a.running.Store(true)

	go a.acceptLoop()
	return nil
}

// Addr returns the bound listening address.
func (a *Acceptor) Addr() net.Addr {
	if a.listener == nil {
		return nil
	}
	return a.listener.Addr()
}

// ConnectionCount returns the number of currently tracked workers.
func (a *Acceptor) ConnectionCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.workers)
}

func (a *Acceptor) acceptLoop() {
	for {
		if !a.running.Load() {
			return
		}

		a.pruneClosed()

		if err := a.listener.SetDeadline(time.Now().Add(acceptTimeout)); err != nil {
			return
		}
		conn, err := a.listener.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if !a.running.Load() {
				return
			}
			a.log.Error("accept failed", logger.Error(err))
			continue
		}

		if a.cfg.MaxConnections > 0 && a.ConnectionCount() >= a.cfg.MaxConnections {
			_ = conn.Close()
			continue
		}

		a.spawn(conn)
	}
}

func (a *Acceptor) spawn(conn net.Conn) {
	sess := session.New(conn.RemoteAddr().String(), a.pool, a.dispatcher)
	worker := NewWorker(conn, sess, a.store, a.log)

	a.mu.Lock()
	a.workers[worker] = sess
	a.mu.Unlock()

	a.log.Info("client connected", logger.String("conn_id", worker.ID), logger.String("remote", sess.PeerAddr))

	a.group.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("transport: worker panic: %v", r)
				a.log.Error("worker panic recovered", logger.Any("recover", r))
			}
		}()
		worker.Run()
		return nil
	})
}

// pruneClosed drops tracked workers that have already reached
// StateClosed, mirroring the original's "clients = [c for c in
// clients if c.running]" filter.
func (a *Acceptor) pruneClosed() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for w := range a.workers {
		if w.State() == StateClosed {
			delete(a.workers, w)
		}
	}
}

// Stop signals every tracked worker to stop, closes the listening
// socket, and waits up to shutdownJoinTimeout for all workers to
// exit. It is idempotent.
func (a *Acceptor) Stop() error {
	var err error
	a.stopOnce.Do(func() {
		a.running.Store(false)

		a.mu.Lock()
		for w := range a.workers {
			w.Stop()
		}
		a.mu.Unlock()

		if a.listener != nil {
			if cerr := a.listener.Close(); cerr != nil {
				err = cerr
			}
		}

		done := make(chan error, 1)
		go func() { done <- a.group.Wait() }()

		select {
		case waitErr := <-done:
			if waitErr != nil {
				a.log.Error("worker group exited with error", logger.Error(waitErr))
			}
		case <-time.After(shutdownJoinTimeout):
			a.log.Warn("shutdown timed out waiting for workers to exit")
		}
	})
	return err
}
