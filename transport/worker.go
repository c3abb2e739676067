// SPDX-License-Identifier: LGPL-3.0-or-later

// Package transport drives one accepted TCP connection through the
// handshake and then a strictly-ordered read-dispatch-write loop, and
// owns the listening socket that spawns workers.
//
// Grounded on the original's ClientConnection/TCPServer (tcp_server.py)
// for the lifecycle and framing order, and on the Go idiom in
// postalsys-Muti-Metroo's socks5.Server (atomic running flag,
// tracked connections, accept-loop pruning) for how to express it
// without threads.
package transport

import (
	"errors"
	"net"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/mk-samoilov/shadowwire-server/handshake"
	"github.com/mk-samoilov/shadowwire-server/internal/logger"
	"github.com/mk-samoilov/shadowwire-server/internal/metrics"
	"github.com/mk-samoilov/shadowwire-server/session"
	"github.com/mk-samoilov/shadowwire-server/storage"
	"github.com/mk-samoilov/shadowwire-server/wire"
)

// State is the connection worker's lifecycle state.
type State int32

const (
	StateHandshake State = iota
	StateReady
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateHandshake:
		return "handshake"
	case StateReady:
		return "ready"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// readPollInterval bounds how long a single Read blocks before the
// loop re-checks the session's running flag — it is what lets Stop
// unblock a worker that has no traffic pending, mirroring the
// original's socket.timeout-then-continue branch.
const readPollInterval = time.Second

// Worker owns exactly one accepted connection: the handshake, the
// session it produces, and the post-handshake frame loop.
type Worker struct {
	ID    string
	conn  net.Conn
	sess  *session.Session
	store *storage.Store
	log   logger.Logger

	state atomic.Int32
}

// NewWorker builds a worker for a freshly accepted connection. store
// is the shared sealed blob the dispatcher's handlers read and write.
func NewWorker(conn net.Conn, sess *session.Session, store *storage.Store, log logger.Logger) *Worker {
	if log == nil {
		log = logger.GetDefaultLogger()
	}
	w := &Worker{
		ID:    uuid.NewString(),
		conn:  conn,
		sess:  sess,
		store: store,
		log:   log.WithFields(logger.String("conn_id", conn.RemoteAddr().String())),
	}
	w.state.Store(int32(StateHandshake))
	return w
}

// State returns the worker's current lifecycle state.
func (w *Worker) State() State {
	return State(w.state.Load())
}

func (w *Worker) setState(s State) {
	w.state.Store(int32(s))
}

// Run drives the handshake and then the request/response loop until
// the peer disconnects, a fatal transport error occurs, or the
// session is stopped externally (typically by the acceptor during
// shutdown). It always closes conn before returning.
func (w *Worker) Run() {
	metrics.SessionsActive.Inc()
	reason := "fatal_error"
	defer func() {
		w.setState(StateClosing)
		_ = w.conn.Close()
		w.setState(StateClosed)
		metrics.SessionsActive.Dec()
		metrics.SessionsClosed.WithLabelValues(reason).Inc()
	}()

	result, err := handshake.Run(w.conn, w.sess.Pool)
	if err != nil {
		if errors.Is(err, handshake.ErrPeerClosed) {
			w.log.Debug("peer closed before completing handshake")
			reason = "peer_closed"
			return
		}
		w.log.Error("handshake failed", logger.Error(err))
		return
	}
	w.sess.SetKey(result.SessionKey)
	w.setState(StateReady)

	reason = w.serve()
}

// serve is the Ready-state loop: read one frame, decrypt, dispatch,
// encrypt the response, write it back. Requests are handled strictly
// in order — the next frame is never read until the previous response
// has been written.
// serve returns the reason the loop ended, for SessionsClosed: "stopped"
// when the session's running flag was cleared externally, "peer_closed"
// on a clean disconnect, "fatal_error" otherwise.
func (w *Worker) serve() string {
	key, ok := w.sess.Key()
	if !ok {
		w.log.Error("serve called without a session key")
		return "fatal_error"
	}

	for w.sess.Running() {
		if err := w.conn.SetReadDeadline(time.Now().Add(readPollInterval)); err != nil {
			w.log.Error("set read deadline", logger.Error(err))
			return "fatal_error"
		}

		roundTripStart := time.Now()

		frame, err := wire.ReadFrame(w.conn)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if !w.sess.Running() {
				return "stopped"
			}
			w.log.Error("fatal frame read error", logger.Error(err))
			return "fatal_error"
		}
		if frame == nil {
			w.log.Debug("peer disconnected cleanly")
			return "peer_closed"
		}

		transCodePlain, err := key.Open(frame.TransCode)
		if err != nil {
			w.log.Error("trans code decryption failed", logger.Error(err))
			return "fatal_error"
		}
		payloadPlain, err := key.Open(frame.Payload)
		if err != nil {
			w.log.Error("payload decryption failed", logger.Error(err))
			return "fatal_error"
		}
		metrics.SessionMessageSize.WithLabelValues("inbound").Observe(float64(len(payloadPlain)))

		respBytes, respCode := w.sess.Dispatcher.Dispatch(w.store, string(transCodePlain), payloadPlain)
		metrics.SessionMessageSize.WithLabelValues("outbound").Observe(float64(len(respBytes)))

		sealedCode, err := key.Seal([]byte(respCode))
		if err != nil {
			w.log.Error("response code encryption failed", logger.Error(err))
			return "fatal_error"
		}
		sealedPayload, err := key.Seal(respBytes)
		if err != nil {
			w.log.Error("response payload encryption failed", logger.Error(err))
			return "fatal_error"
		}

		if err := wire.WriteFrame(w.conn, &wire.Frame{TransCode: sealedCode, Payload: sealedPayload}); err != nil {
			w.log.Error("fatal frame write error", logger.Error(err))
			return "fatal_error"
		}

		metrics.FrameRoundTrip.Observe(time.Since(roundTripStart).Seconds())
	}
	return "stopped"
}

// Stop clears the session's running flag and unblocks a pending read
// by nudging the connection's deadline into the past; the cleared flag
// makes the loop exit on its next wakeup instead of retrying the read.
func (w *Worker) Stop() {
	w.sess.Stop()
	_ = w.conn.SetDeadline(time.Now())
}
