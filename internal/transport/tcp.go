package transport

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/danmuck/pusherctl/internal/bus"
	"github.com/danmuck/pusherctl/internal/logging"
	"github.com/danmuck/pusherctl/internal/protocol"
	"github.com/danmuck/pusherctl/internal/router"
	"github.com/danmuck/pusherctl/internal/session"
)

// TCPServer accepts remote hosts on a plain TCP listener and serves
// exactly one session at a time. When the active session dies the
// server is immediately back in Listening, ready for the next peer,
// with no external intervention.
type TCPServer struct {
	addr    string
	rt      *router.Router
	bus     *bus.Bus
	sessCfg session.Config
	log     zerolog.Logger

	active atomic.Bool
	ln     net.Listener
	ready  chan struct{}
}

func NewTCPServer(addr string, rt *router.Router, b *bus.Bus, sessCfg session.Config) *TCPServer {
	return &TCPServer{
		addr:    addr,
		rt:      rt,
		bus:     b,
		sessCfg: sessCfg,
		log:     logging.Component("tcp"),
		ready:   make(chan struct{}),
	}
}

// Addr reports the bound listen address once ListenAndServe is up, or
// nil if the listen failed.
func (srv *TCPServer) Addr() net.Addr {
	<-srv.ready
	if srv.ln == nil {
		return nil
	}
	return srv.ln.Addr()
}

// ListenAndServe runs the Listening -> Connected -> Closing cycle until
// ctx is cancelled. A second peer dialing while the slot is busy gets
// an Error frame and an immediate close.
func (srv *TCPServer) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", srv.addr)
	if err != nil {
		// Unblock anyone waiting in Addr.
		close(srv.ready)
		return fmt.Errorf("tcp listen on %s: %w", srv.addr, err)
	}
	srv.ln = ln
	close(srv.ready)
	srv.log.Info().Str("addr", ln.Addr().String()).Msg("listening")

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("tcp accept: %w", err)
		}

		if !srv.active.CompareAndSwap(false, true) {
			srv.rejectBusy(conn)
			continue
		}

		srv.log.Info().Str("peer", conn.RemoteAddr().String()).Msg("peer connected")
		go func(c net.Conn) {
			defer srv.active.Store(false)
			s := session.New("tcp", c, srv.rt, srv.bus, srv.sessCfg)
			if err := s.Run(ctx); err != nil && ctx.Err() == nil {
				srv.log.Warn().Err(err).Msg("session ended")
			}
		}(conn)
	}
}

// rejectBusy tells a surplus peer the single session slot is taken.
func (srv *TCPServer) rejectBusy(conn net.Conn) {
	srv.log.Warn().Str("peer", conn.RemoteAddr().String()).Msg("session slot busy, rejecting peer")
	if raw, err := protocol.EncodePacket(protocol.TypeError, 0, nil); err == nil {
		conn.Write(raw)
	}
	conn.Close()
}
