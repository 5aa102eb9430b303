package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/danmuck/pusherctl/internal/bus"
	"github.com/danmuck/pusherctl/internal/logging"
	"github.com/danmuck/pusherctl/internal/router"
	"github.com/danmuck/pusherctl/internal/session"
)

// WSServer exposes the machine link over WebSocket. Binary messages
// carry the identical framed byte stream as TCP; every connection runs
// the same session loop in queued mode, so one dispatcher serves all
// WebSocket producers uniformly.
type WSServer struct {
	rt       *router.Router
	bus      *bus.Bus
	sessCfg  session.Config
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func NewWSServer(rt *router.Router, b *bus.Bus, sessCfg session.Config) *WSServer {
	sessCfg.Mode = session.ModeQueued
	return &WSServer{
		rt:      rt,
		bus:     b,
		sessCfg: sessCfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		log: logging.Component("ws"),
	}
}

// Handler upgrades an HTTP request and serves the link until the peer
// disconnects or the session times out.
func (srv *WSServer) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := srv.upgrader.Upgrade(w, r, nil)
		if err != nil {
			srv.log.Warn().Err(err).Msg("upgrade failed")
			return
		}
		srv.log.Info().Str("peer", conn.RemoteAddr().String()).Msg("ws peer connected")

		s := session.New("ws", &wsStream{conn: conn}, srv.rt, srv.bus, srv.sessCfg)
		if err := s.Run(r.Context()); err != nil && r.Context().Err() == nil {
			srv.log.Warn().Err(err).Msg("ws session ended")
		}
	})
}

// ListenAndServe mounts the link handler on /link and serves until ctx
// is cancelled.
func (srv *WSServer) ListenAndServe(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/link", srv.Handler())

	httpSrv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutdownCtx)
	}()

	srv.log.Info().Str("addr", addr).Msg("ws listening")
	if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// wsStream adapts a WebSocket connection onto the session ByteStream
// capability: successive binary messages are exposed as one continuous
// application byte stream.
type wsStream struct {
	conn *websocket.Conn
	cur  io.Reader
}

func (s *wsStream) Read(p []byte) (int, error) {
	for {
		if s.cur == nil {
			_, r, err := s.conn.NextReader()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return 0, io.EOF
				}
				return 0, err
			}
			s.cur = r
		}
		n, err := s.cur.Read(p)
		if errors.Is(err, io.EOF) {
			s.cur = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (s *wsStream) Write(p []byte) (int, error) {
	if err := s.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *wsStream) SetReadDeadline(t time.Time) error {
	return s.conn.SetReadDeadline(t)
}

func (s *wsStream) Close() error {
	return s.conn.Close()
}
