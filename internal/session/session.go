package session

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/danmuck/pusherctl/internal/bus"
	"github.com/danmuck/pusherctl/internal/logging"
	"github.com/danmuck/pusherctl/internal/observability"
	"github.com/danmuck/pusherctl/internal/protocol"
	"github.com/danmuck/pusherctl/internal/router"
)

// ByteStream is the transport capability a session consumes: a
// reliable, ordered application byte stream with deadline-capable
// reads. TCP connections satisfy it directly; other byte sources adapt
// onto it.
type ByteStream interface {
	io.ReadWriteCloser
	SetReadDeadline(t time.Time) error
}

// ErrReadTimeout reports that the peer went silent past ReadTimeout.
var ErrReadTimeout = errors.New("session: read timeout")

// Session drives one exclusive connection lifetime: it feeds incoming
// bytes to its codec, answers pings inline, and hands decoded commands
// to the router (direct) or the event bus (queued). Teardown resets
// the codec so no stale bytes ever reach a later session.
type Session struct {
	transport string
	stream    ByteStream
	cfg       Config
	codec     *protocol.Codec
	rt        *router.Router
	bus       *bus.Bus
	log       zerolog.Logger

	wmu   sync.Mutex
	txSeq uint8
	txBuf []byte

	lastStats protocol.CodecStats
}

// New builds a session over stream. bus may be nil when cfg.Mode is
// ModeDirect.
func New(transport string, stream ByteStream, rt *router.Router, b *bus.Bus, cfg Config) *Session {
	cfg = cfg.withDefaults()
	return &Session{
		transport: transport,
		stream:    stream,
		cfg:       cfg,
		codec:     protocol.NewCodec(cfg.CodecCapacity),
		rt:        rt,
		bus:       b,
		log:       logging.Component("session").With().Str("transport", transport).Logger(),
		txBuf:     make([]byte, protocol.HeaderLen+protocol.MaxPayload),
	}
}

// Run serves the stream until timeout, EOF, transport error, or ctx
// cancellation, then tears the session down. It never returns because
// of malformed wire bytes.
func (s *Session) Run(ctx context.Context) error {
	observability.RecordSessionStart(s.transport)
	s.log.Info().Str("mode", s.cfg.Mode.String()).Msg("session connected")

	cause := "eof"
	defer func() {
		s.codec.Reset()
		s.stream.Close()
		observability.RecordSessionClose(s.transport, cause)
		s.log.Info().Str("cause", cause).Msg("session closed")
	}()

	// Unblock a parked Read when the caller cancels.
	watch := make(chan struct{})
	defer close(watch)
	go func() {
		select {
		case <-ctx.Done():
			s.stream.Close()
		case <-watch:
		}
	}()

	buf := make([]byte, s.cfg.ReadBufSize)
	for {
		if err := ctx.Err(); err != nil {
			cause = "canceled"
			return err
		}
		if err := s.stream.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout)); err != nil {
			if ctx.Err() != nil {
				cause = "canceled"
				return ctx.Err()
			}
			cause = "error"
			return err
		}

		n, err := s.stream.Read(buf)
		if n > 0 {
			s.ingest(ctx, buf[:n])
		}
		if err != nil {
			switch {
			case ctx.Err() != nil:
				cause = "canceled"
				return ctx.Err()
			case isTimeout(err):
				cause = "timeout"
				s.log.Warn().Dur("read_timeout", s.cfg.ReadTimeout).Msg("peer silent past read timeout")
				return ErrReadTimeout
			case errors.Is(err, io.EOF):
				cause = "eof"
				return nil
			default:
				cause = "error"
				return err
			}
		}
	}
}

func (s *Session) ingest(ctx context.Context, data []byte) {
	if err := s.codec.Feed(data); err != nil {
		// Policy: the whole feed is rejected; drain what is decodable
		// and drop the rest of this read.
		s.log.Warn().Int("bytes", len(data)).Msg("codec buffer full, read dropped")
	}
	for pkt := s.codec.Decode(); pkt != nil; pkt = s.codec.Decode() {
		s.handlePacket(ctx, pkt)
	}
	s.flushCodecStats()
}

func (s *Session) flushCodecStats() {
	cur := s.codec.Stats()
	if d := cur.Resyncs - s.lastStats.Resyncs; d > 0 {
		observability.RecordResyncBytes(s.transport, d)
	}
	for i := s.lastStats.Rejected; i < cur.Rejected; i++ {
		observability.RecordFeedRejected(s.transport)
	}
	s.lastStats = cur
}

func (s *Session) handlePacket(ctx context.Context, pkt *protocol.Packet) {
	observability.RecordPacket(s.transport, pkt.Header.Type.String())

	switch pkt.Header.Type {
	case protocol.TypePing:
		// Pure transport housekeeping: answered inline, never routed,
		// never queued.
		if err := s.writePacket(protocol.TypePong, nil); err != nil {
			s.log.Warn().Err(err).Msg("pong write failed")
		}
	case protocol.TypePong:
		s.log.Debug().Uint8("seq", pkt.Header.Seq).Msg("pong received")
	case protocol.TypeCommand, protocol.TypeButton:
		s.handleCommand(ctx, pkt)
	case protocol.TypeResponse:
		s.log.Debug().Uint8("seq", pkt.Header.Seq).Msg("unsolicited response ignored")
	case protocol.TypeError:
		s.log.Warn().Uint8("seq", pkt.Header.Seq).Msg("peer reported protocol error")
	}
}

func (s *Session) handleCommand(ctx context.Context, pkt *protocol.Packet) {
	ic, err := protocol.ParseInnerCommand(pkt.Payload)
	if err != nil {
		s.log.Warn().Int("len", len(pkt.Payload)).Msg("command payload too short")
		return
	}

	switch s.cfg.Mode {
	case ModeDirect:
		reply, code := s.rt.Dispatch(ctx, ic.Cmd, ic.Data)
		if err := s.WriteResponse(code, ic.Cmd, reply); err != nil {
			s.log.Warn().Uint16("cmd", ic.Cmd).Err(err).Msg("response write failed")
		}
	case ModeQueued:
		// The packet was decoded for this event alone; its payload
		// moves into the event, nothing else aliases it.
		ev := bus.NetworkIncoming{Cmd: ic.Cmd, Payload: ic.Data, Reply: s.WriteResponse}
		if err := s.bus.Publish(ctx, ev); err != nil && !errors.Is(err, bus.ErrEventDropped) {
			s.log.Warn().Uint16("cmd", ic.Cmd).Err(err).Msg("event publish failed")
		}
	}
}

// WriteResponse frames and sends one Response packet. It is safe to
// call from the dispatcher goroutine while the read loop runs.
func (s *Session) WriteResponse(code, cmd uint16, data []byte) error {
	return s.writePacket(protocol.TypeResponse, protocol.EncodeInnerResponse(code, cmd, data))
}

func (s *Session) writePacket(typ protocol.PacketType, payload []byte) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	seq := s.txSeq
	s.txSeq++ // wraps mod 256 by construction

	n, err := protocol.Encode(typ, seq, payload, s.txBuf)
	if err != nil {
		return err
	}
	if _, err := s.stream.Write(s.txBuf[:n]); err != nil {
		return err
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
