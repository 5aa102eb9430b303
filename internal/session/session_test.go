package session

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/danmuck/pusherctl/internal/bus"
	"github.com/danmuck/pusherctl/internal/protocol"
	"github.com/danmuck/pusherctl/internal/router"
	"github.com/danmuck/pusherctl/internal/testutil/testlog"
)

func testRouter(t *testing.T, spy *int) *router.Router {
	t.Helper()
	rt := router.New()
	if err := rt.Register(0x2001, func(_ context.Context, payload []byte) ([]byte, error) {
		if spy != nil {
			*spy++
		}
		return append([]byte{0xEC, 0x40}, payload...), nil
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	rt.Freeze()
	return rt
}

func startSession(t *testing.T, cfg Config, rt *router.Router, b *bus.Bus) (net.Conn, chan error) {
	t.Helper()
	peer, local := net.Pipe()
	s := New("test", local, rt, b, cfg)
	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()
	return peer, done
}

func encodeCommand(t *testing.T, seq uint8, cmd uint16, data []byte) []byte {
	t.Helper()
	raw, err := protocol.EncodePacket(protocol.TypeCommand, seq, protocol.EncodeInnerCommand(cmd, data))
	if err != nil {
		t.Fatalf("encode command: %v", err)
	}
	return raw
}

func readPacket(t *testing.T, conn net.Conn) *protocol.Packet {
	t.Helper()
	c := protocol.NewCodec(0)
	buf := make([]byte, 256)
	conn.SetReadDeadline(time.Now().Add(time.Second))
	for {
		if pkt := c.Decode(); pkt != nil {
			return pkt
		}
		n, err := conn.Read(buf)
		if err != nil {
			t.Fatalf("read reply: %v", err)
		}
		if err := c.Feed(buf[:n]); err != nil {
			t.Fatalf("feed reply: %v", err)
		}
	}
}

func TestPingAnsweredInlineAndNeverRouted(t *testing.T) {
	testlog.Start(t)
	invoked := 0
	peer, done := startSession(t, Config{ReadTimeout: time.Second}, testRouter(t, &invoked), nil)
	defer peer.Close()

	ping, err := protocol.EncodePacket(protocol.TypePing, 42, nil)
	if err != nil {
		t.Fatalf("encode ping: %v", err)
	}
	if _, err := peer.Write(ping); err != nil {
		t.Fatalf("write ping: %v", err)
	}

	pkt := readPacket(t, peer)
	if pkt.Header.Type != protocol.TypePong {
		t.Fatalf("expected pong, got %s", pkt.Header.Type)
	}

	peer.Close()
	<-done
	if invoked != 0 {
		t.Fatalf("ping reached the router")
	}
}

func TestDirectDispatchCommandGetsResponse(t *testing.T) {
	testlog.Start(t)
	peer, done := startSession(t, Config{ReadTimeout: time.Second, Mode: ModeDirect}, testRouter(t, nil), nil)
	defer peer.Close()

	if _, err := peer.Write(encodeCommand(t, 1, 0x2001, []byte{0x07})); err != nil {
		t.Fatalf("write command: %v", err)
	}

	pkt := readPacket(t, peer)
	if pkt.Header.Type != protocol.TypeResponse {
		t.Fatalf("expected response, got %s", pkt.Header.Type)
	}
	ir, err := protocol.ParseInnerResponse(pkt.Payload)
	if err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if ir.Code != router.CodeOK || ir.Cmd != 0x2001 {
		t.Fatalf("response header mismatch: %+v", ir)
	}
	if !bytes.Equal(ir.Data, []byte{0xEC, 0x40, 0x07}) {
		t.Fatalf("response data mismatch: % X", ir.Data)
	}

	peer.Close()
	<-done
}

func TestDirectDispatchUnknownCommandResponseCode(t *testing.T) {
	testlog.Start(t)
	peer, done := startSession(t, Config{ReadTimeout: time.Second, Mode: ModeDirect}, testRouter(t, nil), nil)
	defer peer.Close()

	if _, err := peer.Write(encodeCommand(t, 1, 0xFFFF, nil)); err != nil {
		t.Fatalf("write command: %v", err)
	}
	ir, err := protocol.ParseInnerResponse(readPacket(t, peer).Payload)
	if err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if ir.Code != router.CodeUnknownCmd || ir.Cmd != 0xFFFF {
		t.Fatalf("unexpected response: %+v", ir)
	}

	peer.Close()
	<-done
}

func TestQueuedDispatchFlowsThroughBus(t *testing.T) {
	testlog.Start(t)
	rt := testRouter(t, nil)
	b := bus.New(8, bus.PolicyBlock)
	d := bus.NewDispatcher(b, rt)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	peer, done := startSession(t, Config{ReadTimeout: time.Second, Mode: ModeQueued}, rt, b)
	defer peer.Close()

	if _, err := peer.Write(encodeCommand(t, 1, 0x2001, []byte{0x11})); err != nil {
		t.Fatalf("write command: %v", err)
	}

	ir, err := protocol.ParseInnerResponse(readPacket(t, peer).Payload)
	if err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if ir.Code != router.CodeOK || !bytes.Equal(ir.Data, []byte{0xEC, 0x40, 0x11}) {
		t.Fatalf("unexpected queued response: %+v", ir)
	}

	peer.Close()
	<-done
}

func TestReadTimeoutTearsSessionDown(t *testing.T) {
	testlog.Start(t)
	peer, done := startSession(t, Config{ReadTimeout: 50 * time.Millisecond}, testRouter(t, nil), nil)
	defer peer.Close()

	select {
	case err := <-done:
		if !errors.Is(err, ErrReadTimeout) {
			t.Fatalf("expected ErrReadTimeout, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("session survived silence")
	}
}

func TestSessionSurvivesGarbageBetweenFrames(t *testing.T) {
	testlog.Start(t)
	peer, done := startSession(t, Config{ReadTimeout: time.Second, Mode: ModeDirect}, testRouter(t, nil), nil)
	defer peer.Close()

	if _, err := peer.Write([]byte{0xDE, 0xAD, 0xAA, 0x00, 0x55}); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	if _, err := peer.Write(encodeCommand(t, 2, 0x2001, nil)); err != nil {
		t.Fatalf("write command: %v", err)
	}

	ir, err := protocol.ParseInnerResponse(readPacket(t, peer).Payload)
	if err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if ir.Code != router.CodeOK {
		t.Fatalf("command behind garbage not served: %+v", ir)
	}

	peer.Close()
	<-done
}

func TestContextCancelStopsSession(t *testing.T) {
	testlog.Start(t)
	peer, local := net.Pipe()
	defer peer.Close()
	s := New("test", local, testRouter(t, nil), nil, Config{ReadTimeout: 10 * time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("session ignored cancellation")
	}
}

func TestResponseSeqIncrementsPerSession(t *testing.T) {
	testlog.Start(t)
	peer, done := startSession(t, Config{ReadTimeout: time.Second, Mode: ModeDirect}, testRouter(t, nil), nil)
	defer peer.Close()

	for want := uint8(0); want < 3; want++ {
		if _, err := peer.Write(encodeCommand(t, want, 0x2001, nil)); err != nil {
			t.Fatalf("write command: %v", err)
		}
		pkt := readPacket(t, peer)
		if pkt.Header.Seq != want {
			t.Fatalf("tx seq got=%d want=%d", pkt.Header.Seq, want)
		}
	}

	peer.Close()
	<-done
}
