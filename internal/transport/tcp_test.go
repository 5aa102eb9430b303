package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/danmuck/pusherctl/internal/protocol"
	"github.com/danmuck/pusherctl/internal/router"
	"github.com/danmuck/pusherctl/internal/session"
	"github.com/danmuck/pusherctl/internal/testutil/testlog"
)

func echoRouter(t *testing.T) *router.Router {
	t.Helper()
	rt := router.New()
	if err := rt.Register(0x2001, func(_ context.Context, payload []byte) ([]byte, error) {
		return payload, nil
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	rt.Freeze()
	return rt
}

func startTCP(t *testing.T, sessCfg session.Config) (*TCPServer, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	srv := NewTCPServer("127.0.0.1:0", echoRouter(t), nil, sessCfg)
	go srv.ListenAndServe(ctx)
	return srv, cancel
}

func roundTrip(t *testing.T, conn net.Conn, cmd uint16, data []byte) protocol.InnerResponse {
	t.Helper()
	raw, err := protocol.EncodePacket(protocol.TypeCommand, 1, protocol.EncodeInnerCommand(cmd, data))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := conn.Write(raw); err != nil {
		t.Fatalf("write: %v", err)
	}

	c := protocol.NewCodec(0)
	buf := make([]byte, 256)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if pkt := c.Decode(); pkt != nil {
			if pkt.Header.Type != protocol.TypeResponse {
				t.Fatalf("expected response, got %s", pkt.Header.Type)
			}
			ir, err := protocol.ParseInnerResponse(pkt.Payload)
			if err != nil {
				t.Fatalf("parse response: %v", err)
			}
			return ir
		}
		n, err := conn.Read(buf)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if err := c.Feed(buf[:n]); err != nil {
			t.Fatalf("feed: %v", err)
		}
	}
}

func TestTCPServerServesCommandRoundTrip(t *testing.T) {
	testlog.Start(t)
	srv, cancel := startTCP(t, session.Config{ReadTimeout: 2 * time.Second, Mode: session.ModeDirect})
	defer cancel()

	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	ir := roundTrip(t, conn, 0x2001, []byte{0xCA, 0xFE})
	if ir.Code != router.CodeOK || ir.Cmd != 0x2001 {
		t.Fatalf("unexpected response: %+v", ir)
	}
	if string(ir.Data) != "\xca\xfe" {
		t.Fatalf("echo mismatch: % X", ir.Data)
	}
}

func TestTCPServerRecoversAfterReadTimeout(t *testing.T) {
	testlog.Start(t)
	srv, cancel := startTCP(t, session.Config{ReadTimeout: 100 * time.Millisecond, Mode: session.ModeDirect})
	defer cancel()

	// First peer goes silent and must be evicted by the read timeout.
	first, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("dial first: %v", err)
	}
	defer first.Close()

	// Give the server time to reap the silent session.
	time.Sleep(400 * time.Millisecond)

	// The listener must be serving again with no manual restart.
	second, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("dial second: %v", err)
	}
	defer second.Close()

	ir := roundTrip(t, second, 0x2001, []byte{0x01})
	if ir.Code != router.CodeOK {
		t.Fatalf("second session not served: %+v", ir)
	}
}

func TestAddrUnblocksWhenListenFails(t *testing.T) {
	testlog.Start(t)
	srv := NewTCPServer("127.0.0.1:not-a-port", echoRouter(t), nil, session.Config{})
	if err := srv.ListenAndServe(context.Background()); err == nil {
		t.Fatalf("expected listen error")
	}

	got := make(chan net.Addr, 1)
	go func() { got <- srv.Addr() }()
	select {
	case addr := <-got:
		if addr != nil {
			t.Fatalf("addr got=%v want=nil", addr)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Addr blocked after failed listen")
	}
}

func TestTCPServerRejectsSecondConcurrentPeer(t *testing.T) {
	testlog.Start(t)
	srv, cancel := startTCP(t, session.Config{ReadTimeout: 2 * time.Second, Mode: session.ModeDirect})
	defer cancel()

	first, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("dial first: %v", err)
	}
	defer first.Close()

	// Prove the slot is occupied before the second dial.
	if ir := roundTrip(t, first, 0x2001, nil); ir.Code != router.CodeOK {
		t.Fatalf("first session not live: %+v", ir)
	}

	second, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("dial second: %v", err)
	}
	defer second.Close()

	c := protocol.NewCodec(0)
	buf := make([]byte, 64)
	second.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if pkt := c.Decode(); pkt != nil {
			if pkt.Header.Type != protocol.TypeError {
				t.Fatalf("expected busy error frame, got %s", pkt.Header.Type)
			}
			break
		}
		n, err := second.Read(buf)
		if err != nil {
			t.Fatalf("read busy frame: %v", err)
		}
		if err := c.Feed(buf[:n]); err != nil {
			t.Fatalf("feed: %v", err)
		}
	}

	// The first session keeps working.
	if ir := roundTrip(t, first, 0x2001, []byte{0x99}); ir.Code != router.CodeOK {
		t.Fatalf("first session disturbed: %+v", ir)
	}
}
