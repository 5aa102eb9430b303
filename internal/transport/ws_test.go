package transport

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/danmuck/pusherctl/internal/bus"
	"github.com/danmuck/pusherctl/internal/protocol"
	"github.com/danmuck/pusherctl/internal/router"
	"github.com/danmuck/pusherctl/internal/session"
	"github.com/danmuck/pusherctl/internal/testutil/testlog"
)

func TestWSByteSourceFlowsThroughQueuedPath(t *testing.T) {
	testlog.Start(t)
	rt := echoRouter(t)
	b := bus.New(8, bus.PolicyBlock)
	d := bus.NewDispatcher(b, rt)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	srv := NewWSServer(rt, b, session.Config{ReadTimeout: 2 * time.Second})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("ws dial: %v", err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	raw, err := protocol.EncodePacket(protocol.TypeCommand, 1, protocol.EncodeInnerCommand(0x2001, []byte{0x55, 0xAA}))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	// Split the frame across two messages to prove codec statefulness
	// across reads on this transport too.
	if err := conn.WriteMessage(websocket.BinaryMessage, raw[:5]); err != nil {
		t.Fatalf("write fragment 1: %v", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, raw[5:]); err != nil {
		t.Fatalf("write fragment 2: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	c := protocol.NewCodec(0)
	for {
		if pkt := c.Decode(); pkt != nil {
			if pkt.Header.Type != protocol.TypeResponse {
				t.Fatalf("expected response, got %s", pkt.Header.Type)
			}
			ir, err := protocol.ParseInnerResponse(pkt.Payload)
			if err != nil {
				t.Fatalf("parse response: %v", err)
			}
			if ir.Code != router.CodeOK || ir.Cmd != 0x2001 || len(ir.Data) != 2 {
				t.Fatalf("unexpected response: %+v", ir)
			}
			return
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read message: %v", err)
		}
		if err := c.Feed(msg); err != nil {
			t.Fatalf("feed: %v", err)
		}
	}
}

func TestWSPingAnsweredInline(t *testing.T) {
	testlog.Start(t)
	rt := echoRouter(t)
	b := bus.New(8, bus.PolicyBlock)
	d := bus.NewDispatcher(b, rt)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	srv := NewWSServer(rt, b, session.Config{ReadTimeout: 2 * time.Second})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("ws dial: %v", err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	ping, err := protocol.EncodePacket(protocol.TypePing, 7, nil)
	if err != nil {
		t.Fatalf("encode ping: %v", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, ping); err != nil {
		t.Fatalf("write ping: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read pong: %v", err)
	}
	c := protocol.NewCodec(0)
	if err := c.Feed(msg); err != nil {
		t.Fatalf("feed: %v", err)
	}
	pkt := c.Decode()
	if pkt == nil || pkt.Header.Type != protocol.TypePong {
		t.Fatalf("expected pong, got %+v", pkt)
	}
}
