// Command pushprobe dials a pusherctl daemon, sends one framed command
// (or ping) and prints the decoded reply. Useful for poking a live
// machine from the command line.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/danmuck/pusherctl/internal/protocol"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:8080", "daemon address")
	cmd := flag.Uint("cmd", 0x2001, "command id")
	data := flag.String("data", "", "hex-encoded command data")
	ping := flag.Bool("ping", false, "send a ping instead of a command")
	timeout := flag.Duration("timeout", 5*time.Second, "reply timeout")
	flag.Parse()

	if err := run(*addr, uint16(*cmd), *data, *ping, *timeout); err != nil {
		fmt.Fprintf(os.Stderr, "pushprobe: %v\n", err)
		os.Exit(1)
	}
}

func run(addr string, cmd uint16, hexData string, ping bool, timeout time.Duration) error {
	payload, err := hex.DecodeString(hexData)
	if err != nil {
		return fmt.Errorf("decode -data: %w", err)
	}

	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	var raw []byte
	if ping {
		raw, err = protocol.EncodePacket(protocol.TypePing, 0, nil)
	} else {
		raw, err = protocol.EncodePacket(protocol.TypeCommand, 0, protocol.EncodeInnerCommand(cmd, payload))
	}
	if err != nil {
		return err
	}
	if _, err := conn.Write(raw); err != nil {
		return fmt.Errorf("write: %w", err)
	}

	pkt, err := readReply(conn, timeout)
	if err != nil {
		return err
	}

	switch pkt.Header.Type {
	case protocol.TypePong:
		fmt.Printf("pong seq=%d\n", pkt.Header.Seq)
	case protocol.TypeResponse:
		ir, err := protocol.ParseInnerResponse(pkt.Payload)
		if err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
		fmt.Printf("response cmd=0x%04X code=%d data=%s\n", ir.Cmd, ir.Code, hex.EncodeToString(ir.Data))
	case protocol.TypeError:
		fmt.Println("peer rejected the connection (session slot busy?)")
	default:
		fmt.Printf("unexpected %s packet seq=%d len=%d\n", pkt.Header.Type, pkt.Header.Seq, len(pkt.Payload))
	}
	return nil
}

func readReply(conn net.Conn, timeout time.Duration) (*protocol.Packet, error) {
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	codec := protocol.NewCodec(0)
	buf := make([]byte, 512)
	for {
		if pkt := codec.Decode(); pkt != nil {
			return pkt, nil
		}
		n, err := conn.Read(buf)
		if err != nil {
			return nil, fmt.Errorf("read reply: %w", err)
		}
		if err := codec.Feed(buf[:n]); err != nil {
			return nil, err
		}
	}
}
