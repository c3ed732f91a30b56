package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/aetherflow/rdt-sender/internal/rdt/protocol"
)

func TestUDPConnSendReceiveLoopback(t *testing.T) {
	listener, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	defer listener.Close()

	laddr := listener.LocalAddr().(*net.UDPAddr)
	client, err := Dial("127.0.0.1", laddr.Port, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	pkt := protocol.NewDataPacket(0, []byte("hello"))
	if err := client.Send(pkt); err != nil {
		t.Fatalf("Send: %v", err)
	}

	buf := make([]byte, 1500)
	listener.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, raddr, err := listener.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("ReadFromUDP: %v", err)
	}

	got, err := protocol.Unmarshal(buf[:n])
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if string(got.Payload) != "hello" {
		t.Errorf("payload = %q, want %q", got.Payload, "hello")
	}

	reply := protocol.NewAckPacket(5)
	raw, err := reply.Marshal()
	if err != nil {
		t.Fatalf("Marshal reply: %v", err)
	}
	if _, err := listener.WriteToUDP(raw, raddr); err != nil {
		t.Fatalf("WriteToUDP: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ack, err := client.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if ack.Header.Flags != protocol.ACK || ack.Header.AckNo != 5 {
		t.Errorf("unexpected ack packet: %+v", ack.Header)
	}

	stats := client.Statistics()
	if stats.PacketsSent != 1 || stats.PacketsReceived != 1 {
		t.Errorf("unexpected statistics: %+v", stats)
	}
}

func TestUDPConnReceiveTimesOut(t *testing.T) {
	listener, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	defer listener.Close()

	laddr := listener.LocalAddr().(*net.UDPAddr)
	client, err := Dial("127.0.0.1", laddr.Port, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := client.Receive(ctx); err == nil {
		t.Fatalf("expected a timeout error when no datagram arrives")
	}
}

func TestUDPConnSendAfterCloseFails(t *testing.T) {
	listener, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	defer listener.Close()

	laddr := listener.LocalAddr().(*net.UDPAddr)
	client, err := Dial("127.0.0.1", laddr.Port, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	client.Close()

	if err := client.Send(protocol.NewDataPacket(0, []byte("x"))); err == nil {
		t.Fatalf("expected Send after Close to fail")
	}
}
