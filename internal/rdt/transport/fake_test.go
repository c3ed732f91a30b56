package transport

import (
	"context"
	"testing"
	"time"

	"github.com/aetherflow/rdt-sender/internal/rdt/protocol"
)

func TestFakeConnSendRecordsPacket(t *testing.T) {
	f := NewFakeConn()
	pkt := protocol.NewDataPacket(0, []byte("x"))
	if err := f.Send(pkt); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(f.Sent) != 1 || f.Sent[0] != pkt {
		t.Fatalf("expected pkt recorded in Sent")
	}
}

func TestFakeConnDeliverThenReceive(t *testing.T) {
	f := NewFakeConn()
	ack := protocol.NewAckPacket(10)
	f.Deliver(ack)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := f.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if got != ack {
		t.Fatalf("Receive returned a different packet than delivered")
	}
}

func TestFakeConnReceiveBlocksUntilDeliver(t *testing.T) {
	f := NewFakeConn()
	done := make(chan *protocol.Packet, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		pkt, err := f.Receive(ctx)
		if err != nil {
			t.Errorf("Receive: %v", err)
			done <- nil
			return
		}
		done <- pkt
	}()

	time.Sleep(20 * time.Millisecond)
	ack := protocol.NewAckPacket(1)
	f.Deliver(ack)

	select {
	case got := <-done:
		if got != ack {
			t.Fatalf("unexpected packet delivered")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Receive did not unblock after Deliver")
	}
}

func TestFakeConnOnSendHook(t *testing.T) {
	f := NewFakeConn()
	var seen *protocol.Packet
	f.OnSend = func(pkt *protocol.Packet) { seen = pkt }

	pkt := protocol.NewDataPacket(0, []byte("y"))
	f.Send(pkt)

	if seen != pkt {
		t.Fatalf("OnSend hook did not observe sent packet")
	}
}

func TestFakeConnReceiveAfterCloseReturnsError(t *testing.T) {
	f := NewFakeConn()
	f.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := f.Receive(ctx); err == nil {
		t.Fatalf("expected error receiving on a closed connection with no queued packet")
	}
}
