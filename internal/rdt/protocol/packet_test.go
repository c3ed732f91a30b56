package protocol

import (
	"bytes"
	"testing"
)

func TestDataPacketRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB}, 100)
	pkt := NewDataPacket(4096, payload)

	raw, err := pkt.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	got, err := Unmarshal(raw)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if got.Header.SeqNo != 4096 {
		t.Errorf("SeqNo = %d, want 4096", got.Header.SeqNo)
	}
	if got.Header.Flags != DATA {
		t.Errorf("Flags = %s, want DATA", got.Header.Flags)
	}
	if got.Header.DataSize != uint16(len(payload)) {
		t.Errorf("DataSize = %d, want %d", got.Header.DataSize, len(payload))
	}
	if !bytes.Equal(got.Payload, payload) {
		t.Errorf("payload mismatch after round trip")
	}
}

func TestAckAndFinRoundTrip(t *testing.T) {
	ack := NewAckPacket(8192)
	raw, err := ack.Marshal()
	if err != nil {
		t.Fatalf("Marshal ACK: %v", err)
	}
	got, err := Unmarshal(raw)
	if err != nil {
		t.Fatalf("Unmarshal ACK: %v", err)
	}
	if got.Header.Flags != ACK || got.Header.AckNo != 8192 || len(got.Payload) != 0 {
		t.Errorf("unexpected ACK packet: %+v", got.Header)
	}

	fin := NewFinPacket()
	raw, err = fin.Marshal()
	if err != nil {
		t.Fatalf("Marshal FIN: %v", err)
	}
	got, err = Unmarshal(raw)
	if err != nil {
		t.Fatalf("Unmarshal FIN: %v", err)
	}
	if got.Header.Flags != FIN || len(got.Payload) != 0 {
		t.Errorf("unexpected FIN packet: %+v", got.Header)
	}
}

func TestFinAckDistinguishedByFlagNotSeqno(t *testing.T) {
	// A FIN-ACK is an ACK datagram with Flags=FIN and AckNo >= final next
	// seqno; its SeqNo field is irrelevant, matching the wire format note
	// that FIN is identified by flag, never by seqno.
	finAck := &Packet{Header: Header{SeqNo: 0, AckNo: 123456, Flags: FIN}}
	raw, err := finAck.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := Unmarshal(raw)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Header.Flags != FIN {
		t.Fatalf("expected FIN flag")
	}
	if got.Header.AckNo != 123456 {
		t.Fatalf("AckNo = %d, want 123456", got.Header.AckNo)
	}
}

func TestValidateRejectsOversizedData(t *testing.T) {
	pkt := NewDataPacket(0, make([]byte, PayloadMax+1))
	if err := pkt.Validate(); err == nil {
		t.Fatalf("expected Validate to reject payload exceeding PayloadMax")
	}
}

func TestValidateRejectsEmptyData(t *testing.T) {
	pkt := &Packet{Header: Header{Flags: DATA, DataSize: 0}}
	if err := pkt.Validate(); err == nil {
		t.Fatalf("expected Validate to reject empty DATA payload")
	}
}

func TestValidateRejectsPayloadOnAck(t *testing.T) {
	pkt := &Packet{Header: Header{Flags: ACK, DataSize: 3}, Payload: []byte{1, 2, 3}}
	if err := pkt.Validate(); err == nil {
		t.Fatalf("expected Validate to reject payload on ACK")
	}
}

func TestShortFinalSegment(t *testing.T) {
	short := make([]byte, 17)
	pkt := NewDataPacket(PayloadMax*3, short)
	if err := pkt.Validate(); err != nil {
		t.Fatalf("short final segment should validate: %v", err)
	}
	raw, _ := pkt.Marshal()
	got, err := Unmarshal(raw)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Header.DataSize != 17 {
		t.Errorf("DataSize = %d, want 17", got.Header.DataSize)
	}
}

func TestUnmarshalTooSmall(t *testing.T) {
	if _, err := Unmarshal(make([]byte, HeaderSize-1)); err == nil {
		t.Fatalf("expected error for truncated header")
	}
}

func TestUnmarshalTruncatedPayload(t *testing.T) {
	pkt := NewDataPacket(0, make([]byte, 50))
	raw, _ := pkt.Marshal()
	if _, err := Unmarshal(raw[:len(raw)-10]); err == nil {
		t.Fatalf("expected error when declared data_size exceeds remaining bytes")
	}
}
