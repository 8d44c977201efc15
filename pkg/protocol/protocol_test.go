package protocol

import (
	"bytes"
	"testing"
)

func TestParseHeader(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		want    Header
		wantErr error
	}{
		{
			name: "single chunk",
			data: []byte{0x00, 0x2A, 0x00, 0x01, 0x00, 0x00, 0x03, 0xE8},
			want: Header{Sequence: 42, ChunkIndex: 0, ChunkCount: 1, Timestamp: 1000},
		},
		{
			name: "fragment two of three",
			data: []byte{0xFF, 0xFF, 0x01, 0x03, 0x12, 0x34, 0x56, 0x78},
			want: Header{Sequence: 65535, ChunkIndex: 1, ChunkCount: 3, Timestamp: 0x12345678},
		},
		{
			name:    "too short",
			data:    []byte{0x00, 0x2A, 0x00},
			wantErr: ErrPacketTooShort,
		},
		{
			name:    "empty",
			data:    nil,
			wantErr: ErrPacketTooShort,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseHeader(tt.data)
			if err != tt.wantErr {
				t.Fatalf("ParseHeader error = %v, want %v", err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("ParseHeader = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseRoundTrip(t *testing.T) {
	in := &Packet{
		Header:  Header{Sequence: 512, ChunkIndex: 2, ChunkCount: 4, Timestamp: 99},
		Payload: []byte{1, 2, 3, 4, 5, 6},
	}

	out, err := Parse(in.Marshal())
	if err != nil {
		t.Fatalf("Parse: unexpected error: %v", err)
	}
	if out.Header != in.Header {
		t.Errorf("header mismatch: got %+v want %+v", out.Header, in.Header)
	}
	if !bytes.Equal(out.Payload, in.Payload) {
		t.Errorf("payload mismatch: got %v want %v", out.Payload, in.Payload)
	}
}

func TestParseRejectsZeroChunkCount(t *testing.T) {
	data := []byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
	if _, err := Parse(data); err == nil {
		t.Fatal("Parse accepted zero chunk count")
	}
}

func TestParseCopiesPayload(t *testing.T) {
	buf := []byte{0x00, 0x07, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0xAA, 0xBB}
	p, err := Parse(buf)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	buf[8] = 0x00 // reuse the receive buffer
	if p.Payload[0] != 0xAA {
		t.Error("payload aliases the receive buffer")
	}
}

func TestSeqDistance(t *testing.T) {
	tests := []struct {
		a, b uint16
		want int
	}{
		{5, 3, 2},
		{3, 5, -2},
		{0, 65535, 1},     // wrap forward
		{65535, 0, -1},    // wrap backward
		{1, 65534, 3},     // forward across the wrap
		{32768, 0, -32768},
		{0, 0, 0},
	}
	for _, tt := range tests {
		if got := SeqDistance(tt.a, tt.b); got != tt.want {
			t.Errorf("SeqDistance(%d, %d) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}
