package audio

import (
	"testing"
)

func TestBytesToPCM(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want []int16
	}{
		{"empty", nil, []int16{}},
		{"positive", []byte{0x01, 0x00, 0xFF, 0x7F}, []int16{1, 32767}},
		{"negative", []byte{0xFF, 0xFF, 0x00, 0x80}, []int16{-1, -32768}},
		{"odd trailing byte dropped", []byte{0x02, 0x00, 0xAA}, []int16{2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BytesToPCM(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("sample %d = %d, want %d", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestPCMRoundTrip(t *testing.T) {
	in := []int16{0, 1, -1, 32767, -32768, 12345, -12345}
	got := BytesToPCM(PCMToBytes(in))
	if len(got) != len(in) {
		t.Fatalf("len = %d, want %d", len(got), len(in))
	}
	for i := range in {
		if got[i] != in[i] {
			t.Errorf("sample %d = %d, want %d", i, got[i], in[i])
		}
	}
}

func TestSilence(t *testing.T) {
	s := Silence(64)
	if len(s) != 64 {
		t.Fatalf("len = %d, want 64", len(s))
	}
	for i, v := range s {
		if v != 0 {
			t.Fatalf("sample %d = %d, want 0", i, v)
		}
	}
}

func TestRMS(t *testing.T) {
	if got := RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %f, want 0", got)
	}
	if got := RMS([]int16{100, -100, 100, -100}); got != 100 {
		t.Errorf("RMS = %f, want 100", got)
	}
}
