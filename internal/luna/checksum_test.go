package luna

import (
	"math/rand"
	"slices"
	"testing"
)

func TestChecksum(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want byte
	}{
		{"empty", nil, 0x00},
		{"single", []byte{0x59}, 0x59},
		{"telemetry header", []byte{0x59, 0x59}, 0xB2},
		{"get version request", []byte{0x5A, 0x04, 0x01}, 0x5F},
		{"wraps", []byte{0xFF, 0x02}, 0x01},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Checksum(tt.in); got != tt.want {
				t.Errorf("Checksum(% X) = %02X, want %02X", tt.in, got, tt.want)
			}
		})
	}
}

func TestChecksum_SumModulo256(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		b := make([]byte, 8)
		rng.Read(b)

		var sum int
		for _, v := range b {
			sum += int(v)
		}
		if got := Checksum(b); got != byte(sum%256) {
			t.Fatalf("Checksum(% X) = %02X, want %02X", b, got, sum%256)
		}

		reversed := slices.Clone(b)
		slices.Reverse(reversed)
		if Checksum(b) != Checksum(reversed) {
			t.Fatalf("Checksum not order independent for % X", b)
		}
	}
}
