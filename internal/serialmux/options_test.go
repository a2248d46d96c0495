package serialmux

import (
	"testing"
	"time"

	"go.bug.st/serial"
)

func TestPortOptions_Normalize_Defaults(t *testing.T) {
	got, err := PortOptions{}.Normalize()
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	want := PortOptions{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "N", ReadTimeout: time.Second}
	if got != want {
		t.Errorf("Normalize() = %+v, want %+v", got, want)
	}
}

func TestPortOptions_Normalize_ExplicitValues(t *testing.T) {
	opts := PortOptions{BaudRate: 9600, DataBits: 7, StopBits: 2, Parity: "even", ReadTimeout: 50 * time.Millisecond}
	got, err := opts.Normalize()
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	want := PortOptions{BaudRate: 9600, DataBits: 7, StopBits: 2, Parity: "E", ReadTimeout: 50 * time.Millisecond}
	if got != want {
		t.Errorf("Normalize() = %+v, want %+v", got, want)
	}
}

func TestPortOptions_Normalize_Invalid(t *testing.T) {
	tests := []struct {
		name string
		opts PortOptions
	}{
		{"baud rate", PortOptions{BaudRate: 12345}},
		{"data bits", PortOptions{DataBits: 9}},
		{"stop bits", PortOptions{StopBits: 3}},
		{"parity", PortOptions{Parity: "M"}},
		{"read timeout", PortOptions{ReadTimeout: -time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.opts.Normalize(); err == nil {
				t.Errorf("Normalize(%+v) expected error", tt.opts)
			}
		})
	}
}

func TestPortOptions_Normalize_AllStandardBaudRates(t *testing.T) {
	for _, rate := range standardBaudRates {
		got, err := PortOptions{BaudRate: rate}.Normalize()
		if err != nil {
			t.Errorf("Normalize() with baud %d: unexpected error %v", rate, err)
		}
		if got.BaudRate != rate {
			t.Errorf("Normalize() with baud %d: got %d", rate, got.BaudRate)
		}
	}
}

func TestPortOptions_Equal(t *testing.T) {
	if !(PortOptions{}).Equal(PortOptions{BaudRate: 115200, Parity: "none"}) {
		t.Error("defaults should equal their explicit form")
	}
	if (PortOptions{}).Equal(PortOptions{BaudRate: 9600}) {
		t.Error("different baud rates should not be equal")
	}
	if (PortOptions{BaudRate: 1}).Equal(PortOptions{BaudRate: 1}) {
		t.Error("invalid options should never be equal")
	}
}

func TestPortOptions_SerialMode(t *testing.T) {
	mode, err := PortOptions{BaudRate: 9600, StopBits: 2, Parity: "O"}.SerialMode()
	if err != nil {
		t.Fatalf("SerialMode() error = %v", err)
	}
	if mode.BaudRate != 9600 || mode.DataBits != 8 {
		t.Errorf("SerialMode() = %+v", mode)
	}
	if mode.StopBits != serial.TwoStopBits {
		t.Errorf("StopBits = %v, want TwoStopBits", mode.StopBits)
	}
	if mode.Parity != serial.OddParity {
		t.Errorf("Parity = %v, want OddParity", mode.Parity)
	}

	if _, err := (PortOptions{BaudRate: 7}).SerialMode(); err == nil {
		t.Error("expected error for invalid baud rate")
	}
}
