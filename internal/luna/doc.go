// Package luna implements the serial protocol spoken by TF-Luna class
// single-point LiDAR rangefinders.
//
// The device speaks two protocols over the same UART:
//
//	Telemetry (device -> host, unsolicited, fixed 9 bytes):
//	├── 0x59 0x59          header
//	├── distance_cm        uint16 LE
//	├── signal_strength    uint16 LE
//	├── raw_temperature    uint16 LE (°C = raw/8 - 256)
//	└── checksum           sum(bytes[0:8]) mod 256
//
//	Command / response (host -> device -> host, variable length):
//	├── 0x5A               header
//	├── length             total frame size including header and checksum
//	├── command_id         see CommandID
//	├── data...            length-4 bytes
//	└── checksum           sum of every preceding byte mod 256
//
// Telemetry checksum failures are reported on the decoded Reading and never
// halt decoding. Every failure in the command protocol is returned as an
// error and aborts that request/response cycle; nothing here retries.
package luna
