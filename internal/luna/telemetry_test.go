package luna

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeTelemetry(t *testing.T) {
	tests := []struct {
		name     string
		in       []byte
		want     TelemetryFrame
		status   Status
		expected byte
		tempC    float64
	}{
		{
			name:     "reference fields with stale checksum",
			in:       []byte{0x59, 0x59, 0x64, 0x00, 0xC8, 0x00, 0x40, 0x1F, 0xCB},
			want:     TelemetryFrame{Distance: 100, Strength: 200, RawTemperature: 8000, Checksum: 0xCB},
			status:   StatusChecksumError,
			expected: 0x3D,
			tempC:    744,
		},
		{
			name:     "zero degrees",
			in:       []byte{0x59, 0x59, 0x64, 0x00, 0xC8, 0x00, 0x00, 0x08, 0xE6},
			want:     TelemetryFrame{Distance: 100, Strength: 200, RawTemperature: 2048, Checksum: 0xE6},
			status:   StatusOK,
			expected: 0xE6,
			tempC:    0,
		},
		{
			name:     "checksum equal to header byte",
			in:       []byte{0x59, 0x59, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x59},
			want:     TelemetryFrame{Checksum: 0x59},
			status:   StatusChecksumError,
			expected: 0xB2,
			tempC:    -256,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeTelemetry(tt.in)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got.Frame); diff != "" {
				t.Errorf("frame mismatch (-want +got):\n%s", diff)
			}
			assert.Equal(t, tt.status, got.Status)
			assert.Equal(t, tt.expected, got.Expected)
			assert.InDelta(t, tt.tempC, got.Frame.TemperatureCelsius(), 1e-9)
		})
	}
}

func TestDecodeTelemetry_Errors(t *testing.T) {
	_, err := DecodeTelemetry([]byte{0x59, 0x59, 0x00})
	assert.ErrorIs(t, err, ErrInvalidLength)

	_, err = DecodeTelemetry([]byte{0x59, 0x5A, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00})
	assert.ErrorIs(t, err, ErrInvalidHeader)
}

func TestEncodeTelemetry(t *testing.T) {
	f := TelemetryFrame{Distance: 100, Strength: 200, RawTemperature: 2048}
	b := EncodeTelemetry(f)
	assert.Equal(t, []byte{0x59, 0x59, 0x64, 0x00, 0xC8, 0x00, 0x00, 0x08, 0xE6}, b)

	got, err := DecodeTelemetry(b)
	require.NoError(t, err)
	assert.True(t, got.OK())
	f.Checksum = 0xE6
	assert.Equal(t, f, got.Frame)
}

func TestTelemetryFrame_DerivedValues(t *testing.T) {
	f := TelemetryFrame{Distance: 123, RawTemperature: 2248}
	assert.Equal(t, 1230, f.DistanceMM())
	assert.InDelta(t, 25.0, f.TemperatureCelsius(), 1e-9)
	assert.InDelta(t, 77.0, f.TemperatureFahrenheit(), 1e-9)
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "OK", StatusOK.String())
	assert.Equal(t, "ERR", StatusChecksumError.String())
}

func TestReading_String(t *testing.T) {
	r, err := DecodeTelemetry([]byte{0x59, 0x59, 0x64, 0x00, 0xC8, 0x00, 0x00, 0x08, 0xE6})
	require.NoError(t, err)
	assert.Equal(t, "distance=100cm strength=200 temp=0.00C checksum=E6/E6 status=OK", r.String())
}
