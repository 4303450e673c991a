package variant

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFloat32RoundTrip(t *testing.T) {
	v := NewFloat32Variant(3.14159)
	encoded := v.Bytes()
	assert.Equal(t, byte(0x87), encoded[0])

	decoded, ok, err := Decode(encoded[0], encoded[2:])
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, v.Float32(), decoded.Float32())
}

func TestInt32RoundTripMinimalLength(t *testing.T) {
	tests := []struct {
		name      string
		value     int32
		wantBytes int // expected content length
	}{
		{"zero", 0, 1},
		{"small positive", 42, 1},
		{"small negative", -1, 1},
		{"needs two bytes", 300, 2},
		{"max int32", math.MaxInt32, 4},
		{"min int32", math.MinInt32, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewInt32Variant(tt.value)
			encoded := v.Bytes()
			assert.Equal(t, byte(0x85), encoded[0])
			content := encoded[2:]
			assert.Equal(t, tt.wantBytes, len(content))

			decoded, ok, err := Decode(encoded[0], content)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, tt.value, decoded.Int32())
		})
	}
}

func TestBooleanRoundTrip(t *testing.T) {
	for _, want := range []bool{true, false} {
		v := NewBooleanVariant(want)
		encoded := v.Bytes()
		decoded, ok, err := Decode(encoded[0], encoded[2:])
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, want, decoded.Bool())
	}
}

func TestVisibleStringRoundTrip(t *testing.T) {
	v := NewVisibleStringVariant("LLN0$ST$Health")
	encoded := v.Bytes()
	decoded, ok, err := Decode(encoded[0], encoded[2:])
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "LLN0$ST$Health", decoded.VisibleString())
}

func TestUTCTimeRoundTripKeepsSubMicrosecondPrecision(t *testing.T) {
	want := time.Date(2026, 1, 5, 8, 27, 51, 153_999_984, time.UTC)
	v := NewUTCTimeVariant(want)
	encoded := v.Bytes()
	assert.Equal(t, 10, len(encoded)) // tag + length + 8 content bytes

	decoded, ok, err := Decode(encoded[0], encoded[2:])
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want.Unix(), decoded.Time().Unix())
	assert.InDelta(t, want.Nanosecond(), decoded.Time().Nanosecond(), 200)
}

func TestBitStringRoundTripWithPadding(t *testing.T) {
	v := NewBitStringVariant([]byte{0b1010_0000}, 3)
	encoded := v.Bytes()
	decoded, ok, err := Decode(encoded[0], encoded[2:])
	require.NoError(t, err)
	require.True(t, ok)
	got := decoded.BitString()
	assert.Equal(t, 3, got.BitSize)
	assert.Equal(t, []byte{0b1010_0000}, got.Data)
}

func TestDecodeUnknownTagReturnsNotOK(t *testing.T) {
	_, ok, err := Decode(0xFF, []byte{0x01})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDecodeFloatBadLength(t *testing.T) {
	_, ok, err := Decode(0x87, []byte{0x08, 0x00})
	assert.True(t, ok)
	require.Error(t, err)
}

func TestStringFormatsBitStringWithPrefix(t *testing.T) {
	v := NewBitStringVariant([]byte{0b1011_0000}, 4)
	assert.Contains(t, v.String(), "bit-string(0b")
}
