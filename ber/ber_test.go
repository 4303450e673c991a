package ber

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeLength(t *testing.T) {
	tests := []struct {
		name      string
		buffer    []byte
		maxBufPos int
		wantPos   int
		wantLen   int
		wantErr   error
	}{
		{
			name:      "short form",
			buffer:    []byte{0x05, 0, 0, 0, 0, 0},
			maxBufPos: 6,
			wantPos:   1,
			wantLen:   5,
		},
		{
			name:      "long form 1 byte",
			buffer:    append([]byte{0x81, 0xFF}, make([]byte, 0xFF)...),
			maxBufPos: 2 + 0xFF,
			wantPos:   2,
			wantLen:   0xFF,
		},
		{
			name:      "long form 2 bytes",
			buffer:    append([]byte{0x82, 0x01, 0x00}, make([]byte, 0x0100)...),
			maxBufPos: 3 + 0x0100,
			wantPos:   3,
			wantLen:   0x0100,
		},
		{
			name:      "buffer overflow in length octet",
			buffer:    []byte{0x81},
			maxBufPos: 1,
			wantPos:   -1,
			wantErr:   ErrBufferOverflow,
		},
		{
			name:      "declared length exceeds buffer",
			buffer:    []byte{0x05, 0, 0},
			maxBufPos: 3,
			wantPos:   -1,
			wantErr:   ErrBufferOverflow,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos, length, err := DecodeLength(tt.buffer, 0, tt.maxBufPos)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantPos, pos)
			assert.Equal(t, tt.wantLen, length)
		})
	}
}

func TestEncodeLengthRoundTripsThroughDecodeLength(t *testing.T) {
	for _, length := range []uint32{0, 1, 127, 128, 255, 256, 65535, 65536, 1 << 20} {
		buf := make([]byte, 6)
		pos := EncodeLength(length, buf, 0)

		_, decoded, err := DecodeLength(buf, 0, pos+int(length))
		require.NoError(t, err)
		assert.Equal(t, int(length), decoded)
	}
}

func TestEncodeLengthForms(t *testing.T) {
	tests := []struct {
		length uint32
		want   []byte
	}{
		{0, []byte{0x00}},
		{127, []byte{0x7F}},
		{128, []byte{0x81, 0x80}},
		{255, []byte{0x81, 0xFF}},
		{256, []byte{0x82, 0x01, 0x00}},
		{65535, []byte{0x82, 0xFF, 0xFF}},
		{65536, []byte{0x83, 0x01, 0x00, 0x00}},
	}
	for _, tt := range tests {
		buf := make([]byte, 4)
		pos := EncodeLength(tt.length, buf, 0)
		assert.Equal(t, tt.want, buf[:pos])
	}
}

func TestDecodeInt32(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
		want    int32
	}{
		{"zero", []byte{0x00}, 0},
		{"small positive", []byte{0x2A}, 42},
		{"small negative", []byte{0xFF}, -1},
		{"two byte positive", []byte{0x01, 0x2C}, 300},
		{"max int32", []byte{0x7F, 0xFF, 0xFF, 0xFF}, 2147483647},
		{"min int32", []byte{0x80, 0x00, 0x00, 0x00}, -2147483648},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DecodeInt32(tt.content, len(tt.content), 0))
		})
	}
}

func TestEncodeUInt32ProducesMinimalTwosComplementContent(t *testing.T) {
	tests := []struct {
		name  string
		value uint32
		want  []byte
	}{
		{"zero", 0, []byte{0x00}},
		{"fits one byte", 42, []byte{0x2A}},
		// top bit set: needs a leading zero so it doesn't read as negative
		{"needs leading zero", 0x80, []byte{0x00, 0x80}},
		{"two bytes", 300, []byte{0x01, 0x2C}},
		{"max uint32 needs five bytes", 0xFFFFFFFF, []byte{0x00, 0xFF, 0xFF, 0xFF, 0xFF}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := make([]byte, 5)
			n := EncodeUInt32(tt.value, buf, 0)
			assert.Equal(t, tt.want, buf[:n])
		})
	}
}

func TestEncodeUInt32DecodesBackViaDecodeInt32(t *testing.T) {
	for _, value := range []uint32{0, 1, 127, 128, 255, 65535, 1 << 24} {
		buf := make([]byte, 5)
		n := EncodeUInt32(value, buf, 0)
		// values above MaxInt32 would sign-extend through DecodeInt32; the
		// mms package reads those back through its own decodeUint32 helper
		// instead, so this only exercises the range Int32 can represent.
		assert.Equal(t, int32(value), DecodeInt32(buf, n, 0))
	}
}

func TestCompressInteger(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want []byte
		size int
	}{
		{"no leading zeros to strip", []byte{0x01, 0x02}, []byte{0x01, 0x02}, 2},
		{"strips redundant leading zero", []byte{0x00, 0x00, 0x7F}, []byte{0x7F}, 1},
		{"keeps zero needed to stay non-negative", []byte{0x00, 0x80}, []byte{0x00, 0x80}, 2},
		{"strips redundant leading 0xff", []byte{0xFF, 0xFF, 0x80}, []byte{0x80}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := append([]byte(nil), tt.in...)
			size := CompressInteger(buf)
			assert.Equal(t, tt.size, size)
			assert.Equal(t, tt.want, buf[:size])
		})
	}
}

func TestDecodeOID(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
		want    ItuObjectIdentifier
	}{
		{
			// arc0*40+arc1 = 40 fits in the first byte; 9506 needs the
			// two-byte base-128 continuation form (0xCA, 0x22).
			name:    "1.0.9506.2.1",
			content: []byte{0x28, 0xCA, 0x22, 0x02, 0x01},
			want:    ItuObjectIdentifier{Arc: [10]uint32{1, 0, 9506, 2, 1}, ArcCount: 5},
		},
		{
			name:    "1.3.6.1.4.1",
			content: []byte{0x2B, 0x06, 0x01, 0x04, 0x01},
			want:    ItuObjectIdentifier{Arc: [10]uint32{1, 3, 6, 1, 4, 1}, ArcCount: 6},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var oid ItuObjectIdentifier
			DecodeOID(tt.content, 0, len(tt.content), &oid)
			assert.Equal(t, tt.want, oid)
		})
	}
}

func TestEncodeOIDToBufferRoundTripsThroughDecodeOID(t *testing.T) {
	tests := []struct {
		dotted string
		want   ItuObjectIdentifier
	}{
		{"1.0.9506.2.1", ItuObjectIdentifier{Arc: [10]uint32{1, 0, 9506, 2, 1}, ArcCount: 5}},
		{"1.3.6.1.4.1", ItuObjectIdentifier{Arc: [10]uint32{1, 3, 6, 1, 4, 1}, ArcCount: 6}},
		{"1.2.3", ItuObjectIdentifier{Arc: [10]uint32{1, 2, 3}, ArcCount: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.dotted, func(t *testing.T) {
			buf := make([]byte, 16)
			n, err := EncodeOIDToBuffer(tt.dotted, buf, len(buf))
			require.NoError(t, err)

			var oid ItuObjectIdentifier
			DecodeOID(buf, 0, n, &oid)
			assert.Equal(t, tt.want, oid)
		})
	}
}

func TestEncodeOIDToBufferRejectsBufferTooSmall(t *testing.T) {
	buf := make([]byte, 1)
	_, err := EncodeOIDToBuffer("1.3.6.1.4.1", buf, len(buf))
	require.ErrorIs(t, err, ErrBufferOverflow)
}

func TestEncodeOIDToBufferRejectsMalformedInput(t *testing.T) {
	buf := make([]byte, 16)
	_, err := EncodeOIDToBuffer("not-an-oid", buf, len(buf))
	require.Error(t, err)
}
