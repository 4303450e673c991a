package mms

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfirmedErrorRoundTrip(t *testing.T) {
	want := ConfirmedError{InvokeID: 6, Class: ErrorClassAccess, Code: 10}
	got, err := ParseConfirmedError(want.Bytes())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestParseConfirmedErrorRejectsWrongTag(t *testing.T) {
	encoded := encodeConfirmedResponse(6, encodeTLV(nil, tagServiceRead, nil))
	_, err := ParseConfirmedError(encoded)
	assert.Error(t, err)
}

func TestEncodeDecodeUint32RoundTrip(t *testing.T) {
	for _, v := range []uint32{0, 1, 127, 128, 255, 256, 65535, 65536, 0xFFFFFFFF} {
		got := decodeUint32(encodeUint32(v))
		assert.Equal(t, v, got, "value %d", v)
	}
}

func TestObjectNameRoundTrip(t *testing.T) {
	name := ObjectName{DomainID: "simpleIOGenericIO", ItemID: "GGIO1$ST$Ind1$stVal"}
	// encodeObjectName wraps in its own domain-specific tag; decodeObjectName
	// expects content already stripped of that tag, so walk the TLV first.
	items, err := decodeTLVs(encodeObjectName(name))
	require.NoError(t, err)
	got, err := decodeObjectName(items[0].value)
	require.NoError(t, err)
	assert.Equal(t, name, got)
}
