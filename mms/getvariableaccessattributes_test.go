package mms

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetVariableAccessAttributesRequestEncodesVariable(t *testing.T) {
	req := NewGetVariableAccessAttributesRequest(12, "simpleIOGenericIO", "GGIO1$ST$Ind1$stVal")
	invokeID, serviceTag, content, err := decodeConfirmedRequest(req.Bytes())
	require.NoError(t, err)
	assert.Equal(t, InvokeID(12), invokeID)
	assert.Equal(t, byte(tagServiceGetVariableAccessAttributes), serviceTag)
	assert.NotEmpty(t, content)
}

func TestGetVariableAccessAttributesResponseRoundTrip(t *testing.T) {
	typeDesc := []byte{0x84, 0x02, 0x00, 0x01} // opaque type-description bytes
	var content []byte
	content = encodeTLV(content, tagNVLDeletable, []byte{0xFF})
	content = encodeTLV(content, 0xA2, typeDesc)
	encoded := encodeConfirmedResponse(12, encodeTLV(nil, tagServiceGetVariableAccessAttributes, content))

	got, err := ParseGetVariableAccessAttributesResponse(encoded)
	require.NoError(t, err)
	assert.True(t, got.MmsDeletable)
	assert.Equal(t, typeDesc, got.TypeDescription)
}
