package mms

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iec61850-go/osistack/mms/variant"
)

func TestReadRequestRoundTrip(t *testing.T) {
	req := NewReadRequest(7, "simpleIOGenericIO", "GGIO1$ST$Ind1$stVal")
	invokeID, serviceTag, content, err := decodeConfirmedRequest(req.Bytes())
	require.NoError(t, err)
	assert.Equal(t, InvokeID(7), invokeID)
	assert.Equal(t, byte(tagServiceRead), serviceTag)

	items, err := decodeTLVs(content)
	require.NoError(t, err)
	inner, err := decodeTLVs(items[0].value)
	require.NoError(t, err)
	names, err := decodeListOfVariable(inner[0].value)
	require.NoError(t, err)
	require.Len(t, names, 1)
	assert.Equal(t, req.Variable, names[0])
}

func TestReadResponseSuccessFloat32(t *testing.T) {
	resp := ReadResponse{
		InvokeID: 1,
		ListOfAccessResult: []AccessResult{{
			Success: true,
			Value:   variant.NewFloat32Variant(4.2),
		}},
	}

	encoded := encodeConfirmedResponse(resp.InvokeID, encodeTLV(nil, tagServiceRead, encodeTLV(nil, 0xA1, resp.ListOfAccessResult[0].Value.Bytes())))
	got, err := ParseReadResponse(encoded)
	require.NoError(t, err)
	assert.Equal(t, resp.InvokeID, got.InvokeID)
	require.Len(t, got.ListOfAccessResult, 1)
	assert.True(t, got.ListOfAccessResult[0].Success)
	assert.Equal(t, float32(4.2), got.ListOfAccessResult[0].Value.Float32())
}

func TestReadResponseAccessFailure(t *testing.T) {
	failure := encodeTLV(nil, 0x80, encodeUint32(uint32(ObjectNonExistent)))
	encoded := encodeConfirmedResponse(1, encodeTLV(nil, tagServiceRead, encodeTLV(nil, 0xA1, failure)))

	got, err := ParseReadResponse(encoded)
	require.NoError(t, err)
	require.Len(t, got.ListOfAccessResult, 1)
	assert.False(t, got.ListOfAccessResult[0].Success)
	assert.Equal(t, ObjectNonExistent, got.ListOfAccessResult[0].Error.ErrorCode)
}

func TestParseReadResponseWrongServiceTag(t *testing.T) {
	encoded := encodeConfirmedResponse(1, encodeTLV(nil, tagServiceWrite, nil))
	_, err := ParseReadResponse(encoded)
	assert.Error(t, err)
}

func TestDataAccessErrorCodeString(t *testing.T) {
	assert.Equal(t, "object-non-existent", DataAccessErrorCode(ObjectNonExistent).String())
	assert.Contains(t, DataAccessErrorCode(999).String(), "unknown-error-code")
}
