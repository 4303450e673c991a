package mms

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentifyRequestIsNullBodied(t *testing.T) {
	req := NewIdentifyRequest(5)
	invokeID, serviceTag, content, err := decodeConfirmedRequest(req.Bytes())
	require.NoError(t, err)
	assert.Equal(t, InvokeID(5), invokeID)
	assert.Equal(t, byte(tagServiceIdentify), serviceTag)
	assert.Empty(t, content)
}

func TestIdentifyResponseRoundTrip(t *testing.T) {
	resp := &IdentifyResponse{
		InvokeID:   5,
		VendorName: "osistack",
		ModelName:  "virtual-IED",
		Revision:   "1.0",
	}

	got, err := ParseIdentifyResponse(resp.Bytes())
	require.NoError(t, err)
	assert.Equal(t, resp.InvokeID, got.InvokeID)
	assert.Equal(t, resp.VendorName, got.VendorName)
	assert.Equal(t, resp.ModelName, got.ModelName)
	assert.Equal(t, resp.Revision, got.Revision)
}

func TestParseIdentifyResponseWrongServiceTag(t *testing.T) {
	encoded := encodeConfirmedResponse(5, encodeTLV(nil, tagServiceRead, nil))
	_, err := ParseIdentifyResponse(encoded)
	assert.Error(t, err)
}
