package mms

import (
	"github.com/iec61850-go/osistack/internal/xerrors"
)

// GetVariableAccessAttributesRequest retrieves a named variable's type
// description (basic-type, array dimension, and so on). Only the scope
// needed to identify the variable is implemented here; the
// TypeSpecification grammar the response would carry in a full
// implementation is out of scope (spec.md Non-goals) — the response is
// surfaced as its raw encoded type-description bytes for callers that need
// them, rather than a decoded ASN.1 value.
type GetVariableAccessAttributesRequest struct {
	InvokeID InvokeID
	Variable ObjectName
}

func NewGetVariableAccessAttributesRequest(invokeID InvokeID, domainID, itemID string) *GetVariableAccessAttributesRequest {
	return &GetVariableAccessAttributesRequest{InvokeID: invokeID, Variable: ObjectName{DomainID: domainID, ItemID: itemID}}
}

// Bytes encodes the Confirmed-RequestPDU carrying this request.
func (r *GetVariableAccessAttributesRequest) Bytes() []byte {
	name := encodeTLV(nil, tagVariableSpecificationName, encodeObjectName(r.Variable))
	return encodeConfirmedRequest(r.InvokeID, encodeTLV(nil, tagServiceGetVariableAccessAttributes, name))
}

// GetVariableAccessAttributesResponse carries the variable's attributes.
// MmsDeletable is surfaced where present; the TypeDescription itself is
// left as raw BER bytes, and no other attribute is decoded.
type GetVariableAccessAttributesResponse struct {
	InvokeID          InvokeID
	MmsDeletable      bool
	TypeDescription   []byte
}

// ParseGetVariableAccessAttributesResponse decodes a Confirmed-ResponsePDU
// carrying a GetVariableAccessAttributes-Response.
func ParseGetVariableAccessAttributesResponse(buffer []byte) (GetVariableAccessAttributesResponse, error) {
	invokeID, serviceTag, serviceContent, err := decodeConfirmedResponse(buffer)
	if err != nil {
		return GetVariableAccessAttributesResponse{}, err
	}
	if serviceTag != tagServiceGetVariableAccessAttributes {
		return GetVariableAccessAttributesResponse{}, xerrors.NewProtocol(layer, "expected getVariableAccessAttributes response tag 0x%02x, got 0x%02x", tagServiceGetVariableAccessAttributes, serviceTag)
	}
	items, err := decodeTLVs(serviceContent)
	if err != nil {
		return GetVariableAccessAttributesResponse{}, err
	}

	resp := GetVariableAccessAttributesResponse{InvokeID: invokeID}
	for _, it := range items {
		switch it.tag {
		case tagNVLDeletable:
			resp.MmsDeletable = len(it.value) > 0 && it.value[0] != 0x00
		case 0xA2: // typeDescription
			resp.TypeDescription = it.value
		}
	}
	return resp, nil
}
