package mms

import (
	"github.com/iec61850-go/osistack/internal/xerrors"
)

// DefineNamedVariableListRequest creates a named variable list: a
// server-side alias for a fixed set of variables, later addressed as a
// single ObjectName by Read/Write/InformationReport. Scattered-access
// variable members are out of scope; every member here is a plain named
// variable.
type DefineNamedVariableListRequest struct {
	InvokeID InvokeID
	ListName ObjectName
	Members  []ObjectName
}

func NewDefineNamedVariableListRequest(invokeID InvokeID, listName ObjectName, members ...ObjectName) *DefineNamedVariableListRequest {
	return &DefineNamedVariableListRequest{InvokeID: invokeID, ListName: listName, Members: members}
}

// Bytes encodes the Confirmed-RequestPDU carrying this request.
func (r *DefineNamedVariableListRequest) Bytes() []byte {
	content := append([]byte{}, encodeTLV(nil, tagSequence, encodeObjectName(r.ListName))...)
	content = append(content, encodeListOfVariable(r.Members...)...)
	return encodeConfirmedRequest(r.InvokeID, encodeTLV(nil, tagServiceDefineNamedVariableList, content))
}

// ParseDefineNamedVariableListResponse decodes the empty (NULL-bodied)
// Confirmed-ResponsePDU a successful DefineNamedVariableList returns.
func ParseDefineNamedVariableListResponse(buffer []byte) (InvokeID, error) {
	invokeID, serviceTag, _, err := decodeConfirmedResponse(buffer)
	if err != nil {
		return 0, err
	}
	if serviceTag != tagServiceDefineNamedVariableListResponse {
		return 0, xerrors.NewProtocol(layer, "expected defineNamedVariableList response tag 0x%02x, got 0x%02x", tagServiceDefineNamedVariableListResponse, serviceTag)
	}
	return invokeID, nil
}

// GetNamedVariableListAttributesRequest retrieves a named variable list's
// deletability and member set.
type GetNamedVariableListAttributesRequest struct {
	InvokeID InvokeID
	ListName ObjectName
}

func NewGetNamedVariableListAttributesRequest(invokeID InvokeID, listName ObjectName) *GetNamedVariableListAttributesRequest {
	return &GetNamedVariableListAttributesRequest{InvokeID: invokeID, ListName: listName}
}

func (r *GetNamedVariableListAttributesRequest) Bytes() []byte {
	content := encodeTLV(nil, tagSequence, encodeObjectName(r.ListName))
	return encodeConfirmedRequest(r.InvokeID, encodeTLV(nil, tagServiceGetNamedVariableListAttrs, content))
}

// GetNamedVariableListAttributesResponse carries a named variable list's
// deletability flag and member set, reusing the same Variable-Specification
// shape GetNameList/Define use rather than the full ASN.1 ListOfVariable
// grammar (spec.md Non-goals).
type GetNamedVariableListAttributesResponse struct {
	InvokeID  InvokeID
	Deletable bool
	Members   []ObjectName
}

// ParseGetNamedVariableListAttributesResponse decodes a Confirmed-ResponsePDU
// carrying a GetNamedVariableListAttributes-Response.
func ParseGetNamedVariableListAttributesResponse(buffer []byte) (GetNamedVariableListAttributesResponse, error) {
	invokeID, serviceTag, serviceContent, err := decodeConfirmedResponse(buffer)
	if err != nil {
		return GetNamedVariableListAttributesResponse{}, err
	}
	if serviceTag != tagServiceGetNamedVariableListAttrs {
		return GetNamedVariableListAttributesResponse{}, xerrors.NewProtocol(layer, "expected getNamedVariableListAttributes response tag 0x%02x, got 0x%02x", tagServiceGetNamedVariableListAttrs, serviceTag)
	}
	items, err := decodeTLVs(serviceContent)
	if err != nil {
		return GetNamedVariableListAttributesResponse{}, err
	}

	resp := GetNamedVariableListAttributesResponse{InvokeID: invokeID}
	for _, it := range items {
		switch it.tag {
		case tagNVLDeletable:
			resp.Deletable = len(it.value) > 0 && it.value[0] != 0x00
		case tagNVLListOfVariables:
			members, err := decodeListOfVariable(it.value)
			if err != nil {
				return GetNamedVariableListAttributesResponse{}, err
			}
			resp.Members = members
		}
	}
	return resp, nil
}

// DeleteNamedVariableListRequest removes named variable lists, either
// individually by name or by domain scope.
type DeleteNamedVariableListRequest struct {
	InvokeID  InvokeID
	ListNames []ObjectName // explicit list, when non-empty
	DomainID  string       // delete all lists in this domain, when ListNames is empty
}

func NewDeleteNamedVariableListRequest(invokeID InvokeID, names ...ObjectName) *DeleteNamedVariableListRequest {
	return &DeleteNamedVariableListRequest{InvokeID: invokeID, ListNames: names}
}

func (r *DeleteNamedVariableListRequest) Bytes() []byte {
	var content []byte
	if len(r.ListNames) > 0 {
		var names []byte
		for _, n := range r.ListNames {
			names = append(names, encodeTLV(nil, tagSequence, encodeObjectName(n))...)
		}
		content = encodeTLV(content, tagDeleteNVLListOfNames, names)
	} else if r.DomainID != "" {
		content = encodeTLV(content, tagDeleteNVLDomain, []byte(r.DomainID))
	}
	return encodeConfirmedRequest(r.InvokeID, encodeTLV(nil, tagServiceDeleteNamedVariableList, content))
}

// DeleteNamedVariableListResponse reports how many lists matched the
// request's scope and how many were actually deletable.
type DeleteNamedVariableListResponse struct {
	InvokeID       InvokeID
	NumberMatched  uint32
	NumberDeleted  uint32
}

// ParseDeleteNamedVariableListResponse decodes a Confirmed-ResponsePDU
// carrying a DeleteNamedVariableList-Response.
func ParseDeleteNamedVariableListResponse(buffer []byte) (DeleteNamedVariableListResponse, error) {
	invokeID, serviceTag, serviceContent, err := decodeConfirmedResponse(buffer)
	if err != nil {
		return DeleteNamedVariableListResponse{}, err
	}
	if serviceTag != tagServiceDeleteNamedVariableList {
		return DeleteNamedVariableListResponse{}, xerrors.NewProtocol(layer, "expected deleteNamedVariableList response tag 0x%02x, got 0x%02x", tagServiceDeleteNamedVariableList, serviceTag)
	}
	items, err := decodeTLVs(serviceContent)
	if err != nil {
		return DeleteNamedVariableListResponse{}, err
	}

	resp := DeleteNamedVariableListResponse{InvokeID: invokeID}
	for _, it := range items {
		switch it.tag {
		case tagDeleteNVLNumberMatched:
			resp.NumberMatched = decodeUint32(it.value)
		case tagDeleteNVLNumberDeleted:
			resp.NumberDeleted = decodeUint32(it.value)
		}
	}
	return resp, nil
}
