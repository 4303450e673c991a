package mms

import (
	"github.com/iec61850-go/osistack/internal/xerrors"
)

// ObjectClass is the MMS basicObjectClass CHOICE (ISO/IEC 9506-2). Only the
// alternatives an IEC 61850 MMS client actually enumerates are named.
type ObjectClass int

const (
	ObjectClassNamedVariable     ObjectClass = 0
	ObjectClassNamedVariableList ObjectClass = 2
	ObjectClassDomain            ObjectClass = 9
)

// ObjectScope is the MMS ObjectScope CHOICE: which part of the VMD's name
// space a GetNameList/DeleteNamedVariableList request ranges over. Exactly
// one of the three alternatives is populated.
type ObjectScope struct {
	VMD          bool
	DomainID     string // domain-specific, when non-empty
	AASpecific   bool
}

func encodeObjectScope(s ObjectScope) []byte {
	switch {
	case s.DomainID != "":
		return encodeTLV(nil, tagScopeDomainSpecific, []byte(s.DomainID))
	case s.AASpecific:
		return encodeTLV(nil, tagScopeAASpecific, nil)
	default:
		return encodeTLV(nil, tagScopeVMDSpecific, nil)
	}
}

func decodeObjectScope(items []berTLV) ObjectScope {
	for _, it := range items {
		switch it.tag {
		case tagScopeDomainSpecific:
			return ObjectScope{DomainID: string(it.value)}
		case tagScopeAASpecific:
			return ObjectScope{AASpecific: true}
		case tagScopeVMDSpecific:
			return ObjectScope{VMD: true}
		}
	}
	return ObjectScope{VMD: true}
}

// GetNameListRequest enumerates the identifiers MMS knows about within one
// object class and scope, e.g. the named variables of a domain.
type GetNameListRequest struct {
	InvokeID      InvokeID
	ObjectClass   ObjectClass
	Scope         ObjectScope
	ContinueAfter string // resumes a previous response whose moreFollows was true
}

func NewGetNameListRequest(invokeID InvokeID, class ObjectClass, scope ObjectScope) *GetNameListRequest {
	return &GetNameListRequest{InvokeID: invokeID, ObjectClass: class, Scope: scope}
}

// Bytes encodes the Confirmed-RequestPDU carrying this GetNameList request.
func (r *GetNameListRequest) Bytes() []byte {
	var content []byte
	content = encodeTLV(content, tagGetNameListObjectClass, encodeTLV(nil, tagInteger, encodeUint32(uint32(r.ObjectClass))))
	content = encodeTLV(content, tagGetNameListObjectScope, encodeObjectScope(r.Scope))
	if r.ContinueAfter != "" {
		content = encodeTLV(content, tagGetNameListContinueAfter, []byte(r.ContinueAfter))
	}
	return encodeConfirmedRequest(r.InvokeID, encodeTLV(nil, tagServiceGetNameList, content))
}

// ParseGetNameListRequest decodes a Confirmed-RequestPDU carrying a
// GetNameList request, for a responder that must enumerate its name space.
func ParseGetNameListRequest(buffer []byte) (GetNameListRequest, error) {
	invokeID, serviceTag, serviceContent, err := decodeConfirmedRequest(buffer)
	if err != nil {
		return GetNameListRequest{}, err
	}
	if serviceTag != tagServiceGetNameList {
		return GetNameListRequest{}, xerrors.NewProtocol(layer, "expected getNameList request tag 0x%02x, got 0x%02x", tagServiceGetNameList, serviceTag)
	}
	items, err := decodeTLVs(serviceContent)
	if err != nil {
		return GetNameListRequest{}, err
	}

	req := GetNameListRequest{InvokeID: invokeID}
	classBytes, ok := findTLV(items, tagGetNameListObjectClass)
	if ok {
		classItems, err := decodeTLVs(classBytes)
		if err == nil && len(classItems) > 0 {
			req.ObjectClass = ObjectClass(decodeUint32(classItems[0].value))
		}
	}
	scopeBytes, ok := findTLV(items, tagGetNameListObjectScope)
	if ok {
		scopeItems, err := decodeTLVs(scopeBytes)
		if err != nil {
			return GetNameListRequest{}, err
		}
		req.Scope = decodeObjectScope(scopeItems)
	}
	if continueAfter, ok := findTLV(items, tagGetNameListContinueAfter); ok {
		req.ContinueAfter = string(continueAfter)
	}
	return req, nil
}

// GetNameListResponse carries the enumerated identifiers plus a flag that,
// when set, means the caller must repeat the request with ContinueAfter set
// to the last identifier received to retrieve the remainder.
type GetNameListResponse struct {
	InvokeID        InvokeID
	ListOfIdentifier []string
	MoreFollows      bool
}

// Bytes encodes the Confirmed-ResponsePDU carrying this GetNameList response.
func (r *GetNameListResponse) Bytes() []byte {
	var idSeq []byte
	for _, id := range r.ListOfIdentifier {
		idSeq = encodeTLV(idSeq, tagVisibleString, []byte(id))
	}
	var content []byte
	content = encodeTLV(content, tagGetNameListListOfIdentifier, idSeq)
	if r.MoreFollows {
		content = encodeTLV(content, tagGetNameListMoreFollows, []byte{0xFF})
	}
	return encodeConfirmedResponse(r.InvokeID, encodeTLV(nil, tagServiceGetNameList, content))
}

// ParseGetNameListResponse decodes a Confirmed-ResponsePDU carrying a
// GetNameList-Response.
func ParseGetNameListResponse(buffer []byte) (GetNameListResponse, error) {
	invokeID, serviceTag, serviceContent, err := decodeConfirmedResponse(buffer)
	if err != nil {
		return GetNameListResponse{}, err
	}
	if serviceTag != tagServiceGetNameList {
		return GetNameListResponse{}, xerrors.NewProtocol(layer, "expected getNameList response tag 0x%02x, got 0x%02x", tagServiceGetNameList, serviceTag)
	}
	items, err := decodeTLVs(serviceContent)
	if err != nil {
		return GetNameListResponse{}, err
	}

	resp := GetNameListResponse{InvokeID: invokeID, MoreFollows: false}
	for _, it := range items {
		switch it.tag {
		case tagGetNameListListOfIdentifier:
			idItems, err := decodeTLVs(it.value)
			if err != nil {
				return GetNameListResponse{}, err
			}
			for _, id := range idItems {
				resp.ListOfIdentifier = append(resp.ListOfIdentifier, string(id.value))
			}
		case tagGetNameListMoreFollows:
			resp.MoreFollows = len(it.value) > 0 && it.value[0] != 0x00
		}
	}
	return resp, nil
}
