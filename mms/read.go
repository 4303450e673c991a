package mms

import (
	"fmt"

	"github.com/iec61850-go/osistack/internal/xerrors"
	"github.com/iec61850-go/osistack/mms/variant"
)

// ReadRequest asks for the current value of one named variable.
//
//	Read-Request ::= SEQUENCE {
//	  variableAccessSpecification VariableAccessSpecification
//	}
//	VariableAccessSpecification ::= CHOICE {
//	  listOfVariable [0] SEQUENCE OF Variable-Specification
//	}
type ReadRequest struct {
	InvokeID InvokeID
	Variable ObjectName
}

func NewReadRequest(invokeID InvokeID, domainID, itemID string) *ReadRequest {
	return &ReadRequest{InvokeID: invokeID, Variable: ObjectName{DomainID: domainID, ItemID: itemID}}
}

// Bytes encodes the Confirmed-RequestPDU carrying this Read request.
func (r *ReadRequest) Bytes() []byte {
	listOfVariable := encodeListOfVariable(r.Variable)
	readContent := encodeTLV(nil, 0xA1, listOfVariable) // Read-Request's own variableAccessSpecification, nested under [1]
	return encodeConfirmedRequest(r.InvokeID, encodeTLV(nil, tagServiceRead, readContent))
}

// ParseReadRequest decodes a Confirmed-RequestPDU carrying a Read request,
// for a responder that must act on the variable a client asked for.
func ParseReadRequest(buffer []byte) (ReadRequest, error) {
	invokeID, serviceTag, serviceContent, err := decodeConfirmedRequest(buffer)
	if err != nil {
		return ReadRequest{}, err
	}
	if serviceTag != tagServiceRead {
		return ReadRequest{}, xerrors.NewProtocol(layer, "expected read request tag 0x%02x, got 0x%02x", tagServiceRead, serviceTag)
	}
	items, err := decodeTLVs(serviceContent)
	if err != nil {
		return ReadRequest{}, err
	}
	if len(items) == 0 {
		return ReadRequest{}, xerrors.NewProtocol(layer, "read-request: missing variableAccessSpecification")
	}
	inner, err := decodeTLVs(items[0].value)
	if err != nil {
		return ReadRequest{}, err
	}
	if len(inner) == 0 {
		return ReadRequest{}, xerrors.NewProtocol(layer, "read-request: empty variableAccessSpecification")
	}
	names, err := decodeListOfVariable(inner[0].value)
	if err != nil {
		return ReadRequest{}, err
	}
	if len(names) == 0 {
		return ReadRequest{}, xerrors.NewProtocol(layer, "read-request: no variables named")
	}
	return ReadRequest{InvokeID: invokeID, Variable: names[0]}, nil
}

// AccessResult is one element of a Read/InformationReport result list.
type AccessResult struct {
	Success bool
	Value   *variant.Variant
	Error   *DataAccessError
}

// DataAccessErrorCode is the MMS DataAccessError enumeration (ISO/IEC 9506-2).
type DataAccessErrorCode uint32

const (
	ObjectInvalidated DataAccessErrorCode = iota
	HardwareFault
	TemporarilyUnavailable
	ObjectAccessDenied
	ObjectUndefined
	InvalidAddress
	TypeUnsupported
	TypeInconsistent
	ObjectAttributeInconsistent
	ObjectAccessUnsupported
	ObjectNonExistent
	ObjectValueInvalid
)

var dataAccessErrorNames = [...]string{
	"object-invalidated", "hardware-fault", "temporarily-unavailable",
	"object-access-denied", "object-undefined", "invalid-address",
	"type-unsupported", "type-inconsistent", "object-attribute-inconsistent",
	"object-access-unsupported", "object-non-existent", "object-value-invalid",
}

func (c DataAccessErrorCode) String() string {
	if int(c) < len(dataAccessErrorNames) {
		return dataAccessErrorNames[c]
	}
	return fmt.Sprintf("unknown-error-code-%d", uint32(c))
}

type DataAccessError struct {
	ErrorCode DataAccessErrorCode
}

func (e *DataAccessError) String() string {
	if e == nil {
		return "<nil>"
	}
	return e.ErrorCode.String()
}

// ReadResponse carries the invoke-id-correlated result of a ReadRequest.
type ReadResponse struct {
	InvokeID           InvokeID
	ListOfAccessResult []AccessResult
}

func (r *ReadResponse) String() string {
	out := fmt.Sprintf("ReadResponse{InvokeID:%d Results:[", r.InvokeID)
	for i, res := range r.ListOfAccessResult {
		if i > 0 {
			out += " "
		}
		if res.Success {
			out += res.Value.String()
		} else {
			out += res.Error.String()
		}
	}
	return out + "]}"
}

// Bytes encodes the Confirmed-ResponsePDU carrying this Read response.
func (r *ReadResponse) Bytes() []byte {
	var resultSeq []byte
	for _, res := range r.ListOfAccessResult {
		if res.Success {
			resultSeq = append(resultSeq, res.Value.Bytes()...)
		} else {
			resultSeq = encodeTLV(resultSeq, 0x80, encodeUint32(uint32(res.Error.ErrorCode)))
		}
	}
	readContent := encodeTLV(nil, 0xA1, resultSeq)
	return encodeConfirmedResponse(r.InvokeID, encodeTLV(nil, tagServiceRead, readContent))
}

// ParseReadResponse decodes a Confirmed-ResponsePDU carrying a Read-Response.
func ParseReadResponse(buffer []byte) (ReadResponse, error) {
	invokeID, serviceTag, serviceContent, err := decodeConfirmedResponse(buffer)
	if err != nil {
		return ReadResponse{}, err
	}
	if serviceTag != tagServiceRead {
		return ReadResponse{}, xerrors.NewProtocol(layer, "expected read response tag 0x%02x, got 0x%02x", tagServiceRead, serviceTag)
	}
	results, err := parseListOfAccessResult(serviceContent)
	if err != nil {
		return ReadResponse{}, err
	}
	return ReadResponse{InvokeID: invokeID, ListOfAccessResult: results}, nil
}

// parseListOfAccessResult decodes a Read-Response's listOfAccessResult,
// tolerating both the nested [1]{[1]{SEQUENCE OF AccessResult}} shape and a
// single bare AccessResult collapsed by a peer that omits the envelope.
func parseListOfAccessResult(content []byte) ([]AccessResult, error) {
	items, err := decodeTLVs(content)
	if err != nil {
		return nil, err
	}
	var results []AccessResult
	for _, it := range items {
		switch it.tag {
		case 0xA1: // read service response, or nested wrapper
			nested, err := parseListOfAccessResult(it.value)
			if err != nil {
				return nil, err
			}
			results = append(results, nested...)
		case tagSequence:
			nested, err := parseListOfAccessResult(it.value)
			if err != nil {
				return nil, err
			}
			results = append(results, nested...)
		case 0x80: // failure
			results = append(results, AccessResult{Error: &DataAccessError{ErrorCode: DataAccessErrorCode(decodeUint32(it.value))}})
		default:
			v, ok, err := variant.Decode(it.tag, it.value)
			if err != nil {
				return nil, xerrors.NewProtocol(layer, "access-result: %s", err)
			}
			if !ok {
				continue // unrecognized Data alternative, skip rather than fail the whole response
			}
			results = append(results, AccessResult{Success: true, Value: v})
		}
	}
	return results, nil
}
