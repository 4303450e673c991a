package mms

import (
	"github.com/iec61850-go/osistack/internal/xerrors"
)

// InvokeID correlates a confirmed request with its eventual response or
// error, per ISO 9506-2 §7. Assignment and reuse policy is left to callers;
// this package only encodes/decodes the value.
type InvokeID uint32

// encodeConfirmedRequest wraps a service's own CHOICE-tagged content as a
// Confirmed-RequestPDU: tag 0xA0 containing the invoke-id INTEGER followed
// by the service content (itself already carrying its own service tag).
func encodeConfirmedRequest(invokeID InvokeID, service []byte) []byte {
	var content []byte
	content = encodeTLV(content, tagInteger, encodeUint32(uint32(invokeID)))
	content = append(content, service...)
	return encodeTLV(nil, tagConfirmedRequest, content)
}

// decodeConfirmedRequest unwraps a Confirmed-RequestPDU, returning the
// invoke-id plus the service's tag and content octets for the caller to
// dispatch on.
func decodeConfirmedRequest(pdu []byte) (InvokeID, byte, []byte, error) {
	return decodeConfirmedEnvelope(pdu, tagConfirmedRequest)
}

func encodeConfirmedResponse(invokeID InvokeID, service []byte) []byte {
	var content []byte
	content = encodeTLV(content, tagInteger, encodeUint32(uint32(invokeID)))
	content = append(content, service...)
	return encodeTLV(nil, tagConfirmedResponse, content)
}

func decodeConfirmedResponse(pdu []byte) (InvokeID, byte, []byte, error) {
	return decodeConfirmedEnvelope(pdu, tagConfirmedResponse)
}

func decodeConfirmedEnvelope(pdu []byte, wantTag byte) (InvokeID, byte, []byte, error) {
	items, err := decodeTLVs(pdu)
	if err != nil {
		return 0, 0, nil, err
	}
	if len(items) != 1 || items[0].tag != wantTag {
		return 0, 0, nil, xerrors.NewProtocol(layer, "confirmed envelope: expected single tag 0x%02x PDU", wantTag)
	}
	inner, err := decodeTLVs(items[0].value)
	if err != nil {
		return 0, 0, nil, err
	}
	if len(inner) < 2 || inner[0].tag != tagInteger {
		return 0, 0, nil, xerrors.NewProtocol(layer, "confirmed envelope: missing invoke-id or service")
	}
	return InvokeID(decodeUint32(inner[0].value)), inner[1].tag, inner[1].value, nil
}

// ConfirmedErrorClass is the coarse MMS error-class reported in a
// Confirmed-ErrorPDU. The full per-class enumerated sub-codes of ISO 9506-2
// Annex are out of scope; each class carries a single generic code instead.
type ConfirmedErrorClass byte

const (
	ErrorClassVMDState        ConfirmedErrorClass = 0
	ErrorClassApplicationRef  ConfirmedErrorClass = 1
	ErrorClassDefinition      ConfirmedErrorClass = 2
	ErrorClassResource        ConfirmedErrorClass = 3
	ErrorClassService         ConfirmedErrorClass = 4
	ErrorClassServicePreempt  ConfirmedErrorClass = 5
	ErrorClassTimeResolution  ConfirmedErrorClass = 6
	ErrorClassAccess          ConfirmedErrorClass = 7
	ErrorClassInitiate        ConfirmedErrorClass = 8
	ErrorClassConclude        ConfirmedErrorClass = 9
	ErrorClassCancel          ConfirmedErrorClass = 10
	ErrorClassOther           ConfirmedErrorClass = 11
)

// ConfirmedError is the content of a Confirmed-ErrorPDU: an invoke-id plus a
// generic error class/code pair.
type ConfirmedError struct {
	InvokeID InvokeID
	Class    ConfirmedErrorClass
	Code     uint32
}

// Bytes encodes a Confirmed-ErrorPDU (tag 0xA2).
func (e ConfirmedError) Bytes() []byte {
	var serviceErr []byte
	serviceErr = encodeTLV(serviceErr, byte(e.Class), encodeUint32(e.Code))
	var content []byte
	content = encodeTLV(content, tagInteger, encodeUint32(uint32(e.InvokeID)))
	content = encodeTLV(content, tagSequence, serviceErr)
	return encodeTLV(nil, tagConfirmedError, content)
}

// ParseConfirmedError decodes a Confirmed-ErrorPDU.
func ParseConfirmedError(pdu []byte) (ConfirmedError, error) {
	items, err := decodeTLVs(pdu)
	if err != nil {
		return ConfirmedError{}, err
	}
	if len(items) != 1 || items[0].tag != tagConfirmedError {
		return ConfirmedError{}, xerrors.NewProtocol(layer, "expected confirmed-ErrorPDU tag 0x%02x", tagConfirmedError)
	}
	inner, err := decodeTLVs(items[0].value)
	if err != nil {
		return ConfirmedError{}, err
	}
	if len(inner) < 2 {
		return ConfirmedError{}, xerrors.NewProtocol(layer, "confirmed-ErrorPDU: missing invoke-id or service-error")
	}
	out := ConfirmedError{InvokeID: InvokeID(decodeUint32(inner[0].value))}
	errItems, err := decodeTLVs(inner[1].value)
	if err != nil {
		return ConfirmedError{}, err
	}
	if len(errItems) > 0 {
		out.Class = ConfirmedErrorClass(errItems[0].tag)
		out.Code = decodeUint32(errItems[0].value)
	}
	return out, nil
}
