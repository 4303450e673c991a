package acse

import (
	"github.com/iec61850-go/osistack/ber"
	"github.com/iec61850-go/osistack/internal/xerrors"
)

// Context-specific tag numbers within AARQ/AARE, per spec.md §4.5.
const (
	tagProtocolVersion = 0 // [0], primitive, BIT STRING

	// AARQ
	tagAppContextName       = 1 // [1], implicit OID, REQUIRED
	tagCalledAPTitle        = 2 // [2], explicit AP-title
	tagCalledAEQualifier    = 3 // [3], explicit AE-qualifier
	tagCalledAPInvocation   = 4 // [4], explicit INTEGER
	tagCalledAEInvocation   = 5 // [5], explicit INTEGER
	tagCallingAPTitle       = 6 // [6], explicit AP-title
	tagCallingAEQualifier   = 7 // [7], explicit AE-qualifier
	tagCallingAPInvocation  = 8 // [8], explicit INTEGER
	tagCallingAEInvocation  = 9 // [9], explicit INTEGER

	// AARE
	tagAssociateResult     = 2  // [2], explicit INTEGER
	tagSourceDiagnostic    = 3  // [3], explicit CHOICE
	tagRespondingAPTitle   = 4  // [4], explicit AP-title
	tagRespondingAEQual    = 5  // [5], explicit AE-qualifier
	tagRespondingAPInvoc   = 6  // [6], explicit INTEGER
	tagRespondingAEInvoc   = 7  // [7], explicit INTEGER

	tagImplementationInfo = 29 // [29], primitive GraphicString
	tagUserInformation    = 30 // [30], constructed, EXTERNAL list

	diagUser     = 1 // associate-source-diagnostic choice [1] user
	diagProvider = 2 // associate-source-diagnostic choice [2] provider
)

// ApTitle is the Form2 (OID) application-process title; Form1 (Name/DN) is
// not supported (spec.md: "AP-title Form2(OID)-only").
type ApTitle string

// AeQualifier is the Form2 (INTEGER) application-entity qualifier; Form1
// (RDNSequence) is not supported (spec.md: "AE-qualifier Form2(integer)-only").
type AeQualifier int64

// AssociationRequest is the decoded content of an AARQ PDU.
type AssociationRequest struct {
	ApplicationContextName string // OID, dotted-decimal, REQUIRED

	CalledAPTitle      *ApTitle
	CalledAEQualifier  *AeQualifier
	CalledAPInvocation *int64
	CalledAEInvocation *int64

	CallingAPTitle      *ApTitle
	CallingAEQualifier  *AeQualifier
	CallingAPInvocation *int64
	CallingAEInvocation *int64

	ImplementationInformation string

	// UserInformation carries the MMS Initiate-RequestPDU bytes.
	UserInformation []byte
}

// AssociateResult is the outcome ACSE reports in an AARE.
type AssociateResult int

const (
	ResultAccepted AssociateResult = iota
	ResultRejectedPermanent
	ResultRejectedTransient
)

// Diagnostic is the associate-source-diagnostic choice: Source selects the
// user or provider alternative, and Code is read against that alternative's
// code table.
type Diagnostic struct {
	Source   int // diagUser or diagProvider
	Code     int
}

func (d Diagnostic) String() string {
	switch d.Source {
	case diagUser:
		return userDiagnosticNames[d.Code]
	case diagProvider:
		return providerDiagnosticNames[d.Code]
	default:
		return "unknown"
	}
}

// The 15 user and 3 provider associate-source-diagnostic codes of X.227.
var userDiagnosticNames = map[int]string{
	0:  "null",
	1:  "no-reason-given",
	2:  "application-context-name-not-supported",
	3:  "calling-AP-title-not-recognized",
	4:  "calling-AP-invocation-identifier-not-recognized",
	5:  "calling-AE-qualifier-not-recognized",
	6:  "calling-AE-invocation-identifier-not-recognized",
	7:  "called-AP-title-not-recognized",
	8:  "called-AP-invocation-identifier-not-recognized",
	9:  "called-AE-qualifier-not-recognized",
	10: "called-AE-invocation-identifier-not-recognized",
	11: "authentication-mechanism-name-not-recognized",
	12: "authentication-mechanism-name-required",
	13: "authentication-failure",
	14: "authentication-required",
}

var providerDiagnosticNames = map[int]string{
	0: "null",
	1: "no-reason-given",
	2: "no-common-acse-version",
}

// AssociationResponse is the decoded/to-be-encoded content of an AARE PDU.
type AssociationResponse struct {
	ApplicationContextName string

	Result     AssociateResult
	Diagnostic Diagnostic

	RespondingAPTitle      *ApTitle
	RespondingAEQualifier  *AeQualifier
	RespondingAPInvocation *int64
	RespondingAEInvocation *int64

	ImplementationInformation string

	// UserInformation carries the MMS Initiate-ResponsePDU (or
	// Initiate-Error) bytes.
	UserInformation []byte
}

func encodeExplicitOID(tag byte, dotted string) ([]byte, error) {
	oid, err := encodeACSEOID(dotted)
	if err != nil {
		return nil, err
	}
	inner := encodeTLV(nil, byte(ber.ObjectIdentifier), oid)
	return encodeTLV(nil, byte(ber.MakeContextSpecificTag(tag, true)), inner), nil
}

func encodeExplicitInt(tag byte, v int64) []byte {
	inner := encodeTLV(nil, byte(ber.Integer), encodeACSEInt(v))
	return encodeTLV(nil, byte(ber.MakeContextSpecificTag(tag, true)), inner)
}

func encodeAPTitle(tag byte, title ApTitle) ([]byte, error) {
	return encodeExplicitOID(tag, string(title))
}

func encodeAEQualifier(tag byte, q AeQualifier) []byte {
	return encodeExplicitInt(tag, int64(q))
}

func encodeUserInformation(data []byte) []byte {
	// EXTERNAL { indirect-reference INTEGER (context-id), encoding
	// single-ASN1-type [0] (raw opaque bytes) }, the sole entry of the
	// user-information [30] constructed list.
	idRef := encodeTLV(nil, byte(ber.Integer), []byte{copp_MmsContextID})
	payload := encodeTLV(nil, byte(ber.ContextSpecific0Constructed), data)
	ext := encodeTLV(nil, byte(ber.ExternalConstructed), append(idRef, payload...))
	return encodeTLV(nil, byte(ber.MakeContextSpecificTag(tagUserInformation, true)), ext)
}

// copp_MmsContextID holds the same value as copp.MmsContextID. The
// user-information EXTERNAL's indirect-reference always names the
// MMS-carrying presentation context.
const copp_MmsContextID = 3

func decodeUserInformation(buf []byte) ([]byte, error) {
	items, err := decodeTLVs(buf)
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		if it.tag != byte(ber.ExternalConstructed) {
			continue
		}
		fields, err := decodeTLVs(it.value)
		if err != nil {
			return nil, err
		}
		if payload, ok := findTLV(fields, byte(ber.ContextSpecific0Constructed)); ok {
			return append([]byte(nil), payload...), nil
		}
	}
	return nil, xerrors.NewProtocol(layer, "user-information carries no recognizable payload")
}

func decodeAPTitle(buf []byte) (ApTitle, error) {
	items, err := decodeTLVs(buf)
	if err != nil {
		return "", err
	}
	oidBytes, ok := findTLV(items, byte(ber.ObjectIdentifier))
	if !ok {
		return "", xerrors.NewProtocol(layer, "AP-title: expected Form2 OID, none found")
	}
	dotted, err := decodeACSEOID(oidBytes)
	if err != nil {
		return "", err
	}
	return ApTitle(dotted), nil
}

func decodeAEQualifier(buf []byte) (AeQualifier, error) {
	items, err := decodeTLVs(buf)
	if err != nil {
		return 0, err
	}
	intBytes, ok := findTLV(items, byte(ber.Integer))
	if !ok {
		return 0, xerrors.NewProtocol(layer, "AE-qualifier: expected Form2 INTEGER, none found")
	}
	return AeQualifier(decodeACSEInt(intBytes)), nil
}

func decodeExplicitInt(buf []byte) (int64, error) {
	items, err := decodeTLVs(buf)
	if err != nil {
		return 0, err
	}
	intBytes, ok := findTLV(items, byte(ber.Integer))
	if !ok {
		return 0, xerrors.NewProtocol(layer, "expected nested INTEGER, none found")
	}
	return decodeACSEInt(intBytes), nil
}

func buildAARQ(req AssociationRequest) ([]byte, error) {
	var body []byte
	body = append(body, encodeTLV(nil, byte(ber.ContextSpecific0Primitive), []byte{0x80})...) // protocol-version 1

	// application-context-name is IMPLICIT (no nested universal tag), unlike
	// AP-title/AE-qualifier which are EXPLICIT CHOICE alternatives.
	acnOID, err := encodeACSEOID(req.ApplicationContextName)
	if err != nil {
		return nil, err
	}
	body = append(body, encodeTLV(nil, byte(ber.MakeContextSpecificTag(tagAppContextName, false)), acnOID)...)

	if req.CalledAPTitle != nil {
		v, err := encodeAPTitle(tagCalledAPTitle, *req.CalledAPTitle)
		if err != nil {
			return nil, err
		}
		body = append(body, v...)
	}
	if req.CalledAEQualifier != nil {
		body = append(body, encodeAEQualifier(tagCalledAEQualifier, *req.CalledAEQualifier)...)
	}
	if req.CalledAPInvocation != nil {
		body = append(body, encodeExplicitInt(tagCalledAPInvocation, *req.CalledAPInvocation)...)
	}
	if req.CalledAEInvocation != nil {
		body = append(body, encodeExplicitInt(tagCalledAEInvocation, *req.CalledAEInvocation)...)
	}
	if req.CallingAPTitle != nil {
		v, err := encodeAPTitle(tagCallingAPTitle, *req.CallingAPTitle)
		if err != nil {
			return nil, err
		}
		body = append(body, v...)
	}
	if req.CallingAEQualifier != nil {
		body = append(body, encodeAEQualifier(tagCallingAEQualifier, *req.CallingAEQualifier)...)
	}
	if req.CallingAPInvocation != nil {
		body = append(body, encodeExplicitInt(tagCallingAPInvocation, *req.CallingAPInvocation)...)
	}
	if req.CallingAEInvocation != nil {
		body = append(body, encodeExplicitInt(tagCallingAEInvocation, *req.CallingAEInvocation)...)
	}
	if req.ImplementationInformation != "" {
		body = append(body, encodeTLV(nil, byte(ber.MakeContextSpecificTag(tagImplementationInfo, false)), []byte(req.ImplementationInformation))...)
	}
	body = append(body, encodeUserInformation(req.UserInformation)...)

	return encodeTLV(nil, byte(ber.Application0Constructed), body), nil
}

func parseAARQ(buf []byte) (AssociationRequest, error) {
	var req AssociationRequest
	outer, err := decodeTLVs(buf)
	if err != nil {
		return req, err
	}
	if len(outer) != 1 || outer[0].tag != byte(ber.Application0Constructed) {
		return req, xerrors.NewProtocol(layer, "expected AARQ (tag 0x%02x)", ber.Application0Constructed)
	}
	fields, err := decodeTLVs(outer[0].value)
	if err != nil {
		return req, err
	}

	acnBytes, ok := findTLV(fields, byte(ber.MakeContextSpecificTag(tagAppContextName, false)))
	if !ok {
		return req, xerrors.NewProtocol(layer, "AARQ missing required application-context-name")
	}
	acn, err := decodeACSEOID(acnBytes)
	if err != nil {
		return req, err
	}
	req.ApplicationContextName = acn

	if v, ok := findTLV(fields, byte(ber.MakeContextSpecificTag(tagCalledAPTitle, true))); ok {
		t, err := decodeAPTitle(v)
		if err != nil {
			return req, err
		}
		req.CalledAPTitle = &t
	}
	if v, ok := findTLV(fields, byte(ber.MakeContextSpecificTag(tagCalledAEQualifier, true))); ok {
		q, err := decodeAEQualifier(v)
		if err != nil {
			return req, err
		}
		req.CalledAEQualifier = &q
	}
	if v, ok := findTLV(fields, byte(ber.MakeContextSpecificTag(tagCalledAPInvocation, true))); ok {
		n, err := decodeExplicitInt(v)
		if err != nil {
			return req, err
		}
		req.CalledAPInvocation = &n
	}
	if v, ok := findTLV(fields, byte(ber.MakeContextSpecificTag(tagCalledAEInvocation, true))); ok {
		n, err := decodeExplicitInt(v)
		if err != nil {
			return req, err
		}
		req.CalledAEInvocation = &n
	}
	if v, ok := findTLV(fields, byte(ber.MakeContextSpecificTag(tagCallingAPTitle, true))); ok {
		t, err := decodeAPTitle(v)
		if err != nil {
			return req, err
		}
		req.CallingAPTitle = &t
	}
	if v, ok := findTLV(fields, byte(ber.MakeContextSpecificTag(tagCallingAEQualifier, true))); ok {
		q, err := decodeAEQualifier(v)
		if err != nil {
			return req, err
		}
		req.CallingAEQualifier = &q
	}
	if v, ok := findTLV(fields, byte(ber.MakeContextSpecificTag(tagCallingAPInvocation, true))); ok {
		n, err := decodeExplicitInt(v)
		if err != nil {
			return req, err
		}
		req.CallingAPInvocation = &n
	}
	if v, ok := findTLV(fields, byte(ber.MakeContextSpecificTag(tagCallingAEInvocation, true))); ok {
		n, err := decodeExplicitInt(v)
		if err != nil {
			return req, err
		}
		req.CallingAEInvocation = &n
	}
	if v, ok := findTLV(fields, byte(ber.MakeContextSpecificTag(tagImplementationInfo, false))); ok {
		req.ImplementationInformation = string(v)
	}
	ui, ok := findTLV(fields, byte(ber.MakeContextSpecificTag(tagUserInformation, true)))
	if !ok {
		return req, xerrors.NewProtocol(layer, "AARQ missing required user-information")
	}
	req.UserInformation, err = decodeUserInformation(ui)
	if err != nil {
		return req, err
	}
	return req, nil
}

func buildAARE(resp AssociationResponse) ([]byte, error) {
	var body []byte
	body = append(body, encodeTLV(nil, byte(ber.ContextSpecific0Primitive), []byte{0x80})...)

	acnOID, err := encodeACSEOID(resp.ApplicationContextName)
	if err != nil {
		return nil, err
	}
	body = append(body, encodeTLV(nil, byte(ber.MakeContextSpecificTag(tagAppContextName, false)), acnOID)...)

	body = append(body, encodeExplicitInt(tagAssociateResult, int64(resp.Result))...)

	var diagInner []byte
	diagInner = encodeTLV(diagInner, byte(ber.Integer), encodeACSEInt(int64(resp.Diagnostic.Code)))
	diagChoice := encodeTLV(nil, byte(ber.MakeContextSpecificTag(byte(resp.Diagnostic.Source), true)), diagInner)
	body = append(body, encodeTLV(nil, byte(ber.MakeContextSpecificTag(tagSourceDiagnostic, true)), diagChoice)...)

	if resp.RespondingAPTitle != nil {
		v, err := encodeAPTitle(tagRespondingAPTitle, *resp.RespondingAPTitle)
		if err != nil {
			return nil, err
		}
		body = append(body, v...)
	}
	if resp.RespondingAEQualifier != nil {
		body = append(body, encodeAEQualifier(tagRespondingAEQual, *resp.RespondingAEQualifier)...)
	}
	if resp.RespondingAPInvocation != nil {
		body = append(body, encodeExplicitInt(tagRespondingAPInvoc, *resp.RespondingAPInvocation)...)
	}
	if resp.RespondingAEInvocation != nil {
		body = append(body, encodeExplicitInt(tagRespondingAEInvoc, *resp.RespondingAEInvocation)...)
	}
	if resp.ImplementationInformation != "" {
		body = append(body, encodeTLV(nil, byte(ber.MakeContextSpecificTag(tagImplementationInfo, false)), []byte(resp.ImplementationInformation))...)
	}
	body = append(body, encodeUserInformation(resp.UserInformation)...)

	return encodeTLV(nil, byte(ber.MakeApplicationTag(1, true)), body), nil
}

func parseAARE(buf []byte) (AssociationResponse, error) {
	var resp AssociationResponse
	outer, err := decodeTLVs(buf)
	if err != nil {
		return resp, err
	}
	if len(outer) != 1 || outer[0].tag != byte(ber.MakeApplicationTag(1, true)) {
		return resp, xerrors.NewProtocol(layer, "expected AARE (tag 0x%02x)", byte(ber.MakeApplicationTag(1, true)))
	}
	fields, err := decodeTLVs(outer[0].value)
	if err != nil {
		return resp, err
	}

	acnBytes, ok := findTLV(fields, byte(ber.MakeContextSpecificTag(tagAppContextName, false)))
	if !ok {
		return resp, xerrors.NewProtocol(layer, "AARE missing required application-context-name")
	}
	acn, err := decodeACSEOID(acnBytes)
	if err != nil {
		return resp, err
	}
	resp.ApplicationContextName = acn

	resultBuf, ok := findTLV(fields, byte(ber.MakeContextSpecificTag(tagAssociateResult, true)))
	if !ok {
		return resp, xerrors.NewProtocol(layer, "AARE missing required associate-result")
	}
	resultVal, err := decodeExplicitInt(resultBuf)
	if err != nil {
		return resp, err
	}
	resp.Result = AssociateResult(resultVal)

	diagBuf, ok := findTLV(fields, byte(ber.MakeContextSpecificTag(tagSourceDiagnostic, true)))
	if !ok {
		return resp, xerrors.NewProtocol(layer, "AARE missing required associate-source-diagnostic")
	}
	diagItems, err := decodeTLVs(diagBuf)
	if err != nil {
		return resp, err
	}
	if len(diagItems) != 1 {
		return resp, xerrors.NewProtocol(layer, "associate-source-diagnostic: expected exactly one choice alternative")
	}
	choice := diagItems[0]
	choiceFields, err := decodeTLVs(choice.value)
	if err != nil {
		return resp, err
	}
	codeBytes, ok := findTLV(choiceFields, byte(ber.Integer))
	if !ok {
		return resp, xerrors.NewProtocol(layer, "associate-source-diagnostic: missing INTEGER code")
	}
	source := int(choice.tag &^ byte(ber.ClassContextSpecific) &^ byte(ber.FormConstructed))
	resp.Diagnostic = Diagnostic{Source: source, Code: int(decodeACSEInt(codeBytes))}

	if v, ok := findTLV(fields, byte(ber.MakeContextSpecificTag(tagRespondingAPTitle, true))); ok {
		t, err := decodeAPTitle(v)
		if err != nil {
			return resp, err
		}
		resp.RespondingAPTitle = &t
	}
	if v, ok := findTLV(fields, byte(ber.MakeContextSpecificTag(tagRespondingAEQual, true))); ok {
		q, err := decodeAEQualifier(v)
		if err != nil {
			return resp, err
		}
		resp.RespondingAEQualifier = &q
	}
	if v, ok := findTLV(fields, byte(ber.MakeContextSpecificTag(tagRespondingAPInvoc, true))); ok {
		n, err := decodeExplicitInt(v)
		if err != nil {
			return resp, err
		}
		resp.RespondingAPInvocation = &n
	}
	if v, ok := findTLV(fields, byte(ber.MakeContextSpecificTag(tagRespondingAEInvoc, true))); ok {
		n, err := decodeExplicitInt(v)
		if err != nil {
			return resp, err
		}
		resp.RespondingAEInvocation = &n
	}
	if v, ok := findTLV(fields, byte(ber.MakeContextSpecificTag(tagImplementationInfo, false))); ok {
		resp.ImplementationInformation = string(v)
	}
	ui, ok := findTLV(fields, byte(ber.MakeContextSpecificTag(tagUserInformation, true)))
	if !ok {
		return resp, xerrors.NewProtocol(layer, "AARE missing required user-information")
	}
	resp.UserInformation, err = decodeUserInformation(ui)
	if err != nil {
		return resp, err
	}
	return resp, nil
}
