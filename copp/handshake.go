package copp

import (
	"github.com/iec61850-go/osistack/ber"
	"github.com/iec61850-go/osistack/internal/xerrors"
)

// Context-specific tag numbers used within CP/CPA's normal-mode-parameters.
const (
	tagModeSelector       = 0
	tagModeValue          = 0
	tagCallingSelector    = 1
	tagCalledSelector     = 2
	tagRespondingSelector = 3
	tagContextDefList     = 4
	tagContextResultList  = 5
	tagProtocol           = 0 // within normal-mode-parameters, CPA's protocol-version reuses [0]
	tagPresentationReqs   = 8

	tagContextResult       = 0
	tagTransferSyntaxName  = 1
	tagProviderReason      = 2

	normalModeValue = 1 // mode-value: normal-mode
)

// Selectors are the calling/called presentation-selector octet strings.
type Selectors struct {
	Calling []byte
	Called  []byte
}

func modeSelectorTLV() []byte {
	modeValue := encodeTLV(nil, byte(ber.ContextSpecific0Primitive), []byte{normalModeValue})
	return encodeTLV(nil, byte(ber.MakeContextSpecificTag(tagModeSelector, true)), modeValue)
}

func contextDefListTLV(contexts []PresentationContext) ([]byte, error) {
	var entries []byte
	for _, c := range contexts {
		abstractOID, err := encodeOID(c.AbstractSyntax)
		if err != nil {
			return nil, err
		}
		transferOID, err := encodeOID(c.TransferSyntax)
		if err != nil {
			return nil, err
		}
		var entry []byte
		entry = encodeTLV(entry, byte(ber.Integer), []byte{byte(c.ID)})
		entry = encodeTLV(entry, byte(ber.ObjectIdentifier), abstractOID)
		// transfer-syntax-name-list is itself a SEQUENCE OF OID; with a single
		// transfer syntax this implementation always emits exactly one entry.
		transferList := encodeTLV(nil, byte(ber.ObjectIdentifier), transferOID)
		entry = append(entry, encodeTLV(nil, byte(ber.SequenceConstructed), transferList)...)
		entries = append(entries, encodeTLV(nil, byte(ber.SequenceConstructed), entry)...)
	}
	return encodeTLV(nil, byte(ber.MakeContextSpecificTag(tagContextDefList, true)), entries), nil
}

func presentationRequirementsTLV() []byte {
	// BIT STRING(6 unused, value 0): no context-management/restoration requested.
	return encodeTLV(nil, byte(ber.MakeContextSpecificTag(tagPresentationReqs, false)), []byte{0x06, 0x00})
}

// buildCP assembles a CP-type PPDU: the SET-tagged mode-selector and
// normal-mode-parameters, with associationData (the ACSE AARQ) carried as
// the single PDV of the Fully-Encoded-Data user-data field.
func buildCP(sel Selectors, associationData []byte) ([]byte, error) {
	var params []byte
	if len(sel.Calling) > 0 {
		params = append(params, encodeTLV(nil, byte(ber.MakeContextSpecificTag(tagCallingSelector, false)), sel.Calling)...)
	}
	if len(sel.Called) > 0 {
		params = append(params, encodeTLV(nil, byte(ber.MakeContextSpecificTag(tagCalledSelector, false)), sel.Called)...)
	}
	ctxList, err := contextDefListTLV(defaultContexts())
	if err != nil {
		return nil, err
	}
	params = append(params, ctxList...)
	params = append(params, presentationRequirementsTLV()...)
	params = append(params, buildFullyEncodedData([]pdv{{contextID: AcseContextID, data: associationData}})...)

	body := modeSelectorTLV()
	body = encodeTLV(body, byte(ber.MakeContextSpecificTag(2, true)), params)
	return encodeTLV(nil, byte(ber.SetConstructed), body), nil
}

type cpInfo struct {
	callingSelector []byte
	calledSelector  []byte
	associationData []byte
}

func parseCP(buf []byte) (cpInfo, error) {
	var info cpInfo
	outer, err := decodeTLVs(buf)
	if err != nil {
		return info, err
	}
	if len(outer) != 1 || outer[0].tag != byte(ber.SetConstructed) {
		return info, xerrors.NewProtocol(layer, "expected CP PPDU as a single SET (tag 0x%02x)", ber.SetConstructed)
	}
	items, err := decodeTLVs(outer[0].value)
	if err != nil {
		return info, err
	}
	params, ok := findTLV(items, byte(ber.MakeContextSpecificTag(2, true)))
	if !ok {
		return info, xerrors.NewProtocol(layer, "CP PPDU missing normal-mode-parameters")
	}
	fields, err := decodeTLVs(params)
	if err != nil {
		return info, err
	}
	if v, ok := findTLV(fields, byte(ber.MakeContextSpecificTag(tagCallingSelector, false))); ok {
		info.callingSelector = append([]byte(nil), v...)
	}
	if v, ok := findTLV(fields, byte(ber.MakeContextSpecificTag(tagCalledSelector, false))); ok {
		info.calledSelector = append([]byte(nil), v...)
	}
	ud, ok := findTLV(fields, byte(ber.Application1Constructed))
	if !ok {
		return info, xerrors.NewProtocol(layer, "CP PPDU missing user-data")
	}
	pdvs, err := parseFullyEncodedData(ud)
	if err != nil {
		return info, err
	}
	found := false
	for _, p := range pdvs {
		if p.contextID == AcseContextID {
			info.associationData = p.data
			found = true
		}
	}
	if !found {
		return info, xerrors.NewProtocol(layer, "CP PPDU user-data carries no ACSE-context PDV")
	}
	return info, nil
}

// buildCPA assembles a CPA PPDU mirroring CP, always accepting every
// proposed context (this implementation does not reject contexts).
func buildCPA(respondingSelector []byte, acceptedContexts []PresentationContext, associationData []byte) ([]byte, error) {
	var params []byte
	if len(respondingSelector) > 0 {
		params = append(params, encodeTLV(nil, byte(ber.MakeContextSpecificTag(tagRespondingSelector, false)), respondingSelector)...)
	}
	var resultEntries []byte
	for range acceptedContexts {
		entry := encodeTLV(nil, byte(ber.MakeContextSpecificTag(tagContextResult, false)), []byte{0x00}) // acceptance
		resultEntries = append(resultEntries, encodeTLV(nil, byte(ber.SequenceConstructed), entry)...)
	}
	params = append(params, encodeTLV(nil, byte(ber.MakeContextSpecificTag(tagContextResultList, true)), resultEntries)...)
	params = append(params, presentationRequirementsTLV()...)
	params = append(params, buildFullyEncodedData([]pdv{{contextID: AcseContextID, data: associationData}})...)

	body := modeSelectorTLV()
	body = encodeTLV(body, byte(ber.MakeContextSpecificTag(2, true)), params)
	return encodeTLV(nil, byte(ber.SetConstructed), body), nil
}

type cpaInfo struct {
	respondingSelector []byte
	associationData    []byte
}

func parseCPA(buf []byte) (cpaInfo, error) {
	var info cpaInfo
	outer, err := decodeTLVs(buf)
	if err != nil {
		return info, err
	}
	if len(outer) != 1 || outer[0].tag != byte(ber.SetConstructed) {
		return info, xerrors.NewProtocol(layer, "expected CPA PPDU as a single SET (tag 0x%02x)", ber.SetConstructed)
	}
	items, err := decodeTLVs(outer[0].value)
	if err != nil {
		return info, err
	}
	params, ok := findTLV(items, byte(ber.MakeContextSpecificTag(2, true)))
	if !ok {
		return info, xerrors.NewProtocol(layer, "CPA PPDU missing normal-mode-parameters")
	}
	fields, err := decodeTLVs(params)
	if err != nil {
		return info, err
	}
	if v, ok := findTLV(fields, byte(ber.MakeContextSpecificTag(tagRespondingSelector, false))); ok {
		info.respondingSelector = append([]byte(nil), v...)
	}
	ud, ok := findTLV(fields, byte(ber.Application1Constructed))
	if !ok {
		return info, xerrors.NewProtocol(layer, "CPA PPDU missing user-data")
	}
	pdvs, err := parseFullyEncodedData(ud)
	if err != nil {
		return info, err
	}
	found := false
	for _, p := range pdvs {
		if p.contextID == AcseContextID {
			info.associationData = p.data
			found = true
		}
	}
	if !found {
		return info, xerrors.NewProtocol(layer, "CPA PPDU user-data carries no ACSE-context PDV")
	}
	return info, nil
}
