package mms

import (
	"github.com/iec61850-go/osistack/internal/xerrors"
	"github.com/iec61850-go/osistack/mms/variant"
)

// InformationReport is the unconfirmed PDU a server sends to push a named
// variable list's current values to a client without a matching request —
// the wire shape behind IEC 61850 report control block transmissions.
type InformationReport struct {
	Variables []ObjectName
	Results   []AccessResult
}

// Bytes encodes the Unconfirmed-PDU (tag 0xA3) carrying this report.
func (r *InformationReport) Bytes() []byte {
	varSpec := encodeListOfVariable(r.Variables...)

	var resultSeq []byte
	for _, res := range r.Results {
		if res.Success {
			resultSeq = append(resultSeq, res.Value.Bytes()...)
		} else {
			resultSeq = encodeTLV(resultSeq, 0x80, encodeUint32(uint32(res.Error.ErrorCode)))
		}
	}
	listOfAccessResult := encodeTLV(nil, tagUnconfirmedInformationReport, encodeTLV(nil, tagSequence, resultSeq))

	content := append(varSpec, listOfAccessResult...)
	service := encodeTLV(nil, tagUnconfirmedInformationReport, content)
	return encodeTLV(nil, tagUnconfirmed, service)
}

// ParseInformationReport decodes an Unconfirmed-PDU carrying an
// InformationReport; it is an error if the PDU carries any other
// unconfirmed service, since InformationReport is the only alternative this
// stack implements.
func ParseInformationReport(pdu []byte) (InformationReport, error) {
	items, err := decodeTLVs(pdu)
	if err != nil {
		return InformationReport{}, err
	}
	if len(items) != 1 || items[0].tag != tagUnconfirmed {
		return InformationReport{}, xerrors.NewProtocol(layer, "expected unconfirmed-PDU tag 0x%02x", tagUnconfirmed)
	}
	service, err := decodeTLVs(items[0].value)
	if err != nil {
		return InformationReport{}, err
	}
	if len(service) != 1 || service[0].tag != tagUnconfirmedInformationReport {
		return InformationReport{}, xerrors.NewProtocol(layer, "unsupported unconfirmed service tag")
	}

	fields, err := decodeTLVs(service[0].value)
	if err != nil {
		return InformationReport{}, err
	}

	var report InformationReport
	for _, f := range fields {
		if f.tag != tagUnconfirmedInformationReport {
			continue
		}
		// Ambiguous: both variableAccessSpecification and
		// listOfAccessResult are wrapped under the same [0] tag in this
		// encoding. Disambiguate by content: a Variable-Specification
		// SEQUENCE decodes cleanly to object names, an AccessResult
		// SEQUENCE does not.
		if names, err := decodeListOfVariable(f.value); err == nil && len(names) > 0 {
			report.Variables = names
			continue
		}
		results, err := parseListOfAccessResult(f.value)
		if err != nil {
			return InformationReport{}, err
		}
		report.Results = results
	}
	return report, nil
}
