package copp

import (
	"github.com/iec61850-go/osistack/ber"
	"github.com/iec61850-go/osistack/internal/xerrors"
)

// octetAligned is the presentation-data-values choice this implementation
// always uses: [1] IMPLICIT OCTET STRING, i.e. the raw bytes of whatever the
// negotiated transfer syntax (BER) already produced for the carried layer.
const tagPDVOctetAligned = 1

// pdv is one entry of a PDV-list / Fully-Encoded-Data value: a single
// presentation-context-identifier paired with its encoded data.
type pdv struct {
	contextID int
	data      []byte
}

// buildFullyEncodedData encodes the Application[1] Fully-Encoded-Data field
// used for CP/CPA/DT user-data: a concatenation of PDV-list SEQUENCEs, one
// per pdv entry, each carrying the presentation-context-identifier and the
// octet-aligned presentation-data-values.
func buildFullyEncodedData(pdvs []pdv) []byte {
	var entries []byte
	for _, p := range pdvs {
		var entry []byte
		entry = encodeTLV(entry, byte(ber.Integer), []byte{byte(p.contextID)})
		entry = encodeTLV(entry, byte(ber.MakeContextSpecificTag(tagPDVOctetAligned, false)), p.data)
		entries = append(entries, encodeTLV(nil, byte(ber.SequenceConstructed), entry)...)
	}
	return encodeTLV(nil, byte(ber.Application1Constructed), entries)
}

// parseFullyEncodedData decodes the content octets of an Application[1]
// Fully-Encoded-Data value (the tag itself is assumed already stripped by
// the caller) into its constituent PDVs.
func parseFullyEncodedData(content []byte) ([]pdv, error) {
	items, err := decodeTLVs(content)
	if err != nil {
		return nil, err
	}
	var out []pdv
	for _, it := range items {
		if it.tag != byte(ber.SequenceConstructed) {
			return nil, xerrors.NewProtocol(layer, "PDV-list entry: expected SEQUENCE, got tag 0x%02x", it.tag)
		}
		fields, err := decodeTLVs(it.value)
		if err != nil {
			return nil, err
		}
		idBytes, ok := findTLV(fields, byte(ber.Integer))
		if !ok || len(idBytes) == 0 {
			return nil, xerrors.NewProtocol(layer, "PDV-list entry missing presentation-context-identifier")
		}
		data, ok := findTLV(fields, byte(ber.MakeContextSpecificTag(tagPDVOctetAligned, false)))
		if !ok {
			return nil, xerrors.NewProtocol(layer, "PDV-list entry missing octet-aligned presentation-data-values")
		}
		out = append(out, pdv{contextID: int(idBytes[len(idBytes)-1]), data: append([]byte(nil), data...)})
	}
	return out, nil
}

// buildDataPDV wraps one data-phase payload (an MMS PDU) as the sole PDV of
// a Fully-Encoded-Data value tagged with the MMS presentation context.
func buildDataPDV(mmsData []byte) []byte {
	return buildFullyEncodedData([]pdv{{contextID: MmsContextID, data: mmsData}})
}

// parseDataPDV decodes a DT-data TSSDU (the Fully-Encoded-Data value
// received from cosp.Conn.Recv) and returns the MMS-context payload.
func parseDataPDV(tssdu []byte) ([]byte, error) {
	outer, err := decodeTLVs(tssdu)
	if err != nil {
		return nil, err
	}
	if len(outer) != 1 || outer[0].tag != byte(ber.Application1Constructed) {
		return nil, xerrors.NewProtocol(layer, "expected Fully-Encoded-Data (tag 0x%02x)", ber.Application1Constructed)
	}
	pdvs, err := parseFullyEncodedData(outer[0].value)
	if err != nil {
		return nil, err
	}
	for _, p := range pdvs {
		if p.contextID == MmsContextID {
			return p.data, nil
		}
	}
	return nil, xerrors.NewProtocol(layer, "data TSSDU carries no MMS-context PDV")
}
