// Package copp implements the normal-mode subset of ISO 8823 / X.226
// Connection-Oriented Presentation Protocol (CP/CPA/DT PDUs), carried over
// a cosp.Conn.
package copp

import (
	"github.com/iec61850-go/osistack/ber"
	"github.com/iec61850-go/osistack/internal/xerrors"
)

const layer = "copp"

// Well-known presentation-context identifiers and abstract/transfer syntax
// object identifiers for the two contexts this stack negotiates: ACSE
// (carrying AARQ/AARE) and MMS (carrying the ISO 9506 application PDUs).
const (
	AcseContextID = 1
	MmsContextID  = 3

	acseAbstractSyntax = "2.2.1.0.1"  // joint-iso-itu-t association-control(2) abstract-syntax(1) apdus(0) version1(1)
	mmsAbstractSyntax  = "1.0.9506.2.1" // iso(1) standard(0) 9506 part2(2) mms-abstract-syntax-version1(1)
	berTransferSyntax  = "2.1.1"       // joint-iso-itu-t(2) asn1(1) basic-encoding(1)
)

// PresentationContext is one entry of the presentation-context-definition-list.
type PresentationContext struct {
	ID             int
	AbstractSyntax string
	TransferSyntax string
}

// defaultContexts is the fixed pair of contexts this implementation always
// proposes: ACSE for the association-control PDU carried as CP/CPA
// user-data, and MMS for application data carried in DT PDVs.
func defaultContexts() []PresentationContext {
	return []PresentationContext{
		{ID: AcseContextID, AbstractSyntax: acseAbstractSyntax, TransferSyntax: berTransferSyntax},
		{ID: MmsContextID, AbstractSyntax: mmsAbstractSyntax, TransferSyntax: berTransferSyntax},
	}
}

// encodeOID encodes a dotted-decimal OID string to its BER content octets.
func encodeOID(dotted string) ([]byte, error) {
	scratch := make([]byte, 64)
	n, err := ber.EncodeOIDToBuffer(dotted, scratch, len(scratch))
	if err != nil {
		return nil, xerrors.NewInternal(layer, "encoding OID %q: %s", dotted, err)
	}
	return scratch[:n], nil
}

// encodeTLV appends tag, BER length, and value to buf.
func encodeTLV(buf []byte, tag byte, value []byte) []byte {
	buf = append(buf, tag)
	lenBuf := make([]byte, 5)
	n := ber.EncodeLength(uint32(len(value)), lenBuf, 0)
	buf = append(buf, lenBuf[:n]...)
	return append(buf, value...)
}

// berTLV is one decoded tag/length/value triple from a flat BER walk.
type berTLV struct {
	tag   byte
	value []byte
}

// decodeTLVs walks a constructed BER value's immediate children.
func decodeTLVs(buf []byte) ([]berTLV, error) {
	var out []berTLV
	pos := 0
	for pos < len(buf) {
		if pos+1 > len(buf) {
			return nil, xerrors.NewProtocol(layer, "truncated BER tag at offset %d", pos)
		}
		tag := buf[pos]
		pos++
		next, length, err := ber.DecodeLength(buf, pos, len(buf))
		if err != nil {
			return nil, xerrors.NewProtocol(layer, "truncated BER length at offset %d: %s", pos, err)
		}
		pos = next
		if pos+length > len(buf) {
			return nil, xerrors.NewProtocol(layer, "BER value tag 0x%02x length %d exceeds remaining buffer", tag, length)
		}
		out = append(out, berTLV{tag: tag, value: buf[pos : pos+length]})
		pos += length
	}
	return out, nil
}

func findTLV(items []berTLV, tag byte) ([]byte, bool) {
	for _, it := range items {
		if it.tag == tag {
			return it.value, true
		}
	}
	return nil, false
}
