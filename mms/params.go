// Package mms implements the Manufacturing Message Specification
// (ISO/IEC 9506) application PDUs carried as MMS user-data over an
// established acse.Conn, per spec.md §4.6. Only the confirmed/unconfirmed
// services the IEC 61850 ACSI profile actually uses are implemented:
// Initiate, Read, Write, GetNameList, Identify,
// DefineNamedVariableList/DeleteNamedVariableList/GetNamedVariableListAttributes,
// GetVariableAccessAttributes, and the unconfirmed InformationReport.
// Scattered-access variables and the full MMS abstract-type grammar are out
// of scope; named-variable-list services are implemented at the envelope
// level, reusing the same object-name and access-result shapes as Read.
package mms

import (
	"github.com/iec61850-go/osistack/ber"
	"github.com/iec61850-go/osistack/internal/xerrors"
)

const layer = "mms"

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

func findAllTLV(items []berTLV, tag byte) [][]byte {
	var out [][]byte
	for _, it := range items {
		if it.tag == tag {
			out = append(out, it.value)
		}
	}
	return out
}

// encodeUint32 returns minimal-length BER INTEGER content octets for v.
func encodeUint32(v uint32) []byte {
	buf := make([]byte, 5)
	n := ber.EncodeUInt32(v, buf, 0)
	return buf[:n]
}

func decodeUint32(content []byte) uint32 {
	return uint32(ber.DecodeInt32(content, len(content), 0))
}

func decodeInt32(content []byte) int32 {
	return ber.DecodeInt32(content, len(content), 0)
}

func itoa(v int) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var digits [20]byte
	i := len(digits)
	for v > 0 {
		i--
		digits[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		digits[i] = '-'
	}
	return string(digits[i:])
}

// ObjectName is the MMS domain-specific identification of a named variable,
// named variable list, or named type: a domain identifier paired with an
// item identifier within that domain. VMD-specific and AA-specific object
// names are out of scope; every association in this stack addresses a
// single logical device's domain.
type ObjectName struct {
	DomainID string
	ItemID   string
}

// encodeObjectName builds an MMS ObjectName CHOICE, domain-specific
// alternative: [1] constructed { domainId VisibleString, itemId VisibleString }.
func encodeObjectName(name ObjectName) []byte {
	var inner []byte
	inner = encodeTLV(inner, tagVisibleString, []byte(name.DomainID))
	inner = encodeTLV(inner, tagVisibleString, []byte(name.ItemID))
	return encodeTLV(nil, tagObjectNameDomainSpecific, inner)
}

func decodeObjectName(content []byte) (ObjectName, error) {
	items, err := decodeTLVs(content)
	if err != nil {
		return ObjectName{}, err
	}
	if len(items) < 2 {
		return ObjectName{}, xerrors.NewProtocol(layer, "object-name: expected domainId and itemId, got %d elements", len(items))
	}
	return ObjectName{DomainID: string(items[0].value), ItemID: string(items[1].value)}, nil
}

// encodeVariableSpecification wraps an ObjectName as the "name" alternative
// of the Variable-Specification CHOICE, tag [0] constructed.
func encodeVariableSpecification(name ObjectName) []byte {
	return encodeTLV(nil, tagVariableSpecificationName, encodeObjectName(name))
}

func decodeVariableSpecification(content []byte) (ObjectName, error) {
	items, err := decodeTLVs(content)
	if err != nil {
		return ObjectName{}, err
	}
	value, ok := findTLV(items, tagObjectNameDomainSpecific)
	if !ok {
		return ObjectName{}, xerrors.NewProtocol(layer, "variable-specification: missing domain-specific object-name")
	}
	return decodeObjectName(value)
}

// encodeListOfVariable wraps one or more Variable-Specifications as a
// VariableAccessSpecification's listOfVariable alternative: [0] constructed
// SEQUENCE OF Variable-Specification.
func encodeListOfVariable(names ...ObjectName) []byte {
	var seq []byte
	for _, n := range names {
		seq = append(seq, encodeVariableSpecification(n)...)
	}
	return encodeTLV(nil, tagListOfVariable, encodeTLV(nil, tagSequence, seq))
}

func decodeListOfVariable(content []byte) ([]ObjectName, error) {
	items, err := decodeTLVs(content)
	if err != nil {
		return nil, err
	}
	var names []ObjectName
	for _, it := range items {
		if it.tag != tagSequence {
			continue
		}
		entries, err := decodeTLVs(it.value)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.tag != tagVariableSpecificationName {
				continue
			}
			name, err := decodeVariableSpecification(e.value)
			if err != nil {
				return nil, err
			}
			names = append(names, name)
		}
	}
	return names, nil
}

// BER tag bytes used across the MMS service encodings. Names follow the
// ISO 9506 ASN.1 module; context-specific numbers are taken from the
// per-service CHOICE definitions.
const (
	tagBoolean        = 0x01
	tagInteger        = 0x02
	tagNull           = 0x05
	tagOID            = 0x06
	tagSequence       = 0x30
	tagVisibleString  = 0x1A
	tagOctetString    = 0x04

	tagObjectNameDomainSpecific   = 0xA1 // ObjectName CHOICE [1] domain-specific
	tagVariableSpecificationName  = 0xA0 // Variable-Specification CHOICE [0] name
	tagListOfVariable             = 0xA0 // VariableAccessSpecification CHOICE [0] listOfVariable
	tagListOfData                 = 0xA1 // Write-Request listOfData, tag [1]

	tagConfirmedRequest  = 0xA0
	tagConfirmedResponse = 0xA1
	tagConfirmedError    = 0xA2
	tagUnconfirmed       = 0xA3
	tagInitiateRequest   = 0xA8
	tagInitiateResponse  = 0xA9

	tagServiceGetNameList                 = 0xA1
	tagServiceIdentify                    = 0xA2
	tagServiceRead                        = 0xA4
	tagServiceWrite                       = 0xA5
	tagServiceGetVariableAccessAttributes = 0xA6
	tagServiceDefineNamedVariableList      = 0xAB
	tagServiceDefineNamedVariableListResponse = 0x8B // NULL body, primitive not constructed
	tagServiceGetNamedVariableListAttrs    = 0xAC
	tagServiceDeleteNamedVariableList      = 0xAD

	tagNVLDeletable       = 0x80
	tagNVLListOfVariables = 0xA1

	tagDeleteNVLListOfNames   = 0xA1
	tagDeleteNVLDomain        = 0x82
	tagDeleteNVLNumberMatched = 0x80
	tagDeleteNVLNumberDeleted = 0x81

	tagUnconfirmedInformationReport = 0xA0

	tagGetNameListObjectClass       = 0xA0
	tagGetNameListObjectScope       = 0xA1
	tagGetNameListContinueAfter     = 0xA2
	tagGetNameListListOfIdentifier  = 0xA0
	tagGetNameListMoreFollows       = 0x81 // BOOLEAN, primitive, context [1]

	tagScopeVMDSpecific    = 0x80 // ObjectScope CHOICE [0] vmdSpecific NULL
	tagScopeDomainSpecific = 0x81 // ObjectScope CHOICE [1] domainSpecific VisibleString
	tagScopeAASpecific     = 0x82 // ObjectScope CHOICE [2] aaSpecific NULL
)
