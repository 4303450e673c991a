package cosp

import (
	"encoding/binary"

	"github.com/hashicorp/go-multierror"
	"github.com/iec61850-go/osistack/internal/xerrors"
)

// SPDU (SI) codes. GiveTokens and DataTransfer share SI=1; which is meant
// is position-dependent within a concatenated TSDU (see parseDataPhaseTSDU).
const (
	siConnect             byte = 13
	siOverflowAccept       byte = 16
	siConnectDataOverflow  byte = 15
	siAccept               byte = 14
	siGiveTokensOrDataXfer byte = 1
)

// Parameter codes, grounded on ISO 8327 / X.225 and cross-checked against
// the rust reference implementation's packet/constants.rs.
const (
	paramConnectAcceptItem   byte = 5
	paramSessionRequirements byte = 20
	paramCallingSelector     byte = 51
	paramCalledSelector      byte = 52
	paramUserData            byte = 193
	paramExtendedUserData    byte = 194
	paramDataOverflow        byte = 60
	paramEnclosure           byte = 25
	paramProtocolOptions     byte = 19
	paramTsduMaxSize         byte = 21
	paramVersionNumber       byte = 22
)

// encodeLength writes a parameter/SPDU length using the 1-byte form, or the
// 0xFF-escaped 2-byte big-endian form for lengths >= 255.
func encodeLength(n int) []byte {
	if n < 255 {
		return []byte{byte(n)}
	}
	out := make([]byte, 3)
	out[0] = 0xFF
	binary.BigEndian.PutUint16(out[1:], uint16(n))
	return out
}

func decodeLength(buf []byte, pos int) (length, next int, err error) {
	if pos >= len(buf) {
		return 0, pos, xerrors.NewProtocol(layer, "truncated length at offset %d", pos)
	}
	if buf[pos] != 0xFF {
		return int(buf[pos]), pos + 1, nil
	}
	if pos+3 > len(buf) {
		return 0, pos, xerrors.NewProtocol(layer, "truncated extended length at offset %d", pos)
	}
	return int(binary.BigEndian.Uint16(buf[pos+1 : pos+3])), pos + 3, nil
}

func encodeParam(code byte, value []byte) []byte {
	out := []byte{code}
	out = append(out, encodeLength(len(value))...)
	out = append(out, value...)
	return out
}

// param is one decoded TLV triple. A Connect-Accept-Item's value is itself a
// parameter area, decoded by a second decodeParams call.
type param struct {
	code    byte
	value   []byte
}

// decodeParams walks a flat TLV parameter area and returns every parameter
// in wire order, duplicates included. lastValue applies the "duplicates:
// last wins" rule, and warnUnknown reports codes a caller does not know.
func decodeParams(buf []byte) ([]param, error) {
	var params []param
	pos := 0
	for pos < len(buf) {
		if pos+1 > len(buf) {
			return nil, xerrors.NewProtocol(layer, "truncated parameter tag at offset %d", pos)
		}
		code := buf[pos]
		pos++
		length, next, err := decodeLength(buf, pos)
		if err != nil {
			return nil, err
		}
		pos = next
		if pos+length > len(buf) {
			return nil, xerrors.NewProtocol(layer, "parameter 0x%02x length %d exceeds remaining buffer", code, length)
		}
		params = append(params, param{code: code, value: buf[pos : pos+length]})
		pos += length
	}
	return params, nil
}

// lastValue returns the value of the last occurrence of code among params.
func lastValue(params []param, code byte) ([]byte, bool) {
	var v []byte
	found := false
	for _, p := range params {
		if p.code == code {
			v = p.value
			found = true
		}
	}
	return v, found
}

// warnUnknown accumulates a warning for any param whose code is not in known.
func warnUnknown(params []param, known map[byte]bool) *multierror.Error {
	var result *multierror.Error
	for _, p := range params {
		if !known[p.code] {
			result = multierror.Append(result, xerrors.NewProtocol(layer, "unknown parameter code %d skipped", p.code))
		}
	}
	return result
}

// --- typed parameter fields ---

// protocolOptions bit 0 (LSB, value 0x01): extended-concatenated-SPDU
// support. COSP's small fixed-width parameters are encoded as plain
// option-set octets (LSB = bit 0), not as formal BER BIT STRINGs — unlike
// the MMS bitstrings in the mms package, which do need the BER
// unused-bit-count treatment.
type protocolOptions struct {
	extendedConcatenation bool
}

func (o protocolOptions) encode() []byte {
	var b byte
	if o.extendedConcatenation {
		b |= 0x01
	}
	return []byte{b}
}

func decodeProtocolOptions(b []byte) protocolOptions {
	if len(b) == 0 {
		return protocolOptions{}
	}
	return protocolOptions{extendedConcatenation: b[0]&0x01 != 0}
}

// versionNumber: bit 0 (0x01) = version 1, bit 1 (0x02) = version 2. This
// implementation only ever proposes/accepts version 2.
type versionNumber struct {
	version1, version2 bool
}

func (v versionNumber) encode() []byte {
	var b byte
	if v.version1 {
		b |= 0x01
	}
	if v.version2 {
		b |= 0x02
	}
	return []byte{b}
}

func decodeVersionNumber(b []byte) versionNumber {
	if len(b) == 0 {
		return versionNumber{}
	}
	return versionNumber{version1: b[0]&0x01 != 0, version2: b[0]&0x02 != 0}
}

// sessionUserRequirements bit 1 (0x02) is full-duplex, the only functional
// unit this implementation negotiates.
type sessionUserRequirements uint16

const fullDuplexBit sessionUserRequirements = 0x0002

func (r sessionUserRequirements) encode() []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, uint16(r))
	return b
}

func decodeSessionUserRequirements(b []byte) sessionUserRequirements {
	if len(b) < 2 {
		return 0
	}
	return sessionUserRequirements(binary.BigEndian.Uint16(b))
}

// tsduMaxSize: a 4-byte field whose high 16 bits (toInitiator) give the max
// size of TSDUs sent to the initiator and whose low 16 bits (toResponder)
// give the max size of TSDUs sent to the responder; 0 means unlimited.
type tsduMaxSize struct {
	toInitiator uint16
	toResponder uint16
}

func (s tsduMaxSize) encode() []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint16(b[0:2], s.toInitiator)
	binary.BigEndian.PutUint16(b[2:4], s.toResponder)
	return b
}

func decodeTsduMaxSize(b []byte) tsduMaxSize {
	if len(b) < 4 {
		return tsduMaxSize{}
	}
	return tsduMaxSize{
		toInitiator: binary.BigEndian.Uint16(b[0:2]),
		toResponder: binary.BigEndian.Uint16(b[2:4]),
	}
}

// enclosure: bit 0 = beginning, bit 1 = end (spec.md §3 invariant 6).
type enclosure struct {
	beginning, end bool
}

func (e enclosure) encode() []byte {
	var b byte
	if e.beginning {
		b |= 0x01
	}
	if e.end {
		b |= 0x02
	}
	return []byte{b}
}

func decodeEnclosure(b []byte) enclosure {
	if len(b) == 0 {
		return enclosure{beginning: true, end: true}
	}
	return enclosure{beginning: b[0]&0x01 != 0, end: b[0]&0x02 != 0}
}
