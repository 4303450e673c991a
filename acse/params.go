package acse

import (
	"github.com/iec61850-go/osistack/ber"
	"github.com/iec61850-go/osistack/internal/xerrors"
)

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

// encodeACSEOID encodes a dotted-decimal OID string to its BER content
// octets (the application-context-name and AP-title OIDs are both encoded
// this way).
func encodeACSEOID(dotted string) ([]byte, error) {
	scratch := make([]byte, 64)
	n, err := ber.EncodeOIDToBuffer(dotted, scratch, len(scratch))
	if err != nil {
		return nil, xerrors.NewInternal(layer, "encoding OID %q: %s", dotted, err)
	}
	return scratch[:n], nil
}

// decodeACSEOID decodes BER OID content octets to a dotted-decimal string.
func decodeACSEOID(content []byte) (string, error) {
	if len(content) == 0 {
		return "", xerrors.NewProtocol(layer, "decoding OID: empty content")
	}
	var oid ber.ItuObjectIdentifier
	ber.DecodeOID(content, 0, len(content), &oid)
	s := ""
	for i := 0; i < oid.ArcCount; i++ {
		if i > 0 {
			s += "."
		}
		s += itoa(int(oid.Arc[i]))
	}
	return s, nil
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

// encodeACSEInt encodes an int64 as minimal-length two's-complement BER
// INTEGER content octets.
func encodeACSEInt(v int64) []byte {
	if v >= -128 && v <= 127 {
		return []byte{byte(int8(v))}
	}
	var buf [8]byte
	for i := 7; i >= 0; i-- {
		buf[i] = byte(v)
		v >>= 8
	}
	// Trim leading octets that are redundant sign-extension.
	start := 0
	for start < 7 {
		b0, b1 := buf[start], buf[start+1]
		if b0 == 0x00 && b1&0x80 == 0 {
			start++
			continue
		}
		if b0 == 0xFF && b1&0x80 != 0 {
			start++
			continue
		}
		break
	}
	return buf[start:]
}

// decodeACSEInt decodes two's-complement BER INTEGER content octets.
func decodeACSEInt(content []byte) int64 {
	if len(content) == 0 {
		return 0
	}
	var v int64
	if content[0]&0x80 != 0 {
		v = -1
	}
	for _, b := range content {
		v = v<<8 | int64(b)
	}
	return v
}
