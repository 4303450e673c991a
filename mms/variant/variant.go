// Package variant holds typed MMS Data values: the handful of ISO/IEC
// 9506-2 Data CHOICE alternatives this stack exchanges (floating-point,
// integer, boolean, visible-string, bit-string, utc-time). Structured
// array/structure Data and the remaining scalar alternatives are out of
// scope (spec.md Non-goals: MMS scattered-access variables and the full
// type grammar).
package variant

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Type identifies which MMS Data alternative a Variant holds.
type Type int

const (
	Float32 Type = iota
	Int32
	Boolean
	VisibleString
	UTCTime
	BitString
)

func (t Type) String() string {
	switch t {
	case Float32:
		return "float32"
	case Int32:
		return "int32"
	case Boolean:
		return "boolean"
	case VisibleString:
		return "visible-string"
	case UTCTime:
		return "utc-time"
	case BitString:
		return "bit-string"
	default:
		var b strings.Builder
		b.WriteString("unknown(")
		b.WriteString(strconv.Itoa(int(t)))
		b.WriteByte(')')
		return b.String()
	}
}

// Variant is a typed MMS Data value.
type Variant struct {
	typ   Type
	value interface{}
}

func (v *Variant) Type() Type {
	return v.typ
}

func NewFloat32Variant(value float32) *Variant {
	return &Variant{typ: Float32, value: value}
}

func NewInt32Variant(value int32) *Variant {
	return &Variant{typ: Int32, value: value}
}

func NewBooleanVariant(value bool) *Variant {
	return &Variant{typ: Boolean, value: value}
}

func NewVisibleStringVariant(value string) *Variant {
	return &Variant{typ: VisibleString, value: value}
}

func NewUTCTimeVariant(value time.Time) *Variant {
	return &Variant{typ: UTCTime, value: value}
}

// Float32 returns the value as a float32, coercing from int32 if needed.
func (v *Variant) Float32() float32 {
	if v == nil {
		return 0.0
	}
	switch val := v.value.(type) {
	case float32:
		return val
	case int32:
		return float32(val)
	default:
		return 0.0
	}
}

// Int32 returns the value as an int32, coercing from float32 if needed.
func (v *Variant) Int32() int32 {
	if v == nil {
		return 0
	}
	switch val := v.value.(type) {
	case int32:
		return val
	case float32:
		return int32(val)
	default:
		return 0
	}
}

func (v *Variant) Bool() bool {
	if v == nil {
		return false
	}
	b, _ := v.value.(bool)
	return b
}

func (v *Variant) VisibleString() string {
	if v == nil {
		return ""
	}
	s, _ := v.value.(string)
	return s
}

func (v *Variant) Time() time.Time {
	if v == nil {
		return time.Time{}
	}
	t, _ := v.value.(time.Time)
	return t
}

// BitStringValue is a bit-string Data value: its data bytes plus the count
// of significant bits, which need not be a multiple of 8.
type BitStringValue struct {
	Data    []byte
	BitSize int
}

func NewBitStringVariant(data []byte, bitSize int) *Variant {
	return &Variant{typ: BitString, value: BitStringValue{Data: data, BitSize: bitSize}}
}

func (v *Variant) BitString() BitStringValue {
	if v == nil {
		return BitStringValue{}
	}
	val, _ := v.value.(BitStringValue)
	return val
}

// String renders the Variant as "type(value)", e.g. "float32(4.2)".
func (v *Variant) String() string {
	if v == nil {
		return "<nil>"
	}

	var b strings.Builder
	b.WriteString(v.typ.String())
	b.WriteByte('(')

	switch v.typ {
	case Float32:
		b.WriteString(strconv.FormatFloat(float64(v.Float32()), 'g', -1, 32))
	case Int32:
		b.WriteString(strconv.FormatInt(int64(v.Int32()), 10))
	case Boolean:
		b.WriteString(strconv.FormatBool(v.Bool()))
	case VisibleString:
		b.WriteString(v.VisibleString())
	case UTCTime:
		b.WriteString(v.Time().Format(time.RFC3339Nano))
	case BitString:
		val := v.BitString()
		b.WriteString("0b")
		if val.BitSize == 0 {
			b.WriteString("0")
		} else {
			allBits := make([]byte, val.BitSize)
			bitIdx := 0
			for i := 0; i < len(val.Data) && bitIdx < val.BitSize; i++ {
				byteVal := val.Data[i]
				for j := 7; j >= 0 && bitIdx < val.BitSize; j-- {
					if byteVal&(1<<uint(j)) != 0 {
						allBits[bitIdx] = '1'
					} else {
						allBits[bitIdx] = '0'
					}
					bitIdx++
				}
			}
			firstGroupSize := val.BitSize % 4
			if firstGroupSize == 0 {
				firstGroupSize = 4
			}
			for i := val.BitSize - 1; i >= val.BitSize-firstGroupSize; i-- {
				b.WriteByte(allBits[i])
			}
			for remaining := val.BitSize - firstGroupSize; remaining > 0; remaining -= 4 {
				b.WriteByte('_')
				groupEnd := remaining
				groupStart := remaining - 4
				if groupStart < 0 {
					groupStart = 0
				}
				for i := groupEnd - 1; i >= groupStart; i-- {
					b.WriteByte(allBits[i])
				}
			}
		}
	default:
		b.WriteString("<unknown>")
	}

	b.WriteByte(')')
	return b.String()
}

// Bytes encodes the Variant as an MMS Data CHOICE alternative's context-tagged
// TLV (tag + BER length + content), for embedding into a Write request or an
// InformationReport's listOfAccessResult.
func (v *Variant) Bytes() []byte {
	switch v.typ {
	case Float32:
		bits := math.Float32bits(v.Float32())
		content := []byte{0x08, byte(bits >> 24), byte(bits >> 16), byte(bits >> 8), byte(bits)}
		return tlv(0x87, content)
	case Int32:
		return tlv(0x85, minimalInt(v.Int32()))
	case Boolean:
		b := byte(0x00)
		if v.Bool() {
			b = 0xFF
		}
		return tlv(0x83, []byte{b})
	case VisibleString:
		return tlv(0x8A, []byte(v.VisibleString()))
	case UTCTime:
		return tlv(0x91, encodeUTCTime(v.Time()))
	case BitString:
		bs := v.BitString()
		padding := byte(0)
		if bs.BitSize%8 != 0 {
			padding = byte(8 - bs.BitSize%8)
		}
		return tlv(0x84, append([]byte{padding}, bs.Data...))
	default:
		return nil
	}
}

func tlv(tag byte, value []byte) []byte {
	out := []byte{tag}
	out = appendLength(out, len(value))
	return append(out, value...)
}

// Decode builds a Variant from a Data CHOICE alternative's context-specific
// tag and content octets, as dispatched by a caller that has already walked
// the surrounding BER TLV structure. ok is false for a tag this package
// does not represent.
func Decode(tag byte, content []byte) (v *Variant, ok bool, err error) {
	switch tag {
	case 0x87: // floating-point
		if len(content) < 5 || content[0] != 0x08 {
			return nil, true, errBadLength("floating-point", content)
		}
		bits := uint32(content[1])<<24 | uint32(content[2])<<16 | uint32(content[3])<<8 | uint32(content[4])
		return NewFloat32Variant(math.Float32frombits(bits)), true, nil
	case 0x85: // integer
		if len(content) < 1 || len(content) > 4 {
			return nil, true, errBadLength("integer", content)
		}
		return NewInt32Variant(decodeMinimalInt(content)), true, nil
	case 0x83: // boolean
		if len(content) < 1 {
			return nil, true, errBadLength("boolean", content)
		}
		return NewBooleanVariant(content[0] != 0x00), true, nil
	case 0x8A: // visible-string
		return NewVisibleStringVariant(string(content)), true, nil
	case 0x84: // bit-string
		if len(content) < 1 {
			return nil, true, errBadLength("bit-string", content)
		}
		padding := int(content[0])
		return NewBitStringVariant(append([]byte(nil), content[1:]...), 8*(len(content)-1)-padding), true, nil
	case 0x91: // utc-time
		if len(content) != 8 {
			return nil, true, errBadLength("utc-time", content)
		}
		sec := uint32(content[0])<<24 | uint32(content[1])<<16 | uint32(content[2])<<8 | uint32(content[3])
		frac := uint64(content[4])<<16 | uint64(content[5])<<8 | uint64(content[6])
		ns := frac * 1_000_000_000 / 0x1000000
		return NewUTCTimeVariant(time.Unix(int64(sec), int64(ns)).UTC()), true, nil
	default:
		return nil, false, nil
	}
}

func errBadLength(kind string, content []byte) error {
	return &decodeError{kind: kind, length: len(content)}
}

type decodeError struct {
	kind   string
	length int
}

func (e *decodeError) Error() string {
	return "variant: invalid " + e.kind + " length " + strconv.Itoa(e.length)
}

func decodeMinimalInt(content []byte) int32 {
	var v int32
	if content[0]&0x80 != 0 {
		v = -1
	}
	for _, b := range content {
		v = v<<8 | int32(b)
	}
	return v
}

func appendLength(buf []byte, length int) []byte {
	if length < 0x80 {
		return append(buf, byte(length))
	}
	var enc []byte
	n := length
	for n > 0 {
		enc = append([]byte{byte(n)}, enc...)
		n >>= 8
	}
	return append(append(buf, byte(0x80|len(enc))), enc...)
}

func minimalInt(v int32) []byte {
	buf := []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
	start := 0
	for start < 3 {
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

func encodeUTCTime(t time.Time) []byte {
	sec := uint32(t.Unix())
	frac := uint64(t.Nanosecond()) * 0x1000000 / 1_000_000_000
	return []byte{
		byte(sec >> 24), byte(sec >> 16), byte(sec >> 8), byte(sec),
		byte(frac >> 16), byte(frac >> 8), byte(frac),
		0x0A, // time quality: clock not synchronized flag clear, 10-bit accuracy
	}
}
