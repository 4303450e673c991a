// Package ber implements the small subset of X.690 Basic Encoding Rules
// that every layer in this stack needs to build its own TLV codec on:
// length fields, OBJECT IDENTIFIERs, and the INTEGER encodings COTP,
// COSP/COPP and ACSE/MMS use for credit windows, invoke IDs and the like.
// It deliberately doesn't grow into a general ASN.1 library — each layer
// package still owns its own tag tables and TLV framing (see e.g.
// mms/params.go's encodeTLV/decodeTLVs) using the primitives here.
package ber

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrBufferOverflow    = errors.New("buffer overflow")
	ErrInvalidLength     = errors.New("invalid length")
	ErrInvalidIndefinite = errors.New("invalid indefinite length")
	ErrMaxDepthExceeded  = errors.New("maximum depth exceeded")
)

// ItuObjectIdentifier is a decoded OBJECT IDENTIFIER, arcs in order.
type ItuObjectIdentifier struct {
	Arc      [10]uint32
	ArcCount int
}

const maxDepth = 50

// DecodeLength reads a BER length field starting at bufPos and returns the
// position just past it along with the decoded length.
func DecodeLength(buffer []byte, bufPos, maxBufPos int) (newPos int, length int, err error) {
	return decodeLengthRecursive(buffer, bufPos, maxBufPos, 0, maxDepth)
}

func decodeLengthRecursive(buffer []byte, bufPos, maxBufPos, depth, maxDepth int) (newPos int, length int, err error) {
	if bufPos >= maxBufPos {
		return -1, 0, ErrBufferOverflow
	}

	len1 := buffer[bufPos]
	bufPos++

	if len1&0x80 != 0 {
		lenLength := int(len1 & 0x7f)

		if lenLength == 0 {
			indefLength, err := getIndefiniteLength(buffer, bufPos, maxBufPos, depth, maxDepth)
			if err != nil {
				return -1, 0, err
			}
			length = indefLength
		} else {
			length = 0
			for i := 0; i < lenLength; i++ {
				if bufPos >= maxBufPos {
					return -1, 0, ErrBufferOverflow
				}
				if bufPos+length > maxBufPos {
					return -1, 0, ErrBufferOverflow
				}
				length = (length << 8) | int(buffer[bufPos])
				bufPos++
			}
		}
	} else {
		length = int(len1)
	}

	if length < 0 {
		return -1, 0, ErrInvalidLength
	}

	if bufPos+length > maxBufPos {
		return -1, 0, ErrBufferOverflow
	}

	return bufPos, length, nil
}

// getIndefiniteLength walks nested TLVs to find the 0x00 0x00 end-of-contents
// marker of an indefinite-length encoding. depth guards against a
// pathological or adversarial nesting chain.
func getIndefiniteLength(buffer []byte, bufPos, maxBufPos, depth, maxDepth int) (int, error) {
	depth++
	if depth > maxDepth {
		return -1, ErrMaxDepthExceeded
	}

	length := 0
	for bufPos < maxBufPos {
		if bufPos+1 < maxBufPos && buffer[bufPos] == 0 && buffer[bufPos+1] == 0 {
			return length + 2, nil
		}

		length++

		if (buffer[bufPos] & 0x1f) == 0x1f {
			bufPos++
			length++
		}

		newBufPos, subLength, err := decodeLengthRecursive(buffer, bufPos, maxBufPos, depth, maxDepth)
		if err != nil {
			return -1, err
		}

		length += subLength + (newBufPos - bufPos)
		bufPos = newBufPos + subLength
	}

	return -1, ErrInvalidIndefinite
}

// DecodeInt32 reads an intLen-byte two's-complement BER INTEGER, sign
// extending from its leading bit. Every layer's invoke IDs, credit counts
// and similar small integers go through this, never through a dedicated
// unsigned decoder, matching the INTEGER-only encoding X.690 defines.
func DecodeInt32(buffer []byte, intLen, bufPos int) int32 {
	var value int32
	if (buffer[bufPos] & 0x80) == 0x80 {
		value = -1
	}
	for i := 0; i < intLen; i++ {
		value = (value << 8) | int32(buffer[bufPos+i])
	}
	return value
}

// DecodeOID decodes the length-byte content of an OBJECT IDENTIFIER into oid.
func DecodeOID(buffer []byte, bufPos, length int, oid *ItuObjectIdentifier) {
	startPos := bufPos
	currentArc := 0

	for i := 0; i < 10; i++ {
		oid.Arc[i] = 0
	}

	if length > 0 {
		oid.Arc[0] = uint32(buffer[bufPos] / 40)
		oid.Arc[1] = uint32(buffer[bufPos] % 40)
		currentArc = 2
		bufPos++
	}

	for (bufPos-startPos < length) && (currentArc < 10) {
		oid.Arc[currentArc] = oid.Arc[currentArc] << 7

		if buffer[bufPos] < 0x80 {
			oid.Arc[currentArc] += uint32(buffer[bufPos])
			currentArc++
		} else {
			oid.Arc[currentArc] += uint32(buffer[bufPos] & 0x7f)
		}

		bufPos++
	}

	oid.ArcCount = currentArc
}

// EncodeLength writes length in BER short- or long-form and returns the
// position just past it. Every layer's encodeTLV helper calls this rather
// than hand-rolling the short/long-form split.
func EncodeLength(length uint32, buffer []byte, bufPos int) int {
	switch {
	case length < 128:
		buffer[bufPos] = byte(length)
		bufPos++
	case length < 256:
		buffer[bufPos] = 0x81
		buffer[bufPos+1] = byte(length)
		bufPos += 2
	case length < 65536:
		buffer[bufPos] = 0x82
		buffer[bufPos+1] = byte(length / 256)
		buffer[bufPos+2] = byte(length % 256)
		bufPos += 3
	default:
		buffer[bufPos] = 0x83
		buffer[bufPos+1] = byte(length / 0x10000)
		buffer[bufPos+2] = byte((length & 0xffff) / 0x100)
		buffer[bufPos+3] = byte(length % 256)
		bufPos += 4
	}
	return bufPos
}

// CompressInteger strips the leading sign-extension bytes a two's-complement
// encoding doesn't need (runs of 0x00 before a non-negative top bit, or 0xff
// before a negative one) and returns the resulting size. integer is edited
// in place; only the first newSize bytes are meaningful afterward.
func CompressInteger(integer []byte) int {
	originalSize := len(integer)
	integerEnd := originalSize - 1
	bytePosition := 0

	for bytePosition < integerEnd {
		if integer[bytePosition] == 0x00 {
			if (integer[bytePosition+1] & 0x80) == 0 {
				bytePosition++
				continue
			}
		} else if integer[bytePosition] == 0xff {
			if (integer[bytePosition+1] & 0x80) == 0x80 {
				bytePosition++
				continue
			}
		}
		break
	}

	if bytePosition == 0 {
		return originalSize
	}

	newSize := originalSize - bytePosition
	for i := 0; i < newSize; i++ {
		integer[i] = integer[bytePosition]
		bytePosition++
	}
	return newSize
}

// EncodeUInt32 writes value as a minimal BER INTEGER content (an extra
// leading zero byte is kept when needed to stop the top bit reading as
// negative) and returns the position just past it.
func EncodeUInt32(value uint32, buffer []byte, bufPos int) int {
	var valueBuffer [5]byte
	binary.BigEndian.PutUint32(valueBuffer[1:], value)

	size := CompressInteger(valueBuffer[:])
	copy(buffer[bufPos:], valueBuffer[:size])
	return bufPos + size
}

// EncodeOIDToBuffer parses a dotted-, comma- or space-separated OID string
// and writes its BER content octets to buffer, returning the byte count.
func EncodeOIDToBuffer(oidString string, buffer []byte, maxBufLen int) (int, error) {
	encodedBytes := 0

	sepChar := '.'
	separator := strings.IndexByte(oidString, '.')
	if separator == -1 {
		sepChar = ','
		separator = strings.IndexByte(oidString, ',')
	}
	if separator == -1 {
		sepChar = ' '
		separator = strings.IndexByte(oidString, ' ')
	}
	if separator == -1 {
		return 0, errors.New("invalid OID format")
	}

	x, err := strconv.Atoi(oidString[:separator])
	if err != nil {
		return 0, fmt.Errorf("invalid OID: %w", err)
	}

	nextSep := strings.IndexByte(oidString[separator+1:], byte(sepChar))
	var yStr string
	if nextSep == -1 {
		yStr = oidString[separator+1:]
	} else {
		yStr = oidString[separator+1 : separator+1+nextSep]
	}

	y, err := strconv.Atoi(yStr)
	if err != nil {
		return 0, fmt.Errorf("invalid OID: %w", err)
	}

	val := x*40 + y
	if encodedBytes >= maxBufLen {
		return 0, ErrBufferOverflow
	}
	buffer[encodedBytes] = byte(val)
	encodedBytes++

	remaining := oidString[separator+1:]
	if nextSep != -1 {
		remaining = remaining[nextSep+1:]
	}

	for {
		separator = strings.IndexByte(remaining, byte(sepChar))
		arc := remaining
		if separator != -1 {
			arc = remaining[:separator]
		}

		n, err := strconv.Atoi(arc)
		if err != nil {
			return 0, fmt.Errorf("invalid OID: %w", err)
		}
		written, err := encodeOIDArc(n, buffer, encodedBytes, maxBufLen)
		if err != nil {
			return 0, err
		}
		encodedBytes += written

		if separator == -1 {
			break
		}
		remaining = remaining[separator+1:]
	}

	return encodedBytes, nil
}

// encodeOIDArc writes one base-128 arc value (big end first, continuation
// bit set on all but the last byte) at buffer[pos:] and returns its length.
func encodeOIDArc(val int, buffer []byte, pos, maxBufLen int) (int, error) {
	if val == 0 {
		if pos >= maxBufLen {
			return 0, ErrBufferOverflow
		}
		buffer[pos] = 0
		return 1, nil
	}

	requiredBytes := 0
	for v := val; v > 0; v >>= 7 {
		requiredBytes++
	}

	written := 0
	for requiredBytes > 0 {
		b := byte(val>>(7*(requiredBytes-1))) & 0x7f
		if requiredBytes > 1 {
			b += 128
		}
		if pos+written >= maxBufLen {
			return 0, ErrBufferOverflow
		}
		buffer[pos+written] = b
		written++
		requiredBytes--
	}
	return written, nil
}
