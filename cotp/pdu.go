package cotp

import (
	"math/bits"

	"github.com/iec61850-go/osistack/internal/xerrors"
)

// tpduSizeCode encodes a proposed/accepted TPDU size as the log2 value the
// wire format uses (size = 2^code), clamped to the class-0 ceiling.
func tpduSizeCode(size int) byte {
	if size <= 0 {
		size = maxClass0TpduSize
	}
	if size > maxClass0TpduSize {
		size = maxClass0TpduSize
	}
	// round down to the nearest power of two
	p := 1 << uint(bits.Len(uint(size))-1)
	if p > size {
		p >>= 1
	}
	code := bits.Len(uint(p)) - 1
	if code < 7 {
		code = 7 // 128 is the smallest TPDU size defined by X.224
	}
	return byte(code)
}

func sizeFromCode(code byte) int {
	return 1 << uint(code)
}

func buildCR(srcRef uint16, params Parameters) []byte {
	return buildConnectTPDU(tpduCR, 0, srcRef, params)
}

func buildCC(srcRef, dstRef uint16, chosenSize int) []byte {
	return buildConnectTPDU(tpduCC, dstRef, srcRef, Parameters{PreferredClass: 0, ProposedTPDUSize: chosenSize})
}

// buildConnectTPDU builds a CR or CC TPDU: LI, code, dst-ref(2), src-ref(2),
// class|options(1), then the TPDU-size and T-selector variable parameters.
func buildConnectTPDU(code byte, dstRef, srcRef uint16, params Parameters) []byte {
	var header []byte
	header = append(header, code)
	header = append(header, byte(dstRef>>8), byte(dstRef))
	header = append(header, byte(srcRef>>8), byte(srcRef))
	header = append(header, params.PreferredClass<<4)

	header = append(header, paramTPDUSize, 1, tpduSizeCode(params.ProposedTPDUSize))
	if len(params.CallingTSelector) > 0 {
		header = append(header, paramCallingTSAP, byte(len(params.CallingTSelector)))
		header = append(header, params.CallingTSelector...)
	}
	if len(params.CalledTSelector) > 0 {
		header = append(header, paramCalledTSAP, byte(len(params.CalledTSelector)))
		header = append(header, params.CalledTSelector...)
	}

	li := byte(len(header))
	return append([]byte{li}, header...)
}

func buildDR(srcRef, dstRef uint16) []byte {
	header := []byte{tpduDR}
	header = append(header, byte(dstRef>>8), byte(dstRef))
	header = append(header, byte(srcRef>>8), byte(srcRef))
	header = append(header, 0x00) // reason: normal disconnect
	li := byte(len(header))
	return append([]byte{li}, header...)
}

// UnknownParam is a connect-phase variable parameter this implementation
// doesn't interpret, carried through unchanged per spec.md's
// Unknown(code, bytes) pass-through requirement rather than being dropped.
type UnknownParam struct {
	Code  byte
	Bytes []byte
}

type connectTPDU struct {
	srcRef   uint16
	dstRef   uint16
	class    byte
	tpduSize int
	unknown  []UnknownParam
}

func parseCR(buf []byte) (connectTPDU, error) {
	return parseConnectTPDU(buf, tpduCR)
}

func parseCC(buf []byte) (connectTPDU, error) {
	return parseConnectTPDU(buf, tpduCC)
}

func parseConnectTPDU(buf []byte, want byte) (connectTPDU, error) {
	var pdu connectTPDU
	if len(buf) < 7 {
		return pdu, xerrors.NewProtocol(layer, "connect TPDU too short: %d bytes", len(buf))
	}
	li := int(buf[0])
	if li+1 > len(buf) {
		return pdu, xerrors.NewProtocol(layer, "length indicator %d exceeds TPDU size", li)
	}
	if buf[1] != want {
		return pdu, xerrors.NewProtocol(layer, "unexpected TPDU type 0x%02x, want 0x%02x", buf[1], want)
	}
	pdu.dstRef = uint16(buf[2])<<8 | uint16(buf[3])
	pdu.srcRef = uint16(buf[4])<<8 | uint16(buf[5])
	pdu.class = buf[6] >> 4

	pos := 7
	end := li + 1
	for pos < end {
		if pos+2 > end {
			return pdu, xerrors.NewProtocol(layer, "truncated variable parameter at offset %d", pos)
		}
		code := buf[pos]
		paramLen := int(buf[pos+1])
		pos += 2
		if pos+paramLen > end {
			return pdu, xerrors.NewProtocol(layer, "variable parameter length %d exceeds TPDU", paramLen)
		}
		switch code {
		case paramTPDUSize:
			if paramLen >= 1 {
				pdu.tpduSize = sizeFromCode(buf[pos])
			}
		case paramCallingTSAP, paramCalledTSAP, paramAlternatives:
			// accepted but not surfaced beyond the handshake; this
			// implementation does not echo T-selectors back to callers.
		default:
			raw := make([]byte, paramLen)
			copy(raw, buf[pos:pos+paramLen])
			pdu.unknown = append(pdu.unknown, UnknownParam{Code: code, Bytes: raw})
		}
		pos += paramLen
	}
	return pdu, nil
}
