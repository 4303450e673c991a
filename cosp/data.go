package cosp

import (
	"github.com/iec61850-go/osistack/internal/xerrors"
	"github.com/iec61850-go/osistack/logger"
)

var dataTransferKnownParams = map[byte]bool{paramEnclosure: true}

// dataPhaseOverhead is the fixed framing cost of one concatenated
// GiveTokens+DataTransfer TSDU, excluding the user data itself: GiveTokens
// (SI+LI), DataTransfer (SI+LI) and its Enclosure parameter (code+len+value).
const dataPhaseOverhead = 2 + 2 + 3

// buildGiveTokens encodes an empty Give-Tokens SPDU (SI=1, no parameters).
// This kernel+full-duplex-v2 implementation does not model explicit token
// items: both peers always hold both tokens, so GiveTokens is a placeholder
// that lets DataTransfer's SI=1 be disambiguated positionally.
func buildGiveTokens() []byte {
	return []byte{siGiveTokensOrDataXfer, 0x00}
}

// buildDataTransfer encodes a Data-Transfer SPDU carrying one fragment.
// Per ISO 8327, the LI covers only the parameter area (the Enclosure item);
// the user data itself follows untagged.
func buildDataTransfer(data []byte, first, last bool) []byte {
	params := encodeParam(paramEnclosure, enclosure{beginning: first, end: last}.encode())
	spdu := append([]byte{siGiveTokensOrDataXfer}, encodeLength(len(params))...)
	spdu = append(spdu, params...)
	return append(spdu, data...)
}

// buildDataPhaseTSDU concatenates GiveTokens and one DataTransfer fragment
// into a single TSDU, per spec.md's position-dependent SI=1 convention.
func buildDataPhaseTSDU(data []byte, first, last bool) []byte {
	tsdu := buildGiveTokens()
	return append(tsdu, buildDataTransfer(data, first, last)...)
}

type dataTransferInfo struct {
	data []byte
	end  bool
}

// parseDataPhaseTSDU decodes a concatenated GiveTokens+DataTransfer TSDU.
// The first SPDU with SI=1 is GiveTokens and is discarded; the second is
// DataTransfer and carries the fragment.
func parseDataPhaseTSDU(tsdu []byte, log logger.Logger) (dataTransferInfo, error) {
	var info dataTransferInfo
	pos := 0

	gtLen, gtEnd, err := expectSI1Header(tsdu, pos)
	if err != nil {
		return info, xerrors.NewProtocol(layer, "give-tokens SPDU: %s", err)
	}
	pos = gtEnd + gtLen

	dtLen, dtEnd, err := expectSI1Header(tsdu, pos)
	if err != nil {
		return info, xerrors.NewProtocol(layer, "data-transfer SPDU: %s", err)
	}
	if dtEnd+dtLen > len(tsdu) {
		return info, xerrors.NewProtocol(layer, "data-transfer parameter length exceeds TSDU")
	}
	params, err := decodeParams(tsdu[dtEnd : dtEnd+dtLen])
	if err != nil {
		return info, err
	}
	logUnknownParams(log, params, dataTransferKnownParams)
	enc := enclosure{beginning: true, end: true}
	if eb, ok := lastValue(params, paramEnclosure); ok {
		enc = decodeEnclosure(eb)
	}
	info.end = enc.end
	info.data = append([]byte(nil), tsdu[dtEnd+dtLen:]...)
	return info, nil
}

// expectSI1Header validates an SI=1 SPDU header at pos and returns its
// parameter-area length and the offset immediately following the header.
func expectSI1Header(buf []byte, pos int) (length, next int, err error) {
	if pos >= len(buf) || buf[pos] != siGiveTokensOrDataXfer {
		return 0, 0, xerrors.NewProtocol(layer, "expected SI=1 SPDU at offset %d", pos)
	}
	length, next, err = decodeLength(buf, pos+1)
	return length, next, err
}
