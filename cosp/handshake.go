package cosp

import (
	"github.com/iec61850-go/osistack/internal/xerrors"
	"github.com/iec61850-go/osistack/logger"
)

func logUnknownParams(log logger.Logger, params []param, known map[byte]bool) {
	if me := warnUnknown(params, known); me != nil {
		for _, e := range me.Errors {
			log.Warn("%s", e)
		}
	}
}

var connectKnownParams = map[byte]bool{
	paramConnectAcceptItem: true, paramCalledSelector: true, paramCallingSelector: true,
	paramSessionRequirements: true, paramTsduMaxSize: true, paramUserData: true,
	paramExtendedUserData: true, paramDataOverflow: true,
}

var overflowAcceptKnownParams = map[byte]bool{
	paramVersionNumber: true, paramTsduMaxSize: true,
}

var connectDataOverflowKnownParams = map[byte]bool{
	paramEnclosure: true, paramUserData: true,
}

var acceptKnownParams = map[byte]bool{
	paramConnectAcceptItem: true, paramSessionRequirements: true, paramTsduMaxSize: true,
	paramEnclosure: true, paramUserData: true,
}

// dataOverflow bit 0 (0x01): the only defined value is "more data follows".
type dataOverflow struct{ more bool }

func (d dataOverflow) encode() []byte {
	if d.more {
		return []byte{0x01}
	}
	return []byte{0x00}
}

const (
	maxUserDataInConnect         = 512
	maxUserDataInExtendedConnect = 10240
	maxOverflowFragment          = 65510
)

// buildConnectAcceptItem encodes the nested Connect-Accept-Item parameter:
// protocol options followed by the version-number bitfield (version 2 only,
// per spec.md §4.3's kernel+duplex-v2-only pre-negotiation invariant).
func buildConnectAcceptItem() []byte {
	content := encodeParam(paramProtocolOptions, protocolOptions{}.encode())
	content = append(content, encodeParam(paramVersionNumber, versionNumber{version2: true}.encode())...)
	return encodeParam(paramConnectAcceptItem, content)
}

// buildConnect assembles the CONNECT SPDU for ourMaxSize (our own receive
// cap, 0 = unlimited) and userData. If |userData| > 10240 the remainder is
// returned for the caller to drive through the overflow chain.
func buildConnect(callingSelector, calledSelector []byte, ourMaxSize uint16, userData []byte) (spdu []byte, overflowRemainder []byte) {
	body := buildConnectAcceptItem()
	body = append(body, encodeParam(paramCalledSelector, calledSelector)...)
	body = append(body, encodeParam(paramCallingSelector, callingSelector)...)
	body = append(body, encodeParam(paramSessionRequirements, fullDuplexBit.encode())...)
	body = append(body, encodeParam(paramTsduMaxSize, tsduMaxSize{toInitiator: ourMaxSize}.encode())...)

	switch {
	case len(userData) <= maxUserDataInConnect:
		body = append(body, encodeParam(paramUserData, userData)...)
	case len(userData) <= maxUserDataInExtendedConnect:
		body = append(body, encodeParam(paramExtendedUserData, userData)...)
	default:
		body = append(body, encodeParam(paramExtendedUserData, userData[:maxUserDataInExtendedConnect])...)
		body = append(body, encodeParam(paramDataOverflow, dataOverflow{more: true}.encode())...)
		overflowRemainder = userData[maxUserDataInExtendedConnect:]
	}

	spdu = append([]byte{siConnect}, encodeLength(len(body))...)
	spdu = append(spdu, body...)
	return spdu, overflowRemainder
}

type connectInfo struct {
	userData     []byte
	hasOverflow  bool
	peerMaxSize  uint16
}

func parseConnect(spdu []byte, log logger.Logger) (connectInfo, error) {
	var info connectInfo
	if len(spdu) < 2 || spdu[0] != siConnect {
		return info, xerrors.NewProtocol(layer, "expected CONNECT SPDU (SI=%d)", siConnect)
	}
	length, pos, err := decodeLength(spdu, 1)
	if err != nil {
		return info, err
	}
	if pos+length > len(spdu) {
		return info, xerrors.NewProtocol(layer, "CONNECT SPDU length exceeds frame")
	}
	params, err := decodeParams(spdu[pos : pos+length])
	if err != nil {
		return info, err
	}
	logUnknownParams(log, params, connectKnownParams)

	if cai, ok := lastValue(params, paramConnectAcceptItem); ok {
		nested, err := decodeParams(cai)
		if err != nil {
			return info, err
		}
		if vb, ok := lastValue(nested, paramVersionNumber); ok {
			if v := decodeVersionNumber(vb); !v.version2 {
				return info, xerrors.NewProtocol(layer, "peer did not propose version 2")
			}
		} else {
			return info, xerrors.NewProtocol(layer, "CONNECT missing version-number parameter")
		}
	} else {
		return info, xerrors.NewProtocol(layer, "CONNECT missing connect-accept-item parameter")
	}
	if tb, ok := lastValue(params, paramTsduMaxSize); ok {
		info.peerMaxSize = decodeTsduMaxSize(tb).toInitiator
	}

	if rb, ok := lastValue(params, paramSessionRequirements); ok {
		if decodeSessionUserRequirements(rb)&fullDuplexBit == 0 {
			return info, xerrors.NewProtocol(layer, "peer did not request full-duplex session-user-requirements")
		}
	} else {
		return info, xerrors.NewProtocol(layer, "CONNECT missing session-user-requirements parameter")
	}

	userData, hasUser := lastValue(params, paramUserData)
	extData, hasExt := lastValue(params, paramExtendedUserData)
	if hasUser && hasExt {
		return info, xerrors.NewProtocol(layer, "CONNECT carries both UserData and ExtendedUserData")
	}
	if hasUser {
		info.userData = append([]byte(nil), userData...)
	} else if hasExt {
		info.userData = append([]byte(nil), extData...)
	}

	if ob, ok := lastValue(params, paramDataOverflow); ok && len(ob) > 0 && ob[0]&0x01 != 0 {
		if !hasExt {
			return info, xerrors.NewProtocol(layer, "DataOverflow set but no ExtendedUserData present")
		}
		info.hasOverflow = true
	}
	return info, nil
}

func buildOverflowAccept(ourMaxSize uint16) []byte {
	body := encodeParam(paramVersionNumber, versionNumber{version2: true}.encode())
	body = append(body, encodeParam(paramTsduMaxSize, tsduMaxSize{toResponder: ourMaxSize}.encode())...)
	spdu := append([]byte{siOverflowAccept}, encodeLength(len(body))...)
	return append(spdu, body...)
}

func parseOverflowAccept(spdu []byte, log logger.Logger) (peerMaxSize uint16, err error) {
	if len(spdu) < 2 || spdu[0] != siOverflowAccept {
		return 0, xerrors.NewProtocol(layer, "expected OVERFLOW-ACCEPT SPDU (SI=%d)", siOverflowAccept)
	}
	length, pos, err := decodeLength(spdu, 1)
	if err != nil {
		return 0, err
	}
	if pos+length > len(spdu) {
		return 0, xerrors.NewProtocol(layer, "OVERFLOW-ACCEPT SPDU length exceeds frame")
	}
	params, err := decodeParams(spdu[pos : pos+length])
	if err != nil {
		return 0, err
	}
	logUnknownParams(log, params, overflowAcceptKnownParams)
	if vb, ok := lastValue(params, paramVersionNumber); ok {
		if v := decodeVersionNumber(vb); !v.version2 {
			return 0, xerrors.NewProtocol(layer, "peer did not confirm version 2 on overflow-accept")
		}
	} else {
		return 0, xerrors.NewProtocol(layer, "OVERFLOW-ACCEPT missing version-number parameter")
	}
	if tb, ok := lastValue(params, paramTsduMaxSize); ok {
		peerMaxSize = decodeTsduMaxSize(tb).toResponder
	}
	return peerMaxSize, nil
}

// buildConnectDataOverflow builds one CONNECT-DATA-OVERFLOW SPDU fragment.
func buildConnectDataOverflow(data []byte, first, last bool) []byte {
	body := encodeParam(paramEnclosure, enclosure{beginning: first, end: last}.encode())
	body = append(body, encodeParam(paramUserData, data)...)
	spdu := append([]byte{siConnectDataOverflow}, encodeLength(len(body))...)
	return append(spdu, body...)
}

type overflowDataInfo struct {
	data []byte
	end  bool
}

func parseConnectDataOverflow(spdu []byte, log logger.Logger) (overflowDataInfo, error) {
	var info overflowDataInfo
	if len(spdu) < 2 || spdu[0] != siConnectDataOverflow {
		return info, xerrors.NewProtocol(layer, "expected CONNECT-DATA-OVERFLOW SPDU (SI=%d)", siConnectDataOverflow)
	}
	length, pos, err := decodeLength(spdu, 1)
	if err != nil {
		return info, err
	}
	if pos+length > len(spdu) {
		return info, xerrors.NewProtocol(layer, "CONNECT-DATA-OVERFLOW SPDU length exceeds frame")
	}
	params, err := decodeParams(spdu[pos : pos+length])
	if err != nil {
		return info, err
	}
	logUnknownParams(log, params, connectDataOverflowKnownParams)
	enc := enclosure{beginning: true, end: true}
	if eb, ok := lastValue(params, paramEnclosure); ok {
		enc = decodeEnclosure(eb)
	}
	info.end = enc.end
	if ud, ok := lastValue(params, paramUserData); ok {
		info.data = append([]byte(nil), ud...)
	}
	return info, nil
}

// buildAccept assembles the ACCEPT SPDU. echoedInitiatorCap is the peer's
// own advertised receive cap from CONNECT, echoed back unchanged;
// ourMaxSize is this responder's own receive cap, which becomes the
// initiator's peer-max for its future sends. Possibly one fragment of a
// fragmented sequence (first/last control the Enclosure parameter).
func buildAccept(echoedInitiatorCap, ourMaxSize uint16, data []byte, first, last bool) []byte {
	body := buildConnectAcceptItem()
	body = append(body, encodeParam(paramSessionRequirements, fullDuplexBit.encode())...)
	body = append(body, encodeParam(paramTsduMaxSize, tsduMaxSize{toInitiator: echoedInitiatorCap, toResponder: ourMaxSize}.encode())...)
	body = append(body, encodeParam(paramEnclosure, enclosure{beginning: first, end: last}.encode())...)
	if len(data) > 0 {
		body = append(body, encodeParam(paramUserData, data)...)
	}
	spdu := append([]byte{siAccept}, encodeLength(len(body))...)
	return append(spdu, body...)
}

type acceptInfo struct {
	data        []byte
	end         bool
	peerMaxSize uint16
}

// parseAccept decodes an ACCEPT SPDU. requireHeader is true for the first
// fragment of a (possibly fragmented) ACCEPT sequence, where the
// connect-accept-item and session-user-requirements parameters are
// mandatory; continuation fragments carry only Enclosure and User-Data.
func parseAccept(spdu []byte, requireHeader bool, log logger.Logger) (acceptInfo, error) {
	var info acceptInfo
	if len(spdu) < 2 || spdu[0] != siAccept {
		return info, xerrors.NewProtocol(layer, "expected ACCEPT SPDU (SI=%d)", siAccept)
	}
	length, pos, err := decodeLength(spdu, 1)
	if err != nil {
		return info, err
	}
	if pos+length > len(spdu) {
		return info, xerrors.NewProtocol(layer, "ACCEPT SPDU length exceeds frame")
	}
	params, err := decodeParams(spdu[pos : pos+length])
	if err != nil {
		return info, err
	}
	logUnknownParams(log, params, acceptKnownParams)
	if cai, ok := lastValue(params, paramConnectAcceptItem); ok {
		nested, err := decodeParams(cai)
		if err != nil {
			return info, err
		}
		if vb, ok := lastValue(nested, paramVersionNumber); ok {
			if v := decodeVersionNumber(vb); !v.version2 {
				return info, xerrors.NewProtocol(layer, "peer did not confirm version 2 on accept")
			}
		} else if requireHeader {
			return info, xerrors.NewProtocol(layer, "ACCEPT missing version-number parameter")
		}
	} else if requireHeader {
		return info, xerrors.NewProtocol(layer, "ACCEPT missing connect-accept-item parameter")
	}
	if tb, ok := lastValue(params, paramTsduMaxSize); ok {
		info.peerMaxSize = decodeTsduMaxSize(tb).toResponder
	}
	if rb, ok := lastValue(params, paramSessionRequirements); ok {
		if decodeSessionUserRequirements(rb)&fullDuplexBit == 0 {
			return info, xerrors.NewProtocol(layer, "peer did not confirm full-duplex on accept")
		}
	} else if requireHeader {
		return info, xerrors.NewProtocol(layer, "ACCEPT missing session-user-requirements parameter")
	}
	enc := enclosure{beginning: true, end: true}
	if eb, ok := lastValue(params, paramEnclosure); ok {
		enc = decodeEnclosure(eb)
	}
	info.end = enc.end
	if ud, ok := lastValue(params, paramUserData); ok {
		info.data = append([]byte(nil), ud...)
	}
	return info, nil
}

// buildAcceptContinuation encodes a continuation fragment of a fragmented
// ACCEPT sequence: Enclosure and User-Data only, no connect-accept-item.
func buildAcceptContinuation(data []byte, last bool) []byte {
	body := encodeParam(paramEnclosure, enclosure{beginning: false, end: last}.encode())
	if len(data) > 0 {
		body = append(body, encodeParam(paramUserData, data)...)
	}
	spdu := append([]byte{siAccept}, encodeLength(len(body))...)
	return append(spdu, body...)
}
