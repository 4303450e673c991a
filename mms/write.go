package mms

import (
	"fmt"

	"github.com/iec61850-go/osistack/internal/xerrors"
	"github.com/iec61850-go/osistack/mms/variant"
)

// WriteRequest sets the value of one or more named variables.
//
//	Write-Request ::= SEQUENCE {
//	  variableAccessSpecification VariableAccessSpecification,
//	  listOfData [0] SEQUENCE OF Data
//	}
type WriteRequest struct {
	InvokeID  InvokeID
	Variables []ObjectName
	Values    []*variant.Variant
}

func NewWriteRequest(invokeID InvokeID, name ObjectName, value *variant.Variant) *WriteRequest {
	return &WriteRequest{InvokeID: invokeID, Variables: []ObjectName{name}, Values: []*variant.Variant{value}}
}

// Bytes encodes the Confirmed-RequestPDU carrying this Write request.
func (w *WriteRequest) Bytes() []byte {
	varSpec := encodeListOfVariable(w.Variables...)

	var dataSeq []byte
	for _, v := range w.Values {
		dataSeq = append(dataSeq, v.Bytes()...)
	}
	listOfData := encodeTLV(nil, tagListOfData, encodeTLV(nil, tagSequence, dataSeq))

	content := append(varSpec, listOfData...)
	return encodeConfirmedRequest(w.InvokeID, encodeTLV(nil, tagServiceWrite, content))
}

// ParseWriteRequest decodes a Confirmed-RequestPDU carrying a Write request,
// for a responder that must apply the values a client sent.
func ParseWriteRequest(buffer []byte) (WriteRequest, error) {
	invokeID, serviceTag, serviceContent, err := decodeConfirmedRequest(buffer)
	if err != nil {
		return WriteRequest{}, err
	}
	if serviceTag != tagServiceWrite {
		return WriteRequest{}, xerrors.NewProtocol(layer, "expected write request tag 0x%02x, got 0x%02x", tagServiceWrite, serviceTag)
	}
	items, err := decodeTLVs(serviceContent)
	if err != nil {
		return WriteRequest{}, err
	}
	varSpecTLV, ok := findTLV(items, tagListOfVariable)
	if !ok {
		return WriteRequest{}, xerrors.NewProtocol(layer, "write-request: missing variableAccessSpecification")
	}
	names, err := decodeListOfVariable(varSpecTLV)
	if err != nil {
		return WriteRequest{}, err
	}

	listOfDataTLV, ok := findTLV(items, tagListOfData)
	if !ok {
		return WriteRequest{}, xerrors.NewProtocol(layer, "write-request: missing listOfData")
	}
	dataItems, err := decodeTLVs(listOfDataTLV)
	if err != nil {
		return WriteRequest{}, err
	}
	if len(dataItems) == 0 {
		return WriteRequest{}, xerrors.NewProtocol(layer, "write-request: empty listOfData")
	}
	seqItems, err := decodeTLVs(dataItems[0].value)
	if err != nil {
		return WriteRequest{}, err
	}

	req := WriteRequest{InvokeID: invokeID, Variables: names}
	for _, it := range seqItems {
		v, ok, err := variant.Decode(it.tag, it.value)
		if err != nil {
			return WriteRequest{}, xerrors.NewProtocol(layer, "write-request: %s", err)
		}
		if !ok {
			continue
		}
		req.Values = append(req.Values, v)
	}
	return req, nil
}

// WriteResult is one item's outcome: either success, or a DataAccessError.
type WriteResult struct {
	Success bool
	Error   *DataAccessError
}

func (r WriteResult) String() string {
	if r.Success {
		return "success"
	}
	return r.Error.String()
}

// WriteResponse carries one WriteResult per variable in the request, in order.
type WriteResponse struct {
	InvokeID InvokeID
	Results  []WriteResult
}

func (r *WriteResponse) String() string {
	out := fmt.Sprintf("WriteResponse{InvokeID:%d Results:[", r.InvokeID)
	for i, res := range r.Results {
		if i > 0 {
			out += " "
		}
		out += res.String()
	}
	return out + "]}"
}

// Bytes encodes the Confirmed-ResponsePDU carrying this Write response.
func (r *WriteResponse) Bytes() []byte {
	var resultSeq []byte
	for _, res := range r.Results {
		if res.Success {
			resultSeq = encodeTLV(resultSeq, 0x81, nil)
		} else {
			resultSeq = encodeTLV(resultSeq, 0x80, encodeUint32(uint32(res.Error.ErrorCode)))
		}
	}
	content := encodeTLV(nil, tagSequence, resultSeq)
	return encodeConfirmedResponse(r.InvokeID, encodeTLV(nil, tagServiceWrite, content))
}

// ParseWriteResponse decodes a Confirmed-ResponsePDU carrying a Write-Response.
func ParseWriteResponse(buffer []byte) (WriteResponse, error) {
	invokeID, serviceTag, serviceContent, err := decodeConfirmedResponse(buffer)
	if err != nil {
		return WriteResponse{}, err
	}
	if serviceTag != tagServiceWrite {
		return WriteResponse{}, xerrors.NewProtocol(layer, "expected write response tag 0x%02x, got 0x%02x", tagServiceWrite, serviceTag)
	}
	items, err := decodeTLVs(serviceContent)
	if err != nil {
		return WriteResponse{}, err
	}

	var entries []berTLV
	if seq, ok := findTLV(items, tagSequence); ok {
		entries, err = decodeTLVs(seq)
		if err != nil {
			return WriteResponse{}, err
		}
	} else {
		entries = items
	}

	resp := WriteResponse{InvokeID: invokeID}
	for _, it := range entries {
		switch it.tag {
		case 0x80: // failure
			resp.Results = append(resp.Results, WriteResult{Error: &DataAccessError{ErrorCode: DataAccessErrorCode(decodeUint32(it.value))}})
		case 0x81: // success (NULL)
			resp.Results = append(resp.Results, WriteResult{Success: true})
		default:
			return WriteResponse{}, xerrors.NewProtocol(layer, "write-response: unexpected result tag 0x%02x", it.tag)
		}
	}
	return resp, nil
}
