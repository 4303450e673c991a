package mms

import (
	"github.com/iec61850-go/osistack/ber"
	"github.com/iec61850-go/osistack/internal/xerrors"
)

// IdentifyRequest asks the VMD to report its vendor, model, and revision.
// Its confirmedServiceRequest content is BER NULL.
type IdentifyRequest struct {
	InvokeID InvokeID
}

func NewIdentifyRequest(invokeID InvokeID) *IdentifyRequest {
	return &IdentifyRequest{InvokeID: invokeID}
}

// Bytes encodes the Confirmed-RequestPDU carrying this Identify request.
func (r *IdentifyRequest) Bytes() []byte {
	return encodeConfirmedRequest(r.InvokeID, encodeTLV(nil, tagServiceIdentify, nil))
}

// ParseIdentifyRequest decodes a Confirmed-RequestPDU carrying an Identify
// request. The body is BER NULL, so only the invoke-id is meaningful.
func ParseIdentifyRequest(buffer []byte) (IdentifyRequest, error) {
	invokeID, serviceTag, _, err := decodeConfirmedRequest(buffer)
	if err != nil {
		return IdentifyRequest{}, err
	}
	if serviceTag != tagServiceIdentify {
		return IdentifyRequest{}, xerrors.NewProtocol(layer, "expected identify request tag 0x%02x, got 0x%02x", tagServiceIdentify, serviceTag)
	}
	return IdentifyRequest{InvokeID: invokeID}, nil
}

// IdentifyResponse carries the VMD's self-description.
type IdentifyResponse struct {
	InvokeID              InvokeID
	VendorName            string
	ModelName             string
	Revision              string
	ListOfAbstractSyntaxes []string // dotted-decimal OIDs, usually empty
}

// Bytes encodes the Confirmed-ResponsePDU carrying this Identify response.
func (r *IdentifyResponse) Bytes() []byte {
	var content []byte
	content = encodeTLV(content, 0x80, []byte(r.VendorName))
	content = encodeTLV(content, 0x81, []byte(r.ModelName))
	content = encodeTLV(content, 0x82, []byte(r.Revision))
	if len(r.ListOfAbstractSyntaxes) > 0 {
		var oids []byte
		for _, dotted := range r.ListOfAbstractSyntaxes {
			scratch := make([]byte, 64)
			n, err := ber.EncodeOIDToBuffer(dotted, scratch, len(scratch))
			if err == nil {
				oids = encodeTLV(oids, tagOID, scratch[:n])
			}
		}
		content = encodeTLV(content, 0xA3, oids)
	}
	return encodeConfirmedResponse(r.InvokeID, encodeTLV(nil, tagServiceIdentify, content))
}

// ParseIdentifyResponse decodes a Confirmed-ResponsePDU carrying an
// Identify-Response.
func ParseIdentifyResponse(buffer []byte) (IdentifyResponse, error) {
	invokeID, serviceTag, serviceContent, err := decodeConfirmedResponse(buffer)
	if err != nil {
		return IdentifyResponse{}, err
	}
	if serviceTag != tagServiceIdentify {
		return IdentifyResponse{}, xerrors.NewProtocol(layer, "expected identify response tag 0x%02x, got 0x%02x", tagServiceIdentify, serviceTag)
	}
	items, err := decodeTLVs(serviceContent)
	if err != nil {
		return IdentifyResponse{}, err
	}

	resp := IdentifyResponse{InvokeID: invokeID}
	for _, it := range items {
		switch it.tag {
		case 0x80:
			resp.VendorName = string(it.value)
		case 0x81:
			resp.ModelName = string(it.value)
		case 0x82:
			resp.Revision = string(it.value)
		case 0xA3:
			oidItems, err := decodeTLVs(it.value)
			if err != nil {
				return IdentifyResponse{}, err
			}
			for _, o := range oidItems {
				var oid ber.ItuObjectIdentifier
				ber.DecodeOID(o.value, 0, len(o.value), &oid)
				resp.ListOfAbstractSyntaxes = append(resp.ListOfAbstractSyntaxes, oidToDotted(oid))
			}
		}
	}
	return resp, nil
}

func oidToDotted(oid ber.ItuObjectIdentifier) string {
	s := ""
	for i := 0; i < oid.ArcCount; i++ {
		if i > 0 {
			s += "."
		}
		s += itoa(int(oid.Arc[i]))
	}
	return s
}
