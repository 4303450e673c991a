package stack

import "github.com/iec61850-go/osistack/mms"

// mmsInitiateResponseBytes encodes resp as the AARE's user-information.
func mmsInitiateResponseBytes(resp *mms.InitiateResponse) []byte {
	return resp.Bytes()
}

// parseInitiateRequestFromAARQ decodes the MMS InitiateRequestPDU carried as
// an AARQ's user-information.
func parseInitiateRequestFromAARQ(userInfo []byte) (*mms.InitiateRequest, error) {
	return mms.ParseInitiateRequest(userInfo)
}

// NegotiateInitiateResponse builds the InitiateResponse a server returns for
// a given client InitiateRequest by copying the client's proposed
// outstanding-request counts, nesting level, version, parameter-CBB and
// services into the response unchanged. No server-side limit is applied;
// the response never lowers a value the client proposed.
func NegotiateInitiateResponse(req *mms.InitiateRequest) *mms.InitiateResponse {
	calling := req.ProposedMaxServOutstandingCalling
	called := req.ProposedMaxServOutstandingCalled
	nesting := req.ProposedDataStructureNestingLevel
	return &mms.InitiateResponse{
		NegotiatedMaxServOutstandingCalling: calling,
		NegotiatedMaxServOutstandingCalled:  called,
		NegotiatedDataStructureNestingLevel: &nesting,
		NegotiatedVersionNumber:             req.ProposedVersionNumber,
		NegotiatedParameterCBB:              req.ProposedParameterCBB,
		ServicesSupportedCalled:             req.ServicesSupportedCalling,
	}
}
