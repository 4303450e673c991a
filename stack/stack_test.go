package stack

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iec61850-go/osistack/cosp"
	"github.com/iec61850-go/osistack/mms"
	"github.com/iec61850-go/osistack/mms/variant"
)

// pipeAssociations runs the client and server sides of establishment over
// an in-process net.Pipe, mirroring acse_test.go's cospPipe helper one
// layer up the stack.
func pipeAssociations(t *testing.T) (*Association, *mms.InitiateResponse, *Association, *mms.InitiateRequest) {
	t.Helper()
	clientRaw, serverRaw := net.Pipe()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	type clientResult struct {
		assoc *Association
		resp  *mms.InitiateResponse
		err   error
	}
	type serverResult struct {
		assoc *Association
		req   *mms.InitiateRequest
		err   error
	}
	clientCh := make(chan clientResult, 1)
	serverCh := make(chan serverResult, 1)

	go func() {
		a, r, err := dialOver(ctx, clientRaw)
		clientCh <- clientResult{a, r, err}
	}()
	go func() {
		defaultResp := NegotiateInitiateResponse(mms.NewInitiateRequest())
		a, r, err := Accept(ctx, serverRaw, defaultResp)
		serverCh <- serverResult{a, r, err}
	}()

	cr := <-clientCh
	sr := <-serverCh
	require.NoError(t, cr.err)
	require.NoError(t, sr.err)
	return cr.assoc, cr.resp, sr.assoc, sr.req
}

func TestDialAcceptEstablishesAssociation(t *testing.T) {
	clientAssoc, initResp, serverAssoc, initReq := pipeAssociations(t)
	t.Cleanup(func() {
		clientAssoc.Close()
		serverAssoc.Close()
	})

	assert.NotEqual(t, clientAssoc.ID, serverAssoc.ID)
	assert.NotEqual(t, clientAssoc.ID.String(), "")
	require.NotNil(t, initResp)
	require.NotNil(t, initReq)
	assert.Equal(t, uint32(65000), initReq.LocalDetailCalling)
	assert.Equal(t, initReq.ProposedMaxServOutstandingCalling, initResp.NegotiatedMaxServOutstandingCalling)
}

func TestReadRoundTripsOverAssociation(t *testing.T) {
	clientAssoc, _, serverAssoc, _ := pipeAssociations(t)
	t.Cleanup(func() {
		clientAssoc.Close()
		serverAssoc.Close()
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	serverDone := make(chan error, 1)
	go func() {
		pdu, err := serverAssoc.RecvMMS(ctx)
		if err != nil {
			serverDone <- err
			return
		}
		readReq, err := mms.ParseReadRequest(pdu)
		if err != nil {
			serverDone <- err
			return
		}
		resp := &mms.ReadResponse{
			InvokeID: readReq.InvokeID,
			ListOfAccessResult: []mms.AccessResult{{
				Success: true,
				Value:   variant.NewFloat32Variant(42.5),
			}},
		}
		serverDone <- serverAssoc.SendMMS(ctx, resp.Bytes())
	}()

	got, err := clientAssoc.Read(ctx, "simpleIOGenericIO", "GGIO1$ST$AnIn1$mag$f")
	require.NoError(t, err)
	require.NoError(t, <-serverDone)
	require.Len(t, got.ListOfAccessResult, 1)
	assert.True(t, got.ListOfAccessResult[0].Success)
	assert.Equal(t, float32(42.5), got.ListOfAccessResult[0].Value.Float32())
}

func TestWriteRoundTripsOverAssociation(t *testing.T) {
	clientAssoc, _, serverAssoc, _ := pipeAssociations(t)
	t.Cleanup(func() {
		clientAssoc.Close()
		serverAssoc.Close()
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	serverDone := make(chan error, 1)
	go func() {
		pdu, err := serverAssoc.RecvMMS(ctx)
		if err != nil {
			serverDone <- err
			return
		}
		writeReq, err := mms.ParseWriteRequest(pdu)
		if err != nil {
			serverDone <- err
			return
		}
		resp := &mms.WriteResponse{
			InvokeID: writeReq.InvokeID,
			Results:  make([]mms.WriteResult, len(writeReq.Values)),
		}
		for i := range resp.Results {
			resp.Results[i] = mms.WriteResult{Success: true}
		}
		serverDone <- serverAssoc.SendMMS(ctx, resp.Bytes())
	}()

	got, err := clientAssoc.Write(ctx, "simpleIOGenericIO", "GGIO1$ST$Ind1$stVal", variant.NewBooleanVariant(true))
	require.NoError(t, err)
	require.NoError(t, <-serverDone)
	require.Len(t, got.Results, 1)
	assert.True(t, got.Results[0].Success)
}

func TestIdentifyRoundTripsOverAssociation(t *testing.T) {
	clientAssoc, _, serverAssoc, _ := pipeAssociations(t)
	t.Cleanup(func() {
		clientAssoc.Close()
		serverAssoc.Close()
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	serverDone := make(chan error, 1)
	go func() {
		pdu, err := serverAssoc.RecvMMS(ctx)
		if err != nil {
			serverDone <- err
			return
		}
		idReq, err := mms.ParseIdentifyRequest(pdu)
		if err != nil {
			serverDone <- err
			return
		}
		resp := &mms.IdentifyResponse{
			InvokeID:   idReq.InvokeID,
			VendorName: "ACME",
			ModelName:  "iec61850-go",
			Revision:   "1.0",
		}
		serverDone <- serverAssoc.SendMMS(ctx, resp.Bytes())
	}()

	got, err := clientAssoc.Identify(ctx)
	require.NoError(t, err)
	require.NoError(t, <-serverDone)
	assert.Equal(t, "ACME", got.VendorName)
	assert.Equal(t, "iec61850-go", got.ModelName)
}

func TestGetNameListRoundTripsOverAssociation(t *testing.T) {
	clientAssoc, _, serverAssoc, _ := pipeAssociations(t)
	t.Cleanup(func() {
		clientAssoc.Close()
		serverAssoc.Close()
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	serverDone := make(chan error, 1)
	go func() {
		pdu, err := serverAssoc.RecvMMS(ctx)
		if err != nil {
			serverDone <- err
			return
		}
		listReq, err := mms.ParseGetNameListRequest(pdu)
		if err != nil {
			serverDone <- err
			return
		}
		resp := &mms.GetNameListResponse{
			InvokeID:         listReq.InvokeID,
			ListOfIdentifier: []string{"Ind1", "Ind2"},
		}
		serverDone <- serverAssoc.SendMMS(ctx, resp.Bytes())
	}()

	got, err := clientAssoc.GetNameList(ctx, mms.ObjectClassNamedVariable, mms.ObjectScope{DomainID: "simpleIOGenericIO"}, "")
	require.NoError(t, err)
	require.NoError(t, <-serverDone)
	assert.Equal(t, []string{"Ind1", "Ind2"}, got.ListOfIdentifier)
	assert.False(t, got.MoreFollows)
}

func TestInvokeIDsIncreaseMonotonically(t *testing.T) {
	clientAssoc, _, serverAssoc, _ := pipeAssociations(t)
	t.Cleanup(func() {
		clientAssoc.Close()
		serverAssoc.Close()
	})
	first := clientAssoc.NextInvokeID()
	second := clientAssoc.NextInvokeID()
	assert.Equal(t, first+1, second)
}

// TestRecvMMSSurfacesPeerDisconnect confirms a peer-initiated Close is
// still observable as cosp.ErrClosed after the full stack.Close ->
// acse -> copp -> cosp -> cotp round trip, per spec.md's recv() ->
// Data | Closed distinction (Testable Property 4).
func TestRecvMMSSurfacesPeerDisconnect(t *testing.T) {
	clientAssoc, _, serverAssoc, _ := pipeAssociations(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	closeErr := make(chan error, 1)
	go func() { closeErr <- clientAssoc.Close() }()

	_, err := serverAssoc.RecvMMS(ctx)
	require.ErrorIs(t, err, cosp.ErrClosed)
	require.NoError(t, <-closeErr)

	serverAssoc.Close()
}
