package acse

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iec61850-go/osistack/copp"
	"github.com/iec61850-go/osistack/cosp"
	"github.com/iec61850-go/osistack/cotp"
)

// cospPipe builds a connected pair of open cosp.Conns over an in-process
// net.Pipe, for use as the lower layer in association-layer tests.
func cospPipe(t *testing.T) (*cosp.Conn, *cosp.Conn) {
	t.Helper()
	clientRaw, serverRaw := net.Pipe()

	type cotpResult struct {
		conn *cotp.Conn
		err  error
	}
	clientCh := make(chan cotpResult, 1)
	serverCh := make(chan cotpResult, 1)
	go func() {
		c, err := cotp.Initiate(context.Background(), clientRaw, cotp.DefaultParameters())
		clientCh <- cotpResult{c, err}
	}()
	go func() {
		c, err := cotp.Accept(context.Background(), serverRaw)
		serverCh <- cotpResult{c, err}
	}()
	cr := <-clientCh
	sr := <-serverCh
	require.NoError(t, cr.err)
	require.NoError(t, sr.err)

	type cospResult struct {
		conn *cosp.Conn
		err  error
	}
	cClientCh := make(chan cospResult, 1)
	cServerCh := make(chan cospResult, 1)
	go func() {
		c, _, err := cosp.Initiate(context.Background(), cr.conn, cosp.Selectors{}, nil)
		cClientCh <- cospResult{c, err}
	}()
	go func() {
		c, _, err := cosp.Accept(context.Background(), sr.conn, nil)
		cServerCh <- cospResult{c, err}
	}()
	ccr := <-cClientCh
	csr := <-cServerCh
	require.NoError(t, ccr.err)
	require.NoError(t, csr.err)
	return ccr.conn, csr.conn
}

// TestAssociateMinimal is spec.md seed scenario E: application-context-name
// set, all optional fields absent, minimal user-information.
func TestAssociateMinimal(t *testing.T) {
	clientLower, serverLower := cospPipe(t)

	req := AssociationRequest{
		ApplicationContextName: "1.0.9506.2.1",
		UserInformation:        []byte{0xa8, 0x00},
	}
	resp := AssociationResponse{
		ApplicationContextName: "1.0.9506.2.1",
		Result:                 ResultAccepted,
		Diagnostic:             Diagnostic{Source: diagUser, Code: 0},
		UserInformation:        []byte{0xa9, 0x00},
	}

	type initResult struct {
		conn *Conn
		resp AssociationResponse
		err  error
	}
	type acceptResult struct {
		conn *Conn
		req  AssociationRequest
		err  error
	}
	initCh := make(chan initResult, 1)
	acceptCh := make(chan acceptResult, 1)

	go func() {
		c, r, err := Initiate(context.Background(), clientLower, copp.Selectors{}, req)
		initCh <- initResult{c, r, err}
	}()
	go func() {
		c, r, err := Accept(context.Background(), serverLower, resp)
		acceptCh <- acceptResult{c, r, err}
	}()

	ir := <-initCh
	ar := <-acceptCh
	require.NoError(t, ir.err)
	require.NoError(t, ar.err)

	assert.Equal(t, resp.UserInformation, ir.resp.UserInformation)
	assert.Equal(t, req.ApplicationContextName, ar.req.ApplicationContextName)
	assert.Equal(t, req.UserInformation, ar.req.UserInformation)

	defer ir.conn.Close()
	defer ar.conn.Close()
}

// TestAssociateFullOptionSet exercises the AARQ with every optional field
// populated: AP/AE titles, qualifiers, invocation identifiers, and
// implementation-information, asserting each round-trips.
func TestAssociateFullOptionSet(t *testing.T) {
	clientLower, serverLower := cospPipe(t)

	calledTitle := ApTitle("1.2.3.4.5")
	callingTitle := ApTitle("2.2.3.4.5")
	calledQ := AeQualifier(100)
	callingQ := AeQualifier(200)
	calledAPInv := int64(101)
	calledAEInv := int64(102)
	callingAPInv := int64(201)
	callingAEInv := int64(202)

	req := AssociationRequest{
		ApplicationContextName:   "1.0.9506.2.1",
		CalledAPTitle:            &calledTitle,
		CalledAEQualifier:        &calledQ,
		CalledAPInvocation:       &calledAPInv,
		CalledAEInvocation:       &calledAEInv,
		CallingAPTitle:           &callingTitle,
		CallingAEQualifier:       &callingQ,
		CallingAPInvocation:      &callingAPInv,
		CallingAEInvocation:      &callingAEInv,
		ImplementationInformation: "This Guy",
		UserInformation:          []byte{0xa8, 0x00},
	}
	resp := AssociationResponse{
		ApplicationContextName: "1.0.9506.2.1",
		Result:                 ResultAccepted,
		Diagnostic:             Diagnostic{Source: diagUser, Code: 0},
		UserInformation:        []byte{0xa9, 0x00},
	}

	type acceptResult struct {
		req AssociationRequest
		err error
	}
	acceptCh := make(chan acceptResult, 1)
	initErrCh := make(chan error, 1)

	go func() {
		_, _, err := Initiate(context.Background(), clientLower, copp.Selectors{}, req)
		initErrCh <- err
	}()
	go func() {
		_, r, err := Accept(context.Background(), serverLower, resp)
		acceptCh <- acceptResult{r, err}
	}()

	require.NoError(t, <-initErrCh)
	ar := <-acceptCh
	require.NoError(t, ar.err)

	assert.Equal(t, req.CalledAPTitle, ar.req.CalledAPTitle)
	assert.Equal(t, req.CallingAPTitle, ar.req.CallingAPTitle)
	assert.Equal(t, req.CalledAEQualifier, ar.req.CalledAEQualifier)
	assert.Equal(t, req.CallingAEQualifier, ar.req.CallingAEQualifier)
	assert.Equal(t, req.CalledAPInvocation, ar.req.CalledAPInvocation)
	assert.Equal(t, req.CalledAEInvocation, ar.req.CalledAEInvocation)
	assert.Equal(t, req.CallingAPInvocation, ar.req.CallingAPInvocation)
	assert.Equal(t, req.CallingAEInvocation, ar.req.CallingAEInvocation)
	assert.Equal(t, req.ImplementationInformation, ar.req.ImplementationInformation)
}

// TestAssociateRejectedSurfacesDiagnostic asserts that a non-accepted
// associate-result is reported as an error alongside the decoded diagnostic.
func TestAssociateRejectedSurfacesDiagnostic(t *testing.T) {
	clientLower, serverLower := cospPipe(t)

	req := AssociationRequest{ApplicationContextName: "1.0.9506.2.1", UserInformation: []byte{0xa8, 0x00}}
	resp := AssociationResponse{
		ApplicationContextName: "1.0.9506.2.1",
		Result:                 ResultRejectedPermanent,
		Diagnostic:             Diagnostic{Source: diagUser, Code: 2},
		UserInformation:        []byte{0xa9, 0x00},
	}

	type initResult struct {
		resp AssociationResponse
		err  error
	}
	initCh := make(chan initResult, 1)
	go func() {
		_, r, err := Initiate(context.Background(), clientLower, copp.Selectors{}, req)
		initCh <- initResult{r, err}
	}()
	go func() {
		Accept(context.Background(), serverLower, resp)
	}()

	ir := <-initCh
	require.Error(t, ir.err)
	assert.Equal(t, ResultRejectedPermanent, ir.resp.Result)
	assert.Equal(t, "application-context-name-not-supported", ir.resp.Diagnostic.String())
}

// TestRecvSurfacesPeerDisconnect confirms cosp.ErrClosed is still reachable
// via errors.Is after two more xerrors.WrapStack hops (copp then acse),
// per spec.md's recv() -> Data | Closed distinction.
func TestRecvSurfacesPeerDisconnect(t *testing.T) {
	clientLower, serverLower := cospPipe(t)

	req := AssociationRequest{ApplicationContextName: "1.0.9506.2.1"}
	resp := AssociationResponse{ApplicationContextName: "1.0.9506.2.1", Result: ResultAccepted}

	type initResult struct {
		conn *Conn
		err  error
	}
	type acceptResult struct {
		conn *Conn
		err  error
	}
	initCh := make(chan initResult, 1)
	acceptCh := make(chan acceptResult, 1)
	go func() {
		c, _, err := Initiate(context.Background(), clientLower, copp.Selectors{}, req)
		initCh <- initResult{c, err}
	}()
	go func() {
		c, _, err := Accept(context.Background(), serverLower, resp)
		acceptCh <- acceptResult{c, err}
	}()
	ir := <-initCh
	ar := <-acceptCh
	require.NoError(t, ir.err)
	require.NoError(t, ar.err)
	client, server := ir.conn, ar.conn

	closeErr := make(chan error, 1)
	go func() { closeErr <- client.Close() }()

	_, err := server.Recv(context.Background())
	require.ErrorIs(t, err, cosp.ErrClosed)
	require.NoError(t, <-closeErr)

	server.Close()
}
