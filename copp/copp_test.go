package copp

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iec61850-go/osistack/cosp"
	"github.com/iec61850-go/osistack/cotp"
)

// cospPipe builds a connected pair of open cosp.Conns over an in-process
// net.Pipe, for use as the lower layer in presentation-layer tests.
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

// TestAssociateExchangesAssociationData exercises the CP/CPA handshake,
// asserting that each side's association-data (the bytes an ACSE layer
// would hand down as its AARQ/AARE) survives the round trip.
func TestAssociateExchangesAssociationData(t *testing.T) {
	clientLower, serverLower := cospPipe(t)

	aarq := []byte{0x30, 0x03, 0x02, 0x01, 0x2a} // placeholder association-request bytes
	aare := []byte{0x30, 0x03, 0x02, 0x01, 0x63}

	type initResult struct {
		conn *Conn
		data []byte
		err  error
	}
	type acceptResult struct {
		conn *Conn
		data []byte
		err  error
	}
	initCh := make(chan initResult, 1)
	acceptCh := make(chan acceptResult, 1)

	go func() {
		c, d, err := Initiate(context.Background(), clientLower, Selectors{}, aarq)
		initCh <- initResult{c, d, err}
	}()
	go func() {
		c, d, err := Accept(context.Background(), serverLower, aare)
		acceptCh <- acceptResult{c, d, err}
	}()

	ir := <-initCh
	ar := <-acceptCh
	require.NoError(t, ir.err)
	require.NoError(t, ar.err)

	assert.Equal(t, aare, ir.data)
	assert.Equal(t, aarq, ar.data)

	defer ir.conn.Close()
	defer ar.conn.Close()
}

// TestDataRoundTripsThroughMMSContext exercises the DT PDV wrap/unwrap path.
func TestDataRoundTripsThroughMMSContext(t *testing.T) {
	clientLower, serverLower := cospPipe(t)

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
		c, _, err := Initiate(context.Background(), clientLower, Selectors{}, nil)
		initCh <- initResult{c, err}
	}()
	go func() {
		c, _, err := Accept(context.Background(), serverLower, nil)
		acceptCh <- acceptResult{c, err}
	}()
	ir := <-initCh
	ar := <-acceptCh
	require.NoError(t, ir.err)
	require.NoError(t, ar.err)
	client, server := ir.conn, ar.conn
	defer client.Close()
	defer server.Close()

	mmsPDU := []byte{0xa0, 0x05, 0x02, 0x01, 0x01, 0x00, 0x00}

	sendErr := make(chan error, 1)
	go func() { sendErr <- client.Send(context.Background(), mmsPDU) }()

	got, err := server.Recv(context.Background())
	require.NoError(t, err)
	require.NoError(t, <-sendErr)
	assert.Equal(t, mmsPDU, got)
}

// TestRecvSurfacesPeerDisconnect confirms cosp.ErrClosed survives the
// xerrors.WrapStack wrapping copp.Recv applies, so a peer-initiated close
// is still distinguishable from a decode error one layer up.
func TestRecvSurfacesPeerDisconnect(t *testing.T) {
	clientLower, serverLower := cospPipe(t)

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
		c, _, err := Initiate(context.Background(), clientLower, Selectors{}, nil)
		initCh <- initResult{c, err}
	}()
	go func() {
		c, _, err := Accept(context.Background(), serverLower, nil)
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
