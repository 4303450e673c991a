package cosp

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iec61850-go/osistack/cotp"
)

func cotpPipe(t *testing.T) (*cotp.Conn, *cotp.Conn) {
	t.Helper()
	clientRaw, serverRaw := net.Pipe()

	type result struct {
		conn *cotp.Conn
		err  error
	}
	clientCh := make(chan result, 1)
	serverCh := make(chan result, 1)
	go func() {
		c, err := cotp.Initiate(context.Background(), clientRaw, cotp.DefaultParameters())
		clientCh <- result{c, err}
	}()
	go func() {
		c, err := cotp.Accept(context.Background(), serverRaw)
		serverCh <- result{c, err}
	}()
	cr := <-clientCh
	sr := <-serverCh
	require.NoError(t, cr.err)
	require.NoError(t, sr.err)
	return cr.conn, sr.conn
}

// TestSmallDataConnect is spec.md seed scenario C: a small connect userData
// produces exactly one CONNECT SPDU with a UserData parameter, and the
// responder's accept-data is echoed back in a single ACCEPT.
func TestSmallDataConnect(t *testing.T) {
	clientLower, serverLower := cotpPipe(t)

	type initResult struct {
		conn       *Conn
		acceptData []byte
		err        error
	}
	type acceptResult struct {
		conn       *Conn
		connectData []byte
		err        error
	}
	initCh := make(chan initResult, 1)
	acceptCh := make(chan acceptResult, 1)

	connectData := []byte{5, 6, 7}
	acceptData := []byte{5, 4, 3}

	go func() {
		c, ad, err := Initiate(context.Background(), clientLower, Selectors{}, connectData)
		initCh <- initResult{c, ad, err}
	}()
	go func() {
		c, cd, err := Accept(context.Background(), serverLower, acceptData)
		acceptCh <- acceptResult{c, cd, err}
	}()

	ir := <-initCh
	ar := <-acceptCh
	require.NoError(t, ir.err)
	require.NoError(t, ar.err)

	assert.Equal(t, acceptData, ir.acceptData)
	assert.Equal(t, connectData, ar.connectData)

	defer ir.conn.Close()
	defer ar.conn.Close()
}

// TestJumboConnect is spec.md seed scenario D: a 206 420-byte connect
// userData must overflow through OVERFLOW-ACCEPT/CONNECT-DATA-OVERFLOW and
// be reassembled byte-for-byte by the responder.
func TestJumboConnect(t *testing.T) {
	clientLower, serverLower := cotpPipe(t)

	const jumboSize = 206420
	jumbo := make([]byte, jumboSize)
	for i := range jumbo {
		jumbo[i] = byte(i)
	}

	type initResult struct {
		conn *Conn
		err  error
	}
	type acceptResult struct {
		conn        *Conn
		connectData []byte
		err         error
	}
	initCh := make(chan initResult, 1)
	acceptCh := make(chan acceptResult, 1)

	go func() {
		c, _, err := Initiate(context.Background(), clientLower, Selectors{}, jumbo)
		initCh <- initResult{c, err}
	}()
	go func() {
		c, cd, err := Accept(context.Background(), serverLower, nil)
		acceptCh <- acceptResult{c, cd, err}
	}()

	ir := <-initCh
	ar := <-acceptCh
	require.NoError(t, ir.err)
	require.NoError(t, ar.err)

	require.Len(t, ar.connectData, jumboSize)
	assert.Equal(t, jumbo, ar.connectData)

	defer ir.conn.Close()
	defer ar.conn.Close()
}

// TestDataPhaseFragmentsAndReassembles exercises the post-handshake
// give-tokens+data-transfer concatenation and enclosure-based reassembly
// with a payload large enough to require several TSDUs.
func TestDataPhaseFragmentsAndReassembles(t *testing.T) {
	clientLower, serverLower := cotpPipe(t)

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

	payload := make([]byte, 140000)
	for i := range payload {
		payload[i] = byte(i * 7)
	}

	sendErr := make(chan error, 1)
	go func() { sendErr <- client.Send(context.Background(), payload) }()

	got, err := server.Recv(context.Background())
	require.NoError(t, err)
	require.NoError(t, <-sendErr)
	assert.Equal(t, payload, got)
}

// TestRecvSurfacesPeerDisconnectAsErrClosed exercises spec.md's recv() ->
// Data | Closed distinction: a peer-initiated Close (cotp DR underneath)
// must be reported as ErrClosed, not folded into an ordinary decode error.
func TestRecvSurfacesPeerDisconnectAsErrClosed(t *testing.T) {
	clientLower, serverLower := cotpPipe(t)

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

	// Close's DR write blocks on the unbuffered pipe until server.Recv
	// reads it, so the two run concurrently rather than sequentially.
	closeErr := make(chan error, 1)
	go func() { closeErr <- client.Close() }()

	_, err := server.Recv(context.Background())
	require.ErrorIs(t, err, ErrClosed)
	require.NoError(t, <-closeErr)

	server.Close()
}
