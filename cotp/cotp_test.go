package cotp

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iec61850-go/osistack/tpkt"
)

func TestParseCRSeedScenario(t *testing.T) {
	// 06 E0 00 00 00 00 00: LI=6, CR, dst=0, src=0, class=0, no params.
	buf := []byte{0x06, 0xE0, 0x00, 0x00, 0x00, 0x00, 0x00}
	cr, err := parseCR(buf)
	require.NoError(t, err)
	assert.Equal(t, uint16(0), cr.srcRef)
	assert.Equal(t, uint16(0), cr.dstRef)
	assert.Equal(t, byte(0), cr.class)
}

func TestHandshakeAndDataPhase(t *testing.T) {
	clientRaw, serverRaw := net.Pipe()

	type result struct {
		conn *Conn
		err  error
	}
	clientCh := make(chan result, 1)
	serverCh := make(chan result, 1)

	go func() {
		c, err := Initiate(context.Background(), clientRaw, DefaultParameters())
		clientCh <- result{c, err}
	}()
	go func() {
		c, err := Accept(context.Background(), serverRaw)
		serverCh <- result{c, err}
	}()

	clientRes := <-clientCh
	serverRes := <-serverCh
	require.NoError(t, clientRes.err)
	require.NoError(t, serverRes.err)

	client, server := clientRes.conn, serverRes.conn
	defer client.Close()
	defer server.Close()

	payload := []byte("hello from initiator")
	sendErr := make(chan error, 1)
	go func() { sendErr <- client.Send(context.Background(), payload) }()

	got, indication, err := server.Recv(context.Background())
	require.NoError(t, err)
	require.NoError(t, <-sendErr)
	assert.Equal(t, IndicationData, indication)
	assert.Equal(t, payload, got)
}

func TestParseConnectTPDUCarriesUnknownParameters(t *testing.T) {
	cr := buildCR(5, DefaultParameters())
	header := cr[1:] // drop the LI byte, rebuilt below
	header = append(header, 0xC9, 0x02, 0xAA, 0xBB)
	buf := append([]byte{byte(len(header))}, header...)

	pdu, err := parseCR(buf)
	require.NoError(t, err)
	require.Len(t, pdu.unknown, 1)
	assert.Equal(t, byte(0xC9), pdu.unknown[0].Code)
	assert.Equal(t, []byte{0xAA, 0xBB}, pdu.unknown[0].Bytes)
	// the parameters this implementation does understand are unaffected by
	// the trailing unknown one.
	assert.Equal(t, uint16(5), pdu.srcRef)
}

func TestAcceptSurfacesPeerUnknownParameters(t *testing.T) {
	clientRaw, serverRaw := net.Pipe()

	cr := buildCR(9, DefaultParameters())
	header := append(cr[1:], 0xC9, 0x01, 0x2A)
	raw := append([]byte{byte(len(header))}, header...)

	type result struct {
		conn *Conn
		err  error
	}
	serverCh := make(chan result, 1)
	go func() {
		c, err := Accept(context.Background(), serverRaw)
		serverCh <- result{c, err}
	}()

	clientTP := tpkt.New(clientRaw)
	sendErr := make(chan error, 1)
	go func() { sendErr <- clientTP.Send(raw) }()

	// Accept answers with a CC; drain it so Accept's final Send doesn't
	// block forever on the unbuffered pipe.
	recvErr := make(chan error, 1)
	go func() {
		_, err := clientTP.Recv(context.Background())
		recvErr <- err
	}()

	res := <-serverCh
	require.NoError(t, <-sendErr)
	require.NoError(t, <-recvErr)
	require.NoError(t, res.err)
	defer res.conn.Close()

	require.Len(t, res.conn.PeerUnknownParams(), 1)
	assert.Equal(t, byte(0xC9), res.conn.PeerUnknownParams()[0].Code)
	assert.Equal(t, []byte{0x2A}, res.conn.PeerUnknownParams()[0].Bytes)
}

func TestRejectsClassDowngradeOutsideMatrix(t *testing.T) {
	// CC proposing class 2 in response to a preferred-class-0 CR is not a
	// valid downgrade and must be rejected.
	cc, err := parseCC(buildCC(5, 7, 1024))
	require.NoError(t, err)
	assert.False(t, containsByte(downgradeMatrix[0], cc.class+2))
}
