// Package acse implements the Association Control Service Element (ISO 8649
// / X.227): AARQ/AARE BER PDUs carried as the ACSE-context user-data of a
// copp.Conn's CP/CPA exchange, and the data phase that follows as an
// ordinary copp.Conn carrying MMS PDUs under the MMS presentation context.
package acse

import (
	"context"

	"github.com/iec61850-go/osistack/cosp"
	"github.com/iec61850-go/osistack/copp"
	"github.com/iec61850-go/osistack/internal/xerrors"
	"github.com/iec61850-go/osistack/logger"
)

const layer = "acse"

// Conn is an established application association: the ACSE handshake has
// already run, and Send/Recv carry MMS PDUs over the copp.Conn data phase.
type Conn struct {
	lower *copp.Conn
	log   logger.Logger
}

// Option configures a Conn at construction time.
type Option func(*Conn)

// WithLogger attaches a Logger; the default is a no-op.
func WithLogger(l logger.Logger) Option {
	return func(c *Conn) { c.log = l }
}

func newConn(lower *copp.Conn, opts ...Option) *Conn {
	c := &Conn{lower: lower, log: logger.Noop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Initiate drives association establishment per spec.md §4.5: it opens the
// presentation connection, carrying an AARQ built from req as CP
// connect-data, and parses the AARE returned as CPA accept-data. If the
// peer's associate-result is not accepted, the presentation connection is
// closed and the result returned alongside a protocol error.
func Initiate(ctx context.Context, lower *cosp.Conn, sel copp.Selectors, req AssociationRequest, opts ...Option) (*Conn, AssociationResponse, error) {
	aarq, err := buildAARQ(req)
	if err != nil {
		return nil, AssociationResponse{}, err
	}

	presConn, aareBytes, err := copp.Initiate(ctx, lower, sel, aarq)
	if err != nil {
		return nil, AssociationResponse{}, xerrors.WrapStack(layer, err)
	}
	aare, err := parseAARE(aareBytes)
	if err != nil {
		presConn.Close()
		return nil, AssociationResponse{}, err
	}
	if aare.Result != ResultAccepted {
		presConn.Close()
		return nil, aare, xerrors.NewProtocol(layer, "association rejected: result=%d diagnostic=%s", aare.Result, aare.Diagnostic)
	}

	c := newConn(presConn, opts...)
	c.log.Debug("association established, application-context=%s", req.ApplicationContextName)
	return c, aare, nil
}

// Accept drives the responder side: receive the AARQ as CP connect-data,
// hand the caller the decoded request, and send an AARE built from resp as
// CPA accept-data.
func Accept(ctx context.Context, lower *cosp.Conn, resp AssociationResponse, opts ...Option) (*Conn, AssociationRequest, error) {
	presConn, aarqBytes, err := copp.Accept(ctx, lower, mustAARE(resp))
	if err != nil {
		return nil, AssociationRequest{}, xerrors.WrapStack(layer, err)
	}
	aarq, err := parseAARQ(aarqBytes)
	if err != nil {
		presConn.Close()
		return nil, AssociationRequest{}, err
	}
	c := newConn(presConn, opts...)
	c.log.Debug("association accepted, application-context=%s", aarq.ApplicationContextName)
	return c, aarq, nil
}

// mustAARE builds an AARE PDU from resp; copp.Accept needs the bytes before
// the caller can have seen any error, so encode failures are folded into an
// empty accept-data payload and surface when the peer tries to parse it.
func mustAARE(resp AssociationResponse) []byte {
	aare, err := buildAARE(resp)
	if err != nil {
		return nil
	}
	return aare
}

// Send transmits one MMS PDU over the established association.
func (c *Conn) Send(ctx context.Context, mmsPDU []byte) error {
	return xerrors.WrapStack(layer, c.lower.Send(ctx, mmsPDU))
}

// Recv receives one MMS PDU.
func (c *Conn) Recv(ctx context.Context) ([]byte, error) {
	data, err := c.lower.Recv(ctx)
	if err != nil {
		return nil, xerrors.WrapStack(layer, err)
	}
	return data, nil
}

// Close closes the underlying presentation connection. ACSE's RELEASE
// service is out of scope (spec.md Non-goals): this implementation closes
// the transport stack directly rather than performing an orderly A-RELEASE.
func (c *Conn) Close() error {
	return xerrors.WrapIO(layer, c.lower.Close())
}
