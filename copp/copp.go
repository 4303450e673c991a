package copp

import (
	"context"

	"github.com/iec61850-go/osistack/cosp"
	"github.com/iec61850-go/osistack/internal/xerrors"
	"github.com/iec61850-go/osistack/logger"
)

// Conn is a presentation connection atop a cosp.Conn. Its data phase carries
// exactly one MMS PDU per TSSDU, wrapped as the Fully-Encoded-Data PDV of
// the MMS presentation context.
type Conn struct {
	lower *cosp.Conn
	log   logger.Logger
}

// Option configures a Conn at construction time.
type Option func(*Conn)

// WithLogger attaches a Logger; the default is a no-op.
func WithLogger(l logger.Logger) Option {
	return func(c *Conn) { c.log = l }
}

func newConn(lower *cosp.Conn, opts ...Option) *Conn {
	c := &Conn{lower: lower, log: logger.Noop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Initiate drives a cosp.Conn through the COSP handshake carrying a CP PPDU
// as connect-data, and returns the open Conn along with the CPA's
// association-data (the ACSE AARE bytes) for the caller to hand to its ACSE
// layer.
func Initiate(ctx context.Context, lower *cosp.Conn, sel Selectors, associationData []byte, opts ...Option) (*Conn, []byte, error) {
	c := newConn(lower, opts...)

	cp, err := buildCP(sel, associationData)
	if err != nil {
		return nil, nil, err
	}
	if err := c.lower.Send(ctx, cp); err != nil {
		return nil, nil, xerrors.WrapStack(layer, err)
	}
	reply, err := c.lower.Recv(ctx)
	if err != nil {
		return nil, nil, xerrors.WrapStack(layer, err)
	}
	info, err := parseCPA(reply)
	if err != nil {
		return nil, nil, err
	}
	c.log.Debug("presentation connection established, responding selector %x", info.respondingSelector)
	return c, info.associationData, nil
}

// Accept drives the responder side: receive a CP PPDU, extract its
// association-data for the caller's ACSE layer, then send a CPA carrying
// the caller's own association-data (the ACSE AARE bytes).
func Accept(ctx context.Context, lower *cosp.Conn, associationData []byte, opts ...Option) (*Conn, []byte, error) {
	c := newConn(lower, opts...)

	payload, err := c.lower.Recv(ctx)
	if err != nil {
		return nil, nil, xerrors.WrapStack(layer, err)
	}
	info, err := parseCP(payload)
	if err != nil {
		return nil, nil, err
	}

	cpa, err := buildCPA(info.calledSelector, defaultContexts(), associationData)
	if err != nil {
		return nil, nil, err
	}
	if err := c.lower.Send(ctx, cpa); err != nil {
		return nil, nil, xerrors.WrapStack(layer, err)
	}
	c.log.Debug("presentation connection established, calling selector %x", info.callingSelector)
	return c, info.associationData, nil
}

// Send encodes data as the sole PDV of a Fully-Encoded-Data DT value, tagged
// with the MMS presentation context, and transmits it as one TSSDU.
func (c *Conn) Send(ctx context.Context, data []byte) error {
	return xerrors.WrapStack(layer, c.lower.Send(ctx, buildDataPDV(data)))
}

// Recv receives one TSSDU and returns its MMS-context payload.
func (c *Conn) Recv(ctx context.Context) ([]byte, error) {
	tssdu, err := c.lower.Recv(ctx)
	if err != nil {
		return nil, xerrors.WrapStack(layer, err)
	}
	return parseDataPDV(tssdu)
}

// Close closes the underlying session connection.
func (c *Conn) Close() error {
	return xerrors.WrapIO(layer, c.lower.Close())
}
