// Package cosp implements the kernel plus full-duplex functional unit of
// ISO 8327 / X.225 Connection-Oriented Session Protocol, version 2, carried
// over a cotp.Conn.
package cosp

import (
	"context"
	"errors"

	"github.com/iec61850-go/osistack/cotp"
	"github.com/iec61850-go/osistack/internal/xerrors"
	"github.com/iec61850-go/osistack/logger"
)

const layer = "cosp"

// ErrClosed is returned by Recv when the underlying COTP connection reports
// a peer-initiated DR rather than a decode or protocol failure. Every layer
// above forwards it through xerrors.WrapStack, whose Unwrap keeps it
// reachable via errors.Is at the acse/stack level too.
var ErrClosed = errors.New("cosp: underlying connection closed by peer")

// defaultMaxSize is this implementation's own receive cap, advertised to
// peers during the handshake.
const defaultMaxSize uint16 = 65528

type state int

const (
	stateConnecting state = iota
	stateOpen
	stateClosed
)

// Selectors identify the calling/called session-selector values exchanged
// in CONNECT; both may be left nil.
type Selectors struct {
	Calling []byte
	Called  []byte
}

// Conn is a COSP session atop a Class-0 COTP connection.
type Conn struct {
	lower   *cotp.Conn
	log     logger.Logger
	state   state
	peerMax uint16 // 0 = unlimited
}

// Option configures a Conn at construction time.
type Option func(*Conn)

// WithLogger attaches a Logger; the default is a no-op.
func WithLogger(l logger.Logger) Option {
	return func(c *Conn) { c.log = l }
}

func newConn(lower *cotp.Conn, opts ...Option) *Conn {
	c := &Conn{lower: lower, log: logger.Noop(), state: stateConnecting}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Initiate drives the initiator side of the handshake described in
// spec.md §4.3: CONNECT, optionally followed by the
// OVERFLOW-ACCEPT/CONNECT-DATA-OVERFLOW exchange when userData exceeds the
// single-CONNECT limit, then ACCEPT. It returns the open session and
// whatever connect-response data the peer attached to ACCEPT.
func Initiate(ctx context.Context, lower *cotp.Conn, sel Selectors, userData []byte, opts ...Option) (*Conn, []byte, error) {
	c := newConn(lower, opts...)

	spdu, overflow := buildConnect(sel.Calling, sel.Called, defaultMaxSize, userData)
	if err := c.lower.Send(ctx, spdu); err != nil {
		return nil, nil, xerrors.WrapStack(layer, err)
	}
	c.log.Debug("sent CONNECT, %d bytes inline, %d bytes deferred to overflow", len(userData)-len(overflow), len(overflow))

	if overflow != nil {
		payload, _, err := c.lower.Recv(ctx)
		if err != nil {
			return nil, nil, xerrors.WrapStack(layer, err)
		}
		overflowPeerMax, err := parseOverflowAccept(payload, c.log)
		if err != nil {
			return nil, nil, err
		}
		chunk := int(maxOverflowFragment)
		if overflowPeerMax != 0 && int(overflowPeerMax) < chunk {
			chunk = int(overflowPeerMax)
		}
		for off := 0; off < len(overflow); off += chunk {
			end := off + chunk
			last := end >= len(overflow)
			if end > len(overflow) {
				end = len(overflow)
			}
			frag := buildConnectDataOverflow(overflow[off:end], off == 0, last)
			if err := c.lower.Send(ctx, frag); err != nil {
				return nil, nil, xerrors.WrapStack(layer, err)
			}
		}
		c.log.Debug("sent %d overflow bytes in CONNECT-DATA-OVERFLOW fragments", len(overflow))
	}

	var acceptData []byte
	first := true
	for {
		payload, _, err := c.lower.Recv(ctx)
		if err != nil {
			return nil, nil, xerrors.WrapStack(layer, err)
		}
		info, err := parseAccept(payload, first, c.log)
		if err != nil {
			return nil, nil, err
		}
		if first {
			c.peerMax = info.peerMaxSize
		}
		acceptData = append(acceptData, info.data...)
		first = false
		if info.end {
			break
		}
	}
	c.state = stateOpen
	c.log.Debug("session open: peerMax=%d", c.peerMax)
	return c, acceptData, nil
}

// Accept drives the responder side: await CONNECT (possibly followed by
// CONNECT-DATA-OVERFLOW fragments), answer with ACCEPT. acceptData is the
// caller's own connect-response user data.
func Accept(ctx context.Context, lower *cotp.Conn, acceptData []byte, opts ...Option) (*Conn, []byte, error) {
	c := newConn(lower, opts...)

	payload, _, err := c.lower.Recv(ctx)
	if err != nil {
		return nil, nil, xerrors.WrapStack(layer, err)
	}
	info, err := parseConnect(payload, c.log)
	if err != nil {
		return nil, nil, err
	}
	userData := info.userData

	if info.hasOverflow {
		oa := buildOverflowAccept(defaultMaxSize)
		if err := c.lower.Send(ctx, oa); err != nil {
			return nil, nil, xerrors.WrapStack(layer, err)
		}
		for {
			fragPayload, _, err := c.lower.Recv(ctx)
			if err != nil {
				return nil, nil, xerrors.WrapStack(layer, err)
			}
			frag, err := parseConnectDataOverflow(fragPayload, c.log)
			if err != nil {
				return nil, nil, err
			}
			userData = append(userData, frag.data...)
			if frag.end {
				break
			}
		}
		c.log.Debug("reassembled %d bytes from CONNECT-DATA-OVERFLOW", len(userData))
	}

	const maxAcceptFragment = maxUserDataInExtendedConnect
	if len(acceptData) <= maxAcceptFragment {
		accept := buildAccept(info.peerMaxSize, defaultMaxSize, acceptData, true, true)
		if err := c.lower.Send(ctx, accept); err != nil {
			return nil, nil, xerrors.WrapStack(layer, err)
		}
	} else {
		first := buildAccept(info.peerMaxSize, defaultMaxSize, acceptData[:maxAcceptFragment], true, false)
		if err := c.lower.Send(ctx, first); err != nil {
			return nil, nil, xerrors.WrapStack(layer, err)
		}
		for off := maxAcceptFragment; off < len(acceptData); off += maxAcceptFragment {
			end := off + maxAcceptFragment
			last := end >= len(acceptData)
			if end > len(acceptData) {
				end = len(acceptData)
			}
			cont := buildAcceptContinuation(acceptData[off:end], last)
			if err := c.lower.Send(ctx, cont); err != nil {
				return nil, nil, xerrors.WrapStack(layer, err)
			}
		}
	}
	c.peerMax = info.peerMaxSize
	c.state = stateOpen
	c.log.Debug("session open: peerMax=%d", c.peerMax)
	return c, userData, nil
}

// Send transmits one TSSDU of application data, fragmenting across
// multiple GiveTokens+DataTransfer TSDUs when it exceeds the peer's
// advertised TSDU-maximum-size.
func (c *Conn) Send(ctx context.Context, data []byte) error {
	if c.state != stateOpen {
		return xerrors.NewProtocol(layer, "send attempted before session established")
	}
	chunk := len(data)
	if c.peerMax != 0 {
		budget := int(c.peerMax) - dataPhaseOverhead
		if budget <= 0 {
			return xerrors.NewInternal(layer, "negotiated peer tsdu-max-size %d too small for session overhead", c.peerMax)
		}
		chunk = budget
	}
	if len(data) == 0 {
		return xerrors.WrapStack(layer, c.lower.Send(ctx, buildDataPhaseTSDU(nil, true, true)))
	}
	for off := 0; off < len(data); off += chunk {
		end := off + chunk
		last := end >= len(data)
		if end > len(data) {
			end = len(data)
		}
		tsdu := buildDataPhaseTSDU(data[off:end], off == 0, last)
		if err := c.lower.Send(ctx, tsdu); err != nil {
			return xerrors.WrapStack(layer, err)
		}
	}
	return nil
}

// Recv reassembles DataTransfer fragments across one or more concatenated
// TSDUs until the enclosure-end bit is set, and returns the reassembled
// TSSDU.
func (c *Conn) Recv(ctx context.Context) ([]byte, error) {
	if c.state != stateOpen {
		return nil, xerrors.NewProtocol(layer, "recv attempted before session established")
	}
	var acc []byte
	for {
		payload, ind, err := c.lower.Recv(ctx)
		if err != nil {
			return nil, xerrors.WrapStack(layer, err)
		}
		if ind == cotp.IndicationDisconnect {
			c.state = stateClosed
			return nil, ErrClosed
		}
		info, err := parseDataPhaseTSDU(payload, c.log)
		if err != nil {
			return nil, err
		}
		acc = append(acc, info.data...)
		if info.end {
			return acc, nil
		}
	}
}

// Close closes the underlying COTP connection. COSP kernel+duplex scope
// does not model an orderly FINISH exchange; release is immediate.
func (c *Conn) Close() error {
	c.state = stateClosed
	return xerrors.WrapIO(layer, c.lower.Close())
}
