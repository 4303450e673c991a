// Package cotp implements the Class-0 subset of ISO 8073 / X.224
// Connection-Oriented Transport Protocol, carried over tpkt framing.
package cotp

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"io"

	"github.com/iec61850-go/osistack/internal/xerrors"
	"github.com/iec61850-go/osistack/logger"
	"github.com/iec61850-go/osistack/tpkt"
)

const layer = "cotp"

// TPDU type codes (high nibble of the first header octet, per X.224 §13).
const (
	tpduCR byte = 0xE0
	tpduCC byte = 0xD0
	tpduDR byte = 0x80
	tpduDT byte = 0xF0
	tpduER byte = 0x70
)

// Variable parameter codes.
const (
	paramTPDUSize     byte = 0xC0
	paramCallingTSAP  byte = 0xC1
	paramCalledTSAP   byte = 0xC2
	paramAlternatives byte = 0xC6
)

const maxClass0TpduSize = 1024 // ceiling for class 0 per spec.md §4.2

// RejectCause enumerates the ER TPDU reject-cause octet.
type RejectCause byte

const (
	RejectUnspecified        RejectCause = 0
	RejectInvalidParam       RejectCause = 1
	RejectInvalidTPDUType    RejectCause = 2
	RejectInvalidParamValue  RejectCause = 3
)

func (c RejectCause) String() string {
	switch c {
	case RejectInvalidParam:
		return "invalid-parameter"
	case RejectInvalidTPDUType:
		return "invalid-tpdu-type"
	case RejectInvalidParamValue:
		return "invalid-parameter-value"
	default:
		return "unspecified"
	}
}

// downgradeMatrix lists, for each preferred class, the classes a CC may
// legally downgrade to for this Class-0-only implementation.
var downgradeMatrix = map[byte][]byte{
	0: {0},
	1: {0, 1},
	2: {0},
	3: {0, 1},
	4: {0, 1},
}

// Parameters are the options negotiated at connect time.
type Parameters struct {
	CalledTSelector  []byte
	CallingTSelector []byte
	PreferredClass   byte // this implementation only ever proposes/accepts 0
	ProposedTPDUSize int  // octets, rounded down to the nearest supported power of two
}

// DefaultParameters mirrors common MMS-over-TCP defaults.
func DefaultParameters() Parameters {
	return Parameters{PreferredClass: 0, ProposedTPDUSize: 1024}
}

type state int

const (
	stateConnecting state = iota
	stateOpen
	stateClosed
)

// Conn is a Class-0 COTP connection over a tpkt.Conn.
type Conn struct {
	tp          *tpkt.Conn
	log         logger.Logger
	state       state
	localRef    uint16
	remoteRef   uint16
	tpduSize    int
	peerUnknown []UnknownParam
}

// PeerUnknownParams returns the connect-phase variable parameters the peer's
// CR/CC sent that this implementation doesn't interpret (paramTPDUSize,
// paramCallingTSAP, paramCalledTSAP and paramAlternatives are the only ones
// that are). Empty for a peer that sent none.
func (c *Conn) PeerUnknownParams() []UnknownParam { return c.peerUnknown }

// Option configures a Conn at construction time.
type Option func(*Conn)

// WithLogger attaches a Logger; the default is a no-op.
func WithLogger(l logger.Logger) Option {
	return func(c *Conn) { c.log = l }
}

func newConn(tp *tpkt.Conn, opts ...Option) *Conn {
	c := &Conn{tp: tp, log: logger.Noop(), state: stateConnecting}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func randomRef() (uint16, error) {
	var b [2]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

// Initiate performs the initiator side of the handshake: send CR, await CC,
// verify the class downgrade is acceptable. rw is the underlying transport
// (typically a net.Conn); params configures the proposed TPDU size.
func Initiate(ctx context.Context, rw io.ReadWriteCloser, params Parameters, opts ...Option) (*Conn, error) {
	tp := tpkt.New(rw)
	c := newConn(tp, opts...)

	ref, err := randomRef()
	if err != nil {
		return nil, xerrors.NewInternal(layer, "failed to generate source reference: %s", err)
	}
	c.localRef = ref

	if params.ProposedTPDUSize <= 0 || params.ProposedTPDUSize > maxClass0TpduSize {
		params.ProposedTPDUSize = maxClass0TpduSize
	}

	cr := buildCR(c.localRef, params)
	if err := tp.Send(cr); err != nil {
		return nil, xerrors.WrapStack(layer, err)
	}
	c.log.Debug("sent CR src=%d", c.localRef)

	payload, err := tp.Recv(ctx)
	if err != nil {
		return nil, xerrors.WrapStack(layer, err)
	}
	cc, err := parseCC(payload)
	if err != nil {
		return nil, err
	}
	if cc.dstRef != c.localRef {
		return nil, xerrors.NewProtocol(layer, "CC destination reference %d does not match our CR source %d", cc.dstRef, c.localRef)
	}
	allowed, ok := downgradeMatrix[params.PreferredClass]
	if !ok {
		return nil, xerrors.NewInternal(layer, "no downgrade entry for preferred class %d", params.PreferredClass)
	}
	if !containsByte(allowed, cc.class) {
		return nil, xerrors.NewProtocol(layer, "peer CC class %d is not a valid downgrade from preferred class %d", cc.class, params.PreferredClass)
	}

	c.remoteRef = cc.srcRef
	c.tpduSize = cc.tpduSize
	if c.tpduSize == 0 {
		c.tpduSize = maxClass0TpduSize
	}
	c.peerUnknown = cc.unknown
	for _, p := range c.peerUnknown {
		c.log.Debug("ignoring unknown CC parameter code=0x%02x len=%d", p.Code, len(p.Bytes))
	}
	c.state = stateOpen
	c.log.Debug("connection open: localRef=%d remoteRef=%d tpduSize=%d", c.localRef, c.remoteRef, c.tpduSize)
	return c, nil
}

// Accept performs the responder side: await CR, answer CC.
func Accept(ctx context.Context, rw io.ReadWriteCloser, opts ...Option) (*Conn, error) {
	tp := tpkt.New(rw)
	c := newConn(tp, opts...)

	payload, err := tp.Recv(ctx)
	if err != nil {
		return nil, xerrors.WrapStack(layer, err)
	}
	cr, err := parseCR(payload)
	if err != nil {
		return nil, err
	}

	ref, err := randomRef()
	if err != nil {
		return nil, xerrors.NewInternal(layer, "failed to generate source reference: %s", err)
	}
	c.localRef = ref
	c.remoteRef = cr.srcRef
	c.peerUnknown = cr.unknown
	for _, p := range c.peerUnknown {
		c.log.Debug("ignoring unknown CR parameter code=0x%02x len=%d", p.Code, len(p.Bytes))
	}

	chosenSize := cr.tpduSize
	if chosenSize <= 0 || chosenSize > maxClass0TpduSize {
		chosenSize = maxClass0TpduSize
	}
	c.tpduSize = chosenSize

	cc := buildCC(c.localRef, c.remoteRef, chosenSize)
	if err := tp.Send(cc); err != nil {
		return nil, xerrors.WrapStack(layer, err)
	}
	c.state = stateOpen
	c.log.Debug("connection open: localRef=%d remoteRef=%d tpduSize=%d", c.localRef, c.remoteRef, c.tpduSize)
	return c, nil
}

// TPDUSize returns the negotiated TPDU size in octets.
func (c *Conn) TPDUSize() int { return c.tpduSize }

// Send fragments data into DT TPDUs of at most TPDUSize()-3 bytes of user
// data each, EOT set on the last fragment.
func (c *Conn) Send(ctx context.Context, data []byte) error {
	if c.state != stateOpen {
		return xerrors.NewProtocol(layer, "send attempted before handshake completed")
	}
	const dtHeaderSize = 3 // LI + code + EOT byte
	chunk := c.tpduSize - dtHeaderSize
	if chunk <= 0 {
		return xerrors.NewInternal(layer, "negotiated tpdu size %d too small for a DT header", c.tpduSize)
	}

	if len(data) == 0 {
		return c.sendFragment(nil, true)
	}
	for off := 0; off < len(data); off += chunk {
		end := off + chunk
		last := end >= len(data)
		if end > len(data) {
			end = len(data)
		}
		if err := c.sendFragment(data[off:end], last); err != nil {
			return err
		}
	}
	return nil
}

func (c *Conn) sendFragment(data []byte, last bool) error {
	eot := byte(0x00)
	if last {
		eot = 0x80
	}
	buf := make([]byte, 0, 3+len(data))
	buf = append(buf, tpduDT, eot)
	buf = append(buf, data...)
	buf = append([]byte{byte(len(buf))}, buf...)
	return xerrors.WrapStack(layer, c.tp.Send(buf))
}

// Indication classifies what Recv observed.
type Indication int

const (
	IndicationData Indication = iota
	IndicationMoreFragments
	IndicationDisconnect
)

// Recv reassembles DT fragments until EOT and returns the user data, or
// IndicationDisconnect if the peer sent DR.
func (c *Conn) Recv(ctx context.Context) ([]byte, Indication, error) {
	if c.state != stateOpen {
		return nil, 0, xerrors.NewProtocol(layer, "recv attempted before handshake completed")
	}
	var acc []byte
	for {
		payload, err := c.tp.Recv(ctx)
		if err != nil {
			return nil, 0, xerrors.WrapStack(layer, err)
		}
		if len(payload) < 2 {
			return nil, 0, xerrors.NewProtocol(layer, "COTP TPDU shorter than header")
		}
		li := int(payload[0])
		if li+1 > len(payload) {
			return nil, 0, xerrors.NewProtocol(layer, "COTP length indicator %d exceeds TPDU size", li)
		}
		code := payload[1]
		switch code {
		case tpduDT:
			if len(payload) < 3 {
				return nil, 0, xerrors.NewProtocol(layer, "DT TPDU missing EOT byte")
			}
			eot := payload[2]&0x80 != 0
			acc = append(acc, payload[li+1:]...)
			if eot {
				return acc, IndicationData, nil
			}
		case tpduDR:
			c.state = stateClosed
			return nil, IndicationDisconnect, nil
		case tpduER:
			cause := RejectCause(0)
			if len(payload) > li+1 {
				cause = RejectCause(payload[li+1])
			}
			return nil, 0, xerrors.NewProtocol(layer, "peer sent ER: %s", cause)
		default:
			return nil, 0, xerrors.NewProtocol(layer, "unexpected TPDU type 0x%02x in data phase", code)
		}
	}
}

// Close sends a DR and closes the underlying transport.
func (c *Conn) Close() error {
	if c.state == stateOpen {
		dr := buildDR(c.localRef, c.remoteRef)
		_ = c.tp.Send(dr) // best-effort, graceful close proceeds regardless
	}
	c.state = stateClosed
	return xerrors.WrapIO(layer, c.tp.Close())
}

func containsByte(list []byte, v byte) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
