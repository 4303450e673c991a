// Package stack ties the six layers of spec.md §2 into a single
// application association: TPKT framing, COTP transport, COSP session,
// COPP presentation, ACSE association control, and MMS application PDUs.
// Dial drives the client side of establishment; Accept drives the
// responder side. Both return an Association that exchanges MMS PDUs once
// established.
package stack

import (
	"context"
	"io"
	"net"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/iec61850-go/osistack/acse"
	"github.com/iec61850-go/osistack/copp"
	"github.com/iec61850-go/osistack/cosp"
	"github.com/iec61850-go/osistack/cotp"
	"github.com/iec61850-go/osistack/internal/xerrors"
	"github.com/iec61850-go/osistack/logger"
	"github.com/iec61850-go/osistack/mms"
	"github.com/iec61850-go/osistack/mms/variant"
)

const layer = "stack"

// mmsApplicationContext is the MMS application-context-name object
// identifier (ISO 9506-2), carried in every AARQ/AARE this package builds.
const mmsApplicationContext = "1.0.9506.2.1"

// Association is an established MMS application association. Every
// Association is tagged with a random ID so log lines and diagnostics from
// concurrent associations can be correlated without threading a context
// value through every call.
type Association struct {
	ID   uuid.UUID
	conn *acse.Conn
	log  logger.Logger

	invokeID uint32
}

// Option configures Dial/Accept.
type Option func(*options)

type options struct {
	log     logger.Logger
	cotp    cotp.Parameters
	copp    copp.Selectors
	initiate *mms.InitiateRequest
}

func defaultOptions() *options {
	return &options{
		log:      logger.Noop(),
		cotp:     cotp.DefaultParameters(),
		initiate: mms.NewInitiateRequest(),
	}
}

func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.log = l }
}

func WithCOTPParameters(p cotp.Parameters) Option {
	return func(o *options) { o.cotp = p }
}

func WithPresentationSelectors(sel copp.Selectors) Option {
	return func(o *options) { o.copp = sel }
}

// WithInitiateRequest overrides the MMS Initiate parameters Dial proposes.
func WithInitiateRequest(req *mms.InitiateRequest) Option {
	return func(o *options) { o.initiate = req }
}

// Dial establishes a full association over a freshly dialed TCP connection
// to addr, running the TPKT/COTP/COSP/COPP/ACSE handshake and the MMS
// Initiate exchange carried as AARQ/AARE user-information, per spec.md
// §4.6's note that Initiate rides the association-establishment PDUs
// rather than a separate confirmed service.
func Dial(ctx context.Context, addr string, opts ...Option) (*Association, *mms.InitiateResponse, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, nil, xerrors.WrapIO(layer, err)
	}
	assoc, initResp, err := dialOver(ctx, conn, opts...)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	return assoc, initResp, nil
}

// dialOver runs the client-side handshake over an already-open transport
// (a net.Conn, or an in-process net.Pipe half in tests).
func dialOver(ctx context.Context, rw io.ReadWriteCloser, opts ...Option) (*Association, *mms.InitiateResponse, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	cotpConn, err := cotp.Initiate(ctx, rw, o.cotp, cotp.WithLogger(o.log))
	if err != nil {
		return nil, nil, xerrors.WrapStack(layer, err)
	}
	cospConn, _, err := cosp.Initiate(ctx, cotpConn, cosp.Selectors{}, nil, cosp.WithLogger(o.log))
	if err != nil {
		cotpConn.Close()
		return nil, nil, xerrors.WrapStack(layer, err)
	}

	req := acse.AssociationRequest{
		ApplicationContextName: mmsApplicationContext,
		UserInformation:        o.initiate.Bytes(),
	}
	acseConn, resp, err := acse.Initiate(ctx, cospConn, o.copp, req, acse.WithLogger(o.log))
	if err != nil {
		cospConn.Close()
		return nil, nil, xerrors.WrapStack(layer, err)
	}

	initResp, err := mms.ParseInitiateResponse(resp.UserInformation)
	if err != nil {
		acseConn.Close()
		return nil, nil, err
	}

	assoc := &Association{ID: newAssociationID(), conn: acseConn, log: o.log}
	assoc.log.Debug("association %s established: %s", assoc.ID, initResp)
	return assoc, initResp, nil
}

// Accept drives the responder side of establishment over an already-open
// transport (typically one net.Listener.Accept returned), answering with
// resp as the MMS Initiate-ResponsePDU.
func Accept(ctx context.Context, rw io.ReadWriteCloser, resp *mms.InitiateResponse, opts ...Option) (*Association, *mms.InitiateRequest, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	cotpConn, err := cotp.Accept(ctx, rw, cotp.WithLogger(o.log))
	if err != nil {
		return nil, nil, xerrors.WrapStack(layer, err)
	}
	cospConn, _, err := cosp.Accept(ctx, cotpConn, nil, cosp.WithLogger(o.log))
	if err != nil {
		cotpConn.Close()
		return nil, nil, xerrors.WrapStack(layer, err)
	}

	aareUserInfo := mmsInitiateResponseBytes(resp)
	acseResp := acse.AssociationResponse{
		ApplicationContextName: mmsApplicationContext,
		Result:                 acse.ResultAccepted,
		UserInformation:        aareUserInfo,
	}
	acseConn, aarq, err := acse.Accept(ctx, cospConn, acseResp, acse.WithLogger(o.log))
	if err != nil {
		cospConn.Close()
		return nil, nil, xerrors.WrapStack(layer, err)
	}

	initReq, err := parseInitiateRequestFromAARQ(aarq.UserInformation)
	if err != nil {
		acseConn.Close()
		return nil, nil, err
	}

	assoc := &Association{ID: newAssociationID(), conn: acseConn, log: o.log}
	assoc.log.Debug("association %s accepted", assoc.ID)
	return assoc, initReq, nil
}

// NextInvokeID returns the next invoke-id to use for a confirmed request on
// this association, starting at 1 and incrementing monotonically.
func (a *Association) NextInvokeID() mms.InvokeID {
	return mms.InvokeID(atomic.AddUint32(&a.invokeID, 1))
}

// SendMMS transmits one already-encoded MMS PDU.
func (a *Association) SendMMS(ctx context.Context, pdu []byte) error {
	return a.conn.Send(ctx, pdu)
}

// RecvMMS receives one MMS PDU.
func (a *Association) RecvMMS(ctx context.Context) ([]byte, error) {
	return a.conn.Recv(ctx)
}

// Read performs an MMS Read of one named variable.
func (a *Association) Read(ctx context.Context, domainID, itemID string) (mms.ReadResponse, error) {
	req := mms.NewReadRequest(a.NextInvokeID(), domainID, itemID)
	if err := a.SendMMS(ctx, req.Bytes()); err != nil {
		return mms.ReadResponse{}, err
	}
	respBytes, err := a.RecvMMS(ctx)
	if err != nil {
		return mms.ReadResponse{}, err
	}
	return mms.ParseReadResponse(respBytes)
}

// Write performs an MMS Write of one named variable.
func (a *Association) Write(ctx context.Context, domainID, itemID string, value *variant.Variant) (mms.WriteResponse, error) {
	req := mms.NewWriteRequest(a.NextInvokeID(), mms.ObjectName{DomainID: domainID, ItemID: itemID}, value)
	if err := a.SendMMS(ctx, req.Bytes()); err != nil {
		return mms.WriteResponse{}, err
	}
	respBytes, err := a.RecvMMS(ctx)
	if err != nil {
		return mms.WriteResponse{}, err
	}
	return mms.ParseWriteResponse(respBytes)
}

// GetNameList enumerates the named variables, named variable lists, or
// domains visible within scope.
func (a *Association) GetNameList(ctx context.Context, class mms.ObjectClass, scope mms.ObjectScope, continueAfter string) (mms.GetNameListResponse, error) {
	req := mms.NewGetNameListRequest(a.NextInvokeID(), class, scope)
	req.ContinueAfter = continueAfter
	if err := a.SendMMS(ctx, req.Bytes()); err != nil {
		return mms.GetNameListResponse{}, err
	}
	respBytes, err := a.RecvMMS(ctx)
	if err != nil {
		return mms.GetNameListResponse{}, err
	}
	return mms.ParseGetNameListResponse(respBytes)
}

// Identify asks the peer VMD to report its vendor, model, and revision.
func (a *Association) Identify(ctx context.Context) (mms.IdentifyResponse, error) {
	req := mms.NewIdentifyRequest(a.NextInvokeID())
	if err := a.SendMMS(ctx, req.Bytes()); err != nil {
		return mms.IdentifyResponse{}, err
	}
	respBytes, err := a.RecvMMS(ctx)
	if err != nil {
		return mms.IdentifyResponse{}, err
	}
	return mms.ParseIdentifyResponse(respBytes)
}

// DefineNamedVariableList creates a named variable list grouping members on
// the server for later bulk Read/report access.
func (a *Association) DefineNamedVariableList(ctx context.Context, list mms.ObjectName, members []mms.ObjectName) error {
	req := mms.NewDefineNamedVariableListRequest(a.NextInvokeID(), list, members...)
	if err := a.SendMMS(ctx, req.Bytes()); err != nil {
		return err
	}
	respBytes, err := a.RecvMMS(ctx)
	if err != nil {
		return err
	}
	_, err = mms.ParseDefineNamedVariableListResponse(respBytes)
	return err
}

// GetNamedVariableListAttributes retrieves a named variable list's
// deletable flag and member names.
func (a *Association) GetNamedVariableListAttributes(ctx context.Context, list mms.ObjectName) (mms.GetNamedVariableListAttributesResponse, error) {
	req := mms.NewGetNamedVariableListAttributesRequest(a.NextInvokeID(), list)
	if err := a.SendMMS(ctx, req.Bytes()); err != nil {
		return mms.GetNamedVariableListAttributesResponse{}, err
	}
	respBytes, err := a.RecvMMS(ctx)
	if err != nil {
		return mms.GetNamedVariableListAttributesResponse{}, err
	}
	return mms.ParseGetNamedVariableListAttributesResponse(respBytes)
}

// DeleteNamedVariableList removes named variable lists, either by explicit
// name (when names is non-empty) or by domain scope (domainID, with names
// empty).
func (a *Association) DeleteNamedVariableList(ctx context.Context, domainID string, names []mms.ObjectName) (mms.DeleteNamedVariableListResponse, error) {
	req := mms.NewDeleteNamedVariableListRequest(a.NextInvokeID(), names...)
	req.DomainID = domainID
	if err := a.SendMMS(ctx, req.Bytes()); err != nil {
		return mms.DeleteNamedVariableListResponse{}, err
	}
	respBytes, err := a.RecvMMS(ctx)
	if err != nil {
		return mms.DeleteNamedVariableListResponse{}, err
	}
	return mms.ParseDeleteNamedVariableListResponse(respBytes)
}

// GetVariableAccessAttributes retrieves a named variable's type
// description.
func (a *Association) GetVariableAccessAttributes(ctx context.Context, domainID, itemID string) (mms.GetVariableAccessAttributesResponse, error) {
	req := mms.NewGetVariableAccessAttributesRequest(a.NextInvokeID(), domainID, itemID)
	if err := a.SendMMS(ctx, req.Bytes()); err != nil {
		return mms.GetVariableAccessAttributesResponse{}, err
	}
	respBytes, err := a.RecvMMS(ctx)
	if err != nil {
		return mms.GetVariableAccessAttributesResponse{}, err
	}
	return mms.ParseGetVariableAccessAttributesResponse(respBytes)
}

// Close closes the underlying presentation/session/transport stack.
func (a *Association) Close() error {
	return a.conn.Close()
}

func newAssociationID() uuid.UUID {
	id, err := uuid.NewRandom()
	if err != nil {
		return uuid.Nil
	}
	return id
}
