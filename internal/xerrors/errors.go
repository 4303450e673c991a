// Package xerrors defines the four error kinds shared by every layer of
// the stack: Protocol, ProtocolStack, IO and Internal.
package xerrors

import "fmt"

// Protocol reports wire bytes that violate a layer's grammar or negotiated
// capability: unsupported version, missing required field, impossible class
// downgrade, an SPDU arriving in the wrong state. Always terminal.
type Protocol struct {
	Layer   string
	Message string
}

func (e *Protocol) Error() string {
	return fmt.Sprintf("%s: protocol error: %s", e.Layer, e.Message)
}

// NewProtocol builds a Protocol error for the named layer.
func NewProtocol(layer, format string, args ...any) *Protocol {
	return &Protocol{Layer: layer, Message: fmt.Sprintf(format, args...)}
}

// ProtocolStack wraps an error surfaced by the layer below; upper layers
// never recover from it, only forward it.
type ProtocolStack struct {
	Layer string
	Inner error
}

func (e *ProtocolStack) Error() string {
	return fmt.Sprintf("%s: lower layer error: %s", e.Layer, e.Inner)
}

func (e *ProtocolStack) Unwrap() error { return e.Inner }

// WrapStack wraps inner as a ProtocolStack error attributed to layer. If
// inner is nil, WrapStack returns nil.
func WrapStack(layer string, inner error) error {
	if inner == nil {
		return nil
	}
	return &ProtocolStack{Layer: layer, Inner: inner}
}

// IO reports a transport-level failure (socket read/write/close).
type IO struct {
	Layer string
	Inner error
}

func (e *IO) Error() string {
	return fmt.Sprintf("%s: io error: %s", e.Layer, e.Inner)
}

func (e *IO) Unwrap() error { return e.Inner }

// WrapIO wraps inner as an IO error attributed to layer. If inner is nil,
// WrapIO returns nil.
func WrapIO(layer string, inner error) error {
	if inner == nil {
		return nil
	}
	return &IO{Layer: layer, Inner: inner}
}

// Internal indicates a precondition violation that means a bug in this
// module, never a peer's fault. Callers should never catch it to recover.
type Internal struct {
	Layer   string
	Message string
}

func (e *Internal) Error() string {
	return fmt.Sprintf("%s: internal error: %s", e.Layer, e.Message)
}

// NewInternal builds an Internal error for the named layer.
func NewInternal(layer, format string, args ...any) *Internal {
	return &Internal{Layer: layer, Message: fmt.Sprintf(format, args...)}
}
