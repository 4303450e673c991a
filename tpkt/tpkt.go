// Package tpkt implements RFC 1006 TPKT framing: a 4-byte header
// (magic 0x03, reserved 0x00, 16-bit big-endian total length) wrapping an
// octet-stream payload on top of a reliable byte stream such as TCP.
package tpkt

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"time"

	"github.com/iec61850-go/osistack/internal/xerrors"
)

// deadlineInPast is a fixed point far enough in the past that setting it
// as a read deadline on a net.Conn always aborts the current blocking read.
var deadlineInPast = time.Unix(1, 0)

const layer = "tpkt"

// MaxPayload is the largest payload a single TPKT packet can carry:
// 65535 (max 16-bit length) minus the 4-byte header.
const MaxPayload = 65535 - 4

// ErrClosed is returned by Recv when the peer closed the stream cleanly
// between frames (as opposed to mid-frame, which is a protocol error).
var ErrClosed = errors.New("tpkt: connection closed")

// Conn is a TPKT connection over any io.ReadWriteCloser.
type Conn struct {
	rw  io.ReadWriteCloser
	r   *bufio.Reader
	hdr [4]byte
}

// New wraps rw (typically a net.Conn) in TPKT framing.
func New(rw io.ReadWriteCloser) *Conn {
	return &Conn{rw: rw, r: bufio.NewReaderSize(rw, 8192)}
}

// Send emits one TPKT frame carrying payload. len(payload) > MaxPayload is
// a protocol error per spec: frames can never exceed 65535 bytes total.
func (c *Conn) Send(payload []byte) error {
	if len(payload) > MaxPayload {
		return xerrors.NewProtocol(layer, "payload of %d bytes exceeds max %d", len(payload), MaxPayload)
	}
	total := uint16(len(payload) + 4)
	var hdr [4]byte
	hdr[0] = 0x03
	hdr[1] = 0x00
	binary.BigEndian.PutUint16(hdr[2:], total)

	if _, err := c.rw.Write(hdr[:]); err != nil {
		return xerrors.WrapIO(layer, err)
	}
	if len(payload) > 0 {
		if _, err := c.rw.Write(payload); err != nil {
			return xerrors.WrapIO(layer, err)
		}
	}
	return nil
}

// Recv reads one full TPKT frame and returns its payload. It returns
// ErrClosed if EOF arrives before any header byte is read (graceful peer
// close); EOF mid-frame is reported as a protocol error. ctx cancellation
// interrupts a blocking read by racing it against ctx.Done and forcing
// the read to return via SetReadDeadline, the standard idiom for
// context-cancellable net.Conn I/O.
func (c *Conn) Recv(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stop := c.armCancellation(ctx)
	defer stop()

	n, err := io.ReadFull(c.r, c.hdr[:1])
	if err != nil {
		if n == 0 && errors.Is(err, io.EOF) {
			return nil, ErrClosed
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, xerrors.WrapIO(layer, err)
	}
	if c.hdr[0] != 0x03 {
		return nil, xerrors.NewProtocol(layer, "bad TPKT magic 0x%02x, want 0x03", c.hdr[0])
	}

	if _, err := io.ReadFull(c.r, c.hdr[1:4]); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, xerrors.NewProtocol(layer, "eof mid-header: %s", err)
	}
	total := binary.BigEndian.Uint16(c.hdr[2:4])
	if total < 4 {
		return nil, xerrors.NewProtocol(layer, "TPKT total length %d below minimum 4", total)
	}

	payload := make([]byte, int(total)-4)
	if len(payload) > 0 {
		if _, err := io.ReadFull(c.r, payload); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, xerrors.NewProtocol(layer, "eof mid-frame: %s", err)
		}
	}
	return payload, nil
}

// armCancellation forces any in-flight blocking read on rw to unblock
// when ctx is cancelled, by setting an expired read deadline if rw is a
// net.Conn. It returns a stop function that must be deferred.
func (c *Conn) armCancellation(ctx context.Context) (stop func()) {
	nc, ok := c.rw.(net.Conn)
	if !ok {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = nc.SetReadDeadline(deadlineInPast)
		case <-done:
		}
	}()
	return func() { close(done) }
}

// Close closes the underlying stream.
func (c *Conn) Close() error {
	if err := c.rw.Close(); err != nil {
		return xerrors.WrapIO(layer, err)
	}
	return nil
}
