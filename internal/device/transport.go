// This file implements the TCP request/reply transport DeviceAdapter runs
// over: a bounded text command and a single text reply line
// per call, with a caller-supplied deadline. Grounded on the teacher's
// HTTP fetcher (internal/dsn/fetcher.go in litescript/ls-horizons), a
// functional-option constructor wrapping one request/response round trip
// with a configurable timeout — adapted here from net/http to a raw TCP
// text socket, since the controllers speak a line protocol rather than
// HTTP.
package device

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/nugent68/ls4-scheduler-sub000/internal/schederr"
)

// Dialer opens the command/reply connection. Production code uses
// *net.Dialer; tests substitute an in-memory fake so no real socket is
// required.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Transport sends one command and reads one reply line over a fresh
// connection per call. The controllers are simple enough that connection
// reuse is not worth the complexity: each call is independent and bounded
// by its own deadline.
type Transport struct {
	Dialer       Dialer
	MaxBufSize   int
	PostCmdSleep time.Duration
}

// NewTransport returns a Transport dialing real TCP sockets.
func NewTransport(maxBufSize int, postCmdSleep time.Duration) *Transport {
	return &Transport{Dialer: &net.Dialer{}, MaxBufSize: maxBufSize, PostCmdSleep: postCmdSleep}
}

// Send issues cmd to address and returns the parsed reply. deadline is
// the full round-trip budget the caller has computed (an expose-mode
// timeout budget, or a fixed safety margin for simple queries). A tiny
// post-command sleep follows every call to keep the remote controller
// from being pounded.
func (t *Transport) Send(ctx context.Context, address, cmd string, deadline time.Duration) (Reply, error) {
	if len(cmd) > t.MaxBufSize {
		return Reply{}, fmt.Errorf("command exceeds MAXBUFSIZE (%d bytes): %q", t.MaxBufSize, cmd)
	}

	callCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	conn, err := t.Dialer.DialContext(callCtx, "tcp", address)
	if err != nil {
		return Reply{}, fmt.Errorf("%w: dial %s: %v", classify(err), address, err)
	}
	defer conn.Close()

	if dl, ok := callCtx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}

	if _, err := conn.Write([]byte(cmd + "\n")); err != nil {
		return Reply{}, fmt.Errorf("%w: write command %q: %v", classify(err), cmd, err)
	}

	reader := bufio.NewReaderSize(conn, t.MaxBufSize)
	lineBytes, readErr := reader.ReadSlice('\n')
	if errors.Is(readErr, bufio.ErrBufferFull) {
		return Reply{}, fmt.Errorf("%w: reply to %q exceeds MAXBUFSIZE (%d bytes)", schederr.ErrDeviceProtocol, cmd, t.MaxBufSize)
	}
	line := string(lineBytes)
	if readErr != nil && line == "" {
		return Reply{}, fmt.Errorf("%w: read reply to %q: %v", classify(readErr), cmd, readErr)
	}

	if t.PostCmdSleep > 0 {
		time.Sleep(t.PostCmdSleep)
	}

	r, err := ParseReply(line)
	if err != nil {
		return Reply{}, fmt.Errorf("%w: reply to %q: %v", schederr.ErrDeviceProtocol, cmd, err)
	}
	return r, nil
}

// classify maps a transport-level failure onto the scheduler's sentinel
// kinds: deadline expiry is ErrDeviceTimeout, everything else is a
// protocol failure for that peer.
func classify(err error) error {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) ||
		(errors.As(err, &ne) && ne.Timeout()) {
		return schederr.ErrDeviceTimeout
	}
	return schederr.ErrDeviceProtocol
}
