package router

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"syscall"
)

// ErrNoCandidates is returned when a clearnet request finds no ranked
// outproxy to route through.
var ErrNoCandidates = errors.New("no outproxy candidates available")

// ProtocolError marks a terminal failure: the proxy was reachable but the
// exchange itself was broken, so trying other proxies cannot help.
type ProtocolError struct {
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %v", e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// ExhaustedError reports that every ranked candidate failed with a
// connectivity error.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all %d outproxy candidates failed, last error: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// isConnectivityError decides whether an outbound failure is worth retrying
// on the next candidate. Structured error kinds are checked first; message
// inspection is a last resort for error sources that expose no kind, such as
// SOCKS handshake failures surfaced as plain strings.
func isConnectivityError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, os.ErrDeadlineExceeded) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"connection refused",
		"connection reset",
		"no such host",
		"timeout",
		"timed out",
		"socks",
		"proxyconnect",
		"unreachable",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
