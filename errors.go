// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package ra

import (
	"errors"
	"fmt"

	"github.com/intel-secl/go-ra/kex"
)

// Sentinel errors making up the protocol failure taxonomy. Typed errors
// below wrap these so callers can match with errors.Is while still receiving
// detail.
var (
	// ErrFormat indicates a malformed or truncated wire message. Always
	// fatal to that message.
	ErrFormat = errors.New("malformed message")

	// ErrInvalidPoint indicates a peer DH point that is off-curve or the
	// identity point. Fatal.
	ErrInvalidPoint = kex.ErrInvalidPoint

	// ErrUnsupportedKDF indicates an unrecognized KDF id on the wire. Fatal.
	ErrUnsupportedKDF = kex.ErrUnsupportedKDF

	// ErrIntegrity indicates a MAC, signature, or quote-binding mismatch.
	// Fatal and security-significant.
	ErrIntegrity = errors.New("integrity check failed")

	// ErrQuoteRejected indicates a definitive unfavorable attestation
	// verdict. Fatal, never retried.
	ErrQuoteRejected = errors.New("attestation quote rejected")

	// ErrDeviceBusy indicates the local key exchange primitive reported a
	// transient busy condition. Retried per the busy policy, fatal after the
	// retry budget is exhausted.
	ErrDeviceBusy = errors.New("attestation device busy")

	// ErrVerificationUnavailable indicates the external verification service
	// could not be reached. Retried per the verify policy, fatal after the
	// retry budget is exhausted.
	ErrVerificationUnavailable = errors.New("verification service unavailable")

	// ErrMacMismatch indicates the sealed secret payload failed
	// authentication. Fatal; no plaintext is released.
	ErrMacMismatch = errors.New("sealed payload authentication failed")

	// ErrSessionClosed is returned by operations racing with Close.
	ErrSessionClosed = errors.New("session closed")

	// ErrInvalidState is returned when a message arrives in a session state
	// that does not expect it.
	ErrInvalidState = errors.New("message not valid in current session state")
)

// FormatError describes a wire decoding failure.
type FormatError struct {
	Type   MsgType
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrFormat, e.Type, e.Reason)
}

// Unwrap allows errors.Is(err, ErrFormat).
func (e *FormatError) Unwrap() error { return ErrFormat }

// IntegrityError describes which integrity check failed. The check name is
// safe to log; it never contains key material.
type IntegrityError struct {
	Check string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("%s: %s", ErrIntegrity, e.Check)
}

// Unwrap allows errors.Is(err, ErrIntegrity).
func (e *IntegrityError) Unwrap() error { return ErrIntegrity }

// QuoteRejectedError carries the definitive verdict that failed the
// attestation check.
type QuoteRejectedError struct {
	Verdict Verdict
}

func (e *QuoteRejectedError) Error() string {
	return fmt.Sprintf("%s: verdict %s", ErrQuoteRejected, e.Verdict)
}

// Unwrap allows errors.Is(err, ErrQuoteRejected).
func (e *QuoteRejectedError) Unwrap() error { return ErrQuoteRejected }

// errorCode maps a session failure to the wire error message code.
func errorCode(err error) uint16 {
	switch {
	case errors.Is(err, ErrFormat):
		return 0x0001
	case errors.Is(err, ErrInvalidPoint):
		return 0x0002
	case errors.Is(err, ErrUnsupportedKDF):
		return 0x0003
	case errors.Is(err, ErrIntegrity):
		return 0x0004
	case errors.Is(err, ErrQuoteRejected):
		return 0x0005
	case errors.Is(err, ErrDeviceBusy):
		return 0x0006
	case errors.Is(err, ErrVerificationUnavailable):
		return 0x0007
	case errors.Is(err, ErrMacMismatch):
		return 0x0008
	case errors.Is(err, ErrInvalidState):
		return 0x0009
	default:
		return 0x00ff
	}
}
