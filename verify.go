// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package ra

import "context"

// Verdict is the structured outcome of quote verification.
type Verdict int

const (
	VerdictUnknown Verdict = iota
	VerdictOK
	VerdictSignatureInvalid
	VerdictGroupRevoked
	VerdictSignatureRevoked
	VerdictKeyRevoked
	VerdictSigRLVersionMismatch
	VerdictGroupOutOfDate
	VerdictConfigurationNeeded
)

func (v Verdict) String() string {
	switch v {
	case VerdictOK:
		return "ok"
	case VerdictSignatureInvalid:
		return "signature invalid"
	case VerdictGroupRevoked:
		return "group revoked"
	case VerdictSignatureRevoked:
		return "signature revoked"
	case VerdictKeyRevoked:
		return "key revoked"
	case VerdictSigRLVersionMismatch:
		return "sigrl version mismatch"
	case VerdictGroupOutOfDate:
		return "group out of date"
	case VerdictConfigurationNeeded:
		return "configuration needed"
	default:
		return "unknown"
	}
}

// AcceptPolicy decides whether a definitive verdict permits secret
// provisioning.
type AcceptPolicy func(Verdict) bool

// DefaultAcceptPolicy accepts a healthy platform as well as one that is
// merely out of date or needing configuration, matching the platform info
// gating flags.
func DefaultAcceptPolicy(v Verdict) bool {
	switch v {
	case VerdictOK, VerdictGroupOutOfDate, VerdictConfigurationNeeded:
		return true
	default:
		return false
	}
}

// QuoteVerifier is the external verification collaborator. Implementations
// return ErrVerificationUnavailable (possibly wrapped) for transient
// transport failures so callers can retry; any returned Verdict other than
// VerdictUnknown is definitive and must not be retried.
type QuoteVerifier interface {
	// SigRL fetches the signature revocation list for an attestation group.
	// Implementations cache it per group id for the process lifetime.
	SigRL(ctx context.Context, gid GroupID) ([]byte, error)

	// Verify submits a quote and optional manifest, returning the verdict
	// and the platform info blob describing the platform's status.
	Verify(ctx context.Context, quote, manifest []byte) (Verdict, *PlatformInfoBlob, error)
}

// EvidenceProducer is the hardware sandbox collaborator that produces
// attestation evidence. A transient busy condition is reported as
// ErrDeviceBusy (possibly wrapped) and is retried by the session.
type EvidenceProducer interface {
	// GroupInfo returns the extended group id announced in MSG0 and the
	// attestation group id announced in MSG1.
	GroupInfo(ctx context.Context) (extGID uint32, gid GroupID, err error)

	// Report produces an attestation report over the given report data.
	Report(ctx context.Context, reportData [ReportDataSize]byte) ([]byte, error)

	// Quote turns a report into a vendor-signed quote, incorporating the
	// revocation list delivered in MSG2.
	Quote(ctx context.Context, report []byte, spid Spid, quoteType uint16, sigRL []byte, nonce [16]byte) ([]byte, error)
}
