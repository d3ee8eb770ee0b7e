// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package ra

// MsgType tags a protocol message on the wire.
type MsgType uint8

// Message type numbers. 0xFF is reserved for the error message, which may be
// sent by the responder in place of any response.
const (
	TypeMsg0   MsgType = 0x00
	TypeMsg1   MsgType = 0x01
	TypeMsg2   MsgType = 0x02
	TypeMsg3   MsgType = 0x03
	TypeResult MsgType = 0x04
	TypeError  MsgType = 0xFF
)

func (t MsgType) String() string {
	switch t {
	case TypeMsg0:
		return "msg0"
	case TypeMsg1:
		return "msg1"
	case TypeMsg2:
		return "msg2"
	case TypeMsg3:
		return "msg3"
	case TypeResult:
		return "attestation result"
	case TypeError:
		return "error"
	default:
		return "unknown"
	}
}

// Role distinguishes the two sides of a handshake.
type Role int

const (
	RoleInitiator Role = iota
	RoleResponder
)

func (r Role) String() string {
	switch r {
	case RoleInitiator:
		return "initiator"
	case RoleResponder:
		return "responder"
	default:
		return "unknown"
	}
}

// Variant selects the attestation flavor. It changes which fields of MSG2
// participate in the SMK MAC and whether a revocation list is carried.
type Variant int

const (
	// Unilateral attestation: only the initiator attests. MSG2 carries the
	// responder's SPID and the signature revocation list, both bound by the
	// MAC prefix.
	Unilateral Variant = iota

	// Mutual attestation: MSG2 carries no revocation list and no SPID in the
	// MAC prefix.
	Mutual
)

func (v Variant) String() string {
	switch v {
	case Unilateral:
		return "unilateral"
	case Mutual:
		return "mutual"
	default:
		return "unknown"
	}
}

// State is the lifecycle state of a session.
type State int

const (
	Created State = iota
	KeyAgreed
	QuoteSubmitted
	Verified
	SecretExchanged
	Failed
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case KeyAgreed:
		return "key agreed"
	case QuoteSubmitted:
		return "quote submitted"
	case Verified:
		return "verified"
	case SecretExchanged:
		return "secret exchanged"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}
