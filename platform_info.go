// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package ra

import "encoding/binary"

// PlatformInfoSize is the encoded size of a platform info blob.
const PlatformInfoSize = 104

// Platform info status flags. GroupStatus and TCBEvaluationStatus are the
// two flags gating whether the provisioned secret may be trusted; the other
// fields are advisory.
const (
	// GroupStatus bits
	PIGroupRevoked        uint32 = 1 << 0
	PIGroupRekeyAvailable uint32 = 1 << 1

	// TCBEvaluationStatus bits
	PITCBOutOfDate uint32 = 1 << 0
	PITCBRejected  uint32 = 1 << 1
)

// PlatformInfoBlob describes the group, SVN, and TCB revocation and
// evaluation status of the attested platform. It is carried in the
// attestation result and bound by the MK MAC. The protocol treats it as
// opaque except for the two gating status flags.
type PlatformInfoBlob struct {
	GroupStatus             uint32
	TCBEvaluationStatus     uint32
	PsEvaluationStatus      uint32
	LatestEquivalentTCBPSVN [18]byte
	LatestPsSVN             [2]byte
	LatestPsdaSVN           [4]byte
	PerformanceRekeyGID     [4]byte
	Signature               Signature
}

// Trusted reports whether the two gating status flags permit the secret
// payload to be trusted: the group must not be revoked and the TCB must not
// be rejected outright. An out-of-date TCB is accepted by policy.
func (p *PlatformInfoBlob) Trusted() bool {
	return p.GroupStatus&PIGroupRevoked == 0 && p.TCBEvaluationStatus&PITCBRejected == 0
}

func (p *PlatformInfoBlob) encode() [PlatformInfoSize]byte {
	var b [PlatformInfoSize]byte
	binary.LittleEndian.PutUint32(b[0:], p.GroupStatus)
	binary.LittleEndian.PutUint32(b[4:], p.TCBEvaluationStatus)
	binary.LittleEndian.PutUint32(b[8:], p.PsEvaluationStatus)
	copy(b[12:], p.LatestEquivalentTCBPSVN[:])
	copy(b[30:], p.LatestPsSVN[:])
	copy(b[32:], p.LatestPsdaSVN[:])
	copy(b[36:], p.PerformanceRekeyGID[:])
	copy(b[40:], p.Signature[:])
	return b
}

// decode requires b to hold at least PlatformInfoSize bytes; callers check.
func (p *PlatformInfoBlob) decode(b []byte) {
	p.GroupStatus = binary.LittleEndian.Uint32(b[0:])
	p.TCBEvaluationStatus = binary.LittleEndian.Uint32(b[4:])
	p.PsEvaluationStatus = binary.LittleEndian.Uint32(b[8:])
	copy(p.LatestEquivalentTCBPSVN[:], b[12:])
	copy(p.LatestPsSVN[:], b[30:])
	copy(p.LatestPsdaSVN[:], b[32:])
	copy(p.PerformanceRekeyGID[:], b[36:])
	copy(p.Signature[:], b[40:])
}

// Encode returns the wire encoding of the blob.
func (p *PlatformInfoBlob) Encode() [PlatformInfoSize]byte { return p.encode() }

// DecodePlatformInfo parses an encoded platform info blob, e.g. the one
// returned by the verification service.
func DecodePlatformInfo(b []byte) (*PlatformInfoBlob, error) {
	if len(b) != PlatformInfoSize {
		return nil, &FormatError{Type: TypeResult, Reason: "platform info blob has wrong size"}
	}
	p := new(PlatformInfoBlob)
	p.decode(b)
	return p, nil
}
