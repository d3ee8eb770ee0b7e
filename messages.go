// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package ra

import (
	"crypto/ecdsa"
	"encoding"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/intel-secl/go-ra/kex"
)

// Fixed field sizes. All numeric and point fields are little-endian.
const (
	GroupIDSize       = 4
	SpidSize          = 16
	SecPropertiesSize = 256

	msg0Size       = 8
	msg1Size       = kex.PointSize + GroupIDSize
	msg2HeaderSize = kex.PointSize + SpidSize + 2 + 2 + SignatureSize + kex.TagSize + 4
	msg3HeaderSize = kex.TagSize + kex.PointSize + SecPropertiesSize

	resultHeaderSize = PlatformInfoSize + kex.TagSize + 4 + kex.TagSize
)

// GroupID identifies the attestation group for revocation list lookup.
type GroupID [GroupIDSize]byte

// Spid is the service provider id registered with the verification service.
type Spid [SpidSize]byte

// SecProperties is the platform services security property descriptor
// carried opaquely in MSG3.
type SecProperties [SecPropertiesSize]byte

// Quote sign type values negotiated in MSG2.
const (
	QuoteUnlinkable uint16 = 0
	QuoteLinkable   uint16 = 1
)

// MSG0 status values echoed by the responder.
const (
	Msg0StatusOK       uint32 = 0
	Msg0StatusRejected uint32 = 1
)

// Message is one of the protocol's wire records.
type Message interface {
	Type() MsgType
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

// Decode parses a received message body of the given type. Decoding never
// trusts length fields beyond the buffer received; truncated or oversized
// bodies fail with a FormatError.
func Decode(t MsgType, b []byte) (Message, error) {
	var m Message
	switch t {
	case TypeMsg0:
		m = new(Msg0)
	case TypeMsg1:
		m = new(Msg1)
	case TypeMsg2:
		m = new(Msg2)
	case TypeMsg3:
		m = new(Msg3)
	case TypeResult:
		m = new(AttestationResult)
	case TypeError:
		m = new(ErrorMessage)
	default:
		return nil, &FormatError{Type: t, Reason: "unknown message type"}
	}
	if err := m.UnmarshalBinary(b); err != nil {
		return nil, err
	}
	return m, nil
}

// Msg0 negotiates the extended attestation group. The responder echoes it
// back with a status.
type Msg0 struct {
	ExtGID uint32
	Status uint32
}

// Type implements Message.
func (m *Msg0) Type() MsgType { return TypeMsg0 }

// MarshalBinary implements encoding.BinaryMarshaler.
func (m *Msg0) MarshalBinary() ([]byte, error) {
	b := make([]byte, 0, msg0Size)
	b = binary.LittleEndian.AppendUint32(b, m.ExtGID)
	b = binary.LittleEndian.AppendUint32(b, m.Status)
	return b, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (m *Msg0) UnmarshalBinary(b []byte) error {
	if len(b) != msg0Size {
		return &FormatError{Type: TypeMsg0, Reason: fmt.Sprintf("expected %d bytes, got %d", msg0Size, len(b))}
	}
	m.ExtGID = binary.LittleEndian.Uint32(b)
	m.Status = binary.LittleEndian.Uint32(b[4:])
	return nil
}

// Msg1 carries the initiator's ephemeral public point and its attestation
// group id.
type Msg1 struct {
	GA  kex.PublicPoint
	GID GroupID
}

// Type implements Message.
func (m *Msg1) Type() MsgType { return TypeMsg1 }

// MarshalBinary implements encoding.BinaryMarshaler.
func (m *Msg1) MarshalBinary() ([]byte, error) {
	b := make([]byte, 0, msg1Size)
	b = append(b, m.GA[:]...)
	b = append(b, m.GID[:]...)
	return b, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (m *Msg1) UnmarshalBinary(b []byte) error {
	if len(b) != msg1Size {
		return &FormatError{Type: TypeMsg1, Reason: fmt.Sprintf("expected %d bytes, got %d", msg1Size, len(b))}
	}
	copy(m.GA[:], b)
	copy(m.GID[:], b[kex.PointSize:])
	return nil
}

// Msg2 carries the responder's ephemeral public point, the negotiated KDF
// id, an ECDSA signature over (GB, GA) with the responder's long-term key,
// an SMK-keyed MAC over the message prefix, and (unilateral variant only)
// the signature revocation list for the initiator's group.
type Msg2 struct {
	GB        kex.PublicPoint
	SPID      Spid
	QuoteType uint16
	KDFID     uint16
	SigGbGa   Signature
	MAC       [kex.TagSize]byte
	SigRL     []byte
}

// Type implements Message.
func (m *Msg2) Type() MsgType { return TypeMsg2 }

// MarshalBinary implements encoding.BinaryMarshaler.
func (m *Msg2) MarshalBinary() ([]byte, error) {
	b := make([]byte, 0, msg2HeaderSize+len(m.SigRL))
	b = append(b, m.GB[:]...)
	b = append(b, m.SPID[:]...)
	b = binary.LittleEndian.AppendUint16(b, m.QuoteType)
	b = binary.LittleEndian.AppendUint16(b, m.KDFID)
	b = append(b, m.SigGbGa[:]...)
	b = append(b, m.MAC[:]...)
	b = binary.LittleEndian.AppendUint32(b, uint32(len(m.SigRL)))
	b = append(b, m.SigRL...)
	return b, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (m *Msg2) UnmarshalBinary(b []byte) error {
	if len(b) < msg2HeaderSize {
		return &FormatError{Type: TypeMsg2, Reason: fmt.Sprintf("expected at least %d bytes, got %d", msg2HeaderSize, len(b))}
	}
	copy(m.GB[:], b)
	b = b[kex.PointSize:]
	copy(m.SPID[:], b)
	b = b[SpidSize:]
	m.QuoteType = binary.LittleEndian.Uint16(b)
	m.KDFID = binary.LittleEndian.Uint16(b[2:])
	b = b[4:]
	copy(m.SigGbGa[:], b)
	b = b[SignatureSize:]
	copy(m.MAC[:], b)
	b = b[kex.TagSize:]

	sigRLSize := binary.LittleEndian.Uint32(b)
	b = b[4:]
	if uint64(len(b)) != uint64(sigRLSize) {
		return &FormatError{Type: TypeMsg2, Reason: fmt.Sprintf("revocation list length %d does not match remaining %d bytes", sigRLSize, len(b))}
	}
	if sigRLSize > 0 {
		m.SigRL = append([]byte(nil), b...)
	} else {
		m.SigRL = nil
	}
	return nil
}

// macPrefix returns the byte ranges of the message covered by the SMK MAC.
// The boundary is a protocol-variant parameter: the unilateral variant binds
// the SPID, the mutual variant does not. The revocation list and its length
// never participate.
func (m *Msg2) macPrefix(v Variant) [][]byte {
	var qt, kdf [2]byte
	binary.LittleEndian.PutUint16(qt[:], m.QuoteType)
	binary.LittleEndian.PutUint16(kdf[:], m.KDFID)
	if v == Mutual {
		return [][]byte{m.GB[:], qt[:], kdf[:], m.SigGbGa[:]}
	}
	return [][]byte{m.GB[:], m.SPID[:], qt[:], kdf[:], m.SigGbGa[:]}
}

// GenSignAndMAC signs (GB, GA) with the responder's long-term key and MACs
// the message prefix with SMK.
func (m *Msg2) GenSignAndMAC(rng io.Reader, ga kex.PublicPoint, key *ecdsa.PrivateKey, smk kex.Key128, v Variant) error {
	sig, err := SignPoints(rng, key, m.GB, ga)
	if err != nil {
		return err
	}
	m.SigGbGa = sig

	mac, err := kex.Sum(smk, m.macPrefix(v)...)
	if err != nil {
		return err
	}
	m.MAC = mac
	return nil
}

// VerifySignAndMAC checks the long-term signature over (GB, GA) and the SMK
// MAC over the message prefix. Either mismatch is an IntegrityError.
func (m *Msg2) VerifySignAndMAC(ga kex.PublicPoint, key *ecdsa.PublicKey, smk kex.Key128, v Variant) error {
	if !m.SigGbGa.Verify(key, m.GB, ga) {
		return &IntegrityError{Check: "msg2 signature over (gb, ga)"}
	}
	ok, err := kex.Verify(smk, m.MAC, m.macPrefix(v)...)
	if err != nil {
		return err
	}
	if !ok {
		return &IntegrityError{Check: "msg2 mac"}
	}
	return nil
}

// Msg3 carries the initiator's public point again for binding, the security
// property descriptor, and the attestation quote as a trailing
// variable-length field.
type Msg3 struct {
	MAC      [kex.TagSize]byte
	GA       kex.PublicPoint
	SecProp  SecProperties
	RawQuote []byte
}

// Type implements Message.
func (m *Msg3) Type() MsgType { return TypeMsg3 }

// MarshalBinary implements encoding.BinaryMarshaler.
func (m *Msg3) MarshalBinary() ([]byte, error) {
	if err := checkQuoteLength(m.RawQuote); err != nil {
		return nil, err
	}
	b := make([]byte, 0, msg3HeaderSize+len(m.RawQuote))
	b = append(b, m.MAC[:]...)
	b = append(b, m.GA[:]...)
	b = append(b, m.SecProp[:]...)
	b = append(b, m.RawQuote...)
	return b, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (m *Msg3) UnmarshalBinary(b []byte) error {
	if len(b) < msg3HeaderSize+QuoteMinSize {
		return &FormatError{Type: TypeMsg3, Reason: fmt.Sprintf("expected at least %d bytes, got %d", msg3HeaderSize+QuoteMinSize, len(b))}
	}
	copy(m.MAC[:], b)
	b = b[kex.TagSize:]
	copy(m.GA[:], b)
	b = b[kex.PointSize:]
	copy(m.SecProp[:], b)
	b = b[SecPropertiesSize:]
	// The quote is the trailing field, so its embedded signature length must
	// account for every remaining byte. A strict prefix fails here rather
	// than decoding into a silently truncated quote.
	if err := checkQuoteLength(b); err != nil {
		return err
	}
	m.RawQuote = append([]byte(nil), b...)
	return nil
}

// GenMAC computes the SMK MAC over GA, the security properties, and the
// quote.
func (m *Msg3) GenMAC(smk kex.Key128) error {
	mac, err := kex.Sum(smk, m.GA[:], m.SecProp[:], m.RawQuote)
	if err != nil {
		return err
	}
	m.MAC = mac
	return nil
}

// VerifyMAC checks the SMK MAC. A mismatch is an IntegrityError.
func (m *Msg3) VerifyMAC(smk kex.Key128) error {
	ok, err := kex.Verify(smk, m.MAC, m.GA[:], m.SecProp[:], m.RawQuote)
	if err != nil {
		return err
	}
	if !ok {
		return &IntegrityError{Check: "msg3 mac"}
	}
	return nil
}

// AttestationResult is the final protocol message: the platform info blob
// MACed with MK, and the secret payload sealed with SK.
type AttestationResult struct {
	PlatformInfo PlatformInfoBlob
	MAC          [kex.TagSize]byte
	PayloadTag   [kex.TagSize]byte
	Payload      []byte
}

// Type implements Message.
func (m *AttestationResult) Type() MsgType { return TypeResult }

// MarshalBinary implements encoding.BinaryMarshaler.
func (m *AttestationResult) MarshalBinary() ([]byte, error) {
	b := make([]byte, 0, resultHeaderSize+len(m.Payload))
	pib := m.PlatformInfo.encode()
	b = append(b, pib[:]...)
	b = append(b, m.MAC[:]...)
	b = binary.LittleEndian.AppendUint32(b, uint32(len(m.Payload)))
	b = append(b, m.PayloadTag[:]...)
	b = append(b, m.Payload...)
	return b, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (m *AttestationResult) UnmarshalBinary(b []byte) error {
	if len(b) < resultHeaderSize {
		return &FormatError{Type: TypeResult, Reason: fmt.Sprintf("expected at least %d bytes, got %d", resultHeaderSize, len(b))}
	}
	m.PlatformInfo.decode(b)
	b = b[PlatformInfoSize:]
	copy(m.MAC[:], b)
	b = b[kex.TagSize:]
	payloadSize := binary.LittleEndian.Uint32(b)
	b = b[4:]
	copy(m.PayloadTag[:], b)
	b = b[kex.TagSize:]
	if uint64(len(b)) != uint64(payloadSize) {
		return &FormatError{Type: TypeResult, Reason: fmt.Sprintf("payload length %d does not match remaining %d bytes", payloadSize, len(b))}
	}
	if payloadSize > 0 {
		m.Payload = append([]byte(nil), b...)
	} else {
		m.Payload = nil
	}
	return nil
}

// GenMAC computes the MK MAC over the platform info blob.
func (m *AttestationResult) GenMAC(mk kex.Key128) error {
	pib := m.PlatformInfo.encode()
	mac, err := kex.Sum(mk, pib[:])
	if err != nil {
		return err
	}
	m.MAC = mac
	return nil
}

// VerifyMAC checks the MK MAC over the platform info blob.
func (m *AttestationResult) VerifyMAC(mk kex.Key128) error {
	pib := m.PlatformInfo.encode()
	ok, err := kex.Verify(mk, m.MAC, pib[:])
	if err != nil {
		return err
	}
	if !ok {
		return &IntegrityError{Check: "attestation result mac"}
	}
	return nil
}

// ErrorMessage is sent by the responder in place of a response when the
// session has failed. The detail string never contains key material or
// specific security conditions.
type ErrorMessage struct {
	Code     uint16
	PrevType MsgType
	Detail   string
}

// Type implements Message.
func (m *ErrorMessage) Type() MsgType { return TypeError }

// Error implements the standard error interface.
func (m *ErrorMessage) Error() string {
	return fmt.Sprintf("peer error [code=%#04x,prevMsgType=%s] %s", m.Code, m.PrevType, m.Detail)
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (m *ErrorMessage) MarshalBinary() ([]byte, error) {
	b := make([]byte, 0, 3+len(m.Detail))
	b = binary.LittleEndian.AppendUint16(b, m.Code)
	b = append(b, byte(m.PrevType))
	b = append(b, m.Detail...)
	return b, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (m *ErrorMessage) UnmarshalBinary(b []byte) error {
	if len(b) < 3 {
		return &FormatError{Type: TypeError, Reason: fmt.Sprintf("expected at least 3 bytes, got %d", len(b))}
	}
	m.Code = binary.LittleEndian.Uint16(b)
	m.PrevType = MsgType(b[2])
	m.Detail = string(b[3:])
	return nil
}
