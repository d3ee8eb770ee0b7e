// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package kex

import (
	"errors"
	"fmt"
)

// KdfAESCMAC is the only key derivation function id defined by this protocol
// revision. It selects AES-128-CMAC in the two-step extract/expand
// construction below.
const KdfAESCMAC uint16 = 0x0001

// ErrUnsupportedKDF is returned when the KDF id negotiated on the wire is not
// recognized.
var ErrUnsupportedKDF = errors.New("unsupported KDF id")

// SharedSecret is the ECDH shared secret: the X coordinate of the shared
// point, little-endian.
type SharedSecret [32]byte

// Destroy zeroes the secret.
func (s *SharedSecret) Destroy() { clear(s[:]) }

// Key128 is a derived 128-bit symmetric key.
type Key128 [16]byte

// Destroy zeroes the key.
func (k *Key128) Destroy() { clear(k[:]) }

// IsZero reports whether the key is all zero, i.e. destroyed or never derived.
func (k *Key128) IsZero() bool {
	var acc byte
	for _, b := range k {
		acc |= b
	}
	return acc == 0
}

// KeySet holds the four independent session keys derived from one shared
// secret. Each key serves exactly one protocol purpose:
//
//	SMK  MACs over handshake messages (MSG2, MSG3)
//	SK   sealing of the provisioned secret payload
//	MK   MAC over the platform info blob in the attestation result
//	VK   binding of the quote to the handshake transcript
type KeySet struct {
	SMK Key128
	SK  Key128
	MK  Key128
	VK  Key128
}

// Derive derives all four session keys from the shared secret.
//
// Derivation is two CMAC invocations: first the shared secret is folded into
// a derivation key with an all-zero CMAC key, then each session key is the
// CMAC of 0x01 || label || 0x00 || 0x80 || 0x00 under that derivation key.
// The trailing 0x0080 is the output length in bits, little-endian.
func Derive(secret SharedSecret, kdfID uint16) (*KeySet, error) {
	if kdfID != KdfAESCMAC {
		return nil, fmt.Errorf("%w: %#04x", ErrUnsupportedKDF, kdfID)
	}

	var base Key128
	key0, err := Sum(base, secret[:])
	if err != nil {
		return nil, err
	}
	defer clear(key0[:])

	ks := new(KeySet)
	for _, k := range []struct {
		label string
		out   *Key128
	}{
		{"SMK", &ks.SMK},
		{"SK", &ks.SK},
		{"MK", &ks.MK},
		{"VK", &ks.VK},
	} {
		derivation := make([]byte, 0, len(k.label)+4)
		derivation = append(derivation, 0x01)
		derivation = append(derivation, k.label...)
		derivation = append(derivation, 0x00, 0x80, 0x00)

		tag, err := Sum(Key128(key0), derivation)
		if err != nil {
			return nil, err
		}
		*k.out = Key128(tag)
	}
	return ks, nil
}

// Destroy zeroes all four keys. It is safe to call more than once.
func (ks *KeySet) Destroy() {
	ks.SMK.Destroy()
	ks.SK.Destroy()
	ks.MK.Destroy()
	ks.VK.Destroy()
}
