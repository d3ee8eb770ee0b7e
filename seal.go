// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package ra

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"github.com/intel-secl/go-ra/kex"
)

// sealIV is the protocol-mandated AES-GCM nonce for the secret payload. It
// is not attacker-controlled, and each (SK, IV) pair seals at most one
// payload per session lifetime.
var sealIV [12]byte

// Seal encrypts the secret payload with AES-128-GCM under SK, returning the
// ciphertext and the authentication tag separately as they are carried in
// distinct wire fields.
func Seal(sk kex.Key128, plaintext []byte) (ciphertext []byte, tag [kex.TagSize]byte, err error) {
	aead, err := newPayloadAEAD(sk)
	if err != nil {
		return nil, tag, err
	}

	sealed := aead.Seal(nil, sealIV[:], plaintext, nil)
	ciphertext = sealed[:len(sealed)-aead.Overhead()]
	copy(tag[:], sealed[len(sealed)-aead.Overhead():])
	return ciphertext, tag, nil
}

// Open authenticates and decrypts a sealed payload. On tag mismatch it
// returns ErrMacMismatch and no plaintext.
func Open(sk kex.Key128, ciphertext []byte, tag [kex.TagSize]byte) ([]byte, error) {
	aead, err := newPayloadAEAD(sk)
	if err != nil {
		return nil, err
	}

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag[:]...)

	plaintext, err := aead.Open(nil, sealIV[:], sealed, nil)
	if err != nil {
		return nil, ErrMacMismatch
	}
	return plaintext, nil
}

func newPayloadAEAD(sk kex.Key128) (cipher.AEAD, error) {
	block, err := aes.NewCipher(sk[:])
	if err != nil {
		return nil, fmt.Errorf("error initializing AES: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("error initializing GCM: %w", err)
	}
	return aead, nil
}
