// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

// Package kex implements the key agreement and key derivation steps of the
// remote attestation handshake: ephemeral ECDH over P-256 and the CMAC-based
// derivation of the four session keys.
package kex

import (
	"crypto/ecdh"
	"errors"
	"fmt"
	"io"
)

// PointSize is the encoded size of a public curve point: the X and Y
// coordinates as 32-byte little-endian words.
const PointSize = 64

// ErrInvalidPoint is returned when a peer's public point is not on the curve
// or is the identity point.
var ErrInvalidPoint = errors.New("invalid public curve point")

// PublicPoint is the wire representation of a P-256 public point. Both
// coordinate words are little-endian.
type PublicPoint [PointSize]byte

// Bytes returns the point in wire order.
func (p PublicPoint) Bytes() []byte { return p[:] }

// ecdhKey converts the wire point to a crypto/ecdh public key, which rejects
// off-curve and identity points during parsing.
func (p PublicPoint) ecdhKey() (*ecdh.PublicKey, error) {
	// Uncompressed SEC1 encoding with big-endian coordinates.
	sec1 := make([]byte, 1+PointSize)
	sec1[0] = 0x04
	copy(sec1[1:33], reverse(p[:32]))
	copy(sec1[33:], reverse(p[32:]))

	key, err := ecdh.P256().NewPublicKey(sec1)
	if err != nil {
		return nil, ErrInvalidPoint
	}
	return key, nil
}

func pointFromECDH(key *ecdh.PublicKey) PublicPoint {
	sec1 := key.Bytes() // 0x04 || X || Y, big-endian
	var p PublicPoint
	copy(p[:32], reverse(sec1[1:33]))
	copy(p[32:], reverse(sec1[33:]))
	return p
}

func reverse(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}

// KeyPair holds one side's ephemeral key agreement state. The private scalar
// is kept only until Destroy is called.
type KeyPair struct {
	priv   *ecdh.PrivateKey
	scalar []byte
	pub    PublicPoint
}

// GenerateKeyPair creates a new ephemeral P-256 key pair. This function
// generates a new key every time it is called.
func GenerateKeyPair(rng io.Reader) (*KeyPair, error) {
	priv, err := ecdh.P256().GenerateKey(rng)
	if err != nil {
		return nil, fmt.Errorf("error generating ephemeral key: %w", err)
	}
	return &KeyPair{
		priv:   priv,
		scalar: priv.Bytes(),
		pub:    pointFromECDH(priv.PublicKey()),
	}, nil
}

// Public returns the wire encoding of the public point.
func (k *KeyPair) Public() PublicPoint { return k.pub }

// SharedSecret computes the ECDH shared secret with the peer's public point.
// It fails with ErrInvalidPoint if the point does not validate.
func (k *KeyPair) SharedSecret(peer PublicPoint) (SharedSecret, error) {
	if k.priv == nil {
		return SharedSecret{}, errors.New("key pair has been destroyed")
	}
	pub, err := peer.ecdhKey()
	if err != nil {
		return SharedSecret{}, err
	}
	shx, err := k.priv.ECDH(pub)
	if err != nil {
		return SharedSecret{}, ErrInvalidPoint
	}

	// The shared secret is the X coordinate in little-endian order.
	var secret SharedSecret
	copy(secret[:], reverse(shx))
	return secret, nil
}

// Destroy zeroes the private scalar copy and drops the key. It is idempotent.
func (k *KeyPair) Destroy() {
	clear(k.scalar)
	k.priv = nil
}
