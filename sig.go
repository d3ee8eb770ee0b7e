// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package ra

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"fmt"
	"io"
	"math/big"

	"github.com/intel-secl/go-ra/kex"
)

// SignatureSize is the encoded size of a P-256 ECDSA signature: the r and s
// words as 32-byte little-endian values.
const SignatureSize = 64

// Signature is the long-term ECDSA signature over the two ephemeral public
// points.
type Signature [SignatureSize]byte

// SignPoints signs the concatenation of the responder's and the initiator's
// public points, in that order. The order is fixed by the protocol; swapping
// it breaks interoperability with conforming peers.
func SignPoints(rng io.Reader, key *ecdsa.PrivateKey, gb, ga kex.PublicPoint) (Signature, error) {
	var sig Signature
	if key == nil {
		return sig, fmt.Errorf("no signing key configured")
	}

	digest := pointsDigest(gb, ga)
	r, s, err := ecdsa.Sign(rng, key, digest[:])
	if err != nil {
		return sig, fmt.Errorf("error signing public points: %w", err)
	}

	r.FillBytes(sig[:32])
	s.FillBytes(sig[32:])
	reverseInPlace(sig[:32])
	reverseInPlace(sig[32:])
	return sig, nil
}

// Verify checks the signature over (gb, ga) with the responder's long-term
// public key.
func (sig Signature) Verify(key *ecdsa.PublicKey, gb, ga kex.PublicPoint) bool {
	if key == nil || key.Curve != elliptic.P256() {
		return false
	}

	rb := make([]byte, 32)
	sb := make([]byte, 32)
	copy(rb, sig[:32])
	copy(sb, sig[32:])
	reverseInPlace(rb)
	reverseInPlace(sb)

	digest := pointsDigest(gb, ga)
	return ecdsa.Verify(key, digest[:], new(big.Int).SetBytes(rb), new(big.Int).SetBytes(sb))
}

func pointsDigest(gb, ga kex.PublicPoint) [sha256.Size]byte {
	h := sha256.New()
	h.Write(gb[:])
	h.Write(ga[:])
	var digest [sha256.Size]byte
	copy(digest[:], h.Sum(nil))
	return digest
}

func reverseInPlace(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}
