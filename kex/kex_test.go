// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package kex_test

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/intel-secl/go-ra/kex"
)

func TestSharedSecretAgreement(t *testing.T) {
	a, err := kex.GenerateKeyPair(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	b, err := kex.GenerateKeyPair(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	sab, err := a.SharedSecret(b.Public())
	if err != nil {
		t.Fatal(err)
	}
	sba, err := b.SharedSecret(a.Public())
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(sab[:], sba[:]) {
		t.Fatalf("expected both sides to agree on the shared secret:\n%x\n%x", sab, sba)
	}

	var zero kex.SharedSecret
	if bytes.Equal(sab[:], zero[:]) {
		t.Fatal("expected a nonzero shared secret")
	}
}

func TestInvalidPoint(t *testing.T) {
	a, err := kex.GenerateKeyPair(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	// All-zero encoding is not a representable curve point.
	var zero kex.PublicPoint
	if _, err := a.SharedSecret(zero); !errors.Is(err, kex.ErrInvalidPoint) {
		t.Fatalf("expected ErrInvalidPoint, got %v", err)
	}

	// Corrupt a valid point so it falls off the curve.
	b, err := kex.GenerateKeyPair(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	offCurve := b.Public()
	offCurve[0] ^= 0x01
	if _, err := a.SharedSecret(offCurve); !errors.Is(err, kex.ErrInvalidPoint) {
		t.Fatalf("expected ErrInvalidPoint, got %v", err)
	}
}

func TestDestroyedKeyPair(t *testing.T) {
	a, err := kex.GenerateKeyPair(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	b, err := kex.GenerateKeyPair(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	a.Destroy()
	a.Destroy() // idempotent

	if _, err := a.SharedSecret(b.Public()); err == nil {
		t.Fatal("expected shared secret computation to fail after Destroy")
	}
}

func TestCMACBitFlip(t *testing.T) {
	key := kex.Key128{0x2b, 0x7e, 0x15, 0x16, 0x28, 0xae, 0xd2, 0xa6, 0xab, 0xf7, 0x15, 0x88, 0x09, 0xcf, 0x4f, 0x3c}
	msg := []byte("attestation message prefix")

	tag, err := kex.Sum(key, msg)
	if err != nil {
		t.Fatal(err)
	}
	ok, err := kex.Verify(key, tag, msg)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected tag to verify")
	}

	for i := 0; i < len(msg)*8; i++ {
		flipped := bytes.Clone(msg)
		flipped[i/8] ^= 1 << (i % 8)
		ok, err := kex.Verify(key, tag, flipped)
		if err != nil {
			t.Fatal(err)
		}
		if ok {
			t.Fatalf("expected tag verification to fail with bit %d flipped", i)
		}
	}
}
