// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package ra_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/intel-secl/go-ra"
	"github.com/intel-secl/go-ra/kex"
)

func TestSealOpen(t *testing.T) {
	var sk kex.Key128
	copy(sk[:], filled(16, 0x42))
	secret := []byte("attestation payload secret")

	ciphertext, tag, err := ra.Seal(sk, secret)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(ciphertext, secret) {
		t.Fatal("ciphertext contains plaintext")
	}

	got, err := ra.Open(sk, ciphertext, tag)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, secret) {
		t.Errorf("opened %q, want %q", got, secret)
	}
}

func TestSealOpenEmpty(t *testing.T) {
	var sk kex.Key128
	ciphertext, tag, err := ra.Seal(sk, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(ciphertext) != 0 {
		t.Fatalf("empty payload sealed to %d bytes", len(ciphertext))
	}
	if _, err := ra.Open(sk, ciphertext, tag); err != nil {
		t.Fatal(err)
	}
}

func TestOpenTamper(t *testing.T) {
	var sk kex.Key128
	copy(sk[:], filled(16, 0x42))
	ciphertext, tag, err := ra.Seal(sk, []byte("attestation payload secret"))
	if err != nil {
		t.Fatal(err)
	}

	for i := range ciphertext {
		tampered := append([]byte(nil), ciphertext...)
		tampered[i] ^= 0x01
		if _, err := ra.Open(sk, tampered, tag); !errors.Is(err, ra.ErrMacMismatch) {
			t.Fatalf("ciphertext bit flip at %d: got %v, want ErrMacMismatch", i, err)
		}
	}
	for i := range tag {
		tamperedTag := tag
		tamperedTag[i] ^= 0x01
		if _, err := ra.Open(sk, ciphertext, tamperedTag); !errors.Is(err, ra.ErrMacMismatch) {
			t.Fatalf("tag bit flip at %d: got %v, want ErrMacMismatch", i, err)
		}
	}

	var wrongKey kex.Key128
	copy(wrongKey[:], filled(16, 0x43))
	if _, err := ra.Open(wrongKey, ciphertext, tag); !errors.Is(err, ra.ErrMacMismatch) {
		t.Fatalf("wrong key: got %v, want ErrMacMismatch", err)
	}
}
