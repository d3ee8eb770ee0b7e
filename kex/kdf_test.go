// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package kex_test

import (
	"crypto/rand"
	"errors"
	"reflect"
	"testing"

	"github.com/intel-secl/go-ra/kex"
)

func TestDeriveDeterministic(t *testing.T) {
	var secret kex.SharedSecret
	if _, err := rand.Read(secret[:]); err != nil {
		t.Fatal(err)
	}

	ks1, err := kex.Derive(secret, kex.KdfAESCMAC)
	if err != nil {
		t.Fatal(err)
	}
	ks2, err := kex.Derive(secret, kex.KdfAESCMAC)
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(ks1, ks2) {
		t.Fatal("expected identical key sets for identical derivation inputs")
	}
}

func TestDeriveKeyIndependence(t *testing.T) {
	var secret kex.SharedSecret
	if _, err := rand.Read(secret[:]); err != nil {
		t.Fatal(err)
	}

	ks, err := kex.Derive(secret, kex.KdfAESCMAC)
	if err != nil {
		t.Fatal(err)
	}

	keys := map[string]kex.Key128{
		"SMK": ks.SMK, "SK": ks.SK, "MK": ks.MK, "VK": ks.VK,
	}
	for n1, k1 := range keys {
		if k1.IsZero() {
			t.Errorf("%s is all-zero", n1)
		}
		for n2, k2 := range keys {
			if n1 != n2 && k1 == k2 {
				t.Errorf("%s and %s are equal", n1, n2)
			}
		}
	}

	// A different shared secret must yield an all-distinct key set.
	var other kex.SharedSecret
	if _, err := rand.Read(other[:]); err != nil {
		t.Fatal(err)
	}
	ks2, err := kex.Derive(other, kex.KdfAESCMAC)
	if err != nil {
		t.Fatal(err)
	}
	for n, k := range map[string]kex.Key128{
		"SMK": ks2.SMK, "SK": ks2.SK, "MK": ks2.MK, "VK": ks2.VK,
	} {
		for n1, k1 := range keys {
			if k == k1 {
				t.Errorf("key %s of second derivation equals %s of first", n, n1)
			}
		}
	}
}

func TestDeriveUnsupportedKDF(t *testing.T) {
	var secret kex.SharedSecret
	if _, err := kex.Derive(secret, 0x0002); !errors.Is(err, kex.ErrUnsupportedKDF) {
		t.Fatalf("expected ErrUnsupportedKDF, got %v", err)
	}
}

func TestKeySetDestroy(t *testing.T) {
	var secret kex.SharedSecret
	if _, err := rand.Read(secret[:]); err != nil {
		t.Fatal(err)
	}
	ks, err := kex.Derive(secret, kex.KdfAESCMAC)
	if err != nil {
		t.Fatal(err)
	}

	ks.Destroy()
	ks.Destroy() // idempotent

	for n, k := range map[string]kex.Key128{
		"SMK": ks.SMK, "SK": ks.SK, "MK": ks.MK, "VK": ks.VK,
	} {
		if !k.IsZero() {
			t.Errorf("%s not zeroed after Destroy", n)
		}
	}
}
