// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package kex

import (
	"crypto/aes"
	"crypto/subtle"
	"fmt"

	"github.com/aead/cmac"
)

// TagSize is the size of an AES-128-CMAC tag.
const TagSize = 16

// Sum computes the AES-128-CMAC tag over the concatenation of chunks.
func Sum(key Key128, chunks ...[]byte) ([TagSize]byte, error) {
	var tag [TagSize]byte

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return tag, fmt.Errorf("error initializing AES: %w", err)
	}
	mac, err := cmac.New(block)
	if err != nil {
		return tag, fmt.Errorf("error initializing CMAC: %w", err)
	}
	for _, chunk := range chunks {
		_, _ = mac.Write(chunk)
	}
	copy(tag[:], mac.Sum(nil))
	return tag, nil
}

// Verify recomputes the CMAC tag over chunks and compares it to tag in
// constant time.
func Verify(key Key128, tag [TagSize]byte, chunks ...[]byte) (bool, error) {
	expect, err := Sum(key, chunks...)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(expect[:], tag[:]) == 1, nil
}
