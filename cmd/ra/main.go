// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

// ra runs the remote attestation handshake as a command line tool: a
// responder service over HTTP and an initiator driving a handshake against
// one.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
