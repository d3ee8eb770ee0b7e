// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

// Package ra implements an EPID-style remote attestation and authenticated
// key exchange protocol between an initiator, whose identity is backed by a
// hardware attestation quote, and a responder acting as the service provider.
//
// The protocol is a four-message exchange (MSG0 through MSG3) followed by an
// attestation result. MSG1 and MSG2 carry the two sides' ephemeral ECDH
// points; from the shared secret both sides derive four independent session
// keys (SMK, SK, MK, VK). MSG2 is signed with the responder's long-term key
// and MACed with SMK; MSG3 carries the initiator's attestation quote, bound
// to the handshake transcript through the quote's report data. After a
// favorable verdict from the external verification service, the responder
// provisions a secret payload sealed with SK.
//
// The package is transport-agnostic: messages are encoded to and from opaque
// byte buffers, and callers move them over any reliable, ordered channel. The
// hardware evidence producer and the quote verification service are
// constructor-injected collaborators, so the full handshake can run against
// in-memory fakes (see the ratest package).
package ra
