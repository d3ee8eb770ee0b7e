// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package ra

import (
	"encoding/binary"
	"fmt"
)

// Quote layout sizes. The quote is an opaque vendor-signed structure; the
// protocol parses only the header fields it checks and the report data used
// for transcript binding. The overall size is header + report body + a
// length-prefixed signature, never a hard-coded total.
const (
	quoteHeaderSize = 48
	reportBodySize  = 384

	// reportDataOffset is the offset of the 64-byte report data field within
	// the report body.
	reportDataOffset = 320

	// ReportDataSize is the size of the report data field. The protocol uses
	// the first 32 bytes for the transcript hash.
	ReportDataSize = 64

	// QuoteMinSize is the smallest well-formed quote: header, report body,
	// and an empty length-prefixed signature.
	QuoteMinSize = quoteHeaderSize + reportBodySize + 4
)

// Quote is the parsed view of an attestation quote. Signature verification
// is the verification service's job; the handshake checks only the group id
// and the report data binding.
type Quote struct {
	Version    uint16
	SignType   uint16
	GID        GroupID
	QESVN      uint16
	PCESVN     uint16
	XEID       uint32
	Basename   [32]byte
	ReportBody [reportBodySize]byte
	Signature  []byte
}

// checkQuoteLength validates the framing of a raw quote: the minimum size
// and the signature length field matching the remaining bytes exactly. Any
// strict prefix of a well-formed quote fails here.
func checkQuoteLength(b []byte) error {
	if len(b) < QuoteMinSize {
		return &FormatError{Type: TypeMsg3, Reason: fmt.Sprintf("quote: expected at least %d bytes, got %d", QuoteMinSize, len(b))}
	}
	sigLen := binary.LittleEndian.Uint32(b[quoteHeaderSize+reportBodySize:])
	if uint64(len(b)-QuoteMinSize) != uint64(sigLen) {
		return &FormatError{Type: TypeMsg3, Reason: fmt.Sprintf("quote: signature length %d does not match remaining %d bytes", sigLen, len(b)-QuoteMinSize)}
	}
	return nil
}

// ParseQuote parses the fixed quote layout, failing closed on truncation or
// a signature length that does not match the remaining bytes.
func ParseQuote(b []byte) (*Quote, error) {
	if err := checkQuoteLength(b); err != nil {
		return nil, err
	}

	q := new(Quote)
	q.Version = binary.LittleEndian.Uint16(b)
	q.SignType = binary.LittleEndian.Uint16(b[2:])
	copy(q.GID[:], b[4:])
	q.QESVN = binary.LittleEndian.Uint16(b[8:])
	q.PCESVN = binary.LittleEndian.Uint16(b[10:])
	q.XEID = binary.LittleEndian.Uint32(b[12:])
	copy(q.Basename[:], b[16:])
	copy(q.ReportBody[:], b[quoteHeaderSize:])

	b = b[quoteHeaderSize+reportBodySize+4:]
	if len(b) > 0 {
		q.Signature = append([]byte(nil), b...)
	}
	return q, nil
}

// ReportData returns the report data field embedded in the quote's report
// body. The attesting party sets its first 32 bytes to SHA256(GA || GB ||
// VK), binding the quote to the handshake transcript.
func (q *Quote) ReportData() [ReportDataSize]byte {
	var d [ReportDataSize]byte
	copy(d[:], q.ReportBody[reportDataOffset:])
	return d
}
