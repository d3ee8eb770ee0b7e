// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package ra_test

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/intel-secl/go-ra"
)

func buildQuote(gid ra.GroupID, reportData []byte, sigLen int) []byte {
	b := make([]byte, 0, ra.QuoteMinSize+sigLen)
	b = binary.LittleEndian.AppendUint16(b, 2)      // version
	b = binary.LittleEndian.AppendUint16(b, 1)      // sign type
	b = append(b, gid[:]...)                        // gid
	b = binary.LittleEndian.AppendUint16(b, 5)      // qe svn
	b = binary.LittleEndian.AppendUint16(b, 6)      // pce svn
	b = binary.LittleEndian.AppendUint32(b, 0x1234) // xeid
	b = append(b, filled(32, 0x80)...)              // basename

	body := make([]byte, 384)
	copy(body[320:], reportData)
	b = append(b, body...)

	b = binary.LittleEndian.AppendUint32(b, uint32(sigLen))
	b = append(b, filled(sigLen, 0xc0)...)
	return b
}

func TestParseQuote(t *testing.T) {
	gid := ra.GroupID{0x0b, 0x0a, 0x00, 0x00}
	reportData := filled(ra.ReportDataSize, 0x21)
	raw := buildQuote(gid, reportData, 680)

	q, err := ra.ParseQuote(raw)
	if err != nil {
		t.Fatal(err)
	}
	if q.Version != 2 || q.SignType != 1 {
		t.Errorf("header parsed as version=%d signType=%d", q.Version, q.SignType)
	}
	if q.GID != gid {
		t.Errorf("gid parsed as %x", q.GID)
	}
	if q.QESVN != 5 || q.PCESVN != 6 || q.XEID != 0x1234 {
		t.Errorf("svn fields parsed as qe=%d pce=%d xeid=%#x", q.QESVN, q.PCESVN, q.XEID)
	}
	if len(q.Signature) != 680 {
		t.Errorf("signature parsed as %d bytes", len(q.Signature))
	}

	got := q.ReportData()
	for i, b := range reportData {
		if got[i] != b {
			t.Fatalf("report data mismatch at byte %d", i)
		}
	}
}

func TestParseQuoteNoSignature(t *testing.T) {
	raw := buildQuote(ra.GroupID{}, nil, 0)
	if len(raw) != ra.QuoteMinSize {
		t.Fatalf("minimal quote is %d bytes, want %d", len(raw), ra.QuoteMinSize)
	}
	q, err := ra.ParseQuote(raw)
	if err != nil {
		t.Fatal(err)
	}
	if q.Signature != nil {
		t.Errorf("empty signature parsed as %x", q.Signature)
	}
}

func TestParseQuoteTruncated(t *testing.T) {
	raw := buildQuote(ra.GroupID{}, nil, 680)
	for _, cut := range []int{0, 1, ra.QuoteMinSize - 1, len(raw) - 1} {
		if _, err := ra.ParseQuote(raw[:cut]); !errors.Is(err, ra.ErrFormat) {
			t.Errorf("truncated to %d bytes: got %v, want ErrFormat", cut, err)
		}
	}
}

func TestParseQuoteSignatureLengthMismatch(t *testing.T) {
	raw := buildQuote(ra.GroupID{}, nil, 680)
	// Inflate the signature length field beyond the buffer.
	binary.LittleEndian.PutUint32(raw[ra.QuoteMinSize-4:], 681)
	if _, err := ra.ParseQuote(raw); !errors.Is(err, ra.ErrFormat) {
		t.Errorf("inflated signature length: got %v, want ErrFormat", err)
	}
}
