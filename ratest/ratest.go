// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

// Package ratest implements scriptable collaborators and an in-memory
// transport for exercising handshake implementations in tests.
package ratest

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/intel-secl/go-ra"
)

// Producer is a scriptable evidence producer. The zero value produces
// well-formed quotes bound to whatever report data it is given.
type Producer struct {
	// ExtGID and GID are returned from GroupInfo.
	ExtGID uint32
	GID    ra.GroupID

	// BusyCount makes the first N evidence calls fail with ErrDeviceBusy
	// before succeeding.
	BusyCount int

	// QuoteSigLen sizes the fake signature appended to produced quotes.
	QuoteSigLen int

	mu    sync.Mutex
	calls int
}

var _ ra.EvidenceProducer = (*Producer)(nil)

func (p *Producer) busy() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.calls <= p.BusyCount {
		return fmt.Errorf("%w: evidence call %d", ra.ErrDeviceBusy, p.calls)
	}
	return nil
}

// GroupInfo implements ra.EvidenceProducer.
func (p *Producer) GroupInfo(ctx context.Context) (uint32, ra.GroupID, error) {
	if err := p.busy(); err != nil {
		return 0, ra.GroupID{}, err
	}
	return p.ExtGID, p.GID, nil
}

// Report implements ra.EvidenceProducer. The report is a fake report body
// with the report data in place.
func (p *Producer) Report(ctx context.Context, reportData [ra.ReportDataSize]byte) ([]byte, error) {
	if err := p.busy(); err != nil {
		return nil, err
	}
	report := make([]byte, 384)
	copy(report[320:], reportData[:])
	return report, nil
}

// Quote implements ra.EvidenceProducer. It wraps the report in a quote that
// ra.ParseQuote accepts, carrying the producer's group id and a fake
// signature.
func (p *Producer) Quote(ctx context.Context, report []byte, spid ra.Spid, quoteType uint16, sigRL []byte, nonce [16]byte) ([]byte, error) {
	if err := p.busy(); err != nil {
		return nil, err
	}
	if len(report) != 384 {
		return nil, fmt.Errorf("report must be 384 bytes, got %d", len(report))
	}

	b := make([]byte, 0, ra.QuoteMinSize+p.QuoteSigLen)
	b = binary.LittleEndian.AppendUint16(b, 2) // version
	b = binary.LittleEndian.AppendUint16(b, quoteType)
	b = append(b, p.GID[:]...)
	b = binary.LittleEndian.AppendUint16(b, 1) // qe svn
	b = binary.LittleEndian.AppendUint16(b, 1) // pce svn
	b = binary.LittleEndian.AppendUint32(b, 0) // xeid
	b = append(b, make([]byte, 32)...)         // basename
	b = append(b, report...)
	b = binary.LittleEndian.AppendUint32(b, uint32(p.QuoteSigLen))
	for i := 0; i < p.QuoteSigLen; i++ {
		b = append(b, byte(i))
	}
	return b, nil
}

// Verifier is a scriptable quote verifier.
type Verifier struct {
	// SigRLData is returned from SigRL lookups.
	SigRLData []byte

	// UnavailableCount makes the first N verifier calls fail with
	// ErrVerificationUnavailable before succeeding.
	UnavailableCount int

	// Verdict is the scripted verification outcome. The zero value is
	// treated as VerdictOK.
	Verdict ra.Verdict

	// PlatformInfo is returned alongside the verdict. If nil, a zero blob is
	// returned.
	PlatformInfo *ra.PlatformInfoBlob

	mu    sync.Mutex
	calls int
}

var _ ra.QuoteVerifier = (*Verifier)(nil)

func (v *Verifier) unavailable() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls++
	if v.calls <= v.UnavailableCount {
		return fmt.Errorf("%w: verifier call %d", ra.ErrVerificationUnavailable, v.calls)
	}
	return nil
}

// Calls returns the number of verifier invocations so far.
func (v *Verifier) Calls() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls
}

// SigRL implements ra.QuoteVerifier.
func (v *Verifier) SigRL(ctx context.Context, gid ra.GroupID) ([]byte, error) {
	if err := v.unavailable(); err != nil {
		return nil, err
	}
	return v.SigRLData, nil
}

// Verify implements ra.QuoteVerifier. The quote must at least parse; the
// verdict itself is scripted.
func (v *Verifier) Verify(ctx context.Context, quote, manifest []byte) (ra.Verdict, *ra.PlatformInfoBlob, error) {
	if err := v.unavailable(); err != nil {
		return ra.VerdictUnknown, nil, err
	}
	if _, err := ra.ParseQuote(quote); err != nil {
		return ra.VerdictUnknown, nil, err
	}

	verdict := v.Verdict
	if verdict == ra.VerdictUnknown {
		verdict = ra.VerdictOK
	}
	pib := v.PlatformInfo
	if pib == nil {
		pib = new(ra.PlatformInfoBlob)
	}
	return verdict, pib, nil
}

// Transport delivers messages to a responder in memory.
type Transport struct {
	Responder *ra.Responder
}

var _ ra.Transport = (*Transport)(nil)

// RoundTrip implements ra.Transport.
func (t *Transport) RoundTrip(ctx context.Context, msgType ra.MsgType, msg []byte) (ra.MsgType, []byte, error) {
	respType, resp := t.Responder.Respond(ctx, msgType, msg)
	return respType, resp, nil
}
