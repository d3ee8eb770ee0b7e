// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package ra

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/intel-secl/go-ra/kex"
)

// InitiatorConfig configures the attesting side of a handshake.
type InitiatorConfig struct {
	// ServiceKey is the responder's long-term public key, used to verify the
	// MSG2 signature over the ephemeral points. Must be non-nil.
	ServiceKey *ecdsa.PublicKey

	// Evidence produces attestation reports and quotes. Must be non-nil.
	Evidence EvidenceProducer

	// Variant selects unilateral or mutual attestation. Both peers must
	// agree out of band.
	Variant Variant

	// SecProperties is the platform services property descriptor carried in
	// MSG3. May be left zero.
	SecProperties SecProperties

	// Rand is the entropy source. If nil, crypto/rand is used.
	Rand io.Reader

	// BusyRetry bounds retries of transient device-busy conditions. The
	// zero value selects DefaultBusyRetry.
	BusyRetry RetryPolicy
}

// Initiator runs the attesting side of one handshake session.
type Initiator struct {
	sess *Session
	conf InitiatorConfig

	extGID   uint32
	haveGID  bool
	gidCache GroupID
}

// NewInitiator creates a session in the Created state.
func NewInitiator(conf InitiatorConfig) (*Initiator, error) {
	if conf.ServiceKey == nil {
		return nil, errors.New("initiator requires the responder's long-term public key")
	}
	if conf.Evidence == nil {
		return nil, errors.New("initiator requires an evidence producer")
	}
	if conf.Rand == nil {
		conf.Rand = rand.Reader
	}
	if conf.BusyRetry.Attempts == 0 {
		conf.BusyRetry = DefaultBusyRetry
	}
	return &Initiator{sess: newSession(RoleInitiator, conf.Variant), conf: conf}, nil
}

// Session returns the underlying session.
func (i *Initiator) Session() *Session { return i.sess }

// Close closes the underlying session. Idempotent.
func (i *Initiator) Close() error { return i.sess.Close() }

func (i *Initiator) groupInfo(ctx context.Context) error {
	if i.haveGID {
		return nil
	}
	err := retryWith(ctx, i.sess.closed, i.conf.BusyRetry, func(err error) bool {
		return errors.Is(err, ErrDeviceBusy)
	}, func(ctx context.Context) error {
		extGID, gid, err := i.conf.Evidence.GroupInfo(ctx)
		if err != nil {
			return err
		}
		i.extGID, i.gidCache = extGID, gid
		return nil
	})
	if err != nil {
		return err
	}
	i.haveGID = true
	return nil
}

// Msg0 builds the capability negotiation message.
func (i *Initiator) Msg0(ctx context.Context) (*Msg0, error) {
	if err := i.sess.expectState(Created); err != nil {
		return nil, i.sess.fail(err)
	}
	if err := i.groupInfo(ctx); err != nil {
		return nil, i.sess.fail(err)
	}
	return &Msg0{ExtGID: i.extGID}, nil
}

// ProcessMsg0Response checks the responder's echoed status.
func (i *Initiator) ProcessMsg0Response(echo *Msg0) error {
	if err := i.sess.expectState(Created); err != nil {
		return i.sess.fail(err)
	}
	if echo.Status != Msg0StatusOK {
		return i.sess.fail(fmt.Errorf("responder rejected extended group %d (status %d)", i.extGID, echo.Status))
	}
	return nil
}

// Msg1 generates the ephemeral key pair and builds MSG1. The group id
// lookup retries a transient busy condition per the busy policy.
func (i *Initiator) Msg1(ctx context.Context) (*Msg1, error) {
	if err := i.sess.expectState(Created); err != nil {
		return nil, i.sess.fail(err)
	}
	if err := i.groupInfo(ctx); err != nil {
		return nil, i.sess.fail(err)
	}

	eph, err := kex.GenerateKeyPair(i.conf.Rand)
	if err != nil {
		return nil, i.sess.fail(err)
	}
	i.sess.mu.Lock()
	i.sess.eph = eph
	i.sess.ga = eph.Public()
	i.sess.gid = i.gidCache
	i.sess.mu.Unlock()

	return &Msg1{GA: eph.Public(), GID: i.gidCache}, nil
}

// ProcessMsg2 validates the responder's point, derives the session keys,
// verifies the MSG2 signature and MAC, and produces MSG3 with a quote bound
// to the handshake transcript.
func (i *Initiator) ProcessMsg2(ctx context.Context, msg2 *Msg2) (*Msg3, error) {
	if err := i.sess.expectState(Created); err != nil {
		return nil, i.sess.fail(err)
	}
	i.sess.mu.Lock()
	eph := i.sess.eph
	i.sess.mu.Unlock()
	if eph == nil {
		return nil, i.sess.fail(ErrInvalidState)
	}
	// Mutual attestation carries no revocation list.
	if i.sess.variant == Mutual && len(msg2.SigRL) > 0 {
		return nil, i.sess.fail(&FormatError{Type: TypeMsg2, Reason: "unexpected revocation list in mutual attestation"})
	}

	secret, err := eph.SharedSecret(msg2.GB)
	if err != nil {
		return nil, i.sess.fail(err)
	}
	keys, err := kex.Derive(secret, msg2.KDFID)
	secret.Destroy()
	if err != nil {
		return nil, i.sess.fail(err)
	}

	ga := eph.Public()
	if err := msg2.VerifySignAndMAC(ga, i.conf.ServiceKey, keys.SMK, i.sess.variant); err != nil {
		keys.Destroy()
		return nil, i.sess.fail(err)
	}

	i.sess.mu.Lock()
	i.sess.gb = msg2.GB
	i.sess.keys = keys
	i.sess.kdfID = msg2.KDFID
	i.sess.state = KeyAgreed
	i.sess.mu.Unlock()
	slog.Debug("key agreement complete", "session", i.sess.id, "kdf", msg2.KDFID)

	// Bind the quote to the transcript: the report data opens with
	// SHA256(GA || GB || VK).
	var reportData [ReportDataSize]byte
	h := sha256.New()
	h.Write(ga[:])
	h.Write(msg2.GB[:])
	h.Write(keys.VK[:])
	copy(reportData[:], h.Sum(nil))

	var nonce [16]byte
	if _, err := io.ReadFull(i.conf.Rand, nonce[:]); err != nil {
		return nil, i.sess.fail(err)
	}

	busy := func(err error) bool { return errors.Is(err, ErrDeviceBusy) }
	var quote []byte
	err = retryWith(ctx, i.sess.closed, i.conf.BusyRetry, busy, func(ctx context.Context) error {
		report, err := i.conf.Evidence.Report(ctx, reportData)
		if err != nil {
			return err
		}
		quote, err = i.conf.Evidence.Quote(ctx, report, msg2.SPID, msg2.QuoteType, msg2.SigRL, nonce)
		return err
	})
	if err != nil {
		return nil, i.sess.fail(err)
	}

	msg3 := &Msg3{GA: ga, SecProp: i.conf.SecProperties, RawQuote: quote}
	if err := msg3.GenMAC(keys.SMK); err != nil {
		return nil, i.sess.fail(err)
	}

	i.sess.setState(QuoteSubmitted)
	return msg3, nil
}

// ProcessResult verifies the attestation result and recovers the secret
// payload. The platform info MAC is checked with MK before the gating flags
// are consulted; only then is the payload opened with SK.
func (i *Initiator) ProcessResult(result *AttestationResult) ([]byte, error) {
	if err := i.sess.expectState(QuoteSubmitted); err != nil {
		return nil, i.sess.fail(err)
	}
	i.sess.mu.Lock()
	keys := i.sess.keys
	i.sess.mu.Unlock()

	if err := result.VerifyMAC(keys.MK); err != nil {
		return nil, i.sess.fail(err)
	}

	pib := result.PlatformInfo
	i.sess.mu.Lock()
	i.sess.pib = &pib
	i.sess.state = Verified
	i.sess.mu.Unlock()

	if !pib.Trusted() {
		return nil, i.sess.fail(fmt.Errorf("%w: platform info gating flags", ErrQuoteRejected))
	}

	secret, err := Open(keys.SK, result.Payload, result.PayloadTag)
	if err != nil {
		return nil, i.sess.fail(err)
	}

	i.sess.setState(SecretExchanged)
	slog.Debug("secret provisioning complete", "session", i.sess.id, "payload_len", len(secret))
	return secret, nil
}
