// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package ra

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"
	"log/slog"

	"github.com/intel-secl/go-ra/kex"
)

// ResponderConfig configures the verifying side of a handshake.
type ResponderConfig struct {
	// SigningKey is the responder's long-term P-256 key. Its signature over
	// the ephemeral points in MSG2 authenticates the responder. Must be
	// non-nil.
	SigningKey *ecdsa.PrivateKey

	// SPID is the service provider id registered with the verification
	// service. Bound into the MSG2 MAC in the unilateral variant.
	SPID Spid

	// QuoteType selects linkable or unlinkable quote signatures.
	QuoteType uint16

	// Variant selects unilateral or mutual attestation.
	Variant Variant

	// KDFID is the key derivation function offered in MSG2. Zero selects
	// kex.KdfAESCMAC.
	KDFID uint16

	// Verifier checks submitted quotes. Must be non-nil.
	Verifier QuoteVerifier

	// Secret is the payload provisioned to the initiator after a favorable
	// verdict.
	Secret []byte

	// Accept maps a definitive verdict to an accept/reject decision. If nil,
	// DefaultAcceptPolicy is used.
	Accept AcceptPolicy

	// Rand is the entropy source. If nil, crypto/rand is used.
	Rand io.Reader

	// VerifyRetry bounds retries of an unreachable verification service. The
	// zero value selects DefaultVerifyRetry.
	VerifyRetry RetryPolicy
}

// Responder runs the verifying side of one handshake session.
type Responder struct {
	sess *Session
	conf ResponderConfig
}

// NewResponder creates a session in the Created state.
func NewResponder(conf ResponderConfig) (*Responder, error) {
	if conf.SigningKey == nil {
		return nil, errors.New("responder requires a long-term signing key")
	}
	if conf.SigningKey.Curve != elliptic.P256() {
		return nil, errors.New("responder signing key must be P-256")
	}
	if conf.Verifier == nil {
		return nil, errors.New("responder requires a quote verifier")
	}
	if conf.KDFID == 0 {
		conf.KDFID = kex.KdfAESCMAC
	}
	if conf.Accept == nil {
		conf.Accept = DefaultAcceptPolicy
	}
	if conf.Rand == nil {
		conf.Rand = rand.Reader
	}
	if conf.VerifyRetry.Attempts == 0 {
		conf.VerifyRetry = DefaultVerifyRetry
	}
	return &Responder{sess: newSession(RoleResponder, conf.Variant), conf: conf}, nil
}

// Session returns the underlying session.
func (r *Responder) Session() *Session { return r.sess }

// Close closes the underlying session. Idempotent.
func (r *Responder) Close() error { return r.sess.Close() }

// ProcessMsg0 echoes the extended group negotiation. Only extended group 0
// is supported; any other value is rejected and the session fails, but the
// echo is still returned so the initiator learns the rejection.
func (r *Responder) ProcessMsg0(msg0 *Msg0) (*Msg0, error) {
	if err := r.sess.expectState(Created); err != nil {
		return nil, r.sess.fail(err)
	}
	echo := &Msg0{ExtGID: msg0.ExtGID, Status: Msg0StatusOK}
	if msg0.ExtGID != 0 {
		echo.Status = Msg0StatusRejected
		_ = r.sess.fail(errors.New("unsupported extended attestation group"))
	}
	return echo, nil
}

// ProcessMsg1 validates the initiator's point, performs the key agreement,
// and builds MSG2. In the unilateral variant the signature revocation list
// for the initiator's group is fetched from the verifier, retrying while it
// is unreachable.
func (r *Responder) ProcessMsg1(ctx context.Context, msg1 *Msg1) (*Msg2, error) {
	if err := r.sess.expectState(Created); err != nil {
		return nil, r.sess.fail(err)
	}

	eph, err := kex.GenerateKeyPair(r.conf.Rand)
	if err != nil {
		return nil, r.sess.fail(err)
	}
	secret, err := eph.SharedSecret(msg1.GA)
	if err != nil {
		eph.Destroy()
		return nil, r.sess.fail(err)
	}
	keys, err := kex.Derive(secret, r.conf.KDFID)
	secret.Destroy()
	if err != nil {
		eph.Destroy()
		return nil, r.sess.fail(err)
	}

	var sigRL []byte
	if r.sess.variant == Unilateral {
		err := retryWith(ctx, r.sess.closed, r.conf.VerifyRetry, func(err error) bool {
			return errors.Is(err, ErrVerificationUnavailable)
		}, func(ctx context.Context) error {
			var err error
			sigRL, err = r.conf.Verifier.SigRL(ctx, msg1.GID)
			return err
		})
		if err != nil {
			eph.Destroy()
			keys.Destroy()
			return nil, r.sess.fail(err)
		}
	}

	msg2 := &Msg2{
		GB:        eph.Public(),
		QuoteType: r.conf.QuoteType,
		KDFID:     r.conf.KDFID,
		SigRL:     sigRL,
	}
	if r.sess.variant == Unilateral {
		msg2.SPID = r.conf.SPID
	}
	if err := msg2.GenSignAndMAC(r.conf.Rand, msg1.GA, r.conf.SigningKey, keys.SMK, r.sess.variant); err != nil {
		eph.Destroy()
		keys.Destroy()
		return nil, r.sess.fail(err)
	}

	r.sess.mu.Lock()
	r.sess.eph = eph
	r.sess.ga = msg1.GA
	r.sess.gb = eph.Public()
	r.sess.keys = keys
	r.sess.kdfID = r.conf.KDFID
	r.sess.gid = msg1.GID
	r.sess.state = KeyAgreed
	r.sess.mu.Unlock()
	slog.Debug("key agreement complete", "session", r.sess.id, "kdf", r.conf.KDFID)

	return msg2, nil
}

// ProcessMsg3 checks the MSG3 MAC, the point binding, and the quote's
// transcript binding, then submits the quote for verification, retrying an
// unreachable service. On an accepted verdict it builds the attestation
// result carrying the MACed platform info and the sealed secret.
func (r *Responder) ProcessMsg3(ctx context.Context, msg3 *Msg3) (*AttestationResult, error) {
	if err := r.sess.expectState(KeyAgreed); err != nil {
		return nil, r.sess.fail(err)
	}
	r.sess.mu.Lock()
	ga, gb, gid, keys := r.sess.ga, r.sess.gb, r.sess.gid, r.sess.keys
	r.sess.mu.Unlock()

	if msg3.GA != ga {
		return nil, r.sess.fail(&IntegrityError{Check: "msg3 ga binding"})
	}
	if err := msg3.VerifyMAC(keys.SMK); err != nil {
		return nil, r.sess.fail(err)
	}

	quote, err := ParseQuote(msg3.RawQuote)
	if err != nil {
		return nil, r.sess.fail(err)
	}
	if quote.GID != gid {
		return nil, r.sess.fail(&IntegrityError{Check: "quote group id"})
	}

	// The quote must open with SHA256(GA || GB || VK), binding it to this
	// handshake's transcript and derived keys.
	h := sha256.New()
	h.Write(ga[:])
	h.Write(gb[:])
	h.Write(keys.VK[:])
	reportData := quote.ReportData()
	if !bytes.Equal(reportData[:sha256.Size], h.Sum(nil)) {
		return nil, r.sess.fail(&IntegrityError{Check: "quote report data binding"})
	}

	r.sess.setState(QuoteSubmitted)

	var verdict Verdict
	var pib *PlatformInfoBlob
	err = retryWith(ctx, r.sess.closed, r.conf.VerifyRetry, func(err error) bool {
		return errors.Is(err, ErrVerificationUnavailable)
	}, func(ctx context.Context) error {
		var err error
		verdict, pib, err = r.conf.Verifier.Verify(ctx, msg3.RawQuote, msg3.SecProp[:])
		return err
	})
	if err != nil {
		return nil, r.sess.fail(err)
	}

	r.sess.mu.Lock()
	r.sess.verdict = verdict
	r.sess.pib = pib
	r.sess.mu.Unlock()
	slog.Info("quote verified", "session", r.sess.id, "verdict", verdict)

	if !r.conf.Accept(verdict) {
		return nil, r.sess.fail(&QuoteRejectedError{Verdict: verdict})
	}
	r.sess.setState(Verified)

	result := new(AttestationResult)
	if pib != nil {
		result.PlatformInfo = *pib
	}
	if err := result.GenMAC(keys.MK); err != nil {
		return nil, r.sess.fail(err)
	}
	ciphertext, tag, err := Seal(keys.SK, r.conf.Secret)
	if err != nil {
		return nil, r.sess.fail(err)
	}
	result.Payload = ciphertext
	result.PayloadTag = tag

	r.sess.setState(SecretExchanged)
	return result, nil
}

// Respond decodes one request, dispatches it to the session, and encodes the
// response. Any failure is reported to the peer as an error message whose
// detail carries only the taxonomy class, never key material or the specific
// security condition.
func (r *Responder) Respond(ctx context.Context, msgType MsgType, body []byte) (MsgType, []byte) {
	resp, err := r.respondAny(ctx, msgType, body)
	if err != nil {
		em := &ErrorMessage{Code: errorCode(err), PrevType: msgType, Detail: "handshake failed"}
		b, _ := em.MarshalBinary()
		return TypeError, b
	}
	b, err := resp.MarshalBinary()
	if err != nil {
		em := &ErrorMessage{Code: errorCode(err), PrevType: msgType, Detail: "handshake failed"}
		eb, _ := em.MarshalBinary()
		return TypeError, eb
	}
	return resp.Type(), b
}

func (r *Responder) respondAny(ctx context.Context, msgType MsgType, body []byte) (Message, error) {
	msg, err := Decode(msgType, body)
	if err != nil {
		return nil, r.sess.fail(err)
	}
	switch m := msg.(type) {
	case *Msg0:
		return r.ProcessMsg0(m)
	case *Msg1:
		return r.ProcessMsg1(ctx, m)
	case *Msg3:
		return r.ProcessMsg3(ctx, m)
	default:
		return nil, r.sess.fail(ErrInvalidState)
	}
}
