// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package ra_test

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/intel-secl/go-ra"
	"github.com/intel-secl/go-ra/kex"
)

func filled(n int, seed byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = seed + byte(i)
	}
	return b
}

func testMessages(t *testing.T) []ra.Message {
	t.Helper()

	var ga, gb kex.PublicPoint
	copy(ga[:], filled(kex.PointSize, 0x10))
	copy(gb[:], filled(kex.PointSize, 0x50))

	msg2 := &ra.Msg2{
		GB:        gb,
		SPID:      ra.Spid{0x01, 0x02, 0x03},
		QuoteType: ra.QuoteLinkable,
		KDFID:     kex.KdfAESCMAC,
		SigRL:     filled(37, 0xa0),
	}
	copy(msg2.SigGbGa[:], filled(ra.SignatureSize, 0x77))
	copy(msg2.MAC[:], filled(kex.TagSize, 0x33))

	msg3 := &ra.Msg3{GA: ga, RawQuote: filled(ra.QuoteMinSize+100, 0x01)}
	// Make the trailing signature length consistent with the quote layout.
	quote := make([]byte, ra.QuoteMinSize+100)
	copy(quote, filled(ra.QuoteMinSize-4, 0x01))
	quote[ra.QuoteMinSize-4] = 100
	msg3.RawQuote = quote
	copy(msg3.MAC[:], filled(kex.TagSize, 0x44))
	copy(msg3.SecProp[:], filled(ra.SecPropertiesSize, 0x55))

	result := &ra.AttestationResult{
		PlatformInfo: ra.PlatformInfoBlob{GroupStatus: ra.PIGroupRekeyAvailable},
		Payload:      filled(48, 0xb0),
	}
	copy(result.MAC[:], filled(kex.TagSize, 0x66))
	copy(result.PayloadTag[:], filled(kex.TagSize, 0x88))

	return []ra.Message{
		&ra.Msg0{ExtGID: 7, Status: ra.Msg0StatusOK},
		&ra.Msg1{GA: ga, GID: ra.GroupID{0x0b, 0x0a, 0x00, 0x00}},
		msg2,
		msg3,
		result,
		&ra.ErrorMessage{Code: 0x0004, PrevType: ra.TypeMsg3, Detail: "handshake failed"},
	}
}

func TestMessageRoundTrip(t *testing.T) {
	for _, msg := range testMessages(t) {
		t.Run(msg.Type().String(), func(t *testing.T) {
			encoded, err := msg.MarshalBinary()
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}

			decoded, err := ra.Decode(msg.Type(), encoded)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}

			reencoded, err := decoded.MarshalBinary()
			if err != nil {
				t.Fatalf("re-marshal: %v", err)
			}
			if !bytes.Equal(encoded, reencoded) {
				t.Errorf("round trip mismatch\n  first:  %x\n  second: %x", encoded, reencoded)
			}
		})
	}
}

func TestMessageTruncation(t *testing.T) {
	for _, msg := range testMessages(t) {
		t.Run(msg.Type().String(), func(t *testing.T) {
			encoded, err := msg.MarshalBinary()
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}

			// The error message accepts any detail length after its header.
			minValid := len(encoded)
			if msg.Type() == ra.TypeError {
				minValid = 3
			}
			for cut := 0; cut < minValid; cut += 7 {
				if _, err := ra.Decode(msg.Type(), encoded[:cut]); !errors.Is(err, ra.ErrFormat) {
					t.Errorf("truncated to %d bytes: got %v, want ErrFormat", cut, err)
				}
			}
		})
	}
}

func TestMessageLengthFieldMismatch(t *testing.T) {
	msgs := testMessages(t)

	msg2 := msgs[2].(*ra.Msg2)
	encoded, _ := msg2.MarshalBinary()
	grown := append(encoded, 0x00) //nolint:gocritic
	if _, err := ra.Decode(ra.TypeMsg2, grown); !errors.Is(err, ra.ErrFormat) {
		t.Errorf("msg2 with excess bytes: got %v, want ErrFormat", err)
	}

	result := msgs[4].(*ra.AttestationResult)
	encoded, _ = result.MarshalBinary()
	grown = append(encoded, 0x00) //nolint:gocritic
	if _, err := ra.Decode(ra.TypeResult, grown); !errors.Is(err, ra.ErrFormat) {
		t.Errorf("result with excess bytes: got %v, want ErrFormat", err)
	}
}

func TestDecodeUnknownType(t *testing.T) {
	if _, err := ra.Decode(ra.MsgType(0x42), nil); !errors.Is(err, ra.ErrFormat) {
		t.Errorf("unknown type: got %v, want ErrFormat", err)
	}
}

func TestMsg3QuoteFraming(t *testing.T) {
	msg3 := &ra.Msg3{RawQuote: buildQuote(ra.GroupID{0x01}, nil, 680)}
	encoded, err := msg3.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}

	// Every strict prefix must fail to decode, including the ones long
	// enough to hold the header and a minimal quote.
	for cut := len(encoded) - 1; cut > len(encoded)-700; cut -= 13 {
		if _, err := ra.Decode(ra.TypeMsg3, encoded[:cut]); !errors.Is(err, ra.ErrFormat) {
			t.Errorf("truncated to %d bytes: got %v, want ErrFormat", cut, err)
		}
	}

	// A quote whose signature length field overstates the remainder must not
	// marshal either.
	msg3.RawQuote = msg3.RawQuote[:len(msg3.RawQuote)-1]
	if _, err := msg3.MarshalBinary(); !errors.Is(err, ra.ErrFormat) {
		t.Errorf("inconsistent quote marshaled: got %v, want ErrFormat", err)
	}
}

func TestMsg2MacVariants(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	var ga, gb kex.PublicPoint
	copy(ga[:], filled(kex.PointSize, 0x10))
	copy(gb[:], filled(kex.PointSize, 0x50))
	var smk kex.Key128
	copy(smk[:], filled(16, 0x42))

	msg2 := &ra.Msg2{GB: gb, SPID: ra.Spid{0x01}, KDFID: kex.KdfAESCMAC}
	if err := msg2.GenSignAndMAC(rand.Reader, ga, key, smk, ra.Unilateral); err != nil {
		t.Fatal(err)
	}
	if err := msg2.VerifySignAndMAC(ga, &key.PublicKey, smk, ra.Unilateral); err != nil {
		t.Fatal(err)
	}
	// The two variants MAC different prefixes, so they must not be
	// interchangeable.
	if err := msg2.VerifySignAndMAC(ga, &key.PublicKey, smk, ra.Mutual); !errors.Is(err, ra.ErrIntegrity) {
		t.Fatalf("unilateral mac verified as mutual: %v", err)
	}

	// The revocation list is outside the MAC in both variants.
	msg2.SigRL = filled(64, 0x99)
	if err := msg2.VerifySignAndMAC(ga, &key.PublicKey, smk, ra.Unilateral); err != nil {
		t.Fatal(err)
	}
}

func TestMsg2EmptySigRL(t *testing.T) {
	msg2 := &ra.Msg2{KDFID: kex.KdfAESCMAC}
	encoded, err := msg2.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}

	decoded, err := ra.Decode(ra.TypeMsg2, encoded)
	if err != nil {
		t.Fatal(err)
	}
	if got := decoded.(*ra.Msg2).SigRL; got != nil {
		t.Errorf("empty revocation list decoded as %x, want nil", got)
	}
}
