// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package verification

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intel-secl/go-ra"
)

func TestSigRL(t *testing.T) {
	sigRL := []byte{0xde, 0xad, 0xbe, 0xef}
	var gets int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gets++
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, sigRLPath+"00000a0b", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get(apiKeyHeader))
		_, _ = w.Write([]byte(base64.StdEncoding.EncodeToString(sigRL)))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key", nil)
	gid := ra.GroupID{0x0b, 0x0a, 0x00, 0x00}

	got, err := c.SigRL(context.Background(), gid)
	require.NoError(t, err)
	assert.Equal(t, sigRL, got)

	// Second lookup must be served from the cache.
	got, err = c.SigRL(context.Background(), gid)
	require.NoError(t, err)
	assert.Equal(t, sigRL, got)
	assert.Equal(t, 1, gets)
}

func TestSigRLEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", nil)
	got, err := c.SigRL(context.Background(), ra.GroupID{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSigRLUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", nil)
	_, err := c.SigRL(context.Background(), ra.GroupID{})
	assert.ErrorIs(t, err, ra.ErrVerificationUnavailable)

	// Transport-level failure maps the same way.
	srv.Close()
	c = NewClient(srv.URL, "", nil)
	_, err = c.SigRL(context.Background(), ra.GroupID{})
	assert.ErrorIs(t, err, ra.ErrVerificationUnavailable)
}

func TestVerify(t *testing.T) {
	quote := make([]byte, ra.QuoteMinSize)
	pib := &ra.PlatformInfoBlob{GroupStatus: ra.PIGroupRekeyAvailable, TCBEvaluationStatus: ra.PITCBOutOfDate}
	encoded := pib.Encode()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, reportPath, r.URL.Path)

		var req reportRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		sent, err := base64.StdEncoding.DecodeString(req.ISVEnclaveQuote)
		require.NoError(t, err)
		assert.Equal(t, quote, sent)

		// TLV-prefixed blob as the service sends it.
		blob := append([]byte{0x15, 0x00, 0x00, 0x68}, encoded[:]...)
		resp := reportResponse{
			ISVEnclaveQuoteStatus: "GROUP_OUT_OF_DATE",
			PlatformInfoBlob:      hex.EncodeToString(blob),
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", nil)
	verdict, got, err := c.Verify(context.Background(), quote, nil)
	require.NoError(t, err)
	assert.Equal(t, ra.VerdictGroupOutOfDate, verdict)
	require.NotNil(t, got)
	assert.Equal(t, *pib, *got)
}

func TestVerifyStatuses(t *testing.T) {
	for status, want := range map[string]ra.Verdict{
		"OK":                     ra.VerdictOK,
		"SIGNATURE_INVALID":      ra.VerdictSignatureInvalid,
		"GROUP_REVOKED":          ra.VerdictGroupRevoked,
		"SIGNATURE_REVOKED":      ra.VerdictSignatureRevoked,
		"KEY_REVOKED":            ra.VerdictKeyRevoked,
		"SIGRL_VERSION_MISMATCH": ra.VerdictSigRLVersionMismatch,
		"GROUP_OUT_OF_DATE":      ra.VerdictGroupOutOfDate,
		"CONFIGURATION_NEEDED":   ra.VerdictConfigurationNeeded,
	} {
		verdict, err := parseStatus(status)
		require.NoError(t, err)
		assert.Equal(t, want, verdict)
	}

	_, err := parseStatus("SOMETHING_NEW")
	assert.Error(t, err)
}

func TestVerifyUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", nil)
	verdict, _, err := c.Verify(context.Background(), make([]byte, ra.QuoteMinSize), nil)
	assert.ErrorIs(t, err, ra.ErrVerificationUnavailable)
	assert.Equal(t, ra.VerdictUnknown, verdict)
}

func TestVerifyRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", nil)
	_, _, err := c.Verify(context.Background(), make([]byte, ra.QuoteMinSize), nil)
	require.Error(t, err)
	// A 4xx is definitive, not retryable.
	assert.NotErrorIs(t, err, ra.ErrVerificationUnavailable)
}
