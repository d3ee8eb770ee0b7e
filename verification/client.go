// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

// Package verification implements the HTTP client for the external quote
// verification service. It exposes the service as an ra.QuoteVerifier,
// translating quote statuses to verdicts and transport failures to the
// retryable ra.ErrVerificationUnavailable.
package verification

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/intel-secl/go-ra"
)

const (
	sigRLPath  = "/attestation/v4/sigrl/"
	reportPath = "/attestation/v4/report"

	apiKeyHeader = "Ocp-Apim-Subscription-Key"
)

// Client talks to the verification service. Construct it with NewClient;
// the zero value is not usable.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client

	// The revocation list for a group changes only on a TCB recovery event,
	// so it is cached for the process lifetime.
	mu         sync.Mutex
	sigRLCache map[ra.GroupID][]byte
}

var _ ra.QuoteVerifier = (*Client)(nil)

// NewClient creates a verification service client. If httpClient is nil,
// http.DefaultClient is used.
func NewClient(baseURL, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		client:     httpClient,
		sigRLCache: make(map[ra.GroupID][]byte),
	}
}

// SigRL fetches the signature revocation list for a group, serving repeat
// lookups from the cache. The service returns the list base64-encoded; an
// empty body means the group has no revoked signatures.
func (c *Client) SigRL(ctx context.Context, gid ra.GroupID) ([]byte, error) {
	c.mu.Lock()
	cached, ok := c.sigRLCache[gid]
	c.mu.Unlock()
	if ok {
		return cached, nil
	}

	// The group id is little-endian on the wire but big-endian in the URL.
	var beGID [ra.GroupIDSize]byte
	for i, b := range gid {
		beGID[len(beGID)-1-i] = b
	}
	url := c.baseURL + sigRLPath + hex.EncodeToString(beGID[:])

	body, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	var sigRL []byte
	if len(body) > 0 {
		sigRL, err = base64.StdEncoding.DecodeString(string(body))
		if err != nil {
			return nil, errors.Wrap(err, "decoding revocation list")
		}
	}

	c.mu.Lock()
	c.sigRLCache[gid] = sigRL
	c.mu.Unlock()
	log.WithFields(log.Fields{"gid": hex.EncodeToString(beGID[:]), "size": len(sigRL)}).Debug("fetched signature revocation list")
	return sigRL, nil
}

type reportRequest struct {
	ISVEnclaveQuote string `json:"isvEnclaveQuote"`
	PSEManifest     string `json:"pseManifest,omitempty"`
}

type reportResponse struct {
	ISVEnclaveQuoteStatus string `json:"isvEnclaveQuoteStatus"`
	PlatformInfoBlob      string `json:"platformInfoBlob,omitempty"`
}

// Verify submits a quote for verification and returns the definitive verdict
// together with the platform info blob, when the service provides one.
func (c *Client) Verify(ctx context.Context, quote, manifest []byte) (ra.Verdict, *ra.PlatformInfoBlob, error) {
	req := reportRequest{ISVEnclaveQuote: base64.StdEncoding.EncodeToString(quote)}
	if len(manifest) > 0 && !allZero(manifest) {
		req.PSEManifest = base64.StdEncoding.EncodeToString(manifest)
	}
	reqBody, err := json.Marshal(req)
	if err != nil {
		return ra.VerdictUnknown, nil, err
	}

	body, err := c.do(ctx, http.MethodPost, c.baseURL+reportPath, reqBody)
	if err != nil {
		return ra.VerdictUnknown, nil, err
	}

	var report reportResponse
	if err := json.Unmarshal(body, &report); err != nil {
		return ra.VerdictUnknown, nil, errors.Wrap(err, "decoding verification report")
	}

	verdict, err := parseStatus(report.ISVEnclaveQuoteStatus)
	if err != nil {
		return ra.VerdictUnknown, nil, err
	}

	var pib *ra.PlatformInfoBlob
	if report.PlatformInfoBlob != "" {
		pib, err = parsePlatformInfo(report.PlatformInfoBlob)
		if err != nil {
			return ra.VerdictUnknown, nil, err
		}
	}
	return verdict, pib, nil
}

// do performs one request. Responses outside 2xx and transport failures are
// mapped per the taxonomy: a 4xx status is a definitive error, everything
// else is the retryable unavailable condition.
func (c *Client) do(ctx context.Context, method, url string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(ra.ErrVerificationUnavailable, "%s %s: %v", method, url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(ra.ErrVerificationUnavailable, "reading response: %v", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return respBody, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, fmt.Errorf("verification service rejected %s %s: %s", method, url, resp.Status)
	default:
		return nil, errors.Wrapf(ra.ErrVerificationUnavailable, "%s %s: %s", method, url, resp.Status)
	}
}

// parseStatus maps the service's quote status strings to verdicts. An
// unrecognized status is an error, not a verdict: failing open on a status
// added by a newer service revision would bypass the accept policy.
func parseStatus(status string) (ra.Verdict, error) {
	switch status {
	case "OK":
		return ra.VerdictOK, nil
	case "SIGNATURE_INVALID":
		return ra.VerdictSignatureInvalid, nil
	case "GROUP_REVOKED":
		return ra.VerdictGroupRevoked, nil
	case "SIGNATURE_REVOKED":
		return ra.VerdictSignatureRevoked, nil
	case "KEY_REVOKED":
		return ra.VerdictKeyRevoked, nil
	case "SIGRL_VERSION_MISMATCH":
		return ra.VerdictSigRLVersionMismatch, nil
	case "GROUP_OUT_OF_DATE":
		return ra.VerdictGroupOutOfDate, nil
	case "CONFIGURATION_NEEDED":
		return ra.VerdictConfigurationNeeded, nil
	default:
		return ra.VerdictUnknown, fmt.Errorf("unrecognized quote status %q", status)
	}
}

// parsePlatformInfo decodes the hex platform info blob. The service prefixes
// the blob with a 4-byte TLV header, which is stripped when present.
func parsePlatformInfo(s string) (*ra.PlatformInfoBlob, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, errors.Wrap(err, "decoding platform info blob")
	}
	if len(b) == ra.PlatformInfoSize+4 {
		b = b[4:]
	}
	return ra.DecodePlatformInfo(b)
}

func allZero(b []byte) bool {
	var acc byte
	for _, v := range b {
		acc |= v
	}
	return acc == 0
}
