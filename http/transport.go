// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package http

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/intel-secl/go-ra"
)

// Transport implements handshake message delivery over HTTP. It carries the
// session id assigned by the server on the first response, so one Transport
// serves exactly one handshake.
type Transport struct {
	// Base URL including scheme, e.g. https://example.com.
	Base string

	// Client to use for HTTP requests. Nil indicates that the default client
	// should be used.
	Client *http.Client

	// MaxContentLength bounds response bodies. Defaults to 1 MiB; negative
	// disables the check.
	MaxContentLength int64

	mu        sync.Mutex
	sessionID string
}

var _ ra.Transport = (*Transport)(nil)

// RoundTrip implements ra.Transport.
func (t *Transport) RoundTrip(ctx context.Context, msgType ra.MsgType, msg []byte) (ra.MsgType, []byte, error) {
	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}

	uri, err := url.JoinPath(t.Base, "ra/v1/msg", strconv.Itoa(int(msgType)))
	if err != nil {
		return 0, nil, fmt.Errorf("error building request URL: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uri, bytes.NewReader(msg))
	if err != nil {
		return 0, nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	t.mu.Lock()
	if t.sessionID != "" {
		req.Header.Set(SessionHeader, t.sessionID)
	}
	t.mu.Unlock()

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("error sending %s: %w", msgType, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return 0, nil, fmt.Errorf("unexpected HTTP response code: %s", resp.Status)
	}
	if id := resp.Header.Get(SessionHeader); id != "" {
		t.mu.Lock()
		t.sessionID = id
		t.mu.Unlock()
	}

	typ, err := strconv.ParseUint(resp.Header.Get(MsgTypeHeader), 10, 8)
	if err != nil {
		return 0, nil, fmt.Errorf("response contains invalid message type header: %w", err)
	}

	maxSize := t.MaxContentLength
	if maxSize == 0 {
		maxSize = 1 << 20
	}
	reader := io.Reader(resp.Body)
	if maxSize > 0 {
		if resp.ContentLength > maxSize {
			return 0, nil, fmt.Errorf("content too large (%d bytes)", resp.ContentLength)
		}
		reader = io.LimitReader(resp.Body, maxSize)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return 0, nil, fmt.Errorf("error reading response body: %w", err)
	}
	return ra.MsgType(typ), body, nil
}

// Close deletes the server-side session, if one was established.
func (t *Transport) Close() error {
	t.mu.Lock()
	sessionID := t.sessionID
	t.sessionID = ""
	t.mu.Unlock()
	if sessionID == "" {
		return nil
	}

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	uri, err := url.JoinPath(t.Base, "ra/v1/session")
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodDelete, uri, nil)
	if err != nil {
		return err
	}
	req.Header.Set(SessionHeader, sessionID)
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}
