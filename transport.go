// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package ra

import (
	"context"
	"fmt"
	"log/slog"
)

// Transport delivers one protocol message to the responder and returns its
// response. Implementations carry the session association (an HTTP header, a
// connection, an in-memory responder) themselves; the protocol layer never
// sees it.
type Transport interface {
	RoundTrip(ctx context.Context, msgType MsgType, msg []byte) (respType MsgType, resp []byte, err error)
}

func roundTrip[T Message](ctx context.Context, transport Transport, req Message) (T, error) {
	var zero T

	body, err := req.MarshalBinary()
	if err != nil {
		return zero, fmt.Errorf("error encoding %s: %w", req.Type(), err)
	}
	respType, respBody, err := transport.RoundTrip(ctx, req.Type(), body)
	if err != nil {
		return zero, fmt.Errorf("%s round trip: %w", req.Type(), err)
	}

	resp, err := Decode(respType, respBody)
	if err != nil {
		return zero, err
	}
	if em, ok := resp.(*ErrorMessage); ok {
		return zero, em
	}
	typed, ok := resp.(T)
	if !ok {
		return zero, &FormatError{Type: respType, Reason: fmt.Sprintf("unexpected response to %s", req.Type())}
	}
	return typed, nil
}

// Attest drives a full handshake over the given transport and returns the
// provisioned secret. The initiator session is closed before returning
// regardless of outcome; on success its state remains SecretExchanged.
func Attest(ctx context.Context, transport Transport, conf InitiatorConfig) ([]byte, error) {
	init, err := NewInitiator(conf)
	if err != nil {
		return nil, err
	}
	defer func() { _ = init.Close() }()

	msg0, err := init.Msg0(ctx)
	if err != nil {
		return nil, err
	}
	echo, err := roundTrip[*Msg0](ctx, transport, msg0)
	if err != nil {
		return nil, init.Session().fail(err)
	}
	if err := init.ProcessMsg0Response(echo); err != nil {
		return nil, err
	}

	msg1, err := init.Msg1(ctx)
	if err != nil {
		return nil, err
	}
	msg2, err := roundTrip[*Msg2](ctx, transport, msg1)
	if err != nil {
		return nil, init.Session().fail(err)
	}

	msg3, err := init.ProcessMsg2(ctx, msg2)
	if err != nil {
		return nil, err
	}
	result, err := roundTrip[*AttestationResult](ctx, transport, msg3)
	if err != nil {
		return nil, init.Session().fail(err)
	}

	secret, err := init.ProcessResult(result)
	if err != nil {
		return nil, err
	}
	slog.Debug("attestation complete", "session", init.Session().ID())
	return secret, nil
}
