// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package ra

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/intel-secl/go-ra/kex"
)

// Session holds the state of one handshake, owned by exactly one
// conversation. All handshake steps of a session execute sequentially; the
// internal lock only protects against Close racing an in-flight retry loop.
type Session struct {
	id      uuid.UUID
	role    Role
	variant Variant

	mu      sync.Mutex
	state   State
	eph     *kex.KeyPair
	ga, gb  kex.PublicPoint
	keys    *kex.KeySet
	kdfID   uint16
	gid     GroupID
	verdict Verdict
	pib     *PlatformInfoBlob

	closeOnce sync.Once
	closed    chan struct{}
}

func newSession(role Role, variant Variant) *Session {
	return &Session{
		id:      uuid.New(),
		role:    role,
		variant: variant,
		state:   Created,
		closed:  make(chan struct{}),
	}
}

// ID returns the session identifier.
func (s *Session) ID() uuid.UUID { return s.id }

// Role returns which side of the handshake this session is.
func (s *Session) Role() Role { return s.role }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Verdict returns the last recorded attestation verdict.
func (s *Session) Verdict() Verdict {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.verdict
}

// PlatformInfo returns the platform info blob recorded for this session, or
// nil before verification.
func (s *Session) PlatformInfo() *PlatformInfoBlob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pib
}

// Keys exposes the derived key set for tests and diagnostics. It is nil
// until key agreement completes and zeroed after Close.
func (s *Session) Keys() *kex.KeySet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keys
}

// Closed is closed when the session is closed, stopping in-flight retry
// loops at their next check point.
func (s *Session) Closed() <-chan struct{} { return s.closed }

// fail moves the session to the terminal Failed state and returns err for
// propagation. A session that already completed stays completed: a stray
// message after success must not retroactively fail it. Integrity failures
// are security-significant and logged distinctly from ordinary protocol
// errors.
func (s *Session) fail(err error) error {
	s.mu.Lock()
	if s.state != SecretExchanged {
		s.state = Failed
	}
	s.mu.Unlock()

	if errors.Is(err, ErrIntegrity) {
		slog.Warn("security failure", "session", s.id, "role", s.role, "error", err)
	} else {
		slog.Debug("session failed", "session", s.id, "role", s.role, "error", err)
	}
	return err
}

// expectState returns ErrInvalidState unless the session is in want.
func (s *Session) expectState(want State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.closed:
		return ErrSessionClosed
	default:
	}
	if s.state != want {
		return ErrInvalidState
	}
	return nil
}

func (s *Session) setState(next State) {
	s.mu.Lock()
	s.state = next
	s.mu.Unlock()
}

// Close releases the session, zeroing all derived keys and the ephemeral
// private scalar before returning. It is idempotent, valid from any state,
// and safe to call concurrently with an in-flight retry loop, which observes
// closure at its next check point.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.keys != nil {
			s.keys.Destroy()
		}
		if s.eph != nil {
			s.eph.Destroy()
		}
		if s.state != SecretExchanged {
			s.state = Failed
		}
	})
	return nil
}

// SessionTable is the process-wide registry of live sessions, keyed by
// session id. The lock is held only across insert, lookup, and remove,
// never across a network round trip or a cryptographic operation.
type SessionTable struct {
	mu sync.Mutex
	m  map[uuid.UUID]*Session
}

// NewSessionTable creates an empty table.
func NewSessionTable() *SessionTable {
	return &SessionTable{m: make(map[uuid.UUID]*Session)}
}

// Insert registers a session.
func (t *SessionTable) Insert(s *Session) {
	t.mu.Lock()
	t.m[s.id] = s
	t.mu.Unlock()
}

// Lookup finds a session by id.
func (t *SessionTable) Lookup(id uuid.UUID) (*Session, bool) {
	t.mu.Lock()
	s, ok := t.m[id]
	t.mu.Unlock()
	return s, ok
}

// Remove deletes a session from the table and returns it, or nil if absent.
// The caller is responsible for closing it.
func (t *SessionTable) Remove(id uuid.UUID) *Session {
	t.mu.Lock()
	s := t.m[id]
	delete(t.m, id)
	t.mu.Unlock()
	return s
}

// Range calls fn for each live session until it returns false. The lock is
// held for the duration; fn must not call back into the table.
func (t *SessionTable) Range(fn func(*Session) bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.m {
		if !fn(s) {
			return
		}
	}
}

// Len returns the number of live sessions.
func (t *SessionTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.m)
}
