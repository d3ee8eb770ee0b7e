// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

// Package http binds the attestation handshake to HTTP. Each message is one
// POST with the message type in the URL path and the raw wire encoding as the
// body; the server assigns a session id on the first message and the client
// replays it in a header, associating the remaining messages.
package http

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/intel-secl/go-ra"
)

const (
	// SessionHeader carries the server-assigned session id.
	SessionHeader = "X-Session-Id"

	// MsgTypeHeader carries the response message type.
	MsgTypeHeader = "Message-Type"

	msgPath = "/ra/v1/msg/{type:[0-9]+}"
)

// Handler serves the responder side of the handshake. One responder is
// created per session via NewResponder and removed when its handshake
// completes, fails, or is explicitly deleted.
type Handler struct {
	// NewResponder creates the per-session protocol state machine. Must be
	// non-nil.
	NewResponder func() (*ra.Responder, error)

	// MaxContentLength bounds request bodies. Defaults to 1 MiB; negative
	// disables the check.
	MaxContentLength int64

	mu         sync.Mutex
	table      *ra.SessionTable
	responders map[uuid.UUID]*ra.Responder
}

// Router returns the HTTP routes, wrapped with panic recovery.
func (h *Handler) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc(msgPath, h.handleMsg).Methods(http.MethodPost)
	r.HandleFunc("/ra/v1/session", h.handleDelete).Methods(http.MethodDelete)
	return handlers.RecoveryHandler()(r)
}

// Sessions returns the table of live sessions.
func (h *Handler) Sessions() *ra.SessionTable {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.table == nil {
		h.table = ra.NewSessionTable()
	}
	return h.table
}

func (h *Handler) lookup(id uuid.UUID) (*ra.Responder, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	resp, ok := h.responders[id]
	return resp, ok
}

func (h *Handler) create() (*ra.Responder, error) {
	resp, err := h.NewResponder()
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	if h.responders == nil {
		h.responders = make(map[uuid.UUID]*ra.Responder)
	}
	if h.table == nil {
		h.table = ra.NewSessionTable()
	}
	h.responders[resp.Session().ID()] = resp
	h.table.Insert(resp.Session())
	h.mu.Unlock()
	return resp, nil
}

func (h *Handler) remove(id uuid.UUID) {
	h.mu.Lock()
	resp := h.responders[id]
	delete(h.responders, id)
	if h.table != nil {
		h.table.Remove(id)
	}
	h.mu.Unlock()
	if resp != nil {
		_ = resp.Close()
	}
}

func (h *Handler) handleMsg(w http.ResponseWriter, r *http.Request) {
	typ, err := strconv.ParseUint(mux.Vars(r)["type"], 10, 8)
	if err != nil {
		http.Error(w, "invalid message type", http.StatusBadRequest)
		return
	}
	msgType := ra.MsgType(typ)

	maxSize := h.MaxContentLength
	if maxSize == 0 {
		maxSize = 1 << 20
	}
	if maxSize > 0 && r.ContentLength > maxSize {
		http.Error(w, fmt.Sprintf("content too large (%d bytes)", r.ContentLength), http.StatusRequestEntityTooLarge)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "error reading request body", http.StatusBadRequest)
		return
	}

	var resp *ra.Responder
	sessionID := r.Header.Get(SessionHeader)
	if sessionID == "" {
		if resp, err = h.create(); err != nil {
			log.WithError(err).Error("error creating session")
			http.Error(w, "error creating session", http.StatusInternalServerError)
			return
		}
	} else {
		id, err := uuid.Parse(sessionID)
		if err != nil {
			http.Error(w, "invalid session id", http.StatusBadRequest)
			return
		}
		var ok bool
		if resp, ok = h.lookup(id); !ok {
			http.Error(w, "unknown session", http.StatusNotFound)
			return
		}
	}
	id := resp.Session().ID()

	respType, respBody := resp.Respond(r.Context(), msgType, body)

	// A completed or failed handshake ends the session.
	switch {
	case respType == ra.TypeError, respType == ra.TypeResult:
		h.remove(id)
	}

	w.Header().Set(SessionHeader, id.String())
	w.Header().Set(MsgTypeHeader, strconv.Itoa(int(respType)))
	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := w.Write(respBody); err != nil {
		log.WithError(err).WithField("session", id).Debug("error writing response")
	}
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.Header.Get(SessionHeader))
	if err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}
	h.remove(id)
	w.WriteHeader(http.StatusNoContent)
}
