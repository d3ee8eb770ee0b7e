// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/intel-secl/go-ra"
	rahttp "github.com/intel-secl/go-ra/http"
	"github.com/intel-secl/go-ra/ratest"
	"github.com/intel-secl/go-ra/verification"
)

var responderCmd = &cobra.Command{
	Use:   "responder",
	Short: "Serve the verifying side of the handshake over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := currentConfig()
		if err != nil {
			return err
		}
		return runResponder(cmd.Context(), conf)
	},
}

func runResponder(ctx context.Context, conf Config) error {
	variant, err := parseVariant(conf.Responder.Variant)
	if err != nil {
		return err
	}
	quoteType, err := parseQuoteType(conf.Responder.QuoteType)
	if err != nil {
		return err
	}
	spid, err := parseSpid(conf.Responder.SPID)
	if err != nil {
		return err
	}

	key, err := responderKey(conf.Responder.KeyFile)
	if err != nil {
		return err
	}

	var verifier ra.QuoteVerifier
	if conf.Responder.IAS.BaseURL != "" {
		verifier = verification.NewClient(conf.Responder.IAS.BaseURL, conf.Responder.IAS.APIKey, nil)
	} else {
		log.Warn("no verification service configured, accepting all quotes")
		verifier = &ratest.Verifier{}
	}

	handler := &rahttp.Handler{
		NewResponder: func() (*ra.Responder, error) {
			return ra.NewResponder(ra.ResponderConfig{
				SigningKey: key,
				SPID:       spid,
				QuoteType:  quoteType,
				Variant:    variant,
				Verifier:   verifier,
				Secret:     []byte(conf.Responder.Secret),
			})
		},
	}

	srv := &http.Server{
		Addr:              conf.Responder.Listen,
		Handler:           handlers.CombinedLoggingHandler(log.StandardLogger().Writer(), handler.Router()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	log.WithFields(log.Fields{"listen": conf.Responder.Listen, "variant": variant}).Info("responder listening")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case err := <-errc:
		return err
	case <-stop:
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	handler.Sessions().Range(func(s *ra.Session) bool {
		_ = s.Close()
		return true
	})
	return nil
}

// responderKey loads the long-term signing key, generating and persisting a
// new one when the file does not exist yet.
func responderKey(path string) (*ecdsa.PrivateKey, error) {
	if path == "" {
		log.Warn("no key file configured, using an ephemeral signing key")
		return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	}
	if _, err := os.Stat(path); err == nil {
		return loadSigningKey(path)
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, err
	}
	out := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return nil, err
	}
	log.WithField("file", path).Info("generated signing key")
	return key, nil
}
