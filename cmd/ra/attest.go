// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package main

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/intel-secl/go-ra"
	rahttp "github.com/intel-secl/go-ra/http"
	"github.com/intel-secl/go-ra/ratest"
)

var attestCmd = &cobra.Command{
	Use:   "attest",
	Short: "Run the attesting side of a handshake against a responder",
	Long: `Runs a full handshake against a responder service using a simulated
evidence producer and prints the provisioned secret.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := currentConfig()
		if err != nil {
			return err
		}

		variant, err := parseVariant(conf.Initiator.Variant)
		if err != nil {
			return err
		}
		gid, err := parseGID(conf.Initiator.GID)
		if err != nil {
			return err
		}
		if conf.Initiator.ServiceKeyFile == "" {
			return fmt.Errorf("initiator.service_key_file is required")
		}
		serviceKey, err := loadServiceKey(conf.Initiator.ServiceKeyFile)
		if err != nil {
			return err
		}

		transport := &rahttp.Transport{Base: conf.Initiator.ServerURL}
		defer func() { _ = transport.Close() }()

		log.WithFields(log.Fields{"server": conf.Initiator.ServerURL, "variant": variant}).Info("starting handshake")
		secret, err := ra.Attest(cmd.Context(), transport, ra.InitiatorConfig{
			ServiceKey: serviceKey,
			Evidence:   &ratest.Producer{GID: gid, QuoteSigLen: 680},
			Variant:    variant,
		})
		if err != nil {
			return err
		}

		log.Info("attestation succeeded")
		fmt.Printf("%s\n", secret)
		return nil
	},
}
