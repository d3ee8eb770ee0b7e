// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package main

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	yaml "gopkg.in/yaml.v2"

	"github.com/intel-secl/go-ra"
)

// Config is the YAML configuration shared by the responder and attest
// commands.
type Config struct {
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`

	Responder struct {
		Listen    string `yaml:"listen" mapstructure:"listen"`
		KeyFile   string `yaml:"key_file" mapstructure:"key_file"`
		SPID      string `yaml:"spid" mapstructure:"spid"`
		QuoteType string `yaml:"quote_type" mapstructure:"quote_type"`
		Variant   string `yaml:"variant" mapstructure:"variant"`
		Secret    string `yaml:"secret" mapstructure:"secret"`

		IAS struct {
			BaseURL string `yaml:"base_url" mapstructure:"base_url"`
			APIKey  string `yaml:"api_key" mapstructure:"api_key"`
		} `yaml:"ias" mapstructure:"ias"`
	} `yaml:"responder" mapstructure:"responder"`

	Initiator struct {
		ServerURL      string `yaml:"server_url" mapstructure:"server_url"`
		ServiceKeyFile string `yaml:"service_key_file" mapstructure:"service_key_file"`
		Variant        string `yaml:"variant" mapstructure:"variant"`
		GID            string `yaml:"gid" mapstructure:"gid"`
	} `yaml:"initiator" mapstructure:"initiator"`
}

func defaultConfig() Config {
	var c Config
	c.LogLevel = "info"
	c.Responder.Listen = ":8443"
	c.Responder.QuoteType = "unlinkable"
	c.Responder.Variant = "unilateral"
	c.Initiator.ServerURL = "http://localhost:8443"
	c.Initiator.Variant = "unilateral"
	c.Initiator.GID = "00000b0a"
	return c
}

func loadConfig(path string) error {
	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("ra")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/ra")
	}
	viper.SetEnvPrefix("RA")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			log.Debug("no config file found, using defaults")
			return nil
		}
		return fmt.Errorf("error reading config: %w", err)
	}
	log.WithField("file", viper.ConfigFileUsed()).Debug("loaded config")
	return nil
}

func currentConfig() (Config, error) {
	c := defaultConfig()
	if err := viper.Unmarshal(&c); err != nil {
		return c, fmt.Errorf("error parsing config: %w", err)
	}
	return c, nil
}

func parseVariant(s string) (ra.Variant, error) {
	switch s {
	case "", "unilateral":
		return ra.Unilateral, nil
	case "mutual":
		return ra.Mutual, nil
	default:
		return 0, fmt.Errorf("unrecognized variant %q", s)
	}
}

func parseQuoteType(s string) (uint16, error) {
	switch s {
	case "", "unlinkable":
		return ra.QuoteUnlinkable, nil
	case "linkable":
		return ra.QuoteLinkable, nil
	default:
		return 0, fmt.Errorf("unrecognized quote type %q", s)
	}
}

func parseSpid(s string) (ra.Spid, error) {
	var spid ra.Spid
	if s == "" {
		return spid, nil
	}
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != ra.SpidSize {
		return spid, fmt.Errorf("spid must be %d hex-encoded bytes", ra.SpidSize)
	}
	copy(spid[:], b)
	return spid, nil
}

func parseGID(s string) (ra.GroupID, error) {
	var gid ra.GroupID
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != ra.GroupIDSize {
		return gid, fmt.Errorf("gid must be %d hex-encoded bytes", ra.GroupIDSize)
	}
	// Hex is written big-endian; the wire carries it little-endian.
	for i, v := range b {
		gid[len(gid)-1-i] = v
	}
	return gid, nil
}

func loadSigningKey(path string) (*ecdsa.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("%s: no PEM block", path)
	}
	switch block.Type {
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		ec, ok := key.(*ecdsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%s: not an EC key", path)
		}
		return ec, nil
	default:
		return nil, fmt.Errorf("%s: unexpected PEM block %q", path, block.Type)
	}
}

func loadServiceKey(path string) (*ecdsa.PublicKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("%s: no PEM block", path)
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	ec, ok := key.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%s: not an EC public key", path)
	}
	return ec, nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration helpers",
}

var configInitCmd = &cobra.Command{
	Use:   "init [file]",
	Short: "Write a default config file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "ra.yaml"
		if len(args) == 1 {
			path = args[0]
		}
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}

		out, err := yaml.Marshal(defaultConfig())
		if err != nil {
			return err
		}
		if err := os.WriteFile(path, out, 0o600); err != nil {
			return err
		}
		log.WithField("file", path).Info("wrote default config")
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
}
