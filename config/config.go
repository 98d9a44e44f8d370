// Package config loads the terminal-side configuration a transaction is run
// with: the CA public key table, a tag dictionary for diagnostics, and the
// terminal settings (capabilities, TVR seed, randomness policy, default
// tags) a kernel session is constructed from.
package config

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	emv "github.com/cardterm/emvkernel/core"
)

// Config is the full on-disk configuration: terminal settings plus the
// certificate-authority key table it trusts.
type Config struct {
	Terminal TerminalConfig       `yaml:"terminal"`
	CAKeys   map[string]CAKeyFile `yaml:"ca_keys"`
	Tags     map[string]string    `yaml:"tag_dictionary"`
}

// TerminalConfig is the yaml shape of emv.Settings.
type TerminalConfig struct {
	UseRandom    *bool             `yaml:"use_random"`
	Capabilities CapabilitiesYAML  `yaml:"capabilities"`
	TVR          TVRYAML           `yaml:"tvr_seed"`
	DefaultTags  map[string]string `yaml:"default_tags"`
}

// CapabilitiesYAML mirrors emv.Capabilities.
type CapabilitiesYAML struct {
	SDA                    bool `yaml:"sda"`
	DDA                    bool `yaml:"dda"`
	CDA                    bool `yaml:"cda"`
	CardholderVerification bool `yaml:"cardholder_verification"`
	TerminalRiskManagement bool `yaml:"terminal_risk_management"`
	IssuerAuthentication   bool `yaml:"issuer_authentication"`
}

// TVRYAML mirrors the subset of emv.TVR a terminal seeds at session start
// (script-processing and cryptogram-related bits are set by the kernel
// itself during a transaction, not configured up front).
// TerminalRiskManagementNotPerformed has no emv.TVR counterpart: it is
// accepted in the file but not carried into the settings.
type TVRYAML struct {
	TerminalRiskManagementNotPerformed bool `yaml:"terminal_risk_management_not_performed"`
	DefaultTDOLUsed                    bool `yaml:"default_tdol_used"`
}

// CAKeyFile is one CA public key entry, indexed within Config.CAKeys by its
// RID hex string and keyed internally by CA PK index.
type CAKeyFile struct {
	Index   string `yaml:"index"`
	Modulus string `yaml:"modulus_hex"`
	Exp     string `yaml:"exponent_hex"`
}

// Load reads and validates a configuration file, returning the terminal
// settings, CA key table, and tag dictionary ready for session construction.
func Load(path string) (emv.Settings, emv.CAKeyTable, emv.TagDictionary, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return emv.Settings{}, nil, nil, fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return emv.Settings{}, nil, nil, fmt.Errorf("parse config yaml: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return emv.Settings{}, nil, nil, err
	}

	settings, err := cfg.toSettings()
	if err != nil {
		return emv.Settings{}, nil, nil, err
	}

	caKeys, err := cfg.toCAKeyTable()
	if err != nil {
		return emv.Settings{}, nil, nil, err
	}

	dict := make(emv.TagDictionary, len(cfg.Tags))
	for tag, name := range cfg.Tags {
		dict[strings.ToUpper(tag)] = name
	}

	return settings, caKeys, dict, nil
}

func (c *Config) validate() error {
	if c.Terminal.UseRandom == nil {
		return fmt.Errorf("config.terminal.use_random is required")
	}
	for rid, entry := range c.CAKeys {
		if strings.TrimSpace(entry.Index) == "" {
			return fmt.Errorf("config.ca_keys.%s.index is required", rid)
		}
		if strings.TrimSpace(entry.Modulus) == "" {
			return fmt.Errorf("config.ca_keys.%s.modulus_hex is required", rid)
		}
		if strings.TrimSpace(entry.Exp) == "" {
			return fmt.Errorf("config.ca_keys.%s.exponent_hex is required", rid)
		}
	}
	return nil
}

func (c *Config) toSettings() (emv.Settings, error) {
	tvr := emv.TVR{
		DefaultTDOLUsed: c.Terminal.TVR.DefaultTDOLUsed,
	}
	return emv.Settings{
		UseRandom: *c.Terminal.UseRandom,
		Capabilities: emv.Capabilities{
			SDA:                    c.Terminal.Capabilities.SDA,
			DDA:                    c.Terminal.Capabilities.DDA,
			CDA:                    c.Terminal.Capabilities.CDA,
			CardholderVerification: c.Terminal.Capabilities.CardholderVerification,
			TerminalRiskManagement: c.Terminal.Capabilities.TerminalRiskManagement,
			IssuerAuthentication:   c.Terminal.Capabilities.IssuerAuthentication,
		},
		TVR:         tvr,
		DefaultTags: c.Terminal.DefaultTags,
	}, nil
}

func (c *Config) toCAKeyTable() (emv.CAKeyTable, error) {
	table := make(emv.CAKeyTable, len(c.CAKeys))
	for rid, entry := range c.CAKeys {
		modulus, err := hex.DecodeString(entry.Modulus)
		if err != nil {
			return nil, fmt.Errorf("config.ca_keys.%s.modulus_hex: %w", rid, err)
		}
		exponent, err := hex.DecodeString(entry.Exp)
		if err != nil {
			return nil, fmt.Errorf("config.ca_keys.%s.exponent_hex: %w", rid, err)
		}

		ridHex := strings.ToUpper(rid)
		indexHex := strings.ToUpper(entry.Index)
		if table[ridHex] == nil {
			table[ridHex] = make(map[string]emv.RSAPublicKey)
		}
		table[ridHex][indexHex] = emv.RSAPublicKey{N: modulus, E: exponent}
	}
	return table, nil
}
