// Package config loads the reader configuration.
//
// Configuration is read from a YAML file with environment variable expansion
// (${VAR} or $VAR). Every field has a default, so the tool also runs without
// a file.
//
// # Example Configuration
//
//	reader:
//	  name: ${EMV_READER}      # substring of the PC/SC reader name, first reader if empty
//	  waitTimeout: 30s         # negative waits forever
//	  protocol: any            # t0, t1 or any
//
//	card:
//	  cla: "00"
//	  candidateAIDs:
//	    - A0000000032010
//	    - A0000000031010
//	    - A0000000041010
//
//	discovery:
//	  maxDirectoryRecords: 30
//	  maxGetResponse: 16
//	  abortOnRecordError: false
//	  trace: false
//
//	log:
//	  level: info              # debug, info, warn or error
//	  format: text             # text or json
package config

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gregLibert/emv-reader/pkg/emv"
	"github.com/gregLibert/emv-reader/pkg/iso7816"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure
type Config struct {
	Reader    ReaderConfig    `yaml:"reader"`
	Card      CardConfig      `yaml:"card"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Log       LogConfig       `yaml:"log"`
}

// ReaderConfig selects the PC/SC reader and how to connect to the card.
type ReaderConfig struct {
	Name        string        `yaml:"name"`
	WaitTimeout time.Duration `yaml:"waitTimeout"`
	Protocol    string        `yaml:"protocol"`
}

// CardConfig holds the command class and the AIDs tried without a PSE.
type CardConfig struct {
	CLA           string   `yaml:"cla"`
	CandidateAIDs []string `yaml:"candidateAIDs"`
}

// DiscoveryConfig tunes the discovery flow.
type DiscoveryConfig struct {
	MaxDirectoryRecords int  `yaml:"maxDirectoryRecords"`
	MaxGetResponse      int  `yaml:"maxGetResponse"`
	AbortOnRecordError  bool `yaml:"abortOnRecordError"`
	Trace               bool `yaml:"trace"`
}

// LogConfig holds slog settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Reader.WaitTimeout == 0 {
		c.Reader.WaitTimeout = 30 * time.Second
	}
	if c.Reader.Protocol == "" {
		c.Reader.Protocol = "any"
	}
	if c.Card.CLA == "" {
		c.Card.CLA = "00"
	}
	if len(c.Card.CandidateAIDs) == 0 {
		for _, aid := range emv.DefaultCandidateAIDs {
			c.Card.CandidateAIDs = append(c.Card.CandidateAIDs, strings.ToUpper(hex.EncodeToString(aid)))
		}
	}
	if c.Discovery.MaxDirectoryRecords == 0 {
		c.Discovery.MaxDirectoryRecords = emv.DefaultMaxDirectoryRecords
	}
	if c.Discovery.MaxGetResponse == 0 {
		c.Discovery.MaxGetResponse = iso7816.DefaultMaxGetResponse
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks every field. Flags applied over a loaded file go through
// it again.
func (c *Config) Validate() error {
	switch c.Reader.Protocol {
	case "t0", "t1", "any":
	default:
		return fmt.Errorf("reader.protocol must be 't0', 't1' or 'any', got '%s'", c.Reader.Protocol)
	}

	if _, err := c.Card.Class(); err != nil {
		return fmt.Errorf("card.cla: %w", err)
	}
	if _, err := c.Card.AIDs(); err != nil {
		return fmt.Errorf("card.candidateAIDs: %w", err)
	}

	if c.Discovery.MaxDirectoryRecords < 1 || c.Discovery.MaxDirectoryRecords > 255 {
		return fmt.Errorf("discovery.maxDirectoryRecords must be between 1 and 255, got %d", c.Discovery.MaxDirectoryRecords)
	}
	if c.Discovery.MaxGetResponse < 1 {
		return fmt.Errorf("discovery.maxGetResponse must be positive, got %d", c.Discovery.MaxGetResponse)
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be 'text' or 'json', got '%s'", c.Log.Format)
	}

	return nil
}

// Class decodes the configured CLA byte.
func (c CardConfig) Class() (iso7816.Class, error) {
	raw, err := hex.DecodeString(c.CLA)
	if err != nil || len(raw) != 1 {
		return iso7816.Class{}, fmt.Errorf("want one hex byte, got %q", c.CLA)
	}
	return iso7816.NewClass(raw[0])
}

// AIDs decodes the candidate AIDs. An AID is 5 to 16 bytes (ISO/IEC 7816-5).
func (c CardConfig) AIDs() ([][]byte, error) {
	out := make([][]byte, 0, len(c.CandidateAIDs))
	for _, s := range c.CandidateAIDs {
		aid, err := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
		if err != nil {
			return nil, fmt.Errorf("aid %q: %w", s, err)
		}
		if len(aid) < 5 || len(aid) > 16 {
			return nil, fmt.Errorf("aid %q must be 5 to 16 bytes, got %d", s, len(aid))
		}
		out = append(out, aid)
	}
	return out, nil
}

// SlogLevel maps the level name onto a slog.Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, err
	}
	return level, nil
}
