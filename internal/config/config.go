package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models tourtrust.yml: the policy knobs for escrow, milestone split,
// trust scoring, pricing and verification validity.
type Config struct {
	Policies struct {
		Escrow struct {
			// Fraction of a contract's total reserved up front.
			ReserveFraction float64 `yaml:"reserve_fraction"`
		} `yaml:"escrow"`
		Milestones struct {
			// Fraction of the total due at booking confirmation; the
			// remainder is due on delivery.
			ConfirmationFraction float64 `yaml:"confirmation_fraction"`
		} `yaml:"milestones"`
		Scoring struct {
			Min             int `yaml:"min"`
			Max             int `yaml:"max"`
			CompletionBonus int `yaml:"completion_bonus"`
			DisputePenalty  int `yaml:"dispute_penalty"`
		} `yaml:"scoring"`
		Pricing struct {
			ServiceFee int64 `yaml:"service_fee"`
		} `yaml:"pricing"`
		Verification struct {
			ValidityDays int `yaml:"validity_days"`
		} `yaml:"verification"`
	} `yaml:"policies"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	e := c.Policies.Escrow.ReserveFraction
	if e <= 0 || e > 1 {
		return fmt.Errorf("config.policies.escrow.reserve_fraction must be in (0,1]")
	}
	m := c.Policies.Milestones.ConfirmationFraction
	if m <= 0 || m >= 1 {
		return fmt.Errorf("config.policies.milestones.confirmation_fraction must be in (0,1)")
	}
	s := c.Policies.Scoring
	if s.Min < 0 || s.Max > 100 || s.Min > s.Max {
		return fmt.Errorf("config.policies.scoring band must satisfy 0 <= min <= max <= 100")
	}
	if s.CompletionBonus < 0 {
		return fmt.Errorf("config.policies.scoring.completion_bonus must be >= 0")
	}
	if s.DisputePenalty < 0 {
		return fmt.Errorf("config.policies.scoring.dispute_penalty must be >= 0")
	}
	if c.Policies.Pricing.ServiceFee < 0 {
		return fmt.Errorf("config.policies.pricing.service_fee must be >= 0")
	}
	if c.Policies.Verification.ValidityDays < 0 {
		return fmt.Errorf("config.policies.verification.validity_days must be >= 0")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "tourtrust.yml")
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with tt config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `policies:
  escrow:
    # share of the contract total reserved in escrow up front
    reserve_fraction: 0.10

  milestones:
    # share of the total due at booking confirmation; remainder on delivery
    confirmation_fraction: 0.20

  scoring:
    # trust score band assigned on approval
    min: 80
    max: 100
    # score nudge applied to parties on successful contract completion
    completion_bonus: 1
    # score deduction applied when a dispute resolves as a refund
    dispute_penalty: 5

  pricing:
    # flat platform fee added at checkout
    service_fee: 299

  verification:
    # verified records expire after this window; 0 disables expiry sweeps
    validity_days: 365
`
