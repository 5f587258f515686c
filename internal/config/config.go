// Package config provides configuration management for the register pipeline.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"tier0/internal/logger"
	"tier0/internal/signer"
	"tier0/pkg/digest"
)

// Defaults applied before the YAML document is decoded.
const (
	DefaultHeadOfficeCode = "HEAD OFFICE"
	DefaultWorkers        = 4
	DefaultKeyEnv         = "VT_PRIVATE_KEY_PEM"
	DefaultProducer       = "tier0-sra-pipeline"
	DefaultDatasetID      = "https://api.veritrustgroup.org/dataset/tier0-sra"
)

// Configuration validation errors.
var (
	ErrMissingInputFile       = errors.New("input_file is required")
	ErrMissingRawOutputDir    = errors.New("raw_output_dir is required")
	ErrMissingNormalizedDir   = errors.New("normalized_output_dir is required")
	ErrMissingArtifactPath    = errors.New("jsonld_firms, jsonld_dataset and jsonld_manifest are required")
	ErrDuplicateArtifactPath  = errors.New("artifact output paths must be distinct")
	ErrMissingIDBase          = errors.New("public_id_base is required")
	ErrMissingFilesBase       = errors.New("public_files_base is required")
	ErrInvalidBaseURL         = errors.New("base URL must be an absolute http(s) URL")
	ErrMissingHeadOfficeCode  = errors.New("head_office_code must not be blank")
	ErrMissingRulesFile       = errors.New("rules_file is required")
	ErrInvalidWorkers         = errors.New("workers must be at least 1")
	ErrInvalidDigestAlgorithm = errors.New("manifest.digest_algorithm must be 'sha256' or 'blake3'")
	ErrInvalidSignAlgorithm   = errors.New("signing.algorithm must be 'RSA-SHA256' or 'Ed25519'")
	ErrInvalidLogLevel        = errors.New("logging.level must be one of: debug, info, warn, error")
	ErrInvalidLogFormat       = errors.New("logging.format must be 'text' or 'json'")
)

// Config represents the complete pipeline configuration.
type Config struct {
	InputFile           string `yaml:"input_file"`
	RawOutputDir        string `yaml:"raw_output_dir"`
	NormalizedOutputDir string `yaml:"normalized_output_dir"`
	JSONLDFirms         string `yaml:"jsonld_firms"`
	JSONLDDataset       string `yaml:"jsonld_dataset"`
	JSONLDManifest      string `yaml:"jsonld_manifest"`
	PublicFilesBase     string `yaml:"public_files_base"`
	PublicIDBase        string `yaml:"public_id_base"`
	HeadOfficeCode      string `yaml:"head_office_code"`
	RulesFile           string `yaml:"rules_file"`
	Workers             int    `yaml:"workers"`

	Signing  SigningConfig  `yaml:"signing"`
	Manifest ManifestConfig `yaml:"manifest"`
	Report   ReportConfig   `yaml:"report"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// SigningConfig selects the manifest signing key. Signing is requested when
// key_file is set or the key_env variable is non-empty.
type SigningConfig struct {
	KeyFile         string `yaml:"key_file"`
	KeyEnv          string `yaml:"key_env"`
	KeyRef          string `yaml:"key_ref"`
	Algorithm       string `yaml:"algorithm"`
	AgeIdentityFile string `yaml:"age_identity_file"`
}

// ManifestConfig controls manifest construction.
type ManifestConfig struct {
	DigestAlgorithm string `yaml:"digest_algorithm"`
	Producer        string `yaml:"producer"`
	DatasetID       string `yaml:"dataset_id"`
}

// ReportConfig lists optional validation report outputs.
type ReportConfig struct {
	Markdown string `yaml:"markdown"`
	XLSX     string `yaml:"xlsx"`
}

// LedgerConfig points at the sqlite run ledger. Empty disables it.
type LedgerConfig struct {
	Path string `yaml:"path"`
}

// MetricsConfig points at a node-exporter textfile. Empty disables it.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// LoggingConfig defines logging behavior.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a configuration holding only default values.
func Default() *Config {
	return &Config{
		HeadOfficeCode: DefaultHeadOfficeCode,
		Workers:        DefaultWorkers,
		Signing: SigningConfig{
			KeyEnv: DefaultKeyEnv,
		},
		Manifest: ManifestConfig{
			DigestAlgorithm: string(digest.SHA256),
			Producer:        DefaultProducer,
			DatasetID:       DefaultDatasetID,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: logger.FormatText,
		},
	}
}

// LoadConfig loads configuration from a YAML file, applies VT_* environment
// overrides and validates the result.
func LoadConfig(filepath string) (*Config, error) {
	return LoadConfigWithEnv(filepath, os.LookupEnv)
}

// LoadConfigWithEnv is LoadConfig with an injectable environment.
func LoadConfigWithEnv(filepath string, lookup LookupFunc) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.ApplyEnv(lookup)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves configuration to YAML file.
func (c *Config) SaveConfig(filepath string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filepath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration and normalizes the base URLs to end
// with a slash.
func (c *Config) Validate() error {
	if c.InputFile == "" {
		return ErrMissingInputFile
	}

	if c.RawOutputDir == "" {
		return ErrMissingRawOutputDir
	}

	if c.NormalizedOutputDir == "" {
		return ErrMissingNormalizedDir
	}

	if c.JSONLDFirms == "" || c.JSONLDDataset == "" || c.JSONLDManifest == "" {
		return ErrMissingArtifactPath
	}

	if c.JSONLDFirms == c.JSONLDDataset || c.JSONLDFirms == c.JSONLDManifest || c.JSONLDDataset == c.JSONLDManifest {
		return ErrDuplicateArtifactPath
	}

	if c.PublicIDBase == "" {
		return ErrMissingIDBase
	}

	if c.PublicFilesBase == "" {
		return ErrMissingFilesBase
	}

	idBase, err := normalizeBase(c.PublicIDBase)
	if err != nil {
		return fmt.Errorf("public_id_base: %w", err)
	}

	filesBase, err := normalizeBase(c.PublicFilesBase)
	if err != nil {
		return fmt.Errorf("public_files_base: %w", err)
	}

	c.PublicIDBase, c.PublicFilesBase = idBase, filesBase

	if strings.TrimSpace(c.HeadOfficeCode) == "" {
		return ErrMissingHeadOfficeCode
	}

	if c.RulesFile == "" {
		return ErrMissingRulesFile
	}

	if c.Workers < 1 {
		return ErrInvalidWorkers
	}

	if _, err := digest.ParseAlgorithm(c.Manifest.DigestAlgorithm); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidDigestAlgorithm, c.Manifest.DigestAlgorithm)
	}

	if c.Signing.Algorithm != "" {
		if _, err := signer.ParseAlgorithm(c.Signing.Algorithm); err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidSignAlgorithm, c.Signing.Algorithm)
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return ErrInvalidLogLevel
	}

	if c.Logging.Format != logger.FormatText && c.Logging.Format != logger.FormatJSON {
		return ErrInvalidLogFormat
	}

	return nil
}

func normalizeBase(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidBaseURL, err)
	}

	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidBaseURL, raw)
	}

	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}

	return raw, nil
}

// String returns a string representation of the config.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Input: %s, Firms: %s, IDBase: %s, Workers: %d}",
		c.InputFile,
		c.JSONLDFirms,
		c.PublicIDBase,
		c.Workers,
	)
}
