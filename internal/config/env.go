package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LookupFunc reads an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// envOverrides maps VT_* variables onto configuration fields.
var envOverrides = []struct {
	key string
	set func(c *Config, v string)
}{
	{"VT_INPUT_FILE", func(c *Config, v string) { c.InputFile = v }},
	{"VT_RAW_OUTPUT_DIR", func(c *Config, v string) { c.RawOutputDir = v }},
	{"VT_NORMALIZED_OUTPUT_DIR", func(c *Config, v string) { c.NormalizedOutputDir = v }},
	{"VT_JSONLD_FIRMS", func(c *Config, v string) { c.JSONLDFirms = v }},
	{"VT_JSONLD_DATASET", func(c *Config, v string) { c.JSONLDDataset = v }},
	{"VT_JSONLD_MANIFEST", func(c *Config, v string) { c.JSONLDManifest = v }},
	{"VT_PUBLIC_FILES_BASE", func(c *Config, v string) { c.PublicFilesBase = v }},
	{"VT_PUBLIC_ID_BASE", func(c *Config, v string) { c.PublicIDBase = v }},
	{"VT_HEAD_OFFICE_CODE", func(c *Config, v string) { c.HeadOfficeCode = v }},
	{"VT_RULES_FILE", func(c *Config, v string) { c.RulesFile = v }},
	{"VT_SIGNING_KEY_FILE", func(c *Config, v string) { c.Signing.KeyFile = v }},
}

// LoadEnvFiles loads .env style files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadEnvFiles(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}

	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}

			return fmt.Errorf("loading %s: %w", p, err)
		}
	}

	return nil
}

// ApplyEnv overrides configuration fields from VT_* variables. Variables
// that are set to an empty string are treated as unset.
func (c *Config) ApplyEnv(lookup LookupFunc) {
	if lookup == nil {
		return
	}

	for _, o := range envOverrides {
		if v, ok := lookup(o.key); ok && strings.TrimSpace(v) != "" {
			o.set(c, v)
		}
	}
}

// SigningKeyPEM returns the PEM text held in the configured key variable.
func (c *Config) SigningKeyPEM(lookup LookupFunc) string {
	if lookup == nil || c.Signing.KeyEnv == "" {
		return ""
	}

	v, _ := lookup(c.Signing.KeyEnv)

	return strings.TrimSpace(v)
}

// SourceDateEpoch reads SOURCE_DATE_EPOCH. The boolean is false when the
// variable is unset, in which case the caller uses the wall clock.
func SourceDateEpoch(lookup LookupFunc) (time.Time, bool, error) {
	if lookup == nil {
		return time.Time{}, false, nil
	}

	v, ok := lookup("SOURCE_DATE_EPOCH")
	if !ok || strings.TrimSpace(v) == "" {
		return time.Time{}, false, nil
	}

	secs, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("SOURCE_DATE_EPOCH: %w", err)
	}

	return time.Unix(secs, 0).UTC(), true, nil
}
