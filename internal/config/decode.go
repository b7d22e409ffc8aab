package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DecodeConfig holds configuration for the decode and inspect commands.
type DecodeConfig struct {
	// Metadata is a file holding a metadata blob, raw or 0x hex. When empty
	// the metadata is fetched from Endpoint.
	Metadata string
	Endpoint string
	// At pins the metadata to a block hash when fetching.
	At       string
	Kind     string
	Input    string
	Pallet   string
	LogLevel string
}

// Decode kinds.
const (
	DecodeExtrinsic = "extrinsic"
	DecodeEvents    = "events"
	DecodeXcm       = "xcm"
	DecodeHrmp      = "hrmp"
	DecodeBlock     = "block"
)

// LoadDecode merges config file, environment variables, and flags into DecodeConfig.
func LoadDecode(cfgFile string, flags *pflag.FlagSet) (DecodeConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("PARASCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("kind", DecodeExtrinsic)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return DecodeConfig{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if err := readConfig(v, cfgFile); err != nil {
		return DecodeConfig{}, err
	}

	cfg := DecodeConfig{
		Metadata: v.GetString("metadata"),
		Endpoint: v.GetString("endpoint"),
		At:       v.GetString("at"),
		Kind:     strings.ToLower(v.GetString("kind")),
		Input:    v.GetString("input"),
		Pallet:   v.GetString("pallet"),
		LogLevel: v.GetString("log-level"),
	}
	if cfg.Metadata == "" && cfg.Endpoint == "" {
		return DecodeConfig{}, fmt.Errorf("metadata file or endpoint is required")
	}

	switch cfg.Kind {
	case DecodeExtrinsic, DecodeEvents, DecodeXcm, DecodeHrmp, DecodeBlock:
	default:
		return DecodeConfig{}, fmt.Errorf("unknown decode kind %q", cfg.Kind)
	}

	return cfg, nil
}
