package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	LogLevel       string
	CacheDir       string
	Pacing         time.Duration
	ChannelSize    int
	QueueSize      int
	MaxRetries     int
	RetryBackoff   time.Duration
	MetadataMemo   int
	Out            string
	PGDSN          string
	MetricsAddr    string
	Start          string
	StartTimestamp string
	Checkpoint     string
	Groups         []GroupConfig
}

// GroupConfig is one relay chain and its parachains. The sovereign index of
// a group is its position in the list.
type GroupConfig struct {
	Env      string        `mapstructure:"env"`
	Parent   string        `mapstructure:"parent"`
	Children []ChildConfig `mapstructure:"children"`
}

type ChildConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	ParaID   uint32 `mapstructure:"para_id"`
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PARASCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("log-level", "info")
	v.SetDefault("cache-dir", "./data/cache")
	v.SetDefault("pacing", 6*time.Second)
	v.SetDefault("channel-size", 16)
	v.SetDefault("queue-size", 0)
	v.SetDefault("max-retries", 6)
	v.SetDefault("retry-backoff", time.Second)
	v.SetDefault("metadata-memo", 8)
	v.SetDefault("start", "live")
	v.SetDefault("env", "polkadot")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if err := readConfig(v, cfgFile); err != nil {
		return Config{}, err
	}

	groups, err := loadGroups(v)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		LogLevel:       v.GetString("log-level"),
		CacheDir:       v.GetString("cache-dir"),
		Pacing:         v.GetDuration("pacing"),
		ChannelSize:    v.GetInt("channel-size"),
		QueueSize:      v.GetInt("queue-size"),
		MaxRetries:     v.GetInt("max-retries"),
		RetryBackoff:   v.GetDuration("retry-backoff"),
		MetadataMemo:   v.GetInt("metadata-memo"),
		Out:            v.GetString("out"),
		PGDSN:          v.GetString("pg-dsn"),
		MetricsAddr:    v.GetString("metrics-addr"),
		Start:          v.GetString("start"),
		StartTimestamp: v.GetString("start-timestamp"),
		Checkpoint:     v.GetString("checkpoint"),
		Groups:         groups,
	}

	return cfg, nil
}

func readConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
		return nil
	}
	v.SetConfigName("config")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

// loadGroups reads the groups list from the config file. Without one, the
// parent and child flags describe a single group.
func loadGroups(v *viper.Viper) ([]GroupConfig, error) {
	var groups []GroupConfig
	if v.IsSet("groups") {
		if err := v.UnmarshalKey("groups", &groups); err != nil {
			return nil, fmt.Errorf("decode groups: %w", err)
		}
	}
	env := v.GetString("env")
	for i := range groups {
		if groups[i].Env == "" {
			groups[i].Env = env
		}
	}
	if len(groups) > 0 {
		return groups, nil
	}

	parent := v.GetString("parent")
	if parent == "" {
		return nil, nil
	}
	group := GroupConfig{Env: env, Parent: parent}
	for _, entry := range getStringSlice(v, "child") {
		child, err := parseChild(entry)
		if err != nil {
			return nil, err
		}
		group.Children = append(group.Children, child)
	}
	return []GroupConfig{group}, nil
}

// parseChild reads "para_id=endpoint".
func parseChild(entry string) (ChildConfig, error) {
	id, endpoint, ok := strings.Cut(entry, "=")
	if !ok {
		return ChildConfig{}, fmt.Errorf("child %q: expected para_id=endpoint", entry)
	}
	n, err := strconv.ParseUint(strings.TrimSpace(id), 10, 32)
	if err != nil {
		return ChildConfig{}, fmt.Errorf("child %q: invalid para id: %w", entry, err)
	}
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return ChildConfig{}, fmt.Errorf("child %q: endpoint is required", entry)
	}
	return ChildConfig{Endpoint: endpoint, ParaID: uint32(n)}, nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
