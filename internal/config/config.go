// Package config loads rowkeep's options table (spec.md §6) the way the
// teacher loads its own: a viper singleton layered over a YAML file, with
// environment-variable overrides and an explicit precedence order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// StorageGroup maps a domain pattern to a physical table-name prefix
// (spec.md §6, `storage_groups`). Pattern is a literal domain name, a
// `/regex/`-quoted regular expression, or `*` (matches every domain).
type StorageGroup struct {
	Pattern        string
	PhysicalPrefix string
	regex          *regexp.Regexp
}

// Matches reports whether domain satisfies g's pattern.
func (g StorageGroup) Matches(domain string) bool {
	if g.Pattern == "*" {
		return true
	}
	if g.regex != nil {
		return g.regex.MatchString(domain)
	}
	return g.Pattern == domain
}

// Config is rowkeep's resolved configuration (spec.md §6).
type Config struct {
	DBName          string
	PoolIdleTimeout time.Duration
	RetryDelay      time.Duration
	RetryLimit      int
	ShowSQL         bool
	StorageGroups   []StorageGroup

	LogPath    string
	LogLevel   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

var v *viper.Viper

const envPrefix = "ROWKEEP"

// Load builds the viper singleton and returns the resolved Config.
// Precedence: flag > env > config file > default, matching viper's own
// layered-source resolution order.
func Load(explicitConfigFile string) (*Config, error) {
	v = viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("dbname", "restbase")
	v.SetDefault("pool_idle_timeout", 10000)
	v.SetDefault("retry_delay", 100)
	v.SetDefault("retry_limit", 5)
	v.SetDefault("show_sql", false)
	v.SetDefault("storage_groups", []any{})
	v.SetDefault("log.path", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)

	configFileSet := false
	if explicitConfigFile != "" {
		v.SetConfigFile(explicitConfigFile)
		configFileSet = true
	}
	if !configFileSet {
		if cwd, err := os.Getwd(); err == nil {
			for dir := cwd; dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
				candidate := filepath.Join(dir, ".rowkeep", "config.yaml")
				if _, statErr := os.Stat(candidate); statErr == nil {
					v.SetConfigFile(candidate)
					configFileSet = true
					break
				}
			}
		}
	}
	if !configFileSet {
		if home, err := os.UserHomeDir(); err == nil {
			candidate := filepath.Join(home, ".rowkeep", "config.yaml")
			if _, statErr := os.Stat(candidate); statErr == nil {
				v.SetConfigFile(candidate)
				configFileSet = true
			}
		}
	}

	if configFileSet {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", v.ConfigFileUsed(), err)
		}
	}

	dbname := expandHome(v.GetString("dbname"))
	groups, err := parseStorageGroups(v.Get("storage_groups"))
	if err != nil {
		return nil, fmt.Errorf("config: storage_groups: %w", err)
	}

	return &Config{
		DBName:          dbname,
		PoolIdleTimeout: time.Duration(v.GetInt("pool_idle_timeout")) * time.Millisecond,
		RetryDelay:      time.Duration(v.GetInt("retry_delay")) * time.Millisecond,
		RetryLimit:      v.GetInt("retry_limit"),
		ShowSQL:         v.GetBool("show_sql"),
		StorageGroups:   groups,
		LogPath:         v.GetString("log.path"),
		LogLevel:        v.GetString("log.level"),
		MaxSizeMB:       v.GetInt("log.max_size_mb"),
		MaxBackups:      v.GetInt("log.max_backups"),
		MaxAgeDays:      v.GetInt("log.max_age_days"),
	}, nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

func parseStorageGroups(raw any) ([]StorageGroup, error) {
	items, ok := raw.([]any)
	if !ok || len(items) == 0 {
		return nil, nil
	}
	groups := make([]StorageGroup, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		pattern, _ := m["domain"].(string)
		prefix, _ := m["prefix"].(string)
		if pattern == "" {
			continue
		}
		g := StorageGroup{Pattern: pattern, PhysicalPrefix: prefix}
		if strings.HasPrefix(pattern, "/") && strings.HasSuffix(pattern, "/") && len(pattern) > 1 {
			re, err := regexp.Compile(strings.Trim(pattern, "/"))
			if err != nil {
				return nil, fmt.Errorf("invalid regex domain %q: %w", pattern, err)
			}
			g.regex = re
		}
		groups = append(groups, g)
	}
	return groups, nil
}

// PhysicalPrefix resolves domain against the configured storage groups,
// falling back to domain itself when nothing matches.
func (c *Config) PhysicalPrefix(domain string) string {
	for _, g := range c.StorageGroups {
		if g.Matches(domain) {
			return g.PhysicalPrefix
		}
	}
	return domain
}
