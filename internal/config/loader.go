package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// ConfigFileName is the name of the config file.
const ConfigFileName = "rosterwatch.yaml"

// ConfigFileNameAlt is the alternate name of the config file.
const ConfigFileNameAlt = "rosterwatch.yml"

// envPrefix namespaces environment overrides (ROSTERWATCH_TARGET__PASSWORD).
const envPrefix = "ROSTERWATCH_"

// Load reads configuration from the given file path, or from the first
// config file found walking up from the working directory when path is
// empty. Environment variables override file values. A missing config file
// is not an error; defaults apply.
func Load(path string) (*Config, error) {
	if path == "" {
		if dir, err := os.Getwd(); err == nil {
			path = findConfigFile(dir)
		}
	}

	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config %s: %w", path, err)
		}
	}

	// ROSTERWATCH_TARGET__PASSWORD=x overrides target.password. A double
	// underscore separates nesting levels so keys like state_path survive.
	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, envPrefix)
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()
	expandCredentials(&cfg)
	return &cfg, nil
}

// ApplyFlags overlays explicitly set CLI flags on a loaded config. Flags
// take precedence over both the file and environment overrides.
func ApplyFlags(cfg *Config, flags *pflag.FlagSet) {
	if flags == nil {
		return
	}
	if flags.Changed("state-path") {
		if v, err := flags.GetString("state-path"); err == nil {
			cfg.StatePath = v
		}
	}
	if flags.Changed("verbose") {
		if v, err := flags.GetBool("verbose"); err == nil {
			cfg.Verbose = v
		}
	}
}

// findConfigFile walks up from dir looking for a config file. Returns empty
// string if none is found.
func findConfigFile(dir string) string {
	for {
		for _, name := range []string{ConfigFileName, ConfigFileNameAlt} {
			p := filepath.Join(dir, name)
			if _, err := os.Stat(p); err == nil {
				return p
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} patterns with environment variable values,
// leaving unknown references untouched.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := match[2 : len(match)-1]
		if val := os.Getenv(name); val != "" {
			return val
		}
		return match
	})
}

// expandCredentials expands env references in sensitive fields so secrets
// can stay out of the config file.
func expandCredentials(c *Config) {
	if c.Target != nil {
		c.Target.User = expandEnvVars(c.Target.User)
		c.Target.Password = expandEnvVars(c.Target.Password)
		c.Target.Host = expandEnvVars(c.Target.Host)
		c.Target.Database = expandEnvVars(c.Target.Database)
	}
	if c.SMTP != nil {
		c.SMTP.Username = expandEnvVars(c.SMTP.Username)
		c.SMTP.Password = expandEnvVars(c.SMTP.Password)
		c.SMTP.Host = expandEnvVars(c.SMTP.Host)
	}
}
