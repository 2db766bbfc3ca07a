package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// LoadConfig loads configuration from file using viper.
// CLI flags > environment > config file > defaults precedence.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	d := DefaultConfig()
	v.SetDefault("router_api.host", d.RouterAPI.Host)
	v.SetDefault("router_api.port", d.RouterAPI.Port)
	v.SetDefault("router_api.http_port", d.RouterAPI.HTTPPort)
	v.SetDefault("router_api.max_connections", d.RouterAPI.MaxConnections)
	v.SetDefault("router_api.request_timeout", d.RouterAPI.RequestTimeout.String())
	v.SetDefault("router_api.rate_limit_rps", d.RouterAPI.RateLimitRPS)
	v.SetDefault("router_api.rate_limit_burst", d.RouterAPI.RateLimitBurst)
	v.SetDefault("policies.source", d.Policies.Source)
	v.SetDefault("policies.path", d.Policies.Path)
	v.SetDefault("policies.watch", d.Policies.Watch)
	v.SetDefault("policies.debounce", d.Policies.Debounce.String())
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	// Bind environment variables with PR_ prefix
	v.SetEnvPrefix("PR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Secrets must be environment-only per 12-factor principles
	if err := validateNoSecretsInConfig(v); err != nil {
		return nil, err
	}

	cfg := &Config{
		RouterAPI: RouterAPIConfig{
			Host:           v.GetString("router_api.host"),
			Port:           v.GetInt("router_api.port"),
			HTTPPort:       v.GetInt("router_api.http_port"),
			MaxConnections: v.GetInt("router_api.max_connections"),
			RequestTimeout: v.GetDuration("router_api.request_timeout"),
			RateLimitRPS:   v.GetInt("router_api.rate_limit_rps"),
			RateLimitBurst: v.GetInt("router_api.rate_limit_burst"),
		},
		Policies: PoliciesConfig{
			Source:   strings.ToLower(v.GetString("policies.source")),
			Path:     v.GetString("policies.path"),
			Watch:    v.GetBool("policies.watch"),
			Debounce: v.GetDuration("policies.debounce"),
		},
		Log: LogConfig{
			Level:  strings.ToLower(v.GetString("log.level")),
			Format: strings.ToLower(v.GetString("log.format")),
		},
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks port ranges, positive limits, and known enum values.
func Validate(cfg *Config) error {
	api := cfg.RouterAPI
	if api.Port <= 0 || api.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", api.Port)
	}
	if api.HTTPPort < 0 || api.HTTPPort > 65535 {
		return fmt.Errorf("http_port must be between 0 and 65535, got %d", api.HTTPPort)
	}
	if api.HTTPPort != 0 && api.HTTPPort == api.Port {
		return fmt.Errorf("http_port must differ from port, both are %d", api.Port)
	}
	if api.MaxConnections <= 0 {
		return fmt.Errorf("max_connections must be positive, got %d", api.MaxConnections)
	}
	if api.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %v", api.RequestTimeout)
	}
	if api.RateLimitRPS < 0 {
		return fmt.Errorf("rate_limit_rps must not be negative, got %d", api.RateLimitRPS)
	}
	if api.RateLimitRPS > 0 && api.RateLimitBurst <= 0 {
		return fmt.Errorf("rate_limit_burst must be positive when rate limiting is enabled, got %d", api.RateLimitBurst)
	}

	switch cfg.Policies.Source {
	case SourceFile:
		if cfg.Policies.Path == "" {
			return fmt.Errorf("policies.path required for file source")
		}
	case SourceDatabase:
		if cfg.Policies.Watch {
			return fmt.Errorf("policies.watch is only supported for the file source")
		}
	default:
		return fmt.Errorf("policies.source must be %q or %q, got %q", SourceFile, SourceDatabase, cfg.Policies.Source)
	}
	if cfg.Policies.Debounce < 0 {
		return fmt.Errorf("policies.debounce must not be negative, got %v", cfg.Policies.Debounce)
	}

	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console, got %q", cfg.Log.Format)
	}

	return nil
}

// validateNoSecretsInConfig enforces environment-only secrets (12-factor principle).
// InConfig only consults the file; IsSet would also see PR_HMAC_SECRET via AutomaticEnv.
func validateNoSecretsInConfig(v *viper.Viper) error {
	if v.InConfig("hmac_secret") || v.InConfig("router_api.hmac_secret") {
		return fmt.Errorf("HMAC secrets not allowed in config files (use PR_HMAC_SECRET environment variable)")
	}
	return nil
}
