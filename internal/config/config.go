package config

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config is the full runtime configuration, read from environment variables
// (TASKHIVE_ prefix) with an optional YAML file underneath.
type Config struct {
	Server struct {
		Port string `mapstructure:"port"`
		// BaseURL is the externally visible origin of this service; OAuth
		// redirect URIs are built from it.
		BaseURL string `mapstructure:"base_url"`
		// FrontendURL is where completed logins land.
		FrontendURL     string        `mapstructure:"frontend_url"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	} `mapstructure:"server"`

	Database struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"database"`

	Auth struct {
		// PrivateKeyFile points at the RS256 signing key in PEM form. The
		// key is required; the server refuses to start without it.
		PrivateKeyFile string `mapstructure:"private_key_file"`
		RefreshCap     int    `mapstructure:"refresh_cap"`
	} `mapstructure:"auth"`

	Providers struct {
		Google  ProviderCredentials `mapstructure:"google"`
		GitHub  ProviderCredentials `mapstructure:"github"`
		Discord ProviderCredentials `mapstructure:"discord"`
	} `mapstructure:"providers"`

	Logging struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"logging"`

	RateLimit struct {
		RequestsPerSecond float64 `mapstructure:"requests_per_second"`
		Burst             int     `mapstructure:"burst"`
	} `mapstructure:"rate_limit"`
}

// ProviderCredentials is one OAuth client registration. A provider with an
// empty client id is simply not offered.
type ProviderCredentials struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
}

func (p ProviderCredentials) Enabled() bool { return p.ClientID != "" }

// Load reads configuration from the environment and, when present, a config
// file named by TASKHIVE_CONFIG_FILE or config.yaml in the working directory.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TASKHIVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.frontend_url", "http://localhost:3000")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("database.dsn", "")
	v.SetDefault("auth.private_key_file", "")
	v.SetDefault("auth.refresh_cap", 5)
	for _, provider := range []string{"google", "github", "discord"} {
		v.SetDefault("providers."+provider+".client_id", "")
		v.SetDefault("providers."+provider+".client_secret", "")
	}
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("rate_limit.requests_per_second", 20.0)
	v.SetDefault("rate_limit.burst", 40)

	if cfgFile := os.Getenv("TASKHIVE_CONFIG_FILE"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "[config.Load] read config file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "[config.Load] unmarshal")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Database.DSN) == "" {
		return errors.New("[config] database.dsn is required (TASKHIVE_DATABASE_DSN)")
	}
	if strings.TrimSpace(c.Auth.PrivateKeyFile) == "" {
		return errors.New("[config] auth.private_key_file is required (TASKHIVE_AUTH_PRIVATE_KEY_FILE)")
	}
	if c.Auth.RefreshCap < 1 {
		return errors.New("[config] auth.refresh_cap must be at least 1")
	}
	if !c.Providers.Google.Enabled() && !c.Providers.GitHub.Enabled() && !c.Providers.Discord.Enabled() {
		return errors.New("[config] at least one OAuth provider must be configured")
	}
	return nil
}

// ReadPrivateKeyPEM loads the signing key file. Callers treat failure as
// fatal at startup.
func (c *Config) ReadPrivateKeyPEM() ([]byte, error) {
	pem, err := os.ReadFile(c.Auth.PrivateKeyFile)
	if err != nil {
		return nil, errors.Wrap(err, "[config.ReadPrivateKeyPEM] read key file")
	}
	return pem, nil
}
