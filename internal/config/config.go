// Package config loads and validates the ldapgate configuration from a
// YAML file and LDAPGATE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/ldapgate/ldapgate/internal/ldap"
)

// ErrInvalid wraps every configuration validation failure. Configuration
// errors are fatal at startup.
var ErrInvalid = errors.New("invalid configuration")

// Config is the full runtime configuration.
type Config struct {
	// Primary is the endpoint users authenticate against.
	Primary ldap.EndpointConfig `mapstructure:"primary"`

	// Secondary is the sync target endpoint. Nil falls back to the
	// primary.
	Secondary *ldap.EndpointConfig `mapstructure:"secondary"`

	// AlternateOUs are swept, in order, when the primary endpoint
	// rejects a login.
	AlternateOUs []string `mapstructure:"alternate_ous"`

	// CreateLocalUsers enables creating local identities for directory
	// users on first login. When false, logins share the default
	// identity.
	CreateLocalUsers bool `mapstructure:"create_local_users"`

	// DefaultRoles are assigned to newly created identities.
	DefaultRoles []string `mapstructure:"default_roles"`

	// SyncToSecondary enables mirroring identity lifecycle events to the
	// secondary endpoint.
	SyncToSecondary bool `mapstructure:"sync_to_secondary"`

	// DefaultIdentityID identifies the shared identity used when
	// CreateLocalUsers is false.
	DefaultIdentityID int64 `mapstructure:"default_identity_id" default:"-1"`

	DefaultIdentityEmail string `mapstructure:"default_identity_email" default:"default@user.com" validate:"email"`

	// AllowPasswordRecovery lets directory users run the host's local
	// password-recovery flow. When false, RecoveryRedirectURL is
	// required.
	AllowPasswordRecovery bool   `mapstructure:"allow_password_recovery"`
	RecoveryRedirectURL   string `mapstructure:"recovery_redirect_url" validate:"omitempty,url"`

	DatabasePath string `mapstructure:"database_path" default:"ldapgate.db"`
	LogLevel     string `mapstructure:"log_level" default:"info" validate:"oneof=debug info warn error"`
}

// Load reads the configuration. path names the YAML file; "" searches
// for ldapgate.yaml in the working directory. Environment variables use
// the LDAPGATE_ prefix with underscores for nesting, e.g.
// LDAPGATE_PRIMARY_HOST.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("ldapgate")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix("LDAPGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Keys must be known to viper for environment overrides to apply.
	v.SetDefault("create_local_users", true)
	v.SetDefault("default_identity_id", -1)
	v.SetDefault("default_identity_email", "default@user.com")
	v.SetDefault("database_path", "ldapgate.db")
	v.SetDefault("log_level", "info")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: reading config: %w", ErrInvalid, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: decoding config: %w", ErrInvalid, err)
	}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("%w: applying defaults: %w", ErrInvalid, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks structural and cross-field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := c.Primary.Validate(); err != nil {
		return fmt.Errorf("%w: primary endpoint: %w", ErrInvalid, err)
	}
	if c.Secondary != nil {
		if err := c.Secondary.Validate(); err != nil {
			return fmt.Errorf("%w: secondary endpoint: %w", ErrInvalid, err)
		}
	}
	if !c.AllowPasswordRecovery && c.RecoveryRedirectURL == "" {
		return fmt.Errorf("%w: recovery_redirect_url is required when allow_password_recovery is false", ErrInvalid)
	}
	return nil
}
