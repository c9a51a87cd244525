// Package config loads the immutable process configuration: a JSON file plus
// TPP_-prefixed environment overrides, validated eagerly so a missing value
// fails startup instead of a request.
package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the complete, validated configuration. It is constructed once in
// main and passed by pointer; nothing mutates it afterwards.
type Config struct {
	Port    string `mapstructure:"port"`
	AppName string `mapstructure:"app_name"`
	Env     string `mapstructure:"env"`

	OAuth       OAuth       `mapstructure:"oauth"`
	OpenBanking OpenBanking `mapstructure:"openbanking"`
	TLS         TLS         `mapstructure:"tls"`
	Frontend    Frontend    `mapstructure:"frontend"`
	Bank        Bank        `mapstructure:"bank"`
}

// OAuth identifies the TPP at the authorization server.
type OAuth struct {
	ClientID          string        `mapstructure:"client_id"`
	SigningKeyID      string        `mapstructure:"signing_key_id"`
	Algorithm         string        `mapstructure:"algorithm"`
	TokenType         string        `mapstructure:"token_type"`
	TokenURL          string        `mapstructure:"token_url"`
	AuthorizeURL      string        `mapstructure:"authorize_url"`
	RedirectURI       string        `mapstructure:"redirect_uri"`
	ResponseType      string        `mapstructure:"response_type"`
	Prompt            string        `mapstructure:"prompt"`
	AssertionValidity time.Duration `mapstructure:"assertion_validity"`

	// Issuer enables ID-token verification on the callback when set.
	Issuer string `mapstructure:"issuer"`

	// LoginScope is advertised in the X-Login-Url hint for unauthenticated
	// API callers.
	LoginScope string `mapstructure:"login_scope"`

	// RequiredScope gates access to protected data routes.
	RequiredScope string `mapstructure:"required_scope"`
}

// OpenBanking locates the bank's resource APIs.
type OpenBanking struct {
	AccountsBaseURL   string `mapstructure:"accounts_base_url"`
	PaymentsBaseURL   string `mapstructure:"payments_base_url"`
	FAPIFinancialID   string `mapstructure:"fapi_financial_id"`
	AccountsScope     string `mapstructure:"accounts_scope"`
	PaymentsScope     string `mapstructure:"payments_scope"`
	ConsentTimeOffset string `mapstructure:"consent_time_offset"`
}

// TLS locates the key material on disk.
type TLS struct {
	SigningKeyPath     string `mapstructure:"signing_key_path"`
	CertificatePath    string `mapstructure:"certificate_path"`
	TransportKeyPath   string `mapstructure:"transport_key_path"`
	TrustStorePath     string `mapstructure:"truststore_path"`
	TrustStorePassword string `mapstructure:"truststore_password"`
}

// Frontend locates the browser application the flow bounces back to.
type Frontend struct {
	HomeURL       string `mapstructure:"home_url"`
	AllowedOrigin string `mapstructure:"allowed_origin"`
}

// Bank carries the presentation identity of the connected mock bank.
type Bank struct {
	Name           string `mapstructure:"name"`
	Logo           string `mapstructure:"logo"`
	PrimaryColor   string `mapstructure:"primary_color"`
	SecondaryColor string `mapstructure:"secondary_color"`
}

// Load reads the configuration file (JSON) at path, applies TPP_* environment
// overrides and defaults, and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	v.SetEnvPrefix("TPP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config %q: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", ":8080")
	v.SetDefault("app_name", "TPP Backend")
	v.SetDefault("env", "DEV")

	v.SetDefault("oauth.algorithm", "PS256")
	v.SetDefault("oauth.token_type", "JWT")
	v.SetDefault("oauth.response_type", "code id_token")
	v.SetDefault("oauth.prompt", "login")
	v.SetDefault("oauth.assertion_validity", 5*time.Minute)
	v.SetDefault("oauth.login_scope", "openid basic")
	v.SetDefault("oauth.required_scope", "basic")

	v.SetDefault("openbanking.accounts_scope", "accounts openid")
	v.SetDefault("openbanking.payments_scope", "payments openid")
	v.SetDefault("openbanking.consent_time_offset", "+05:30")

	v.SetDefault("frontend.home_url", "http://localhost:5173/")
}

// Validate fails fast on any missing required value.
func (c *Config) Validate() error {
	required := map[string]string{
		"oauth.client_id":               c.OAuth.ClientID,
		"oauth.signing_key_id":          c.OAuth.SigningKeyID,
		"oauth.token_url":               c.OAuth.TokenURL,
		"oauth.authorize_url":           c.OAuth.AuthorizeURL,
		"oauth.redirect_uri":            c.OAuth.RedirectURI,
		"openbanking.accounts_base_url": c.OpenBanking.AccountsBaseURL,
		"openbanking.payments_base_url": c.OpenBanking.PaymentsBaseURL,
		"openbanking.fapi_financial_id": c.OpenBanking.FAPIFinancialID,
		"tls.signing_key_path":          c.TLS.SigningKeyPath,
		"tls.certificate_path":          c.TLS.CertificatePath,
		"tls.transport_key_path":        c.TLS.TransportKeyPath,
		"bank.name":                     c.Bank.Name,
	}

	var missing []string
	for key, value := range required {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	if c.TLS.TrustStorePath == "" && c.TLS.TrustStorePassword != "" {
		return fmt.Errorf("truststore_password set without truststore_path")
	}
	return nil
}
