// Package config loads the client configuration from a YAML file and the
// NFE_* environment variables, and builds the collaborators it describes.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alapierre/go-nfe-client/nfe"
	"github.com/alapierre/go-nfe-client/nfe/pipeline"
	"github.com/alapierre/go-nfe-client/nfe/signature"
	"github.com/alapierre/go-nfe-client/nfe/transmission"
	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

var logger = logrus.WithField("component", "nfe.config")

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	ModeSimulated = "simulated"
	ModeHTTP      = "http"

	SignerPlaceholder = "placeholder"
	SignerRSA         = "rsa"

	CanonWhitespace = "whitespace"
	CanonC14N       = "c14n"
)

var ErrInvalid = errors.New("invalid configuration")

type Credential struct {
	File       string `yaml:"file"`
	Passphrase string `yaml:"passphrase"`
	// Signer is placeholder or rsa.
	Signer string `yaml:"signer"`
	// Canonicalizer is whitespace or c14n.
	Canonicalizer string `yaml:"canonicalizer"`
}

type Audit struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type Authority struct {
	// Mode is simulated or http.
	Mode string `yaml:"mode"`
	// URL points every region at one base URL; empty uses the official table.
	URL         string  `yaml:"url"`
	SuccessRate float64 `yaml:"successRate"`
	Seed        uint64  `yaml:"seed"`
}

type Retry struct {
	MaxAttempts  int `yaml:"maxAttempts"`
	BackoffMs    int `yaml:"backoffMs"`
	MaxBackoffMs int `yaml:"maxBackoffMs"`
}

type Config struct {
	Environment nfe.Environment `yaml:"environment"`
	Region      string          `yaml:"region"`
	TimeoutMs   int             `yaml:"timeoutMs"`
	IssuerID    string          `yaml:"issuerId"`
	Debug       bool            `yaml:"debug"`

	Credential Credential `yaml:"credential"`
	Audit      Audit      `yaml:"audit"`
	Authority  Authority  `yaml:"authority"`
	Retry      Retry      `yaml:"retry"`
}

func Default() *Config {
	return &Config{
		Environment: nfe.Staging,
		Region:      nfe.DefaultRegion,
		TimeoutMs:   int(transmission.DefaultTimeout / time.Millisecond),
		Credential: Credential{
			Signer:        SignerPlaceholder,
			Canonicalizer: CanonWhitespace,
		},
		Audit:     Audit{Driver: DriverMemory},
		Authority: Authority{Mode: ModeSimulated, SuccessRate: 0.9},
		Retry: Retry{
			MaxAttempts:  pipeline.DefaultRetryPolicy.MaxAttempts,
			BackoffMs:    int(pipeline.DefaultRetryPolicy.Backoff / time.Millisecond),
			MaxBackoffMs: int(pipeline.DefaultRetryPolicy.MaxBackoff / time.Millisecond),
		},
	}
}

// Load reads path over the defaults, then applies the environment. An empty
// path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "read config file")
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(err, "parse config file")
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	return cfg, nil
}

// ApplyEnv overrides the fields whose NFE_* variable is set and not blank.
func (c *Config) ApplyEnv() error {
	if v, ok := lookup("NFE_ENV"); ok {
		if err := c.Environment.UnmarshalText([]byte(v)); err != nil {
			return errors.Wrap(ErrInvalid, err.Error())
		}
	}
	if v, ok := lookup("NFE_REGION"); ok {
		c.Region = v
	}
	if err := envInt("NFE_TIMEOUT_MS", &c.TimeoutMs); err != nil {
		return err
	}
	if v, ok := lookup("NFE_CERT_FILE"); ok {
		c.Credential.File = v
	}
	if v, ok := os.LookupEnv("NFE_CERT_PASS"); ok {
		c.Credential.Passphrase = v
	}
	if v, ok := lookup("NFE_AUDIT_DRIVER"); ok {
		c.Audit.Driver = strings.ToLower(v)
	}
	if v, ok := lookup("NFE_AUDIT_DSN"); ok {
		c.Audit.DSN = v
	}
	if v, ok := lookup("NFE_AUTHORITY_URL"); ok {
		c.Authority.URL = v
	}
	if v, ok := lookup("NFE_AUTHORITY_MODE"); ok {
		c.Authority.Mode = strings.ToLower(v)
	}
	if err := envInt("NFE_MAX_ATTEMPTS", &c.Retry.MaxAttempts); err != nil {
		return err
	}
	if v, ok := lookup("NFE_DEBUG"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrapf(ErrInvalid, "NFE_DEBUG=%q", v)
		}
		c.Debug = b
	}
	return nil
}

func (c *Config) Validate() error {
	c.Region = strings.ToUpper(strings.TrimSpace(c.Region))
	if _, ok := nfe.LookupRegion(c.Region); !ok {
		return errors.Wrapf(ErrInvalid, "unknown region %q", c.Region)
	}
	if c.TimeoutMs <= 0 {
		return errors.Wrapf(ErrInvalid, "timeoutMs must be positive, got %d", c.TimeoutMs)
	}
	if c.Retry.MaxAttempts < 1 {
		return errors.Wrapf(ErrInvalid, "retry.maxAttempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.BackoffMs < 0 || c.Retry.MaxBackoffMs < 0 {
		return errors.Wrap(ErrInvalid, "retry backoff must not be negative")
	}

	switch c.Audit.Driver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if c.Audit.DSN == "" {
			return errors.Wrap(ErrInvalid, "postgres audit driver needs a dsn")
		}
	default:
		return errors.Wrapf(ErrInvalid, "unknown audit driver %q", c.Audit.Driver)
	}

	switch c.Authority.Mode {
	case ModeSimulated:
		if c.Authority.SuccessRate < 0 || c.Authority.SuccessRate > 1 {
			return errors.Wrapf(ErrInvalid, "authority.successRate out of range: %v", c.Authority.SuccessRate)
		}
	case ModeHTTP:
	default:
		return errors.Wrapf(ErrInvalid, "unknown authority mode %q", c.Authority.Mode)
	}

	switch c.Credential.Signer {
	case SignerPlaceholder, SignerRSA:
	default:
		return errors.Wrapf(ErrInvalid, "unknown signer %q", c.Credential.Signer)
	}
	switch c.Credential.Canonicalizer {
	case CanonWhitespace, CanonC14N:
	default:
		return errors.Wrapf(ErrInvalid, "unknown canonicalizer %q", c.Credential.Canonicalizer)
	}
	return nil
}

func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// Transmission reads the certificate file, if any, into the per-call
// configuration of the transmission service.
func (c *Config) Transmission() (transmission.Config, error) {
	cfg := transmission.Config{
		Environment: c.Environment,
		Region:      c.Region,
		Timeout:     c.Timeout(),
		IssuerID:    c.IssuerID,
		Credential:  signature.Credential{Passphrase: c.Credential.Passphrase},
	}
	if c.Credential.File != "" {
		data, err := os.ReadFile(c.Credential.File)
		if err != nil {
			return cfg, errors.Wrap(err, "read certificate file")
		}
		cfg.Credential.Material = string(data)
	}
	return cfg, nil
}

func (c *Config) RetryPolicy() pipeline.RetryPolicy {
	return pipeline.RetryPolicy{
		MaxAttempts: c.Retry.MaxAttempts,
		Backoff:     time.Duration(c.Retry.BackoffMs) * time.Millisecond,
		MaxBackoff:  time.Duration(c.Retry.MaxBackoffMs) * time.Millisecond,
	}
}

func (c *Config) Signature() *signature.Service {
	var opts []signature.Option
	if c.Credential.Signer == SignerRSA {
		opts = append(opts, signature.WithSigner(signature.RSASigner{}))
	}
	if c.Credential.Canonicalizer == CanonC14N {
		opts = append(opts, signature.WithCanonicalizer(signature.NewC14N10Canonicalizer()))
	}
	return signature.NewService(opts...)
}

func lookup(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

func envInt(key string, dst *int) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return errors.Wrapf(ErrInvalid, "%s=%q is not a number", key, v)
	}
	*dst = n
	return nil
}
