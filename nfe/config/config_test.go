package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alapierre/go-nfe-client/nfe"
	"github.com/alapierre/go-nfe-client/nfe/audit"
	"github.com/alapierre/go-nfe-client/nfe/audit/memory"
	"github.com/alapierre/go-nfe-client/nfe/audit/sqlite"
	"github.com/alapierre/go-nfe-client/nfe/transmission"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"NFE_ENV", "NFE_REGION", "NFE_TIMEOUT_MS", "NFE_CERT_FILE", "NFE_CERT_PASS",
	"NFE_AUDIT_DRIVER", "NFE_AUDIT_DSN", "NFE_AUTHORITY_URL", "NFE_AUTHORITY_MODE",
	"NFE_MAX_ATTEMPTS", "NFE_DEBUG",
}

// clearEnv blanks every NFE_* variable for the duration of the test.
func clearEnv(t *testing.T) {
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, nfe.Staging, cfg.Environment)
	assert.Equal(t, "SP", cfg.Region)
	assert.Equal(t, 30*time.Second, cfg.Timeout())
	assert.Equal(t, DriverMemory, cfg.Audit.Driver)
	assert.Equal(t, ModeSimulated, cfg.Authority.Mode)

	p := cfg.RetryPolicy()
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, p.Backoff)
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "nfe.yaml", `
environment: producao
region: rj
timeoutMs: 5000
issuerId: "11222333000181"
credential:
  passphrase: secret
  canonicalizer: c14n
audit:
  driver: sqlite
  dsn: /tmp/audit.db
authority:
  mode: http
  url: http://localhost:8080
retry:
  maxAttempts: 5
  backoffMs: 100
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, nfe.Production, cfg.Environment)
	assert.Equal(t, "RJ", cfg.Region)
	assert.Equal(t, 5*time.Second, cfg.Timeout())
	assert.Equal(t, "11222333000181", cfg.IssuerID)
	assert.Equal(t, CanonC14N, cfg.Credential.Canonicalizer)
	assert.Equal(t, SignerPlaceholder, cfg.Credential.Signer, "unset fields keep their default")
	assert.Equal(t, DriverSQLite, cfg.Audit.Driver)
	assert.Equal(t, ModeHTTP, cfg.Authority.Mode)
	assert.Equal(t, 5, cfg.RetryPolicy().MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.RetryPolicy().Backoff)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "nfe.yaml", "environment: staging\nregion: SP\ntimeoutMs: 5000\n")

	t.Setenv("NFE_ENV", "1")
	t.Setenv("NFE_REGION", "mg")
	t.Setenv("NFE_TIMEOUT_MS", "750")
	t.Setenv("NFE_MAX_ATTEMPTS", "7")
	t.Setenv("NFE_AUTHORITY_MODE", "HTTP")
	t.Setenv("NFE_AUTHORITY_URL", "http://sim:8080")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, nfe.Production, cfg.Environment)
	assert.Equal(t, "MG", cfg.Region)
	assert.Equal(t, 750*time.Millisecond, cfg.Timeout())
	assert.Equal(t, 7, cfg.Retry.MaxAttempts)
	assert.Equal(t, ModeHTTP, cfg.Authority.Mode)
	assert.Equal(t, "http://sim:8080", cfg.Authority.URL)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"environment", "NFE_ENV", "qa"},
		{"region", "NFE_REGION", "XX"},
		{"timeout", "NFE_TIMEOUT_MS", "soon"},
		{"zero timeout", "NFE_TIMEOUT_MS", "0"},
		{"attempts", "NFE_MAX_ATTEMPTS", "0"},
		{"driver", "NFE_AUDIT_DRIVER", "mongo"},
		{"postgres without dsn", "NFE_AUDIT_DRIVER", "postgres"},
		{"mode", "NFE_AUTHORITY_MODE", "carrier-pigeon"},
		{"debug", "NFE_DEBUG", "maybe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.val)
			_, err := Load("")
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestTransmission_ReadsCertificate(t *testing.T) {
	clearEnv(t)
	cert := writeFile(t, "cert.pem", "-----BEGIN CERTIFICATE-----\nMIIB\n-----END CERTIFICATE-----\n")
	t.Setenv("NFE_CERT_FILE", cert)
	t.Setenv("NFE_CERT_PASS", "secret")

	cfg, err := Load("")
	require.NoError(t, err)

	tc, err := cfg.Transmission()
	require.NoError(t, err)
	assert.Contains(t, tc.Credential.Material, "BEGIN CERTIFICATE")
	assert.Equal(t, "secret", tc.Credential.Passphrase)
	assert.Equal(t, "SP", tc.Region)
	assert.Equal(t, 30*time.Second, tc.Timeout)
	assert.NoError(t, tc.Credential.Validate())

	cfg.Credential.File = filepath.Join(t.TempDir(), "gone.pem")
	_, err = cfg.Transmission()
	assert.Error(t, err)
}

func TestOpenAuditStore(t *testing.T) {
	cfg := Default()

	store, closeFn, err := cfg.OpenAuditStore(context.Background())
	require.NoError(t, err)
	assert.IsType(t, &memory.Store{}, store)
	closeFn()

	cfg.Audit.Driver = DriverSQLite
	cfg.Audit.DSN = filepath.Join(t.TempDir(), "audit.db")
	store, closeFn, err = cfg.OpenAuditStore(context.Background())
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &sqlite.Store{}, store)
}

func TestNewAuthority(t *testing.T) {
	cfg := Default()

	a, r := cfg.NewAuthority()
	assert.IsType(t, &transmission.SimulatedAuthority{}, a)
	assert.IsType(t, &transmission.StaticRouting{}, r)

	cfg.Authority.Mode = ModeHTTP
	cfg.Authority.URL = "http://localhost:9000"
	a, r = cfg.NewAuthority()
	assert.IsType(t, &transmission.HTTPAuthority{}, a)
	endpoint, ok := r.Endpoint(nfe.Staging, "SP")
	assert.True(t, ok)
	assert.Equal(t, "http://localhost:9000/nfe/sp", endpoint)
}

func TestService_SimulatedRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Authority.SuccessRate = 1
	cfg.Authority.Seed = 42

	store := memory.NewStore()
	svc := cfg.Service(audit.NewLogger(store))

	tc, err := cfg.Transmission()
	require.NoError(t, err)
	tc.Credential.Material, tc.Credential.Passphrase = "material", "secret"

	res := svc.Query(context.Background(), "35240311222333000181550010000001231123456788", tc)
	assert.True(t, res.Success)
	assert.Len(t, store.All(), 1)
}
