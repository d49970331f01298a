package keys

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptAndLoadRSA(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	pemBytes, err := EncryptPKCS8ToPEM(key, []byte("secret"))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "key.pem")
	require.NoError(t, os.WriteFile(path, pemBytes, 0o600))

	signer, err := LoadEncryptedPKCS8SignerFromFile(path, []byte("secret"))
	require.NoError(t, err)
	assert.True(t, key.PublicKey.Equal(signer.Public()))

	rsaKey, err := LoadRSASignerFromPEM(pemBytes, []byte("secret"))
	require.NoError(t, err)
	assert.Equal(t, key.N, rsaKey.N)
}

func TestLoad_WrongPassword(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pemBytes, err := EncryptPKCS8ToPEM(key, []byte("secret"))
	require.NoError(t, err)

	_, err = LoadEncryptedPKCS8SignerFromPEM(pemBytes, []byte("other"))
	assert.Error(t, err)

	_, err = LoadEncryptedPKCS8SignerFromPEM(pemBytes, nil)
	assert.ErrorIs(t, err, ErrPasswordRequired)
}

func TestLoadRSA_RejectsECDSA(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	pemBytes, err := EncryptPKCS8ToPEM(key, []byte("secret"))
	require.NoError(t, err)

	_, err = LoadRSASignerFromPEM(pemBytes, []byte("secret"))
	assert.Error(t, err)
}

func TestLoad_NoBlock(t *testing.T) {
	_, err := LoadEncryptedPKCS8SignerFromPEM([]byte("not a pem"), []byte("x"))
	assert.ErrorIs(t, err, ErrNoKey)

	_, err = CertificateDERFromPEM([]byte("not a pem"))
	assert.ErrorIs(t, err, ErrNoCertificate)
}

func TestCertificate(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tpl := &x509.Certificate{
		SerialNumber: big.NewInt(42),
		Subject:      pkix.Name{CommonName: "EXEMPLO LTDA:11222333000181"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tpl, tpl, &key.PublicKey, key)
	require.NoError(t, err)

	keyPEM, err := EncryptPKCS8ToPEM(key, []byte("secret"))
	require.NoError(t, err)
	bundle := append(keyPEM, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})...)

	got, err := CertificateDERFromPEM(bundle)
	require.NoError(t, err)
	assert.Equal(t, der, got)

	cert, err := LoadCertificate(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}))
	require.NoError(t, err)
	assert.Equal(t, int64(42), cert.SerialNumber.Int64())

	// the key is still found after the certificate block
	_, err = LoadRSASignerFromPEM(bundle, []byte("secret"))
	assert.NoError(t, err)
}

func TestCheckValidity(t *testing.T) {
	notBefore := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cert := &x509.Certificate{
		Subject:   pkix.Name{CommonName: "EXEMPLO LTDA"},
		NotBefore: notBefore,
		NotAfter:  notBefore.AddDate(1, 0, 0),
	}

	assert.NoError(t, CheckValidity(cert, notBefore.AddDate(0, 6, 0)))
	assert.ErrorIs(t, CheckValidity(cert, notBefore.AddDate(-1, 0, 0)), ErrCertificateExpired)
	assert.ErrorIs(t, CheckValidity(cert, notBefore.AddDate(2, 0, 0)), ErrCertificateExpired)
}
