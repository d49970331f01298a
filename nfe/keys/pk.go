// Package keys loads the private key and certificate carried in a signing
// credential.
package keys

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"time"

	"github.com/go-faster/errors"
	"github.com/youmark/pkcs8"
)

const (
	blockEncryptedKey = "ENCRYPTED PRIVATE KEY"
	blockCertificate  = "CERTIFICATE"
)

var (
	ErrNoKey              = errors.New("no ENCRYPTED PRIVATE KEY block found in PEM")
	ErrNoCertificate      = errors.New("no CERTIFICATE block found in PEM")
	ErrPasswordRequired   = errors.New("password is required for ENCRYPTED PRIVATE KEY")
	ErrCertificateExpired = errors.New("certificate is outside its validity period")
)

// findBlock returns the first PEM block of the given type. Blocks of other
// types are skipped, so a key and its certificate may share one bundle.
func findBlock(pemBytes []byte, typ string) *pem.Block {
	for len(pemBytes) > 0 {
		var block *pem.Block
		block, pemBytes = pem.Decode(pemBytes)
		if block == nil {
			return nil
		}
		if block.Type == typ {
			return block
		}
	}
	return nil
}

func LoadEncryptedPKCS8SignerFromFile(path string, password []byte) (crypto.Signer, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read key file")
	}
	return LoadEncryptedPKCS8SignerFromPEM(b, password)
}

// LoadEncryptedPKCS8SignerFromPEM decrypts the first ENCRYPTED PRIVATE KEY
// block. RSA and ECDSA keys are accepted.
func LoadEncryptedPKCS8SignerFromPEM(pemBytes []byte, password []byte) (crypto.Signer, error) {
	if len(password) == 0 {
		return nil, ErrPasswordRequired
	}
	block := findBlock(pemBytes, blockEncryptedKey)
	if block == nil {
		return nil, ErrNoKey
	}

	parsed, err := pkcs8.ParsePKCS8PrivateKey(block.Bytes, password)
	if err != nil {
		return nil, errors.Wrap(err, "decrypt PKCS#8 private key")
	}
	switch k := parsed.(type) {
	case *rsa.PrivateKey:
		return k, nil
	case *ecdsa.PrivateKey:
		return k, nil
	default:
		return nil, errors.Errorf("unsupported key type %T", parsed)
	}
}

// LoadRSASignerFromPEM is LoadEncryptedPKCS8SignerFromPEM restricted to RSA,
// the only algorithm accepted in NF-e signatures.
func LoadRSASignerFromPEM(pemBytes []byte, password []byte) (*rsa.PrivateKey, error) {
	signer, err := LoadEncryptedPKCS8SignerFromPEM(pemBytes, password)
	if err != nil {
		return nil, err
	}
	k, ok := signer.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.Errorf("unsupported key type %T (expected RSA)", signer)
	}
	return k, nil
}

// EncryptPKCS8ToPEM is the inverse of LoadEncryptedPKCS8SignerFromPEM, used
// to prepare credential material.
func EncryptPKCS8ToPEM(key crypto.PrivateKey, password []byte) ([]byte, error) {
	der, err := pkcs8.MarshalPrivateKey(key, password, nil)
	if err != nil {
		return nil, errors.Wrap(err, "encrypt PKCS#8 private key")
	}
	return pem.EncodeToMemory(&pem.Block{Type: blockEncryptedKey, Bytes: der}), nil
}

// CertificateDERFromPEM returns the first CERTIFICATE block of pemBytes.
func CertificateDERFromPEM(pemBytes []byte) ([]byte, error) {
	block := findBlock(pemBytes, blockCertificate)
	if block == nil {
		return nil, ErrNoCertificate
	}
	return block.Bytes, nil
}

// LoadCertificate accepts PEM or raw DER.
func LoadCertificate(certBytes []byte) (*x509.Certificate, error) {
	if block, _ := pem.Decode(certBytes); block != nil {
		if block.Type != blockCertificate {
			return nil, errors.Errorf("unexpected PEM block %s", block.Type)
		}
		certBytes = block.Bytes
	}
	cert, err := x509.ParseCertificate(certBytes)
	if err != nil {
		return nil, errors.Wrap(err, "parse certificate")
	}
	return cert, nil
}

// CheckValidity fails with ErrCertificateExpired when at is outside the
// certificate's NotBefore/NotAfter window.
func CheckValidity(cert *x509.Certificate, at time.Time) error {
	if at.Before(cert.NotBefore) || at.After(cert.NotAfter) {
		return errors.Wrapf(ErrCertificateExpired, "%s valid %s to %s",
			cert.Subject.CommonName, cert.NotBefore.Format(time.DateOnly), cert.NotAfter.Format(time.DateOnly))
	}
	return nil
}
