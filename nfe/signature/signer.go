package signature

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"encoding/base64"
	"time"

	"github.com/alapierre/go-nfe-client/nfe/keys"
	"github.com/go-faster/errors"
)

// Signer produces the SignatureValue over canonical SignedInfo bytes and the
// certificate published in KeyInfo.
type Signer interface {
	SignatureValue(signedInfo []byte, cred Credential) (string, error)
	Certificate(cred Credential) (string, error)
}

// PlaceholderSigner does not sign. SignatureValue is the base64 SHA-1 of
// SignedInfo and the certificate is taken from a CERTIFICATE block of the
// material when there is one, otherwise it is a digest of the material.
type PlaceholderSigner struct{}

func (PlaceholderSigner) SignatureValue(signedInfo []byte, _ Credential) (string, error) {
	sum := sha1.Sum(signedInfo)
	return base64.StdEncoding.EncodeToString(sum[:]), nil
}

func (PlaceholderSigner) Certificate(cred Credential) (string, error) {
	if der, err := keys.CertificateDERFromPEM([]byte(cred.Material)); err == nil {
		return base64.StdEncoding.EncodeToString(der), nil
	}
	sum := sha1.Sum([]byte(cred.Material))
	return base64.StdEncoding.EncodeToString(sum[:]), nil
}

// RSASigner signs SignedInfo with RSA PKCS#1 v1.5 over SHA-1. The credential
// material must be PEM holding an ENCRYPTED PRIVATE KEY and a CERTIFICATE,
// the passphrase decrypts the key. A certificate outside its validity period
// is refused.
type RSASigner struct {
	// Now defaults to time.Now.
	Now func() time.Time
}

func (RSASigner) SignatureValue(signedInfo []byte, cred Credential) (string, error) {
	key, err := keys.LoadRSASignerFromPEM([]byte(cred.Material), []byte(cred.Passphrase))
	if err != nil {
		return "", errors.Wrap(err, "load signing key")
	}
	sum := sha1.Sum(signedInfo)
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA1, sum[:])
	if err != nil {
		return "", errors.Wrap(err, "rsa sign")
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

func (s RSASigner) Certificate(cred Credential) (string, error) {
	der, err := keys.CertificateDERFromPEM([]byte(cred.Material))
	if err != nil {
		return "", err
	}
	cert, err := keys.LoadCertificate(der)
	if err != nil {
		return "", err
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	if err := keys.CheckValidity(cert, now()); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(der), nil
}
