// Package accesskey computes, validates and decomposes the 44 digit NF-e access key.
//
// Layout: cUF(2) AAMM(4) CNPJ(14) mod(2) serie(3) nNF(9) tpEmis(1) cNF(8) cDV(1).
package accesskey

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/alapierre/go-nfe-client/nfe"
	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("component", "nfe.accesskey")

const (
	Length     = 44
	BaseLength = Length - 1
	NonceLen   = 8

	// EmissionNormal is tpEmis=1, the regular online emission.
	EmissionNormal = 1
)

var (
	ErrInvalidLength = errors.New("access key must have 44 digits")
	ErrNotNumeric    = errors.New("access key must contain only digits")
	ErrCheckDigit    = errors.New("access key check digit mismatch")
)

// Fields are the inputs of an access key. Region is the numeric cUF.
// Nonce may be left empty, then a random 8 digit value is generated.
type Fields struct {
	Region       string
	IssuedAt     time.Time
	IssuerID     string
	Series       int
	Number       int
	EmissionType int
	Nonce        string
}

// Parts is a decomposed, already validated key.
type Parts struct {
	Region       string
	YearMonth    string
	IssuerID     string
	Model        string
	Series       int
	Number       int
	EmissionType int
	Nonce        string
	CheckDigit   int
}

// Compute builds the 43 digit base from f and appends its check digit.
func Compute(f Fields) (string, error) {

	region := digitsOnly(f.Region)
	if len(region) != 2 {
		return "", errors.Errorf("region code must have 2 digits, got %q", f.Region)
	}

	issuer := digitsOnly(f.IssuerID)
	if len(issuer) == 0 || len(issuer) > 14 {
		return "", errors.Errorf("issuer id must have up to 14 digits, got %q", f.IssuerID)
	}

	if f.Series < 0 || f.Series > 999 {
		return "", errors.Errorf("series out of range: %d", f.Series)
	}
	if f.Number < 1 || f.Number > 999_999_999 {
		return "", errors.Errorf("number out of range: %d", f.Number)
	}

	emission := f.EmissionType
	if emission == 0 {
		emission = EmissionNormal
	}
	if emission < 1 || emission > 9 {
		return "", errors.Errorf("emission type out of range: %d", emission)
	}

	nonce := f.Nonce
	if nonce == "" {
		var err error
		if nonce, err = NewNonce(); err != nil {
			return "", err
		}
	}
	if len(nonce) != NonceLen || digitsOnly(nonce) != nonce {
		return "", errors.Errorf("nonce must have %d digits, got %q", NonceLen, nonce)
	}

	issued := f.IssuedAt
	if issued.IsZero() {
		issued = time.Now()
	}

	var b strings.Builder
	b.Grow(Length)
	b.WriteString(region)
	b.WriteString(issued.Format("0601"))
	b.WriteString(leftPad(issuer, 14))
	b.WriteString(nfe.ModelCode)
	fmt.Fprintf(&b, "%03d%09d%d", f.Series, f.Number, emission)
	b.WriteString(nonce)

	base := b.String()
	dv, err := CheckDigit(base)
	if err != nil {
		return "", err
	}

	key := base + strconv.Itoa(dv)
	logger.Debugf("computed access key %s", key)
	return key, nil
}

// CheckDigit computes the modulo 11 digit over the 43 digit base. Weights
// 2..9 are applied cyclically from the rightmost digit.
func CheckDigit(base string) (int, error) {
	if len(base) != BaseLength {
		return 0, errors.Wrapf(ErrInvalidLength, "base has %d digits", len(base))
	}

	sum, weight := 0, 2
	for i := len(base) - 1; i >= 0; i-- {
		c := base[i]
		if c < '0' || c > '9' {
			return 0, ErrNotNumeric
		}
		sum += int(c-'0') * weight
		weight++
		if weight > 9 {
			weight = 2
		}
	}

	r := sum % 11
	if r < 2 {
		return 0, nil
	}
	return 11 - r, nil
}

// Validate reports whether key has 44 digits and a matching check digit.
func Validate(key string) bool {
	return Check(key) == nil
}

// Check is Validate with the reason of the failure.
func Check(key string) error {
	if len(key) != Length {
		return ErrInvalidLength
	}
	dv, err := CheckDigit(key[:BaseLength])
	if err != nil {
		return err
	}
	last := key[BaseLength]
	if last < '0' || last > '9' {
		return ErrNotNumeric
	}
	if int(last-'0') != dv {
		return ErrCheckDigit
	}
	return nil
}

// Parse validates key and splits it into its fields.
func Parse(key string) (*Parts, error) {
	key = digitsOnly(key)
	if err := Check(key); err != nil {
		return nil, err
	}

	series, _ := strconv.Atoi(key[22:25])
	number, _ := strconv.Atoi(key[25:34])

	return &Parts{
		Region:       key[0:2],
		YearMonth:    key[2:6],
		IssuerID:     key[6:20],
		Model:        key[20:22],
		Series:       series,
		Number:       number,
		EmissionType: int(key[34] - '0'),
		Nonce:        key[35:43],
		CheckDigit:   int(key[43] - '0'),
	}, nil
}

// Format groups the key in blocks of four digits, as printed on the DANFE.
func Format(key string) string {
	var b strings.Builder
	for i, r := range key {
		if i > 0 && i%4 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// NewNonce returns a random 8 digit cNF.
func NewNonce() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(100_000_000))
	if err != nil {
		return "", errors.Wrap(err, "generate nonce")
	}
	return fmt.Sprintf("%08d", n.Int64()), nil
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func leftPad(s string, n int) string {
	if len(s) >= n {
		return s
	}
	return strings.Repeat("0", n-len(s)) + s
}
