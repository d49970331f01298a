// Package taxid validates and formats the Brazilian national tax identifiers:
// CPF (individuals, 11 digits) and CNPJ (organizations, 14 digits).
package taxid

import (
	"fmt"
	"strings"
)

type Kind int

const (
	Individual Kind = iota
	Organization
)

func (k Kind) Len() int {
	switch k {
	case Individual:
		return 11
	case Organization:
		return 14
	}
	panic("Invalid tax id kind")
}

func (k Kind) String() string {
	switch k {
	case Individual:
		return "CPF"
	case Organization:
		return "CNPJ"
	}
	panic("Invalid tax id kind")
}

// Validate strips formatting from id and checks length, repeated digits and
// both check digits.
func Validate(id string, kind Kind) bool {
	d := Digits(id)
	if len(d) != kind.Len() || allSame(d) {
		return false
	}

	// CNPJ weights cycle 2..9; CPF weights run 2..10 and 2..11 without wrapping
	maxWeight := 9
	if kind == Individual {
		maxWeight = 11
	}

	n := len(d)
	first := mod11Digit(d[:n-2], maxWeight)
	second := mod11Digit(d[:n-1], maxWeight)

	return int(d[n-2]-'0') == first && int(d[n-1]-'0') == second
}

func ValidateCPF(id string) bool  { return Validate(id, Individual) }
func ValidateCNPJ(id string) bool { return Validate(id, Organization) }

// Detect guesses the kind from the number of digits.
func Detect(id string) (Kind, bool) {
	switch len(Digits(id)) {
	case 11:
		return Individual, true
	case 14:
		return Organization, true
	}
	return Individual, false
}

// Format renders the digits of id with the usual punctuation. Input of the
// wrong length is returned as bare digits.
func Format(id string, kind Kind) string {
	d := Digits(id)
	if len(d) != kind.Len() {
		return d
	}
	if kind == Individual {
		return fmt.Sprintf("%s.%s.%s-%s", d[0:3], d[3:6], d[6:9], d[9:11])
	}
	return fmt.Sprintf("%s.%s.%s/%s-%s", d[0:2], d[2:5], d[5:8], d[8:12], d[12:14])
}

// Digits drops every non digit character.
func Digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// mod11Digit applies weights 2..maxWeight right to left, wrapping back to 2.
func mod11Digit(digits string, maxWeight int) int {
	sum, weight := 0, 2
	for i := len(digits) - 1; i >= 0; i-- {
		sum += int(digits[i]-'0') * weight
		weight++
		if weight > maxWeight {
			weight = 2
		}
	}
	r := sum % 11
	if r < 2 {
		return 0
	}
	return 11 - r
}

func allSame(d string) bool {
	return strings.Count(d, d[:1]) == len(d)
}
