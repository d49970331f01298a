package nfe

import (
	"fmt"
	"strings"
)

type Environment int

const (
	Staging Environment = iota
	Production
)

// Code is the tpAmb value: 1 production, 2 staging (homologação).
func (e Environment) Code() int {
	switch e {
	case Production:
		return 1
	case Staging:
		return 2
	}
	panic("Invalid environment")
}

func (e Environment) Name() string {
	switch e {
	case Production:
		return "production"
	case Staging:
		return "staging"
	}
	panic("Invalid environment")
}

func (e Environment) String() string {
	return e.Name()
}

func (e *Environment) UnmarshalText(text []byte) error {
	val := strings.ToLower(strings.TrimSpace(string(text)))

	switch val {
	case "production", "producao", "prod", "1":
		*e = Production
	case "staging", "homologacao", "test", "2":
		*e = Staging
	default:
		return fmt.Errorf("invalid NFE_ENV: %q (allowed: production, staging)", val)
	}
	return nil
}

func (e Environment) MarshalText() ([]byte, error) {
	return []byte(e.Name()), nil
}
