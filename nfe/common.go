package nfe

import (
	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("component", "nfe")

const (
	// ModelCode is the fixed document model (NF-e) embedded in every access key.
	ModelCode = "55"
	// LayoutVersion of the record schema produced by the serializer.
	LayoutVersion = "4.00"
	// Namespace of the record schema.
	Namespace = "http://www.portalfiscal.inf.br/nfe"
	// ProcessVersion identifies this application in the verProc field.
	ProcessVersion = "go-nfe-client 1.0"
)

var (
	ErrUnknownRegion = errors.New("unknown region")
	ErrInvalidInput  = errors.New("invalid input")
)
