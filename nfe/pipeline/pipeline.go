// Package pipeline takes a document from business data to an authority
// decision: serialize, sign, validate, transmit. A failing stage withholds
// every later one.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/alapierre/go-nfe-client/nfe/model"
	"github.com/alapierre/go-nfe-client/nfe/mutex"
	"github.com/alapierre/go-nfe-client/nfe/serializer"
	"github.com/alapierre/go-nfe-client/nfe/signature"
	"github.com/alapierre/go-nfe-client/nfe/transmission"
	"github.com/alapierre/go-nfe-client/nfe/validator"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("component", "nfe.pipeline")

type Stage string

const (
	StageCheck     Stage = "check"
	StageSerialize Stage = "serialize"
	StageSign      Stage = "sign"
	StageValidate  Stage = "validate"
	StageTransmit  Stage = "transmit"
)

var ErrNotAuthorized = errors.New("document not authorized")

// StageError names the stage that stopped the pipeline.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Transmitter is the part of transmission.Service the pipeline drives.
type Transmitter interface {
	Submit(ctx context.Context, doc string, cfg transmission.Config) *transmission.Result
	Query(ctx context.Context, key string, cfg transmission.Config) *transmission.Result
	Cancel(ctx context.Context, key, justification string, cfg transmission.Config) *transmission.Result
}

// RetryPolicy applies to transient failures only. MaxAttempts counts the
// first attempt; the delay doubles after every attempt up to MaxBackoff.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
	MaxBackoff  time.Duration
}

var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, Backoff: 500 * time.Millisecond, MaxBackoff: 10 * time.Second}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.Backoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxBackoff > 0 && d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	return d
}

type Orchestrator struct {
	serializer  *serializer.Serializer
	signer      *signature.Service
	validator   *validator.Validator
	transmitter Transmitter
	retry       RetryPolicy
	tolerance   *decimal.Decimal
	locks       mutex.KeyedRWMutex[string]
}

type Option func(*Orchestrator)

func WithSerializer(s *serializer.Serializer) Option {
	return func(o *Orchestrator) {
		o.serializer = s
	}
}

func WithSigner(s *signature.Service) Option {
	return func(o *Orchestrator) {
		o.signer = s
	}
}

func WithValidator(v *validator.Validator) Option {
	return func(o *Orchestrator) {
		o.validator = v
	}
}

func WithRetryPolicy(p RetryPolicy) Option {
	return func(o *Orchestrator) {
		o.retry = p
	}
}

// WithTotalsCheck rejects documents whose totals do not add up within the
// tolerance before anything is serialized.
func WithTotalsCheck(t decimal.Decimal) Option {
	return func(o *Orchestrator) {
		o.tolerance = &t
	}
}

func New(transmitter Transmitter, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		serializer:  serializer.New(),
		signer:      signature.NewService(),
		validator:   validator.New(),
		transmitter: transmitter,
		retry:       DefaultRetryPolicy,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.retry.MaxAttempts < 1 {
		o.retry.MaxAttempts = 1
	}
	return o
}

// Outcome of one emission. Fields are filled up to the stage reached.
type Outcome struct {
	Document   *model.Document
	SignedXML  string
	Validation validator.Result
	Result     *transmission.Result
	Attempts   int
}

// Emit runs the whole pipeline. The error is a *StageError; a document left
// pending by the authority (SENT) is not an error.
func (o *Orchestrator) Emit(ctx context.Context, in *model.DocumentInput, cfg transmission.Config) (*Outcome, error) {
	out := &Outcome{}
	if in == nil {
		return out, &StageError{Stage: StageSerialize, Err: serializer.ErrNilInput}
	}

	if o.tolerance != nil {
		if err := in.CheckTotals(*o.tolerance); err != nil {
			return out, &StageError{Stage: StageCheck, Err: err}
		}
	}

	doc, err := o.serializer.Serialize(in)
	if err != nil {
		return out, &StageError{Stage: StageSerialize, Err: err}
	}
	out.Document = doc
	log := logger.WithField("access_key", doc.AccessKey)
	log.Debug("serialized")

	signed, err := o.signer.Sign(doc.XML, cfg.Credential)
	if err != nil {
		return out, &StageError{Stage: StageSign, Err: err}
	}
	out.SignedXML = signed
	log.Debug("signed")

	out.Validation = o.validator.Validate(signed)
	if !out.Validation.Valid {
		return out, &StageError{Stage: StageValidate, Err: out.Validation.Err()}
	}
	log.Debug("validated")

	o.locks.Lock(doc.AccessKey)
	defer o.locks.Unlock(doc.AccessKey)

	out.Result, out.Attempts = o.attempt(ctx, func() *transmission.Result {
		return o.transmitter.Submit(ctx, signed, cfg)
	})
	return out, transmitError(out.Result)
}

// Query asks for the status of key, retrying transient failures. It may run
// alongside other queries of the same key but waits for a submission or a
// cancellation of it.
func (o *Orchestrator) Query(ctx context.Context, key string, cfg transmission.Config) (*transmission.Result, error) {
	o.locks.RLock(key)
	defer o.locks.RUnlock(key)

	res, _ := o.attempt(ctx, func() *transmission.Result {
		return o.transmitter.Query(ctx, key, cfg)
	})
	return res, transmitError(res)
}

// Cancel waits for an in-flight submission of the same key.
func (o *Orchestrator) Cancel(ctx context.Context, key, justification string, cfg transmission.Config) (*transmission.Result, error) {
	o.locks.Lock(key)
	defer o.locks.Unlock(key)

	res, _ := o.attempt(ctx, func() *transmission.Result {
		return o.transmitter.Cancel(ctx, key, justification, cfg)
	})
	return res, transmitError(res)
}

// attempt stops at the first result that is not transient, when attempts
// run out or when ctx ends during a backoff.
func (o *Orchestrator) attempt(ctx context.Context, fn func() *transmission.Result) (*transmission.Result, int) {
	var res *transmission.Result
	n := 0
	for n < o.retry.MaxAttempts {
		n++
		res = fn()
		if res.State != transmission.StateTransientError || n == o.retry.MaxAttempts {
			break
		}

		d := o.retry.delay(n)
		logger.WithFields(logrus.Fields{
			"attempt": n,
			"backoff": d,
		}).Warnf("transient failure: %s", res.Message)

		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return res, n
		case <-t.C:
		}
	}
	return res, n
}

func transmitError(res *transmission.Result) error {
	if res.Success || res.State == transmission.StateSent {
		return nil
	}
	return &StageError{Stage: StageTransmit, Err: errors.Wrap(ErrNotAuthorized, res.Message)}
}
