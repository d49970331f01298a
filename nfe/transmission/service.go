// Package transmission sends signed documents, status queries and
// cancellation events to the regional authority and maps every answer onto
// one fixed status taxonomy. Business outcomes are Result values, never
// errors; each call performs exactly one attempt and leaves exactly one
// audit record.
package transmission

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/alapierre/go-nfe-client/nfe"
	"github.com/alapierre/go-nfe-client/nfe/accesskey"
	"github.com/alapierre/go-nfe-client/nfe/audit"
	"github.com/alapierre/go-nfe-client/nfe/batch"
	"github.com/alapierre/go-nfe-client/nfe/signature"
	"github.com/alapierre/go-nfe-client/nfe/util"
	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("component", "nfe.transmission")

// DefaultTimeout applies when Config.Timeout is not positive.
const DefaultTimeout = 30 * time.Second

// Recorder receives the audit record of every call; audit.Logger is one.
type Recorder interface {
	Record(ctx context.Context, rec audit.Record)
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, audit.Record) {}

// Config of one call. The credential is only read.
type Config struct {
	Environment nfe.Environment
	Region      string
	Credential  signature.Credential
	Timeout     time.Duration

	// IssuerID is used for the audit trail when no access key is known.
	IssuerID string
	// Protocol of the authorization, sent as nProt in a cancellation event.
	Protocol string
}

type Result struct {
	Success   bool
	State     State
	Code      string
	Message   string
	Protocol  string
	AccessKey string
	// Response is an excerpt of the raw answer.
	Response string
	Latency  time.Duration
}

type Service struct {
	authority Authority
	routing   Routing
	recorder  Recorder
	signer    *signature.Service
	metrics   *Metrics
	now       func() time.Time
}

type Option func(*Service)

func WithRouting(r Routing) Option {
	return func(s *Service) {
		s.routing = r
	}
}

func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		s.recorder = r
	}
}

// WithEventSigner sets the signature service used for cancellation events.
func WithEventSigner(signer *signature.Service) Option {
	return func(s *Service) {
		s.signer = signer
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(authority Authority, opts ...Option) *Service {
	s := &Service{
		authority: authority,
		routing:   DefaultRouting(),
		recorder:  nopRecorder{},
		signer:    signature.NewService(),
		metrics:   NewMetrics(nil),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type call struct {
	op      audit.Operation
	key     string
	issuer  string
	request string
	started time.Time
}

var documentKeyRe = regexp.MustCompile(`Id="NFe(\d{44})"`)

// Submit sends one signed document for authorization.
func (s *Service) Submit(ctx context.Context, doc string, cfg Config) *Result {
	c := s.begin(audit.OpSubmit, cfg)
	if m := documentKeyRe.FindStringSubmatch(doc); m != nil {
		c.key = m[1]
	}

	if strings.TrimSpace(doc) == "" {
		return s.finish(ctx, c, failure(StateInputError, "document is empty"))
	}
	if res := s.preflight(cfg); res != nil {
		return s.finish(ctx, c, res)
	}
	endpoint, res := s.resolve(cfg)
	if res != nil {
		return s.finish(ctx, c, res)
	}

	lot, err := batch.NewLot(doc)
	if err != nil {
		return s.finish(ctx, c, failure(StateInputError, err.Error()))
	}
	body, err := lot.XML()
	if err != nil {
		return s.finish(ctx, c, failure(StateInputError, err.Error()))
	}
	if c.request, err = RequestEnvelope(c.op, body); err != nil {
		return s.finish(ctx, c, failure(StateInputError, err.Error()))
	}

	return s.finish(ctx, c, s.dispatch(ctx, c, endpoint, cfg))
}

// Query asks for the current status of an access key.
func (s *Service) Query(ctx context.Context, key string, cfg Config) *Result {
	c := s.begin(audit.OpQuery, cfg)
	c.key = strings.TrimSpace(key)

	if err := checkKey(c.key); err != nil {
		return s.finish(ctx, c, failure(StateInputError, err.Error()))
	}
	if res := s.preflight(cfg); res != nil {
		return s.finish(ctx, c, res)
	}
	endpoint, res := s.resolve(cfg)
	if res != nil {
		return s.finish(ctx, c, res)
	}

	body, err := queryBody(cfg.Environment, c.key)
	if err == nil {
		c.request, err = RequestEnvelope(c.op, body)
	}
	if err != nil {
		return s.finish(ctx, c, failure(StateInputError, err.Error()))
	}

	return s.finish(ctx, c, s.dispatch(ctx, c, endpoint, cfg))
}

// Cancel registers a cancellation event. The justification needs at least
// 15 characters.
func (s *Service) Cancel(ctx context.Context, key, justification string, cfg Config) *Result {
	c := s.begin(audit.OpCancel, cfg)
	c.key = strings.TrimSpace(key)
	justification = strings.TrimSpace(justification)

	if err := checkKey(c.key); err != nil {
		return s.finish(ctx, c, failure(StateInputError, err.Error()))
	}
	if n := utf8.RuneCountInString(justification); n < MinJustificationLen || n > MaxJustificationLen {
		return s.finish(ctx, c, failure(StateInputError,
			fmt.Sprintf("justification must have %d to %d characters, got %d", MinJustificationLen, MaxJustificationLen, n)))
	}
	if res := s.preflight(cfg); res != nil {
		return s.finish(ctx, c, res)
	}
	endpoint, res := s.resolve(cfg)
	if res != nil {
		return s.finish(ctx, c, res)
	}

	event, err := cancelEvent(cancelModel{
		Region:        c.key[:2],
		Environment:   cfg.Environment.Code(),
		IssuerID:      c.key[6:20],
		AccessKey:     c.key,
		At:            s.now().Format(timestampLayout),
		Protocol:      cfg.Protocol,
		Justification: justification,
	})
	if err != nil {
		return s.finish(ctx, c, failure(StateInputError, err.Error()))
	}
	signed, err := s.signer.Sign(event, cfg.Credential)
	if err != nil {
		return s.finish(ctx, c, failure(StateCredentialError, "sign cancellation event: "+err.Error()))
	}
	lotID, err := batch.NewLotID()
	if err != nil {
		return s.finish(ctx, c, failure(StateInputError, err.Error()))
	}
	body, err := eventLot(lotID, signed)
	if err == nil {
		c.request, err = RequestEnvelope(c.op, body)
	}
	if err != nil {
		return s.finish(ctx, c, failure(StateInputError, err.Error()))
	}

	return s.finish(ctx, c, s.dispatch(ctx, c, endpoint, cfg))
}

func (s *Service) begin(op audit.Operation, cfg Config) *call {
	return &call{op: op, issuer: cfg.IssuerID, started: s.now()}
}

// preflight checks the credential. It never looks at routing.
func (s *Service) preflight(cfg Config) *Result {
	if err := cfg.Credential.Validate(); err != nil {
		return failure(StateCredentialError, err.Error())
	}
	return nil
}

func (s *Service) resolve(cfg Config) (string, *Result) {
	endpoint, ok := s.routing.Endpoint(cfg.Environment, cfg.Region)
	if !ok {
		return "", failure(StateRoutingError,
			fmt.Sprintf("no %s endpoint for region %q", cfg.Environment, cfg.Region))
	}
	return endpoint, nil
}

func (s *Service) dispatch(ctx context.Context, c *call, endpoint string, cfg Config) *Result {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	log := logger.WithFields(logrus.Fields{
		"operation":  c.op,
		"access_key": c.key,
		"endpoint":   endpoint,
	})
	log.Debug("dispatching")

	start := s.now()
	reply, err := s.authority.Do(dctx, &Request{
		Operation:   c.op,
		Endpoint:    endpoint,
		Environment: cfg.Environment,
		Region:      strings.ToUpper(cfg.Region),
		AccessKey:   c.key,
		Body:        c.request,
	})
	s.metrics.Latency.WithLabelValues(string(c.op)).Observe(s.now().Sub(start).Seconds())

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || dctx.Err() != nil {
			log.Warnf("no answer within %s", timeout)
			return failure(StateTransientError, fmt.Sprintf("no answer within %d ms", timeout.Milliseconds()))
		}
		log.WithError(err).Warn("transport failure")
		return failure(StateTransientError, "transport failure: "+err.Error())
	}
	return fromReply(reply)
}

func fromReply(reply *Reply) *Result {
	raw := strings.TrimSpace(reply.Code)
	code := Normalize(raw)

	msg := strings.TrimSpace(reply.Message)
	switch {
	case code != raw:
		msg = fmt.Sprintf("%s (remote status %q: %s)", Describe(code), raw, msg)
	case msg == "":
		msg = Describe(code)
	}

	return &Result{
		Success:  IsSuccess(code),
		State:    Classify(code),
		Code:     code,
		Message:  msg,
		Protocol: reply.Protocol,
		Response: reply.Body,
	}
}

// failure is a result decided locally. Transient failures carry 999.
func failure(state State, msg string) *Result {
	res := &Result{State: state, Message: msg}
	if state == StateTransientError {
		res.Code = CodeUnclassified
	}
	return res
}

func (s *Service) finish(ctx context.Context, c *call, res *Result) *Result {
	res.AccessKey = c.key
	res.Latency = s.now().Sub(c.started)

	issuer := c.issuer
	if len(c.key) == accesskey.Length {
		issuer = c.key[6:20]
	}

	s.recorder.Record(ctx, audit.Record{
		Operation:     c.op,
		IssuerID:      issuer,
		AccessKey:     c.key,
		Request:       c.request,
		Response:      res.Response,
		StatusCode:    res.Code,
		StatusMessage: res.Message,
		LatencyMs:     res.Latency.Milliseconds(),
		Timestamp:     c.started,
		Protocol:      res.Protocol,
		Outcome:       outcome(res),
	})
	s.metrics.Calls.WithLabelValues(string(c.op), string(res.State)).Inc()

	res.Response = util.Truncate(res.Response, audit.PayloadLimit)

	logger.WithFields(logrus.Fields{
		"operation":  c.op,
		"access_key": c.key,
		"state":      res.State,
		"code":       res.Code,
	}).Info(res.Message)

	return res
}

func outcome(res *Result) audit.Outcome {
	switch {
	case res.Success:
		return audit.OutcomeSuccess
	case res.State == StateSent:
		return audit.OutcomePending
	default:
		return audit.OutcomeError
	}
}

func checkKey(key string) error {
	if len(key) != accesskey.Length {
		return errors.Errorf("access key must have %d characters, got %d", accesskey.Length, len(key))
	}
	return accesskey.Check(key)
}
