package audit

import (
	"context"
	"time"

	"github.com/alapierre/go-nfe-client/nfe/util"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("component", "nfe.audit")

const (
	DefaultPageSize     = 20
	MaxPageSize         = 100
	DefaultWindowDays   = 30
	defaultWriteTimeout = 5 * time.Second
)

// Logger is stateless between calls; concurrency is the store's concern.
type Logger struct {
	store        Store
	breaker      *CircuitBreaker
	metrics      *Metrics
	now          func() time.Time
	writeTimeout time.Duration
}

type Option func(*Logger)

func WithCircuitBreaker(cb *CircuitBreaker) Option {
	return func(l *Logger) {
		l.breaker = cb
	}
}

func WithMetrics(m *Metrics) Option {
	return func(l *Logger) {
		l.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(l *Logger) {
		l.now = now
	}
}

func WithWriteTimeout(d time.Duration) Option {
	return func(l *Logger) {
		l.writeTimeout = d
	}
}

func NewLogger(store Store, opts ...Option) *Logger {
	l := &Logger{
		store:        store,
		breaker:      NewCircuitBreaker(5, 30*time.Second),
		now:          time.Now,
		writeTimeout: defaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.metrics == nil {
		l.metrics = NewMetrics(nil)
	}
	return l
}

// Record persists rec on a best effort basis. It never fails and never
// panics: store errors are logged and counted. Cancellation of ctx does not
// interrupt a write that has started.
func (l *Logger) Record(ctx context.Context, rec Record) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("audit store panic: %v", r)
			l.metrics.PersistFailures.Inc()
		}
	}()

	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = l.now()
	}
	rec.Timestamp = rec.Timestamp.UTC()
	rec.Request = util.Truncate(rec.Request, PayloadLimit)
	rec.Response = util.Truncate(rec.Response, PayloadLimit)

	log := logger.WithFields(logrus.Fields{
		"operation":  rec.Operation,
		"access_key": rec.AccessKey,
		"status":     rec.StatusCode,
	})

	if !l.breaker.Allow() {
		l.metrics.Dropped.Inc()
		log.Warn("audit store circuit open, record dropped")
		return
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.writeTimeout)
	defer cancel()

	if err := l.store.Append(wctx, rec); err != nil {
		l.breaker.RecordFailure()
		l.metrics.PersistFailures.Inc()
		l.metrics.setBreaker(l.breaker.IsOpen())
		log.WithError(err).Error("audit record not persisted")
		return
	}

	l.breaker.RecordSuccess()
	l.metrics.setBreaker(false)
	l.metrics.Recorded.WithLabelValues(string(rec.Operation), string(rec.Outcome)).Inc()
	log.Debug("audit record persisted")
}

// Query returns one page of the issuer's records. Pages are 1-based; the
// page size defaults to DefaultPageSize and is capped at MaxPageSize.
func (l *Logger) Query(ctx context.Context, issuerID string, f Filter, page, pageSize int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	records, total, err := l.store.List(ctx, issuerID, f, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, errors.Wrap(err, "list audit records")
	}
	if records == nil {
		records = []Record{}
	}

	return &Page{
		Records:    records,
		Total:      total,
		Page:       page,
		TotalPages: (total + pageSize - 1) / pageSize,
	}, nil
}

// Stats summarizes the issuer's records of the last windowDays days
// (DefaultWindowDays when not positive).
func (l *Logger) Stats(ctx context.Context, issuerID string, windowDays int) (*Stats, error) {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	since := l.now().UTC().AddDate(0, 0, -windowDays)

	groups, err := l.store.Aggregate(ctx, issuerID, since)
	if err != nil {
		return nil, errors.Wrap(err, "aggregate audit records")
	}
	st := Fold(groups)
	return &st, nil
}
