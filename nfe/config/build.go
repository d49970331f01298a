package config

import (
	"context"
	"net/http"

	"github.com/alapierre/go-nfe-client/nfe/audit"
	"github.com/alapierre/go-nfe-client/nfe/audit/memory"
	"github.com/alapierre/go-nfe-client/nfe/audit/postgres"
	"github.com/alapierre/go-nfe-client/nfe/audit/sqlite"
	"github.com/alapierre/go-nfe-client/nfe/transmission"
	"github.com/go-faster/errors"
)

// OpenAuditStore opens the configured store. The returned func releases it.
func (c *Config) OpenAuditStore(ctx context.Context) (audit.Store, func(), error) {
	switch c.Audit.Driver {
	case DriverSQLite:
		db, err := sqlite.Open(ctx, c.Audit.DSN)
		if err != nil {
			return nil, nil, errors.Wrap(err, "open sqlite audit store")
		}
		w := sqlite.NewWorker(db)
		logger.Debugf("audit store: sqlite %s", c.Audit.DSN)
		return sqlite.NewStore(db, w), func() {
			w.Close()
			_ = db.Close()
		}, nil

	case DriverPostgres:
		db, err := postgres.Open(ctx, c.Audit.DSN)
		if err != nil {
			return nil, nil, errors.Wrap(err, "open postgres audit store")
		}
		logger.Debug("audit store: postgres")
		return postgres.New(db), func() { _ = db.Close() }, nil

	default:
		logger.Debug("audit store: memory")
		return memory.NewStore(), func() {}, nil
	}
}

// NewAuthority builds the authority and the routing that goes with it.
func (c *Config) NewAuthority() (transmission.Authority, transmission.Routing) {
	routing := transmission.Routing(transmission.DefaultRouting())
	if c.Authority.URL != "" {
		routing = transmission.FixedRouting{BaseURL: c.Authority.URL}
	}

	if c.Authority.Mode == ModeHTTP {
		return transmission.NewHTTPAuthority(&http.Client{Timeout: c.Timeout() + c.Timeout()/2}), routing
	}

	opts := []transmission.SimulatedOption{transmission.WithSuccessRate(c.Authority.SuccessRate)}
	if c.Authority.Seed != 0 {
		opts = append(opts, transmission.WithSeed(c.Authority.Seed))
	}
	return transmission.NewSimulatedAuthority(opts...), routing
}

// Service wires the transmission service with the configured authority,
// audit recorder and event signer.
func (c *Config) Service(rec transmission.Recorder, opts ...transmission.Option) *transmission.Service {
	authority, routing := c.NewAuthority()
	all := []transmission.Option{
		transmission.WithRouting(routing),
		transmission.WithEventSigner(c.Signature()),
	}
	if rec != nil {
		all = append(all, transmission.WithRecorder(rec))
	}
	return transmission.NewService(authority, append(all, opts...)...)
}
