// Package simulator is a stand-in for the regional authorization services.
// It speaks the same SOAP 1.2 operations as the real ones, keeps what it
// authorized in memory and answers with the status codes a real authority
// would send for duplicates, unknown keys and repeated cancellations.
package simulator

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/alapierre/go-nfe-client/nfe"
	"github.com/alapierre/go-nfe-client/nfe/audit"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("component", "nfe.simulator")

type State string

const (
	StateAuthorized State = "authorized"
	StateCancelled  State = "cancelled"
)

type record struct {
	state    State
	protocol string
	region   string
}

type Config struct {
	Address      string
	Environment  nfe.Environment
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Debug        bool
}

type Server struct {
	config *Config
	router *gin.Engine
	now    func() time.Time

	mu     sync.Mutex
	docs   map[string]*record
	seq    int64
	paused bool

	registry *prometheus.Registry
	requests *prometheus.CounterVec
}

type Option func(*Server)

func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

func NewServer(config *Config, opts ...Option) *Server {
	if !config.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if config.Debug {
		router.Use(gin.Logger())
	}

	reg := prometheus.NewRegistry()
	s := &Server{
		config:   config,
		router:   router,
		now:      time.Now,
		docs:     make(map[string]*record),
		registry: reg,
		requests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "nfe_simulator_requests_total",
			Help: "Requests answered by the simulator, by operation and status code.",
		}, []string{"operation", "code"}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	s.router.POST("/nfe/:uf", s.handleSOAP)
}

// Run serves until ctx ends or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.config.Address,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("authority simulator (%s) listening on %s", s.config.Environment, s.config.Address)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// SetPaused makes every operation answer 108 (service paused) until resumed.
func (s *Server) SetPaused(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = paused
}

// State reports what the simulator knows about key.
func (s *Server) State(key string) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.docs[key]
	if !ok {
		return "", false
	}
	return r.state, true
}

func (s *Server) handleHealth(c *gin.Context) {
	s.mu.Lock()
	n := len(s.docs)
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"environment": s.config.Environment.Name(),
		"documents":   n,
		"time":        s.now().UTC().Format(time.RFC3339),
	})
}

// nextProtocol returns a 15 digit protocol number: 1, cUF, year, sequence.
// Callers hold mu.
func (s *Server) nextProtocol(region string) string {
	s.seq++
	return fmt.Sprintf("1%s%02d%010d", region, s.now().Year()%100, s.seq)
}

func (s *Server) count(op audit.Operation, code string) {
	s.requests.WithLabelValues(string(op), code).Inc()
}
