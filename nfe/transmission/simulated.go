package transmission

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/alapierre/go-nfe-client/nfe/audit"
)

// DefaultSuccessRate of SimulatedAuthority.
const DefaultSuccessRate = 0.9

// simulatedRejections are drawn when a simulated call fails.
var simulatedRejections = []string{"539", "540", "206", CodeUnclassified}

// SimulatedAuthority answers without any network: success with the given
// probability, otherwise a random rejection. It is the development stand-in
// for a real authority.
type SimulatedAuthority struct {
	mu          sync.Mutex
	rnd         *rand.Rand
	successRate float64
	latency     time.Duration
	now         func() time.Time
}

type SimulatedOption func(*SimulatedAuthority)

// WithSeed makes the outcome sequence reproducible.
func WithSeed(seed uint64) SimulatedOption {
	return func(a *SimulatedAuthority) {
		a.rnd = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

func WithSuccessRate(rate float64) SimulatedOption {
	return func(a *SimulatedAuthority) {
		a.successRate = rate
	}
}

// WithLatency delays every answer; a context ending first wins.
func WithLatency(d time.Duration) SimulatedOption {
	return func(a *SimulatedAuthority) {
		a.latency = d
	}
}

func NewSimulatedAuthority(opts ...SimulatedOption) *SimulatedAuthority {
	seed := uint64(time.Now().UnixNano())
	a := &SimulatedAuthority{
		rnd:         rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		successRate: DefaultSuccessRate,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *SimulatedAuthority) Do(ctx context.Context, req *Request) (*Reply, error) {
	if a.latency > 0 {
		t := time.NewTimer(a.latency)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	code, protocol := a.draw(req.Operation)

	body, err := RenderReply(ReplyModel{
		Operation:   req.Operation,
		Environment: req.Environment,
		Region:      regionPrefix(req.AccessKey),
		AccessKey:   req.AccessKey,
		Code:        code,
		Protocol:    protocol,
		At:          a.now(),
	})
	if err != nil {
		return nil, err
	}

	return &Reply{Code: code, Message: Describe(code), Protocol: protocol, Body: body}, nil
}

func (a *SimulatedAuthority) draw(op audit.Operation) (code, protocol string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.rnd.Float64() < a.successRate {
		code = CodeAuthorized
		if op == audit.OpCancel {
			code = CodeEventRegistered
		}
		return code, fmt.Sprintf("1%014d", a.rnd.Int64N(1e14))
	}
	return simulatedRejections[a.rnd.IntN(len(simulatedRejections))], ""
}

func regionPrefix(key string) string {
	if len(key) < 2 {
		return ""
	}
	return key[:2]
}
