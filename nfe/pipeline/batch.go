package pipeline

import (
	"context"

	"github.com/alapierre/go-nfe-client/nfe/model"
	"github.com/alapierre/go-nfe-client/nfe/transmission"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency of EmitBatch.
const DefaultConcurrency = 4

// BatchItem is the outcome of one document of a batch.
type BatchItem struct {
	Outcome *Outcome
	Err     error
}

// EmitBatch emits every input independently with at most concurrency
// documents in flight. Items come back in input order; one failure does not
// stop the others.
func (o *Orchestrator) EmitBatch(ctx context.Context, inputs []*model.DocumentInput, cfg transmission.Config, concurrency int) []BatchItem {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	items := make([]BatchItem, len(inputs))

	var g errgroup.Group
	g.SetLimit(concurrency)

	for i, in := range inputs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				items[i] = BatchItem{Outcome: &Outcome{}, Err: &StageError{Stage: StageTransmit, Err: err}}
				return nil
			}
			out, err := o.Emit(ctx, in, cfg)
			items[i] = BatchItem{Outcome: out, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	logger.WithField("documents", len(inputs)).Debug("batch emitted")
	return items
}
