package memory

import (
	"context"
	"testing"
	"time"

	"github.com/alapierre/go-nfe-client/nfe/audit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_ListNewestFirst(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	base := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(ctx, audit.Record{
			IssuerID:  "1",
			Operation: audit.OpSubmit,
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}))
	}

	out, total, err := s.List(ctx, "1", audit.Filter{}, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, out, 2)
	assert.Equal(t, base.Add(3*time.Second), out[0].Timestamp)
	assert.Equal(t, base.Add(2*time.Second), out[1].Timestamp)

	out, total, err = s.List(ctx, "2", audit.Filter{}, 0, 10)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, out)
}

func TestStore_AggregateAndClear(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	now := time.Now().UTC()

	_ = s.Append(ctx, audit.Record{IssuerID: "1", Operation: audit.OpSubmit, Outcome: audit.OutcomeSuccess, LatencyMs: 10, Timestamp: now})
	_ = s.Append(ctx, audit.Record{IssuerID: "1", Operation: audit.OpSubmit, Outcome: audit.OutcomeSuccess, LatencyMs: 30, Timestamp: now})
	_ = s.Append(ctx, audit.Record{IssuerID: "1", Operation: audit.OpQuery, Outcome: audit.OutcomeError, LatencyMs: 5, Timestamp: now.Add(-time.Hour)})

	groups, err := s.Aggregate(ctx, "1", now.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, 2, groups[0].Count)
	assert.Equal(t, int64(40), groups[0].LatencyMs)

	s.Clear()
	assert.Empty(t, s.All())
}
