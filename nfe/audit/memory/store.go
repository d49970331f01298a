// Package memory is an in-process audit.Store.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/alapierre/go-nfe-client/nfe/audit"
)

type Store struct {
	mu      sync.RWMutex
	records []audit.Record
}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) Append(_ context.Context, rec audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *Store) List(_ context.Context, issuerID string, f audit.Filter, offset, limit int) ([]audit.Record, int, error) {
	s.mu.RLock()
	var matched []audit.Record
	for i := range s.records {
		if s.records[i].IssuerID == issuerID && f.Match(&s.records[i]) {
			matched = append(matched, s.records[i])
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	total := len(matched)
	if offset >= total {
		return []audit.Record{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (s *Store) Aggregate(_ context.Context, issuerID string, since time.Time) ([]audit.Aggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type key struct {
		op      audit.Operation
		outcome audit.Outcome
	}
	groups := map[key]*audit.Aggregate{}
	var order []key

	for _, r := range s.records {
		if r.IssuerID != issuerID || r.Timestamp.Before(since) {
			continue
		}
		k := key{r.Operation, r.Outcome}
		g, ok := groups[k]
		if !ok {
			g = &audit.Aggregate{Operation: r.Operation, Outcome: r.Outcome}
			groups[k] = g
			order = append(order, k)
		}
		g.Count++
		g.LatencyMs += r.LatencyMs
	}

	out := make([]audit.Aggregate, 0, len(order))
	for _, k := range order {
		out = append(out, *groups[k])
	}
	return out, nil
}

// All returns a copy of every record, oldest first.
func (s *Store) All() []audit.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Record{}, s.records...)
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
}
