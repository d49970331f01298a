// Package audit records every call made to the remote authority and answers
// paged queries and statistics over those records.
package audit

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// PayloadLimit is the maximum number of characters kept of each payload.
const PayloadLimit = 1000

type Operation string

const (
	OpSubmit Operation = "submit"
	OpQuery  Operation = "query"
	OpCancel Operation = "cancel"
)

func ParseOperation(s string) (Operation, error) {
	switch op := Operation(s); op {
	case OpSubmit, OpQuery, OpCancel:
		return op, nil
	}
	return "", errors.Errorf("unknown operation %q", s)
}

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeError   Outcome = "error"
	OutcomePending Outcome = "pending"
)

// Record is one transmission attempt. AccessKey and Protocol may be empty.
type Record struct {
	ID            uuid.UUID
	Operation     Operation
	IssuerID      string
	AccessKey     string
	Request       string
	Response      string
	StatusCode    string
	StatusMessage string
	LatencyMs     int64
	Timestamp     time.Time
	Protocol      string
	Outcome       Outcome
}

// Filter narrows a query. Zero values do not filter.
type Filter struct {
	Operation Operation
	Status    string
	From      time.Time
	To        time.Time
}

// Match reports whether r passes the filter. Stores that cannot push the
// filter down to a query language use it directly.
func (f Filter) Match(r *Record) bool {
	if f.Operation != "" && r.Operation != f.Operation {
		return false
	}
	if f.Status != "" && r.StatusCode != f.Status {
		return false
	}
	if !f.From.IsZero() && r.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && r.Timestamp.After(f.To) {
		return false
	}
	return true
}

type Page struct {
	Records    []Record
	Total      int
	Page       int
	TotalPages int
}

type Stats struct {
	TotalOps      int
	Successes     int
	Errors        int
	Pending       int
	MeanLatencyMs float64
	ByOperation   map[Operation]int
}

// Aggregate is one (operation, outcome) group of a statistics query.
type Aggregate struct {
	Operation Operation
	Outcome   Outcome
	Count     int
	LatencyMs int64
}

// Fold sums groups into Stats.
func Fold(groups []Aggregate) Stats {
	st := Stats{ByOperation: map[Operation]int{}}
	var latency int64
	for _, g := range groups {
		st.TotalOps += g.Count
		st.ByOperation[g.Operation] += g.Count
		latency += g.LatencyMs
		switch g.Outcome {
		case OutcomeSuccess:
			st.Successes += g.Count
		case OutcomeError:
			st.Errors += g.Count
		case OutcomePending:
			st.Pending += g.Count
		}
	}
	if st.TotalOps > 0 {
		st.MeanLatencyMs = float64(latency) / float64(st.TotalOps)
	}
	return st
}

// Store owns the consistency of concurrent appends. A record is written as a
// whole or not at all.
type Store interface {
	Append(ctx context.Context, rec Record) error
	// List returns one page of the issuer's records, newest first, and the
	// number of records matching the filter.
	List(ctx context.Context, issuerID string, f Filter, offset, limit int) ([]Record, int, error)
	// Aggregate groups the issuer's records created at or after since.
	Aggregate(ctx context.Context, issuerID string, since time.Time) ([]Aggregate, error)
}
