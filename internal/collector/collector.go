// Package collector defines the contract every activity source implements and
// the registry that builds the enabled collectors from configuration.
package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pbaille/timeline/internal/domain"
)

// Collector gathers raw records for one source tag.
type Collector interface {
	Source() string
	Policy() Policy
	Collect(ctx context.Context, r domain.DateRange) ([]domain.RawEvent, error)
}

// Cost classifies how expensive re-running a collector is.
type Cost int

const (
	// Cheap collectors read local data and always re-run.
	Cheap Cost = iota
	// Expensive collectors reuse stored raw data when they can.
	Expensive
)

func (c Cost) String() string {
	if c == Expensive {
		return "expensive"
	}
	return "cheap"
}

// ParseCost accepts "cheap", "expensive" or "" (cheap).
func ParseCost(s string) (Cost, error) {
	switch s {
	case "", "cheap":
		return Cheap, nil
	case "expensive":
		return Expensive, nil
	default:
		return Cheap, fmt.Errorf("unknown cost class %q", s)
	}
}

// Policy decides when stored raw data may stand in for a fresh collection.
type Policy struct {
	Cost Cost
	// TTL bounds how old cached data may be; zero means it never expires.
	TTL time.Duration
	// RefreshOnForce lets a refresh request bypass the cache.
	RefreshOnForce bool
}

// CheapPolicy always collects.
var CheapPolicy = Policy{Cost: Cheap, RefreshOnForce: true}

// ExpensivePolicy reuses cached data until a refresh.
func ExpensivePolicy(ttl time.Duration) Policy {
	return Policy{Cost: Expensive, TTL: ttl, RefreshOnForce: true}
}

// Decision is what the orchestrator does with one collector for one range.
type Decision int

const (
	// Collect without touching stored raw data.
	Collect Decision = iota
	// Reuse stored raw data and skip the collector.
	Reuse
	// Refetch deletes stored raw data for the range and collects again.
	Refetch
)

func (d Decision) String() string {
	switch d {
	case Reuse:
		return "reuse"
	case Refetch:
		return "refetch"
	default:
		return "collect"
	}
}

// Decide applies the policy. cachedAt is the latest collection time of stored
// raw data for the range, nil when there is none.
func (p Policy) Decide(cachedAt *time.Time, now time.Time, refresh bool) Decision {
	if p.Cost == Cheap {
		return Collect
	}
	if refresh && p.RefreshOnForce {
		return Refetch
	}
	if cachedAt == nil {
		return Collect
	}
	if p.TTL > 0 && now.Sub(*cachedAt) > p.TTL {
		return Refetch
	}
	return Reuse
}

// Guard runs c and contains its failures: a panic, error or timeout yields no
// records and a *domain.CollectionFailure. Records outside r are dropped.
func Guard(ctx context.Context, c Collector, r domain.DateRange) (events []domain.RawEvent, err error) {
	source := c.Source()
	defer func() {
		if rec := recover(); rec != nil {
			events = nil
			err = &domain.CollectionFailure{Source: source, Err: fmt.Errorf("panic: %v", rec)}
		}
	}()

	got, cerr := c.Collect(ctx, r)
	if cerr == nil && ctx.Err() != nil {
		cerr = ctx.Err()
	}
	if cerr != nil {
		if errors.Is(cerr, context.DeadlineExceeded) {
			cerr = fmt.Errorf("timed out: %w", cerr)
		}
		return nil, &domain.CollectionFailure{Source: source, Err: cerr}
	}

	events = got[:0:0]
	for _, e := range got {
		if e.EventTime != nil && !r.Contains(*e.EventTime) {
			continue
		}
		if e.Source == "" {
			e.Source = source
		}
		events = append(events, e)
	}
	return events, nil
}
