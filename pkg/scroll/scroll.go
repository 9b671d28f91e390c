// Package scroll defines the document-scroll contract: a cursor over the ids
// of every document matching a query, fetched one batch at a time.
package scroll

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Strategy names a scroll implementation.
type Strategy string

const (
	// StrategyDocument scrolls a full-text index.
	StrategyDocument Strategy = "document"

	// StrategyStatic treats the query as a literal list of document ids.
	StrategyStatic Strategy = "static"
)

// DefaultKeepAlive bounds how long a cursor may sit idle between batches.
const DefaultKeepAlive = 60 * time.Second

// Request describes one scroll.
type Request struct {
	Query      string
	Username   string
	Repository string

	// Size is the number of ids returned per Next call.
	Size int

	// KeepAlive is the maximum idle time between two Next calls.
	KeepAlive time.Duration

	// Strategy selects the implementation; empty means the registry default.
	Strategy Strategy
}

// Cursor is an open scroll. It must be closed on every path, including when
// it was never drained.
type Cursor interface {
	HasNext() bool
	Next(ctx context.Context) ([]string, error)
	Close() error
}

// Service opens cursors.
type Service interface {
	Open(ctx context.Context, req Request) (Cursor, error)
}

// Registry dispatches Open to the strategy named by the request.
type Registry struct {
	def        Strategy
	strategies map[Strategy]Service
}

// NewRegistry returns an empty registry using def for requests that name no
// strategy.
func NewRegistry(def Strategy) *Registry {
	return &Registry{
		def:        def,
		strategies: make(map[Strategy]Service),
	}
}

// Register adds or replaces the implementation of name.
func (r *Registry) Register(name Strategy, svc Service) {
	r.strategies[name] = svc
}

// Strategies returns the registered strategy names, sorted.
func (r *Registry) Strategies() []Strategy {
	names := make([]Strategy, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Open implements Service.
func (r *Registry) Open(ctx context.Context, req Request) (Cursor, error) {
	name := req.Strategy
	if name == "" {
		name = r.def
	}
	svc, ok := r.strategies[name]
	if !ok {
		return nil, &Error{
			Op:  "Open",
			Err: ErrUnknownStrategy,
			Msg: fmt.Sprintf("strategy %q", name),
		}
	}
	req.Strategy = name
	if req.KeepAlive <= 0 {
		req.KeepAlive = DefaultKeepAlive
	}
	return svc.Open(ctx, req)
}
