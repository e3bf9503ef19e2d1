// Package calendar adapts external calendar providers to one busy-time
// interface. Adapters only ever read free/busy data; full event content is
// never mirrored.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hireloop/scheduling/internal/model"
)

// ErrTokenExpired signals that an account's credentials can no longer be
// used. Callers treat it like any other degradation: the account contributes
// no busy time.
var ErrTokenExpired = errors.New("calendar account token expired or revoked")

// Provider fetches busy intervals for one linked account in [from, to).
// Implementations must honor ctx deadlines; the aggregator bounds every call.
type Provider interface {
	Name() string
	BusySlots(ctx context.Context, account model.CalendarAccount, from, to time.Time) ([]model.BusyInterval, error)
}

// Registry maps an account's provider column to its adapter.
type Registry struct {
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

func (r *Registry) For(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for provider %q", name)
	}
	return p, nil
}
