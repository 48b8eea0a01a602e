package auth

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-workflow-bridge/token"
)

// LazyFlow builds its Flow on first use. A caller whose token is still valid
// never triggers endpoint discovery.
type LazyFlow struct {
	build func(ctx context.Context) (*Flow, error)

	mu   sync.Mutex
	flow *Flow
}

func NewLazyFlow(build func(ctx context.Context) (*Flow, error)) *LazyFlow {
	return &LazyFlow{build: build}
}

// Get returns the Flow, building it when no earlier call succeeded.
func (l *LazyFlow) Get(ctx context.Context) (*Flow, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.flow != nil {
		return l.flow, nil
	}
	flow, err := l.build(ctx)
	if err != nil {
		return nil, err
	}
	l.flow = flow
	return flow, nil
}

// Built reports whether the Flow has been built.
func (l *LazyFlow) Built() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.flow != nil
}

func (l *LazyFlow) Refresh(ctx context.Context, rec token.Record) (token.Record, error) {
	flow, err := l.Get(ctx)
	if err != nil {
		return token.Record{}, err
	}
	return flow.Refresh(ctx, rec)
}
