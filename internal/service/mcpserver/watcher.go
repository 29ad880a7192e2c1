package mcpserver

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Watcher shares one readiness poll between concurrent waiters on the same
// server and publishes every observation. The shared poll is cancelled once
// the last waiter leaves.
type Watcher struct {
	poller  *Poller
	publish Observer
	group   singleflight.Group

	mu      sync.Mutex
	flights map[string]*flight
}

type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// NewWatcher wraps poller. publish may be nil.
func NewWatcher(poller *Poller, publish Observer) *Watcher {
	return &Watcher{poller: poller, publish: publish, flights: make(map[string]*flight)}
}

// Wait blocks until name is ready, failed, timed out or ctx is done.
func (w *Watcher) Wait(ctx context.Context, name string) (string, error) {
	for {
		url, err := w.wait(ctx, name)
		// A poll torn down by earlier waiters leaving is not this caller's result.
		if errors.Is(err, context.Canceled) && ctx.Err() == nil {
			continue
		}
		return url, err
	}
}

func (w *Watcher) wait(ctx context.Context, name string) (string, error) {
	f := w.join(name)
	defer w.leave(name, f)

	ch := w.group.DoChan(name, func() (any, error) {
		var observers []Observer
		if w.publish != nil {
			observers = append(observers, w.publish)
		}
		return w.poller.WaitUntilReady(f.ctx, name, observers...)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (w *Watcher) join(name string) *flight {
	w.mu.Lock()
	defer w.mu.Unlock()
	f, ok := w.flights[name]
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		f = &flight{ctx: ctx, cancel: cancel}
		w.flights[name] = f
	}
	f.waiters++
	return f
}

func (w *Watcher) leave(name string, f *flight) {
	w.mu.Lock()
	defer w.mu.Unlock()
	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if w.flights[name] == f {
		delete(w.flights, name)
	}
}
