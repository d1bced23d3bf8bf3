// Package signal turns SIGINT and SIGTERM into context cancellation for
// long-running tokengov commands.
//
// The first signal cancels the handler's context so monitors and the MCP
// server can drain. A second signal invokes the force callback, which lets
// an operator abandon a shutdown stuck in a store call.
//
// Import rules:
//   - CAN import: std lib only
//   - MUST NOT import: internal packages (to avoid circular dependencies)
package signal

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// Handler cancels its context on the first signal and escalates on the second.
type Handler struct {
	ctx         context.Context //nolint:containedctx // intentional: handler manages context lifecycle
	cancel      context.CancelFunc
	interrupted chan struct{}
	done        chan struct{}
	stopOnce    sync.Once
	sigChan     chan os.Signal
	signals     []os.Signal
	onForce     func(sig os.Signal)

	mu       sync.Mutex
	first    os.Signal
	received int
}

// Option configures a Handler.
type Option func(*Handler)

// WithForceExit sets the callback run when a second signal arrives while the
// first is still being handled. Typically it calls os.Exit.
func WithForceExit(fn func(sig os.Signal)) Option {
	return func(h *Handler) {
		h.onForce = fn
	}
}

// WithSignals replaces the default SIGINT and SIGTERM set.
func WithSignals(sigs ...os.Signal) Option {
	return func(h *Handler) {
		if len(sigs) > 0 {
			h.signals = sigs
		}
	}
}

// NewHandler starts listening for signals. Always call Stop when done.
//
//	h := signal.NewHandler(ctx, signal.WithForceExit(func(os.Signal) { os.Exit(130) }))
//	defer h.Stop()
//	ctx = h.Context()
func NewHandler(parent context.Context, opts ...Option) *Handler {
	ctx, cancel := context.WithCancel(parent)
	h := &Handler{
		ctx:         ctx,
		cancel:      cancel,
		interrupted: make(chan struct{}),
		done:        make(chan struct{}),
		// Buffer of 1 ensures signal.Notify doesn't drop signals if handler is busy.
		sigChan: make(chan os.Signal, 1),
		signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
	}
	for _, opt := range opts {
		opt(h)
	}

	signal.Notify(h.sigChan, h.signals...)
	go h.listen()

	return h
}

// Context returns the context canceled by the first signal or by Stop.
func (h *Handler) Context() context.Context {
	return h.ctx
}

// Interrupted returns a channel closed when the first signal arrives.
func (h *Handler) Interrupted() <-chan struct{} {
	return h.interrupted
}

// Signal returns the first signal received, or nil.
func (h *Handler) Signal() os.Signal {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.first
}

// Stop unregisters the handler and cancels its context. Safe to call more than once.
func (h *Handler) Stop() {
	h.stopOnce.Do(func() {
		signal.Stop(h.sigChan)
		close(h.done)
		h.cancel()
	})
}

func (h *Handler) handleSignal(sig os.Signal) {
	h.mu.Lock()
	h.received++
	n := h.received
	if n == 1 {
		h.first = sig
	}
	h.mu.Unlock()

	switch {
	case n == 1:
		h.cancel()
		close(h.interrupted)
	case n == 2 && h.onForce != nil:
		h.onForce(sig)
	}
}

// listen keeps draining signals after the first so that a second one can
// escalate. It exits only on Stop.
func (h *Handler) listen() {
	for {
		select {
		case <-h.done:
			return
		case sig := <-h.sigChan:
			h.handleSignal(sig)
		}
	}
}
