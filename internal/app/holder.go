package app

import (
	"context"
	"sync"

	"github.com/ironsheep/receipt-extractor/internal/pipeline"
)

// Holder publishes an App that is initialized in the background.
//
// Until Set is called Get returns ErrNotReady, so an HTTP host can start
// listening and report itself as loading. Close is final: an App set after
// Close is closed right away.
type Holder struct {
	mu     sync.RWMutex
	app    *App
	err    error
	closed bool
}

// Set publishes a. It is called once initialization succeeded.
func (h *Holder) Set(a *App) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = a.Close()
		return
	}
	h.app, h.err = a, nil
	h.mu.Unlock()
}

// Fail records why initialization failed. The host stays not ready.
func (h *Holder) Fail(err error) {
	h.mu.Lock()
	h.err = err
	h.mu.Unlock()
}

// Get returns the App, or ErrNotReady while none is ready.
func (h *Holder) Get() (*App, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.app == nil || !h.app.Ready() {
		return nil, ErrNotReady
	}
	return h.app, nil
}

// Err is the recorded initialization failure, if any.
func (h *Holder) Err() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.err
}

// Ready reports whether a ready App is published.
func (h *Holder) Ready() bool {
	_, err := h.Get()
	return err == nil
}

// Process runs the published App's pipeline.
func (h *Holder) Process(ctx context.Context, data []byte) (*pipeline.Result, error) {
	a, err := h.Get()
	if err != nil {
		return nil, err
	}
	return a.Process(ctx, data)
}

// Close closes the published App, if any, and every App set later.
func (h *Holder) Close() error {
	h.mu.Lock()
	a := h.app
	h.app = nil
	h.closed = true
	h.mu.Unlock()
	if a == nil {
		return nil
	}
	return a.Close()
}
