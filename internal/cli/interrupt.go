package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// InterruptHandler turns SIGINT/SIGTERM into context cancellation with a
// short explanation of what was kept.
type InterruptHandler struct {
	writer      io.Writer
	operation   string
	resumeHint  string
	interrupted bool
	mu          sync.Mutex
}

// NewInterruptHandler creates a new interrupt handler.
func NewInterruptHandler(writer io.Writer) *InterruptHandler {
	if writer == nil {
		writer = os.Stderr
	}
	return &InterruptHandler{writer: writer}
}

// HandleInterrupts returns a context canceled on the first interrupt.
// operation names what is being interrupted; resumeHint, when set, tells
// the user how to continue.
func (h *InterruptHandler) HandleInterrupts(ctx context.Context, operation, resumeHint string) context.Context {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	ctx, stop := h.watch(ctx, operation, resumeHint, sigChan)
	context.AfterFunc(ctx, func() {
		signal.Stop(sigChan)
		stop()
	})
	return ctx
}

func (h *InterruptHandler) watch(ctx context.Context, operation, resumeHint string, signals <-chan os.Signal) (context.Context, context.CancelFunc) {
	h.mu.Lock()
	h.operation = operation
	h.resumeHint = resumeHint
	h.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-signals:
			h.mu.Lock()
			if !h.interrupted {
				h.interrupted = true
				h.showInterruptMessage()
			}
			h.mu.Unlock()
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// showInterruptMessage must be called with h.mu held.
func (h *InterruptHandler) showInterruptMessage() {
	msg := "\n\n" + FormatWarning(h.operation+" interrupted")
	msg += "\n" + FormatInfo("Changes already written are kept.")
	if h.resumeHint != "" {
		msg += "\n" + FormatInfo("Continue with: "+h.resumeHint)
	}
	msg += "\n"

	if _, err := fmt.Fprint(h.writer, msg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write interrupt message: %v\n", err)
	}
}

// WasInterrupted returns true if the process was interrupted.
func (h *InterruptHandler) WasInterrupted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.interrupted
}
