// ABOUTME: Dispatcher fanning transport events out to explicitly registered typed handlers
// ABOUTME: Each delivery runs in its own goroutine; handler panics are recovered and logged

package transport

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Handler signatures. Handlers receive events asynchronously and must do
// their own error handling; nothing they do can fail the event loop.
type (
	MessageHandler     func(ctx context.Context, evt MessageEvent)
	ParticipantHandler func(ctx context.Context, evt ParticipantEvent)
	ReceiptHandler     func(ctx context.Context, evt ReceiptEvent)
	CredentialsHandler func(ctx context.Context, evt CredentialsEvent)
)

// Dispatcher routes transport events to registered handlers. Handlers are
// registered per event type, so each handler's input type is statically
// known. Every delivery runs in its own goroutine: a slow persistence or
// transport call in one handler never blocks handling of other events.
type Dispatcher struct {
	mu           sync.RWMutex
	messages     []MessageHandler
	participants []ParticipantHandler
	receipts     []ReceiptHandler
	credentials  []CredentialsHandler

	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		logger: logger.With("component", "dispatcher"),
	}
}

// OnMessage registers a handler for incoming messages.
func (d *Dispatcher) OnMessage(h MessageHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.messages = append(d.messages, h)
}

// OnParticipant registers a handler for group membership changes.
func (d *Dispatcher) OnParticipant(h ParticipantHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.participants = append(d.participants, h)
}

// OnReceipt registers a handler for delivery-status updates.
func (d *Dispatcher) OnReceipt(h ReceiptHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.receipts = append(d.receipts, h)
}

// OnCredentials registers a handler for credential rotation.
func (d *Dispatcher) OnCredentials(h CredentialsHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.credentials = append(d.credentials, h)
}

// DispatchMessage delivers a message event to all message handlers.
func (d *Dispatcher) DispatchMessage(ctx context.Context, evt MessageEvent) {
	d.mu.RLock()
	handlers := d.messages
	d.mu.RUnlock()

	for _, h := range handlers {
		d.deliver(ctx, "message", func(ctx context.Context) { h(ctx, evt) })
	}
}

// DispatchParticipant delivers a membership change to all participant handlers.
func (d *Dispatcher) DispatchParticipant(ctx context.Context, evt ParticipantEvent) {
	d.mu.RLock()
	handlers := d.participants
	d.mu.RUnlock()

	for _, h := range handlers {
		d.deliver(ctx, "participant", func(ctx context.Context) { h(ctx, evt) })
	}
}

// DispatchReceipt delivers a delivery-status update to all receipt handlers.
func (d *Dispatcher) DispatchReceipt(ctx context.Context, evt ReceiptEvent) {
	d.mu.RLock()
	handlers := d.receipts
	d.mu.RUnlock()

	for _, h := range handlers {
		d.deliver(ctx, "receipt", func(ctx context.Context) { h(ctx, evt) })
	}
}

// DispatchCredentials delivers a rotation signal to all credential handlers.
func (d *Dispatcher) DispatchCredentials(ctx context.Context, evt CredentialsEvent) {
	d.mu.RLock()
	handlers := d.credentials
	d.mu.RUnlock()

	for _, h := range handlers {
		d.deliver(ctx, "credentials", func(ctx context.Context) { h(ctx, evt) })
	}
}

// deliver runs one handler invocation in its own goroutine with panic
// recovery. No failure inside a handler may terminate the process.
func (d *Dispatcher) deliver(ctx context.Context, kind string, fn func(ctx context.Context)) {
	eventID := uuid.NewString()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("handler panicked", "event", kind, "event_id", eventID, "panic", r)
			}
		}()
		fn(ctx)
	}()
}

// Wait blocks until all in-flight deliveries have finished. Used during
// shutdown and in tests.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
