package channels

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"
)

// Registry holds the registered channel adapters, keyed by channel ID.
// Sends go through an optional per-channel token-bucket limiter so a burst
// of scheduled deliveries cannot flood a single platform.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]Channel
	limiters map[string]*rate.Limiter

	sendRate  rate.Limit // per-channel refill rate; 0 = unlimited
	sendBurst int
}

// NewRegistry creates a registry. ratePerMinute <= 0 disables rate limiting.
func NewRegistry(ratePerMinute, burst int) *Registry {
	if burst <= 0 {
		burst = 5
	}
	r := rate.Limit(0)
	if ratePerMinute > 0 {
		r = rate.Limit(float64(ratePerMinute) / 60.0)
	}
	return &Registry{
		channels:  make(map[string]Channel),
		limiters:  make(map[string]*rate.Limiter),
		sendRate:  r,
		sendBurst: burst,
	}
}

// Register adds a channel adapter. The ID must be one of the recognized set.
func (r *Registry) Register(ch Channel) error {
	id := ch.Name()
	if !IsKnown(id) {
		return fmt.Errorf("unrecognized channel id: %s", id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.channels[id]; exists {
		return fmt.Errorf("channel %q already registered", id)
	}
	r.channels[id] = ch
	slog.Info("channel registered", "channel", id)
	return nil
}

// Get returns the channel for id, if registered.
func (r *Registry) Get(id string) (Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[id]
	return ch, ok
}

// IsAvailable reports whether id is registered and ready to send.
func (r *Registry) IsAvailable(id string) bool {
	ch, ok := r.Get(id)
	return ok && ch.IsAvailable()
}

// ListAll returns every registered channel.
func (r *Registry) ListAll() []Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		list = append(list, ch)
	}
	return list
}

// Send dispatches one message through the named channel, applying the
// per-channel rate limit and converting adapter panics into failed results.
func (r *Registry) Send(ctx context.Context, id string, msg OutboundMessage) (res SendResult) {
	ch, ok := r.Get(id)
	if !ok {
		return SendResult{Error: fmt.Sprintf("channel %s not registered", id)}
	}

	if lim := r.limiter(id); lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return SendResult{Error: err.Error()}
		}
	}

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("channel adapter panicked", "channel", id, "panic", rec)
			res = SendResult{Error: fmt.Sprintf("channel %s panicked: %v", id, rec)}
		}
	}()
	return ch.SendMessage(ctx, msg)
}

func (r *Registry) limiter(id string) *rate.Limiter {
	if r.sendRate == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	lim, ok := r.limiters[id]
	if !ok {
		lim = rate.NewLimiter(r.sendRate, r.sendBurst)
		r.limiters[id] = lim
	}
	return lim
}
