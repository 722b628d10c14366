// Package delivery is the outbound fabric: it accepts a target plus a list
// of payloads and dispatches them sequentially through the channel registry,
// with best-effort or stop-on-failure semantics and cancellation.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/King-Chau/mozi/internal/channels"
)

var (
	// ErrChannelNotFound is returned for a lookup miss in stop-on-failure mode.
	ErrChannelNotFound = errors.New("channel not found")
	// ErrDeliveryFailed is returned when a channel reports failure in stop-on-failure mode.
	ErrDeliveryFailed = errors.New("delivery failed")
	// ErrAborted is returned when the context fired between payloads.
	ErrAborted = errors.New("delivery aborted")
)

// abortedError is the error string recorded in the synthetic result appended
// when the abort signal fires mid-batch.
const abortedError = "Aborted"

// Target identifies where a batch of payloads goes.
type Target struct {
	Channel   string `json:"channel"`
	To        string `json:"to"`
	AccountID string `json:"accountId,omitempty"`
}

// Payload is one outbound message body.
type Payload struct {
	Text      string   `json:"text"`
	MediaURLs []string `json:"mediaUrls,omitempty"`
	ReplyToID string   `json:"replyToId,omitempty"`
}

// Result records the outcome of one attempted payload.
type Result struct {
	Success      bool   `json:"success"`
	Channel      string `json:"channel"`
	MessageID    string `json:"messageId,omitempty"`
	Error        string `json:"error,omitempty"`
	ErrorDetails string `json:"errorDetails,omitempty"`
}

// Options control a delivery call.
type Options struct {
	// BestEffort keeps iterating past per-payload failures and never
	// returns a failure error (cancellation still stops the batch).
	BestEffort bool
}

// OutboundRequest is the batch form used by the executor.
type OutboundRequest struct {
	Channel    string
	To         string
	Payloads   []Payload
	BestEffort bool
}

// ParseTarget parses the serialized "channel:to" form (the to portion may
// contain further colons). A raw value without a channel prefix is paired
// with fallbackChannel. The sentinel "last" yields nil; the caller must
// resolve it externally.
func ParseTarget(raw, fallbackChannel string) *Target {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.EqualFold(trimmed, channels.Last) {
		return nil
	}

	if ch, to, ok := strings.Cut(trimmed, ":"); ok {
		id := strings.ToLower(strings.TrimSpace(ch))
		if strings.EqualFold(id, channels.Last) {
			return nil
		}
		if channels.IsKnown(id) && strings.TrimSpace(to) != "" {
			return &Target{Channel: id, To: strings.TrimSpace(to)}
		}
	}

	if fallbackChannel == "" || strings.EqualFold(fallbackChannel, channels.Last) {
		return nil
	}
	return &Target{Channel: strings.ToLower(fallbackChannel), To: trimmed}
}

// FormatTarget renders the serialized "channel:to" form.
func FormatTarget(t Target) string {
	return t.Channel + ":" + t.To
}

// Service dispatches payloads through the channel registry.
type Service struct {
	registry *channels.Registry
}

func NewService(registry *channels.Registry) *Service {
	return &Service{registry: registry}
}

// DeliverOne sends a single payload.
func (s *Service) DeliverOne(ctx context.Context, target Target, payload Payload, opts Options) (Result, error) {
	results, err := s.DeliverMany(ctx, target, []Payload{payload}, opts)
	if len(results) == 0 {
		return Result{Channel: target.Channel, Error: "no payload attempted"}, err
	}
	return results[0], err
}

// DeliverMany sends payloads strictly in order; payload k+1 is attempted only
// after payload k's result is recorded. The context is checked before each
// iteration: once it fires, a single synthetic "Aborted" failed result is
// appended and the batch stops. In stop-on-failure mode the first failed
// payload ends the batch with an error; results always index-correspond to
// attempted payloads.
func (s *Service) DeliverMany(ctx context.Context, target Target, payloads []Payload, opts Options) ([]Result, error) {
	ctx, span := otel.Tracer("mozi/delivery").Start(ctx, "delivery.many")
	defer span.End()
	span.SetAttributes(
		attribute.String("channel", target.Channel),
		attribute.Int("payloads", len(payloads)),
		attribute.Bool("best_effort", opts.BestEffort),
	)

	results := make([]Result, 0, len(payloads))
	for _, payload := range payloads {
		if ctx.Err() != nil {
			results = append(results, Result{Channel: target.Channel, Error: abortedError})
			return results, ErrAborted
		}

		ch, ok := s.registry.Get(target.Channel)
		if !ok {
			res := Result{
				Channel: target.Channel,
				Error:   fmt.Sprintf("channel %s not registered", target.Channel),
			}
			results = append(results, res)
			if !opts.BestEffort {
				return results, fmt.Errorf("%w: %s", ErrChannelNotFound, target.Channel)
			}
			continue
		}
		if !ch.IsAvailable() {
			res := Result{
				Channel: target.Channel,
				Error:   fmt.Sprintf("channel %s not available", target.Channel),
			}
			results = append(results, res)
			if !opts.BestEffort {
				return results, fmt.Errorf("%w: %s unavailable", ErrChannelNotFound, target.Channel)
			}
			continue
		}

		sent := s.registry.Send(ctx, target.Channel, channels.OutboundMessage{
			ChatID:    target.To,
			Content:   payload.Text,
			ReplyToID: payload.ReplyToID,
			MediaURLs: payload.MediaURLs,
		})
		res := Result{
			Success:   sent.Success,
			Channel:   target.Channel,
			MessageID: sent.MessageID,
		}
		if !sent.Success {
			res.Error = sent.Error
			if res.Error == "" {
				res.Error = "send failed"
			}
		}
		results = append(results, res)

		if !sent.Success {
			slog.Warn("delivery: send failed",
				"channel", target.Channel, "to", target.To, "error", res.Error)
			if !opts.BestEffort {
				return results, fmt.Errorf("%w: %s", ErrDeliveryFailed, res.Error)
			}
		}
	}
	return results, nil
}

// DeliverOutbound is the batch entry point. An empty payload list yields an
// empty result list and no delivery attempt.
func (s *Service) DeliverOutbound(ctx context.Context, req OutboundRequest) ([]Result, error) {
	if len(req.Payloads) == 0 {
		return []Result{}, nil
	}
	target := Target{Channel: strings.ToLower(req.Channel), To: req.To}
	return s.DeliverMany(ctx, target, req.Payloads, Options{BestEffort: req.BestEffort})
}
