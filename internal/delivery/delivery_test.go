package delivery

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/King-Chau/mozi/internal/channels"
)

// fakeChannel records sends and can fail or trigger side effects.
type fakeChannel struct {
	id        string
	available bool
	failAll   bool
	onSend    func(n int) // called with the 1-based send count
	sent      []channels.OutboundMessage
}

func (c *fakeChannel) Name() string      { return c.id }
func (c *fakeChannel) IsAvailable() bool { return c.available }
func (c *fakeChannel) SendMessage(_ context.Context, msg channels.OutboundMessage) channels.SendResult {
	c.sent = append(c.sent, msg)
	if c.onSend != nil {
		c.onSend(len(c.sent))
	}
	if c.failAll {
		return channels.SendResult{Error: "wire error"}
	}
	return channels.SendResult{Success: true, MessageID: fmt.Sprintf("m-%d", len(c.sent))}
}

func newFixture(t *testing.T) (*Service, *fakeChannel) {
	t.Helper()
	registry := channels.NewRegistry(0, 0)
	ch := &fakeChannel{id: channels.Feishu, available: true}
	if err := registry.Register(ch); err != nil {
		t.Fatal(err)
	}
	return NewService(registry), ch
}

func textPayloads(texts ...string) []Payload {
	out := make([]Payload, len(texts))
	for i, s := range texts {
		out[i] = Payload{Text: s}
	}
	return out
}

func TestParseTarget(t *testing.T) {
	cases := []struct {
		raw      string
		fallback string
		want     *Target
	}{
		{"feishu:u123", "", &Target{Channel: "feishu", To: "u123"}},
		{"dingtalk:chat:sub:part", "", &Target{Channel: "dingtalk", To: "chat:sub:part"}},
		{"u123", "qq", &Target{Channel: "qq", To: "u123"}},
		{"telegram:u123", "wecom", &Target{Channel: "wecom", To: "telegram:u123"}},
		{"last", "feishu", nil},
		{"LAST", "feishu", nil},
		{"", "feishu", nil},
		{"u123", "", nil},
		{"u123", "last", nil},
	}
	for _, tc := range cases {
		got := ParseTarget(tc.raw, tc.fallback)
		switch {
		case tc.want == nil && got != nil:
			t.Errorf("ParseTarget(%q, %q) = %+v, want nil", tc.raw, tc.fallback, got)
		case tc.want != nil && got == nil:
			t.Errorf("ParseTarget(%q, %q) = nil, want %+v", tc.raw, tc.fallback, tc.want)
		case tc.want != nil && got != nil && *got != *tc.want:
			t.Errorf("ParseTarget(%q, %q) = %+v, want %+v", tc.raw, tc.fallback, got, tc.want)
		}
	}
}

func TestFormatTargetRoundTrip(t *testing.T) {
	target := Target{Channel: "dingtalk", To: "u1:extra"}
	back := ParseTarget(FormatTarget(target), "")
	if back == nil || *back != target {
		t.Errorf("round trip lost target: %+v", back)
	}
}

func TestDeliverManyOrdering(t *testing.T) {
	svc, ch := newFixture(t)

	results, err := svc.DeliverMany(context.Background(),
		Target{Channel: channels.Feishu, To: "u1"},
		textPayloads("one", "two", "three"), Options{})
	if err != nil {
		t.Fatalf("DeliverMany: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, want := range []string{"one", "two", "three"} {
		if ch.sent[i].Content != want {
			t.Errorf("payload %d out of order: %q", i, ch.sent[i].Content)
		}
		if !results[i].Success || results[i].MessageID == "" {
			t.Errorf("result %d should be a success with id: %+v", i, results[i])
		}
	}
}

func TestDeliverManyAbortMidBatch(t *testing.T) {
	svc, ch := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// the abort signal fires while payload 1 is in flight
	ch.onSend = func(n int) {
		if n == 1 {
			cancel()
		}
	}

	results, err := svc.DeliverMany(ctx,
		Target{Channel: channels.Feishu, To: "u1"},
		textPayloads("one", "two", "three"), Options{BestEffort: true})

	if !errors.Is(err, ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
	// the in-flight send completes, then exactly one synthetic failure
	if len(results) != 2 {
		t.Fatalf("expected 2 results (1 sent + 1 aborted), got %d", len(results))
	}
	if !results[0].Success {
		t.Error("first payload completed before the abort")
	}
	if results[1].Success || results[1].Error != "Aborted" {
		t.Errorf("expected synthetic Aborted result, got %+v", results[1])
	}
	if len(ch.sent) != 1 {
		t.Errorf("no payload may be attempted after the abort, got %d sends", len(ch.sent))
	}
}

func TestDeliverManyBestEffortContinuesPastFailures(t *testing.T) {
	svc, ch := newFixture(t)
	ch.failAll = true

	results, err := svc.DeliverMany(context.Background(),
		Target{Channel: channels.Feishu, To: "u1"},
		textPayloads("a", "b", "c"), Options{BestEffort: true})
	if err != nil {
		t.Fatalf("best-effort must not return a failure error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, res := range results {
		if res.Success || res.Error == "" {
			t.Errorf("result %d should record the failure: %+v", i, res)
		}
	}
}

func TestDeliverManyStopOnFailure(t *testing.T) {
	svc, ch := newFixture(t)
	ch.failAll = true

	results, err := svc.DeliverMany(context.Background(),
		Target{Channel: channels.Feishu, To: "u1"},
		textPayloads("a", "b", "c"), Options{})
	if !errors.Is(err, ErrDeliveryFailed) {
		t.Fatalf("expected ErrDeliveryFailed, got %v", err)
	}
	if len(results) != 1 {
		t.Errorf("stop-on-failure ends at the first failure, got %d results", len(results))
	}
}

func TestDeliverManyUnknownChannel(t *testing.T) {
	svc, _ := newFixture(t)
	target := Target{Channel: channels.QQ, To: "u1"}

	_, err := svc.DeliverMany(context.Background(), target, textPayloads("a"), Options{})
	if !errors.Is(err, ErrChannelNotFound) {
		t.Fatalf("expected ErrChannelNotFound, got %v", err)
	}

	// best-effort records failures but reports no error
	results, err := svc.DeliverMany(context.Background(), target, textPayloads("a", "b"), Options{BestEffort: true})
	if err != nil {
		t.Fatalf("best-effort: %v", err)
	}
	if len(results) != 2 || results[0].Success || results[1].Success {
		t.Errorf("expected 2 failed results, got %+v", results)
	}
}

func TestDeliverManyUnavailableChannel(t *testing.T) {
	svc, ch := newFixture(t)
	ch.available = false

	_, err := svc.DeliverMany(context.Background(),
		Target{Channel: channels.Feishu, To: "u1"}, textPayloads("a"), Options{})
	if !errors.Is(err, ErrChannelNotFound) {
		t.Fatalf("expected ErrChannelNotFound for unavailable channel, got %v", err)
	}
	if len(ch.sent) != 0 {
		t.Error("unavailable channel must not be called")
	}
}

func TestDeliverOne(t *testing.T) {
	svc, ch := newFixture(t)

	res, err := svc.DeliverOne(context.Background(),
		Target{Channel: channels.Feishu, To: "u9"},
		Payload{Text: "hello", ReplyToID: "r1"}, Options{})
	if err != nil {
		t.Fatalf("DeliverOne: %v", err)
	}
	if !res.Success {
		t.Errorf("expected success: %+v", res)
	}
	if ch.sent[0].ChatID != "u9" || ch.sent[0].ReplyToID != "r1" {
		t.Errorf("message fields lost: %+v", ch.sent[0])
	}
}

func TestDeliverOutboundEmptyPayloads(t *testing.T) {
	svc, ch := newFixture(t)

	results, err := svc.DeliverOutbound(context.Background(), OutboundRequest{
		Channel: channels.Feishu, To: "u1",
	})
	if err != nil {
		t.Fatalf("DeliverOutbound: %v", err)
	}
	if results == nil || len(results) != 0 {
		t.Errorf("expected empty non-nil result list, got %v", results)
	}
	if len(ch.sent) != 0 {
		t.Error("empty batch must not touch the channel")
	}
}
