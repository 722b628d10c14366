package cron

import (
	"context"
	"strings"
	"testing"

	"github.com/King-Chau/mozi/internal/channels"
	"github.com/King-Chau/mozi/internal/delivery"
)

// stubChannel records sends for a fixed channel id.
type stubChannel struct {
	id        string
	available bool
	fail      bool
	sent      []channels.OutboundMessage
}

func (c *stubChannel) Name() string      { return c.id }
func (c *stubChannel) IsAvailable() bool { return c.available }
func (c *stubChannel) SendMessage(_ context.Context, msg channels.OutboundMessage) channels.SendResult {
	c.sent = append(c.sent, msg)
	if c.fail {
		return channels.SendResult{Error: "stub send failed"}
	}
	return channels.SendResult{Success: true, MessageID: "m-42"}
}

func newExecutorFixture(t *testing.T, agent AgentExecutor) (*Executor, *stubChannel) {
	t.Helper()
	registry := channels.NewRegistry(0, 0)
	stub := &stubChannel{id: channels.DingTalk, available: true}
	if err := registry.Register(stub); err != nil {
		t.Fatal(err)
	}
	return NewExecutor(agent, delivery.NewService(registry), registry, channels.DingTalk), stub
}

func deliverJob(message string) Job {
	return Job{
		ID:   "job-1",
		Name: "weather",
		Payload: Payload{
			Kind:    PayloadAgentTurn,
			Message: message,
			Deliver: true,
			Channel: channels.DingTalk,
			To:      "chat-7",
		},
	}
}

func TestExecuteAgentTurnDeliversOutput(t *testing.T) {
	var gotReq AgentRequest
	exec, stub := newExecutorFixture(t, func(_ context.Context, req AgentRequest) (AgentResponse, error) {
		gotReq = req
		return AgentResponse{Success: true, Output: "The weather is sunny today!"}, nil
	})

	res := exec.ExecuteJob(context.Background(), deliverJob("what's the weather?"))

	if res.Status != StatusOK {
		t.Fatalf("expected ok, got %s (%s)", res.Status, res.Error)
	}
	if res.Summary != "The weather is sunny today!" {
		t.Errorf("summary wrong: %q", res.Summary)
	}
	if gotReq.SessionKey != "cron:job-1" {
		t.Errorf("session key wrong: %q", gotReq.SessionKey)
	}
	if len(stub.sent) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(stub.sent))
	}
	if stub.sent[0].ChatID != "chat-7" || stub.sent[0].Content != "The weather is sunny today!" {
		t.Errorf("delivered message wrong: %+v", stub.sent[0])
	}
}

func TestExecuteAgentFailureSuppressesDelivery(t *testing.T) {
	exec, stub := newExecutorFixture(t, func(context.Context, AgentRequest) (AgentResponse, error) {
		return AgentResponse{Success: false, Error: "model unavailable"}, nil
	})

	res := exec.ExecuteJob(context.Background(), deliverJob("hi"))

	if res.Status != StatusError || res.Error != "model unavailable" {
		t.Errorf("expected error result, got %+v", res)
	}
	if len(stub.sent) != 0 {
		t.Errorf("failed turn must not be delivered, got %d sends", len(stub.sent))
	}
}

func TestExecuteWithoutAgentIsSkipped(t *testing.T) {
	exec, _ := newExecutorFixture(t, nil)

	res := exec.ExecuteJob(context.Background(), deliverJob("hi"))
	if res.Status != StatusSkipped {
		t.Errorf("expected skipped, got %s", res.Status)
	}
}

func TestExecuteSystemEvent(t *testing.T) {
	exec, stub := newExecutorFixture(t, nil)

	res := exec.ExecuteJob(context.Background(), Job{
		ID:      "job-2",
		Payload: Payload{Kind: PayloadSystemEvent, Message: "tick"},
	})
	if res.Status != StatusOK {
		t.Errorf("expected ok, got %s", res.Status)
	}
	if len(stub.sent) != 0 {
		t.Error("system events never deliver")
	}
}

func TestExecuteUnknownPayloadKind(t *testing.T) {
	exec, _ := newExecutorFixture(t, nil)

	res := exec.ExecuteJob(context.Background(), Job{
		ID:      "job-3",
		Payload: Payload{Kind: "shellCommand", Message: "rm -rf /"},
	})
	if res.Status != StatusError || !strings.Contains(res.Error, "Unknown payload kind") {
		t.Errorf("expected unknown-kind error, got %+v", res)
	}
}

func TestExecuteAgentPanicBecomesError(t *testing.T) {
	exec, _ := newExecutorFixture(t, func(context.Context, AgentRequest) (AgentResponse, error) {
		panic("callback exploded")
	})

	res := exec.ExecuteJob(context.Background(), deliverJob("hi"))
	if res.Status != StatusError || !strings.Contains(res.Error, "panicked") {
		t.Errorf("expected panic converted to error, got %+v", res)
	}
}

func TestExecuteSummaryTruncation(t *testing.T) {
	long := strings.Repeat("天", 350)
	exec, _ := newExecutorFixture(t, func(context.Context, AgentRequest) (AgentResponse, error) {
		return AgentResponse{Success: true, Output: long}, nil
	})

	job := deliverJob("hi")
	job.Payload.Deliver = false
	res := exec.ExecuteJob(context.Background(), job)

	if got := len([]rune(res.Summary)); got != 200 {
		t.Errorf("summary should cap at 200 runes, got %d", got)
	}
	if res.OutputText != long {
		t.Error("full output must be preserved alongside the capped summary")
	}
}

func TestExecuteLastSentinelUsesDefaultChannel(t *testing.T) {
	exec, stub := newExecutorFixture(t, func(context.Context, AgentRequest) (AgentResponse, error) {
		return AgentResponse{Success: true, Output: "pong"}, nil
	})

	job := deliverJob("ping")
	job.Payload.Channel = channels.Last
	res := exec.ExecuteJob(context.Background(), job)

	if res.Status != StatusOK {
		t.Fatalf("expected ok, got %s", res.Status)
	}
	if len(stub.sent) != 1 {
		t.Fatalf("last sentinel should route to the default channel, got %d sends", len(stub.sent))
	}
}

func TestExecuteUnavailableChannelSkipsDeliveryButSucceeds(t *testing.T) {
	exec, stub := newExecutorFixture(t, func(context.Context, AgentRequest) (AgentResponse, error) {
		return AgentResponse{Success: true, Output: "pong"}, nil
	})
	stub.available = false

	res := exec.ExecuteJob(context.Background(), deliverJob("ping"))

	// Delivery is off the critical path: the run is still ok.
	if res.Status != StatusOK {
		t.Errorf("expected ok despite unavailable channel, got %s", res.Status)
	}
	if len(stub.sent) != 0 {
		t.Error("unavailable channel must not be called")
	}
}
