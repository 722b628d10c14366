package cron

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/King-Chau/mozi/internal/channels"
	"github.com/King-Chau/mozi/internal/delivery"
)

// summaryMaxChars caps the stored run summary.
const summaryMaxChars = 200

// AgentRequest is handed to the model-turn callback.
type AgentRequest struct {
	Message        string
	SessionKey     string
	Model          string
	TimeoutSeconds *int
}

// AgentResponse is the callback's report. A timeout inside the callback is
// expected to surface as Success=false, not as a hang.
type AgentResponse struct {
	Success bool
	Output  string
	Error   string
}

// AgentExecutor runs one model turn. Supplied once at executor construction;
// nil means agent-turn jobs are skipped.
type AgentExecutor func(ctx context.Context, req AgentRequest) (AgentResponse, error)

// ExecResult is the outcome of one executor invocation.
type ExecResult struct {
	Status     string `json:"status"` // "ok", "error", "skipped"
	Summary    string `json:"summary,omitempty"`
	OutputText string `json:"outputText,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Executor runs a single job's payload: systemEvent payloads only log,
// agentTurn payloads invoke the model-turn callback and optionally route the
// output through delivery. Delivery is best-effort and never on the critical
// path of a successful run.
type Executor struct {
	agent    AgentExecutor
	delivery *delivery.Service
	registry *channels.Registry

	mu             sync.RWMutex
	defaultChannel string
}

func NewExecutor(agent AgentExecutor, deliverySvc *delivery.Service, registry *channels.Registry, defaultChannel string) *Executor {
	return &Executor{
		agent:          agent,
		delivery:       deliverySvc,
		registry:       registry,
		defaultChannel: strings.ToLower(defaultChannel),
	}
}

// SetDefaultChannel swaps the channel "last" resolves to. Safe to call while
// runs are in flight; a run picks up whichever value is current at delivery.
func (e *Executor) SetDefaultChannel(id string) {
	e.mu.Lock()
	e.defaultChannel = strings.ToLower(id)
	e.mu.Unlock()
}

func (e *Executor) currentDefaultChannel() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.defaultChannel
}

// ExecuteJob dispatches on the payload kind.
func (e *Executor) ExecuteJob(ctx context.Context, job Job) ExecResult {
	ctx, span := otel.Tracer("mozi/cron").Start(ctx, "cron.execute")
	defer span.End()
	span.SetAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("payload.kind", job.Payload.Kind),
	)

	res := e.execute(ctx, job)
	if res.Status == StatusError {
		span.SetStatus(codes.Error, res.Error)
	}
	return res
}

func (e *Executor) execute(ctx context.Context, job Job) ExecResult {
	switch job.Payload.Kind {
	case PayloadSystemEvent:
		slog.Info("cron system event", "id", job.ID, "name", job.Name, "message", job.Payload.Message)
		return ExecResult{Status: StatusOK, Summary: "System event executed"}

	case PayloadAgentTurn:
		return e.executeAgentTurn(ctx, job)

	default:
		return ExecResult{
			Status: StatusError,
			Error:  fmt.Sprintf("Unknown payload kind: %s", job.Payload.Kind),
		}
	}
}

func (e *Executor) executeAgentTurn(ctx context.Context, job Job) ExecResult {
	if e.agent == nil {
		return ExecResult{Status: StatusSkipped, Summary: "No agent executor configured"}
	}

	resp, err := e.invokeAgent(ctx, job)
	if err != nil {
		return ExecResult{Status: StatusError, Error: err.Error()}
	}
	if !resp.Success {
		errMsg := resp.Error
		if errMsg == "" {
			errMsg = ErrAgentFailed.Error()
		}
		// Failed turns are never delivered.
		return ExecResult{Status: StatusError, Error: errMsg, OutputText: resp.Output}
	}

	if job.Payload.Deliver && strings.TrimSpace(job.Payload.To) != "" {
		e.deliverOutput(ctx, job, resp.Output)
	}

	return ExecResult{
		Status:     StatusOK,
		Summary:    truncateSummary(resp.Output),
		OutputText: resp.Output,
	}
}

// invokeAgent calls the model-turn callback, converting a callback panic
// into an error result rather than tearing down the tick.
func (e *Executor) invokeAgent(ctx context.Context, job Job) (resp AgentResponse, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("agent executor panicked", "id", job.ID, "panic", rec)
			err = fmt.Errorf("agent executor panicked: %v", rec)
		}
	}()
	return e.agent(ctx, AgentRequest{
		Message:        job.Payload.Message,
		SessionKey:     "cron:" + job.ID,
		Model:          job.Payload.Model,
		TimeoutSeconds: job.Payload.TimeoutSeconds,
	})
}

// deliverOutput routes agent output to the job's channel, best-effort.
// The sentinel "last" resolves to the configured default only.
func (e *Executor) deliverOutput(ctx context.Context, job Job, output string) {
	channel := strings.ToLower(strings.TrimSpace(job.Payload.Channel))
	if channel == "" || channel == channels.Last {
		channel = e.currentDefaultChannel()
	}
	if channel == "" || channel == channels.Last {
		slog.Warn("cron delivery skipped: no resolvable channel", "id", job.ID)
		return
	}
	if e.registry == nil || !e.registry.IsAvailable(channel) {
		slog.Warn("cron delivery skipped: channel unavailable", "id", job.ID, "channel", channel)
		return
	}

	results, err := e.delivery.DeliverOutbound(ctx, delivery.OutboundRequest{
		Channel:    channel,
		To:         job.Payload.To,
		Payloads:   []delivery.Payload{{Text: output}},
		BestEffort: true,
	})
	if err != nil {
		slog.Warn("cron delivery error", "id", job.ID, "channel", channel, "error", err)
		return
	}
	for _, res := range results {
		if !res.Success {
			slog.Warn("cron delivery failed", "id", job.ID, "channel", channel, "error", res.Error)
		}
	}
}

func truncateSummary(s string) string {
	runes := []rune(s)
	if len(runes) <= summaryMaxChars {
		return s
	}
	return string(runes[:summaryMaxChars])
}
