package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/King-Chau/mozi/internal/cron"
)

// errPrefix is prepended to every validation failure surfaced to the model.
const errPrefix = "错误: "

var everyUnitMs = map[string]int64{
	"seconds": 1000,
	"minutes": 60000,
	"hours":   3600000,
	"days":    86400000,
}

// CronTools exposes scheduler operations to the model as five named tools.
type CronTools struct {
	svc *cron.Service
}

func NewCronTools(svc *cron.Service) *CronTools {
	return &CronTools{svc: svc}
}

// Tools returns the facade: cron_list, cron_add, cron_remove, cron_update,
// cron_run.
func (c *CronTools) Tools() []Tool {
	return []Tool{
		&funcTool{
			name: "cron_list",
			desc: "List scheduled jobs. Set includeDisabled to true to include disabled jobs.",
			params: objSchema(map[string]interface{}{
				"includeDisabled": boolParam("Include disabled jobs (default false)"),
			}, nil),
			fn: c.list,
		},
		&funcTool{
			name: "cron_add",
			desc: "Create a scheduled job. scheduleType is one of: at (one-shot, needs atMs), " +
				"every (recurring, needs everyValue+everyUnit or everyMs), cron (needs expr, optional tz). " +
				"The message is sent to the agent when the job fires; set deliver with channel and to " +
				"to route the output to a chat.",
			params: objSchema(map[string]interface{}{
				"name":           strParam("Job name"),
				"scheduleType":   enumParam("Schedule kind", "at", "every", "cron"),
				"atMs":           numParam("Absolute fire time, Unix milliseconds (at)"),
				"everyValue":     numParam("Interval count (every)"),
				"everyUnit":      enumParam("Interval unit (every)", "seconds", "minutes", "hours", "days"),
				"everyMs":        numParam("Interval in milliseconds (every, overrides everyValue/everyUnit)"),
				"expr":           strParam("Cron expression (cron)"),
				"tz":             strParam("IANA timezone for the cron expression, e.g. Asia/Shanghai"),
				"message":        strParam("Message handed to the agent on each run"),
				"model":          strParam("Model override for the agent turn"),
				"timeoutSeconds": numParam("Agent turn timeout in seconds (1-600)"),
				"deliver":        boolParam("Deliver agent output to a channel"),
				"channel":        enumParam("Delivery channel", "dingtalk", "feishu", "qq", "wecom", "webchat", "last"),
				"to":             strParam("Delivery target chat/user id"),
				"enabled":        boolParam("Create enabled (default true)"),
			}, []string{"name", "scheduleType", "message"}),
			fn: c.add,
		},
		&funcTool{
			name: "cron_remove",
			desc: "Delete a scheduled job by id.",
			params: objSchema(map[string]interface{}{
				"id": strParam("Job id"),
			}, []string{"id"}),
			fn: c.remove,
		},
		&funcTool{
			name: "cron_update",
			desc: "Update a scheduled job: name, enabled, schedule fields, or payload fields. " +
				"Only provided fields change.",
			params: objSchema(map[string]interface{}{
				"id":             strParam("Job id"),
				"name":           strParam("New name"),
				"enabled":        boolParam("Enable or disable the job"),
				"scheduleType":   enumParam("New schedule kind", "at", "every", "cron"),
				"atMs":           numParam("Absolute fire time, Unix milliseconds (at)"),
				"everyValue":     numParam("Interval count (every)"),
				"everyUnit":      enumParam("Interval unit (every)", "seconds", "minutes", "hours", "days"),
				"everyMs":        numParam("Interval in milliseconds (every)"),
				"expr":           strParam("Cron expression (cron)"),
				"tz":             strParam("IANA timezone"),
				"message":        strParam("New agent message"),
				"model":          strParam("Model override"),
				"timeoutSeconds": numParam("Agent turn timeout in seconds (1-600)"),
				"deliver":        boolParam("Deliver agent output to a channel"),
				"channel":        enumParam("Delivery channel", "dingtalk", "feishu", "qq", "wecom", "webchat", "last"),
				"to":             strParam("Delivery target chat/user id"),
			}, []string{"id"}),
			fn: c.update,
		},
		&funcTool{
			name: "cron_run",
			desc: "Force a job to run immediately. Does not change its schedule.",
			params: objSchema(map[string]interface{}{
				"id": strParam("Job id"),
			}, []string{"id"}),
			fn: c.run,
		},
	}
}

func (c *CronTools) list(_ context.Context, args map[string]interface{}) *Result {
	includeDisabled, _ := args["includeDisabled"].(bool)
	jobs := c.svc.List(includeDisabled)
	if len(jobs) == 0 {
		return NewResult("No scheduled jobs.")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d job(s):\n", len(jobs))
	for _, job := range jobs {
		b.WriteString(renderJob(job))
	}
	return NewResult(b.String())
}

func (c *CronTools) add(_ context.Context, args map[string]interface{}) *Result {
	name, _ := args["name"].(string)
	if strings.TrimSpace(name) == "" {
		return ErrorResult(errPrefix + "name is required")
	}
	message, _ := args["message"].(string)
	if strings.TrimSpace(message) == "" {
		return ErrorResult(errPrefix + "message is required")
	}

	schedule, errMsg := scheduleFromArgs(args)
	if errMsg != "" {
		return ErrorResult(errPrefix + errMsg)
	}

	payload := cron.Payload{
		Kind:    cron.PayloadAgentTurn,
		Message: message,
	}
	if model, _ := args["model"].(string); model != "" {
		payload.Model = model
	}
	if v, ok := numArg(args, "timeoutSeconds"); ok {
		secs := int(v)
		payload.TimeoutSeconds = &secs
	}
	if deliver, _ := args["deliver"].(bool); deliver {
		payload.Deliver = true
		payload.Channel, _ = args["channel"].(string)
		payload.To, _ = args["to"].(string)
	}

	input := cron.JobCreate{Name: name, Schedule: *schedule, Payload: payload}
	if enabled, ok := args["enabled"].(bool); ok {
		input.Enabled = &enabled
	}

	job, err := c.svc.Add(input)
	if err != nil {
		return ErrorResult(errPrefix + err.Error()).WithError(err)
	}
	return NewResult("Job created:\n" + renderJob(job))
}

func (c *CronTools) remove(_ context.Context, args map[string]interface{}) *Result {
	id, _ := args["id"].(string)
	if id == "" {
		return ErrorResult(errPrefix + "id is required")
	}
	removed, err := c.svc.Remove(id)
	if err != nil {
		return ErrorResult(errPrefix + err.Error()).WithError(err)
	}
	if !removed {
		return ErrorResult(errPrefix + "job not found: " + id)
	}
	return NewResult("Job removed: " + id)
}

func (c *CronTools) update(_ context.Context, args map[string]interface{}) *Result {
	id, _ := args["id"].(string)
	if id == "" {
		return ErrorResult(errPrefix + "id is required")
	}

	current, ok := c.svc.Get(id)
	if !ok {
		return ErrorResult(errPrefix + "job not found: " + id)
	}

	var patch cron.JobPatch
	if name, ok := args["name"].(string); ok {
		patch.Name = &name
	}
	if enabled, ok := args["enabled"].(bool); ok {
		patch.Enabled = &enabled
	}
	if _, hasKind := args["scheduleType"]; hasKind {
		schedule, errMsg := scheduleFromArgs(args)
		if errMsg != "" {
			return ErrorResult(errPrefix + errMsg)
		}
		patch.Schedule = schedule
	}

	if payloadPatched(args) {
		payload := current.Payload
		if message, ok := args["message"].(string); ok {
			payload.Message = message
		}
		if model, ok := args["model"].(string); ok {
			payload.Model = model
		}
		if v, ok := numArg(args, "timeoutSeconds"); ok {
			secs := int(v)
			payload.TimeoutSeconds = &secs
		}
		if deliver, ok := args["deliver"].(bool); ok {
			payload.Deliver = deliver
		}
		if channel, ok := args["channel"].(string); ok {
			payload.Channel = channel
		}
		if to, ok := args["to"].(string); ok {
			payload.To = to
		}
		patch.Payload = &payload
	}

	job, err := c.svc.Update(id, patch)
	if err != nil {
		return ErrorResult(errPrefix + err.Error()).WithError(err)
	}
	return NewResult("Job updated:\n" + renderJob(*job))
}

func (c *CronTools) run(ctx context.Context, args map[string]interface{}) *Result {
	id, _ := args["id"].(string)
	if id == "" {
		return ErrorResult(errPrefix + "id is required")
	}
	result, err := c.svc.Run(ctx, id)
	if err != nil {
		return ErrorResult(errPrefix + err.Error()).WithError(err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Run finished: status=%s", result.Status)
	if result.Error != "" {
		fmt.Fprintf(&b, " error=%s", result.Error)
	}
	if result.Summary != "" {
		b.WriteString("\n")
		b.WriteString(result.Summary)
	}
	return NewResult(b.String())
}

// scheduleFromArgs builds a Schedule from the flat tool arguments.
// Returns a non-empty message on validation failure.
func scheduleFromArgs(args map[string]interface{}) (*cron.Schedule, string) {
	kind, _ := args["scheduleType"].(string)
	if kind == "" {
		return nil, "scheduleType is required (at, every, or cron)"
	}

	switch kind {
	case cron.ScheduleAt:
		v, ok := numArg(args, "atMs")
		if !ok {
			return nil, "atMs is required for 'at' schedules"
		}
		ms := int64(v)
		return &cron.Schedule{Kind: cron.ScheduleAt, AtMs: &ms}, ""

	case cron.ScheduleEvery:
		if v, ok := numArg(args, "everyMs"); ok {
			ms := int64(v)
			return &cron.Schedule{Kind: cron.ScheduleEvery, EveryMs: &ms}, ""
		}
		value, ok := numArg(args, "everyValue")
		if !ok {
			return nil, "everyValue+everyUnit or everyMs is required for 'every' schedules"
		}
		unit, _ := args["everyUnit"].(string)
		factor, ok := everyUnitMs[unit]
		if !ok {
			return nil, fmt.Sprintf("invalid everyUnit %q (seconds, minutes, hours, days)", unit)
		}
		ms := int64(value) * factor
		return &cron.Schedule{Kind: cron.ScheduleEvery, EveryMs: &ms}, ""

	case cron.ScheduleCron:
		expr, _ := args["expr"].(string)
		if expr == "" {
			return nil, "expr is required for 'cron' schedules"
		}
		tz, _ := args["tz"].(string)
		return &cron.Schedule{Kind: cron.ScheduleCron, Expr: expr, TZ: tz}, ""

	default:
		return nil, fmt.Sprintf("invalid scheduleType %q (at, every, or cron)", kind)
	}
}

func payloadPatched(args map[string]interface{}) bool {
	for _, key := range []string{"message", "model", "timeoutSeconds", "deliver", "channel", "to"} {
		if _, ok := args[key]; ok {
			return true
		}
	}
	return false
}

func numArg(args map[string]interface{}, key string) (float64, bool) {
	switch v := args[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func renderJob(job cron.Job) string {
	var b strings.Builder
	state := "enabled"
	if !job.Enabled {
		state = "disabled"
	}
	fmt.Fprintf(&b, "- %s (%s) [%s]\n", job.Name, job.ID, state)
	fmt.Fprintf(&b, "  schedule: %s\n", renderSchedule(job.Schedule))
	if job.State.NextRunAtMs != nil {
		fmt.Fprintf(&b, "  next run: %s\n", fmtMs(*job.State.NextRunAtMs))
	}
	if job.State.LastRunAtMs != nil {
		fmt.Fprintf(&b, "  last run: %s status=%s runs=%d\n",
			fmtMs(*job.State.LastRunAtMs), job.State.LastStatus, job.State.RunCount)
		if job.State.LastError != "" {
			fmt.Fprintf(&b, "  last error: %s\n", job.State.LastError)
		}
	}
	if job.Payload.Deliver {
		fmt.Fprintf(&b, "  delivers to: %s:%s\n", job.Payload.Channel, job.Payload.To)
	}
	return b.String()
}

func renderSchedule(s cron.Schedule) string {
	switch s.Kind {
	case cron.ScheduleAt:
		if s.AtMs != nil {
			return "at " + fmtMs(*s.AtMs)
		}
		return "at ?"
	case cron.ScheduleEvery:
		if s.EveryMs != nil {
			return fmt.Sprintf("every %s", time.Duration(*s.EveryMs)*time.Millisecond)
		}
		return "every ?"
	case cron.ScheduleCron:
		if s.TZ != "" {
			return fmt.Sprintf("cron %q (%s)", s.Expr, s.TZ)
		}
		return fmt.Sprintf("cron %q", s.Expr)
	}
	return s.Kind
}

func fmtMs(ms int64) string {
	return time.UnixMilli(ms).UTC().Format("2006-01-02 15:04:05 MST")
}

// funcTool adapts a handler function to the Tool interface.
type funcTool struct {
	name   string
	desc   string
	params map[string]interface{}
	fn     func(ctx context.Context, args map[string]interface{}) *Result
}

func (t *funcTool) Name() string                       { return t.name }
func (t *funcTool) Description() string                { return t.desc }
func (t *funcTool) Parameters() map[string]interface{} { return t.params }
func (t *funcTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	return t.fn(ctx, args)
}

func objSchema(props map[string]interface{}, required []string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func strParam(desc string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": desc}
}

func numParam(desc string) map[string]interface{} {
	return map[string]interface{}{"type": "number", "description": desc}
}

func boolParam(desc string) map[string]interface{} {
	return map[string]interface{}{"type": "boolean", "description": desc}
}

func enumParam(desc string, values ...string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": desc, "enum": values}
}
