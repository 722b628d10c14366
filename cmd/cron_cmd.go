package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/King-Chau/mozi/internal/cron"
)

func cronCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cron",
		Short: "Manage scheduled jobs",
	}
	cmd.AddCommand(cronListCmd())
	cmd.AddCommand(cronAddCmd())
	cmd.AddCommand(cronDeleteCmd())
	cmd.AddCommand(cronToggleCmd())
	cmd.AddCommand(cronRunCmd())
	cmd.AddCommand(cronRunsCmd())
	return cmd
}

// loadService builds a scheduler over the configured store without starting
// the tick loop; one-shot commands mutate and exit.
func loadService() *cron.Service {
	rt, err := buildRuntime(loadConfig(), nil)
	if err != nil {
		fatalf("%v", err)
	}
	if err := rt.service.Load(); err != nil {
		fatalf("%v", err)
	}
	return rt.service
}

func cronListCmd() *cobra.Command {
	var jsonOutput bool
	var showDisabled bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List scheduled jobs",
		Run: func(cmd *cobra.Command, args []string) {
			jobs := loadService().List(showDisabled)
			printJobs(jobs, jsonOutput)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.Flags().BoolVar(&showDisabled, "all", false, "include disabled jobs")
	return cmd
}

func cronAddCmd() *cobra.Command {
	var (
		name    string
		atMs    int64
		every   time.Duration
		expr    string
		tz      string
		message string
		model   string
		timeout int
		deliver bool
		channel string
		to      string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a scheduled job",
		Run: func(cmd *cobra.Command, args []string) {
			schedule := cron.Schedule{}
			switch {
			case atMs > 0:
				schedule.Kind = cron.ScheduleAt
				schedule.AtMs = &atMs
			case every > 0:
				ms := every.Milliseconds()
				schedule.Kind = cron.ScheduleEvery
				schedule.EveryMs = &ms
			case expr != "":
				schedule.Kind = cron.ScheduleCron
				schedule.Expr = expr
				schedule.TZ = tz
			default:
				fatalf("one of --at, --every, or --cron is required")
			}

			payload := cron.Payload{
				Kind:    cron.PayloadAgentTurn,
				Message: message,
				Model:   model,
				Deliver: deliver,
				Channel: channel,
				To:      to,
			}
			if timeout > 0 {
				payload.TimeoutSeconds = &timeout
			}

			job, err := loadService().Add(cron.JobCreate{
				Name:     name,
				Schedule: schedule,
				Payload:  payload,
			})
			if err != nil {
				fatalf("%v", err)
			}
			fmt.Printf("Created job %s (%s)\n", job.ID, job.Name)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "job name")
	cmd.Flags().Int64Var(&atMs, "at", 0, "one-shot fire time, Unix milliseconds")
	cmd.Flags().DurationVar(&every, "every", 0, "recurring interval, e.g. 5m")
	cmd.Flags().StringVar(&expr, "cron", "", "cron expression, e.g. '0 9 * * *'")
	cmd.Flags().StringVar(&tz, "tz", "", "IANA timezone for --cron")
	cmd.Flags().StringVar(&message, "message", "", "message handed to the agent")
	cmd.Flags().StringVar(&model, "model", "", "model override")
	cmd.Flags().IntVar(&timeout, "timeout", 0, "agent turn timeout in seconds")
	cmd.Flags().BoolVar(&deliver, "deliver", false, "deliver agent output to a channel")
	cmd.Flags().StringVar(&channel, "channel", "", "delivery channel")
	cmd.Flags().StringVar(&to, "to", "", "delivery target id")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("message")
	return cmd
}

func cronDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [jobId]",
		Short: "Delete a scheduled job",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			removed, err := loadService().Remove(args[0])
			if err != nil {
				fatalf("%v", err)
			}
			if !removed {
				fatalf("job not found: %s", args[0])
			}
			fmt.Printf("Deleted job %s\n", args[0])
		},
	}
}

func cronToggleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle [jobId] [true|false]",
		Short: "Enable or disable a scheduled job",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			enabled := args[1] == "true" || args[1] == "1" || args[1] == "on"
			if _, err := loadService().Update(args[0], cron.JobPatch{Enabled: &enabled}); err != nil {
				fatalf("%v", err)
			}
			fmt.Printf("Job %s enabled=%v\n", args[0], enabled)
		},
	}
}

func cronRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run [jobId]",
		Short: "Force a job to run now",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			result, err := loadService().Run(context.Background(), args[0])
			if err != nil {
				fatalf("%v", err)
			}
			fmt.Printf("status=%s", result.Status)
			if result.Error != "" {
				fmt.Printf(" error=%s", result.Error)
			}
			fmt.Println()
			if result.Summary != "" {
				fmt.Println(result.Summary)
			}
		},
	}
}

func cronRunsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs [jobId]",
		Short: "Show recent run history",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			jobID := ""
			if len(args) == 1 {
				jobID = args[0]
			}
			entries := loadService().RunLog(jobID, limit)
			if len(entries) == 0 {
				fmt.Println("No runs recorded.")
				return
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "TIME\tJOB\tSTATUS\tDURATION\tSUMMARY\n")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%dms\t%s\n",
					time.UnixMilli(e.Ts).Format(time.DateTime),
					shortID(e.JobID), e.Status, e.DurationMs, e.Summary)
			}
			tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "max entries")
	return cmd
}

func printJobs(jobs []cron.Job, jsonOutput bool) {
	if jsonOutput {
		data, _ := json.MarshalIndent(jobs, "", "  ")
		fmt.Println(string(data))
		return
	}
	if len(jobs) == 0 {
		fmt.Println("No jobs configured.")
		return
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\tNAME\tENABLED\tSCHEDULE\tNEXT RUN\tLAST RUN\n")
	for _, j := range jobs {
		schedule := j.Schedule.Kind
		switch {
		case j.Schedule.Expr != "":
			schedule = j.Schedule.Expr
		case j.Schedule.EveryMs != nil:
			schedule = "every " + (time.Duration(*j.Schedule.EveryMs) * time.Millisecond).String()
		case j.Schedule.AtMs != nil:
			schedule = "at " + time.UnixMilli(*j.Schedule.AtMs).Format(time.DateTime)
		}

		nextRun := "-"
		if j.State.NextRunAtMs != nil {
			nextRun = time.UnixMilli(*j.State.NextRunAtMs).Format(time.DateTime)
		}
		lastRun := "never"
		if j.State.LastRunAtMs != nil {
			lastRun = time.UnixMilli(*j.State.LastRunAtMs).Format(time.DateTime)
		}

		fmt.Fprintf(tw, "%s\t%s\t%v\t%s\t%s\t%s\n",
			shortID(j.ID), j.Name, j.Enabled, schedule, nextRun, lastRun)
	}
	tw.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
