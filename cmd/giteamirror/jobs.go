package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	httphandler "github.com/ericfisherdev/giteamirror/internal/adapter/driving/http"
	"github.com/ericfisherdev/giteamirror/internal/domain/model"
)

func newJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and cancel mirror jobs",
	}
	cmd.AddCommand(newJobsListCmd(), newJobsShowCmd(), newJobsCancelCmd())
	return cmd
}

func newJobsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <configID>",
		Short: "List the jobs of a configuration, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				jobs, err := a.jobSvc.ListJobs(ctx, args[0])
				if err != nil {
					return err
				}

				tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tSTATUS\tREPOSITORY\tCREATED\tCOMPLETED")
				for _, j := range jobs {
					repo := j.RepositoryID
					if repo == "" {
						repo = "(all)"
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
						j.ID, statusColor(string(j.Status)), repo, j.CreatedAt.Local().Format(time.DateTime), optionalTime(j.CompletedAt))
				}
				return tw.Flush()
			})
		},
	}
}

func newJobsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <jobID>",
		Short: "Show a job with its log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				job, err := a.jobSvc.GetJob(ctx, args[0])
				if err != nil {
					return err
				}
				printJob(os.Stdout, jobView(*job))
				return nil
			})
		},
	}
}

func newJobsCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <jobID>",
		Short: "Cancel a pending or running job",
		Long: `Cancel marks the job failed. A job running in a "giteamirror serve"
process stops before its next repository.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				job, err := a.jobSvc.CancelJob(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(os.Stdout, "job %s %s\n", job.ID, statusColor(string(job.Status)))
				return nil
			})
		},
	}
}

// jobDisplay is what printJob renders, built from a stored job or an API response.
type jobDisplay struct {
	ID          string
	ConfigID    string
	Status      string
	StartedAt   string
	CompletedAt string
	Log         []logLine
}

type logLine struct {
	Time    string
	Level   string
	Message string
	Details string
}

func jobView(j model.MirrorJob) jobDisplay {
	v := jobDisplay{
		ID:          j.ID,
		ConfigID:    j.ConfigID,
		Status:      string(j.Status),
		StartedAt:   optionalTime(j.StartedAt),
		CompletedAt: optionalTime(j.CompletedAt),
	}
	for _, e := range j.Log {
		v.Log = append(v.Log, logLine{
			Time:    e.Timestamp.Local().Format(time.TimeOnly),
			Level:   string(e.Level),
			Message: e.Message,
			Details: e.Details,
		})
	}
	return v
}

func remoteJobView(j httphandler.JobResponse) jobDisplay {
	v := jobDisplay{
		ID:          j.ID,
		ConfigID:    j.ConfigID,
		Status:      j.Status,
		StartedAt:   remoteTime(j.StartedAt, time.DateTime),
		CompletedAt: remoteTime(j.CompletedAt, time.DateTime),
	}
	for _, e := range j.Log {
		v.Log = append(v.Log, logLine{
			Time:    remoteTime(&e.Timestamp, time.TimeOnly),
			Level:   e.Level,
			Message: e.Message,
			Details: e.Details,
		})
	}
	return v
}

func remoteTime(s *string, layout string) string {
	if s == nil {
		return "-"
	}
	t, err := time.Parse(time.RFC3339Nano, *s)
	if err != nil {
		return *s
	}
	return t.Local().Format(layout)
}

func printJob(w io.Writer, j jobDisplay) {
	fmt.Fprintf(w, "Job %s (configuration %s)\n", j.ID, j.ConfigID)
	fmt.Fprintf(w, "Status:    %s\n", statusColor(j.Status))
	fmt.Fprintf(w, "Started:   %s\n", j.StartedAt)
	fmt.Fprintf(w, "Completed: %s\n\n", j.CompletedAt)

	for _, l := range j.Log {
		fmt.Fprintf(w, "%s %s %s\n", l.Time, levelColor(l.Level), l.Message)
		if l.Details != "" {
			fmt.Fprintf(w, "         %s\n", color.New(color.Faint).Sprint(l.Details))
		}
	}
}

func levelColor(level string) string {
	label := fmt.Sprintf("%-7s", level)
	switch model.LogLevel(level) {
	case model.LogLevelSuccess:
		return color.GreenString(label)
	case model.LogLevelWarning:
		return color.YellowString(label)
	case model.LogLevelError:
		return color.RedString(label)
	default:
		return color.CyanString(label)
	}
}

func statusColor(status string) string {
	switch model.JobStatus(status) {
	case model.JobStatusCompleted:
		return color.GreenString(status)
	case model.JobStatusFailed:
		return color.RedString(status)
	case model.JobStatusRunning:
		return color.YellowString(status)
	default:
		return status
	}
}
