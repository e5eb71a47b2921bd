package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type mirrorOptions struct {
	repoIDs []string
	sync    bool
	wait    bool
	server  string
}

func newMirrorCmd() *cobra.Command {
	var opts mirrorOptions

	cmd := &cobra.Command{
		Use:   "mirror <configID>",
		Short: "Mirror the repositories of a configuration into Gitea",
		Long: `Mirror starts a job for every repository of the configuration, or only
the repositories given with --repo. Without --server the job runs in this
process, which stays up until the job ends. With --server the job is submitted
to a running "giteamirror serve"; --wait then follows it until it ends.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.server != "" {
				return mirrorRemote(cmd.Context(), args[0], opts)
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				return mirrorLocal(ctx, a, args[0], opts)
			})
		},
	}

	f := cmd.Flags()
	f.StringSliceVar(&opts.repoIDs, "repo", nil, "repository id to mirror (repeatable)")
	f.BoolVar(&opts.sync, "sync", false, "refresh the repository inventory first")
	f.BoolVar(&opts.wait, "wait", false, "with --server, wait for the job to finish")
	f.StringVar(&opts.server, "server", "", "base URL of a running giteamirror server")
	return cmd
}

func mirrorLocal(ctx context.Context, a *app, configID string, opts mirrorOptions) error {
	if opts.sync {
		result, err := a.syncer.Sync(ctx, configID)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "synced: %d added, %d updated\n", result.Added, result.Updated)
	}

	job, err := a.jobSvc.StartJob(ctx, configID, opts.repoIDs)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "job %s started\n", job.ID)

	if err := a.jobSvc.Wait(ctx, job.ID); err != nil {
		return err
	}

	job, err = a.jobSvc.GetJob(ctx, job.ID)
	if err != nil {
		return err
	}
	printJob(os.Stdout, jobView(*job))
	return jobExitError(string(job.Status))
}

func mirrorRemote(ctx context.Context, configID string, opts mirrorOptions) error {
	client := newAPIClient(opts.server)

	if opts.sync {
		result, err := client.sync(ctx, configID)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "synced: %d added, %d updated\n", result.Added, result.Updated)
	}

	job, err := client.startJob(ctx, configID, opts.repoIDs)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "job %s started\n", job.ID)
	if !opts.wait {
		return nil
	}

	job, err = client.waitJob(ctx, job.ID)
	if err != nil {
		return err
	}
	printJob(os.Stdout, remoteJobView(*job))
	return jobExitError(job.Status)
}

func jobExitError(status string) error {
	if status == "failed" {
		return errors.New("job failed")
	}
	return nil
}
