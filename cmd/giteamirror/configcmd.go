package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ericfisherdev/giteamirror/internal/config"
	"github.com/ericfisherdev/giteamirror/internal/domain/model"
	"github.com/ericfisherdev/giteamirror/internal/domain/port/driven"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage mirror configurations",
	}
	cmd.AddCommand(newConfigImportCmd(), newConfigListCmd())
	return cmd
}

func newConfigImportCmd() *cobra.Command {
	var skipTest bool

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Create or update a configuration from a YAML or TOML file",
		Long: `Import reads a configuration file, checks both tokens against their
providers and stores the configuration. A configuration with the same id, or
the same name when the file has no id, is replaced; its schedule history is kept.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				return importConfig(ctx, a, args[0], skipTest)
			})
		},
	}
	cmd.Flags().BoolVar(&skipTest, "skip-test", false, "store without testing the connections")
	return cmd
}

func importConfig(ctx context.Context, a *app, path string, skipTest bool) error {
	cfg, err := config.LoadConfigurationFile(path)
	if err != nil {
		return err
	}

	existing, err := findExisting(ctx, a.configs, cfg)
	if err != nil {
		return err
	}
	if existing != nil {
		cfg.ID = existing.ID
		cfg.CreatedAt = existing.CreatedAt
		cfg.Schedule.LastRun = existing.Schedule.LastRun
		cfg.Schedule.NextRun = existing.Schedule.NextRun
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}

	if !skipTest {
		report, err := a.conn.TestConfig(ctx, cfg)
		if err != nil {
			return fmt.Errorf("connection test failed: %w", err)
		}
		fmt.Fprintf(os.Stdout, "github: authenticated as %s\n", report.Source.Login)
		fmt.Fprintf(os.Stdout, "gitea:  authenticated as %s\n", report.Destination.Login)
	}

	if err := a.configs.Save(ctx, cfg); err != nil {
		return err
	}

	verb := "created"
	if existing != nil {
		verb = "updated"
	}
	fmt.Fprintf(os.Stdout, "configuration %q %s (id %s)\n", cfg.Name, verb, cfg.ID)
	return nil
}

// findExisting matches by id when the file sets one, by name otherwise.
func findExisting(ctx context.Context, configs driven.ConfigStore, cfg model.Configuration) (*model.Configuration, error) {
	if cfg.ID != "" {
		existing, err := configs.Get(ctx, cfg.ID)
		if errors.Is(err, driven.ErrConfigNotFound) {
			return nil, nil
		}
		return existing, err
	}

	all, err := configs.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range all {
		if c.Name == cfg.Name {
			return &c, nil
		}
	}
	return nil, nil
}

func newConfigListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored configurations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				configs, err := a.configs.List(ctx)
				if err != nil {
					return err
				}

				tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tACTIVE\tGITEA\tSCHEDULE\tNEXT RUN")
				for _, c := range configs {
					schedule := "off"
					if c.Schedule.Enabled {
						schedule = c.Schedule.Interval.String()
					}
					fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\t%s\n",
						c.ID, c.Name, c.IsActive, c.Gitea.URL, schedule, optionalTime(c.Schedule.NextRun))
				}
				return tw.Flush()
			})
		},
	}
}

func optionalTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}
