// Command demodata generates deterministic demo datasets for the Farmer
// Power platform and loads validated snapshots into the database.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/farmerpower/platform/internal/cloudmetrics"
	"github.com/farmerpower/platform/internal/config"
	"github.com/farmerpower/platform/internal/demodata/profile"
	"github.com/farmerpower/platform/internal/observability/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const cloudPushTimeout = 10 * time.Second

var verbose bool

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "demodata: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "demodata",
		Short: "Generate and load Farmer Power demo datasets",
		Long: `demodata produces seeded synthetic datasets for the Farmer Power platform
and loads validated snapshots into the database.

Generation is deterministic: the same profile and seed always produce the
same records. Loading is idempotent: every record upserts by its natural
key, so re-running a snapshot never duplicates rows.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	cmd.AddCommand(newGenerateCmd())
	cmd.AddCommand(newLoadCmd())
	cmd.AddCommand(newProfilesCmd())
	return cmd
}

func newProfilesCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "List available generation profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := profile.Names(dir)
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "profiles", "", "Directory with profile overrides")
	return cmd
}

func buildLogger(cfg config.Config) (*zap.Logger, error) {
	level := "info"
	if verbose {
		level = "debug"
	}
	return logger.New(nil, logger.Config{
		ServiceName: cfg.AppName,
		Environment: cfg.Environment,
		Version:     cfg.AppVersion,
		Level:       level,
		Format:      "console",
	})
}

// buildCloudMetrics mirrors the worker's provider: nil unless the instance
// runs in cloud mode with metrics enabled.
func buildCloudMetrics(cfg config.Config, log *zap.Logger) *cloudmetrics.CloudMetrics {
	if !cfg.IsCloud() || !cfg.Cloud.Metrics.Enabled {
		return nil
	}
	return cloudmetrics.New(nil, cloudmetrics.NewPusher(cfg, log), cfg.InstanceID, cfg.AppVersion, log)
}

func pushCloudMetrics(ctx context.Context, cloud *cloudmetrics.CloudMetrics, log *zap.Logger) {
	if cloud == nil {
		return
	}
	pushCtx, cancel := context.WithTimeout(ctx, cloudPushTimeout)
	defer cancel()
	if err := cloud.Push(pushCtx); err != nil {
		log.Warn("cloud metrics push failed", zap.Error(err))
	}
}
