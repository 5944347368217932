package main

import (
	"fmt"
	"time"

	"github.com/farmerpower/platform/internal/config"
	"github.com/farmerpower/platform/internal/demodata/generate"
	"github.com/farmerpower/platform/internal/demodata/profile"
	"github.com/farmerpower/platform/internal/demodata/registry"
	"github.com/spf13/cobra"
)

type generateOptions struct {
	profile     string
	profilesDir string
	seed        int64
	outDir      string
	load        bool
}

func newGenerateCmd() *cobra.Command {
	var opts generateOptions

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a demo snapshot from a profile",
		Long: `Generates a snapshot of demo records from a named profile and writes one
JSON file per entity type. With --load the snapshot is validated and
applied to the database in the same run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.profile, "profile", "minimal", "Profile name, builtin or from the --profiles dir")
	cmd.Flags().StringVar(&opts.profilesDir, "profiles", "", "Directory with profile overrides")
	cmd.Flags().Int64Var(&opts.seed, "seed", 0, "Generation seed, overrides the profile seed")
	cmd.Flags().StringVar(&opts.outDir, "out", "snapshots", "Output directory for snapshot files")
	cmd.Flags().BoolVar(&opts.load, "load", false, "Validate and load the snapshot after generating")

	return cmd
}

func runGenerate(cmd *cobra.Command, opts generateOptions) error {
	ctx := cmd.Context()
	cfg := config.Load()

	log, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	prof, err := profile.Load(opts.profile, opts.profilesDir)
	if err != nil {
		return err
	}

	seed := opts.seed
	if !cmd.Flags().Changed("seed") {
		seed = prof.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
	}

	ds, err := generate.NewOrchestrator(log).Generate(ctx, prof, seed, registry.New())
	if err != nil {
		return err
	}
	if err := ds.WriteFiles(opts.outDir); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "generated %d records (profile %s, seed %d) in %s\n",
		ds.TotalRecords(), prof.Name, seed, opts.outDir)

	cloud := buildCloudMetrics(cfg, log)
	cloud.IncDatasetGenerated(prof.Name)

	if opts.load {
		if err := runLoad(cmd, cfg, log, cloud, loadOptions{source: opts.outDir}); err != nil {
			return err
		}
	}

	pushCloudMetrics(ctx, cloud, log)
	return nil
}
