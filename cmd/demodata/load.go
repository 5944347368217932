package main

import (
	"fmt"
	"io"

	"github.com/bwmarrin/snowflake"
	"github.com/farmerpower/platform/internal/cloudmetrics"
	"github.com/farmerpower/platform/internal/config"
	"github.com/farmerpower/platform/internal/demodata/load"
	"github.com/farmerpower/platform/internal/demodata/refdata"
	"github.com/farmerpower/platform/internal/demodata/snapshot"
	"github.com/farmerpower/platform/internal/demodata/validate"
	"github.com/farmerpower/platform/internal/migration"
	"github.com/farmerpower/platform/internal/reference"
	"github.com/farmerpower/platform/internal/seed"
	"github.com/farmerpower/platform/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// builtinSource selects the embedded reference snapshot instead of a
// snapshot directory.
const builtinSource = "builtin"

type loadOptions struct {
	source         string
	dryRun         bool
	noExternalRefs bool
}

func newLoadCmd() *cobra.Command {
	var opts loadOptions

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Validate a snapshot and load it into the database",
		Long: `Validates a snapshot and applies it to the database in dependency order.
Schema issues are all reported before the run aborts; referential issues
are checked against the batch plus identifiers already in the store.
Every record upserts by its natural key, so loads are safe to re-run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			log, err := buildLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			cloud := buildCloudMetrics(cfg, log)
			if err := runLoad(cmd, cfg, log, cloud, opts); err != nil {
				return err
			}
			pushCloudMetrics(cmd.Context(), cloud, log)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.source, "source", builtinSource, "Snapshot source: builtin or a snapshot directory")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Validate only, write nothing to the database")
	cmd.Flags().BoolVar(&opts.noExternalRefs, "no-external-refs", false, "Do not read reference identifiers from the database")

	return cmd
}

// runLoad is the validate-then-load pipeline shared by the load command and
// generate --load. A dry run stops after validation and never touches the
// schema or the seed rows.
func runLoad(cmd *cobra.Command, cfg config.Config, log *zap.Logger, cloud *cloudmetrics.CloudMetrics, opts loadOptions) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	raw, err := readSnapshot(opts.source)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "read %d records from %s\n", raw.TotalRecords(), opts.source)

	var conn *gorm.DB
	needDB := !opts.dryRun || !opts.noExternalRefs
	if needDB {
		conn, err = db.Open(nil, cfg, log)
		if err != nil {
			return err
		}
	}

	genID, err := snowflake.NewNode(1)
	if err != nil {
		return fmt.Errorf("snowflake node: %w", err)
	}

	if !opts.dryRun {
		if err := migration.Apply(conn, cfg.DBType); err != nil {
			return err
		}
		if err := seed.EnsureReferenceData(conn, genID); err != nil {
			return err
		}
	}

	external := snapshot.RefSet{}
	var countries map[string]bool
	if !opts.noExternalRefs {
		external, err = refdata.RefsFromDB(ctx, conn)
		if err != nil {
			return err
		}
		countries, err = reference.NewRepository(conn).CountryCodes(ctx)
		if err != nil {
			return err
		}
	}

	res := validate.NewValidatorWithCountries(log, countries).Validate(raw, external)
	if !res.OK() {
		for _, issue := range res.Issues() {
			fmt.Fprintln(out, issue.String())
		}
		return res.Err()
	}
	fmt.Fprintf(out, "validation passed: %d records\n", res.Dataset.TotalRecords())

	if opts.dryRun {
		fmt.Fprintln(out, "dry run, nothing loaded")
		return nil
	}

	report, loadErr := load.NewLoader(conn, log, genID, cloud).Load(ctx, res.Dataset)
	printReport(out, report)
	return loadErr
}

func readSnapshot(source string) (*snapshot.RawDataset, error) {
	if source == builtinSource {
		return refdata.Builtin()
	}
	return snapshot.ReadFiles(source)
}

func printReport(out io.Writer, report *load.Report) {
	for _, fr := range report.Files {
		fmt.Fprintf(out, "%-22s total=%-5d inserted=%-5d updated=%-5d skipped=%-5d failed=%d\n",
			fr.Entity, fr.Total, fr.Inserted, fr.Updated, fr.Skipped, fr.Failed)
		for _, recordErr := range fr.Errors {
			fmt.Fprintf(out, "  %s\n", recordErr)
		}
	}
	inserted, updated, skipped, failed := report.Totals()
	fmt.Fprintf(out, "%d records: %d inserted, %d updated, %d skipped, %d failed\n",
		report.TotalRecords(), inserted, updated, skipped, failed)
}
