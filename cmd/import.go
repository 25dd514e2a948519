package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/art-atlas/import-cli/internal/engine"
	"github.com/art-atlas/import-cli/internal/model"
)

var (
	importRecordsPath  string
	importID           string
	importOutputFormat string
	importCreateArtist bool
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a batch of records and deduplicate against the catalog",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		raws, err := readRecords(importRecordsPath)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return err
		}

		importCfg := cfg.Import
		if cmd.Flags().Changed("create-missing-artists") {
			importCfg.CreateMissingArtists = importCreateArtist
		}
		if err := importCfg.ApplyDefaults().Validate(); err != nil {
			return err
		}

		report, err := engine.New(st, importCfg).Run(ctx, importID, raws)
		if err != nil {
			return err
		}

		if err := writeReport(report, importOutputFormat); err != nil {
			return err
		}

		if report.Totals.Sum() > 0 && report.Totals.Errors == report.Totals.Sum() {
			return eris.Errorf("all %d records failed", report.Totals.Errors)
		}

		zap.L().Info("import complete",
			zap.String("import_id", report.ImportID),
			zap.Int("records", report.Totals.Sum()),
			zap.Int("errors", report.Totals.Errors),
		)
		return nil
	},
}

func readRecords(path string) ([]model.RawRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read records file %s", path)
	}
	var raws []model.RawRecord
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, eris.Wrapf(err, "parse records file %s", path)
	}
	return raws, nil
}

func writeReport(report *model.BatchReport, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case "yaml":
		enc := yaml.NewEncoder(os.Stdout)
		defer enc.Close() //nolint:errcheck
		return enc.Encode(report)
	default:
		return eris.Errorf("unknown output format %q (want json or yaml)", format)
	}
}

func init() {
	importCmd.Flags().StringVar(&importRecordsPath, "records", "", "path to a JSON array of import records (required)")
	importCmd.Flags().StringVar(&importID, "import-id", "", "batch identifier (default: generated)")
	importCmd.Flags().StringVar(&importOutputFormat, "output", "json", "report output format: json or yaml")
	importCmd.Flags().BoolVar(&importCreateArtist, "create-missing-artists", false, "create artists that cannot be resolved")
	_ = importCmd.MarkFlagRequired("records")
	rootCmd.AddCommand(importCmd)
}
