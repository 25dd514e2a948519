package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var reportOutputFormat string

var reportCmd = &cobra.Command{
	Use:   "report <import-id>",
	Short: "Print the audit report for a past import batch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		report, err := st.GetBatchReport(ctx, args[0])
		if err != nil {
			return err
		}
		if report == nil {
			return eris.Errorf("no report for import %q", args[0])
		}
		return writeReport(report, reportOutputFormat)
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportOutputFormat, "output", "json", "output format: json or yaml")
	rootCmd.AddCommand(reportCmd)
}
