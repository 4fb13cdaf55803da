package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var harvestSources []string

var harvestCmd = &cobra.Command{
	Use:   "harvest",
	Short: "Run the lead harvest across configured sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Pipeline.Run(ctx, harvestSources)
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		zap.L().Info("harvest complete",
			zap.String("run_id", result.RunID),
			zap.Int("leads", len(result.Leads)),
			zap.Int("sources_ok", result.SourcesOK),
			zap.Int("sources_err", result.SourcesErr),
			zap.Duration("elapsed", result.Elapsed),
		)

		// Print result JSON to stdout
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	harvestCmd.Flags().StringSliceVar(&harvestSources, "source", nil, "harvest only the named sources (repeatable; default all)")
	rootCmd.AddCommand(harvestCmd)
}
