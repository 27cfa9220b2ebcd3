package commands

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"instconnect/internal/connector"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var outputPath string

func init() {
	extractCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Also write the result to this file, overrides the config's output.")
	rootCmd.AddCommand(extractCmd)
}

var extractCmd = &cobra.Command{
	Use:   "extract [--output <path/to/result.json>]",
	Short: "Logs in, extracts accounts, profile info and transactions and prints the result as JSON.",
	Run: func(cmd *cobra.Command, args []string) {
		env := setup(cmd.Context())

		ok := runExtract(cmd, env)
		env.close()
		if !ok {
			os.Exit(1)
		}
	},
}

func runExtract(cmd *cobra.Command, env environment) bool {
	// amounts are written as json numbers
	decimal.MarshalJSONWithoutQuotes = true

	pipeline := connector.NewPipeline(env.extractor, env.tel, connector.PipelineOptions{
		OnTransition: func(from, to connector.State) {
			slog.Debug("state changed", "from", from.String(), "to", to.String())
		},
	})
	result := pipeline.Extract(cmd.Context(), env.config.creds, env.config.options)

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		slog.Error("failed to serialize result", "err", err)
		return false
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))

	path := env.config.output
	if outputPath != "" {
		path = outputPath
	}
	if path != "" {
		err = os.WriteFile(path, append(out, '\n'), 0600)
		if err != nil {
			slog.Error("failed to write result", "path", path, "err", err)
			return false
		}
		slog.Info("wrote result", "path", path)
	}

	if result.Err != nil {
		slog.Error("extraction failed", "kind", result.Err.Kind.String(), "err", result.Err)
		return false
	}
	return true
}
