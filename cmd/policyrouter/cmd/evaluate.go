package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/solatis/policyrouter/internal/core/api"
	"github.com/solatis/policyrouter/internal/core/config"
	"github.com/solatis/policyrouter/internal/core/db"
	"github.com/solatis/policyrouter/internal/types"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate [event-json]",
	Short: "Evaluate one JSON event and print the decision",
	Long: `Evaluates a single flat JSON object against the configured policy source.
The event is read from the argument, or from stdin when no argument is given.`,
	Example: `  policyrouter evaluate --policies policies.json '{"mode":"online","platform":"web"}'
  echo '{"mode":"online"}' | policyrouter evaluate`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEvaluate,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)
	evaluateCmd.Flags().String("policies", "", "policy file or directory (overrides policies.path)")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("policies") {
		cfg.Policies.Source = config.SourceFile
		cfg.Policies.Path, _ = cmd.Flags().GetString("policies")
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	var payload []byte
	if len(args) == 1 {
		payload = []byte(args[0])
	} else {
		payload, err = io.ReadAll(io.LimitReader(cmd.InOrStdin(), types.MaxPayloadSize+1))
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
	}

	var queries *db.Queries
	if cfg.Policies.Source == config.SourceDatabase {
		database, q, err := openQueries()
		if err != nil {
			return err
		}
		defer database.Close()
		queries = q
	}

	source, err := policySource(cfg, queries)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	registry, err := loadRegistry(ctx, source, logger)
	if err != nil {
		return err
	}
	service, err := api.NewPolicyRouterService(registry, logger, nil)
	if err != nil {
		return err
	}

	evaluation, err := service.EvaluatePayload(ctx, api.TransportCLI, "", types.Payload(payload))
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(evaluation.Map())
}
