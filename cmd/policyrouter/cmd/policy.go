package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/solatis/policyrouter/internal/core/config"
	"github.com/solatis/policyrouter/internal/core/policy"
	"github.com/solatis/policyrouter/internal/rules"
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Validate and import policy sets",
}

var policyValidateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Load a policy file or directory and report problems",
	Long: `Loads the policy set the same way serve does and prints a summary.

Exits non-zero when the set cannot be loaded (malformed document, empty or
duplicate names). Unusable rule expressions are reported as warnings; those
policies load but never match.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPolicyValidate,
}

var policyImportCmd = &cobra.Command{
	Use:   "import [path]",
	Short: "Replace the database policy set with a policy file or directory",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPolicyImport,
}

func init() {
	rootCmd.AddCommand(policyCmd)
	policyCmd.AddCommand(policyValidateCmd, policyImportCmd)
}

// policyPath returns the path argument, or policies.path from config.
func policyPath(cfg *config.Config, args []string) string {
	if len(args) == 1 {
		return args[0]
	}
	return cfg.Policies.Path
}

func runPolicyValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	path := policyPath(cfg, args)

	defs, err := policy.NewFileSource(path).Load(cmd.Context())
	if err != nil {
		return err
	}
	engine, err := rules.NewEngine(defs)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	store := engine.Store()
	fmt.Fprintf(out, "%s: %d policies, %d index buckets\n", path, store.Len(), engine.Index().Buckets())
	fmt.Fprintf(out, "fields: %s\n", strings.Join(store.ReferencedFieldNames().Names(), ", "))
	fmt.Fprintf(out, "version: %s\n", engine.Version())
	for _, w := range store.Warnings() {
		fmt.Fprintf(out, "warning: policy %q field %q: %s\n", w.Policy, w.Field, w.Reason)
	}
	return nil
}

func runPolicyImport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	path := policyPath(cfg, args)

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx := cmd.Context()

	defs, err := policy.NewFileSource(path).Load(ctx)
	if err != nil {
		return err
	}
	// Refuse to store a set the server could not load.
	engine, err := rules.NewEngine(defs)
	if err != nil {
		return err
	}

	database, queries, err := openQueries()
	if err != nil {
		return err
	}
	defer database.Close()

	if err := queries.ReplacePolicies(ctx, defs); err != nil {
		return fmt.Errorf("failed to import policies: %w", err)
	}

	logger.Info("policies imported",
		zap.String("path", path),
		zap.Int("policies", engine.Store().Len()),
		zap.Int("warnings", len(engine.Store().Warnings())),
		zap.String("version", engine.Version()),
	)
	fmt.Fprintf(cmd.OutOrStdout(), "imported %d policies (version %s)\n", engine.Store().Len(), engine.Version())
	return nil
}
