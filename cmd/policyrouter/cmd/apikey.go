package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/solatis/policyrouter/internal/core/auth"
	"github.com/solatis/policyrouter/internal/core/config"
)

var apiKeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Issue and revoke API keys",
}

var apiKeyCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Issue a new API key for a client",
	Long: `Issues a new API key signed with one of the configured HMAC secrets.
The key is printed once; only its HMAC is stored.`,
	RunE: runAPIKeyCreate,
}

var apiKeyRevokeCmd = &cobra.Command{
	Use:   "revoke <api-key-id>",
	Short: "Revoke an API key",
	Args:  cobra.ExactArgs(1),
	RunE:  runAPIKeyRevoke,
}

func init() {
	rootCmd.AddCommand(apiKeyCmd)
	apiKeyCmd.AddCommand(apiKeyCreateCmd, apiKeyRevokeCmd)
	apiKeyCreateCmd.Flags().String("client-id", "", "client identifier recorded with the key (required)")
	apiKeyCreateCmd.Flags().String("secret-id", "", "HMAC secret ID to sign with (default: lowest configured ID)")
	_ = apiKeyCreateCmd.MarkFlagRequired("client-id")
}

func runAPIKeyCreate(cmd *cobra.Command, args []string) error {
	clientID, _ := cmd.Flags().GetString("client-id")
	if clientID == "" {
		return fmt.Errorf("--client-id required")
	}

	secrets, err := config.HMACSecrets()
	if err != nil {
		return fmt.Errorf("failed to load HMAC secrets: %w", err)
	}
	if len(secrets) == 0 {
		return fmt.Errorf("no HMAC secrets configured (set PR_HMAC_SECRET environment variable)")
	}

	secretID, _ := cmd.Flags().GetString("secret-id")
	if secretID == "" {
		ids := make([]string, 0, len(secrets))
		for id := range secrets {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		secretID = ids[0]
	}
	secret, ok := secrets[secretID]
	if !ok {
		return fmt.Errorf("secret ID %s is not configured", secretID)
	}

	key, hash, err := auth.GenerateAPIKey(secretID, secret)
	if err != nil {
		return err
	}

	database, queries, err := openQueries()
	if err != nil {
		return err
	}
	defer database.Close()

	id, err := queries.InsertAPIKey(cmd.Context(), clientID, hash)
	if err != nil {
		return fmt.Errorf("failed to store API key: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "api_key_id: %s\n", id)
	fmt.Fprintf(out, "client_id:  %s\n", clientID)
	fmt.Fprintf(out, "api_key:    %s\n", key)
	return nil
}

func runAPIKeyRevoke(cmd *cobra.Command, args []string) error {
	database, queries, err := openQueries()
	if err != nil {
		return err
	}
	defer database.Close()

	revoked, err := queries.RevokeAPIKey(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to revoke API key: %w", err)
	}
	if !revoked {
		return fmt.Errorf("API key %s not found or already revoked", args[0])
	}
	fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", args[0])
	return nil
}
