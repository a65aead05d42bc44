package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mailroute/mailroute/internal/auth"
	"github.com/mailroute/mailroute/internal/service"
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage API keys",
}

var keyCreateCmd = &cobra.Command{
	Use:   "create <username>",
	Short: "Issue an API key for a user",
	Long: `Issue an API key for a user. The plaintext key is printed once and
cannot be recovered later.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		scopes, _ := cmd.Flags().GetStringSlice("scopes")
		keyEnv, _ := cmd.Flags().GetString("env")

		ctx, cfg, repo, cleanup, err := connect(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		if keyEnv == "" {
			keyEnv = auth.EnvTest
			if cfg.AppEnv == "production" {
				keyEnv = auth.EnvLive
			}
		}
		if keyEnv != auth.EnvLive && keyEnv != auth.EnvTest {
			return fmt.Errorf("--env must be %q or %q", auth.EnvLive, auth.EnvTest)
		}

		user, err := repo.GetUserByUsername(ctx, args[0])
		if err != nil {
			return fmt.Errorf("lookup user %q: %w", args[0], err)
		}

		// No auth cache to evict: a new key has never been verified.
		keys := service.NewAPIKeyService(repo, nil, keyEnv, newLogger())
		created, err := keys.Create(ctx, user.ID, name, scopes)
		if err != nil {
			return fmt.Errorf("create key: %w", err)
		}

		return printResult(cmd, [][2]string{
			{"key_id", created.Key.ID},
			{"user_id", user.ID},
			{"key_prefix", created.Key.KeyPrefix},
			{"scopes", strings.Join(created.Key.Scopes, ",")},
			{"api_key", created.Plaintext},
		})
	},
}

func init() {
	keyCreateCmd.Flags().String("name", "cli", "label shown in key listings")
	keyCreateCmd.Flags().StringSlice("scopes", nil, "comma-separated scopes (read,write,admin); default read,write")
	keyCreateCmd.Flags().String("env", "", "key environment, live or test; default derives from APP_ENV")

	keyCmd.AddCommand(keyCreateCmd)
}
