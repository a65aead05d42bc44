package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mailroute/mailroute/internal/service"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
}

var userCreateCmd = &cobra.Command{
	Use:   "create <username>",
	Short: "Create a user",
	Long: `Create a user whose personal endpoint is POST /<username>/<template_id>.

Without --daily-limit the server's DEFAULT_DAILY_LIMIT applies. -1 removes the limit.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		verified, _ := cmd.Flags().GetBool("verified")

		in := service.NewUserInput{Username: args[0], Email: email, Verified: verified}
		if cmd.Flags().Changed("daily-limit") {
			limit, _ := cmd.Flags().GetInt64("daily-limit")
			in.DailyLimit = &limit
		}

		ctx, _, repo, cleanup, err := connect(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		user, err := service.CreateUser(ctx, repo, in)
		if err != nil {
			return fmt.Errorf("create user: %w", err)
		}

		limit := "default"
		if user.DailyLimit != nil {
			limit = strconv.FormatInt(*user.DailyLimit, 10)
		}
		return printResult(cmd, [][2]string{
			{"user_id", user.ID},
			{"username", user.Username},
			{"email", user.Email},
			{"daily_limit", limit},
			{"verified", strconv.FormatBool(user.Verified)},
		})
	},
}

func init() {
	userCreateCmd.Flags().String("email", "", "contact email (required)")
	userCreateCmd.Flags().Int64("daily-limit", 0, "per-window send limit, -1 for unlimited")
	userCreateCmd.Flags().Bool("verified", false, "mark the user as verified")
	_ = userCreateCmd.MarkFlagRequired("email")

	userCmd.AddCommand(userCreateCmd)
}
