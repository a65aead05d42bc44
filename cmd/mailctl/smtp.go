package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mailroute/mailroute/internal/model"
	"github.com/mailroute/mailroute/internal/repository"
	"github.com/mailroute/mailroute/internal/secrets"
	"github.com/mailroute/mailroute/internal/service"
)

var smtpCmd = &cobra.Command{
	Use:   "smtp",
	Short: "Manage SMTP relay configuration",
}

var smtpSetCmd = &cobra.Command{
	Use:   "set <username>",
	Short: "Store the SMTP relay a user sends through",
	Long: `Store the SMTP relay a user sends through. The password is read from
SMTP_PASSWORD when --password is not given, and is sealed with
SMTP_SECRET_KEY before it is written.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		req := model.SMTPConfigRequest{}
		req.Host, _ = flags.GetString("host")
		req.Port, _ = flags.GetInt("port")
		req.Username, _ = flags.GetString("username")
		req.Password, _ = flags.GetString("password")
		req.FromEmail, _ = flags.GetString("from-email")
		req.FromName, _ = flags.GetString("from-name")
		req.TLSMode, _ = flags.GetString("tls-mode")
		if req.Password == "" {
			req.Password = os.Getenv("SMTP_PASSWORD")
		}

		ctx, cfg, repo, cleanup, err := connect(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		if cfg.SMTPSecretKey == "" {
			return errors.New("SMTP_SECRET_KEY is required to store relay passwords")
		}
		box, err := secrets.NewBox(cfg.SMTPSecretKey)
		if err != nil {
			return fmt.Errorf("smtp secret key: %w", err)
		}

		user, err := repo.GetUserByUsername(ctx, args[0])
		if err != nil {
			return fmt.Errorf("lookup user %q: %w", args[0], err)
		}

		smtp := service.NewSMTPService(repository.NewSMTPConfigRepository(repo, box))
		saved, err := smtp.Set(ctx, user.ID, req)
		if err != nil {
			return fmt.Errorf("set smtp config: %w", err)
		}

		resp := saved.ToResponse()
		return printResult(cmd, [][2]string{
			{"user_id", user.ID},
			{"host", resp.Host},
			{"port", strconv.Itoa(resp.Port)},
			{"from_email", resp.FromEmail},
			{"tls_mode", resp.TLSMode},
			{"password_set", strconv.FormatBool(req.Password != "")},
		})
	},
}

func init() {
	smtpSetCmd.Flags().String("host", "", "relay host (required)")
	smtpSetCmd.Flags().Int("port", 587, "relay port")
	smtpSetCmd.Flags().String("username", "", "relay login")
	smtpSetCmd.Flags().String("password", "", "relay password; prefer SMTP_PASSWORD")
	smtpSetCmd.Flags().String("from-email", "", "sender address (required)")
	smtpSetCmd.Flags().String("from-name", "", "sender display name")
	smtpSetCmd.Flags().String("tls-mode", model.TLSModeAuto, "auto, starttls, ssl or none")
	_ = smtpSetCmd.MarkFlagRequired("host")
	_ = smtpSetCmd.MarkFlagRequired("from-email")

	smtpCmd.AddCommand(smtpSetCmd)
}
