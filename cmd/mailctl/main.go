// Command mailctl provisions mailroute accounts and runs database migrations.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/spf13/cobra"

	"github.com/mailroute/mailroute/internal/config"
	"github.com/mailroute/mailroute/internal/repository"
)

var (
	envFile   string
	outputFmt string
	verbose   bool
	timeout   time.Duration
)

// cliConfig is the subset of the server configuration mailctl needs.
type cliConfig struct {
	AppEnv        string `env:"APP_ENV" envDefault:"development"`
	DatabaseURL   string `env:"DATABASE_URL,required,notEmpty"`
	SMTPSecretKey string `env:"SMTP_SECRET_KEY,unset"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "mailctl",
	Short:         "mailroute administration tool",
	Long:          "mailctl manages mailroute users, API keys, SMTP relays, system templates and the database schema.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table", "output format (table, json, env)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "overall command timeout")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(keyCmd)
	rootCmd.AddCommand(smtpCmd)
	rootCmd.AddCommand(templateCmd)
}

func loadConfig() (*cliConfig, error) {
	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, err
	}
	cfg := &cliConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// connect opens the database and returns a context bounded by --timeout.
// The caller must call the returned cleanup.
func connect(cmd *cobra.Command) (context.Context, *cliConfig, *repository.Repository, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, nil, err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		cancel()
		return nil, nil, nil, nil, fmt.Errorf("connect database: %w", err)
	}

	return ctx, cfg, repo, func() {
		repo.Close()
		cancel()
	}, nil
}

// printResult writes fields in the selected output format. Pairs keep
// their order in table and env output.
func printResult(cmd *cobra.Command, pairs [][2]string) error {
	out := cmd.OutOrStdout()
	switch outputFmt {
	case "json":
		m := make(map[string]string, len(pairs))
		for _, p := range pairs {
			m[p[0]] = p[1]
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(m)
	case "env":
		for _, p := range pairs {
			fmt.Fprintf(out, "%s=%s\n", envName(p[0]), p[1])
		}
	case "table":
		for _, p := range pairs {
			fmt.Fprintf(out, "%-12s %s\n", p[0]+":", p[1])
		}
	default:
		return fmt.Errorf("unknown output format %q", outputFmt)
	}
	return nil
}

func envName(key string) string {
	b := []byte(key)
	for i, c := range b {
		switch {
		case c >= 'a' && c <= 'z':
			b[i] = c - 'a' + 'A'
		case c == '-':
			b[i] = '_'
		}
	}
	return string(b)
}
