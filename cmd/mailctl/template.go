package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mailroute/mailroute/internal/repository"
	"github.com/mailroute/mailroute/internal/service"
)

var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Manage templates",
}

var templateSeedCmd = &cobra.Command{
	Use:   "seed-system",
	Short: "Create or refresh the built-in system templates",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, _, repo, cleanup, err := connect(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		n, err := service.SeedSystemTemplates(ctx, repository.NewTemplateRepository(repo, 0))
		if err != nil {
			return fmt.Errorf("seed system templates: %w", err)
		}
		return printResult(cmd, [][2]string{{"seeded", strconv.Itoa(n)}})
	},
}

func init() {
	templateCmd.AddCommand(templateSeedCmd)
}
