package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/carnimore/checkout/internal/transport/middleware"
	"github.com/carnimore/checkout/pkg/logger"
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Ops tooling",
}

var adminTokenCmd = &cobra.Command{
	Use:   "token [subject]",
	Short: "Issue a bearer token for the admin routes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := loadConfig(configPath)
		if err != nil {
			return err
		}

		token, err := middleware.NewTokenVerifier(config.Security.JWTSecret, logger.L()).IssueToken(args[0], adminTokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

var adminTokenTTL time.Duration

func init() {
	adminTokenCmd.Flags().DurationVar(&adminTokenTTL, "ttl", 8*time.Hour, "Token lifetime")

	adminCmd.AddCommand(adminTokenCmd)
	rootCmd.AddCommand(adminCmd)
}
