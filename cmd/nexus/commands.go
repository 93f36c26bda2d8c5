package main

import (
	"github.com/spf13/cobra"
)

func buildServeCmd() *cobra.Command {
	var configPath string
	var debug bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the service: event hub, agent runtime, workflow orchestrator",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), resolveConfigPath(configPath), debug)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to the service config file")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug-level logging")
	return cmd
}

func buildMigrateCmd() *cobra.Command {
	var configPath string
	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the relational store's schema",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, _ := cmd.Flags().GetInt("steps")
			return runMigrateUp(cmd.Context(), resolveConfigPath(configPath), steps)
		},
	}
	up.Flags().Int("steps", 0, "number of migrations to apply (0 = all)")

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recently applied migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, _ := cmd.Flags().GetInt("steps")
			return runMigrateDown(cmd.Context(), resolveConfigPath(configPath), steps)
		},
	}
	down.Flags().Int("steps", 1, "number of migrations to roll back")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateStatus(cmd.Context(), resolveConfigPath(configPath))
		},
	}

	migrate.PersistentFlags().StringVar(&configPath, "config", "", "path to the service config file")
	migrate.AddCommand(up, down, status)
	return migrate
}

func buildHealthcheckCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Check whether a running instance's /healthz endpoint is up",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealthcheck(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "http://127.0.0.1:8080/healthz", "health endpoint URL")
	return cmd
}
