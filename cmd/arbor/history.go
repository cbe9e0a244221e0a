package main

import (
	"fmt"

	"github.com/aretw0/arbor/internal/cli"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history <app-id>",
	Short: "Show the recorded steps of an application",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		asJSON, _ := cmd.Flags().GetBool("json")
		return cli.History(cmd.Context(), cfg, args[0], asJSON, cmd.OutOrStdout())
	},
}

var historyLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List recorded applications",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return cli.ListApplications(cmd.Context(), cfg, cmd.OutOrStdout())
	},
}

var historyRmCmd = &cobra.Command{
	Use:   "rm <app-id>",
	Short: "Delete every record of an application",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := cli.DeleteApplication(cmd.Context(), cfg, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
		return nil
	},
}

func init() {
	historyCmd.Flags().Bool("json", false, "Print records as JSON")
	historyCmd.AddCommand(historyLsCmd, historyRmCmd)
	rootCmd.AddCommand(historyCmd)
}
