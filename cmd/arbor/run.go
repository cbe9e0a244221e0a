package main

import (
	"fmt"
	"os"

	"github.com/aretw0/arbor/internal/cli"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [app-id]",
	Short: "Run the configured graph",
	Long: `Run the configured graph until it halts. Without a graph section in the
configuration a demo counter graph is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := cli.RunOptions{}
		opts.ConfigPath, _ = cmd.Flags().GetString("config")
		if len(args) == 1 {
			opts.AppID = args[0]
		}
		opts.PartitionKey, _ = cmd.Flags().GetString("partition")
		opts.Resume, _ = cmd.Flags().GetBool("resume")
		opts.ForkFrom, _ = cmd.Flags().GetString("fork")
		opts.ForkSequence, _ = cmd.Flags().GetInt("fork-seq")
		opts.HaltBefore, _ = cmd.Flags().GetStringSlice("halt-before")
		opts.HaltAfter, _ = cmd.Flags().GetStringSlice("halt-after")
		opts.Inputs, _ = cmd.Flags().GetString("inputs")
		opts.MaxSteps, _ = cmd.Flags().GetInt("max-steps")
		opts.JSON, _ = cmd.Flags().GetBool("json")

		ctx := cli.NewSignalContext(cmd.Context())
		defer ctx.Cancel()

		err := cli.Execute(ctx, opts, cmd.OutOrStdout())
		if sig := ctx.Signal(); sig != nil {
			fmt.Fprintf(os.Stderr, "interrupted by %s\n", sig)
		}
		return err
	},
}

func init() {
	runCmd.Flags().String("partition", "", "Partition key written to records")
	runCmd.Flags().Bool("resume", false, "Resume the application from its latest record")
	runCmd.Flags().String("fork", "", "Fork from the records of this application")
	runCmd.Flags().Int("fork-seq", -1, "Sequence to fork from (-1 for the latest)")
	runCmd.Flags().StringSlice("halt-before", nil, "Stop before running these actions")
	runCmd.Flags().StringSlice("halt-after", nil, "Stop after running these actions")
	runCmd.Flags().String("inputs", "", "JSON object of inputs offered to every step")
	runCmd.Flags().Int("max-steps", 0, "Stop after this many steps (overrides runtime.max_steps)")
	runCmd.Flags().Bool("json", false, "Print steps as JSON lines")
	rootCmd.AddCommand(runCmd)
}
