package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/xyproto/env/v2"

	"quill/internal/driver"
)

var checkCmd = &cobra.Command{
	Use:   "check [flags] [path]",
	Short: "Type-check a quill project without emitting code",
	Args:  cobra.MaximumNArgs(1),
	RunE:  checkExecution,
}

func init() {
	checkCmd.Flags().String("target", env.Str("QUILL_TARGET", ""), "target triple (x86_64-linux-gnu, aarch64-linux-gnu)")
	checkCmd.Flags().Int("jobs", env.Int("QUILL_JOBS", 0), "parallel compilation jobs (0 = all CPUs)")
}

func checkExecution(cmd *cobra.Command, args []string) error {
	opts, dir, err := gatherOptions(cmd, args, true)
	if err != nil {
		return err
	}

	results, err := driver.CompileDir(cmd.Context(), dir, opts)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return fmt.Errorf("no .qast artifacts under %s", dir)
	}

	if bad := reportDiagnostics(cmd, results); bad > 0 {
		return fmt.Errorf("check failed with %d error(s)", bad)
	}

	quiet, _ := cmd.Root().PersistentFlags().GetBool("quiet")
	if !quiet {
		fmt.Fprintf(cmd.OutOrStdout(), "checked %d unit(s)\n", len(results))
	}
	return nil
}
