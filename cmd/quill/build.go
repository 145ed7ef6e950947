package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/xyproto/env/v2"

	"quill/internal/diag"
	"quill/internal/driver"
)

var buildCmd = &cobra.Command{
	Use:   "build [flags] [path]",
	Short: "Compile a quill project to native objects",
	Long:  "Compile every .qast artifact under the project's artifact directory.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  buildExecution,
}

func init() {
	buildCmd.Flags().String("target", env.Str("QUILL_TARGET", ""), "target triple (x86_64-linux-gnu, aarch64-linux-gnu)")
	buildCmd.Flags().Int("jobs", env.Int("QUILL_JOBS", 0), "parallel compilation jobs (0 = all CPUs)")
	buildCmd.Flags().String("ui", "auto", "user interface (auto|on|off)")
	buildCmd.Flags().Bool("no-cache", false, "skip the artifact cache")
}

func buildExecution(cmd *cobra.Command, args []string) error {
	opts, dir, err := gatherOptions(cmd, args, false)
	if err != nil {
		return err
	}
	uiValue, err := cmd.Flags().GetString("ui")
	if err != nil {
		return err
	}
	useTUI, err := resolveUI(uiValue, isTerminal(os.Stdout))
	if err != nil {
		return err
	}
	noCache, err := cmd.Flags().GetBool("no-cache")
	if err != nil {
		return err
	}
	if !noCache {
		cache, err := driver.OpenDiskCache("quill")
		if err == nil {
			opts.Cache = cache
		}
	}

	files, err := driver.ListArtifacts(dir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no .qast artifacts under %s", dir)
	}

	var results []driver.UnitResult
	if useTUI {
		results, err = runCompileWithUI(cmd, "quill build", dir, files, opts)
	} else {
		results, err = driver.CompileDir(cmd.Context(), dir, opts)
	}
	if err != nil {
		return err
	}

	if bad := reportDiagnostics(cmd, results); bad > 0 {
		return fmt.Errorf("build failed with %d error(s)", bad)
	}

	quiet, _ := cmd.Root().PersistentFlags().GetBool("quiet")
	if !quiet {
		cached := 0
		for _, r := range results {
			if r.Cached {
				cached++
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "built %d unit(s) (%d cached)\n", len(results), cached)
	}
	return nil
}

// gatherOptions resolves flags, environment, and the project manifest into
// driver options plus the artifact directory.
func gatherOptions(cmd *cobra.Command, args []string, checkOnly bool) (driver.Options, string, error) {
	target, err := cmd.Flags().GetString("target")
	if err != nil {
		return driver.Options{}, "", err
	}
	jobs, err := cmd.Flags().GetInt("jobs")
	if err != nil {
		return driver.Options{}, "", err
	}
	maxDiagnostics, err := cmd.Root().PersistentFlags().GetInt("max-diagnostics")
	if err != nil {
		return driver.Options{}, "", err
	}

	manifest, found, err := loadProjectManifest(".")
	if err != nil {
		return driver.Options{}, "", err
	}
	if target == "" && found {
		target = manifest.Config.Build.Target
	}
	dir, err := resolveArtifactDir(args, manifest, found)
	if err != nil {
		return driver.Options{}, "", err
	}

	return driver.Options{
		Target:         target,
		Jobs:           jobs,
		MaxDiagnostics: maxDiagnostics,
		CheckOnly:      checkOnly,
	}, dir, nil
}

// resolveUI maps the --ui flag onto a yes/no for the progress view. The
// auto default follows whether stdout is a terminal.
func resolveUI(value string, stdoutIsTTY bool) (bool, error) {
	switch strings.TrimSpace(strings.ToLower(value)) {
	case "", "auto":
		return stdoutIsTTY, nil
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	return false, fmt.Errorf("--ui must be auto, on, or off (got %q)", value)
}

var (
	errorLabel   = color.New(color.FgRed, color.Bold)
	warningLabel = color.New(color.FgYellow, color.Bold)
)

// reportDiagnostics prints every collected diagnostic and returns the number
// of units that failed.
func reportDiagnostics(cmd *cobra.Command, results []driver.UnitResult) int {
	out := cmd.ErrOrStderr()
	failed := 0
	for _, res := range results {
		if res.Bag == nil || res.Bag.Len() == 0 {
			continue
		}
		res.Bag.Sort()
		if res.Bag.HasErrors() {
			failed++
		}
		unit := filepath.Base(res.Path)
		for _, d := range res.Bag.Items() {
			label := warningLabel.Sprint("warning")
			if d.Severity >= diag.SevError {
				label = errorLabel.Sprint("error")
			}
			fmt.Fprintf(out, "%s: %s[%04d]: %s\n", unit, label, int(d.Code), d.Message)
			for _, n := range d.Notes {
				fmt.Fprintf(out, "%s: note: %s\n", unit, n.Msg)
			}
		}
	}
	return failed
}

// displayFileList shortens absolute artifact paths for the UI.
func displayFileList(files []string, base string) []string {
	out := make([]string, len(files))
	for i, f := range files {
		if base != "" {
			if rel, err := filepath.Rel(base, f); err == nil && !strings.HasPrefix(rel, "..") {
				out[i] = filepath.ToSlash(rel)
				continue
			}
		}
		out[i] = f
	}
	return out
}
