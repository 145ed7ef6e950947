package main

import (
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"quill/internal/driver"
	"quill/internal/ui"
)

type compileOutcome struct {
	results []driver.UnitResult
	err     error
}

// runCompileWithUI drives a directory compile while a Bubble Tea model
// renders the per-unit progress events.
func runCompileWithUI(cmd *cobra.Command, title, dir string, files []string, opts driver.Options) ([]driver.UnitResult, error) {
	events := make(chan driver.Event, 256)
	outcomeCh := make(chan compileOutcome, 1)

	display := displayFileList(files, dir)
	relabel := make(map[string]string, len(files))
	for i, f := range files {
		relabel[f] = display[i]
	}

	opts.Progress = func(ev driver.Event) {
		if short, ok := relabel[ev.Unit]; ok {
			ev.Unit = short
		}
		events <- ev
	}

	go func() {
		results, err := driver.CompileDir(cmd.Context(), dir, opts)
		outcomeCh <- compileOutcome{results: results, err: err}
		close(events)
	}()

	model := ui.NewProgressModel(title, display, events)
	program := tea.NewProgram(model, tea.WithOutput(os.Stdout))
	_, uiErr := program.Run()
	outcome := <-outcomeCh
	if uiErr != nil {
		return outcome.results, uiErr
	}
	return outcome.results, outcome.err
}
