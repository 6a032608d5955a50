package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dshills/gitstate/internal/git"
	"github.com/dshills/gitstate/internal/process"
)

// Exit codes.
const (
	ExitSuccess     = 0
	ExitUserError   = 1
	ExitSystemError = 2
	ExitConflict    = 3
)

// exitError carries an exit code for the CLI.
type exitError struct {
	Code  int
	Cause error
}

func (e *exitError) Error() string { return e.Cause.Error() }
func (e *exitError) Unwrap() error { return e.Cause }

func userError(err error) error {
	return &exitError{Code: ExitUserError, Cause: err}
}

// exitCode maps an error to a process exit code. git rejections are
// conflicts, missing targets and invalid input are user errors, and every
// other failure is a system error.
func exitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	switch {
	case errors.Is(err, process.ErrConflict):
		return ExitConflict
	case errors.Is(err, process.ErrNotFound),
		errors.Is(err, git.ErrInvalidName),
		errors.Is(err, git.ErrEmptyMessage),
		errors.Is(err, git.ErrNoPaths),
		errors.Is(err, git.ErrNotRepository),
		errors.Is(err, git.ErrRepositoryNotFound):
		return ExitUserError
	}
	return ExitSystemError
}

// styles holds the lipgloss styles for human output.
type styles struct {
	Title   lipgloss.Style
	Key     lipgloss.Style
	Dim     lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Staged  lipgloss.Style
	Changed lipgloss.Style
}

func newStyles(color bool) styles {
	if !color {
		plain := lipgloss.NewStyle()
		return styles{plain, plain, plain, plain, plain, plain, plain, plain}
	}
	return styles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		Key:     lipgloss.NewStyle().Foreground(lipgloss.Color("14")),
		Dim:     lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		Staged:  lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		Changed: lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	}
}

// printer writes JSON or styled text.
type printer struct {
	w     io.Writer
	json  bool
	style styles

	// width is the terminal width, zero when not writing to a terminal.
	width int
}

func newPrinter(cmd *cobra.Command) *printer {
	w := cmd.OutOrStdout()
	mode, _ := cmd.Flags().GetString("color")
	return &printer{
		w:     w,
		json:  isJSONMode(cmd),
		style: newStyles(useColor(mode, w)),
		width: terminalWidth(w),
	}
}

func terminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 0
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}
	return width
}

// useColor resolves --color against TTY detection.
func useColor(mode string, w io.Writer) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return false
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (p *printer) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(p.w, format, args...)
}

// writeJSON writes v as indented JSON.
func (p *printer) writeJSON(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding JSON: %w", err)
	}
	return nil
}

// writeJSONLine writes v as one compact JSON line.
func (p *printer) writeJSONLine(v any) error {
	if err := json.NewEncoder(p.w).Encode(v); err != nil {
		return fmt.Errorf("encoding JSON: %w", err)
	}
	return nil
}
