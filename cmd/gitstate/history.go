package main

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/gitstate/internal/journal"
)

// historyView is the history command result.
type historyView struct {
	Commands []journal.Command `json:"commands"`
	Cycles   []journal.Cycle   `json:"cycles,omitempty"`
}

func newHistoryCmd() *cobra.Command {
	var (
		limit  int
		cycles bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded commands and refresh cycles",
		Example: `  gitstate history
  gitstate history --cycles -n 50`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = e.closeLog() }()

			j, err := e.openJournal()
			if err != nil {
				return err
			}
			if j == nil {
				return userError(errors.New("journal is disabled in the configuration"))
			}
			defer func() {
				if cerr := j.Close(); err == nil && cerr != nil {
					err = cerr
				}
			}()

			var v historyView
			if v.Commands, err = j.Commands(cmd.Context(), limit); err != nil {
				return err
			}
			if cycles {
				if v.Cycles, err = j.Cycles(cmd.Context(), limit); err != nil {
					return err
				}
			}

			p := newPrinter(cmd)
			if p.json {
				return p.writeJSON(v)
			}
			renderHistory(p, v)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Entries to show")
	cmd.Flags().BoolVar(&cycles, "cycles", false, "Also show refresh cycles")
	return cmd
}

func renderHistory(p *printer, v historyView) {
	s := p.style
	if len(v.Commands) == 0 {
		p.printf("%s\n", s.Dim.Render("No commands recorded"))
	}
	for _, c := range v.Commands {
		status := s.Success.Render("ok")
		if c.Error != "" {
			status = s.Error.Render("failed")
		}
		p.printf("%s %s %s %s %s\n",
			s.Dim.Render(c.Started.Local().Format(time.DateTime)),
			status,
			s.Key.Render(strings.TrimSpace(c.Operation+" "+c.Target)),
			s.Dim.Render(c.Duration.Round(time.Millisecond).String()),
			strings.Join(c.Invalidated, ","))
		if c.Error != "" {
			p.printf("    %s\n", c.Error)
		}
	}

	if len(v.Cycles) == 0 {
		return
	}
	p.printf("\n%s\n", s.Title.Render("Refresh cycles:"))
	for _, c := range v.Cycles {
		p.printf("  #%d %s refreshed=%s",
			c.Cycle,
			s.Dim.Render(c.Finished.Sub(c.Started).Round(time.Millisecond).String()),
			strings.Join(c.Refreshed, ","))
		if len(c.Rejected) > 0 {
			p.printf(" rejected=%s", strings.Join(c.Rejected, ","))
		}
		if len(c.Failed) > 0 {
			p.printf(" %s", s.Warning.Render("failed="+strings.Join(c.Failed, ",")))
		}
		p.printf("\n")
	}
}
