package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
)

func newStatusCmd() *cobra.Command {
	var (
		logCount int
		query    string
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Load every cached fact and print it",
		Example: `  gitstate status
  gitstate status --log 5
  gitstate status --json
  gitstate status --query head.branch
  gitstate status --query 'files.#.path'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, logCount, query)
		},
	}
	cmd.Flags().IntVarP(&logCount, "log", "n", 10, "Recent commits to show")
	cmd.Flags().StringVarP(&query, "query", "q", "", "Print one field of the JSON result (gjson path syntax)")
	return cmd
}

func runStatus(cmd *cobra.Command, logCount int, query string) (err error) {
	s, err := openSession(cmd, false)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	if err := s.coord.Start(); err != nil {
		return err
	}
	if err := s.coord.WaitForEvents(cmd.Context()); err != nil {
		return err
	}

	v := buildStatusView(s.root, s.coord, logCount)
	p := newPrinter(cmd)
	if query != "" {
		return printQuery(p, v, query)
	}
	if p.json {
		return p.writeJSON(v)
	}
	renderStatus(p, v)
	return nil
}

// printQuery prints the value at path in the JSON form of v. Strings print
// bare, anything else as JSON.
func printQuery(p *printer, v any, path string) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding JSON: %w", err)
	}
	res := gjson.GetBytes(data, path)
	if !res.Exists() {
		return userError(fmt.Errorf("query %q matched nothing", path))
	}
	if res.Type == gjson.String {
		p.printf("%s\n", res.String())
		return nil
	}
	p.printf("%s\n", res.Raw)
	return nil
}
