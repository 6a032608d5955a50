package main

import (
	"errors"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/gitstate/internal/event"
)

func newWatchCmd() *cobra.Command {
	var (
		topic  string
		values bool
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print a line for every cached fact that changes",
		Long: `Watch loads the repository, then follows file system changes and
prints one line per notification until interrupted.

--topic filters by event topic; * matches one segment and ** any number.`,
		Example: `  gitstate watch
  gitstate watch --topic git.status.updated
  gitstate watch --json --values`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd, event.Topic(topic), values)
		},
	}
	cmd.Flags().StringVar(&topic, "topic", "**", "Topic pattern to print")
	cmd.Flags().BoolVar(&values, "values", false, "Include values in JSON output")
	return cmd
}

func runWatch(cmd *cobra.Command, topic event.Topic, values bool) (err error) {
	if !topic.Valid() {
		return userError(errors.New("invalid topic pattern: " + topic.String()))
	}
	s, err := openSession(cmd, true)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()
	if !s.cfg.Watcher.Enabled {
		s.logger.Warn("file watching disabled by configuration; only the initial load is shown")
	}

	p := newPrinter(cmd)
	var mu sync.Mutex
	if _, err := s.coord.Subscribe(topic, func(e event.Event) {
		mu.Lock()
		defer mu.Unlock()
		printEvent(p, e, values)
	}); err != nil {
		return userError(err)
	}

	if err := s.coord.Start(); err != nil {
		return err
	}
	<-cmd.Context().Done()
	return nil
}

func printEvent(p *printer, e event.Event, values bool) {
	line := eventLine{
		Time:    e.Timestamp,
		Kind:    e.Kind.String(),
		Topic:   e.Topic.String(),
		Version: e.Version,
		Cycle:   e.Cycle,
		Summary: summarize(e.Value),
	}
	if p.json {
		if values {
			line.Value = e.Value
		}
		_ = p.writeJSONLine(line)
		return
	}
	s := p.style
	p.printf("%s %s %s\n",
		s.Dim.Render(line.Time.Format(time.TimeOnly)),
		s.Key.Render(line.Kind),
		line.Summary)
}
