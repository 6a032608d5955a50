package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/gitstate/internal/config"
	"github.com/dshills/gitstate/internal/git"
	"github.com/dshills/gitstate/internal/journal"
	"github.com/dshills/gitstate/internal/logging"
	"github.com/dshills/gitstate/internal/process"
	"github.com/dshills/gitstate/internal/repository"
	"github.com/dshills/gitstate/internal/task"
	"github.com/dshills/gitstate/internal/watcher"
)

// shutdownTimeout bounds teardown after the command finished.
const shutdownTimeout = 10 * time.Second

// env is the resolved configuration and logger of one invocation.
type env struct {
	root     string
	cfg      config.Config
	logger   *slog.Logger
	closeLog func() error
}

func loadEnv(cmd *cobra.Command) (*env, error) {
	repoPath, _ := cmd.Flags().GetString("repo")
	root, err := git.FindRoot(repoPath)
	if err != nil {
		return nil, userError(err)
	}

	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, _, err := config.Loader{Path: cfgPath, SearchDirs: []string{root}}.Load()
	if err != nil {
		return nil, userError(err)
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
		if err := cfg.Validate(); err != nil {
			return nil, userError(err)
		}
	}

	logger, closeLog, err := logging.New(cfg.Logging, cmd.ErrOrStderr())
	if err != nil {
		return nil, userError(err)
	}
	return &env{root: root, cfg: cfg, logger: logger, closeLog: closeLog}, nil
}

// openJournal opens the configured journal. It returns nil when disabled.
func (e *env) openJournal() (*journal.Journal, error) {
	if !e.cfg.Journal.Enabled {
		return nil, nil
	}
	path := e.cfg.Journal.Path
	if path == "" {
		var err error
		if path, err = journal.DefaultPath(); err != nil {
			return nil, err
		}
	}
	return journal.Open(path, e.root, journal.Options{Retain: e.cfg.Journal.Retain, Logger: e.logger})
}

// session is a coordinator over the repository with its dependencies.
type session struct {
	*env
	supervisor *process.Supervisor
	repo       *git.Repository
	coord      *repository.Coordinator
	journal    *journal.Journal
	last       *lastCommand
}

// openSession builds the coordinator. watch attaches the file system
// watcher when the configuration enables it.
func openSession(cmd *cobra.Command, watch bool) (*session, error) {
	e, err := loadEnv(cmd)
	if err != nil {
		return nil, err
	}
	cfg := e.cfg

	sup := process.NewSupervisor(process.WithGrace(cfg.Git.KillGrace.Std()))
	runner := process.NewRunner(
		process.WithExecutable(cfg.Git.Executable),
		process.WithEnv(cfg.Git.Env...),
		process.WithSupervisor(sup),
		process.WithLogger(e.logger),
	)
	repo, err := git.Open(e.root, runner, git.Options{
		LogLimit:         cfg.Git.LogLimit,
		QueryTimeout:     cfg.Git.QueryTimeout.Std(),
		OperationTimeout: cfg.Git.OperationTimeout.Std(),
		NetworkTimeout:   cfg.Git.NetworkTimeout.Std(),
	})
	if err != nil {
		_ = e.closeLog()
		return nil, userError(err)
	}

	s := &session{env: e, supervisor: sup, repo: repo}
	opts := repository.Options{
		Settle:         cfg.Coordinator.Settle.Std(),
		MaxSettle:      cfg.Coordinator.MaxSettle.Std(),
		SuppressWindow: cfg.SuppressWindow(),
		MaxParallelism: cfg.Coordinator.MaxParallelism,
		Logger:         e.logger,
	}

	s.last = &lastCommand{}
	opts.Recorder = s.last
	j, err := e.openJournal()
	if err != nil {
		e.logger.Warn("journal unavailable", "error", err)
	} else if j != nil {
		s.journal = j
		s.last.next = j
	}

	if watch && cfg.Watcher.Enabled {
		opts.Changes = repository.WatchRepository(repo, watcher.Options{
			Debounce:       cfg.Watcher.Debounce.Std(),
			MaxWait:        cfg.Watcher.MaxWait.Std(),
			IgnorePatterns: cfg.Watcher.Ignore,
			MaxWatches:     cfg.Watcher.MaxWatches,
			Logger:         e.logger,
		})
	}
	s.coord = repository.New(repo, opts)
	if e.logger.Enabled(context.Background(), slog.LevelDebug) {
		s.coord.Scheduler().AddListener(taskLog{e.logger})
	}
	return s, nil
}

// taskLog logs scheduler task lifecycles at debug level.
type taskLog struct {
	logger *slog.Logger
}

func (l taskLog) TaskStarted(t *task.Task) {
	queued, started, _ := t.Times()
	l.logger.Debug("task started", "task", t.Name, "lane", t.Affinity.String(), "queued", started.Sub(queued))
}

func (l taskLog) TaskFinished(t *task.Task) {
	l.logger.Debug("task finished", "task", t.Name, "lane", t.Affinity.String(),
		"state", t.State().String(), "duration", t.Duration(), "error", t.Err())
}

// Close stops the coordinator and kills leftover git processes.
func (s *session) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := s.coord.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop coordinator: %w", err))
	}
	if err := s.supervisor.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop git processes: %w", err))
	}
	if s.journal != nil {
		if err := s.journal.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close journal: %w", err))
		}
	}
	if err := s.closeLog(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
