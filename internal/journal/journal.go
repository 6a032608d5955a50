// Package journal keeps a sqlite history of settle cycles and commands.
package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/dshills/gitstate/internal/cache"
	"github.com/dshills/gitstate/internal/event"
	"github.com/dshills/gitstate/internal/repository"
)

//go:embed schema.sql
var schemaSQL string

// Schema versions:
// 1 - cycles and commands
const currentSchemaVersion = 1

// writeTimeout bounds one insert.
const writeTimeout = 5 * time.Second

// Journal records coordinator reports for one repository. It implements
// repository.Recorder; write errors are logged, never returned.
type Journal struct {
	db     *sql.DB
	repo   string
	retain int
	logger *slog.Logger

	mu     sync.Mutex
	writes int
}

// Options configures a Journal.
type Options struct {
	// Retain is the number of rows kept per table and repository. Zero
	// keeps everything.
	Retain int

	Logger *slog.Logger
}

var _ repository.Recorder = (*Journal)(nil)

// DefaultPath returns the journal location under the user cache directory.
func DefaultPath() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("user cache dir: %w", err)
	}
	return filepath.Join(dir, "gitstate", "journal.db"), nil
}

// Open creates or opens the journal at path for the repository rooted at
// repo.
func Open(path, repo string, opts Options) (*Journal, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("journal directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect journal: %w", err)
	}
	// sqlite has a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db, path); err != nil {
		db.Close()
		return nil, err
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Journal{db: db, repo: repo, retain: opts.Retain, logger: logger}, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

func applyPragmas(db *sql.DB, path string) error {
	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	if path != ":memory:" {
		pragmas = append([]string{"PRAGMA journal_mode = WAL"}, pragmas...)
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("execute %q: %w", p, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("journal schema version %d is newer than %d", version, currentSchemaVersion)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// RecordCycle stores a settle cycle report.
func (j *Journal) RecordCycle(r repository.CycleReport) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO cycles (repo, cycle, started_at, finished_at, refreshed, rejected, failed, notified)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		j.repo, r.Cycle, r.Started.UnixNano(), r.Finished.UnixNano(),
		setNames(r.Refreshed), setNames(r.Rejected), setNames(r.Failed), kindNames(r.Notified))
	if err != nil {
		j.logger.Warn("journal write failed", "table", "cycles", "error", err)
		return
	}
	j.wrote(ctx)
}

// RecordCommand stores a command report.
func (j *Journal) RecordCommand(r repository.CommandReport) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	var errText string
	if r.Err != nil {
		errText = r.Err.Error()
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO commands (id, repo, operation, target, started_at, duration_ns, error, invalidated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, j.repo, r.Operation.String(), r.Target, r.Started.UnixNano(), int64(r.Duration),
		errText, setNames(r.Invalidated))
	if err != nil {
		j.logger.Warn("journal write failed", "table", "commands", "error", err)
		return
	}
	j.wrote(ctx)
}

// pruneEvery is the number of writes between retention passes.
const pruneEvery = 50

func (j *Journal) wrote(ctx context.Context) {
	if j.retain <= 0 {
		return
	}
	j.mu.Lock()
	j.writes++
	due := j.writes%pruneEvery == 0
	j.mu.Unlock()
	if due {
		if err := j.Prune(ctx, j.retain); err != nil {
			j.logger.Warn("journal prune failed", "error", err)
		}
	}
}

// Prune keeps the newest retain rows of each table for this repository.
func (j *Journal) Prune(ctx context.Context, retain int) error {
	for _, table := range []string{"cycles", "commands"} {
		q := fmt.Sprintf(`
			DELETE FROM %[1]s WHERE repo = ? AND seq NOT IN (
				SELECT seq FROM %[1]s WHERE repo = ? ORDER BY seq DESC LIMIT ?
			)`, table)
		if _, err := j.db.ExecContext(ctx, q, j.repo, j.repo, retain); err != nil {
			return fmt.Errorf("prune %s: %w", table, err)
		}
	}
	return nil
}

// Cycle is a stored settle cycle.
type Cycle struct {
	Cycle     uint64    `json:"cycle"`
	Started   time.Time `json:"started"`
	Finished  time.Time `json:"finished"`
	Refreshed []string  `json:"refreshed"`
	Rejected  []string  `json:"rejected,omitempty"`
	Failed    []string  `json:"failed,omitempty"`
	Notified  []string  `json:"notified"`
}

// Command is a stored command.
type Command struct {
	ID          string        `json:"id"`
	Operation   string        `json:"operation"`
	Target      string        `json:"target,omitempty"`
	Started     time.Time     `json:"started"`
	Duration    time.Duration `json:"duration"`
	Error       string        `json:"error,omitempty"`
	Invalidated []string      `json:"invalidated,omitempty"`
}

// Cycles returns the newest limit cycles, newest first.
func (j *Journal) Cycles(ctx context.Context, limit int) ([]Cycle, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT cycle, started_at, finished_at, refreshed, rejected, failed, notified
		FROM cycles WHERE repo = ? ORDER BY seq DESC LIMIT ?`, j.repo, limit)
	if err != nil {
		return nil, fmt.Errorf("query cycles: %w", err)
	}
	defer rows.Close()

	var out []Cycle
	for rows.Next() {
		var (
			c                                     Cycle
			started, finished                     int64
			refreshed, rejected, failed, notified string
		)
		if err := rows.Scan(&c.Cycle, &started, &finished, &refreshed, &rejected, &failed, &notified); err != nil {
			return nil, fmt.Errorf("scan cycle: %w", err)
		}
		c.Started = time.Unix(0, started)
		c.Finished = time.Unix(0, finished)
		c.Refreshed = splitNames(refreshed)
		c.Rejected = splitNames(rejected)
		c.Failed = splitNames(failed)
		c.Notified = splitNames(notified)
		out = append(out, c)
	}
	return out, rows.Err()
}

// Commands returns the newest limit commands, newest first.
func (j *Journal) Commands(ctx context.Context, limit int) ([]Command, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, operation, target, started_at, duration_ns, error, invalidated
		FROM commands WHERE repo = ? ORDER BY seq DESC LIMIT ?`, j.repo, limit)
	if err != nil {
		return nil, fmt.Errorf("query commands: %w", err)
	}
	defer rows.Close()

	var out []Command
	for rows.Next() {
		var (
			c                 Command
			started, duration int64
			invalidated       string
		)
		if err := rows.Scan(&c.ID, &c.Operation, &c.Target, &started, &duration, &c.Error, &invalidated); err != nil {
			return nil, fmt.Errorf("scan command: %w", err)
		}
		c.Started = time.Unix(0, started)
		c.Duration = time.Duration(duration)
		c.Invalidated = splitNames(invalidated)
		out = append(out, c)
	}
	return out, rows.Err()
}

func setNames(s cache.Set) string {
	cats := s.Slice()
	names := make([]string, len(cats))
	for i, c := range cats {
		names[i] = c.String()
	}
	return strings.Join(names, " ")
}

func kindNames(kinds []event.Kind) string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.String()
	}
	return strings.Join(names, " ")
}

func splitNames(s string) []string {
	return strings.Fields(s)
}
