package git

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dshills/gitstate/internal/process"
)

// logFormat is one commit per NUL terminated record:
// hash, short hash, subject, author, email, author time, parents.
const logFormat = "%H%n%h%n%s%n%an%n%ae%n%at%n%P%x00"

// Log returns up to LogLimit commits reachable from HEAD, newest first.
// A repository without commits has an empty log.
func (r *Repository) Log(ctx context.Context) ([]Commit, error) {
	out, err := r.query(ctx, "log", "--format="+logFormat, "-n", strconv.Itoa(r.opts.LogLimit), "HEAD", "--")
	if err != nil {
		if exitedWith(err, 128) && unbornHead(err) {
			return nil, nil
		}
		return nil, err
	}
	commits, err := ParseLog(out)
	if err != nil {
		return nil, fmt.Errorf("parse log: %w", err)
	}
	return commits, nil
}

// ParseLog parses log output in logFormat.
func ParseLog(out string) ([]Commit, error) {
	var commits []Commit
	for _, rec := range strings.Split(out, "\x00") {
		rec = strings.Trim(rec, "\n")
		if rec == "" {
			continue
		}
		c, err := parseCommit(rec)
		if err != nil {
			return nil, err
		}
		commits = append(commits, c)
	}
	return commits, nil
}

func parseCommit(rec string) (Commit, error) {
	lines := strings.Split(rec, "\n")
	if len(lines) < 6 {
		return Commit{}, fmt.Errorf("invalid commit record: expected at least 6 lines, got %d", len(lines))
	}
	at, err := strconv.ParseInt(lines[5], 10, 64)
	if err != nil {
		return Commit{}, fmt.Errorf("parse author time: %w", err)
	}
	c := Commit{
		Hash:        lines[0],
		ShortHash:   lines[1],
		Subject:     lines[2],
		Author:      lines[3],
		AuthorEmail: lines[4],
		AuthorTime:  time.Unix(at, 0),
	}
	if len(lines) > 6 && lines[6] != "" {
		c.Parents = strings.Fields(lines[6])
	}
	return c, nil
}

func unbornHead(err error) bool {
	f, ok := process.AsFailure(err)
	if !ok {
		return false
	}
	msg := f.Stderr
	return strings.Contains(msg, "does not have any commits") ||
		strings.Contains(msg, "unknown revision") ||
		strings.Contains(msg, "bad revision") ||
		strings.Contains(msg, "bad default revision")
}
