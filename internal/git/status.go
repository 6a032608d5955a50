package git

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dshills/gitstate/internal/process"
)

// Status returns the working tree status.
func (r *Repository) Status(ctx context.Context) (*Status, error) {
	cmd := r.queryCommand("status", "--porcelain=v2", "--branch", "-z", "--untracked-files=all")
	return process.Run(ctx, r.exec, cmd, ParseStatus)
}

// ParseStatus parses `git status --porcelain=v2 --branch -z` output.
//
// Records are NUL terminated:
//
//	# branch.oid <commit> | (initial)
//	# branch.head <name> | (detached)
//	# branch.upstream <name>
//	# branch.ab +<ahead> -<behind>
//	1 <XY> <sub> <mH> <mI> <mW> <hH> <hI> <path>
//	2 <XY> <sub> <mH> <mI> <mW> <hH> <hI> <X><score> <path> NUL <origPath>
//	u <XY> <sub> <m1> <m2> <m3> <mW> <h1> <h2> <h3> <path>
//	? <path>
func ParseStatus(out string) (*Status, error) {
	s := &Status{}
	records := strings.Split(out, "\x00")
	for i := 0; i < len(records); i++ {
		rec := records[i]
		if rec == "" {
			continue
		}
		switch rec[0] {
		case '#':
			if err := parseBranchHeader(s, rec); err != nil {
				return nil, err
			}
		case '1':
			f := strings.SplitN(rec, " ", 9)
			if len(f) < 9 || len(f[1]) != 2 {
				return nil, fmt.Errorf("malformed entry %q", rec)
			}
			s.Entries = append(s.Entries, FileStatus{
				Path:     f[8],
				Index:    charToStatus(f[1][0]),
				Worktree: charToStatus(f[1][1]),
			})
		case '2':
			f := strings.SplitN(rec, " ", 10)
			if len(f) < 10 || len(f[1]) != 2 || i+1 >= len(records) {
				return nil, fmt.Errorf("malformed rename entry %q", rec)
			}
			i++
			e := FileStatus{
				Path:     f[9],
				OldPath:  records[i],
				Index:    charToStatus(f[1][0]),
				Worktree: charToStatus(f[1][1]),
			}
			s.Entries = append(s.Entries, e)
		case 'u':
			f := strings.SplitN(rec, " ", 11)
			if len(f) < 11 {
				return nil, fmt.Errorf("malformed unmerged entry %q", rec)
			}
			s.Conflicts = append(s.Conflicts, f[10])
		case '?':
			if len(rec) > 2 {
				s.Untracked = append(s.Untracked, rec[2:])
			}
		case '!':
		default:
			return nil, fmt.Errorf("unknown status record %q", rec)
		}
	}
	return s, nil
}

func parseBranchHeader(s *Status, rec string) error {
	key, value, _ := strings.Cut(strings.TrimPrefix(rec, "# "), " ")
	switch key {
	case "branch.oid":
		if value != "(initial)" {
			s.Head = value
		}
	case "branch.head":
		if value != "(detached)" {
			s.Branch = value
		}
	case "branch.upstream":
		s.Upstream = value
	case "branch.ab":
		a, b, ok := strings.Cut(value, " ")
		if !ok {
			return fmt.Errorf("malformed branch.ab %q", value)
		}
		ahead, err := strconv.Atoi(strings.TrimPrefix(a, "+"))
		if err != nil {
			return fmt.Errorf("parse ahead: %w", err)
		}
		behind, err := strconv.Atoi(strings.TrimPrefix(b, "-"))
		if err != nil {
			return fmt.Errorf("parse behind: %w", err)
		}
		s.Ahead, s.Behind = ahead, behind
	}
	return nil
}

// charToStatus converts a porcelain status character to StatusCode.
func charToStatus(c byte) StatusCode {
	switch c {
	case 'M', 'T':
		return StatusModified
	case 'A':
		return StatusAdded
	case 'D':
		return StatusDeleted
	case 'R':
		return StatusRenamed
	case 'C':
		return StatusCopied
	case 'U':
		return StatusConflict
	default:
		return StatusUnmodified
	}
}
