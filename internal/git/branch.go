package git

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dshills/gitstate/internal/process"
)

// branchFormat separates fields with NUL; ref names cannot contain it.
const branchFormat = "%(refname)%00%(objectname)%00%(upstream:short)%00%(HEAD)%00%(upstream:track)"

// LocalBranches lists refs/heads.
func (r *Repository) LocalBranches(ctx context.Context) ([]Branch, error) {
	cmd := r.queryCommand("for-each-ref", "--format="+branchFormat, "refs/heads")
	return process.Run(ctx, r.exec, cmd, ParseBranches)
}

// RemoteBranches lists refs/remotes, without the remote HEAD aliases.
func (r *Repository) RemoteBranches(ctx context.Context) ([]Branch, error) {
	cmd := r.queryCommand("for-each-ref", "--format="+branchFormat, "refs/remotes")
	return process.Run(ctx, r.exec, cmd, ParseBranches)
}

// ParseBranches parses for-each-ref output in branchFormat.
func ParseBranches(out string) ([]Branch, error) {
	var branches []Branch
	for _, line := range strings.Split(out, "\n") {
		if line == "" {
			continue
		}
		parts := strings.Split(line, "\x00")
		if len(parts) < 5 {
			return nil, fmt.Errorf("malformed ref line %q", line)
		}
		b := Branch{
			Ref:      parts[0],
			Hash:     parts[1],
			Upstream: parts[2],
			Head:     parts[3] == "*",
			Gone:     parts[4] == "[gone]",
		}
		switch {
		case strings.HasPrefix(b.Ref, "refs/heads/"):
			b.Name = strings.TrimPrefix(b.Ref, "refs/heads/")
		case strings.HasPrefix(b.Ref, "refs/remotes/"):
			b.Name = strings.TrimPrefix(b.Ref, "refs/remotes/")
			remote, rest, _ := strings.Cut(b.Name, "/")
			if rest == "HEAD" {
				continue
			}
			b.Remote = remote
		default:
			b.Name = b.Ref
		}
		branches = append(branches, b)
	}
	return branches, nil
}

// Head returns what HEAD points at. An unborn branch has no hash.
func (r *Repository) Head(ctx context.Context) (Head, error) {
	var h Head
	out, err := r.query(ctx, "symbolic-ref", "--quiet", "--short", "HEAD")
	switch {
	case err == nil:
		h.Branch = strings.TrimSpace(out)
	case exitedWith(err, 1):
		h.Detached = true
	default:
		return Head{}, err
	}

	out, err = r.query(ctx, "rev-parse", "--quiet", "--verify", "HEAD^{commit}")
	switch {
	case err == nil:
		h.Hash = strings.TrimSpace(out)
	case exitedWith(err, 1):
	default:
		return Head{}, err
	}
	return h, nil
}

// AheadBehind counts commits between the current branch and its upstream.
// A detached HEAD or a branch without upstream yields zero counts.
func (r *Repository) AheadBehind(ctx context.Context) (AheadBehind, error) {
	var ab AheadBehind
	out, err := r.query(ctx, "symbolic-ref", "--quiet", "--short", "HEAD")
	if err != nil {
		if exitedWith(err, 1) {
			return ab, nil
		}
		return ab, err
	}
	ab.Branch = strings.TrimSpace(out)

	out, err = r.query(ctx, "rev-parse", "--abbrev-ref", ab.Branch+"@{upstream}")
	if err != nil {
		if process.KindOf(err) == process.KindProcess {
			// no upstream configured, or the upstream ref is gone
			return ab, nil
		}
		return ab, err
	}
	ab.Upstream = strings.TrimSpace(out)

	out, err = r.query(ctx, "rev-list", "--left-right", "--count", ab.Branch+"..."+ab.Upstream)
	if err != nil {
		return ab, err
	}
	ab.Ahead, ab.Behind, err = parseLeftRight(out)
	return ab, err
}

// parseLeftRight parses `rev-list --left-right --count` output: "A\tB".
func parseLeftRight(out string) (int, int, error) {
	fields := strings.Fields(out)
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("malformed rev-list count %q", out)
	}
	ahead, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, 0, fmt.Errorf("parse ahead: %w", err)
	}
	behind, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, 0, fmt.Errorf("parse behind: %w", err)
	}
	return ahead, behind, nil
}
