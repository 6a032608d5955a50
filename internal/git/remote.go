package git

import (
	"context"
	"slices"
	"strings"

	"github.com/dshills/gitstate/internal/process"
)

// Remotes lists configured remotes sorted by name.
func (r *Repository) Remotes(ctx context.Context) ([]Remote, error) {
	return process.Run(ctx, r.exec, r.queryCommand("remote", "-v"), ParseRemotes)
}

// ParseRemotes parses `git remote -v` output: name\turl (fetch|push).
func ParseRemotes(out string) ([]Remote, error) {
	byName := make(map[string]*Remote)
	var order []string
	for _, line := range strings.Split(out, "\n") {
		parts := strings.Fields(line)
		if len(parts) < 3 {
			continue
		}
		name, url, kind := parts[0], parts[1], strings.Trim(parts[2], "()")

		remote, ok := byName[name]
		if !ok {
			remote = &Remote{Name: name}
			byName[name] = remote
			order = append(order, name)
		}
		switch kind {
		case "fetch":
			remote.FetchURL = url
		case "push":
			remote.PushURL = url
		}
	}

	slices.Sort(order)
	remotes := make([]Remote, 0, len(order))
	for _, name := range order {
		remotes = append(remotes, *byName[name])
	}
	return remotes, nil
}
