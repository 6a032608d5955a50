package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/rivo/uniseg"

	"github.com/dshills/gitstate/internal/git"
)

// cachedRepository is the read side of the coordinator used for rendering.
type cachedRepository interface {
	Status() (*git.Status, uint64)
	CurrentBranch() (git.Head, uint64)
	LocalBranches() ([]git.Branch, uint64)
	AheadBehind() (git.AheadBehind, uint64)
	Log() ([]git.Commit, uint64)
	Locks() ([]git.Lock, uint64)
	Remotes() ([]git.Remote, uint64)
}

// fileView is one changed path.
type fileView struct {
	Path     string `json:"path"`
	OldPath  string `json:"old_path,omitempty"`
	Index    string `json:"index"`
	Worktree string `json:"worktree"`
}

// statusView is the status command result.
type statusView struct {
	Root      string            `json:"root"`
	Head      git.Head          `json:"head"`
	Tracking  *git.AheadBehind  `json:"tracking,omitempty"`
	Clean     bool              `json:"clean"`
	Files     []fileView        `json:"files,omitempty"`
	Untracked []string          `json:"untracked,omitempty"`
	Conflicts []string          `json:"conflicts,omitempty"`
	Branches  []git.Branch      `json:"branches,omitempty"`
	Remotes   []git.Remote      `json:"remotes,omitempty"`
	Locks     []git.Lock        `json:"locks,omitempty"`
	Log       []git.Commit      `json:"log,omitempty"`
	Versions  map[string]uint64 `json:"versions"`
}

func buildStatusView(root string, r cachedRepository, logLimit int) statusView {
	v := statusView{Root: root, Clean: true, Versions: map[string]uint64{}}

	var ver uint64
	v.Head, ver = r.CurrentBranch()
	v.Versions["current-branch"] = ver

	st, ver := r.Status()
	v.Versions["status"] = ver
	if st != nil {
		v.Clean = st.Clean()
		for _, e := range st.Entries {
			v.Files = append(v.Files, fileView{
				Path:     e.Path,
				OldPath:  e.OldPath,
				Index:    e.Index.String(),
				Worktree: e.Worktree.String(),
			})
		}
		v.Untracked = st.Untracked
		v.Conflicts = st.Conflicts
	}

	ab, ver := r.AheadBehind()
	v.Versions["ahead-behind"] = ver
	if ab.Tracking() {
		v.Tracking = &ab
	}

	v.Branches, v.Versions["local-branches"] = r.LocalBranches()
	v.Remotes, v.Versions["remotes"] = r.Remotes()
	v.Locks, v.Versions["locks"] = r.Locks()

	log, ver := r.Log()
	v.Versions["log"] = ver
	if logLimit > 0 && len(log) > logLimit {
		log = log[:logLimit]
	}
	v.Log = log
	return v
}

// statusCodeLetter is the porcelain letter of a status name.
func statusCodeLetter(name string) string {
	switch name {
	case "modified":
		return "M"
	case "added":
		return "A"
	case "deleted":
		return "D"
	case "renamed":
		return "R"
	case "copied":
		return "C"
	case "untracked":
		return "?"
	case "conflict":
		return "U"
	}
	return "."
}

// renderStatus writes the human form of v.
func renderStatus(p *printer, v statusView) {
	s := p.style
	head := v.Head.String()
	if head == "" {
		head = "(no branch)"
	}
	p.printf("%s %s\n", s.Title.Render("On branch"), s.Key.Render(head))

	if v.Tracking != nil {
		t := v.Tracking
		switch {
		case t.Ahead == 0 && t.Behind == 0:
			p.printf("Up to date with %s\n", t.Upstream)
		default:
			p.printf("%s: %s, %s\n", t.Upstream,
				s.Success.Render(fmt.Sprintf("%d ahead", t.Ahead)),
				s.Warning.Render(fmt.Sprintf("%d behind", t.Behind)))
		}
	}

	if len(v.Locks) > 0 {
		p.printf("\n%s\n", s.Warning.Render("Locks held:"))
		for _, l := range v.Locks {
			p.printf("  %s\n", l.Path)
		}
	}

	if v.Clean {
		p.printf("\n%s\n", s.Success.Render("Working tree clean"))
	}
	if len(v.Conflicts) > 0 {
		p.printf("\n%s\n", s.Error.Render("Conflicts:"))
		for _, c := range v.Conflicts {
			p.printf("  %s\n", c)
		}
	}
	if len(v.Files) > 0 {
		p.printf("\n%s\n", s.Title.Render("Changes:"))
		for _, f := range v.Files {
			path := f.Path
			if f.OldPath != "" {
				path = f.OldPath + " -> " + f.Path
			}
			p.printf("  %s%s %s\n",
				s.Staged.Render(statusCodeLetter(f.Index)),
				s.Changed.Render(statusCodeLetter(f.Worktree)),
				path)
		}
	}
	if len(v.Untracked) > 0 {
		p.printf("\n%s\n", s.Title.Render("Untracked:"))
		for _, u := range v.Untracked {
			p.printf("  %s\n", s.Dim.Render(u))
		}
	}

	if len(v.Branches) > 0 {
		p.printf("\n%s\n", s.Title.Render("Branches:"))
		for _, b := range v.Branches {
			mark := " "
			if b.Head {
				mark = "*"
			}
			line := fmt.Sprintf("%s %s", mark, b.Name)
			if b.Upstream != "" {
				up := b.Upstream
				if b.Gone {
					up += ", gone"
				}
				line += s.Dim.Render(" [" + up + "]")
			}
			p.printf("  %s\n", line)
		}
	}

	if len(v.Remotes) > 0 {
		p.printf("\n%s\n", s.Title.Render("Remotes:"))
		for _, r := range v.Remotes {
			p.printf("  %s %s\n", r.Name, s.Dim.Render(r.FetchURL))
		}
	}

	if len(v.Log) > 0 {
		p.printf("\n%s\n", s.Title.Render("Recent commits:"))
		for _, c := range v.Log {
			meta := "(" + c.Author + ", " + c.AuthorTime.UTC().Format(time.DateOnly) + ")"
			subject := c.Subject
			if p.width > 0 {
				room := p.width - 4 - uniseg.StringWidth(c.ShortHash) - uniseg.StringWidth(meta)
				subject = truncate(subject, max(room, 8))
			}
			p.printf("  %s %s %s\n", s.Key.Render(c.ShortHash), subject, s.Dim.Render(meta))
		}
	}
}

// truncate shortens s to at most width terminal cells, ending in an
// ellipsis when cut.
func truncate(s string, width int) string {
	if uniseg.StringWidth(s) <= width {
		return s
	}
	var b strings.Builder
	used := 0
	g := uniseg.NewGraphemes(s)
	for g.Next() {
		w := g.Width()
		if used+w > width-1 {
			break
		}
		b.WriteString(g.Str())
		used += w
	}
	b.WriteString("…")
	return b.String()
}

// eventLine is the watch command output for one event.
type eventLine struct {
	Time    time.Time `json:"time"`
	Kind    string    `json:"kind"`
	Topic   string    `json:"topic"`
	Version uint64    `json:"version"`
	Cycle   uint64    `json:"cycle"`
	Summary string    `json:"summary"`
	Value   any       `json:"value,omitempty"`
}

// summarize describes an event value in one line.
func summarize(value any) string {
	switch v := value.(type) {
	case *git.Status:
		if v == nil {
			return "no status"
		}
		if v.Clean() {
			return "clean"
		}
		return fmt.Sprintf("%d changed, %d untracked, %d conflicts",
			len(v.Entries), len(v.Untracked), len(v.Conflicts))
	case git.Head:
		return v.String()
	case git.AheadBehind:
		if !v.Tracking() {
			return "no upstream"
		}
		return fmt.Sprintf("%s +%d -%d", v.Upstream, v.Ahead, v.Behind)
	case []git.Branch:
		names := make([]string, len(v))
		for i, b := range v {
			names[i] = b.Name
		}
		return strings.Join(names, " ")
	case []git.Commit:
		if len(v) == 0 {
			return "no commits"
		}
		return fmt.Sprintf("%d commits, head %s %s", len(v), v[0].ShortHash, v[0].Subject)
	case []git.Lock:
		if len(v) == 0 {
			return "no locks"
		}
		paths := make([]string, len(v))
		for i, l := range v {
			paths[i] = l.Path
		}
		return strings.Join(paths, " ")
	case []git.Remote:
		names := make([]string, len(v))
		for i, r := range v {
			names[i] = r.Name
		}
		return strings.Join(names, " ")
	}
	return fmt.Sprint(value)
}
