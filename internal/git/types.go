package git

import "time"

// StatusCode represents the status of a file in the working tree.
type StatusCode int

const (
	// StatusUnmodified indicates the file is unchanged.
	StatusUnmodified StatusCode = iota
	// StatusModified indicates the file has been modified.
	StatusModified
	// StatusAdded indicates the file is newly added.
	StatusAdded
	// StatusDeleted indicates the file has been deleted.
	StatusDeleted
	// StatusRenamed indicates the file has been renamed.
	StatusRenamed
	// StatusCopied indicates the file has been copied.
	StatusCopied
	// StatusUntracked indicates the file is not tracked by git.
	StatusUntracked
	// StatusConflict indicates a merge conflict.
	StatusConflict
)

// String returns the string representation of a StatusCode.
func (s StatusCode) String() string {
	switch s {
	case StatusUnmodified:
		return "unmodified"
	case StatusModified:
		return "modified"
	case StatusAdded:
		return "added"
	case StatusDeleted:
		return "deleted"
	case StatusRenamed:
		return "renamed"
	case StatusCopied:
		return "copied"
	case StatusUntracked:
		return "untracked"
	case StatusConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// FileStatus is the state of one path.
type FileStatus struct {
	// Path is relative to the working tree root.
	Path string `json:"path"`

	// OldPath is the original path of a rename or copy.
	OldPath string `json:"old_path,omitempty"`

	// Index is the staged change, Worktree the unstaged one.
	Index    StatusCode `json:"index"`
	Worktree StatusCode `json:"worktree"`
}

// Staged reports whether the path has a staged change.
func (f FileStatus) Staged() bool {
	return f.Index != StatusUnmodified
}

// Status is the working tree and index snapshot.
type Status struct {
	// Branch is the checked out branch, empty when detached.
	Branch string `json:"branch"`

	// Upstream is the upstream branch, e.g. "origin/main".
	Upstream string `json:"upstream,omitempty"`

	// Ahead and Behind count commits against Upstream.
	Ahead  int `json:"ahead"`
	Behind int `json:"behind"`

	// Head is the HEAD commit, empty before the first commit.
	Head string `json:"head,omitempty"`

	Entries   []FileStatus `json:"entries,omitempty"`
	Untracked []string     `json:"untracked,omitempty"`
	Conflicts []string     `json:"conflicts,omitempty"`
}

// Detached reports whether HEAD is detached.
func (s *Status) Detached() bool {
	return s.Branch == ""
}

// Clean reports whether there is nothing to commit.
func (s *Status) Clean() bool {
	return len(s.Entries) == 0 && len(s.Untracked) == 0 && len(s.Conflicts) == 0
}

// Staged returns the entries with staged changes.
func (s *Status) Staged() []FileStatus {
	var out []FileStatus
	for _, e := range s.Entries {
		if e.Staged() {
			out = append(out, e)
		}
	}
	return out
}

// Branch is a local or remote-tracking branch.
type Branch struct {
	// Name is the short name, e.g. "main" or "origin/main".
	Name string `json:"name"`

	// Ref is the full reference name, e.g. "refs/heads/main".
	Ref string `json:"ref"`

	Hash string `json:"hash"`

	// Upstream is the short upstream name of a local branch.
	Upstream string `json:"upstream,omitempty"`

	// Head marks the checked out branch.
	Head bool `json:"head,omitempty"`

	// Remote is set for remote-tracking branches.
	Remote string `json:"remote,omitempty"`

	// Gone is set when the upstream no longer exists.
	Gone bool `json:"gone,omitempty"`
}

// Head describes what HEAD points at.
type Head struct {
	// Branch is the short branch name, empty when detached.
	Branch string `json:"branch,omitempty"`

	// Hash is the commit, empty on an unborn branch.
	Hash string `json:"hash,omitempty"`

	Detached bool `json:"detached"`
}

// String returns the branch name or the short detached hash.
func (h Head) String() string {
	switch {
	case !h.Detached:
		return h.Branch
	case len(h.Hash) > 7:
		return "(" + h.Hash[:7] + ")"
	default:
		return "(" + h.Hash + ")"
	}
}

// AheadBehind compares HEAD with its upstream.
type AheadBehind struct {
	Branch   string `json:"branch,omitempty"`
	Upstream string `json:"upstream,omitempty"`
	Ahead    int    `json:"ahead"`
	Behind   int    `json:"behind"`
}

// Tracking reports whether HEAD has an upstream.
func (a AheadBehind) Tracking() bool {
	return a.Upstream != ""
}

// Commit is one log entry.
type Commit struct {
	Hash        string    `json:"hash"`
	ShortHash   string    `json:"short_hash"`
	Subject     string    `json:"subject"`
	Author      string    `json:"author"`
	AuthorEmail string    `json:"author_email"`
	AuthorTime  time.Time `json:"author_time"`
	Parents     []string  `json:"parents,omitempty"`
}

// Remote is a configured remote.
type Remote struct {
	Name     string `json:"name"`
	FetchURL string `json:"fetch_url"`
	PushURL  string `json:"push_url,omitempty"`
}

// Lock is a lock file held in the git directory.
type Lock struct {
	// Path is relative to the git directory that holds it.
	Path    string    `json:"path"`
	ModTime time.Time `json:"mod_time"`
}
