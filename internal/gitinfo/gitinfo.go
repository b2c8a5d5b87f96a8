// Package gitinfo captures the source revision a run was produced from.
package gitinfo

import (
	"context"
	"os/exec"
	"strings"
)

// Info describes the working tree. Commit and Branch are empty when the
// directory is not a git checkout or git is unavailable.
type Info struct {
	Commit string
	Branch string
	Dirty  bool
}

// Provider returns git information. It never fails; missing data is
// reported as empty fields.
type Provider interface {
	Info(ctx context.Context) Info
}

// Command shells out to the git binary in Dir (the process working
// directory when empty).
type Command struct {
	Dir string
}

// Info implements Provider.
func (c Command) Info(ctx context.Context) Info {
	commit, err := c.run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return Info{}
	}
	branch, err := c.run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return Info{}
	}
	status, err := c.run(ctx, "status", "--porcelain")
	if err != nil {
		return Info{}
	}
	return Info{Commit: commit, Branch: branch, Dirty: status != ""}
}

func (c Command) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = c.Dir
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// Static is a Provider that always returns the same Info.
type Static Info

// Info implements Provider.
func (s Static) Info(context.Context) Info { return Info(s) }
