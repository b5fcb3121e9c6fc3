package cli

// This file contains Git integration utilities for retrieving
// repository information.

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/perfgo/e2erun/model"
)

func git(args ...string) (string, error) {
	output, err := exec.Command("git", args...).Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(output)), nil
}

// gitInfo describes the checkout the harness runs from.
func gitInfo() (*model.Git, error) {
	commit, err := git("rev-parse", "HEAD")
	if err != nil {
		return nil, fmt.Errorf("failed to get git commit: %w", err)
	}
	branch, err := git("rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return nil, fmt.Errorf("failed to get git branch: %w", err)
	}
	info := &model.Git{Commit: commit, Branch: branch}
	if root, err := git("rev-parse", "--show-toplevel"); err == nil {
		info.Repo = filepath.Base(root)
	}
	return info, nil
}
