// Package vcs reads the git revision the training data is versioned at.
package vcs

import (
	"fmt"

	"github.com/go-git/go-git/v5"
)

// Revision returns the full hash of HEAD for the repository containing path.
// Parent directories are searched for .git like `git rev-parse HEAD` does.
func Revision(path string) (string, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", fmt.Errorf("open repository at %s: %w", path, err)
	}

	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolve HEAD: %w", err)
	}
	return head.Hash().String(), nil
}
