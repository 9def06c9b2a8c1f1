// Copyright 2026 The AgentHive Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package rulepack resolves rule-pack sources to local files. Plain paths
// pass through untouched; "git+https://..." sources are checked out under
// the data directory before the YAML loader runs.
package rulepack

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	log "github.com/sirupsen/logrus"
)

const (
	gitPrefix = "git+https://"

	// defaultPackFile is the file loaded from a checkout when the source
	// URL carries no #fragment.
	defaultPackFile = "rulepack.yaml"
)

// IsGitSource reports whether source must be fetched from git before
// loading.
func IsGitSource(source string) bool {
	return strings.HasPrefix(source, gitPrefix)
}

// Fetch resolves a rule-pack source to a local file path. Git sources are
// shallow-cloned into dataDir on first use and pulled on later starts; a
// fetch failure falls back to the existing checkout when one is present.
// The optional ref pins a branch or tag. A "#path/to/file.yaml" fragment
// selects the file inside the repository, defaulting to rulepack.yaml.
func Fetch(ctx context.Context, source, ref, dataDir string) (string, error) {
	if !IsGitSource(source) {
		return source, nil
	}

	remote, file := splitSource(source)
	packFile := filepath.Clean(filepath.FromSlash(file))
	if filepath.IsAbs(packFile) || packFile == ".." || strings.HasPrefix(packFile, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("rule pack file %q escapes the checkout", file)
	}

	dir := checkoutDir(dataDir, remote)
	exists := checkoutExists(dir)

	if err := fetchInto(ctx, remote, ref, dir, exists); err != nil {
		if !exists {
			return "", fmt.Errorf("fetch rule pack %s: %w", remote, err)
		}
		log.Warnf("Rule pack fetch failed, using existing checkout: %v", err)
	} else {
		logRevision(dir)
	}

	resolved := filepath.Join(dir, packFile)
	if _, err := os.Stat(resolved); err != nil {
		return "", fmt.Errorf("rule pack file %s not found in checkout %s: %w", file, dir, err)
	}
	return resolved, nil
}

// splitSource strips the git+ prefix and separates the optional #fragment
// naming the file inside the repository.
func splitSource(source string) (remote, file string) {
	remote = strings.TrimPrefix(source, "git+")
	file = defaultPackFile
	if i := strings.Index(remote, "#"); i >= 0 {
		if f := strings.TrimSpace(remote[i+1:]); f != "" {
			file = f
		}
		remote = remote[:i]
	}
	return remote, file
}

// checkoutDir derives a stable per-remote directory under dataDir. The
// repository name keeps it readable, the hash keeps distinct remotes with
// the same name apart.
func checkoutDir(dataDir, remote string) string {
	sum := sha256.Sum256([]byte(remote))
	base := strings.TrimSuffix(path.Base(remote), ".git")
	if base == "" || base == "." || base == "/" {
		base = "pack"
	}
	return filepath.Join(dataDir, "rulepacks", fmt.Sprintf("%s-%x", base, sum[:4]))
}

func checkoutExists(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, ".git"))
	return err == nil && info.IsDir()
}

func fetchInto(ctx context.Context, remote, ref, dir string, exists bool) error {
	if exists {
		return pull(ctx, ref, dir)
	}
	return clone(ctx, remote, ref, dir)
}

func clone(ctx context.Context, remote, ref, dir string) error {
	if err := os.MkdirAll(filepath.Dir(dir), 0755); err != nil {
		return err
	}

	opts := &git.CloneOptions{
		URL:          remote,
		SingleBranch: true,
		Depth:        1,
		Auth:         authFromEnv(),
	}
	if ref != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(ref)
	}

	_, err := git.PlainCloneContext(ctx, dir, false, opts)
	if err != nil && ref != "" && isMissingRef(err) {
		// The pinned ref is not a branch; retry it as a tag.
		_ = os.RemoveAll(dir)
		opts.ReferenceName = plumbing.NewTagReferenceName(ref)
		_, err = git.PlainCloneContext(ctx, dir, false, opts)
	}
	if err != nil {
		_ = os.RemoveAll(dir)
		return err
	}

	log.Infof("Cloned rule pack %s into %s", remote, dir)
	return nil
}

func pull(ctx context.Context, ref, dir string) error {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return err
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return err
	}

	opts := &git.PullOptions{
		RemoteName:   "origin",
		SingleBranch: true,
		Auth:         authFromEnv(),
	}
	if ref != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(ref)
	}

	err = worktree.PullContext(ctx, opts)
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return err
	}

	log.Debugf("Rule pack checkout %s is up to date", dir)
	return nil
}

func isMissingRef(err error) bool {
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return true
	}
	return strings.Contains(err.Error(), "couldn't find remote ref")
}

// authFromEnv reads an optional access token for private rule-pack
// repositories. Any non-empty username works for token auth on the common
// hosts.
func authFromEnv() transport.AuthMethod {
	token := strings.TrimSpace(os.Getenv("AGENTHIVE_RULEPACK_TOKEN"))
	if token == "" {
		return nil
	}
	return &githttp.BasicAuth{Username: "agenthive", Password: token}
}

func logRevision(dir string) {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return
	}
	head, err := repo.Head()
	if err != nil {
		return
	}
	hash := head.Hash().String()
	if len(hash) > 12 {
		hash = hash[:12]
	}
	log.Infof("Rule pack checkout %s at %s", dir, hash)
}
