// Copyright 2026 The AgentHive Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rulepack

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestIsGitSource(t *testing.T) {
	cases := []struct {
		source string
		want   bool
	}{
		{"git+https://github.com/acme/routing-rules.git", true},
		{"git+https://git.internal/packs.git#prod.yaml", true},
		{"https://github.com/acme/routing-rules.git", false},
		{"git+ssh://github.com/acme/routing-rules.git", false},
		{"rules/rulepack.yaml", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := IsGitSource(tc.source); got != tc.want {
			t.Errorf("IsGitSource(%q) = %v, want %v", tc.source, got, tc.want)
		}
	}
}

func TestFetchPassthrough(t *testing.T) {
	got, err := Fetch(context.Background(), "rules/rulepack.yaml", "", t.TempDir())
	if err != nil {
		t.Fatalf("Fetch returned error for local path: %v", err)
	}
	if got != "rules/rulepack.yaml" {
		t.Errorf("Expected passthrough, got %q", got)
	}
}

func TestSplitSource(t *testing.T) {
	cases := []struct {
		source     string
		wantRemote string
		wantFile   string
	}{
		{
			"git+https://github.com/acme/routing-rules.git",
			"https://github.com/acme/routing-rules.git",
			"rulepack.yaml",
		},
		{
			"git+https://github.com/acme/routing-rules.git#packs/prod.yaml",
			"https://github.com/acme/routing-rules.git",
			"packs/prod.yaml",
		},
		{
			"git+https://github.com/acme/routing-rules.git#",
			"https://github.com/acme/routing-rules.git",
			"rulepack.yaml",
		},
	}
	for _, tc := range cases {
		remote, file := splitSource(tc.source)
		if remote != tc.wantRemote || file != tc.wantFile {
			t.Errorf("splitSource(%q) = (%q, %q), want (%q, %q)",
				tc.source, remote, file, tc.wantRemote, tc.wantFile)
		}
	}
}

func TestCheckoutDir(t *testing.T) {
	dataDir := "data"

	a := checkoutDir(dataDir, "https://github.com/acme/routing-rules.git")
	b := checkoutDir(dataDir, "https://github.com/acme/routing-rules.git")
	if a != b {
		t.Errorf("Checkout dir is not deterministic: %q vs %q", a, b)
	}

	c := checkoutDir(dataDir, "https://git.internal/acme/routing-rules.git")
	if a == c {
		t.Error("Distinct remotes should map to distinct checkout dirs")
	}

	if !strings.HasPrefix(a, filepath.Join(dataDir, "rulepacks")) {
		t.Errorf("Checkout dir %q should live under %s", a, filepath.Join(dataDir, "rulepacks"))
	}
	if !strings.Contains(filepath.Base(a), "routing-rules-") {
		t.Errorf("Checkout dir %q should keep the repository name", a)
	}
}

func TestFetchFallsBackToExistingCheckout(t *testing.T) {
	dataDir := t.TempDir()
	source := "git+https://git.example.invalid/acme/routing-rules.git#packs/prod.yaml"
	remote, _ := splitSource(source)

	// Fabricate a previous checkout the fetch cannot refresh.
	dir := checkoutDir(dataDir, remote)
	if err := os.MkdirAll(filepath.Join(dir, ".git"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "packs"), 0755); err != nil {
		t.Fatal(err)
	}
	packFile := filepath.Join(dir, "packs", "prod.yaml")
	if err := os.WriteFile(packFile, []byte("version: 1\n"), 0644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got, err := Fetch(ctx, source, "", dataDir)
	if err != nil {
		t.Fatalf("Fetch should fall back to existing checkout: %v", err)
	}
	if got != packFile {
		t.Errorf("Expected %q, got %q", packFile, got)
	}
}

func TestFetchMissingFileInCheckout(t *testing.T) {
	dataDir := t.TempDir()
	source := "git+https://git.example.invalid/acme/routing-rules.git"
	remote, _ := splitSource(source)

	dir := checkoutDir(dataDir, remote)
	if err := os.MkdirAll(filepath.Join(dir, ".git"), 0755); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := Fetch(ctx, source, "", dataDir)
	if err == nil {
		t.Fatal("Expected error when the pack file is missing from the checkout")
	}
	if !strings.Contains(err.Error(), "not found in checkout") {
		t.Errorf("Expected checkout-miss error, got: %v", err)
	}
}

func TestFetchFailsWithoutCheckout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Closed local port: the clone fails fast and no fallback exists.
	_, err := Fetch(ctx, "git+https://127.0.0.1:1/acme/routing-rules.git", "", t.TempDir())
	if err == nil {
		t.Fatal("Expected error when clone fails with no existing checkout")
	}
	if !strings.Contains(err.Error(), "fetch rule pack") {
		t.Errorf("Expected fetch error, got: %v", err)
	}
}

func TestFetchRejectsEscapingFile(t *testing.T) {
	_, err := Fetch(context.Background(), "git+https://git.example.invalid/acme/rules.git#../../etc/passwd", "", t.TempDir())
	if err == nil {
		t.Fatal("Expected error for a file path escaping the checkout")
	}
	if !strings.Contains(err.Error(), "escapes the checkout") {
		t.Errorf("Expected escape error, got: %v", err)
	}
}
