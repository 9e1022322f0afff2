package assembly

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// layout creates an extracted-package directory from a list of relative
// file paths.
func layout(t *testing.T, files ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, f := range files {
		path := filepath.Join(dir, filepath.FromSlash(f))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte("bin"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	return dir
}

func basenames(paths []string) []string {
	var names []string
	for _, p := range paths {
		names = append(names, filepath.Base(p))
	}
	return names
}

func TestSelectPrefersHigherPriorityFramework(t *testing.T) {
	dir := layout(t,
		"lib/netstandard2.0/X.dll",
		"lib/netcoreapp3.1/X.dll",
	)

	paths := Select(dir, "netcoreapp3.1")
	if len(paths) != 1 {
		t.Fatalf("Select returned %d paths, want 1: %v", len(paths), paths)
	}
	if !strings.Contains(paths[0], filepath.FromSlash("lib/netcoreapp3.1/")) {
		t.Errorf("selected %s, want the netcoreapp3.1 copy", paths[0])
	}
}

func TestSelectRefOutranksLib(t *testing.T) {
	dir := layout(t,
		"lib/netstandard2.0/X.dll",
		"ref/netstandard2.0/X.dll",
	)

	paths := Select(dir, "net8.0")
	if len(paths) != 1 {
		t.Fatalf("Select returned %d paths, want 1: %v", len(paths), paths)
	}
	if !strings.Contains(paths[0], string(filepath.Separator)+"ref"+string(filepath.Separator)) {
		t.Errorf("selected %s, want the ref copy", paths[0])
	}
}

func TestSelectRefOnlyPackage(t *testing.T) {
	dir := layout(t, "ref/netstandard2.0/Api.dll")
	paths := Select(dir, "net8.0")
	if len(paths) != 1 {
		t.Fatalf("ref-only package should yield assemblies: %v", paths)
	}
}

func TestSelectExcludesResourceAssemblies(t *testing.T) {
	dir := layout(t,
		"lib/netstandard2.0/X.dll",
		"lib/netstandard2.0/X.resources.dll",
		"lib/netstandard2.0/readme.txt",
	)

	paths := Select(dir, "net8.0")
	names := basenames(paths)
	if len(names) != 1 || names[0] != "X.dll" {
		t.Errorf("Select = %v, want only X.dll", names)
	}
}

func TestSelectIncompatibleFrameworksIgnored(t *testing.T) {
	dir := layout(t, "lib/net9.0/X.dll")
	if paths := Select(dir, "net8.0"); paths != nil {
		t.Errorf("incompatible framework should be skipped, got %v", paths)
	}
}

func TestSelectLooseFallback(t *testing.T) {
	dir := layout(t,
		"lib/Loose.dll",
		"lib/Loose.resources.dll",
		"lib/net9.0/Newer.dll", // incompatible with target
	)

	paths := Select(dir, "net8.0")
	names := basenames(paths)
	if len(names) != 1 || names[0] != "Loose.dll" {
		t.Errorf("fallback = %v, want only Loose.dll", names)
	}
}

func TestSelectNoFallbackWhenFrameworkMatched(t *testing.T) {
	dir := layout(t,
		"lib/Loose.dll",
		"lib/netstandard2.0/X.dll",
	)

	paths := Select(dir, "net8.0")
	names := basenames(paths)
	if len(names) != 1 || names[0] != "X.dll" {
		t.Errorf("Select = %v, want only the framework match", names)
	}
}

func TestSelectUniqueBasenames(t *testing.T) {
	dir := layout(t,
		"lib/netstandard2.0/A.dll",
		"lib/netstandard2.0/B.dll",
		"lib/netcoreapp3.1/A.dll",
		"ref/netcoreapp3.1/B.dll",
	)

	paths := Select(dir, "net8.0")
	seen := make(map[string]bool)
	for _, p := range paths {
		name := strings.ToLower(filepath.Base(p))
		if seen[name] {
			t.Errorf("duplicate assembly name in selection: %s", name)
		}
		seen[name] = true
	}
	if len(paths) != 2 {
		t.Errorf("Select returned %d paths, want 2: %v", len(paths), paths)
	}
}

func TestSelectEmptyPackage(t *testing.T) {
	if paths := Select(t.TempDir(), "net8.0"); paths != nil {
		t.Errorf("empty package should yield nil, got %v", paths)
	}
}
