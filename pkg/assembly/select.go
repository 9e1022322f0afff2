// Package assembly selects the best-matching .dll assemblies from an
// extracted package directory for a target framework.
package assembly

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/nugo-cli/nugo/pkg/tfm"
)

// refBonus prefers reference assemblies over implementation assemblies when
// both ship a binary for a compatible framework.
const refBonus = 1_000

type candidate struct {
	path  string
	score int
}

// Select walks the lib/ and ref/ trees of an extracted package directory
// and returns the assembly paths best matching the target framework.
//
// Each immediate child of lib/ and ref/ names a framework; compatible
// children contribute all their .dll files (resource assemblies excluded)
// scored by framework priority, with ref/ binaries outranking lib/ ones.
// If nothing matches but lib/ holds loose top-level assemblies, those are
// returned as a last resort regardless of the target. At most one path per
// assembly name survives: the highest-scoring candidate.
func Select(dir, target string) []string {
	var cands []candidate
	cands = append(cands, frameworkDirs(filepath.Join(dir, "lib"), target, 0)...)
	cands = append(cands, frameworkDirs(filepath.Join(dir, "ref"), target, refBonus)...)

	if len(cands) == 0 {
		cands = looseAssemblies(filepath.Join(dir, "lib"))
	}
	return pickBest(cands)
}

// frameworkDirs scores every assembly under the compatible framework
// subdirectories of root.
func frameworkDirs(root, target string, bonus int) []candidate {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil
	}

	var cands []candidate
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		fw := e.Name()
		if !tfm.Compatible(fw, target) {
			continue
		}
		score := tfm.Score(fw, target) + bonus
		_ = filepath.WalkDir(filepath.Join(root, fw), func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			if isAssembly(d.Name()) {
				cands = append(cands, candidate{path: path, score: score})
			}
			return nil
		})
	}
	return cands
}

// looseAssemblies collects top-level .dll files directly under root.
// The target framework is ignored on this path; it only runs when no
// framework subdirectory matched at all.
func looseAssemblies(root string) []candidate {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil
	}
	var cands []candidate
	for _, e := range entries {
		if !e.IsDir() && isAssembly(e.Name()) {
			cands = append(cands, candidate{path: filepath.Join(root, e.Name())})
		}
	}
	return cands
}

// isAssembly reports whether name is a loadable assembly. Satellite
// resource assemblies never participate in selection.
func isAssembly(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".dll") && !strings.HasSuffix(lower, ".resources.dll")
}

// pickBest keeps the highest-scoring candidate per assembly name
// (case-insensitive, extension stripped). Order follows each name's first
// appearance; ties keep the earlier candidate.
func pickBest(cands []candidate) []string {
	if len(cands) == 0 {
		return nil
	}

	best := make(map[string]int) // name -> index into winners
	var winners []candidate
	for _, c := range cands {
		name := strings.ToLower(strings.TrimSuffix(filepath.Base(c.path), filepath.Ext(c.path)))
		if i, ok := best[name]; ok {
			if c.score > winners[i].score {
				winners[i] = c
			}
			continue
		}
		best[name] = len(winners)
		winners = append(winners, c)
	}

	paths := make([]string, len(winners))
	for i, w := range winners {
		paths[i] = w.path
	}
	return paths
}
